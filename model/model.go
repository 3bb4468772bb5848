// Package model implements the Model (M) of spec.md §3: the shared
// feature table, the source/target label vocabularies, per-tag
// activation windows, and the optional feature-dump sink. Ground:
// teatak-seg's crf.Model (a flat tag-weight table with a line-based
// text file format), generalized from a fixed 4-tag alphabet to the
// spec's 128-tag, 56-bit-content-hash feature key space.
package model

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/teatak/wfstrain/cmap"
	"github.com/teatak/wfstrain/hashutil"
	"github.com/teatak/wfstrain/label"
	"github.com/teatak/wfstrain/strpool"
)

// MaxReal is the number of pre-assigned real-valued extra weights an
// arc may carry: index 0 is the arc's own bias, indices 1..MaxReal-1
// are coefficients of dense features identified by tag. spec.md §9
// notes the reference copy ran with this dimension inert
// (MAX_REAL==0); it is kept parameterized and live here.
const MaxReal = 4

const maxTag = 128

// TagStat is a supplemented diagnostic (SPEC_FULL.md §4, grounded on
// the original pipeline's analysis.py): per-tag feature count and
// mean weight after a training run.
type TagStat struct {
	Tag        int
	Count      int
	MeanWeight float64
}

// Model owns the feature table and everything needed to decide
// whether a newly observed feature may be inserted.
type Model struct {
	Features *cmap.Map[*Ftr]
	Source   *label.Vocab
	Target   *label.Vocab
	Pool     *strpool.Pool

	// MinFreq is the minimum occurrence frequency (frq, counted on the
	// side RefFreq selects) a feature must reach to survive an RPROP
	// sweep (spec.md §4.7.1.b). New sets it to 0.
	MinFreq int64
	// RefFreq switches the "frequency side" used when deciding whether
	// to count an occurrence against Ftr.frq: false counts hypothesis
	// occurrences (the default), true counts reference occurrences
	// (spec.md §4.6, "Sign policy for the frq counter").
	RefFreq bool

	// DenseTags maps dense weight slot i (1..MaxReal-1; slot 0 is the
	// arc's own bias and carries no tag) to the tag of the singleton
	// feature whose weight is that slot's coefficient. -1 means the
	// slot is unused. spec.md §9 notes the reference copy ran with
	// MAX_REAL==0, leaving this path inert; it is kept live here.
	DenseTags [MaxReal]int

	stt [maxTag]int64
	rem [maxTag]int64

	iteration atomic.Int64

	dumpMu sync.Mutex
	dump   io.Writer
}

// New creates an empty model. Every tag's activation window defaults
// to [0, +inf) — always active — until SetTagStart/SetTagRemove
// narrow it.
func New() *Model {
	m := &Model{
		Features: cmap.New[*Ftr](),
		Source:   label.NewVocab(),
		Target:   label.NewVocab(),
		Pool:     strpool.New(false),
		MinFreq:  0,
	}
	for t := range m.rem {
		m.rem[t] = 1<<62 - 1
	}
	for i := range m.DenseTags {
		m.DenseTags[i] = -1
	}
	return m
}

// DenseFeature returns the singleton feature backing dense weight
// slot i's tag, honoring the same activation window as AddFeature.
// Dense features carry no pattern-derived hashes of their own.
func (m *Model) DenseFeature(tag int) (*Ftr, bool) {
	return m.AddFeature(tag, nil, false)
}

// SetTagStart sets stt[tag], the first iteration at which a new
// feature under tag may be inserted.
func (m *Model) SetTagStart(tag int, iter int64) {
	if tag < 0 || tag >= maxTag {
		return
	}
	m.stt[tag] = iter
}

// SetTagRemove sets rem[tag]: at iteration >= rem[tag], a zero-weight
// feature under tag is eligible for pruning and no new feature under
// tag may be inserted.
func (m *Model) SetTagRemove(tag int, iter int64) {
	if tag < 0 || tag >= maxTag {
		return
	}
	m.rem[tag] = iter
}

func (m *Model) activationWindow(tag int) (start, remove int64) {
	if tag < 0 || tag >= maxTag {
		return 0, 1<<62 - 1
	}
	return m.stt[tag], m.rem[tag]
}

// TagWindow exposes tag's configured [start, remove) activation
// window for callers outside the package (the RPROP sweep's pruning
// checks).
func (m *Model) TagWindow(tag int) (start, remove int64) { return m.activationWindow(tag) }

// Iteration returns the current training iteration counter.
func (m *Model) Iteration() int64 { return m.iteration.Load() }

// SetIteration sets the iteration counter (used when resuming from a
// saved model, or by the decoder, which never advances it).
func (m *Model) SetIteration(i int64) { m.iteration.Store(i) }

// AdvanceIteration increments the iteration counter by one; called by
// the training orchestrator between a gradient pass and the next.
func (m *Model) AdvanceIteration() int64 { return m.iteration.Add(1) }

// EnableDump turns on feature-table dumping to w; per spec.md §5 the
// caller must also force single-threaded execution while dumping is
// enabled, since concurrent writes to w would interleave.
func (m *Model) EnableDump(w io.Writer) { m.dump = w }

// DumpEnabled reports whether a dump sink is configured.
func (m *Model) DumpEnabled() bool { return m.dump != nil }

func featureKey(tag int, hashes []uint64) uint64 {
	buf := make([]byte, 8*len(hashes))
	for i, h := range hashes {
		binary.BigEndian.PutUint64(buf[i*8:], h)
	}
	content := hashutil.Hash(buf) & 0x00FFFFFFFFFFFFFF
	return uint64(byte(tag))<<56 | content
}

// TagOf extracts the tag encoded in a feature key's top byte.
func TagOf(key uint64) int { return int(key >> 56) }

// AddFeature implements spec.md §4.4's model.add_feature: look up the
// feature keyed by (tag, hashes); if present, optionally bump its
// frequency counter and return it regardless of the current
// activation window (this is the loader leniency spec.md §9 says to
// preserve — an existing feature is always servable). If absent and
// the current iteration falls outside [stt[tag], rem[tag]), report
// "not active". Otherwise insert a zero-initialized feature.
func (m *Model) AddFeature(tag int, hashes []uint64, countFrequency bool) (*Ftr, bool) {
	key := featureKey(tag, hashes)
	if existing, ok := m.Features.Find(key); ok {
		if countFrequency {
			existing.IncFrq()
		}
		return existing, true
	}
	start, remove := m.activationWindow(tag)
	iter := m.Iteration()
	if iter < start || iter >= remove {
		return nil, false
	}
	actual, inserted := m.Features.Insert(key, &Ftr{})
	if inserted && m.DumpEnabled() {
		m.emitDump(key, hashes)
	}
	return actual, true
}

func (m *Model) emitDump(key uint64, hashes []uint64) {
	m.dumpMu.Lock()
	defer m.dumpMu.Unlock()
	fmt.Fprintf(m.dump, "%016x", key)
	for _, h := range hashes {
		fmt.Fprintf(m.dump, " %016x", h)
	}
	fmt.Fprintln(m.dump)
}

// Shrink removes every feature whose weight is exactly zero. The
// caller must guarantee no concurrent readers (spec.md §4.4); the
// training orchestrator calls this only between iterations, after
// every worker has joined.
func (m *Model) Shrink() {
	var dead []uint64
	m.Features.Range(func(hash uint64, f *Ftr) bool {
		if f.X() == 0 {
			dead = append(dead, hash)
		}
		return true
	})
	for _, h := range dead {
		m.Features.Remove(h)
	}
}

// TagStats reports per-tag feature counts and mean weights
// (SPEC_FULL.md §4, supplemented from the original pipeline's
// analysis.py).
func (m *Model) TagStats() []TagStat {
	var counts [maxTag]int
	var sums [maxTag]float64
	m.Features.Range(func(hash uint64, f *Ftr) bool {
		t := TagOf(hash)
		counts[t]++
		sums[t] += f.X()
		return true
	})
	var out []TagStat
	for t := 0; t < maxTag; t++ {
		if counts[t] == 0 {
			continue
		}
		out = append(out, TagStat{Tag: t, Count: counts[t], MeanWeight: sums[t] / float64(counts[t])})
	}
	return out
}
