package gradient

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/teatak/wfstrain/fst"
	"github.com/teatak/wfstrain/model"
	"github.com/teatak/wfstrain/pattern"
)

// CacheLevel controls how much per-lattice transient state survives
// between gradient passes, trading memory for recomputation work
// (spec.md §4.6, "Cache discipline").
type CacheLevel int

const (
	CacheNone      CacheLevel = 0
	CacheAdjacency CacheLevel = 1
	CacheOrders    CacheLevel = 2
	CacheFeatures  CacheLevel = 3
	CacheAll       CacheLevel = 4
)

// Engine runs the forward-backward gradient computation over a
// dataset's lattices, distributing them across a fixed worker pool by
// atomic fetch-add, exactly as spec.md §5 prescribes.
type Engine struct {
	Model      *model.Model
	Patterns   *pattern.Set
	NThreads   int
	CacheLevel CacheLevel
}

// countFrequencySide reports whether an occurrence on lat should bump
// its features' frq counters, per spec.md §4.6's "Sign policy for the
// frq counter": hypothesis lattices by default, reference lattices
// when Model.RefFreq is set.
func (e *Engine) countFrequencySide(lat *fst.Lattice) bool {
	if e.Model.RefFreq {
		return lat.Multiplier < 0
	}
	return lat.Multiplier > 0
}

// RunLattice runs the full per-lattice pipeline of spec.md §4.6 on a
// single lattice already assigned to the calling worker: feature
// generation, ψ, forward, backward, and gradient accumulation. It
// returns multiplier * Z, this lattice's contribution to the
// dataset's total negative log-likelihood, and applies the
// configured cache-level discipline before returning. EnsureTopology
// is called first so a lattice whose adjacency or topological orders
// were dropped by a prior pass's cache discipline is rebuilt before
// this pass reads them.
func (e *Engine) RunLattice(lat *fst.Lattice) (float64, error) {
	if err := lat.EnsureTopology(); err != nil {
		return 0, err
	}
	fst.Generate(lat, e.Model, e.Patterns, e.countFrequencySide(lat))
	ComputePsi(lat)
	Forward(lat)
	Backward(lat)

	z := Z(lat)
	mult := float64(lat.Multiplier)

	for i := range lat.Arcs {
		a := &lat.Arcs[i]
		p := math.Exp(a.Alpha + a.Beta - z)
		for _, f := range a.Unigram {
			f.AddG(mult * p)
		}
		for slot := 1; slot < model.MaxReal; slot++ {
			if df := a.DenseFtrs[slot]; df != nil {
				df.AddG(mult * p * a.Wgh[slot])
			}
		}
	}
	for si := range lat.States {
		st := &lat.States[si]
		if !st.HasBigramBuffer() {
			continue
		}
		for i, inIdx := range st.In {
			in := &lat.Arcs[inIdx]
			for o, outIdx := range st.Out {
				out := &lat.Arcs[outIdx]
				cell := st.Bigram(i, o)
				pio := math.Exp(in.Alpha + cell.Psi + out.Psi + out.Beta - z)
				for _, f := range cell.Ftrs {
					f.AddG(mult * pio)
				}
			}
		}
	}

	e.applyCacheDiscipline(lat)
	return mult * z, nil
}

func (e *Engine) applyCacheDiscipline(lat *fst.Lattice) {
	if e.CacheLevel < CacheAll {
		lat.DropAlphaBetaPsi()
	}
	if e.CacheLevel < CacheFeatures {
		lat.DropFeatureLists()
	}
	if e.CacheLevel < CacheOrders {
		lat.DropOrders()
	}
	if e.CacheLevel < CacheAdjacency {
		lat.DropAdjacency()
	}
}

// Run processes every lattice in lattices across Engine.NThreads
// worker goroutines (minimum 1), partitioned by a shared atomic
// index, and returns the dataset's total negative log-likelihood
// (sum of multiplier*Z over all lattices). Dumping forces
// single-threaded execution (spec.md §5): feature emission order must
// be stable and the dump writer is not safe for concurrent use. A
// per-sample format error aborts the run rather than skipping the
// sample (spec.md §7); the first error observed across the worker
// pool is returned, and remaining in-flight workers drain without
// starting new work.
func (e *Engine) Run(lattices []*fst.Lattice) (float64, error) {
	n := e.NThreads
	if n < 1 || e.Model.DumpEnabled() {
		n = 1
	}

	var next atomic.Int64
	var total atomic.Uint64 // float64 bits, accumulated via CAS
	addTotal := func(delta float64) {
		for {
			old := total.Load()
			next := math.Float64bits(math.Float64frombits(old) + delta)
			if total.CompareAndSwap(old, next) {
				return
			}
		}
	}

	var firstErr atomic.Value // error
	var aborted atomic.Bool

	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func() {
			defer wg.Done()
			for {
				if aborted.Load() {
					return
				}
				i := next.Add(1) - 1
				if i >= int64(len(lattices)) {
					return
				}
				contribution, err := e.RunLattice(lattices[i])
				if err != nil {
					if !aborted.Swap(true) {
						firstErr.Store(err)
					}
					return
				}
				addTotal(contribution)
			}
		}()
	}
	wg.Wait()

	if v := firstErr.Load(); v != nil {
		return 0, v.(error)
	}
	return math.Float64frombits(total.Load()), nil
}
