// Package label implements the Label (L) and per-side vocabulary of
// spec.md §3: a label is a raw hash of its whole text plus the
// ordered token hashes obtained by splitting the text on '|'. Labels
// are interned per vocabulary (source/target) so two arcs sharing the
// same textual label share one *Label.
package label

import (
	"strings"

	"github.com/teatak/wfstrain/cmap"
	"github.com/teatak/wfstrain/strpool"
)

// Label is one side (input or output) of an arc.
type Label struct {
	Raw    uint64
	Tokens []uint64
}

// Vocab interns label text into shared *Label objects. The zero value
// is not usable; construct with NewVocab.
type Vocab struct {
	byHash *cmap.Map[*Label]
}

// NewVocab creates an empty vocabulary.
func NewVocab() *Vocab {
	return &Vocab{byHash: cmap.New[*Label]()}
}

// Len reports the number of distinct labels interned.
func (v *Vocab) Len() int {
	return v.byHash.Len()
}

// Intern returns the shared *Label for s, creating it (and interning
// s and its '|'-separated tokens into pool as mandatory strings) on
// first use. Concurrency-safe: two goroutines interning the same text
// simultaneously observe the same *Label.
func (v *Vocab) Intern(pool *strpool.Pool, s string) *Label {
	raw := pool.InternString(s, true)
	if existing, ok := v.byHash.Find(raw); ok {
		return existing
	}
	parts := strings.Split(s, "|")
	tokens := make([]uint64, len(parts))
	for i, part := range parts {
		tokens[i] = pool.InternString(part, true)
	}
	lbl := &Label{Raw: raw, Tokens: tokens}
	actual, _ := v.byHash.Insert(raw, lbl)
	return actual
}

// Lookup returns the label previously interned under raw hash h, if
// any.
func (v *Vocab) Lookup(h uint64) (*Label, bool) {
	return v.byHash.Find(h)
}
