// Package fst implements the Lattice (WFST) data structure of
// spec.md §3-§4.5: arcs and states loaded from the text format,
// in/out adjacency, and the two topological arc orderings the
// gradient engine and decoder both depend on. Ground: teatak-seg's
// segmenter.Lattice (arc/state arrays built from a token sequence),
// generalized from a fixed linear-chain shape to an arbitrary
// loaded acyclic graph.
package fst

import (
	"math"

	"github.com/teatak/wfstrain/label"
	"github.com/teatak/wfstrain/model"
)

// Arc is one transition of a lattice, together with the transient
// fields the gradient engine and decoder fill in on each pass.
type Arc struct {
	Src, Trg int
	ILbl     *label.Label
	OLbl     *label.Label
	Wgh      [model.MaxReal]float64

	// OutPos is this arc's position in its source state's Out list;
	// InPos is its position in its target state's In list. Both are
	// fixed at load time so the forward/backward recursions never
	// need a linear search to find "this arc's index among its
	// state's (i,o) pairs".
	OutPos, InPos int

	// Unigram is the list of feature entries this arc's own label
	// pair activates, resolved once per iteration by the generator.
	Unigram []*model.Ftr

	// DenseFtrs[i] is the resolved dense feature backing Wgh[i],
	// resolved alongside Unigram; nil where the slot is unused or
	// inactive this iteration.
	DenseFtrs [model.MaxReal]*model.Ftr

	Psi   float64
	Alpha float64
	Beta  float64

	// EBack is, after a Viterbi forward pass, the index in the
	// lattice's Arcs of the best predecessor arc, or -1 if this arc
	// leaves the initial state.
	EBack int
}

// State is one node of a lattice: its incident arc lists, and, after
// generation, the bigram feature lists and ψ matrix indexed by
// (position in In, position in Out). Both are flat slices addressed
// via bigramIndex rather than nested per-row allocations, per DESIGN
// NOTES §9's "owned flat buffers with pre-computed prefix offsets".
type State struct {
	In  []int // arc indices, in the order the loader encountered them
	Out []int

	bigram []*bigramCell
}

type bigramCell struct {
	Ftrs []*model.Ftr
	Psi  float64
}

func (s *State) ensureBigram() {
	if s.bigram != nil {
		return
	}
	s.bigram = make([]*bigramCell, len(s.In)*len(s.Out))
	for i := range s.bigram {
		s.bigram[i] = &bigramCell{}
	}
}

func (s *State) bigramIndex(i, o int) int { return i*len(s.Out) + o }

// Bigram returns the feature list and ψ cell for the (i-th in-arc,
// o-th out-arc) pair, allocating the backing buffer on first use.
func (s *State) Bigram(i, o int) *bigramCell {
	s.ensureBigram()
	return s.bigram[s.bigramIndex(i, o)]
}

// PsiAt returns the bigram ψ for (i-th in-arc, o-th out-arc) without
// allocating the backing buffer when it doesn't exist yet — a state
// with no bigram patterns configured simply contributes 0.
func (s *State) PsiAt(i, o int) float64 {
	if s.bigram == nil {
		return 0
	}
	return s.bigram[s.bigramIndex(i, o)].Psi
}

// HasBigramBuffer reports whether bigram buffers were ever allocated,
// without allocating them — used by cache-discipline code that wants
// to skip states that never needed them.
func (s *State) HasBigramBuffer() bool { return s.bigram != nil }

// DropBigram frees the bigram buffers, implementing the cache-level
// 3 discipline of spec.md §4.6.
func (s *State) DropBigram() { s.bigram = nil }

// Lattice is a loaded, validated acyclic WFST.
type Lattice struct {
	States []State
	Arcs   []Arc

	// Multiplier is +1 for a hypothesis lattice, -1 for a reference
	// lattice, 0 for an unscored test lattice.
	Multiplier int8

	Initial int
	Final   int

	fwdOrder     []int
	bwdOrder     []int
	hasAdjacency bool
}

// NegInf is the −∞ absorbing element used throughout the log-space
// forward/backward computation (spec.md §4.6.b).
var NegInf = math.Inf(-1)

// LogSumExp implements logsumexp with −∞ as the absorbing element:
// LogSumExp() == -Inf, and LogSumExp(x) == x for any finite x or
// x == -Inf. An argument of +Inf yields NaN.
func LogSumExp(xs ...float64) float64 {
	max := NegInf
	for _, x := range xs {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return NegInf
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

// FwdOrder returns the arc indices in forward topological order:
// every arc's source state's in-arcs all appear strictly earlier
// (spec.md §8 property 4). Computed at load time and stored; DropOrders
// clears it per the cache-level-2 discipline, after which it is nil
// until EnsureTopology rebuilds it.
func (f *Lattice) FwdOrder() []int { return f.fwdOrder }

// BwdOrder returns the arc indices in backward topological order,
// the dual of FwdOrder: every arc's target state's out-arcs all
// appear strictly earlier.
func (f *Lattice) BwdOrder() []int { return f.bwdOrder }

// DropOrders frees the cached topological orderings (cache level < 2
// per spec.md §4.6).
func (f *Lattice) DropOrders() {
	f.fwdOrder = nil
	f.bwdOrder = nil
}

// DropAdjacency frees every state's in/out arc lists (cache level < 1
// per spec.md §4.6). Only safe between iterations, since nothing else
// in the lattice can be recomputed without it.
func (f *Lattice) DropAdjacency() {
	for i := range f.States {
		f.States[i].In = nil
		f.States[i].Out = nil
		f.States[i].bigram = nil
	}
	f.hasAdjacency = false
}

// DropFeatureLists clears every arc's unigram list and every state's
// bigram buffers (cache level < 3 per spec.md §4.6).
func (f *Lattice) DropFeatureLists() {
	for i := range f.Arcs {
		f.Arcs[i].Unigram = nil
	}
	for i := range f.States {
		f.States[i].bigram = nil
	}
}

// DropAlphaBetaPsi clears the per-arc and per-state transient score
// fields (cache level < 4 per spec.md §4.6).
func (f *Lattice) DropAlphaBetaPsi() {
	for i := range f.Arcs {
		f.Arcs[i].Psi, f.Arcs[i].Alpha, f.Arcs[i].Beta = 0, 0, 0
	}
	for i := range f.States {
		if f.States[i].bigram == nil {
			continue
		}
		for _, c := range f.States[i].bigram {
			c.Psi = 0
		}
	}
}
