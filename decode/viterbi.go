// Package decode implements the Viterbi decoder of spec.md §4.8: the
// same ψ setup as the gradient engine, with log-sum-exp replaced by
// max and a backpointer kept per arc so the best path can be
// reconstructed after the forward pass. Ground: teatak-seg's
// crf.Decoder.Decode (max-plus forward pass with per-position
// backpointers over a linear-chain lattice), generalized to an
// arbitrary loaded DAG.
package decode

import (
	"fmt"
	"io"

	"github.com/teatak/wfstrain/fst"
	"github.com/teatak/wfstrain/gradient"
	"github.com/teatak/wfstrain/model"
	"github.com/teatak/wfstrain/pattern"
)

// ForwardMaxPlus runs the max-plus forward pass of spec.md §4.8 over
// lat's cached forward topological order. gradient.ComputePsi must
// have already filled in ψ.
func ForwardMaxPlus(lat *fst.Lattice) {
	for _, idx := range lat.FwdOrder() {
		a := &lat.Arcs[idx]
		v := &lat.States[a.Src]
		if len(v.In) == 0 {
			a.Alpha = a.Psi
			a.EBack = -1
			continue
		}
		o := a.OutPos
		best := fst.NegInf
		bestArc := -1
		for i, inIdx := range v.In {
			in := &lat.Arcs[inIdx]
			val := in.Alpha + v.PsiAt(i, o) + a.Psi
			if val > best {
				best = val
				bestArc = inIdx
			}
		}
		a.Alpha = best
		a.EBack = bestArc
	}
}

// BestPath picks the arc ending at lat.Final with the highest α and
// walks EBack backward to reconstruct the path, returning arc indices
// in forward (source-to-sink) order along with the path's total
// score. Returns (nil, -Inf) if the lattice has no arcs ending at its
// final state (never true for a validated, loaded lattice).
func BestPath(lat *fst.Lattice) ([]int, float64) {
	best := fst.NegInf
	bestArc := -1
	for i := range lat.Arcs {
		if lat.Arcs[i].Trg == lat.Final && lat.Arcs[i].Alpha > best {
			best = lat.Arcs[i].Alpha
			bestArc = i
		}
	}
	if bestArc == -1 {
		return nil, fst.NegInf
	}

	var reversed []int
	for cur := bestArc; cur != -1; cur = lat.Arcs[cur].EBack {
		reversed = append(reversed, cur)
	}
	path := make([]int, len(reversed))
	for i, a := range reversed {
		path[len(reversed)-1-i] = a
	}
	return path, best
}

// Decode runs feature generation, ψ, and the max-plus forward pass
// over lat, then returns the best path's arc indices and score.
// EnsureTopology rebuilds adjacency and topological order first, in
// case a lower cache level dropped them on a prior pass over this
// same lattice.
func Decode(lat *fst.Lattice, m *model.Model, patterns *pattern.Set) ([]int, float64, error) {
	if err := lat.EnsureTopology(); err != nil {
		return nil, 0, err
	}
	fst.Generate(lat, m, patterns, false)
	gradient.ComputePsi(lat)
	ForwardMaxPlus(lat)
	path, score := BestPath(lat)
	return path, score, nil
}

// Step is one decoded arc's input/output label text, recovered from
// the string pool.
type Step struct {
	In, Out string
}

// PathLabels resolves each arc on path to its (input, output) label
// text via the model's string pool, in forward order.
func PathLabels(lat *fst.Lattice, m *model.Model, path []int) []Step {
	out := make([]Step, len(path))
	for i, arcIdx := range path {
		a := &lat.Arcs[arcIdx]
		out[i] = Step{In: m.Pool.Get(a.ILbl.Raw), Out: m.Pool.Get(a.OLbl.Raw)}
	}
	return out
}

// DumpLattice is the decoder's alternate output mode (spec.md §4.8):
// it emits the full weighted arc table as a WFST text file, with each
// arc's computed ψ standing in for the feature-weighted score, so an
// external decoder can compose against the result without needing
// the original model. Supplements the distilled spec with the
// original pipeline's wapiti-lattice-dump interoperability mode.
func DumpLattice(w io.Writer, lat *fst.Lattice, m *model.Model) error {
	for i := range lat.Arcs {
		a := &lat.Arcs[i]
		if _, err := fmt.Fprintf(w, "%d %d %s %s %g\n",
			a.Src, a.Trg, m.Pool.Get(a.ILbl.Raw), m.Pool.Get(a.OLbl.Raw), a.Psi); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d\nEOS\n", lat.Final)
	return err
}
