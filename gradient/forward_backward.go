package gradient

import "github.com/teatak/wfstrain/fst"

// Forward implements spec.md §4.6(b): a single log-space forward pass
// over lat in its cached forward topological order. ComputePsi must
// have already been run.
func Forward(lat *fst.Lattice) {
	for _, idx := range lat.FwdOrder() {
		a := &lat.Arcs[idx]
		v := &lat.States[a.Src]
		if len(v.In) == 0 {
			a.Alpha = a.Psi
			continue
		}
		o := a.OutPos
		terms := make([]float64, len(v.In))
		for i, inIdx := range v.In {
			in := &lat.Arcs[inIdx]
			terms[i] = in.Alpha + v.PsiAt(i, o) + a.Psi
		}
		a.Alpha = fst.LogSumExp(terms...)
	}
}

// Backward implements spec.md §4.6(c): the dual log-space backward
// pass over lat's cached backward topological order.
func Backward(lat *fst.Lattice) {
	for _, idx := range lat.BwdOrder() {
		a := &lat.Arcs[idx]
		v := &lat.States[a.Trg]
		if len(v.Out) == 0 {
			a.Beta = 0
			continue
		}
		i := a.InPos
		terms := make([]float64, len(v.Out))
		for o, outIdx := range v.Out {
			out := &lat.Arcs[outIdx]
			terms[o] = out.Psi + v.PsiAt(i, o) + out.Beta
		}
		a.Beta = fst.LogSumExp(terms...)
	}
}

// Z implements spec.md §4.6(d)'s normalizer: the logsumexp of α over
// every arc ending at the lattice's final state.
func Z(lat *fst.Lattice) float64 {
	terms := make([]float64, 0, len(lat.Arcs))
	for i := range lat.Arcs {
		if lat.Arcs[i].Trg == lat.Final {
			terms = append(terms, lat.Arcs[i].Alpha)
		}
	}
	return fst.LogSumExp(terms...)
}
