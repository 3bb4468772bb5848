// Package gradient implements the forward-backward gradient engine
// of spec.md §4.6: per-arc and per-state-pair log-potentials (ψ),
// log-space forward/backward recursions, and atomic accumulation of
// expected feature counts as the gradient of the negative
// log-likelihood. Ground: teatak-seg's crf.Decoder forward/Viterbi
// pass (arc-by-arc score accumulation over a fixed lattice shape),
// generalized to log-space sum-product over an arbitrary loaded DAG.
package gradient

import (
	"github.com/teatak/wfstrain/fst"
	"github.com/teatak/wfstrain/model"
)

// ComputePsi implements spec.md §4.6(a): fills in every arc's ψ from
// its resolved unigram and dense features, and every state's bigram
// ψ matrix from its resolved bigram features. Must run after
// fst.Generate has resolved the feature lists for this iteration.
func ComputePsi(lat *fst.Lattice) {
	for i := range lat.Arcs {
		a := &lat.Arcs[i]
		sum := a.Wgh[0]
		for _, f := range a.Unigram {
			sum += f.X()
		}
		for slot := 1; slot < model.MaxReal; slot++ {
			if df := a.DenseFtrs[slot]; df != nil {
				sum += df.X() * a.Wgh[slot]
			}
		}
		a.Psi = sum
	}

	for si := range lat.States {
		st := &lat.States[si]
		if !st.HasBigramBuffer() {
			continue
		}
		for i := range st.In {
			for o := range st.Out {
				cell := st.Bigram(i, o)
				sum := 0.0
				for _, f := range cell.Ftrs {
					sum += f.X()
				}
				cell.Psi = sum
			}
		}
	}
}
