package train

import (
	"github.com/teatak/wfstrain/dataset"
	"github.com/teatak/wfstrain/fst"
)

// MajorityBaseline is a supplemented diagnostic (SPEC_FULL.md §4,
// grounded on the original pipeline's majority_model.py baseline): for
// every training sample it walks the hypothesis lattice from its
// initial state, at each state following the out-arc whose target
// state has the highest out-degree (the "majority" structural choice,
// ties broken by arc load order), and compares the resulting path's
// labels against the reference lattice's own path. It returns the
// fraction of samples where the two label sequences match exactly —
// the accuracy a trivial structural heuristic reaches without any
// learned weights, a sanity floor to compare the trained model's
// decode accuracy against.
func MajorityBaseline(data *dataset.Training) float64 {
	if len(data.Samples) == 0 {
		return 0
	}
	correct := 0
	for _, s := range data.Samples {
		hypPath := highestOutDegreePath(s.Hyp)
		refPath := highestOutDegreePath(s.Ref)
		if pathLabelsEqual(s.Hyp, hypPath, s.Ref, refPath) {
			correct++
		}
	}
	return float64(correct) / float64(len(data.Samples))
}

// highestOutDegreePath walks lat from its initial state to its final
// state, at each step following the out-arc whose target has the most
// outgoing arcs. It always terminates: every arc moves strictly
// forward through the lattice's acyclic topological order, so the
// walk cannot revisit a state.
func highestOutDegreePath(lat *fst.Lattice) []int {
	var path []int
	state := lat.Initial
	for state != lat.Final {
		out := lat.States[state].Out
		best := out[0]
		bestDegree := -1
		for _, arcIdx := range out {
			trg := lat.Arcs[arcIdx].Trg
			if degree := len(lat.States[trg].Out); degree > bestDegree {
				bestDegree = degree
				best = arcIdx
			}
		}
		path = append(path, best)
		state = lat.Arcs[best].Trg
	}
	return path
}

// pathLabelsEqual reports whether two paths, drawn from (possibly
// different) lattices sharing the same model's label vocabularies,
// carry identical input/output label sequences.
func pathLabelsEqual(hyp *fst.Lattice, hypPath []int, ref *fst.Lattice, refPath []int) bool {
	if len(hypPath) != len(refPath) {
		return false
	}
	for i := range hypPath {
		ha := &hyp.Arcs[hypPath[i]]
		ra := &ref.Arcs[refPath[i]]
		if ha.ILbl.Raw != ra.ILbl.Raw || ha.OLbl.Raw != ra.OLbl.Raw {
			return false
		}
	}
	return true
}
