// Package dataset implements the Dataset (D) of spec.md §3: ordered
// collections of lattices with their multiplier already assigned at
// load time — training samples pair a hypothesis lattice (multiplier
// +1) with a reference lattice (multiplier -1); held-out or decode
// data carries multiplier 0.
package dataset

import (
	"fmt"
	"os"

	"github.com/teatak/wfstrain/fst"
	"github.com/teatak/wfstrain/model"
)

// Sample is one training pair: a hypothesis (search-space) lattice
// and the reference lattice it should be pulled toward.
type Sample struct {
	Hyp *fst.Lattice
	Ref *fst.Lattice
}

// Training is an ordered sequence of hypothesis/reference pairs.
type Training struct {
	Samples []Sample
}

// Lattices returns every lattice in the dataset, hypothesis and
// reference interleaved, for callers that only need to iterate (the
// gradient engine's work-queue, cache-discipline sweeps).
func (t *Training) Lattices() []*fst.Lattice {
	out := make([]*fst.Lattice, 0, 2*len(t.Samples))
	for _, s := range t.Samples {
		out = append(out, s.Hyp, s.Ref)
	}
	return out
}

// LoadTraining loads a hypothesis file and its matching reference
// file and zips them into pairs by position, as the original
// --train-spc/--train-ref flag pair does.
func LoadTraining(hypPath, refPath string, m *model.Model) (*Training, error) {
	hyps, err := loadFile(hypPath, m, 1)
	if err != nil {
		return nil, err
	}
	refs, err := loadFile(refPath, m, -1)
	if err != nil {
		return nil, err
	}
	if len(hyps) != len(refs) {
		return nil, fmt.Errorf("dataset: %s has %d samples but %s has %d", hypPath, len(hyps), refPath, len(refs))
	}
	samples := make([]Sample, len(hyps))
	for i := range hyps {
		samples[i] = Sample{Hyp: hyps[i], Ref: refs[i]}
	}
	return &Training{Samples: samples}, nil
}

// Eval is an ordered sequence of unscored lattices, used for
// development and test decoding (--devel-spc, --test-spc).
type Eval struct {
	Lattices []*fst.Lattice
}

// LoadEval loads a file of lattices with multiplier 0.
func LoadEval(path string, m *model.Model) (*Eval, error) {
	lats, err := loadFile(path, m, 0)
	if err != nil {
		return nil, err
	}
	return &Eval{Lattices: lats}, nil
}

func loadFile(path string, m *model.Model, multiplier int8) ([]*fst.Lattice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return fst.Load(f, m, multiplier)
}
