package fst

import (
	"github.com/teatak/wfstrain/model"
	"github.com/teatak/wfstrain/pattern"
)

// Generate materializes lat's per-arc unigram and per-state bigram
// feature lists against patterns, implementing spec.md §4.3's
// per-lattice feature list materialization. countFrequency is passed
// straight through to model.AddFeature; callers pass true only on the
// configured "frequency side" lattice of a sample.
func Generate(lat *Lattice, m *model.Model, patterns *pattern.Set, countFrequency bool) {
	for i := range lat.Arcs {
		a := &lat.Arcs[i]
		a.Unigram = a.Unigram[:0]
		for _, p := range patterns.Unigram {
			hashes := p.UnigramHashes(a.ILbl, a.OLbl)
			if f, ok := m.AddFeature(p.Tag, hashes, countFrequency); ok {
				a.Unigram = append(a.Unigram, f)
			}
		}
		for slot, tag := range m.DenseTags {
			if tag < 0 || slot == 0 {
				continue
			}
			a.DenseFtrs[slot], _ = m.DenseFeature(tag)
		}
	}

	for si := range lat.States {
		st := &lat.States[si]
		if len(st.In) == 0 || len(st.Out) == 0 || len(patterns.Bigram) == 0 {
			continue
		}
		st.ensureBigram()
		for i, inIdx := range st.In {
			in := &lat.Arcs[inIdx]
			for o, outIdx := range st.Out {
				out := &lat.Arcs[outIdx]
				cell := st.Bigram(i, o)
				cell.Ftrs = cell.Ftrs[:0]
				for _, p := range patterns.Bigram {
					hashes := p.BigramHashes(in.ILbl, in.OLbl, out.ILbl, out.OLbl)
					if f, ok := m.AddFeature(p.Tag, hashes, countFrequency); ok {
						cell.Ftrs = append(cell.Ftrs, f)
					}
				}
			}
		}
	}
}
