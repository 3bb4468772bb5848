package gradient

import (
	"math"
	"strings"
	"testing"

	"github.com/teatak/wfstrain/fst"
	"github.com/teatak/wfstrain/model"
	"github.com/teatak/wfstrain/pattern"
)

func loadOne(t *testing.T, m *model.Model, text string, mult int8) *fst.Lattice {
	t.Helper()
	lats, err := fst.Load(strings.NewReader(text), m, mult)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lats) != 1 {
		t.Fatalf("got %d lattices, want 1", len(lats))
	}
	return lats[0]
}

func newEngine(t *testing.T, m *model.Model, patternSrc string) *Engine {
	t.Helper()
	var ps pattern.Set
	if err := ps.Add(m.Pool, patternSrc); err != nil {
		t.Fatalf("pattern.Add: %v", err)
	}
	return &Engine{Model: m, Patterns: &ps, NThreads: 1, CacheLevel: CacheAll}
}

func featureX(t *testing.T, m *model.Model, tag int, tokens ...string) *model.Ftr {
	t.Helper()
	hashes := make([]uint64, len(tokens))
	for i, tok := range tokens {
		hashes[i] = m.Pool.InternString(tok, true)
	}
	f, ok := m.Features.Find(featureKeyForTest(m, tag, hashes))
	if !ok {
		t.Fatalf("feature for tag=%d tokens=%v not found", tag, tokens)
	}
	return f
}

// featureKeyForTest recomputes the same key AddFeature would have
// produced, so tests can look a feature up by its semantic identity
// rather than by capturing the *Ftr pointer at generation time.
func featureKeyForTest(m *model.Model, tag int, hashes []uint64) uint64 {
	// Mirror model.featureKey without exporting it: generate via
	// AddFeature itself, which is idempotent for an existing feature.
	f, _ := m.AddFeature(tag, hashes, false)
	return keyOf(m, f)
}

func keyOf(m *model.Model, target *model.Ftr) uint64 {
	var found uint64
	m.Features.Range(func(hash uint64, f *model.Ftr) bool {
		if f == target {
			found = hash
			return false
		}
		return true
	})
	return found
}

// TestScenarioS1TrivialSingleArc is spec.md §8 scenario S1.
func TestScenarioS1TrivialSingleArc(t *testing.T) {
	m := model.New()
	eng := newEngine(t, m, "0:u:0s0")

	hyp := loadOne(t, m, "0 1 a b\n1\nEOS\n", 1)
	ll, err := eng.Run([]*fst.Lattice{hyp})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_ = ll

	fa := featureX(t, m, 0, "u", "a")
	if got := fa.G(); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("g[feature(a)] = %v, want 1.0", got)
	}

	m2 := model.New()
	eng2 := newEngine(t, m2, "0:u:0s0")
	hyp2 := loadOne(t, m2, "0 1 a b\n1\nEOS\n", 1)
	ref2 := loadOne(t, m2, "0 1 a b\n1\nEOS\n", -1)
	total, err := eng2.Run([]*fst.Lattice{hyp2, ref2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	fa2 := featureX(t, m2, 0, "u", "a")
	if got := fa2.G(); math.Abs(got) > 1e-9 {
		t.Fatalf("g[feature(a)] with matching reference = %v, want 0", got)
	}
	if math.Abs(total) > 1e-9 {
		t.Fatalf("total log-likelihood contribution = %v, want 0 (Z_hyp - Z_ref)", total)
	}
}

// TestScenarioS2Disagreement is spec.md §8 scenario S2.
func TestScenarioS2Disagreement(t *testing.T) {
	m := model.New()
	eng := newEngine(t, m, "0:u:0s0")

	hyp := loadOne(t, m, "0 1 a x\n0 1 b y\n1\nEOS\n", 1)
	ref := loadOne(t, m, "0 1 a x\n1\nEOS\n", -1)
	if _, err := eng.Run([]*fst.Lattice{hyp, ref}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ga := featureX(t, m, 0, "u", "a").G()
	gb := featureX(t, m, 0, "u", "b").G()

	if math.Abs(ga-(-0.5)) > 1e-9 {
		t.Fatalf("g[feature(a)] = %v, want -0.5", ga)
	}
	if math.Abs(gb-0.5) > 1e-9 {
		t.Fatalf("g[feature(b)] = %v, want 0.5", gb)
	}
}

// TestForwardBackwardConsistency is spec.md §8 property 5.
func TestForwardBackwardConsistency(t *testing.T) {
	m := model.New()
	eng := newEngine(t, m, "0:u:0s0")
	lat := loadOne(t, m, "0 1 a a\n0 2 b b\n1 3 c c\n2 3 d d\n3\nEOS\n", 0)

	fst.Generate(lat, m, eng.Patterns, false)
	// Give the features nonzero weight so alpha/beta are not trivially
	// all-zero.
	for i := range lat.Arcs {
		for _, f := range lat.Arcs[i].Unigram {
			f.SetX(float64(i) + 0.37)
		}
	}
	ComputePsi(lat)
	Forward(lat)
	Backward(lat)

	fwdZ := Z(lat)

	var bwdTerms []float64
	init := &lat.States[lat.Initial]
	for _, idx := range init.Out {
		a := &lat.Arcs[idx]
		bwdTerms = append(bwdTerms, a.Beta+a.Psi)
	}
	bwdZ := fst.LogSumExp(bwdTerms...)

	if math.Abs(fwdZ-bwdZ) > 1e-9 {
		t.Fatalf("forward Z = %v, backward Z = %v, want equal", fwdZ, bwdZ)
	}
}

// TestRunSurvivesCacheDisciplineAcrossIterations is the regression test
// for the cache-discipline bug: with CacheLevel below CacheAll, Run
// drops a lattice's transient state after the first pass. A second
// pass over the same lattice objects (as train.Context.Train performs
// across iterations) must still produce the same result as a single
// pass at CacheAll, rather than silently seeing empty orders.
func TestRunSurvivesCacheDisciplineAcrossIterations(t *testing.T) {
	m := model.New()
	var ps pattern.Set
	if err := ps.Add(m.Pool, "0:u:0s0"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	hyp := loadOne(t, m, "0 1 a x\n0 1 b y\n1\nEOS\n", 1)
	ref := loadOne(t, m, "0 1 a x\n1\nEOS\n", -1)

	eng := &Engine{Model: m, Patterns: &ps, NThreads: 1, CacheLevel: CacheNone}
	lattices := []*fst.Lattice{hyp, ref}

	total1, err := eng.Run(lattices)
	if err != nil {
		t.Fatalf("Run (pass 1): %v", err)
	}
	if len(hyp.FwdOrder()) != 0 {
		t.Fatalf("CacheNone should have dropped FwdOrder after pass 1, got %v", hyp.FwdOrder())
	}

	total2, err := eng.Run(lattices)
	if err != nil {
		t.Fatalf("Run (pass 2): %v", err)
	}

	if math.Abs(total1-total2) > 1e-9 {
		t.Fatalf("pass 1 total = %v, pass 2 total = %v, want equal", total1, total2)
	}
	ga := featureX(t, m, 0, "u", "a").G()
	if math.Abs(ga-(-1.0)) > 1e-9 {
		t.Fatalf("g[feature(a)] after two CacheNone passes = %v, want -1.0 (accumulated over both passes)", ga)
	}
}

// TestGradientFiniteDifference is spec.md §8 property 6.
func TestGradientFiniteDifference(t *testing.T) {
	m := model.New()
	eng := newEngine(t, m, "0:u:0s0")

	hyp := loadOne(t, m, "0 1 a x\n0 1 b y\n1\nEOS\n", 1)
	ref := loadOne(t, m, "0 1 a x\n1\nEOS\n", -1)

	if _, err := eng.Run([]*fst.Lattice{hyp, ref}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	fa := featureX(t, m, 0, "u", "a")
	gk := fa.G()

	const h = 1e-5
	evalAt := func(x float64) float64 {
		fa.SetX(x)
		fst.Generate(hyp, m, eng.Patterns, false)
		fst.Generate(ref, m, eng.Patterns, false)
		ComputePsi(hyp)
		Forward(hyp)
		Backward(hyp)
		ComputePsi(ref)
		Forward(ref)
		Backward(ref)
		return float64(hyp.Multiplier)*Z(hyp) + float64(ref.Multiplier)*Z(ref)
	}

	x0 := fa.X()
	lPlus := evalAt(x0 + h)
	lMinus := evalAt(x0 - h)
	fa.SetX(x0)

	fd := (lPlus - lMinus) / (2 * h)
	if math.Abs(fd-gk) > 1e-4 {
		t.Fatalf("finite-difference gradient = %v, accumulated g = %v", fd, gk)
	}
}
