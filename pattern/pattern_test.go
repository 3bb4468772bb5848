package pattern

import (
	"testing"

	"github.com/teatak/wfstrain/label"
	"github.com/teatak/wfstrain/strpool"
)

func mkLabel(pool *strpool.Pool, v *label.Vocab, s string) *label.Label {
	return v.Intern(pool, s)
}

func TestCompileUnigramPlain(t *testing.T) {
	pool := strpool.New(false)
	p, err := Compile(pool, "0:u:0s0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Tag != 0 || !p.HasName || p.Kind != Unigram || len(p.Items) != 1 {
		t.Fatalf("Compile result = %+v", p)
	}
}

func TestCompileNoTagNoName(t *testing.T) {
	pool := strpool.New(false)
	p, err := Compile(pool, "0s0,0t0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Tag != 0 || p.HasName || len(p.Items) != 2 {
		t.Fatalf("Compile result = %+v", p)
	}
}

func TestCompileTagOnlyDisambiguatedFromName(t *testing.T) {
	pool := strpool.New(false)
	p, err := Compile(pool, "5:0s0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Tag != 5 || p.HasName {
		t.Fatalf("Compile result = %+v, want tag=5 no name", p)
	}

	p2, err := Compile(pool, "mine:0s0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p2.Tag != 0 || !p2.HasName {
		t.Fatalf("Compile result = %+v, want tag=0 with name", p2)
	}
}

func TestBigramDetectedWhenMixingArcs(t *testing.T) {
	pool := strpool.New(false)
	p, err := Compile(pool, "0s0,1s0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Kind != Bigram {
		t.Fatalf("Kind = %v, want Bigram", p.Kind)
	}
}

func TestBigramReferencingOnlyArc1NormalizesToUnigram(t *testing.T) {
	pool := strpool.New(false)
	p, err := Compile(pool, "1s0,1t0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if p.Kind != Unigram {
		t.Fatalf("Kind = %v, want Unigram after normalization", p.Kind)
	}
	for _, it := range p.Items {
		if it.Arc1 != 0 {
			t.Fatalf("item arc not normalized to 0: %+v", it)
		}
	}
}

func TestCompileRejectsBadTag(t *testing.T) {
	pool := strpool.New(false)
	if _, err := Compile(pool, "999:0s0"); err == nil {
		t.Fatal("Compile accepted out-of-range tag")
	}
}

func TestCompileRejectsMalformedItem(t *testing.T) {
	pool := strpool.New(false)
	if _, err := Compile(pool, "2x0"); err == nil {
		t.Fatal("Compile accepted malformed item")
	}
}

// TestEqualityItemDistinguishesTrueFalse is spec.md §8 scenario S3:
// arc "foo foo" fires the true feature, arc "foo bar" fires the false
// feature, and the two are distinct feature hash sequences.
func TestEqualityItemDistinguishesTrueFalse(t *testing.T) {
	pool := strpool.New(false)
	vocab := label.NewVocab()
	p, err := Compile(pool, "0:eq:0s0=0t0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	fooFoo := p.UnigramHashes(mkLabel(pool, vocab, "foo"), mkLabel(pool, vocab, "foo"))
	fooBar := p.UnigramHashes(mkLabel(pool, vocab, "foo"), mkLabel(pool, vocab, "bar"))

	if len(fooFoo) != 2 || len(fooBar) != 2 {
		t.Fatalf("expected name hash + 1 item hash, got %v and %v", fooFoo, fooBar)
	}
	if fooFoo[1] != p.trueHash {
		t.Fatalf("foo/foo item hash = %x, want trueHash %x", fooFoo[1], p.trueHash)
	}
	if fooBar[1] != p.falseHash {
		t.Fatalf("foo/bar item hash = %x, want falseHash %x", fooBar[1], p.falseHash)
	}
	if fooFoo[1] == fooBar[1] {
		t.Fatal("true and false outcomes produced the same hash")
	}
}

func TestUnigramHashesStableAcrossCalls(t *testing.T) {
	pool := strpool.New(false)
	vocab := label.NewVocab()
	p, _ := Compile(pool, "0s0")
	a := p.UnigramHashes(mkLabel(pool, vocab, "a"), mkLabel(pool, vocab, "b"))
	c := p.UnigramHashes(mkLabel(pool, vocab, "a"), mkLabel(pool, vocab, "b"))
	if len(a) != 1 || a[0] != c[0] {
		t.Fatalf("UnigramHashes not stable: %v vs %v", a, c)
	}
}

func TestBigramHashesUseCorrectArcSide(t *testing.T) {
	pool := strpool.New(false)
	vocab := label.NewVocab()
	p, err := Compile(pool, "0s0,1s0")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	in := mkLabel(pool, vocab, "in")
	out := mkLabel(pool, vocab, "out")
	hashes := p.BigramHashes(in, in, out, out)
	if len(hashes) != 2 {
		t.Fatalf("expected 2 item hashes, got %d", len(hashes))
	}
	if hashes[0] == hashes[1] {
		t.Fatal("incoming and outgoing arc token hashes collided unexpectedly")
	}
}

func TestSetAddFilesByKind(t *testing.T) {
	pool := strpool.New(false)
	var s Set
	if err := s.Add(pool, "0s0"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(pool, "0s0,1s0"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(s.Unigram) != 1 || len(s.Bigram) != 1 {
		t.Fatalf("Set = %+v", s)
	}
}
