// Package pattern compiles feature-template strings (spec.md §4.3)
// into a small fixed intermediate representation and evaluates them
// against arc labels. Per DESIGN NOTES §9 ("produce a compiled
// intermediate representation... stop touching the source string
// thereafter"), Compile does all string parsing up front; Eval-time
// code only ever touches Item and the precomputed name/true/false
// hashes.
package pattern

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/teatak/wfstrain/label"
	"github.com/teatak/wfstrain/strpool"
)

// Kind distinguishes a pattern that fires once per arc from one that
// fires once per (incoming arc, outgoing arc) pair at a state.
type Kind int

const (
	Unigram Kind = iota
	Bigram
)

func (k Kind) String() string {
	if k == Bigram {
		return "bigram"
	}
	return "unigram"
}

// Item is one compiled template item: a token reference (arc, side,
// token index), or — when Eq is set — an equality test between two
// such references.
type Item struct {
	Eq bool

	Arc1  int
	Side1 byte // 's' (input/source label) or 't' (output/target label)
	Tok1  int

	Arc2  int
	Side2 byte
	Tok2  int
}

// Pattern is one compiled feature template.
type Pattern struct {
	Raw  string
	Tag  int
	Kind Kind
	Items []Item

	HasName  bool
	NameHash uint64

	trueHash  uint64
	falseHash uint64
}

// Compile parses src in the grammar `[tag:][name:]item[,item]*`, each
// item `AST[=AST]` written without separators, e.g. "0s0" or
// "0s0=0t0". tag, if present, must parse as an integer in 0..127 and
// is distinguished from name by trying to parse the first colon
// segment as an integer first; a name present without a leading
// numeric tag defaults the tag to 0. The name and the fixed "true"
// and "false" equality-item values are interned into pool immediately
// so later evaluation never touches strings again.
func Compile(pool *strpool.Pool, src string) (*Pattern, error) {
	parts := strings.SplitN(src, ":", 3)

	var tagStr, name, itemsStr string
	switch len(parts) {
	case 1:
		itemsStr = parts[0]
	case 2:
		if _, err := strconv.Atoi(parts[0]); err == nil {
			tagStr, itemsStr = parts[0], parts[1]
		} else {
			name, itemsStr = parts[0], parts[1]
		}
	case 3:
		tagStr, name, itemsStr = parts[0], parts[1], parts[2]
	}

	tag := 0
	if tagStr != "" {
		t, err := strconv.Atoi(tagStr)
		if err != nil || t < 0 || t > 127 {
			return nil, fmt.Errorf("pattern: %q: bad tag %q", src, tagStr)
		}
		tag = t
	}

	if itemsStr == "" {
		return nil, fmt.Errorf("pattern: %q: no items", src)
	}
	itemStrs := strings.Split(itemsStr, ",")
	items := make([]Item, len(itemStrs))
	for i, is := range itemStrs {
		it, err := parseItem(is)
		if err != nil {
			return nil, fmt.Errorf("pattern: %q: %w", src, err)
		}
		items[i] = it
	}

	refs0, refs1 := false, false
	for _, it := range items {
		if it.Arc1 == 0 {
			refs0 = true
		} else {
			refs1 = true
		}
		if it.Eq {
			if it.Arc2 == 0 {
				refs0 = true
			} else {
				refs1 = true
			}
		}
	}

	kind := Unigram
	switch {
	case refs1 && !refs0:
		// Bigram pattern referencing only arc 1: normalize down to arc 0.
		for i := range items {
			if items[i].Arc1 == 1 {
				items[i].Arc1 = 0
			}
			if items[i].Eq && items[i].Arc2 == 1 {
				items[i].Arc2 = 0
			}
		}
	case refs1 && refs0:
		kind = Bigram
	}

	p := &Pattern{
		Raw:       src,
		Tag:       tag,
		Kind:      kind,
		Items:     items,
		trueHash:  pool.InternString("true", true),
		falseHash: pool.InternString("false", true),
	}
	if name != "" {
		p.HasName = true
		p.NameHash = pool.InternString(name, true)
	}
	return p, nil
}

func parseItem(s string) (Item, error) {
	halves := strings.SplitN(s, "=", 2)
	var it Item
	arc1, side1, tok1, err := parseRef(halves[0])
	if err != nil {
		return it, err
	}
	it.Arc1, it.Side1, it.Tok1 = arc1, side1, tok1
	if len(halves) == 2 {
		it.Eq = true
		arc2, side2, tok2, err := parseRef(halves[1])
		if err != nil {
			return it, err
		}
		it.Arc2, it.Side2, it.Tok2 = arc2, side2, tok2
	}
	return it, nil
}

func parseRef(s string) (arc int, side byte, tok int, err error) {
	if len(s) < 3 {
		return 0, 0, 0, fmt.Errorf("bad item reference %q", s)
	}
	switch s[0] {
	case '0':
		arc = 0
	case '1':
		arc = 1
	default:
		return 0, 0, 0, fmt.Errorf("bad arc index in %q", s)
	}
	switch s[1] {
	case 's', 't':
		side = s[1]
	default:
		return 0, 0, 0, fmt.Errorf("bad side %q in %q", s[1:2], s)
	}
	tok, err = strconv.Atoi(s[2:])
	if err != nil || tok < 0 {
		return 0, 0, 0, fmt.Errorf("bad token index in %q", s)
	}
	return arc, side, tok, nil
}

// picker resolves an item's arc index to the (input-label,
// output-label) pair that arc carries. For a unigram pattern arc is
// always 0; for a bigram pattern, 0 is the incoming arc and 1 the
// outgoing arc at the state.
type picker func(arc int) (ilbl, olbl *label.Label)

func tokenHash(pick picker, arc int, side byte, tok int) uint64 {
	ilbl, olbl := pick(arc)
	lbl := ilbl
	if side == 't' {
		lbl = olbl
	}
	if lbl == nil || tok >= len(lbl.Tokens) {
		return 0
	}
	return lbl.Tokens[tok]
}

func (p *Pattern) evalItem(it Item, pick picker) uint64 {
	v1 := tokenHash(pick, it.Arc1, it.Side1, it.Tok1)
	if !it.Eq {
		return v1
	}
	v2 := tokenHash(pick, it.Arc2, it.Side2, it.Tok2)
	if v1 == v2 {
		return p.trueHash
	}
	return p.falseHash
}

// Hashes evaluates every item against pick and returns the hash
// sequence to pass to model.AddFeature: the name hash first (if the
// pattern has one), then one hash per item, in order.
func (p *Pattern) Hashes(pick picker) []uint64 {
	out := make([]uint64, 0, len(p.Items)+1)
	if p.HasName {
		out = append(out, p.NameHash)
	}
	for _, it := range p.Items {
		out = append(out, p.evalItem(it, pick))
	}
	return out
}

// UnigramHashes evaluates p (which must have Kind == Unigram) against
// a single arc's labels.
func (p *Pattern) UnigramHashes(ilbl, olbl *label.Label) []uint64 {
	return p.Hashes(func(int) (*label.Label, *label.Label) { return ilbl, olbl })
}

// BigramHashes evaluates p (which must have Kind == Bigram) against
// an incoming/outgoing arc-label pair at a state.
func (p *Pattern) BigramHashes(inIlbl, inOlbl, outIlbl, outOlbl *label.Label) []uint64 {
	return p.Hashes(func(arc int) (*label.Label, *label.Label) {
		if arc == 0 {
			return inIlbl, inOlbl
		}
		return outIlbl, outOlbl
	})
}

// Set is the full compiled collection of patterns used by a training
// or decoding run, split by kind so the generator never has to
// re-inspect Kind on every arc.
type Set struct {
	Unigram []*Pattern
	Bigram  []*Pattern
}

// Add compiles src and files it into the appropriate bucket.
func (s *Set) Add(pool *strpool.Pool, src string) error {
	p, err := Compile(pool, src)
	if err != nil {
		return err
	}
	if p.Kind == Bigram {
		s.Bigram = append(s.Bigram, p)
	} else {
		s.Unigram = append(s.Unigram, p)
	}
	return nil
}
