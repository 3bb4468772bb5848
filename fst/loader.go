package fst

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/teatak/wfstrain/model"
)

// sampleBuilder is the per-sample bump allocator and arc accumulator
// described in spec.md §4.5: state identifiers are arbitrary strings,
// assigned dense indices in first-appearance order, except that the
// literal identifier "0" is always pinned to index 0.
type sampleBuilder struct {
	ids  map[string]int
	next int
	arcs []Arc
}

func newSampleBuilder() *sampleBuilder {
	return &sampleBuilder{ids: map[string]int{"0": 0}, next: 1}
}

func (b *sampleBuilder) resolve(id string) int {
	if i, ok := b.ids[id]; ok {
		return i
	}
	i := b.next
	b.next++
	b.ids[id] = i
	return i
}

// Load reads every sample from r, assigning multiplier to each
// resulting lattice, interning labels through m's source/target
// vocabularies and string pool. Implements the text format of
// spec.md §6 and the loader semantics of §4.5.
func Load(r io.Reader, m *model.Model, multiplier int8) ([]*Lattice, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 1<<20)
	scanner.Buffer(buf, 1<<20)

	var lattices []*Lattice
	b := newSampleBuilder()
	finalID := ""
	haveFinal := false
	lineNo := 0

	flush := func() error {
		if !haveFinal {
			return fmt.Errorf("fst: line %d: sample ended without a final state", lineNo)
		}
		if len(b.arcs) == 0 {
			return fmt.Errorf("fst: line %d: sample has no arcs", lineNo)
		}
		finalIdx := b.resolve(finalID)
		lat, err := build(b.arcs, b.next, finalIdx, multiplier)
		if err != nil {
			return fmt.Errorf("fst: line %d: %w", lineNo, err)
		}
		lattices = append(lattices, lat)
		b = newSampleBuilder()
		finalID = ""
		haveFinal = false
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "EOS" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}

		fields := strings.Fields(line)
		switch {
		case len(fields) == 1:
			if haveFinal {
				return nil, fmt.Errorf("fst: line %d: duplicate final state", lineNo)
			}
			finalID = fields[0]
			haveFinal = true
		case len(fields) >= 4:
			arc, err := parseArcLine(fields, m, b)
			if err != nil {
				return nil, fmt.Errorf("fst: line %d: %w", lineNo, err)
			}
			b.arcs = append(b.arcs, arc)
		default:
			return nil, fmt.Errorf("fst: line %d: format error (arc line needs >= 4 fields, got %d)", lineNo, len(fields))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if haveFinal || len(b.arcs) > 0 {
		return nil, fmt.Errorf("fst: line %d: unterminated sample (missing EOS)", lineNo)
	}
	return lattices, nil
}

func parseArcLine(fields []string, m *model.Model, b *sampleBuilder) (Arc, error) {
	var a Arc
	a.Src = b.resolve(fields[0])
	a.Trg = b.resolve(fields[1])
	a.ILbl = m.Source.Intern(m.Pool, fields[2])
	a.OLbl = m.Target.Intern(m.Pool, fields[3])

	weights := fields[4:]
	if len(weights) > model.MaxReal {
		return a, fmt.Errorf("format error: %d real weights exceeds MAX_REAL=%d", len(weights), model.MaxReal)
	}
	for i, w := range weights {
		f, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return a, fmt.Errorf("format error: bad real weight %q: %w", w, err)
		}
		a.Wgh[i] = f
	}
	return a, nil
}

func build(arcs []Arc, numStates, finalID int, multiplier int8) (*Lattice, error) {
	states := make([]State, numStates)
	initial, final, fwd, bwd, err := sortLattice(states, arcs)
	if err != nil {
		return nil, err
	}
	if final != finalID {
		return nil, fmt.Errorf("format error: declared final state resolves to %d but the unique sink is %d", finalID, final)
	}
	return &Lattice{
		States:       states,
		Arcs:         arcs,
		Multiplier:   multiplier,
		Initial:      initial,
		Final:        final,
		fwdOrder:     fwd,
		bwdOrder:     bwd,
		hasAdjacency: true,
	}, nil
}
