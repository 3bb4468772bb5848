package fst

import "fmt"

// buildAdjacency implements fst_add_states: derives each state's
// in-arc and out-arc index lists from the flat arc array, and checks
// that exactly one state has no incoming arcs and exactly one has no
// outgoing arcs.
func buildAdjacency(states []State, arcs []Arc) (initial, final int, err error) {
	for i := range arcs {
		a := &arcs[i]
		a.OutPos = len(states[a.Src].Out)
		states[a.Src].Out = append(states[a.Src].Out, i)
		a.InPos = len(states[a.Trg].In)
		states[a.Trg].In = append(states[a.Trg].In, i)
	}

	initial, final = -1, -1
	noIn, noOut := 0, 0
	for i := range states {
		if len(states[i].In) == 0 {
			noIn++
			initial = i
		}
		if len(states[i].Out) == 0 {
			noOut++
			final = i
		}
	}
	if noIn != 1 {
		return 0, 0, fmt.Errorf("fst invalid: %d states have no incoming arc, want exactly 1", noIn)
	}
	if noOut != 1 {
		return 0, 0, fmt.Errorf("fst invalid: %d states have no outgoing arc, want exactly 1", noOut)
	}
	if initial != 0 {
		return 0, 0, fmt.Errorf("fst invalid: the unique source state is %d, want state id \"0\"", initial)
	}
	return initial, final, nil
}

// topoSort implements fst_add_sort: a Kahn's-algorithm topological
// sort of arcs driven by per-state in/out degree (counted in arcs,
// not distinct neighbor states). forward=true sorts so that every
// arc's source state's in-arcs all appear strictly earlier; forward=
// false sorts the dual way, by out-degree from the sink backward. A
// result shorter than len(arcs) means the lattice contains a cycle.
func topoSort(states []State, arcs []Arc, forward bool) ([]int, bool) {
	n := len(states)
	degree := make([]int, n)
	for i := range states {
		if forward {
			degree[i] = len(states[i].In)
		} else {
			degree[i] = len(states[i].Out)
		}
	}

	queue := make([]int, 0, n)
	for i, d := range degree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(arcs))
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		var frontier []int
		if forward {
			frontier = states[v].Out
		} else {
			frontier = states[v].In
		}
		for _, arcIdx := range frontier {
			order = append(order, arcIdx)
			var next int
			if forward {
				next = arcs[arcIdx].Trg
			} else {
				next = arcs[arcIdx].Src
			}
			degree[next]--
			if degree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order, len(order) == len(arcs)
}

// sortLattice runs buildAdjacency then computes both topological
// arc orderings, reporting a format error if the lattice is not a
// single-source, single-sink DAG.
func sortLattice(states []State, arcs []Arc) (initial, final int, fwd, bwd []int, err error) {
	initial, final, err = buildAdjacency(states, arcs)
	if err != nil {
		return 0, 0, nil, nil, err
	}

	fwd, ok := topoSort(states, arcs, true)
	if !ok {
		return 0, 0, nil, nil, fmt.Errorf("fst invalid: cycle detected (forward order covers %d/%d arcs)", len(fwd), len(arcs))
	}
	bwd, ok = topoSort(states, arcs, false)
	if !ok {
		return 0, 0, nil, nil, fmt.Errorf("fst invalid: cycle detected (backward order covers %d/%d arcs)", len(bwd), len(arcs))
	}
	return initial, final, fwd, bwd, nil
}

// EnsureTopology rebuilds whatever the cache discipline of spec.md
// §4.6 dropped since this lattice was last used: adjacency (if cache
// level < 1 dropped it) and the topological orderings (if cache level
// < 2 dropped them). A lattice straight out of Load already has both,
// so this is a no-op in the default (cache-level-4) configuration;
// every caller that runs a pass over a lattice (the gradient engine,
// the decoder) calls this first so a lower cache level only costs
// recomputation time, never correctness.
func (f *Lattice) EnsureTopology() error {
	if !f.hasAdjacency {
		for i := range f.States {
			f.States[i].In = nil
			f.States[i].Out = nil
		}
		initial, final, err := buildAdjacency(f.States, f.Arcs)
		if err != nil {
			return err
		}
		if initial != f.Initial || final != f.Final {
			return fmt.Errorf("fst invalid: rebuilt initial/final (%d,%d) does not match loaded (%d,%d)", initial, final, f.Initial, f.Final)
		}
		f.hasAdjacency = true
		f.fwdOrder, f.bwdOrder = nil, nil
	}
	if f.fwdOrder == nil || f.bwdOrder == nil {
		fwd, ok := topoSort(f.States, f.Arcs, true)
		if !ok {
			return fmt.Errorf("fst invalid: cycle detected rebuilding forward order")
		}
		bwd, ok := topoSort(f.States, f.Arcs, false)
		if !ok {
			return fmt.Errorf("fst invalid: cycle detected rebuilding backward order")
		}
		f.fwdOrder, f.bwdOrder = fwd, bwd
	}
	return nil
}
