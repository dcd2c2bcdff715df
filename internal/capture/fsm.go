package capture

import (
	"fmt"
	"sync"
)

// Transition is one edge of a phase machine.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Machine is a strict transition-table runner: firing an event with no
// matching edge for the current state is an error, not a no-op.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	edges map[string]S
}

// NewMachine builds a machine from an edge list. Duplicate (from, event)
// pairs are rejected.
func NewMachine[S ~string, E ~string](initial S, edges []Transition[S, E]) (*Machine[S, E], error) {
	idx := make(map[string]S, len(edges))
	for _, t := range edges {
		k := edgeKey(t.From, t.Event)
		if _, dup := idx[k]; dup {
			return nil, fmt.Errorf("capture: duplicate transition %s on %s", t.From, t.Event)
		}
		idx[k] = t.To
	}
	return &Machine[S, E]{state: initial, edges: idx}, nil
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies an event and returns the new state.
func (m *Machine[S, E]) Fire(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	to, ok := m.edges[edgeKey(m.state, event)]
	if !ok {
		return m.state, fmt.Errorf("capture: invalid transition from %s on %s", m.state, event)
	}
	m.state = to
	return to, nil
}

func edgeKey[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
