// Package selection tracks which visible patterns are chosen for targeted
// AI sub-analysis.
package selection

import "sort"

// State is the tri-state summary of a selection, driving the select-all
// toggle.
type State string

const (
	StateNone    State = "none"
	StatePartial State = "partial"
	StateAll     State = "all"
)

// Set tracks indices into the currently rendered (filtered and limited)
// pattern list. Indices have no stable referent across list recomputations,
// so the set must be Reset whenever the visible list changes.
type Set struct {
	visible int
	chosen  map[int]struct{}
}

// New creates an empty selection over a zero-length visible list.
func New() *Set {
	return &Set{chosen: make(map[int]struct{})}
}

// Reset invalidates the selection for a freshly computed visible list of
// the given length.
func (s *Set) Reset(visibleLen int) {
	s.visible = visibleLen
	s.chosen = make(map[int]struct{})
}

// Toggle flips the selection of one visible index. Out-of-range indices are
// ignored.
func (s *Set) Toggle(index int) {
	if index < 0 || index >= s.visible {
		return
	}
	if _, ok := s.chosen[index]; ok {
		delete(s.chosen, index)
	} else {
		s.chosen[index] = struct{}{}
	}
}

// SelectAllVisible selects every index of the visible list.
func (s *Set) SelectAllVisible() {
	for i := 0; i < s.visible; i++ {
		s.chosen[i] = struct{}{}
	}
}

// Clear deselects everything without changing the visible length.
func (s *Set) Clear() {
	s.chosen = make(map[int]struct{})
}

// State compares the selection size to the visible-list length.
func (s *Set) State() State {
	switch {
	case len(s.chosen) == 0:
		return StateNone
	case len(s.chosen) == s.visible:
		return StateAll
	default:
		return StatePartial
	}
}

// Selected reports whether one index is chosen.
func (s *Set) Selected(index int) bool {
	_, ok := s.chosen[index]
	return ok
}

// Len returns the number of chosen indices.
func (s *Set) Len() int {
	return len(s.chosen)
}

// Indices returns the chosen indices in ascending order.
func (s *Set) Indices() []int {
	out := make([]int, 0, len(s.chosen))
	for i := range s.chosen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
