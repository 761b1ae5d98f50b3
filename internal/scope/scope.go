package scope

import (
	"slices"

	"github.com/roach88/deduce/internal/ir"
)

// Scope is the planner's view of which variables are bound at a point in a
// rule body. Marking a variable bound records no value: it is the
// bound-without-value sentinel the planner needs to order conjuncts.
type Scope struct {
	parent *Scope
	cursor *Cursor
	bound  map[ir.VarID]ir.Variable
}

// New returns a root scope with the given variables bound.
func New(bound ...ir.Variable) *Scope {
	s := &Scope{bound: make(map[ir.VarID]ir.Variable)}
	for _, v := range bound {
		s.Bind(v)
	}
	return s
}

// Child returns a scope nested in s whose local variables resolve into s
// through cursor.
func (s *Scope) Child(cursor *Cursor) *Scope {
	return &Scope{parent: s, cursor: cursor, bound: make(map[ir.VarID]ir.Variable)}
}

// Bind marks v bound in this scope. The blank variable is never bound.
func (s *Scope) Bind(v ir.Variable) {
	if v.IsBlank() {
		return
	}
	s.bound[v.ID] = v
}

// IsBound reports whether v is bound locally, or any variable it aliases
// (transitively) is bound in an enclosing scope.
func (s *Scope) IsBound(v ir.Variable) bool {
	if v.IsBlank() {
		return false
	}
	if _, ok := s.bound[v.ID]; ok {
		return true
	}
	if s.parent == nil || !s.cursor.Has(v) {
		return false
	}
	for _, remote := range s.cursor.Enumerate(v) {
		if s.parent.IsBound(remote) {
			return true
		}
	}
	return false
}

// IsBoundTerm reports whether t is a scalar or a bound variable.
func (s *Scope) IsBoundTerm(t ir.Term) bool {
	switch val := t.(type) {
	case nil:
		return false
	case ir.Variable:
		return s.IsBound(val)
	default:
		return true
	}
}

// Clone returns a copy of s sharing the parent chain.
func (s *Scope) Clone() *Scope {
	out := &Scope{parent: s.parent, cursor: s.cursor, bound: make(map[ir.VarID]ir.Variable, len(s.bound))}
	for id, v := range s.bound {
		out.bound[id] = v
	}
	return out
}

// Bound returns the locally bound variables ordered by ID.
func (s *Scope) Bound() []ir.Variable {
	out := make([]ir.Variable, 0, len(s.bound))
	for _, v := range s.bound {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b ir.Variable) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}
