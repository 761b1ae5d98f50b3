package ir

import (
	"errors"
	"slices"
	"strings"
)

// ErrBindingConflict is returned by Frame.Bind when the variable is already
// bound to a different value. It is a per-candidate failure: callers drop the
// candidate frame and move on.
var ErrBindingConflict = errors.New("binding conflict")

// Frame (a match frame) is one consistent candidate solution: a mapping from
// variables to scalars.
//
// Frames are copy-on-write. Bind returns a new frame when it adds a binding
// and never mutates the receiver, so one frame can be shared by many
// pipeline stages, disjunctive branches and fixed-point iterations.
type Frame struct {
	bindings map[VarID]Scalar
}

// NewFrame returns an empty frame.
func NewFrame() Frame {
	return Frame{}
}

// Len returns the number of bound variables.
func (f Frame) Len() int {
	return len(f.bindings)
}

// Get returns the value bound to v. The blank variable is never bound.
func (f Frame) Get(v Variable) (Scalar, bool) {
	return f.Lookup(v.ID)
}

// Lookup returns the value bound to id.
func (f Frame) Lookup(id VarID) (Scalar, bool) {
	if id == BlankID {
		return nil, false
	}
	val, ok := f.bindings[id]
	return val, ok
}

// Resolve returns the scalar a term denotes in this frame: scalars resolve to
// themselves, bound variables to their value.
func (f Frame) Resolve(t Term) (Scalar, bool) {
	switch val := t.(type) {
	case nil:
		return nil, false
	case Variable:
		return f.Get(val)
	case Scalar:
		return val, true
	default:
		return nil, false
	}
}

// Bind unifies v with value.
//
//   - blank variable: no-op
//   - unbound: returns a clone with the new binding
//   - bound to an equal value: no-op
//   - bound to a different value: ErrBindingConflict
//
// This single rule underlies all unification in the engine.
func (f Frame) Bind(v Variable, value Scalar) (Frame, error) {
	if v.IsBlank() {
		return f, nil
	}
	if current, ok := f.bindings[v.ID]; ok {
		if Equal(current, value) {
			return f, nil
		}
		return f, ErrBindingConflict
	}
	next := make(map[VarID]Scalar, len(f.bindings)+1)
	for k, val := range f.bindings {
		next[k] = val
	}
	next[v.ID] = value
	return Frame{bindings: next}, nil
}

// Unify binds t to value when t is a variable, or checks equality when t is
// a scalar. A nil term behaves like the blank variable.
func (f Frame) Unify(t Term, value Scalar) (Frame, error) {
	switch val := t.(type) {
	case nil:
		return f, nil
	case Variable:
		return f.Bind(val, value)
	case Scalar:
		if Equal(val, value) {
			return f, nil
		}
		return f, ErrBindingConflict
	default:
		return f, ErrBindingConflict
	}
}

// Vars returns the bound variable IDs in ascending order.
func (f Frame) Vars() []VarID {
	ids := make([]VarID, 0, len(f.bindings))
	for id := range f.bindings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Project returns a frame restricted to the given variables.
func (f Frame) Project(vars []Variable) Frame {
	out := make(map[VarID]Scalar, len(vars))
	for _, v := range vars {
		if val, ok := f.Get(v); ok {
			out[v.ID] = val
		}
	}
	return Frame{bindings: out}
}

// Equal reports whether two frames bind the same variables to equal values.
func (f Frame) Equal(g Frame) bool {
	if len(f.bindings) != len(g.bindings) {
		return false
	}
	for id, val := range f.bindings {
		other, ok := g.bindings[id]
		if !ok || !Equal(val, other) {
			return false
		}
	}
	return true
}

// String renders the frame with variables in ID order.
func (f Frame) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range f.Vars() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Variable{ID: id}.String())
		b.WriteString(": ")
		b.WriteString(FormatTerm(f.bindings[id]))
	}
	b.WriteByte('}')
	return b.String()
}

// FrameSet is an insertion-ordered set of frames keyed by canonical frame
// identity. Identity is independent of the order bindings were added.
type FrameSet struct {
	buckets map[uint64][]int
	frames  []Frame
}

// NewFrameSet creates an empty set.
func NewFrameSet() *FrameSet {
	return &FrameSet{buckets: make(map[uint64][]int)}
}

// Add inserts f and reports whether it was not already present.
func (s *FrameSet) Add(f Frame) bool {
	h := f.Identity()
	for _, idx := range s.buckets[h] {
		if s.frames[idx].Equal(f) {
			return false
		}
	}
	s.buckets[h] = append(s.buckets[h], len(s.frames))
	s.frames = append(s.frames, f)
	return true
}

// Contains reports whether an equal frame is present.
func (s *FrameSet) Contains(f Frame) bool {
	for _, idx := range s.buckets[f.Identity()] {
		if s.frames[idx].Equal(f) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct frames.
func (s *FrameSet) Len() int {
	return len(s.frames)
}

// Frames returns the frames in insertion order.
func (s *FrameSet) Frames() []Frame {
	return s.frames
}
