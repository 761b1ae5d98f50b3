package ir

import (
	"strconv"
	"sync/atomic"
)

// VarID identifies a Variable. IDs are allocated from a process-wide
// monotonic counter, so two variables are the same iff their IDs match.
type VarID uint64

// BlankID is the reserved ID of the blank variable.
const BlankID VarID = 0

// nextVarID is the monotonic allocator behind NewVariable.
// The first allocated variable gets ID 1; 0 stays reserved for Blank.
var nextVarID atomic.Uint64

// Term is a Variable or a Scalar.
type Term interface {
	term() // Sealed - only Variable and the scalar types implement it
}

// Variable is an identity-bearing placeholder for a Scalar.
//
// Name is only used for diagnostics; equality is ID-based. Variables are
// created once per syntactic reference and live for the lifetime of the
// compiled rule that owns them.
type Variable struct {
	ID   VarID
	Name string
}

func (Variable) term() {}

// Blank matches anything and is never written into a Frame.
var Blank = Variable{ID: BlankID, Name: "_"}

// NewVariable allocates a fresh variable.
// Calls are linearizable - each call returns a unique ID.
func NewVariable(name string) Variable {
	return Variable{ID: VarID(nextVarID.Add(1)), Name: name}
}

// IsBlank reports whether v is the blank variable.
func (v Variable) IsBlank() bool {
	return v.ID == BlankID
}

// String renders the variable as ?name (or ?#id when anonymous).
func (v Variable) String() string {
	if v.IsBlank() {
		return "?_"
	}
	if v.Name == "" {
		return "?#" + strconv.FormatUint(uint64(v.ID), 10)
	}
	return "?" + v.Name
}

// AsVariable reports whether t is a Variable.
func AsVariable(t Term) (Variable, bool) {
	v, ok := t.(Variable)
	return v, ok
}

// AsScalar reports whether t is a Scalar.
func AsScalar(t Term) (Scalar, bool) {
	s, ok := t.(Scalar)
	return s, ok
}

// FormatTerm renders a term for diagnostics.
func FormatTerm(t Term) string {
	switch val := t.(type) {
	case nil:
		return "?_"
	case Variable:
		return val.String()
	case interface{ String() string }:
		return val.String()
	default:
		return "?"
	}
}
