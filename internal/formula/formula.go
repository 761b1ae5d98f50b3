// Package formula is the registry of pure operators usable in rule bodies.
//
// An operator reads named input slots and returns zero or more results, each
// a set of named output scalars. Zero results means the operator rejected
// its input; comparisons and type guards work that way.
package formula

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/deduce/internal/ir"
)

// Value is the resolved content of an input slot: a single scalar or, when
// the slot was written as a list, every element in order.
type Value struct {
	Scalar ir.Scalar
	List   []ir.Scalar
	IsList bool
}

// Single wraps one scalar.
func Single(s ir.Scalar) Value {
	return Value{Scalar: s}
}

// List wraps a list of scalars.
func List(items ...ir.Scalar) Value {
	return Value{List: items, IsList: true}
}

// Items returns the list elements, or the single scalar as a one-element list.
func (v Value) Items() []ir.Scalar {
	if v.IsList {
		return v.List
	}
	if v.Scalar == nil {
		return nil
	}
	return []ir.Scalar{v.Scalar}
}

// Args are the resolved inputs of one invocation.
type Args map[string]Value

// Scalar returns the single scalar in slot name.
func (a Args) Scalar(name string) (ir.Scalar, bool) {
	v, ok := a[name]
	if !ok || v.IsList || v.Scalar == nil {
		return nil, false
	}
	return v.Scalar, true
}

// Result is one output row.
type Result map[string]ir.Scalar

// Func implements an operator.
type Func func(Args) []Result

// Slot declares an input slot.
type Slot struct {
	Name     string
	Optional bool
}

// Operator is a registered formula.
type Operator struct {
	Name    string
	Inputs  []Slot
	Outputs []string
	fn      Func
}

// Apply invokes the operator.
func (o *Operator) Apply(args Args) []Result {
	return o.fn(args)
}

// IsInput reports whether name is an input slot.
func (o *Operator) IsInput(name string) bool {
	return slices.ContainsFunc(o.Inputs, func(s Slot) bool { return s.Name == name })
}

// IsOutput reports whether name is an output slot.
func (o *Operator) IsOutput(name string) bool {
	return slices.Contains(o.Outputs, name)
}

var registry = map[string]*Operator{}

func register(name string, inputs []Slot, outputs []string, fn Func) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("formula: operator %q registered twice", name))
	}
	registry[name] = &Operator{Name: name, Inputs: inputs, Outputs: outputs, fn: fn}
}

// Lookup returns the operator registered under name.
func Lookup(name string) (*Operator, bool) {
	op, ok := registry[name]
	return op, ok
}

// Names returns every registered operator name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func required(names ...string) []Slot {
	slots := make([]Slot, len(names))
	for i, n := range names {
		slots[i] = Slot{Name: n}
	}
	return slots
}

// one returns a single result with the "is" output.
func one(s ir.Scalar) []Result {
	return []Result{{"is": s}}
}

// pass returns a single result with no outputs.
func pass() []Result {
	return []Result{{}}
}
