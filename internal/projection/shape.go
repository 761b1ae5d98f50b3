// Package projection turns terminal frames into user-facing records.
//
// A Shape names the output fields. Each field is a term read from the frame,
// a nested shape, or a Collect aggregate. Frames that agree on every
// non-aggregate field are merged into one record whose aggregate fields hold
// the content-deduplicated values of all merged frames.
package projection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/deduce/internal/ir"
)

// Node is one output position of a shape.
//
// This is a sealed interface: Value, *Shape and Collect implement it.
type Node interface {
	node()
	String() string
}

// Value reads a term from the frame. Unbound variables are omitted from the
// record.
type Value struct {
	Term ir.Term
}

// Collect gathers the values of Of across merged frames into an array.
type Collect struct {
	Of Node
}

// Field is a named node.
type Field struct {
	Name string
	Node Node
}

// Shape is an ordered list of named output fields.
type Shape struct {
	Fields []Field
}

func (Value) node()   {}
func (*Shape) node()  {}
func (Collect) node() {}

// NewShape builds a shape from a name → node map, ordering fields by name.
func NewShape(fields map[string]Node) *Shape {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	s := &Shape{Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		s.Fields = append(s.Fields, Field{Name: name, Node: fields[name]})
	}
	return s
}

// Of returns the shape that projects every variable under its own name.
func Of(vars map[string]ir.Variable) *Shape {
	fields := make(map[string]Node, len(vars))
	for name, v := range vars {
		fields[name] = Value{Term: v}
	}
	return NewShape(fields)
}

func (v Value) String() string { return ir.FormatTerm(v.Term) }

func (c Collect) String() string { return "[" + c.Of.String() + "]" }

func (s *Shape) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ": " + f.Node.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Vars returns the variables the shape reads, in field order.
func (s *Shape) Vars() []ir.Variable {
	var out []ir.Variable
	seen := make(map[ir.VarID]bool)
	var walk func(Node)
	walk = func(n Node) {
		switch node := n.(type) {
		case Value:
			if v, ok := ir.AsVariable(node.Term); ok && !v.IsBlank() && !seen[v.ID] {
				seen[v.ID] = true
				out = append(out, v)
			}
		case *Shape:
			for _, f := range node.Fields {
				walk(f.Node)
			}
		case Collect:
			walk(node.Of)
		}
	}
	walk(s)
	return out
}

// Parse builds a shape from a decoded select document: strings and scalars
// become values, maps become nested shapes, and a one-element list marks a
// Collect aggregate.
func Parse(doc map[string]any, resolve func(name string) ir.Variable) (*Shape, error) {
	fields := make(map[string]Node, len(doc))
	for name, raw := range doc {
		node, err := parseNode(raw, resolve)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", name, err)
		}
		fields[name] = node
	}
	return NewShape(fields), nil
}

func parseNode(raw any, resolve func(name string) ir.Variable) (Node, error) {
	switch val := raw.(type) {
	case []any:
		if len(val) != 1 {
			return nil, fmt.Errorf("aggregate must hold exactly one member, got %d", len(val))
		}
		of, err := parseNode(val[0], resolve)
		if err != nil {
			return nil, err
		}
		return Collect{Of: of}, nil
	case map[string]any:
		if _, err := ir.FromAny(val); err == nil {
			break
		}
		return Parse(val, resolve)
	}
	t, err := ir.ParseTerm(raw, resolve)
	if err != nil {
		return nil, err
	}
	return Value{Term: t}, nil
}
