package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/projection"
	"github.com/roach88/deduce/internal/syntax"
)

// Unit is a compiled rules document: the rule program plus named queries.
type Unit struct {
	Program *syntax.Program
	Queries []*Query
}

// Query is a named application of a rule with an optional output shape.
type Query struct {
	Name        string
	Application *syntax.RuleApplication
	Select      *projection.Shape

	// Vars maps every variable name the query mentions to its Variable, so
	// callers can bind arguments by name.
	Vars map[string]ir.Variable
}

// Query returns the query named name.
func (u *Unit) Query(name string) (*Query, bool) {
	for _, q := range u.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return nil, false
}

// CompileString compiles CUE source text.
func CompileString(src string) (*Unit, error) {
	return CompileBytes("rules.cue", []byte(src))
}

// CompileBytes compiles one CUE file.
func CompileBytes(filename string, src []byte) (*Unit, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileBytes(src, cue.Filename(filename)))
}

// Compile parses the rule and query declarations of a CUE value.
//
// Rules are compiled in dependency order, so a rule may apply rules declared
// anywhere in the document. Rules that apply each other are rejected; a rule
// that needs itself must say so with recur.
func Compile(v cue.Value) (*Unit, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decls := make(map[string]cue.Value)
	graph := newDependencyGraph()

	rulesVal := lookup(v, "rule")
	if rulesVal.Exists() {
		iter, err := rulesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := label(iter)
			decls[name] = iter.Value()
			graph.add(name, ruleDeps(iter.Value()))
		}
	}

	order, err := compileOrder(graph)
	if err != nil {
		var pos cue.Value
		if ce, ok := err.(*syntax.CompileError); ok {
			pos = decls[ce.Rule]
		}
		return nil, at("rule", pos.Pos(), err)
	}

	prog := syntax.NewProgram()
	for _, name := range order {
		rule, err := CompileRule(prog, name, decls[name])
		if err != nil {
			return nil, err
		}
		if _, err := prog.Add(rule); err != nil {
			return nil, at("rule."+name, decls[name].Pos(), err)
		}
	}

	unit := &Unit{Program: prog}

	queriesVal := lookup(v, "query")
	if queriesVal.Exists() {
		iter, err := queriesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			q, err := CompileQuery(prog, label(iter), iter.Value())
			if err != nil {
				return nil, err
			}
			unit.Queries = append(unit.Queries, q)
		}
	}

	return unit, nil
}

// CompileQuery parses query: <name>: {rule, match, select?}.
func CompileQuery(prog *syntax.Program, name string, v cue.Value) (*Query, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	path := "query." + name
	vs := variables{}

	ruleVal := lookup(v, fieldRule)
	if !ruleVal.Exists() {
		return nil, &CompileError{
			Field:   path + ".rule",
			Message: "rule is required",
			Pos:     v.Pos(),
		}
	}
	ruleName, err := ruleVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	match, err := parseTerms(lookup(v, fieldMatch), vs, path+".match")
	if err != nil {
		return nil, err
	}
	app, err := prog.Apply(ruleName, match)
	if err != nil {
		return nil, at(path, v.Pos(), err)
	}

	q := &Query{Name: name, Application: app, Vars: make(map[string]ir.Variable, len(vs))}
	for n, variable := range vs {
		q.Vars[n] = variable
	}

	selectVal := lookup(v, "select")
	if selectVal.Exists() {
		raw, err := decode(selectVal, path+".select")
		if err != nil {
			return nil, err
		}
		doc, ok := raw.(map[string]any)
		if !ok {
			return nil, &CompileError{
				Field:   path + ".select",
				Message: "select must be a struct of output fields",
				Pos:     selectVal.Pos(),
			}
		}
		shape, err := projection.Parse(doc, vs.resolve)
		if err != nil {
			return nil, &CompileError{Field: path + ".select", Message: err.Error(), Pos: selectVal.Pos()}
		}
		for _, variable := range shape.Vars() {
			if _, ok := q.Vars[variable.Name]; !ok {
				return nil, &CompileError{
					Field:   path + ".select",
					Message: fmt.Sprintf("%s is not mentioned in the query's match", variable),
					Pos:     selectVal.Pos(),
				}
			}
		}
		q.Select = shape
	}

	return q, nil
}

// Names returns the names of the query's variables, sorted.
func (q *Query) Names() []string {
	names := make([]string, 0, len(q.Vars))
	for name := range q.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind builds the caller frame from arguments given by variable name.
func (q *Query) Bind(args map[string]any) (ir.Frame, error) {
	f := ir.NewFrame()
	for name, raw := range args {
		variable, ok := q.Vars[name]
		if !ok {
			return f, fmt.Errorf("query %q has no variable ?%s", q.Name, name)
		}
		value, err := ir.FromAny(raw)
		if err != nil {
			return f, fmt.Errorf("argument %s: %w", name, err)
		}
		if f, err = f.Bind(variable, value); err != nil {
			return f, fmt.Errorf("argument %s: %w", name, err)
		}
	}
	return f, nil
}
