package compiler

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/syntax"
)

// Conjunct discriminants, checked in this order.
const (
	fieldNot      = "not"
	fieldRecur    = "recur"
	fieldOperator = "operator"
	fieldRule     = "rule"
	fieldMatch    = "match"
)

// variables resolves "?name" references so that every mention of a name
// within one rule (or query) shares a single Variable.
type variables map[string]ir.Variable

func (vs variables) resolve(name string) ir.Variable {
	if v, ok := vs[name]; ok {
		return v
	}
	v := ir.NewVariable(name)
	vs[name] = v
	return v
}

// CompileRule parses a CUE value into a DeductiveRule.
// Rules the body applies must already be in prog.
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: ancestor: { match: {...}, when: {...} }`)
//	rule, err := CompileRule(prog, "ancestor", v.LookupPath(cue.ParsePath("rule.ancestor")))
func CompileRule(prog *syntax.Program, name string, v cue.Value) (*syntax.DeductiveRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	path := "rule." + name
	vs := variables{}

	// Parse match signature (required)
	matchVal := lookup(v, fieldMatch)
	if !matchVal.Exists() {
		return nil, &CompileError{
			Field:   path + ".match",
			Message: "match is required",
			Pos:     v.Pos(),
		}
	}
	signature, err := parseSignature(matchVal, vs, path+".match")
	if err != nil {
		return nil, err
	}

	// Parse when branches (optional; empty means the rule holds as called)
	var branches []syntax.Branch
	whenVal := lookup(v, "when")
	if whenVal.Exists() {
		branches, err = parseWhen(prog, whenVal, vs, path+".when")
		if err != nil {
			return nil, err
		}
	}

	rule, err := syntax.NewDeductiveRule(name, signature, branches)
	if err != nil {
		return nil, at(path, v.Pos(), err)
	}
	return rule, nil
}

// parseSignature reads match: {slot: "?var", ...} in declaration order.
func parseSignature(v cue.Value, vs variables, path string) (syntax.Signature, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var signature syntax.Signature
	for iter.Next() {
		slot := label(iter)
		term, err := parseTerm(iter.Value(), vs, path+"."+slot)
		if err != nil {
			return nil, err
		}
		variable, ok := ir.AsVariable(term)
		if !ok || variable.IsBlank() {
			return nil, &CompileError{
				Field:   path + "." + slot,
				Message: "match slots must name a variable, e.g. \"?" + slot + "\"",
				Pos:     iter.Value().Pos(),
			}
		}
		signature = append(signature, syntax.Param{Name: slot, Var: variable})
	}
	return signature, nil
}

// parseWhen reads the branches of a rule. A struct maps branch names to
// conjunct lists and keeps their declaration order; a bare list is a single
// branch named "when".
func parseWhen(prog *syntax.Program, v cue.Value, vs variables, path string) ([]syntax.Branch, error) {
	if v.IncompleteKind() == cue.ListKind {
		conjuncts, err := parseConjuncts(prog, v, vs, path)
		if err != nil {
			return nil, err
		}
		return []syntax.Branch{{Name: "when", Conjuncts: conjuncts}}, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var branches []syntax.Branch
	for iter.Next() {
		name := label(iter)
		conjuncts, err := parseConjuncts(prog, iter.Value(), vs, path+"."+name)
		if err != nil {
			return nil, err
		}
		branches = append(branches, syntax.Branch{Name: name, Conjuncts: conjuncts})
	}
	return branches, nil
}

func parseConjuncts(prog *syntax.Program, v cue.Value, vs variables, path string) ([]syntax.Conjunct, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   path,
			Message: "branch must be a list of conjuncts",
			Pos:     v.Pos(),
		}
	}

	var conjuncts []syntax.Conjunct
	for i := 0; iter.Next(); i++ {
		c, err := parseConjunct(prog, iter.Value(), vs, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		conjuncts = append(conjuncts, c)
	}
	return conjuncts, nil
}

// parseConjunct dispatches on the discriminant field of a conjunct.
func parseConjunct(prog *syntax.Program, v cue.Value, vs variables, path string) (syntax.Conjunct, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   path,
			Message: "conjunct must be a struct",
			Pos:     v.Pos(),
		}
	}

	switch {
	case lookup(v, fieldNot).Exists():
		operand, err := parseConjunct(prog, lookup(v, fieldNot), vs, path+".not")
		if err != nil {
			return nil, err
		}
		n, err := syntax.NewNegation(operand)
		if err != nil {
			return nil, at(path, v.Pos(), err)
		}
		return n, nil

	case lookup(v, fieldRecur).Exists():
		match, err := parseTerms(lookup(v, fieldRecur), vs, path+".recur")
		if err != nil {
			return nil, err
		}
		return syntax.NewRuleRecursion(match), nil

	case lookup(v, fieldOperator).Exists():
		operator, err := lookup(v, fieldOperator).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		operands, err := parseOperands(lookup(v, fieldMatch), vs, path+".match")
		if err != nil {
			return nil, err
		}
		f, err := syntax.NewFormulaApplication(operator, operands)
		if err != nil {
			return nil, at(path, v.Pos(), err)
		}
		return f, nil

	case lookup(v, fieldRule).Exists():
		name, err := lookup(v, fieldRule).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		match, err := parseTerms(lookup(v, fieldMatch), vs, path+".match")
		if err != nil {
			return nil, err
		}
		app, err := prog.Apply(name, match)
		if err != nil {
			return nil, at(path, v.Pos(), err)
		}
		return app, nil

	case lookup(v, fieldMatch).Exists():
		pattern, err := parsePattern(lookup(v, fieldMatch), vs, path+".match")
		if err != nil {
			return nil, err
		}
		return syntax.NewSelect(pattern), nil

	default:
		return nil, &CompileError{
			Field:   path,
			Message: "conjunct needs one of match, operator, rule, not or recur",
			Pos:     v.Pos(),
		}
	}
}

// parsePattern reads {the?, of?, is?}; omitted positions are blank.
func parsePattern(v cue.Value, vs variables, path string) (ir.Pattern, error) {
	terms, err := parseTerms(v, vs, path)
	if err != nil {
		return ir.Pattern{}, err
	}
	pattern := ir.Pattern{The: ir.Blank, Of: ir.Blank, Is: ir.Blank}
	for name, t := range terms {
		switch name {
		case "the":
			pattern.The = t
		case "of":
			pattern.Of = t
		case "is":
			pattern.Is = t
		default:
			return ir.Pattern{}, &CompileError{
				Field:   path + "." + name,
				Message: "a fact pattern only has the, of and is",
				Pos:     lookup(v, name).Pos(),
			}
		}
	}
	return pattern, nil
}

// parseTerms reads a struct of slot → term. A missing value is an empty map.
func parseTerms(v cue.Value, vs variables, path string) (map[string]ir.Term, error) {
	terms := make(map[string]ir.Term)
	if !v.Exists() {
		return terms, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		slot := label(iter)
		t, err := parseTerm(iter.Value(), vs, path+"."+slot)
		if err != nil {
			return nil, err
		}
		terms[slot] = t
	}
	return terms, nil
}

// parseOperands reads formula operands; a list becomes a list operand.
func parseOperands(v cue.Value, vs variables, path string) (map[string]syntax.Operand, error) {
	operands := make(map[string]syntax.Operand)
	if !v.Exists() {
		return operands, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		slot := label(iter)
		value := iter.Value()
		if value.IncompleteKind() != cue.ListKind {
			t, err := parseTerm(value, vs, path+"."+slot)
			if err != nil {
				return nil, err
			}
			operands[slot] = syntax.TermOperand(t)
			continue
		}
		items, err := value.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var terms []ir.Term
		for i := 0; items.Next(); i++ {
			t, err := parseTerm(items.Value(), vs, fmt.Sprintf("%s.%s[%d]", path, slot, i))
			if err != nil {
				return nil, err
			}
			terms = append(terms, t)
		}
		operands[slot] = syntax.ListOperand(terms...)
	}
	return operands, nil
}

func parseTerm(v cue.Value, vs variables, path string) (ir.Term, error) {
	raw, err := decode(v, path)
	if err != nil {
		return nil, err
	}
	t, err := ir.ParseTerm(raw, vs.resolve)
	if err != nil {
		return nil, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
	}
	return t, nil
}

// decode converts a concrete CUE value into plain Go values.
func decode(v cue.Value, path string) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.BytesKind:
		return v.Bytes()
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := make(map[string]any)
		for iter.Next() {
			name := label(iter)
			item, err := decode(iter.Value(), path+"."+name)
			if err != nil {
				return nil, err
			}
			out[name] = item
		}
		return out, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var out []any
		for i := 0; iter.Next(); i++ {
			item, err := decode(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return nil, &CompileError{
		Field:   path,
		Message: "value must be concrete",
		Pos:     v.Pos(),
	}
}

// ruleDeps lists the rules a rule body applies, including under not.
func ruleDeps(v cue.Value) []string {
	var deps []string
	var walk func(c cue.Value)
	walk = func(c cue.Value) {
		if inner := lookup(c, fieldNot); inner.Exists() {
			walk(inner)
			return
		}
		if name, err := lookup(c, fieldRule).String(); err == nil {
			deps = append(deps, name)
		}
	}

	whenVal := lookup(v, "when")
	if !whenVal.Exists() {
		return nil
	}
	var lists []cue.Value
	if whenVal.IncompleteKind() == cue.ListKind {
		lists = append(lists, whenVal)
	} else if iter, err := whenVal.Fields(); err == nil {
		for iter.Next() {
			lists = append(lists, iter.Value())
		}
	}
	for _, list := range lists {
		iter, err := list.List()
		if err != nil {
			continue
		}
		for iter.Next() {
			walk(iter.Value())
		}
	}
	return deps
}

func lookup(v cue.Value, name string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(name)))
}

// label returns the unquoted label of the current field.
func label(iter *cue.Iterator) string {
	s := iter.Selector().String()
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}
