package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/ir"
)

func cost(t *testing.T, c *Cells, v ir.Variable) Cost {
	t.Helper()
	got, ok := c.Get(v)
	require.True(t, ok, "no cell for %s", v)
	return got
}

// =============================================================================
// Cost
// =============================================================================

func TestCombine(t *testing.T) {
	assert.Equal(t, Cost(5), Combine(Inf, 5))
	assert.Equal(t, Cost(5), Combine(5, Inf))
	assert.True(t, Combine(Inf, Inf).IsInf())
	assert.Equal(t, Cost(7), Combine(3, 4))
}

// =============================================================================
// Select
// =============================================================================

func TestSelectCells(t *testing.T) {
	e := ir.NewVariable("e")
	a := ir.NewVariable("a")
	v := ir.NewVariable("v")

	s := NewSelect(ir.Pattern{The: a, Of: e, Is: v})
	assert.Equal(t, EntityCost, cost(t, s.Cells(), e))
	assert.Equal(t, AttributeCost, cost(t, s.Cells(), a))
	assert.Equal(t, ValueCost, cost(t, s.Cells(), v))
}

func TestSelectCostMonotonicity(t *testing.T) {
	e := ir.NewVariable("e")
	v := ir.NewVariable("v")

	open := NewSelect(ir.Pattern{The: ir.String("person/name"), Of: e, Is: v})
	bound := NewSelect(ir.Pattern{The: ir.String("person/name"), Of: ir.String("alice"), Is: v})

	assert.LessOrEqual(t, bound.Cells().Total(), open.Cells().Total())
	assert.False(t, bound.Cells().Has(e))
}

func TestSelectSkipsBlank(t *testing.T) {
	s := NewSelect(ir.Pattern{The: ir.String("a"), Of: ir.Blank, Is: ir.Blank})
	assert.Equal(t, 0, s.Cells().Len())
}

// =============================================================================
// FormulaApplication
// =============================================================================

func TestFormulaCells(t *testing.T) {
	x := ir.NewVariable("x")
	out := ir.NewVariable("out")

	f, err := NewFormulaApplication("+", map[string]Operand{
		"of": ListOperand(x, ir.Int(2)),
		"is": TermOperand(out),
	})
	require.NoError(t, err)
	assert.True(t, cost(t, f.Cells(), x).IsInf())
	assert.Equal(t, Cost(0), cost(t, f.Cells(), out))
}

func TestFormulaErrors(t *testing.T) {
	x := ir.NewVariable("x")

	tests := []struct {
		name     string
		operator string
		match    map[string]Operand
		code     ErrorCode
	}{
		{"unknown operator", "nope", nil, ErrCodeUnknownOperator},
		{"unknown slot", "math/absolute", map[string]Operand{"of": TermOperand(x), "bogus": TermOperand(x)}, ErrCodeUnknownSlot},
		{"missing input", "-", map[string]Operand{"of": TermOperand(x)}, ErrCodeMissingInput},
		{"reversed", "math/absolute", map[string]Operand{"of": TermOperand(x), "is": TermOperand(x)}, ErrCodeFormulaReversed},
		{"list output", "math/absolute", map[string]Operand{"of": TermOperand(x), "is": ListOperand(x)}, ErrCodeInvalidTerm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFormulaApplication(tt.operator, tt.match)
			require.Error(t, err)
			assert.True(t, HasCode(err, tt.code), "got %v", err)
		})
	}
}

// =============================================================================
// Negation and recursion
// =============================================================================

func TestNegationForcesInf(t *testing.T) {
	u := ir.NewVariable("u")
	n, err := NewNegation(NewSelect(ir.Pattern{The: ir.String("blocked"), Of: u, Is: ir.Bool(true)}))
	require.NoError(t, err)
	assert.True(t, cost(t, n.Cells(), u).IsInf())
}

func TestNegationRejectsRecursion(t *testing.T) {
	_, err := NewNegation(NewRuleRecursion(map[string]ir.Term{"of": ir.NewVariable("x")}))
	assert.True(t, HasCode(err, ErrCodeNegatedRecursion))
}

func TestRecursionCellsAreFree(t *testing.T) {
	x := ir.NewVariable("x")
	r := NewRuleRecursion(map[string]ir.Term{"of": x})
	assert.Equal(t, Cost(0), cost(t, r.Cells(), x))
	assert.Greater(t, r.Cost(), EntityCost+AttributeCost+ValueCost)
}

// =============================================================================
// Join and DeductiveRule
// =============================================================================

func TestJoinCombinesSignatureCells(t *testing.T) {
	x := ir.NewVariable("x")
	y := ir.NewVariable("y")
	sig := Signature{{Name: "x", Var: x}}

	select1 := NewSelect(ir.Pattern{The: ir.String("a"), Of: x, Is: y})
	guard, err := NewFormulaApplication(">", map[string]Operand{"this": TermOperand(x), "than": TermOperand(ir.Int(0))})
	require.NoError(t, err)

	j, err := NewJoin("main", sig, []Conjunct{guard, select1})
	require.NoError(t, err)

	assert.Equal(t, EntityCost, cost(t, j.Cells(), x), "finite estimate wins over Inf")
	assert.False(t, j.Cells().Has(y), "locals stay out of the signature table")
	assert.Equal(t, FormulaCost+ValueCost, j.Cost())
}

func TestJoinEnsureBindings(t *testing.T) {
	x := ir.NewVariable("x")
	y := ir.NewVariable("y")
	sig := Signature{{Name: "x", Var: x}, {Name: "y", Var: y}}

	_, err := NewJoin("only-x", sig, []Conjunct{NewSelect(ir.Pattern{The: ir.String("a"), Of: x})})
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeMissingBinding, ce.Code)
	assert.Equal(t, "only-x", ce.Branch)
	assert.Equal(t, "?y", ce.Variable)
}

func TestRuleCellsAcrossBranches(t *testing.T) {
	x := ir.NewVariable("x")
	sig := Signature{{Name: "x", Var: x}}

	guard, err := NewFormulaApplication(">", map[string]Operand{"this": TermOperand(x), "than": TermOperand(ir.Int(0))})
	require.NoError(t, err)

	rule, err := NewDeductiveRule("r", sig, []Branch{
		{Name: "lookup", Conjuncts: []Conjunct{NewSelect(ir.Pattern{The: ir.String("a"), Of: x})}},
		{Name: "check", Conjuncts: []Conjunct{guard}},
	})
	require.NoError(t, err)
	assert.True(t, cost(t, rule.Cells(), x).IsInf(), "a branch that requires x makes x required")
	assert.Equal(t, []Param{{Name: "x", Var: x}}, rule.Required())

	rule, err = NewDeductiveRule("r2", sig, []Branch{
		{Name: "a", Conjuncts: []Conjunct{NewSelect(ir.Pattern{The: ir.String("a"), Of: x})}},
		{Name: "b", Conjuncts: []Conjunct{NewSelect(ir.Pattern{The: ir.String("b"), Of: x})}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2*EntityCost, cost(t, rule.Cells(), x))
	assert.Empty(t, rule.Required())
}

func TestRuleEmptyWhenRequiresEverything(t *testing.T) {
	x := ir.NewVariable("x")
	rule, err := NewDeductiveRule("fact", Signature{{Name: "x", Var: x}}, nil)
	require.NoError(t, err)
	assert.True(t, cost(t, rule.Cells(), x).IsInf())
	require.Len(t, rule.When, 1)
	assert.Empty(t, rule.When[0].Conjuncts)
}

func TestRecursiveRuleCostIsSquared(t *testing.T) {
	of := ir.NewVariable("of")
	is := ir.NewVariable("is")
	next := ir.NewVariable("next")
	sig := Signature{{Name: "of", Var: of}, {Name: "is", Var: is}}

	rule, err := NewDeductiveRule("descendant", sig, []Branch{
		{Name: "child", Conjuncts: []Conjunct{NewSelect(ir.Pattern{The: ir.String("list/next"), Of: of, Is: is})}},
		{Name: "deeper", Conjuncts: []Conjunct{
			NewSelect(ir.Pattern{The: ir.String("list/next"), Of: of, Is: next}),
			NewRuleRecursion(map[string]ir.Term{"of": next, "is": is}),
		}},
	})
	require.NoError(t, err)
	assert.True(t, rule.Recurs)

	var sum Cost
	for _, j := range rule.When {
		sum += j.Cost()
	}
	assert.Equal(t, sum*sum, rule.Cost())
}

func TestRecursiveRuleNeedsBaseCase(t *testing.T) {
	of := ir.NewVariable("of")
	sig := Signature{{Name: "of", Var: of}}

	_, err := NewDeductiveRule("loop", sig, []Branch{
		{Name: "again", Conjuncts: []Conjunct{NewRuleRecursion(map[string]ir.Term{"of": of})}},
	})
	assert.True(t, HasCode(err, ErrCodeNoBaseCase))
}

func TestRecursionUnknownSlot(t *testing.T) {
	of := ir.NewVariable("of")
	sig := Signature{{Name: "of", Var: of}}

	_, err := NewDeductiveRule("bad", sig, []Branch{
		{Name: "base", Conjuncts: []Conjunct{NewSelect(ir.Pattern{Of: of})}},
		{Name: "rec", Conjuncts: []Conjunct{NewSelect(ir.Pattern{Of: of}), NewRuleRecursion(map[string]ir.Term{"nope": of})}},
	})
	assert.True(t, HasCode(err, ErrCodeUnknownSlot))
}

// =============================================================================
// RuleApplication
// =============================================================================

func buildProgram(t *testing.T) (*Program, Signature) {
	t.Helper()
	of := ir.NewVariable("of")
	is := ir.NewVariable("is")
	sig := Signature{{Name: "of", Var: of}, {Name: "is", Var: is}}

	abs, err := NewFormulaApplication("math/absolute", map[string]Operand{"of": TermOperand(of), "is": TermOperand(is)})
	require.NoError(t, err)
	rule, err := NewDeductiveRule("absolute", sig, []Branch{{Name: "compute", Conjuncts: []Conjunct{abs}}})
	require.NoError(t, err)

	prog := NewProgram()
	_, err = prog.Add(rule)
	require.NoError(t, err)
	return prog, sig
}

func TestRuleApplicationLinksVariables(t *testing.T) {
	prog, sig := buildProgram(t)
	in := ir.NewVariable("in")
	out := ir.NewVariable("out")

	app, err := prog.Apply("absolute", map[string]ir.Term{"of": in, "is": out})
	require.NoError(t, err)

	assert.True(t, cost(t, app.Cells(), in).IsInf())
	assert.Equal(t, Cost(0), cost(t, app.Cells(), out))
	assert.Equal(t, []ir.Variable{in}, app.Cursor.Resolve(sig[0].Var))
	assert.Empty(t, app.Bindings)
}

func TestRuleApplicationConstantsBindRuleVariables(t *testing.T) {
	prog, sig := buildProgram(t)
	out := ir.NewVariable("out")

	app, err := prog.Apply("absolute", map[string]ir.Term{"of": ir.Int(-5), "is": out})
	require.NoError(t, err)

	assert.Equal(t, ir.Int(-5), app.Bindings[sig[0].Var.ID])
	assert.False(t, app.Cells().Has(sig[0].Var))
}

func TestRuleApplicationOmitsRequired(t *testing.T) {
	prog, _ := buildProgram(t)

	_, err := prog.Apply("absolute", map[string]ir.Term{"is": ir.NewVariable("out")})
	assert.True(t, HasCode(err, ErrCodeOmittedBinding))

	_, err = prog.Apply("absolute", map[string]ir.Term{"of": ir.Blank})
	assert.True(t, HasCode(err, ErrCodeOmittedBinding))
}

func TestRuleApplicationUnknownSlotAndRule(t *testing.T) {
	prog, _ := buildProgram(t)

	_, err := prog.Apply("absolute", map[string]ir.Term{"of": ir.Int(1), "nope": ir.Int(2)})
	assert.True(t, HasCode(err, ErrCodeUnknownSlot))

	_, err = prog.Apply("missing", nil)
	assert.True(t, HasCode(err, ErrCodeUnknownRule))
}

func TestRuleApplicationLaterMappingOverrides(t *testing.T) {
	x := ir.NewVariable("x")
	sig := Signature{{Name: "left", Var: x}, {Name: "right", Var: x}}
	rule, err := NewDeductiveRule("same", sig, []Branch{{Name: "b", Conjuncts: []Conjunct{NewSelect(ir.Pattern{Of: x})}}})
	require.NoError(t, err)
	prog := NewProgram()
	_, err = prog.Add(rule)
	require.NoError(t, err)

	a := ir.NewVariable("a")
	b := ir.NewVariable("b")
	app, err := prog.Apply("same", map[string]ir.Term{"left": a, "right": b})
	require.NoError(t, err)
	assert.Equal(t, []ir.Variable{b}, app.Cursor.Resolve(x))
}

func TestProgramRejectsDuplicateRule(t *testing.T) {
	prog, _ := buildProgram(t)
	rule := prog.Rules()[0]
	_, err := prog.Add(rule)
	assert.Error(t, err)
}
