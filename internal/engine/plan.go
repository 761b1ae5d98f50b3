package engine

import (
	"github.com/roach88/deduce/internal/formula"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/syntax"
)

// Plan is the scope-bound, order-committed counterpart of a syntax node.
//
// This is a sealed interface: only the plan node types in this package
// implement it.
type Plan interface {
	// Cost returns the live cost estimate the planner committed to.
	Cost() syntax.Cost

	evaluate(ev *evaluation, selection []ir.Frame) ([]ir.Frame, error)
	explain(w *explainer)
}

// =============================================================================
// Select
// =============================================================================

// SelectPlan queries the fact source once per incoming frame.
type SelectPlan struct {
	Pattern ir.Pattern
	cost    syntax.Cost
}

func (p *SelectPlan) Cost() syntax.Cost { return p.cost }

func (p *SelectPlan) evaluate(ev *evaluation, selection []ir.Frame) ([]ir.Frame, error) {
	var out []ir.Frame
	for _, f := range selection {
		sel := ir.Selector{}
		sel.The, _ = f.Resolve(p.Pattern.The)
		sel.Of, _ = f.Resolve(p.Pattern.Of)
		sel.Is, _ = f.Resolve(p.Pattern.Is)

		facts, err := ev.source.Select(ev.ctx, sel)
		if err != nil {
			return nil, NewStoreError(sel.String(), err)
		}
		for _, d := range facts {
			g, err := f.Unify(p.Pattern.The, d.The)
			if err != nil {
				continue
			}
			if g, err = g.Unify(p.Pattern.Of, d.Of); err != nil {
				continue
			}
			if g, err = g.Unify(p.Pattern.Is, d.Is); err != nil {
				continue
			}
			out = append(out, g)
		}
	}
	return out, nil
}

// =============================================================================
// Formula
// =============================================================================

// FormulaPlan invokes a pure operator per frame.
type FormulaPlan struct {
	Formula *syntax.FormulaApplication
	cost    syntax.Cost
}

func (p *FormulaPlan) Cost() syntax.Cost { return p.cost }

func (p *FormulaPlan) evaluate(_ *evaluation, selection []ir.Frame) ([]ir.Frame, error) {
	op := p.Formula.Operator
	var out []ir.Frame
	for _, f := range selection {
		args, ok := p.resolve(f)
		if !ok {
			continue
		}
		for _, result := range op.Apply(args) {
			g, ok := p.bindOutputs(f, result)
			if ok {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func (p *FormulaPlan) resolve(f ir.Frame) (formula.Args, bool) {
	args := make(formula.Args, len(p.Formula.Inputs))
	for name, operand := range p.Formula.Inputs {
		if !operand.IsList {
			s, ok := f.Resolve(operand.Term())
			if !ok {
				return nil, false
			}
			args[name] = formula.Single(s)
			continue
		}
		items := make([]ir.Scalar, len(operand.Terms))
		for i, t := range operand.Terms {
			s, ok := f.Resolve(t)
			if !ok {
				return nil, false
			}
			items[i] = s
		}
		args[name] = formula.List(items...)
	}
	return args, true
}

func (p *FormulaPlan) bindOutputs(f ir.Frame, result formula.Result) (ir.Frame, bool) {
	g := f
	for name, term := range p.Formula.Outputs {
		value, ok := result[name]
		if !ok {
			continue
		}
		var err error
		if g, err = g.Unify(term, value); err != nil {
			return f, false
		}
	}
	return g, true
}

// =============================================================================
// Join
// =============================================================================

// JoinPlan threads a selection through its steps in order.
type JoinPlan struct {
	Name  string
	Steps []Plan
	cost  syntax.Cost
}

func (p *JoinPlan) Cost() syntax.Cost { return p.cost }

func (p *JoinPlan) evaluate(ev *evaluation, selection []ir.Frame) ([]ir.Frame, error) {
	for i, step := range p.Steps {
		if err := ev.ctx.Err(); err != nil {
			return nil, err
		}
		if rec, ok := step.(*RecursionPlan); ok {
			// Results of a recursion arrive later through the fixed point,
			// which runs the remaining steps on each delivered answer.
			rest := &JoinPlan{Name: p.Name, Steps: p.Steps[i+1:]}
			return nil, ev.request(rec, selection, rest)
		}
		var err error
		if selection, err = step.evaluate(ev, selection); err != nil {
			return nil, err
		}
		if len(selection) == 0 {
			return nil, nil
		}
	}
	return selection, nil
}

// =============================================================================
// Negation
// =============================================================================

// NegationPlan keeps a frame iff its operand yields nothing for it.
type NegationPlan struct {
	Operand Plan
	cost    syntax.Cost
}

func (p *NegationPlan) Cost() syntax.Cost { return p.cost }

func (p *NegationPlan) evaluate(ev *evaluation, selection []ir.Frame) ([]ir.Frame, error) {
	var out []ir.Frame
	for _, f := range selection {
		matches, err := p.Operand.evaluate(ev, []ir.Frame{f})
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			out = append(out, f)
		}
	}
	return out, nil
}

// =============================================================================
// Rule
// =============================================================================

// RulePlan is a deductive rule planned for one set of bound signature
// variables. Its branches run independently and their results concatenate.
type RulePlan struct {
	Rule     *syntax.DeductiveRule
	Bound    []ir.Variable
	Branches []*JoinPlan
}

func (p *RulePlan) Cost() syntax.Cost { return p.Rule.Cost() }

func (p *RulePlan) evaluate(ev *evaluation, selection []ir.Frame) ([]ir.Frame, error) {
	var out []ir.Frame
	for _, branch := range p.Branches {
		frames, err := branch.evaluate(ev, selection)
		if err != nil {
			return nil, err
		}
		out = append(out, frames...)
	}
	return out, nil
}

// =============================================================================
// RuleApplication
// =============================================================================

// ApplicationPlan applies a rule to every caller frame. Each frame enters the
// rule as a rule-local frame carrying the mapped inputs; every answer is
// written back through the application's cursor.
type ApplicationPlan struct {
	Application *syntax.RuleApplication
	Rule        *RulePlan
	cost        syntax.Cost
}

func (p *ApplicationPlan) Cost() syntax.Cost { return p.cost }

func (p *ApplicationPlan) evaluate(ev *evaluation, selection []ir.Frame) ([]ir.Frame, error) {
	out := ir.NewFrameSet()
	for _, f := range selection {
		initial, ok := p.enter(f)
		if !ok {
			continue
		}
		answers, err := ev.solve(p.Rule.Rule, initial)
		if err != nil {
			return nil, err
		}
		for _, answer := range answers {
			if g, ok := p.exit(f, answer); ok {
				out.Add(g)
			}
		}
	}
	return out.Frames(), nil
}

// enter builds the rule-local frame for caller frame f. Constant slots bind
// from the application's Bindings; every other rule variable takes the value
// of the caller variable its cursor resolves to.
func (p *ApplicationPlan) enter(f ir.Frame) (ir.Frame, bool) {
	app := p.Application
	local := ir.NewFrame()
	for _, v := range p.Rule.Rule.Match.Vars() {
		if s, ok := app.Bindings[v.ID]; ok {
			var err error
			if local, err = local.Bind(v, s); err != nil {
				return local, false
			}
			continue
		}
		if !app.Cursor.Has(v) {
			continue
		}
		for _, remote := range app.Cursor.Resolve(v) {
			value, ok := f.Get(remote)
			if !ok {
				continue
			}
			var err error
			if local, err = local.Bind(v, value); err != nil {
				return local, false
			}
		}
	}
	return local, true
}

// exit writes a rule answer back into caller frame f through the cursor.
func (p *ApplicationPlan) exit(f ir.Frame, answer ir.Frame) (ir.Frame, bool) {
	app := p.Application
	g := f
	for _, v := range p.Rule.Rule.Match.Vars() {
		if !app.Cursor.Has(v) {
			continue
		}
		value, ok := answer.Get(v)
		if !ok {
			continue
		}
		for _, remote := range app.Cursor.Resolve(v) {
			var err error
			if g, err = g.Bind(remote, value); err != nil {
				return f, false
			}
		}
	}
	return g, true
}

// =============================================================================
// RuleRecursion
// =============================================================================

// RecursionPlan hands frames to the fixed point as requests for the
// enclosing rule.
type RecursionPlan struct {
	Recursion *syntax.RuleRecursion
	Rule      *syntax.DeductiveRule
	cost      syntax.Cost
}

func (p *RecursionPlan) Cost() syntax.Cost { return p.cost }

func (p *RecursionPlan) evaluate(ev *evaluation, selection []ir.Frame) ([]ir.Frame, error) {
	return nil, ev.request(p, selection, &JoinPlan{})
}

// next builds the initial frame of the recursive call requested by f.
func (p *RecursionPlan) next(f ir.Frame) (ir.Frame, bool) {
	initial := ir.NewFrame()
	for _, slot := range p.Recursion.Slots() {
		param, _ := p.Rule.Match.Lookup(slot)
		value, ok := f.Resolve(p.Recursion.Match[slot])
		if !ok {
			continue
		}
		var err error
		if initial, err = initial.Bind(param.Var, value); err != nil {
			return initial, false
		}
	}
	return initial, true
}

// join unifies an answer of the recursive call into the requesting frame.
func (p *RecursionPlan) join(f ir.Frame, answer ir.Frame) (ir.Frame, bool) {
	g := f
	for _, slot := range p.Recursion.Slots() {
		param, _ := p.Rule.Match.Lookup(slot)
		value, ok := answer.Get(param.Var)
		if !ok {
			continue
		}
		var err error
		if g, err = g.Unify(p.Recursion.Match[slot], value); err != nil {
			return f, false
		}
	}
	return g, true
}
