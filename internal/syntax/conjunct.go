package syntax

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/deduce/internal/formula"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/scope"
)

// Conjunct is one clause of a rule body.
//
// This is a sealed interface: only Select, FormulaApplication,
// RuleApplication, Negation and RuleRecursion implement it.
type Conjunct interface {
	// Cells returns the per-variable cost table.
	Cells() *Cells
	// Cost returns the base cost, before any cell is counted.
	Cost() Cost
	String() string
	conjunct()
}

func (*Select) conjunct()             {}
func (*FormulaApplication) conjunct() {}
func (*RuleApplication) conjunct()    {}
func (*Negation) conjunct()           {}
func (*RuleRecursion) conjunct()      {}

// =============================================================================
// Select
// =============================================================================

// Select matches facts against a pattern.
type Select struct {
	Pattern ir.Pattern
	cells   *Cells
}

// NewSelect builds a Select. Only variable positions get cells.
func NewSelect(p ir.Pattern) *Select {
	cells := NewCells()
	if v, ok := ir.AsVariable(p.Of); ok {
		cells.Combine(v, EntityCost)
	}
	if v, ok := ir.AsVariable(p.The); ok {
		cells.Combine(v, AttributeCost)
	}
	if v, ok := ir.AsVariable(p.Is); ok {
		cells.Combine(v, ValueCost)
	}
	return &Select{Pattern: p, cells: cells}
}

func (s *Select) Cells() *Cells { return s.cells }
func (s *Select) Cost() Cost    { return 0 }

func (s *Select) String() string {
	return fmt.Sprintf("match {the: %s, of: %s, is: %s}",
		ir.FormatTerm(s.Pattern.The), ir.FormatTerm(s.Pattern.Of), ir.FormatTerm(s.Pattern.Is))
}

// =============================================================================
// FormulaApplication
// =============================================================================

// Operand is the term, or list of terms, supplied for a formula slot.
type Operand struct {
	Terms  []ir.Term
	IsList bool
}

// TermOperand wraps a single term.
func TermOperand(t ir.Term) Operand {
	return Operand{Terms: []ir.Term{t}}
}

// ListOperand wraps a list of terms.
func ListOperand(ts ...ir.Term) Operand {
	return Operand{Terms: ts, IsList: true}
}

// Term returns the single term of a non-list operand.
func (o Operand) Term() ir.Term {
	if o.IsList || len(o.Terms) == 0 {
		return nil
	}
	return o.Terms[0]
}

func (o Operand) String() string {
	if !o.IsList {
		return ir.FormatTerm(o.Term())
	}
	parts := make([]string, len(o.Terms))
	for i, t := range o.Terms {
		parts[i] = ir.FormatTerm(t)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormulaApplication applies a registered operator. Input cells cost Inf
// because an operator cannot run on unbound input; output cells cost 0.
type FormulaApplication struct {
	Operator *formula.Operator
	Inputs   map[string]Operand
	Outputs  map[string]ir.Term
	cells    *Cells
}

// NewFormulaApplication splits match into inputs and outputs according to
// the operator's declared slots.
func NewFormulaApplication(operator string, match map[string]Operand) (*FormulaApplication, error) {
	op, ok := formula.Lookup(operator)
	if !ok {
		return nil, &CompileError{
			Code:    ErrCodeUnknownOperator,
			Message: fmt.Sprintf("unknown operator %q", operator),
		}
	}

	f := &FormulaApplication{
		Operator: op,
		Inputs:   make(map[string]Operand),
		Outputs:  make(map[string]ir.Term),
		cells:    NewCells(),
	}

	for _, name := range sortedKeys(match) {
		operand := match[name]
		switch {
		case op.IsInput(name):
			f.Inputs[name] = operand
		case op.IsOutput(name):
			if operand.IsList {
				return nil, &CompileError{
					Code:     ErrCodeInvalidTerm,
					Message:  fmt.Sprintf("output slot %q of %q cannot be a list", name, operator),
					Conjunct: operator,
				}
			}
			f.Outputs[name] = operand.Term()
		default:
			return nil, &CompileError{
				Code:     ErrCodeUnknownSlot,
				Message:  fmt.Sprintf("operator %q has no slot %q", operator, name),
				Conjunct: operator,
			}
		}
	}

	inputs := map[ir.VarID]bool{}
	for _, slot := range op.Inputs {
		operand, ok := f.Inputs[slot.Name]
		if !ok {
			if slot.Optional {
				continue
			}
			return nil, &CompileError{
				Code:     ErrCodeMissingInput,
				Message:  fmt.Sprintf("operator %q requires input %q", operator, slot.Name),
				Conjunct: operator,
			}
		}
		for _, t := range operand.Terms {
			v, ok := ir.AsVariable(t)
			if !ok {
				continue
			}
			if v.IsBlank() {
				return nil, &CompileError{
					Code:     ErrCodeInvalidTerm,
					Message:  fmt.Sprintf("input %q of %q cannot be the blank variable", slot.Name, operator),
					Conjunct: operator,
				}
			}
			inputs[v.ID] = true
			f.cells.Set(v, Inf)
		}
	}

	for _, name := range op.Outputs {
		v, ok := ir.AsVariable(f.Outputs[name])
		if !ok || v.IsBlank() {
			continue
		}
		if inputs[v.ID] {
			return nil, &CompileError{
				Code:     ErrCodeFormulaReversed,
				Message:  fmt.Sprintf("variable %s is both input and output of %q", v, operator),
				Variable: v.String(),
				Conjunct: operator,
			}
		}
		f.cells.Set(v, 0)
	}

	return f, nil
}

func (f *FormulaApplication) Cells() *Cells { return f.cells }
func (f *FormulaApplication) Cost() Cost    { return FormulaCost }

func (f *FormulaApplication) String() string {
	in := make([]string, 0, len(f.Inputs))
	for _, slot := range f.Operator.Inputs {
		if operand, ok := f.Inputs[slot.Name]; ok {
			in = append(in, slot.Name+": "+operand.String())
		}
	}
	out := make([]string, 0, len(f.Outputs))
	for _, name := range f.Operator.Outputs {
		if t, ok := f.Outputs[name]; ok {
			out = append(out, name+": "+ir.FormatTerm(t))
		}
	}
	s := fmt.Sprintf("%q {%s}", f.Operator.Name, strings.Join(in, ", "))
	if len(out) > 0 {
		s += " => {" + strings.Join(out, ", ") + "}"
	}
	return s
}

// =============================================================================
// RuleApplication
// =============================================================================

// Mapping connects one rule slot to the caller's term.
type Mapping struct {
	Slot    string
	RuleVar ir.Variable
	Term    ir.Term
}

// RuleApplication applies a deductive rule from the program arena.
//
// Variable-to-variable mappings are linked into Cursor so the rule body can
// be planned against the caller's scope; constant terms land in Bindings
// keyed by the rule's own variable.
type RuleApplication struct {
	Rule     RuleID
	Name     string
	Mappings []Mapping
	Cursor   *scope.Cursor
	Bindings map[ir.VarID]ir.Scalar
	cells    *Cells
	cost     Cost
}

func newRuleApplication(rule *DeductiveRule, match map[string]ir.Term) (*RuleApplication, error) {
	for _, name := range sortedKeys(match) {
		if _, ok := rule.Match.Lookup(name); !ok {
			return nil, &CompileError{
				Code:     ErrCodeUnknownSlot,
				Message:  fmt.Sprintf("rule %q has no slot %q", rule.Name, name),
				Conjunct: rule.Name,
			}
		}
	}

	app := &RuleApplication{
		Rule:     rule.ID,
		Name:     rule.Name,
		Cursor:   scope.NewCursor(),
		Bindings: make(map[ir.VarID]ir.Scalar),
		cells:    NewCells(),
		cost:     rule.cost,
	}

	// Pass 1: link variables and carry the rule's cell costs to the caller.
	for _, param := range rule.Match {
		cost, _ := rule.cells.Get(param.Var)
		term, ok := match[param.Name]
		v, isVar := ir.AsVariable(term)
		if !ok || term == nil || (isVar && v.IsBlank()) {
			if cost.IsInf() {
				return nil, &CompileError{
					Code:     ErrCodeOmittedBinding,
					Message:  fmt.Sprintf("application of %q omits required binding %q", rule.Name, param.Name),
					Variable: param.Var.String(),
					Conjunct: rule.Name,
				}
			}
			continue
		}
		app.Mappings = append(app.Mappings, Mapping{Slot: param.Name, RuleVar: param.Var, Term: term})
		if isVar {
			app.Cursor.Relink(param.Var, v)
			app.cells.Combine(v, cost)
		}
	}

	// Pass 2: constants bind to the rule's variable identity.
	for _, m := range app.Mappings {
		if s, ok := ir.AsScalar(m.Term); ok {
			app.Bindings[m.RuleVar.ID] = s
		}
	}

	return app, nil
}

func (a *RuleApplication) Cells() *Cells { return a.cells }
func (a *RuleApplication) Cost() Cost    { return a.cost }

func (a *RuleApplication) String() string {
	parts := make([]string, len(a.Mappings))
	for i, m := range a.Mappings {
		parts[i] = m.Slot + ": " + ir.FormatTerm(m.Term)
	}
	return fmt.Sprintf("%s {%s}", a.Name, strings.Join(parts, ", "))
}

// =============================================================================
// Negation
// =============================================================================

// Negation keeps a frame only when its operand produces nothing for it.
// Every cell is Inf: negation filters and never binds.
type Negation struct {
	Operand Conjunct
	cells   *Cells
}

// NewNegation wraps operand.
func NewNegation(operand Conjunct) (*Negation, error) {
	if _, ok := operand.(*RuleRecursion); ok {
		return nil, &CompileError{
			Code:     ErrCodeNegatedRecursion,
			Message:  "recur cannot be negated",
			Conjunct: operand.String(),
		}
	}
	cells := NewCells()
	for _, v := range operand.Cells().Vars() {
		cells.Set(v, Inf)
	}
	return &Negation{Operand: operand, cells: cells}, nil
}

func (n *Negation) Cells() *Cells  { return n.cells }
func (n *Negation) Cost() Cost     { return n.Operand.Cost() }
func (n *Negation) String() string { return "not " + n.Operand.String() }

// =============================================================================
// RuleRecursion
// =============================================================================

// RuleRecursion requests the enclosing rule again with new bindings. Its
// cells cost 0: which slots act as inputs is only known per call during
// fixed-point evaluation.
type RuleRecursion struct {
	Match map[string]ir.Term
	slots []string
	cells *Cells
}

// NewRuleRecursion builds a recursion request. Slot names are checked
// against the enclosing rule by NewDeductiveRule.
func NewRuleRecursion(match map[string]ir.Term) *RuleRecursion {
	r := &RuleRecursion{Match: match, slots: sortedKeys(match), cells: NewCells()}
	for _, name := range r.slots {
		if v, ok := ir.AsVariable(match[name]); ok {
			r.cells.Set(v, 0)
		}
	}
	return r
}

// Slots returns the slot names in sorted order.
func (r *RuleRecursion) Slots() []string { return r.slots }

func (r *RuleRecursion) Cells() *Cells { return r.cells }
func (r *RuleRecursion) Cost() Cost    { return RecursionCost }

func (r *RuleRecursion) String() string {
	parts := make([]string, len(r.slots))
	for i, name := range r.slots {
		parts[i] = name + ": " + ir.FormatTerm(r.Match[name])
	}
	return "recur {" + strings.Join(parts, ", ") + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
