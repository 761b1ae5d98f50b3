package syntax

import (
	"fmt"

	"github.com/roach88/deduce/internal/ir"
)

// Param names one variable of a rule's match signature.
type Param struct {
	Name string
	Var  ir.Variable
}

// Signature is the ordered match signature of a rule.
type Signature []Param

// Lookup returns the parameter named name.
func (s Signature) Lookup(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Has reports whether v is one of the signature variables.
func (s Signature) Has(v ir.Variable) bool {
	for _, p := range s {
		if p.Var.ID == v.ID {
			return true
		}
	}
	return false
}

// Vars returns the distinct signature variables in order.
func (s Signature) Vars() []ir.Variable {
	seen := map[ir.VarID]bool{}
	out := make([]ir.Variable, 0, len(s))
	for _, p := range s {
		if p.Var.IsBlank() || seen[p.Var.ID] {
			continue
		}
		seen[p.Var.ID] = true
		out = append(out, p.Var)
	}
	return out
}

// Branch is the uncompiled form of a Join.
type Branch struct {
	Name      string
	Conjuncts []Conjunct
}

// Join is one named branch of a rule: conjuncts evaluated together against
// one frame.
type Join struct {
	Name      string
	Conjuncts []Conjunct
	Recurs    bool
	cells     *Cells
	cost      Cost
}

// NewJoin composes a branch against the rule's signature. Signature cells
// accumulate through Combine; any other variable adds its cost flatly to the
// branch cost.
func NewJoin(name string, signature Signature, conjuncts []Conjunct) (*Join, error) {
	j := &Join{Name: name, Conjuncts: conjuncts, cells: NewCells()}
	locals := NewCells()
	for _, c := range conjuncts {
		j.cost += c.Cost()
		if _, ok := c.(*RuleRecursion); ok {
			j.Recurs = true
		}
		for _, v := range c.Cells().Vars() {
			cost, _ := c.Cells().Get(v)
			if signature.Has(v) {
				j.cells.Combine(v, cost)
			} else {
				locals.Combine(v, cost)
			}
		}
	}
	j.cost += locals.Total()

	if err := j.ensureBindings(signature); err != nil {
		return nil, err
	}
	return j, nil
}

// ensureBindings requires every signature variable to be covered by a cell.
func (j *Join) ensureBindings(signature Signature) error {
	for _, p := range signature {
		if p.Var.IsBlank() || j.cells.Has(p.Var) {
			continue
		}
		return &CompileError{
			Code:     ErrCodeMissingBinding,
			Message:  fmt.Sprintf("branch %q does not bind %s", j.Name, p.Var),
			Branch:   j.Name,
			Variable: p.Var.String(),
		}
	}
	return nil
}

// Cells returns the signature cost table of the branch.
func (j *Join) Cells() *Cells { return j.cells }

// Cost returns the branch cost.
func (j *Join) Cost() Cost { return j.cost }

// RuleID addresses a rule in a Program.
type RuleID int

// DeductiveRule is a match signature plus named branches. A frame satisfies
// the rule when it satisfies any branch.
type DeductiveRule struct {
	ID     RuleID
	Name   string
	Match  Signature
	When   []*Join
	Recurs bool
	cells  *Cells
	cost   Cost
}

// NewDeductiveRule composes branches into a rule.
//
// An empty when is a single empty branch: every match variable is required
// and the rule holds for the caller's bindings as given.
func NewDeductiveRule(name string, match Signature, when []Branch) (*DeductiveRule, error) {
	r := &DeductiveRule{Name: name, Match: match, cells: NewCells()}

	if len(when) == 0 {
		j := &Join{Name: "", cells: NewCells()}
		for _, v := range match.Vars() {
			j.cells.Set(v, Inf)
		}
		r.When = []*Join{j}
		r.cells = j.cells
		return r, nil
	}

	for _, b := range when {
		for _, c := range b.Conjuncts {
			rec, ok := c.(*RuleRecursion)
			if !ok {
				continue
			}
			for _, slot := range rec.Slots() {
				if _, ok := match.Lookup(slot); !ok {
					return nil, &CompileError{
						Code:     ErrCodeUnknownSlot,
						Message:  fmt.Sprintf("recur names slot %q that rule %q does not declare", slot, name),
						Rule:     name,
						Branch:   b.Name,
						Conjunct: rec.String(),
					}
				}
			}
		}
		j, err := NewJoin(b.Name, match, b.Conjuncts)
		if err != nil {
			return nil, withRule(err, name)
		}
		r.When = append(r.When, j)
		r.cost += j.cost
		if j.Recurs {
			r.Recurs = true
		}
	}

	for _, v := range match.Vars() {
		var total Cost
		for _, j := range r.When {
			cost, _ := j.cells.Get(v)
			if cost.IsInf() {
				total = Inf
				break
			}
			total += cost
		}
		r.cells.Set(v, total)
	}

	if r.Recurs {
		r.cost *= r.cost
		base := false
		for _, j := range r.When {
			if !j.Recurs {
				base = true
				break
			}
		}
		if !base {
			return nil, &CompileError{
				Code:    ErrCodeNoBaseCase,
				Message: fmt.Sprintf("recursive rule %q has no branch without recur", name),
				Rule:    name,
			}
		}
	}

	return r, nil
}

// Cells returns the rule's signature cost table.
func (r *DeductiveRule) Cells() *Cells { return r.cells }

// Cost returns the aggregate rule cost.
func (r *DeductiveRule) Cost() Cost { return r.cost }

// Required returns the signature parameters whose variables must be bound
// by every caller.
func (r *DeductiveRule) Required() []Param {
	var out []Param
	for _, p := range r.Match {
		if cost, ok := r.cells.Get(p.Var); ok && cost.IsInf() {
			out = append(out, p)
		}
	}
	return out
}
