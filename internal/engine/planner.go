package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/scope"
	"github.com/roach88/deduce/internal/syntax"
)

// planKey identifies a rule plan: the rule plus which of its signature
// variables are bound on entry.
type planKey struct {
	rule  syntax.RuleID
	bound string
}

// Planner orders conjuncts greedily by live cost and memoizes rule plans.
//
// A rule plan depends only on the rule and its bound signature variables, so
// the cache is safe to share across concurrent queries.
type Planner struct {
	program *syntax.Program
	logger  *slog.Logger

	mu       sync.Mutex
	rules    map[planKey]*RulePlan
	planning map[planKey]bool
}

// NewPlanner creates a planner over program.
func NewPlanner(program *syntax.Program, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		program:  program,
		logger:   logger,
		rules:    make(map[planKey]*RulePlan),
		planning: make(map[planKey]bool),
	}
}

// PlanApplication plans app in sc, the caller's scope.
func (p *Planner) PlanApplication(app *syntax.RuleApplication, sc *scope.Scope) (*ApplicationPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.planApplication(app, sc)
}

// PlanRule plans rule with the given signature variables bound on entry.
func (p *Planner) PlanRule(rule *syntax.DeductiveRule, bound []ir.Variable) (*RulePlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.planRule(rule, bound)
}

// CachedPlans returns the number of memoized rule plans.
func (p *Planner) CachedPlans() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rules)
}

// rulePlanFor returns the plan of rule for a rule-local initial frame.
func (p *Planner) rulePlanFor(rule *syntax.DeductiveRule, initial ir.Frame) (*RulePlan, error) {
	var bound []ir.Variable
	for _, v := range rule.Match.Vars() {
		if _, ok := initial.Get(v); ok {
			bound = append(bound, v)
		}
	}
	return p.PlanRule(rule, bound)
}

func keyFor(rule *syntax.DeductiveRule, bound []ir.Variable) planKey {
	ids := make([]string, 0, len(bound))
	for _, v := range rule.Match.Vars() {
		for _, b := range bound {
			if b.ID == v.ID {
				ids = append(ids, strconv.FormatUint(uint64(v.ID), 10))
				break
			}
		}
	}
	return planKey{rule: rule.ID, bound: strings.Join(ids, ",")}
}

func (p *Planner) planRule(rule *syntax.DeductiveRule, bound []ir.Variable) (*RulePlan, error) {
	key := keyFor(rule, bound)
	if plan, ok := p.rules[key]; ok {
		return plan, nil
	}

	for _, param := range rule.Required() {
		if !containsVar(bound, param.Var) {
			return nil, &syntax.CompileError{
				Code:     syntax.ErrCodeUnboundVariable,
				Message:  fmt.Sprintf("rule %q requires %q to be bound", rule.Name, param.Name),
				Rule:     rule.Name,
				Variable: param.Var.String(),
			}
		}
	}

	p.planning[key] = true
	defer delete(p.planning, key)

	plan := &RulePlan{Rule: rule, Bound: bound}
	for _, join := range rule.When {
		jp, err := p.planJoin(rule, join, scope.New(bound...))
		if err != nil {
			return nil, err
		}
		plan.Branches = append(plan.Branches, jp)
	}
	p.rules[key] = plan

	p.logger.Debug("planned rule",
		"rule", rule.Name,
		"bound", key.bound,
		"branches", len(plan.Branches),
	)
	return plan, nil
}

// planJoin orders a branch greedily.
//
//  1. Conjuncts with no unresolved required cell are ready; the rest are
//     blocked on each variable they still need.
//  2. The ready conjunct with the lowest live cost is committed and its
//     cells are marked bound. Ties go to the conjunct that became ready first.
//  3. Blocked conjuncts whose last required variable got bound become ready.
//
// A conjunct still blocked once nothing is ready is a compile error.
func (p *Planner) planJoin(rule *syntax.DeductiveRule, join *syntax.Join, sc *scope.Scope) (*JoinPlan, error) {
	conjuncts := join.Conjuncts
	missing := make([]int, len(conjuncts))
	blocked := make(map[ir.VarID][]int)
	var ready []int

	for i, c := range conjuncts {
		for _, v := range c.Cells().Required() {
			if !sc.IsBound(v) {
				blocked[v.ID] = append(blocked[v.ID], i)
				missing[i]++
			}
		}
		if missing[i] == 0 {
			ready = append(ready, i)
		}
	}

	plan := &JoinPlan{Name: join.Name}
	done := make([]bool, len(conjuncts))
	for len(ready) > 0 {
		best := 0
		bestCost := liveCost(conjuncts[ready[0]], sc)
		for k := 1; k < len(ready); k++ {
			if cost := liveCost(conjuncts[ready[k]], sc); cost < bestCost {
				best, bestCost = k, cost
			}
		}
		idx := ready[best]
		ready = append(ready[:best], ready[best+1:]...)

		c := conjuncts[idx]
		step, err := p.planConjunct(rule, c, sc, bestCost)
		if err != nil {
			var ce *syntax.CompileError
			if errors.As(err, &ce) && ce.Branch == "" {
				ce.Branch = join.Name
			}
			return nil, err
		}
		plan.Steps = append(plan.Steps, step)
		plan.cost += bestCost
		done[idx] = true

		for _, v := range c.Cells().Vars() {
			if sc.IsBound(v) {
				continue
			}
			sc.Bind(v)
			for _, waiting := range blocked[v.ID] {
				missing[waiting]--
				if missing[waiting] == 0 {
					ready = append(ready, waiting)
				}
			}
			delete(blocked, v.ID)
		}
	}

	for i, c := range conjuncts {
		if done[i] {
			continue
		}
		for _, v := range c.Cells().Required() {
			if !sc.IsBound(v) {
				return nil, &syntax.CompileError{
					Code:     syntax.ErrCodeUnboundVariable,
					Message:  fmt.Sprintf("%s is required but never bound", v),
					Rule:     rule.Name,
					Branch:   join.Name,
					Variable: v.String(),
					Conjunct: c.String(),
				}
			}
		}
	}

	return plan, nil
}

// liveCost is the base cost plus the cost of every cell still unbound.
func liveCost(c syntax.Conjunct, sc *scope.Scope) syntax.Cost {
	total := c.Cost()
	for _, v := range c.Cells().Vars() {
		if sc.IsBound(v) {
			continue
		}
		if cost, _ := c.Cells().Get(v); !cost.IsInf() {
			total += cost
		}
	}
	return total
}

func (p *Planner) planConjunct(rule *syntax.DeductiveRule, c syntax.Conjunct, sc *scope.Scope, cost syntax.Cost) (Plan, error) {
	switch node := c.(type) {
	case *syntax.Select:
		return &SelectPlan{Pattern: node.Pattern, cost: cost}, nil

	case *syntax.FormulaApplication:
		return &FormulaPlan{Formula: node, cost: cost}, nil

	case *syntax.RuleApplication:
		plan, err := p.planApplication(node, sc)
		if err != nil {
			return nil, err
		}
		plan.cost = cost
		return plan, nil

	case *syntax.Negation:
		operand, err := p.planConjunct(rule, node.Operand, sc, cost)
		if err != nil {
			return nil, err
		}
		return &NegationPlan{Operand: operand, cost: cost}, nil

	case *syntax.RuleRecursion:
		if rule == nil {
			return nil, &syntax.CompileError{
				Code:     syntax.ErrCodeInvalidTerm,
				Message:  "recur used outside a rule",
				Conjunct: node.String(),
			}
		}
		if err := p.planRecursiveCall(rule, node, sc); err != nil {
			return nil, err
		}
		return &RecursionPlan{Recursion: node, Rule: rule, cost: cost}, nil

	default:
		return nil, fmt.Errorf("unknown conjunct type %T", c)
	}
}

// planApplication composes the application's cursor with the caller scope
// to find which rule variables are bound on entry.
func (p *Planner) planApplication(app *syntax.RuleApplication, sc *scope.Scope) (*ApplicationPlan, error) {
	rule := p.program.Rule(app.Rule)
	inner := sc.Child(app.Cursor)

	var bound []ir.Variable
	for _, v := range rule.Match.Vars() {
		if _, ok := app.Bindings[v.ID]; ok || inner.IsBound(v) {
			bound = append(bound, v)
		}
	}

	for _, param := range rule.Required() {
		if containsVar(bound, param.Var) {
			continue
		}
		variable := param.Var.String()
		for _, m := range app.Mappings {
			if m.Slot == param.Name {
				variable = ir.FormatTerm(m.Term)
			}
		}
		return nil, &syntax.CompileError{
			Code:     syntax.ErrCodeUnboundVariable,
			Message:  fmt.Sprintf("%s must be bound to apply %q", variable, rule.Name),
			Variable: variable,
			Conjunct: app.String(),
		}
	}

	plan, err := p.planRule(rule, bound)
	if err != nil {
		return nil, err
	}
	return &ApplicationPlan{Application: app, Rule: plan, cost: liveCost(app, sc)}, nil
}

// planRecursiveCall plans the rule for the bindings a recursion step will
// carry, so every plan the fixed point needs exists before evaluation.
func (p *Planner) planRecursiveCall(rule *syntax.DeductiveRule, rec *syntax.RuleRecursion, sc *scope.Scope) error {
	var bound []ir.Variable
	for _, slot := range rec.Slots() {
		param, _ := rule.Match.Lookup(slot)
		if sc.IsBoundTerm(rec.Match[slot]) && !containsVar(bound, param.Var) {
			bound = append(bound, param.Var)
		}
	}
	key := keyFor(rule, bound)
	if p.planning[key] {
		return nil
	}
	_, err := p.planRule(rule, bound)
	return err
}

func containsVar(vars []ir.Variable, v ir.Variable) bool {
	for _, x := range vars {
		if x.ID == v.ID {
			return true
		}
	}
	return false
}
