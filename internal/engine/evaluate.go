package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/syntax"
)

// evaluation carries what plan nodes need while running: the fact source,
// the planner for per-call rule plans, and the fixed point (plus the call
// being evaluated) when inside a recursive rule body.
type evaluation struct {
	ctx     context.Context
	source  Querier
	planner *Planner
	logger  *slog.Logger

	fp   *fixpoint
	call *call
}

// within returns an evaluation for the body of call c.
func (ev *evaluation) within(fp *fixpoint, c *call) *evaluation {
	return &evaluation{
		ctx:     ev.ctx,
		source:  ev.source,
		planner: ev.planner,
		logger:  ev.logger,
		fp:      fp,
		call:    c,
	}
}

// solve returns the distinct answers of rule for one rule-local initial
// frame, projected onto the rule's match variables.
func (ev *evaluation) solve(rule *syntax.DeductiveRule, initial ir.Frame) ([]ir.Frame, error) {
	plan, err := ev.planner.rulePlanFor(rule, initial)
	if err != nil {
		return nil, err
	}

	if rule.Recurs {
		fp := newFixpoint(ev, rule)
		return fp.run(initial, plan)
	}

	frames, err := plan.evaluate(ev.within(nil, nil), []ir.Frame{initial})
	if err != nil {
		return nil, err
	}
	vars := rule.Match.Vars()
	answers := ir.NewFrameSet()
	for _, f := range frames {
		answers.Add(f.Project(vars))
	}
	return answers.Frames(), nil
}

// request routes frames that reached a recursion step to the fixed point.
func (ev *evaluation) request(rec *RecursionPlan, selection []ir.Frame, rest *JoinPlan) error {
	if ev.fp == nil || ev.call == nil {
		return &RuntimeError{
			Code:    ErrCodeInvalidPlan,
			Message: "recursion evaluated outside its rule",
			Rule:    rec.Rule.Name,
		}
	}
	for _, f := range selection {
		if err := ev.fp.request(ev.call, f, rec, rest); err != nil {
			return err
		}
	}
	return nil
}
