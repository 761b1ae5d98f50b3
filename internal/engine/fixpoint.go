package engine

import (
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/syntax"
)

// call is one invocation of a recursive rule, identified by its initial
// frame. Its answers are rule-local frames over the match variables.
type call struct {
	initial ir.Frame
	plan    *RulePlan
	answers *ir.FrameSet
	waiters []*waiter
}

// waiter is a suspended branch of consumer: the frame that reached a
// recursion step and the steps left to run once an answer arrives.
type waiter struct {
	consumer  *call
	frame     ir.Frame
	recursion *RecursionPlan
	rest      *JoinPlan
}

// fixpoint evaluates one application of a recursive rule by tabling.
//
// Every distinct initial frame becomes one call evaluated exactly once. A
// recursion request whose initial frame matches an existing call only
// registers a waiter, so cyclic recursion terminates. A request for the very
// call that issued it also counts as an answer of that call. New answers are
// pushed to every waiter until the worklist drains.
type fixpoint struct {
	ev    *evaluation
	rule  *syntax.DeductiveRule
	vars  []ir.Variable
	calls map[uint64][]*call
	queue *worklist

	callCount  int
	iterations int
}

func newFixpoint(ev *evaluation, rule *syntax.DeductiveRule) *fixpoint {
	return &fixpoint{
		ev:    ev,
		rule:  rule,
		vars:  rule.Match.Vars(),
		calls: make(map[uint64][]*call),
		queue: newWorklist(),
	}
}

// run evaluates the root call and returns its answers.
func (fp *fixpoint) run(initial ir.Frame, plan *RulePlan) ([]ir.Frame, error) {
	root := fp.lookup(initial, plan)

	for {
		t, ok := fp.queue.Pop()
		if !ok {
			break
		}
		if err := fp.ev.ctx.Err(); err != nil {
			return nil, err
		}
		fp.iterations++

		var (
			frames   []ir.Frame
			consumer *call
			err      error
		)
		if t.waiter == nil {
			consumer = t.call
			frames, err = t.call.plan.evaluate(fp.ev.within(fp, t.call), []ir.Frame{t.call.initial})
		} else {
			consumer = t.waiter.consumer
			frames, err = fp.deliver(t.waiter, t.answer)
		}
		if err != nil {
			return nil, err
		}
		for _, f := range frames {
			fp.answer(consumer, f)
		}
	}

	fp.ev.logger.Debug("fixed point reached",
		"rule", fp.rule.Name,
		"calls", fp.callCount,
		"iterations", fp.iterations,
		"answers", root.answers.Len(),
	)
	return root.answers.Frames(), nil
}

// lookup returns the call for initial, creating and scheduling it if new.
func (fp *fixpoint) lookup(initial ir.Frame, plan *RulePlan) *call {
	h := initial.Identity()
	for _, c := range fp.calls[h] {
		if c.initial.Equal(initial) {
			return c
		}
	}
	c := &call{initial: initial, plan: plan, answers: ir.NewFrameSet()}
	fp.calls[h] = append(fp.calls[h], c)
	fp.callCount++
	fp.queue.Push(task{call: c})
	return c
}

// request registers consumer's frame f as waiting on the call its recursion
// step asks for, replaying answers that call already has.
func (fp *fixpoint) request(consumer *call, f ir.Frame, rec *RecursionPlan, rest *JoinPlan) error {
	initial, ok := rec.next(f)
	if !ok {
		return nil
	}

	callee, err := fp.callFor(initial)
	if err != nil {
		return err
	}

	w := &waiter{consumer: consumer, frame: f, recursion: rec, rest: rest}
	callee.waiters = append(callee.waiters, w)
	for _, answer := range callee.answers.Frames() {
		fp.queue.Push(task{waiter: w, answer: answer})
	}

	if callee == consumer {
		return fp.tautology(w, initial)
	}
	return nil
}

// tautology records a recursion that asks for the call it was issued from.
// The request itself holds as an answer, recorded once; the call is not
// scheduled again.
func (fp *fixpoint) tautology(w *waiter, initial ir.Frame) error {
	frames, err := fp.deliver(w, initial)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if f.Project(fp.vars).Len() < len(fp.vars) {
			continue
		}
		fp.answer(w.consumer, f)
	}
	return nil
}

func (fp *fixpoint) callFor(initial ir.Frame) (*call, error) {
	h := initial.Identity()
	for _, c := range fp.calls[h] {
		if c.initial.Equal(initial) {
			return c, nil
		}
	}
	plan, err := fp.ev.planner.rulePlanFor(fp.rule, initial)
	if err != nil {
		return nil, err
	}
	return fp.lookup(initial, plan), nil
}

// deliver joins one answer into a waiting frame and runs the rest of its
// branch.
func (fp *fixpoint) deliver(w *waiter, answer ir.Frame) ([]ir.Frame, error) {
	g, ok := w.recursion.join(w.frame, answer)
	if !ok {
		return nil, nil
	}
	return w.rest.evaluate(fp.ev.within(fp, w.consumer), []ir.Frame{g})
}

// answer records f as an answer of c and notifies c's waiters when new.
func (fp *fixpoint) answer(c *call, f ir.Frame) {
	projected := f.Project(fp.vars)
	if !c.answers.Add(projected) {
		return
	}
	for _, w := range c.waiters {
		fp.queue.Push(task{waiter: w, answer: projected})
	}
}
