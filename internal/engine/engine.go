package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/projection"
	"github.com/roach88/deduce/internal/scope"
	"github.com/roach88/deduce/internal/syntax"
)

// Engine plans and evaluates rule applications of one compiled program.
//
// Thread-safety model:
//   - Plan(), Evaluate(), Query(): safe from any goroutine
//   - rule plans are memoized in the shared Planner
//   - every evaluation owns its frames and its fixed-point state
type Engine struct {
	program *syntax.Program
	planner *Planner
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for planning and fixed-point diagnostics.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine over a compiled program.
func New(program *syntax.Program, opts ...Option) *Engine {
	e := &Engine{
		program: program,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.planner = NewPlanner(program, e.logger)
	return e
}

// Program returns the compiled program the engine evaluates.
func (e *Engine) Program() *syntax.Program {
	return e.program
}

// Planner returns the engine's shared planner.
func (e *Engine) Planner() *Planner {
	return e.planner
}

// Plan plans app in a root scope where the given caller variables are
// already bound. Every compile-time error surfaces here, before any fact is
// read.
func (e *Engine) Plan(app *syntax.RuleApplication, bound ...ir.Variable) (*ApplicationPlan, error) {
	return e.planner.PlanApplication(app, scope.New(bound...))
}

// Evaluate runs plan against source for every frame of selection.
func (e *Engine) Evaluate(ctx context.Context, source Querier, plan Plan, selection []ir.Frame) ([]ir.Frame, error) {
	ev := &evaluation{
		ctx:     ctx,
		source:  source,
		planner: e.planner,
		logger:  e.logger,
	}
	return plan.evaluate(ev, selection)
}

// Request is one query: a rule application, the caller bindings it starts
// from, and the output shape. A nil Select projects every caller variable
// under its slot name.
type Request struct {
	Application *syntax.RuleApplication
	Bindings    ir.Frame
	Select      *projection.Shape
}

// Query plans, evaluates and projects one request.
func (e *Engine) Query(ctx context.Context, source Querier, req Request) ([]projection.Record, error) {
	if req.Application == nil {
		return nil, fmt.Errorf("query has no rule application")
	}
	start := time.Now()

	var bound []ir.Variable
	for _, m := range req.Application.Mappings {
		v, ok := ir.AsVariable(m.Term)
		if !ok {
			continue
		}
		if _, ok := req.Bindings.Get(v); ok {
			bound = append(bound, v)
		}
	}

	plan, err := e.Plan(req.Application, bound...)
	if err != nil {
		return nil, err
	}

	frames, err := e.Evaluate(ctx, source, plan, []ir.Frame{req.Bindings})
	if err != nil {
		return nil, err
	}

	shape := req.Select
	if shape == nil {
		shape = DefaultShape(req.Application)
	}
	records, err := projection.Project(frames, shape)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("query evaluated",
		"rule", req.Application.Name,
		"frames", len(frames),
		"records", len(records),
		"duration", time.Since(start),
	)
	return records, nil
}

// DefaultShape projects each variable the application maps under the name
// of its slot.
func DefaultShape(app *syntax.RuleApplication) *projection.Shape {
	vars := make(map[string]ir.Variable)
	for _, m := range app.Mappings {
		if v, ok := ir.AsVariable(m.Term); ok && !v.IsBlank() {
			vars[m.Slot] = v
		}
	}
	return projection.Of(vars)
}
