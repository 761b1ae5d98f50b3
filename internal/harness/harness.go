package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/deduce/internal/cache"
	"github.com/roach88/deduce/internal/compiler"
	"github.com/roach88/deduce/internal/engine"
	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/memory"
	"github.com/roach88/deduce/internal/store"
	"github.com/roach88/deduce/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs queries against a fresh store with deterministic transaction ids.
type Harness struct {
	unit   *compiler.Unit
	engine *engine.Engine
	source engine.Querier
	logger *slog.Logger
}

// Option configures a scenario run.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the store and engine. Runs are
// silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store for isolation.
//
// Execution flow:
// 1. Compile the rules document
// 2. Open the store named by the scenario and assert the facts
// 3. Run each query and check its expectation
// 4. Return result with pass/fail, normalised records, and errors
//
// An error return means the scenario could not be executed at all; failed
// expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	result := NewResult()

	unit, err := compileRules(scenario)
	if scenario.Error != "" {
		expectRulesError(result, scenario.Error, err)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}

	facts, err := Datums(scenario.Facts)
	if err != nil {
		return nil, fmt.Errorf("facts: %w", err)
	}

	source, closeSource, err := openSource(ctx, scenario, facts, cfg.logger)
	if err != nil {
		return nil, err
	}
	defer closeSource()

	h := &Harness{
		unit:   unit,
		engine: engine.New(unit.Program, engine.WithLogger(cfg.logger)),
		source: source,
		logger: cfg.logger,
	}

	for i, step := range scenario.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		qr, err := h.runQuery(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("queries[%d]: %w", i, err)
		}
		result.Queries = append(result.Queries, qr)
		if err := checkQuery(step, qr); err != nil {
			result.AddError(err.Error())
		}
	}

	return result, nil
}

// compileRules compiles the scenario's inline or file rules document.
func compileRules(s *Scenario) (*compiler.Unit, error) {
	if s.RulesFile != "" {
		data, err := os.ReadFile(s.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
		return compiler.CompileBytes(s.RulesFile, data)
	}
	return compiler.CompileBytes(s.Name+".cue", []byte(s.Rules))
}

func expectRulesError(result *Result, expected string, err error) {
	if err == nil {
		result.AddError(fmt.Sprintf("rules: expected error containing %q, compiled cleanly", expected))
		return
	}
	result.RulesError = err.Error()
	if !strings.Contains(err.Error(), expected) {
		result.AddError(fmt.Sprintf("rules: expected error containing %q, got %q", expected, err.Error()))
	}
}

// openSource builds the scenario's store, loads facts and applies the
// optional cache. The returned func releases the store.
func openSource(ctx context.Context, s *Scenario, facts []ir.Datum, logger *slog.Logger) (engine.Querier, func(), error) {
	var source engine.Querier
	closeSource := func() {}

	switch s.Store {
	case StoreSQLite:
		ids := testutil.NewDeterministicIDs()
		st, err := store.Open(":memory:", store.WithLogger(logger), store.WithIDGenerator(ids.Next))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		if len(facts) > 0 {
			if _, err := st.Assert(ctx, facts...); err != nil {
				st.Close()
				return nil, nil, fmt.Errorf("load facts: %w", err)
			}
		}
		source = st
		closeSource = func() { st.Close() }
	default:
		source = memory.Load(facts...)
	}

	if s.CacheSize > 0 {
		c, err := cache.New(source, s.CacheSize)
		if err != nil {
			closeSource()
			return nil, nil, err
		}
		source = c
	}
	return source, closeSource, nil
}

// runQuery runs one step and records its outcome. Only harness failures are
// returned as errors; query errors are part of the outcome.
func (h *Harness) runQuery(ctx context.Context, step QueryStep) (QueryResult, error) {
	qr := QueryResult{Query: step.Query, Args: step.Args, Records: []any{}}

	records, err := h.query(ctx, step)
	if err != nil {
		qr.Error = err.Error()
		h.logger.Debug("query failed", "query", step.Query, "error", err)
	} else {
		qr.Records, err = normalizeRecords(records)
		if err != nil {
			return qr, err
		}
	}
	return qr, nil
}

// checkQuery holds a query's outcome against its step's expectation.
func checkQuery(step QueryStep, qr QueryResult) error {
	switch {
	case step.Error != "":
		return assertError(step.Query, step.Error, qr.Error)
	case qr.Error != "":
		return fmt.Errorf("query %s: unexpected error: %s", step.Query, qr.Error)
	case step.Expect != nil:
		return assertRecords(step.Query, step.Expect, qr.Records)
	}
	return nil
}

func (h *Harness) query(ctx context.Context, step QueryStep) ([]map[string]any, error) {
	q, ok := h.unit.Query(step.Query)
	if !ok {
		return nil, fmt.Errorf("unknown query %q", step.Query)
	}
	bindings, err := q.Bind(step.Args)
	if err != nil {
		return nil, err
	}
	records, err := h.engine.Query(ctx, h.source, engine.Request{
		Application: q.Application,
		Bindings:    bindings,
		Select:      q.Select,
	})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = rec
	}
	return out, nil
}
