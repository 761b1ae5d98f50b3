package engine

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/deduce/internal/ir"
	"github.com/roach88/deduce/internal/projection"
	"github.com/roach88/deduce/internal/syntax"
)

// facts is an in-memory Querier that yields matches in slice order and
// counts calls.
type facts struct {
	data  []ir.Datum
	calls int
}

func (s *facts) Select(ctx context.Context, sel ir.Selector) ([]ir.Datum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.calls++
	var out []ir.Datum
	for _, d := range s.data {
		if sel.Matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func fact(of, the, is ir.Scalar) ir.Datum {
	return ir.Datum{Of: of, The: the, Is: is}
}

var errStoreDown = errors.New("store down")

func failing() Querier {
	return QuerierFunc(func(context.Context, ir.Selector) ([]ir.Datum, error) {
		return nil, errStoreDown
	})
}

// vars hands out one Variable per name, like a parsed rule body would.
type vars map[string]ir.Variable

func (vs vars) get(name string) ir.Variable {
	if v, ok := vs[name]; ok {
		return v
	}
	v := ir.NewVariable(name)
	vs[name] = v
	return v
}

func sig(vs vars, names ...string) syntax.Signature {
	out := make(syntax.Signature, len(names))
	for i, name := range names {
		out[i] = syntax.Param{Name: name, Var: vs.get(name)}
	}
	return out
}

func match(of, the, is ir.Term) *syntax.Select {
	return syntax.NewSelect(ir.Pattern{Of: of, The: the, Is: is})
}

func branch(name string, conjuncts ...syntax.Conjunct) syntax.Branch {
	return syntax.Branch{Name: name, Conjuncts: conjuncts}
}

func addRule(t *testing.T, prog *syntax.Program, name string, match syntax.Signature, when ...syntax.Branch) *syntax.DeductiveRule {
	t.Helper()
	rule, err := syntax.NewDeductiveRule(name, match, when)
	require.NoError(t, err)
	_, err = prog.Add(rule)
	require.NoError(t, err)
	return rule
}

func apply(t *testing.T, prog *syntax.Program, name string, m map[string]ir.Term) *syntax.RuleApplication {
	t.Helper()
	app, err := prog.Apply(name, m)
	require.NoError(t, err)
	return app
}

func formulaOf(t *testing.T, operator string, m map[string]syntax.Operand) *syntax.FormulaApplication {
	t.Helper()
	f, err := syntax.NewFormulaApplication(operator, m)
	require.NoError(t, err)
	return f
}

func negate(t *testing.T, c syntax.Conjunct) *syntax.Negation {
	t.Helper()
	n, err := syntax.NewNegation(c)
	require.NoError(t, err)
	return n
}

func query(t *testing.T, e *Engine, source Querier, app *syntax.RuleApplication) []projection.Record {
	t.Helper()
	records, err := e.Query(context.Background(), source, Request{Application: app})
	require.NoError(t, err)
	return records
}

// column returns the values of one field, sorted.
func column(records []projection.Record, field string) []ir.Scalar {
	out := make([]ir.Scalar, 0, len(records))
	for _, r := range records {
		if v, ok := r[field].(ir.Scalar); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return ir.Compare(out[i], out[j]) < 0 })
	return out
}
