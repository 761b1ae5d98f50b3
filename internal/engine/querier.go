package engine

import (
	"context"

	"github.com/roach88/deduce/internal/ir"
)

// Querier is the fact source the evaluator reads from.
//
// Select is called with zero to three fields of the selector set and must
// return every stored fact matching all set fields. Select is the only point
// where evaluation blocks; errors fail the enclosing query unchanged in kind.
type Querier interface {
	Select(ctx context.Context, sel ir.Selector) ([]ir.Datum, error)
}

// QuerierFunc adapts a function to the Querier interface.
type QuerierFunc func(ctx context.Context, sel ir.Selector) ([]ir.Datum, error)

// Select implements Querier.
func (f QuerierFunc) Select(ctx context.Context, sel ir.Selector) ([]ir.Datum, error) {
	return f(ctx, sel)
}
