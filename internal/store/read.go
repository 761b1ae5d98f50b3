package store

import (
	"context"
	"fmt"

	"github.com/roach88/deduce/internal/ir"
)

// Select returns every fact matching sel, ordered by entity, attribute and
// value. It implements engine.Querier.
func (s *Store) Select(ctx context.Context, sel ir.Selector) ([]ir.Datum, error) {
	query, params, err := s.compiler.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", sel, err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", sel, err)
	}
	defer rows.Close()

	var facts []ir.Datum
	for rows.Next() {
		var attribute, entity, value, cause string
		if err := rows.Scan(&attribute, &entity, &value, &cause); err != nil {
			return nil, fmt.Errorf("select %s: scan: %w", sel, err)
		}
		d, err := decodeFact(attribute, entity, value, cause)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", sel, err)
		}
		facts = append(facts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", sel, err)
	}
	return facts, nil
}

func decodeFact(attribute, entity, value, cause string) (ir.Datum, error) {
	var d ir.Datum
	var err error
	if d.The, err = unmarshalScalar(attribute); err != nil {
		return ir.Datum{}, err
	}
	if d.Of, err = unmarshalScalar(entity); err != nil {
		return ir.Datum{}, err
	}
	if d.Is, err = unmarshalScalar(value); err != nil {
		return ir.Datum{}, err
	}
	if d.Cause, err = unmarshalCause(cause); err != nil {
		return ir.Datum{}, err
	}
	return d, nil
}

// Transaction is a committed transaction record.
type Transaction struct {
	ID    string
	Seq   int64
	Cause ir.Ref
	Facts int // facts it asserted that are still stored
}

// Transactions returns the committed transactions in commit order.
func (s *Store) Transactions(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.seq, t.cause, COUNT(f.tx)
		FROM transactions t
		LEFT JOIN facts f ON f.tx = t.id
		GROUP BY t.id, t.seq, t.cause
		ORDER BY t.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var cause string
		if err := rows.Scan(&t.ID, &t.Seq, &cause, &t.Facts); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Cause, err = unmarshalCause(cause); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
