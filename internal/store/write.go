package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/deduce/internal/ir"
)

// Op is the kind of change a transaction makes to a fact.
type Op int

const (
	// OpAssert stores a fact.
	OpAssert Op = iota
	// OpRetract removes a fact.
	OpRetract
)

func (op Op) String() string {
	if op == OpRetract {
		return "retract"
	}
	return "assert"
}

// Change is one assertion or retraction in a transaction.
type Change struct {
	Op   Op
	Fact ir.Datum
}

// Assert is a Change that stores d.
func Assert(d ir.Datum) Change { return Change{Op: OpAssert, Fact: d} }

// Retract is a Change that removes d.
func Retract(d ir.Datum) Change { return Change{Op: OpRetract, Fact: d} }

// Receipt describes a committed transaction.
type Receipt struct {
	ID        string // UUIDv7
	Seq       int64  // commit order
	Cause     ir.Ref // recorded on asserted facts without a cause
	Asserted  int    // facts newly stored
	Retracted int    // facts removed
}

func newTransactionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Transact applies changes atomically in order. Asserting a stored fact
// keeps its original cause; retracting a missing fact is a no-op.
func (s *Store) Transact(ctx context.Context, changes ...Change) (Receipt, error) {
	id := s.newID()
	receipt := Receipt{ID: id, Cause: ir.TransactionRef(id)}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("transact: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions",
	).Scan(&receipt.Seq); err != nil {
		return Receipt{}, fmt.Errorf("transact: next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (id, seq, cause) VALUES (?, ?, ?)",
		receipt.ID, receipt.Seq, marshalCause(receipt.Cause),
	); err != nil {
		return Receipt{}, fmt.Errorf("transact: record transaction: %w", err)
	}

	for i, c := range changes {
		n, err := s.apply(ctx, tx, receipt, c)
		if err != nil {
			return Receipt{}, fmt.Errorf("transact: change %d (%s): %w", i, c.Op, err)
		}
		if c.Op == OpRetract {
			receipt.Retracted += n
		} else {
			receipt.Asserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return Receipt{}, fmt.Errorf("transact: commit: %w", err)
	}

	s.logger.Debug("transaction committed",
		"id", receipt.ID,
		"seq", receipt.Seq,
		"asserted", receipt.Asserted,
		"retracted", receipt.Retracted)

	return receipt, nil
}

// apply executes one change inside tx and returns the rows affected.
func (s *Store) apply(ctx context.Context, tx *sql.Tx, receipt Receipt, c Change) (int, error) {
	entity, err := marshalScalar(c.Fact.Of)
	if err != nil {
		return 0, fmt.Errorf("of: %w", err)
	}
	attribute, err := marshalScalar(c.Fact.The)
	if err != nil {
		return 0, fmt.Errorf("the: %w", err)
	}
	value, err := marshalScalar(c.Fact.Is)
	if err != nil {
		return 0, fmt.Errorf("is: %w", err)
	}

	var result sql.Result
	switch c.Op {
	case OpRetract:
		result, err = tx.ExecContext(ctx,
			"DELETE FROM facts WHERE entity = ? AND attribute = ? AND value = ?",
			entity, attribute, value)
	default:
		cause := c.Fact.Cause
		if cause == "" {
			cause = receipt.Cause
		}
		result, err = tx.ExecContext(ctx, `
			INSERT INTO facts (entity, attribute, value, cause, tx)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entity, attribute, value) DO NOTHING
		`, entity, attribute, value, marshalCause(cause), receipt.ID)
	}
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Assert stores facts in one transaction.
func (s *Store) Assert(ctx context.Context, facts ...ir.Datum) (Receipt, error) {
	changes := make([]Change, len(facts))
	for i, d := range facts {
		changes[i] = Assert(d)
	}
	return s.Transact(ctx, changes...)
}

// Retract removes facts in one transaction.
func (s *Store) Retract(ctx context.Context, facts ...ir.Datum) (Receipt, error) {
	changes := make([]Change, len(facts))
	for i, d := range facts {
		changes[i] = Retract(d)
	}
	return s.Transact(ctx, changes...)
}
