// Package store provides SQLite-backed durable storage for facts.
//
// A fact is an (entity, attribute, value) triple plus the cause that
// asserted it. The store implements engine.Querier so rules can be
// evaluated directly against it.
//
// # Transactions
//
// Every write goes through Transact, which applies a batch of assertions and
// retractions atomically. Each transaction gets a UUIDv7 id and a commit
// sequence number; facts it asserts without a cause record
// ir.TransactionRef(id). Asserting a fact that is already stored keeps the
// original cause. Retracting deletes the fact.
//
// # Deterministic Query Results
//
//   - Select orders by entity, attribute, value with COLLATE BINARY
//   - Scalars are stored as canonical JSON, so 1 and 1.0 stay distinct
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
