// Package tx provides the transactional boundary every mutating ledger
// operation runs inside.
//
// A Runner executes fn as one atomic unit: either every store write made
// through the context passed to fn commits, or none of them does. Runners are
// reentrant: a RunInTx call made with a context that is already inside a
// transaction joins it instead of opening a nested one, so a service can call
// another service's mutating method as part of its own transaction.
package tx

import (
	"context"
	"database/sql"
)

// Runner is the transactional boundary shared by all ledger services.
type Runner interface {
	// RunInTx executes fn atomically. A non-nil error from fn rolls back.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	// View executes fn against committed state only.
	View(ctx context.Context, fn func(ctx context.Context) error) error
}

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Executor is the subset of *sql.DB and *sql.Tx that stores query through.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecutorFrom returns the transaction in ctx, or db when there is none.
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}
