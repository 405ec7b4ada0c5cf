package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATEs after which the whole transaction can be replayed.
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

const defaultMaxAttempts = 3

// SQL runs transactions at SERIALIZABLE isolation, which gives the ledger the
// total order over mutating calls it relies on. Conflicting transactions are
// retried a bounded number of times.
type SQL struct {
	db          *sql.DB
	maxAttempts int
}

// NewSQL returns a Runner backed by db.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db, maxAttempts: defaultMaxAttempts}
}

func (s *SQL) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		j := &journal{}
		err = s.runOnce(ctx, j, fn)
		if err == nil {
			j.committed()
			return nil
		}
		if !isRetryable(err) {
			return err
		}
	}
	return err
}

func (s *SQL) runOnce(ctx context.Context, j *journal, fn func(ctx context.Context) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	txCtx := context.WithValue(WithTx(ctx, sqlTx), journalKey{}, j)
	if err := fn(txCtx); err != nil {
		j.rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		j.rollback()
		return fmt.Errorf("commit transaction: %w", err)
	}
	j.published()
	return nil
}

// View reads committed state; Postgres never exposes uncommitted rows.
func (s *SQL) View(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}
