package tx

import (
	"context"
	"sync"
	"time"

	dErrors "guildledger/pkg/domain-errors"
)

// defaultTxTimeout bounds how long a caller waits for the writer lock.
const defaultTxTimeout = 5 * time.Second

// Memory is a single-writer Runner for in-memory stores. Writers hold mu for
// the whole transaction. Stores keep their state in a Cell, so View reads the
// last committed snapshot and never waits for a writer.
type Memory struct {
	mu      sync.Mutex
	timeout time.Duration
}

// NewMemory returns an in-memory Runner.
func NewMemory() *Memory {
	return &Memory{timeout: defaultTxTimeout}
}

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := journalFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	j := &journal{}
	if err := m.locked(ctx, j, fn); err != nil {
		return err
	}
	j.committed()
	return nil
}

func (m *Memory) locked(ctx context.Context, j *journal, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	defer func() {
		if r := recover(); r != nil {
			j.rollback()
			panic(r)
		}
	}()
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	j.published()
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
