package tx

import (
	"context"
	"sync"
	"sync/atomic"
)

// Cell holds the state of one in-memory store. Readers load the last
// committed snapshot without taking a lock. A transaction writes to its own
// clone, which is published when the transaction commits and dropped when it
// rolls back. One transaction at a time may write a cell.
type Cell[T any] struct {
	committed atomic.Pointer[T]
	clone     func(T) T

	writer  sync.Mutex // held by the owning transaction until it finishes
	mu      sync.Mutex // guards owner and pending
	owner   *journal
	pending *T
}

// NewCell returns a cell holding initial. clone must copy every map and
// slice that Update callbacks modify in place.
func NewCell[T any](initial T, clone func(T) T) *Cell[T] {
	c := &Cell[T]{clone: clone}
	c.committed.Store(&initial)
	return c
}

// Load returns the state visible to ctx: the open transaction's copy when ctx
// belongs to the transaction writing this cell, otherwise the committed
// snapshot. Callers must not modify the result.
func (c *Cell[T]) Load(ctx context.Context) T {
	if p := c.pendingFor(ctx); p != nil {
		return *p
	}
	return *c.committed.Load()
}

// Update applies fn to a writable copy of the state. fn must leave the copy
// untouched when it returns an error. Outside a transaction the copy is
// published as soon as fn succeeds.
func (c *Cell[T]) Update(ctx context.Context, fn func(*T) error) error {
	if p := c.pendingFor(ctx); p != nil {
		return fn(p)
	}

	j, inTx := journalFrom(ctx)
	c.writer.Lock()
	next := c.clone(*c.committed.Load())
	if !inTx {
		defer c.writer.Unlock()
		if err := fn(&next); err != nil {
			return err
		}
		c.committed.Store(&next)
		return nil
	}

	c.mu.Lock()
	c.owner, c.pending = j, &next
	c.mu.Unlock()
	j.publish = append(j.publish, func() { c.release(true) })
	j.undo = append(j.undo, func() { c.release(false) })
	return fn(&next)
}

func (c *Cell[T]) pendingFor(ctx context.Context) *T {
	j, ok := journalFrom(ctx)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner != j {
		return nil
	}
	return c.pending
}

func (c *Cell[T]) release(publish bool) {
	c.mu.Lock()
	if publish {
		c.committed.Store(c.pending)
	}
	c.owner, c.pending = nil, nil
	c.mu.Unlock()
	c.writer.Unlock()
}
