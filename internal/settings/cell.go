// Package settings holds the host-delivered configuration and the
// single-assignment cell that gates cache-aware request handling until that
// configuration arrives.
package settings

import (
	"context"
	"sync"
)

// Cell is a write-once-then-visible slot. Readers that arrive before the
// first Set suspend; the first Set releases all of them with the value it
// wrote. Later Set calls only change what subsequent readers observe.
type Cell[T any] struct {
	mu       sync.Mutex
	ready    chan struct{}
	resolved bool
	initial  T
	latest   T
}

// NewCell returns an unresolved cell.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{ready: make(chan struct{})}
}

// Set makes v the latest value. The first call resolves pending readers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest = v
	if !c.resolved {
		c.initial = v
		c.resolved = true
		close(c.ready)
	}
}

// Await returns the latest value when the cell has resolved. Otherwise it
// blocks until the first Set and returns the value written by that call, or
// returns ctx.Err() if ctx ends first.
func (c *Cell[T]) Await(ctx context.Context) (T, error) {
	c.mu.Lock()
	if c.resolved {
		v := c.latest
		c.mu.Unlock()
		return v, nil
	}
	ready := c.ready
	c.mu.Unlock()

	select {
	case <-ready:
		// initial is written before ready is closed and never again.
		return c.initial, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the latest value without blocking.
func (c *Cell[T]) Peek() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.resolved
}

// Resolved reports whether Set has been called at least once.
func (c *Cell[T]) Resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}
