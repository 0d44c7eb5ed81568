// Package waitcell provides a single-producer, multi-observer waitable
// cell: one goroutine publishes a value, any number of others can block
// until a predicate over the current value becomes true.
package waitcell

import (
	"context"
	"sync"
)

// Cell holds a value of type T plus a done flag, and lets observers block
// until either the value or the done flag changes in a way that satisfies
// their predicate. It is the mechanism behind the subscriber loop's
// cancellation handshake: the subscription id is unknown at subscribe time,
// so an observer waiting to cancel must be able to wake up both when the id
// arrives and when the worker finishes without ever publishing one.
type Cell[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value T
	done  bool
}

// New returns a ready-to-use Cell.
func New[T any]() *Cell[T] {
	c := &Cell[T]{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Set publishes a new value and wakes every waiter.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Clear resets the cell to its zero value, without marking it done. Used on
// disconnect: the subscription id from the old connection no longer applies.
func (c *Cell[T]) Clear() {
	var zero T
	c.Set(zero)
}

// MarkDone flags the cell as permanently finished and wakes every waiter.
// Once done, Get still returns the last value, and WaitUntilOrDone returns
// immediately with done set.
func (c *Cell[T]) MarkDone() {
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Get returns the current value and done flag.
func (c *Cell[T]) Get() (value T, done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.done
}

// WaitUntilOrDone blocks until either pred(value) is true, the cell has been
// marked done, or ctx is cancelled. It returns the value observed at wakeup
// along with the done flag; ok is false only if ctx was cancelled first.
func (c *Cell[T]) WaitUntilOrDone(ctx context.Context, pred func(value T) bool) (value T, done bool, ok bool) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Taking the lock orders the broadcast after the waiter's
			// ctx.Err check, so the wakeup cannot be lost.
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-stop:
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.done || pred(c.value) {
			return c.value, c.done, true
		}
		if ctx.Err() != nil {
			return c.value, c.done, false
		}
		c.cond.Wait()
	}
}
