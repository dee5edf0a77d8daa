package csync

import (
	"context"
	"sync"

	"github.com/mkuznets/corosync/eventloop"
)

// Condition is a condition variable: coroutines park on Wait and are woken
// by Notify/NotifyAll. It has no state of its own to wait on -- callers
// are expected to check their own predicate before and after each Wait,
// exactly as with sync.Cond.
//
// Internally each waiter is represented by a fresh, private Lock held
// acquired twice: the first Acquire always succeeds immediately (a brand
// new Lock has one free permit), the second blocks until Notify releases
// it. This mirrors the teacher's own approach of building higher-level
// blocking primitives out of Semaphore rather than a separate channel or
// condvar mechanism per primitive.
type Condition struct {
	loop *eventloop.Loop

	mu      sync.Mutex
	waiters []*Lock
}

// NewCondition creates a Condition bound to loop.
func NewCondition(loop *eventloop.Loop) *Condition {
	return &Condition{loop: loop}
}

// Wait parks the calling coroutine until Notify/NotifyAll wakes it, or the
// Condition is destroyed, or ctx is cancelled. It returns false, nil if
// the Condition was destroyed while this call was parked, and false, err
// if ctx was cancelled first.
func (c *Condition) Wait(ctx context.Context) (bool, error) {
	w, err := c.Enter(ctx)
	if err != nil {
		return false, err
	}
	return c.Park(ctx, w)
}

// Enter registers a new waiter and returns it already queued in FIFO
// order, without blocking for a wakeup. It is split out from Wait so that
// a caller that must check some other predicate can do so, and join the
// wait queue, as a single atomic step under its own lock -- closing the
// gap between "predicate was false" and "registered to be woken" that a
// plain check-then-Wait sequence leaves open to a notifier that runs
// (and finds nobody queued yet) in between. Most callers want Wait, not
// this, directly.
func (c *Condition) Enter(ctx context.Context) (*Lock, error) {
	w := NewLock(c.loop)
	if _, err := w.Acquire(ctx, true); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return w, nil
}

// Park blocks until w, previously returned by Enter, is woken by
// Notify/NotifyAll/Destroy, or ctx is cancelled.
func (c *Condition) Park(ctx context.Context, w *Lock) (bool, error) {
	ok, err := w.Acquire(ctx, true)
	c.removeWaiter(w)
	if err != nil {
		w.Release(1)
		return false, err
	}
	if ok {
		w.Release(1)
	}
	return ok, nil
}

func (c *Condition) removeWaiter(w *Lock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ww := range c.waiters {
		if ww == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Notify wakes up to n waiting coroutines, in FIFO order.
func (c *Condition) Notify(n int) {
	c.mu.Lock()
	if n > len(c.waiters) {
		n = len(c.waiters)
	}
	woken := c.waiters[:n]
	c.waiters = c.waiters[n:]
	c.mu.Unlock()

	for _, w := range woken {
		w.Release(1)
	}
}

// NotifyAll wakes every coroutine currently parked in Wait.
func (c *Condition) NotifyAll() {
	c.mu.Lock()
	n := len(c.waiters)
	c.mu.Unlock()
	c.Notify(n)
}

// Getting returns the number of coroutines currently parked in Wait.
func (c *Condition) Getting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Destroy wakes every currently parked waiter with a false result rather
// than a true one, so that a coroutine blocked in Wait can tell the
// Condition was torn down out from under it instead of legitimately
// notified. It does so by destroying each waiter's private Lock, reusing
// Semaphore's own destroy-wakes-false contract rather than inventing a
// second signalling path.
func (c *Condition) Destroy() {
	c.mu.Lock()
	woken := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range woken {
		w.Destroy()
	}
}
