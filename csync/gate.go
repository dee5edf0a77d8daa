package csync

import (
	"context"

	"github.com/mkuznets/corosync/eventloop"
)

// Gate is a binary traffic-control primitive, distinct from Lock in
// intent even though it is built on one: Close shuts the gate for
// everyone regardless of who eventually opens it, and GoThrough lets a
// coroutine pass only while it is open, whereas Lock's Acquire/Release
// pair is about mutual exclusion between the same two call sites.
type Gate struct {
	lock *Lock
}

// NewGate creates an open Gate bound to loop.
func NewGate(loop *eventloop.Loop) *Gate {
	return &Gate{lock: NewLock(loop)}
}

// Close shuts the gate, blocking the calling coroutine if it is already
// mid-close by someone else. Closing an already-closed gate is a no-op.
func (g *Gate) Close(ctx context.Context) (bool, error) {
	if !g.lock.IsLocked() {
		return g.lock.Acquire(ctx, true)
	}
	return true, nil
}

// Open opens the gate, if it is currently closed.
func (g *Gate) Open() {
	if g.lock.IsLocked() {
		g.lock.Release(1)
	}
}

// IsOpen reports whether the gate currently lets coroutines through.
func (g *Gate) IsOpen() bool { return !g.lock.IsLocked() }

// IsClosed reports whether the gate currently blocks coroutines.
func (g *Gate) IsClosed() bool { return g.lock.IsLocked() }

// GoThrough passes the calling coroutine through the gate. If the gate is
// open, it returns true immediately without blocking. If it is closed and
// blocking is true, the caller parks until the gate opens; it does not
// itself hold the gate open afterwards, so a GoThrough racing a concurrent
// Close can still be made to wait again on its very next call.
func (g *Gate) GoThrough(ctx context.Context, blocking bool) (bool, error) {
	if !g.lock.IsLocked() {
		return true, nil
	}
	ok, err := g.lock.Acquire(ctx, blocking)
	if err != nil || !ok {
		return false, err
	}
	g.lock.Release(1)
	return true, nil
}
