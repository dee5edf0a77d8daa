package csync

import (
	"context"
	"sync"

	"github.com/mkuznets/corosync/eventloop"
)

// RLockState is a snapshot of an RLock's ownership, produced by Reset and
// consumed by Set. It lets callers save and later restore reentrant
// ownership across a boundary the lock itself cannot see through, such as
// handing a long-lived operation off to a different coroutine.
type RLockState struct {
	Holder  eventloop.ID
	Counter int
}

// RLock is a re-entrant lock: the coroutine that holds it may acquire it
// again without blocking, and must release it the same number of times
// before it becomes available to others. It is built directly on top of a
// Lock, adding only the holder/counter bookkeeping needed for reentrancy.
type RLock struct {
	inner *Lock

	mu      sync.Mutex
	holder  eventloop.ID
	counter int
}

// NewRLock creates an unlocked RLock bound to loop.
func NewRLock(loop *eventloop.Loop) *RLock {
	return &RLock{inner: NewLock(loop)}
}

// Acquire acquires the lock for the calling coroutine, identified via ctx.
// If the calling coroutine already holds it, Acquire increments the
// reentrancy counter and returns immediately without touching the
// underlying Lock at all.
func (r *RLock) Acquire(ctx context.Context, blocking bool) (bool, error) {
	current := eventloop.CurrentCoroutine(ctx).ID()

	r.mu.Lock()
	if r.counter > 0 && r.holder == current {
		r.counter++
		r.mu.Unlock()
		return true, nil
	}
	r.mu.Unlock()

	ok, err := r.inner.Acquire(ctx, blocking)
	if err != nil || !ok {
		return false, err
	}

	r.mu.Lock()
	r.holder = current
	r.counter = 1
	r.mu.Unlock()
	return true, nil
}

// Release releases one level of reentrancy held by the calling coroutine.
// Once the counter reaches zero the underlying Lock is released, waking
// whichever coroutine is next in line. Releasing a lock the caller does
// not hold is a caller error: it is logged and otherwise ignored, leaving
// the lock's state untouched.
func (r *RLock) Release(ctx context.Context) {
	current := eventloop.CurrentCoroutine(ctx).ID()

	r.mu.Lock()
	if r.counter == 0 || r.holder != current {
		r.mu.Unlock()
		eventloop.Warnf("rlock", "release called by non-owner coroutine %d (holder=%d)", current, r.holder)
		return
	}
	r.counter--
	last := r.counter == 0
	if last {
		r.holder = 0
	}
	r.mu.Unlock()

	if last {
		r.inner.Release(1)
	}
}

// Reset clears the RLock's ownership unconditionally, releasing the
// underlying Lock if it was held, and returns the state that was in
// effect so it can later be restored with Set.
func (r *RLock) Reset() RLockState {
	r.mu.Lock()
	state := RLockState{Holder: r.holder, Counter: r.counter}
	r.holder = 0
	r.counter = 0
	r.mu.Unlock()

	if state.Counter > 0 {
		r.inner.Release(1)
	}
	return state
}

// Set restores a previously captured RLockState, blocking the calling
// coroutine to acquire the underlying Lock if the snapshot held it.
func (r *RLock) Set(ctx context.Context, state RLockState) (bool, error) {
	if state.Counter > 0 {
		ok, err := r.inner.Acquire(ctx, true)
		if err != nil || !ok {
			return false, err
		}
	}
	r.mu.Lock()
	r.holder = state.Holder
	r.counter = state.Counter
	r.mu.Unlock()
	return true, nil
}

// IsLocked reports whether the RLock is currently held by any coroutine.
func (r *RLock) IsLocked() bool { return r.inner.IsLocked() }

// IsOwned reports whether the calling coroutine, identified via ctx,
// currently holds the RLock.
func (r *RLock) IsOwned(ctx context.Context) bool {
	current := eventloop.CurrentCoroutine(ctx).ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter > 0 && r.holder == current
}
