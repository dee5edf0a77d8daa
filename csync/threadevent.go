package csync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mkuznets/corosync/eventloop"
)

// teHold is one Loop's share of a ThreadEvent's waiters: a Condition that
// lives on that Loop, so coroutines running on it can park the ordinary
// cooperative way instead of blocking the whole OS thread.
type teHold struct {
	loop *eventloop.Loop
	cond *Condition
}

// ThreadEvent is the one primitive in this package safe to share across
// goroutines and across Loops at once. A plain goroutine not bound to any
// Loop waits on it with a stdlib sync.Cond; a coroutine bound to a Loop
// waits on a per-Loop Condition instead, woken via that Loop's
// CallLaterThreadSafe so the wakeup always happens on the right goroutine.
//
// The teacher's source manages a ThreadEvent's lifetime with manual
// atomic refcounting: the object deletes itself, and wakes any remaining
// waiters with the flag's current value, once the last reference drops.
// Go has no manual memory management to hook that deletion into, so this
// type splits the two things that refcounting was doing: the garbage
// collector keeps the struct alive for as long as anything references it,
// and an explicit Close, in the style of io.Closer, provides the "give up
// on this ThreadEvent, wake everyone" signal that used to ride along with
// the final decref.
type ThreadEvent struct {
	// flag is read lock-free by IsSet, but every transition, and every
	// check of it that decides whether to join a wait queue, happens
	// under mu -- see the doc comment on Set and waitCooperative for why.
	flag atomic.Bool

	mu     sync.Mutex
	cv     *sync.Cond
	holds  []*teHold
	closed bool

	plainWaiters int
	linkTo       []*ThreadEvent
	linkFrom     []*ThreadEvent
}

// NewThreadEvent creates an unset ThreadEvent.
func NewThreadEvent() *ThreadEvent {
	e := &ThreadEvent{}
	e.cv = sync.NewCond(&e.mu)
	return e
}

// IsSet reports the current value of the flag.
func (e *ThreadEvent) IsSet() bool { return e.flag.Load() }

// Set raises the flag, if it is not already raised, and wakes every
// waiter across every thread and Loop that is parked in Wait. Set is a
// no-op on an already-set ThreadEvent -- the rising edge only fires once.
//
// The flag transition happens under mu, the same lock waitCooperative
// holds while it checks the flag and joins a Loop's wait queue: that is
// what guarantees a waiter either observes the new flag value directly
// (and never queues at all) or was already queued before this call's
// snapshot of holds was taken (and is therefore guaranteed a wakeup).
// Without that shared lock, a waiter's "flag is false, about to queue"
// and this call's "flag is now true, here is who to notify" can
// interleave with the queueing landing after the notification already
// ran, losing the wakeup -- the rising edge never recurs to rescue it.
func (e *ThreadEvent) Set() {
	e.mu.Lock()
	if e.flag.Load() {
		e.mu.Unlock()
		return
	}
	e.flag.Store(true)
	holds := e.pruneDeadHoldsLocked()
	e.mu.Unlock()

	for _, h := range holds {
		cond := h.cond
		h.loop.CallLaterThreadSafe(0, cond.NotifyAll)
	}

	e.mu.Lock()
	e.cv.Broadcast()
	links := append([]*ThreadEvent(nil), e.linkTo...)
	e.mu.Unlock()
	for _, other := range links {
		other.Set()
	}
}

// Clear lowers the flag. A coroutine already resumed by a prior Set is
// not retroactively un-woken; Clear only affects future Wait calls and
// future rising edges from a subsequent Set.
func (e *ThreadEvent) Clear() {
	e.mu.Lock()
	e.flag.Store(false)
	e.mu.Unlock()
}

// Wait blocks until the flag is set, the ThreadEvent is Closed, or ctx is
// cancelled. If blocking is false, Wait returns the current flag value
// immediately.
//
// Cancellation via ctx is honoured for both loop-bound and plain
// goroutine callers; the teacher's OS-thread branch has no equivalent,
// since classic QThreads there are not subject to coroutine-style
// cancellation at all, but accepting ctx uniformly here is simpler than
// forking the contract by caller kind.
func (e *ThreadEvent) Wait(ctx context.Context, blocking bool) (bool, error) {
	if f := e.flag.Load(); f || !blocking {
		return f, nil
	}
	if loop := eventloop.CurrentLoop(ctx); loop != nil {
		return e.waitCooperative(ctx, loop)
	}
	return e.waitPlain(ctx)
}

func (e *ThreadEvent) waitCooperative(ctx context.Context, loop *eventloop.Loop) (bool, error) {
	cond := e.holdFor(loop)
	for {
		// The flag/closed check and joining cond's wait queue happen
		// under the same mu that Set and Close use for their own
		// transition, so a notify dispatched after this call observes
		// this waiter already queued -- see Set's doc comment.
		e.mu.Lock()
		if e.flag.Load() {
			e.mu.Unlock()
			return true, nil
		}
		if e.closed {
			e.mu.Unlock()
			return false, nil
		}
		w, err := cond.Enter(ctx)
		e.mu.Unlock()
		if err != nil {
			return false, err
		}

		ok, err := cond.Park(ctx, w)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
}

func (e *ThreadEvent) waitPlain(ctx context.Context) (bool, error) {
	e.mu.Lock()
	e.plainWaiters++
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cv.Broadcast()
		e.mu.Unlock()
	})
	for !e.flag.Load() && !e.closed && ctx.Err() == nil {
		e.cv.Wait()
	}
	f := e.flag.Load()
	closed := e.closed
	err := ctx.Err()
	e.plainWaiters--
	e.mu.Unlock()
	stop()

	if err != nil {
		return false, err
	}
	if closed && !f {
		return false, nil
	}
	return f, nil
}

func (e *ThreadEvent) holdFor(loop *eventloop.Loop) *Condition {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.holds {
		if h.loop == loop {
			return h.cond
		}
	}
	cond := NewCondition(loop)
	e.holds = append(e.holds, &teHold{loop: loop, cond: cond})
	return cond
}

// pruneDeadHoldsLocked drops holds for Loops that are no longer running
// and returns the surviving holds. Mirrors the teacher's own itor.remove()
// on a dead Loop weak-reference: a hold for a Loop whose Run has stopped
// can never be woken via CallLaterThreadSafe again anyway, so keeping it
// around is pure leakage -- left unpruned, a ThreadEvent shared across
// many short-lived Loops would accumulate one dead teHold per Loop
// forever. Must be called with mu held.
func (e *ThreadEvent) pruneDeadHoldsLocked() []*teHold {
	live := e.holds[:0]
	for _, h := range e.holds {
		if h.loop.Running() {
			live = append(live, h)
		}
	}
	e.holds = live
	return append([]*teHold(nil), live...)
}

// Getting returns the number of waiters currently parked in Wait, across
// every thread and every Loop that has ever called it.
func (e *ThreadEvent) Getting() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.plainWaiters
	for _, h := range e.holds {
		n += h.cond.Getting()
	}
	return n
}

// Close retires the ThreadEvent: every waiter currently parked in Wait is
// woken with false rather than whatever the flag happened to be, and all
// future Wait calls on an unset ThreadEvent return false, nil immediately
// instead of blocking. Close is idempotent, and safe to call from any
// goroutine regardless of which Loop, if any, is waiting.
func (e *ThreadEvent) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	holds := e.pruneDeadHoldsLocked()
	e.mu.Unlock()

	for _, h := range holds {
		cond := h.cond
		h.loop.CallLaterThreadSafe(0, cond.Destroy)
	}

	e.mu.Lock()
	e.cv.Broadcast()
	e.mu.Unlock()
}

// Link makes setting e also set other, transitively, exactly as
// Event.Link does.
func (e *ThreadEvent) Link(other *ThreadEvent) {
	e.mu.Lock()
	e.linkTo = append(e.linkTo, other)
	e.mu.Unlock()

	other.mu.Lock()
	other.linkFrom = append(other.linkFrom, e)
	other.mu.Unlock()
}

// Unlink removes a relationship previously established with Link.
func (e *ThreadEvent) Unlink(other *ThreadEvent) {
	e.mu.Lock()
	e.linkTo = removeThreadEvent(e.linkTo, other)
	e.mu.Unlock()

	other.mu.Lock()
	other.linkFrom = removeThreadEvent(other.linkFrom, e)
	other.mu.Unlock()
}

func removeThreadEvent(list []*ThreadEvent, target *ThreadEvent) []*ThreadEvent {
	for i, e := range list {
		if e == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
