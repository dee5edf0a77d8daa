package csync

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/mkuznets/corosync/eventloop"
)

// semWaiter is one parked Acquire call. ch delivers the outcome exactly
// once: true if a permit was handed to it, false if the Semaphore was
// destroyed while it waited. any is non-nil only for waiters parked by
// AcquireAny, where delivery is arbitrated across several semaphores.
type semWaiter struct {
	coro *eventloop.Coroutine
	ch   chan bool
	any  *anyWait
}

type anyWait struct {
	result    chan *Semaphore
	delivered atomic.Bool
}

// Semaphore is a counting semaphore affined to a single eventloop.Loop.
// Acquire blocks the calling coroutine until a permit is available (or the
// context is cancelled, or the Semaphore is destroyed); Release hands
// permits back, waking queued waiters in FIFO order on a deferred pass
// through the owning Loop rather than synchronously, so a burst of
// releases coalesces into a single drain instead of recursing through
// waiter after waiter.
//
// Semaphore additionally carries its own sync.Mutex, guarding the counter
// and waiter queue. The cooperative model this package is adapted from
// runs every coroutine on one OS thread and therefore needs no such lock;
// Go coroutines are real goroutines that can run on separate cores, so the
// mutex is required here to keep the same observable FIFO, exactly-once
// semantics under genuine parallelism.
type Semaphore struct {
	loop *eventloop.Loop

	mu      sync.Mutex
	init    int
	counter int
	waiters []*semWaiter

	notified  eventloop.CallHandle
	destroyed bool
}

// NewSemaphore creates a Semaphore with capacity permits, all initially
// available, bound to loop. capacity must be non-negative.
func NewSemaphore(loop *eventloop.Loop, capacity int) *Semaphore {
	return &Semaphore{loop: loop, init: capacity, counter: capacity}
}

// Acquire takes one permit, blocking the calling coroutine if none are
// currently available and blocking is true. It returns false, nil if the
// Semaphore was destroyed (either before this call was made, or while it
// was queued); it returns false, err if ctx was cancelled first, in which
// case the waiter is dequeued and never receives a permit -- unless a
// permit was already in flight for it when cancellation landed, in which
// case Acquire hands that permit straight back via Release so it is never
// silently lost.
func (s *Semaphore) Acquire(ctx context.Context, blocking bool) (bool, error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false, nil
	}
	if s.counter > 0 {
		s.counter--
		s.mu.Unlock()
		return true, nil
	}
	if !blocking {
		s.mu.Unlock()
		return false, nil
	}

	// The mutex stays held from here through enqueue: a Release landing
	// between the counter check above and the waiter actually joining
	// s.waiters would bump the counter, see no waiters to drain, and
	// leave this call parked forever despite a permit being free.
	if err := eventloop.AssertNotEventLoop(ctx); err != nil {
		s.mu.Unlock()
		return false, err
	}

	w := &semWaiter{coro: eventloop.CurrentCoroutine(ctx), ch: make(chan bool, 1)}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case ok := <-w.ch:
		return ok, nil
	case <-ctx.Done():
		s.removeWaiter(w)
		return false, ctx.Err()
	}
}

// AcquireN acquires n permits one at a time. If any of the n acquisitions
// fails (because the Semaphore was destroyed or, for a non-blocking call,
// because not enough permits were free), AcquireN returns false having
// already kept whatever permits it acquired before the failure -- it does
// not roll back. Callers that cannot tolerate a partial acquisition must
// release the permits themselves; see the design notes on this behavior
// for the reasoning.
func (s *Semaphore) AcquireN(ctx context.Context, n int, blocking bool) (bool, error) {
	if n > s.init {
		return false, nil
	}
	for i := 0; i < n; i++ {
		ok, err := s.Acquire(ctx, blocking)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Release returns n permits, clamped so the counter never exceeds the
// capacity the Semaphore was created with. If waiters are queued and no
// drain is already scheduled, Release arranges one via CallLater(0, ...)
// so that waiters resume after the current callback returns, not from
// inside Release itself.
func (s *Semaphore) Release(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	if s.counter > math.MaxInt-n {
		s.counter = math.MaxInt
	} else {
		s.counter += n
	}
	if s.counter > s.init {
		s.counter = s.init
	}
	if s.notified == 0 && len(s.waiters) > 0 {
		s.notified = s.loop.CallLater(0, s.drain)
	}
}

// drain hands out permits to queued waiters in FIFO order until either the
// counter or the queue runs dry.
func (s *Semaphore) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.counter > 0 && len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		if w.coro != nil && w.coro.Dead() {
			eventloop.Debugf("semaphore", "waiter coroutine is dead, skipping")
			continue
		}
		if w.any != nil {
			if !w.any.delivered.CompareAndSwap(false, true) {
				continue
			}
			s.counter--
			w.any.result <- s
			continue
		}
		s.counter--
		w.ch <- true
	}
	s.notified = 0
}

// removeWaiter drops w from the queue if it is still there. If it is not
// -- meaning drain already popped it concurrently with the caller's own
// cancellation -- and a permit was granted to it, that permit is handed
// back via Release rather than lost.
func (s *Semaphore) removeWaiter(w *semWaiter) {
	s.mu.Lock()
	for i, ww := range s.waiters {
		if ww == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()
	select {
	case ok := <-w.ch:
		if ok {
			s.Release(1)
		}
	default:
	}
}

func (s *Semaphore) removeWaiterPlain(w *semWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ww := range s.waiters {
		if ww == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// IsLocked reports whether the Semaphore currently has no permits free.
func (s *Semaphore) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter <= 0
}

// IsUsed reports whether at least one permit is currently held.
func (s *Semaphore) IsUsed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter < s.init
}

// Getting returns the number of coroutines currently parked in Acquire.
func (s *Semaphore) Getting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// Available returns the number of permits currently free to Acquire
// without blocking.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counter < 0 {
		return 0
	}
	return s.counter
}

// Destroy retires the Semaphore: every currently queued waiter is resumed
// with false on the next pass through the owning Loop, regardless of the
// counter, and all future Acquire calls return false, nil immediately.
// Destroy is idempotent.
func (s *Semaphore) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	if s.notified != 0 {
		s.loop.CancelCall(s.notified)
		s.notified = 0
	}
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	if len(waiters) == 0 {
		return
	}
	s.loop.CallLater(0, func() {
		for _, w := range waiters {
			if w.coro != nil && w.coro.Dead() {
				continue
			}
			if w.any != nil {
				if w.any.delivered.CompareAndSwap(false, true) {
					w.any.result <- nil
				}
				continue
			}
			w.ch <- false
		}
	})
}

// AcquireAny races a single permit request across several semaphores and
// returns whichever one grants it first. On success it also cancels the
// parked waiter it registered on every other semaphore in the list, so
// only one permit is ever actually taken.
func AcquireAny(ctx context.Context, sems []*Semaphore, blocking bool) (*Semaphore, bool, error) {
	for _, s := range sems {
		if ok, _ := s.Acquire(ctx, false); ok {
			return s, true, nil
		}
	}
	if !blocking {
		return nil, false, nil
	}
	if err := eventloop.AssertNotEventLoop(ctx); err != nil {
		return nil, false, err
	}

	coro := eventloop.CurrentCoroutine(ctx)
	aw := &anyWait{result: make(chan *Semaphore, len(sems))}
	waiters := make([]*semWaiter, len(sems))
	for i, s := range sems {
		w := &semWaiter{coro: coro, any: aw}
		waiters[i] = w
		s.mu.Lock()
		if !s.destroyed {
			s.waiters = append(s.waiters, w)
		}
		s.mu.Unlock()
	}
	removeAll := func() {
		for i, s := range sems {
			s.removeWaiterPlain(waiters[i])
		}
	}

	select {
	case winner := <-aw.result:
		removeAll()
		if winner == nil {
			return nil, false, nil
		}
		return winner, true, nil
	case <-ctx.Done():
		select {
		case winner := <-aw.result:
			if winner != nil {
				winner.Release(1)
			}
		default:
		}
		removeAll()
		return nil, false, ctx.Err()
	}
}
