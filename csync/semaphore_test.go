package csync

import (
	"context"
	"testing"
	"time"

	"github.com/mkuznets/corosync/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreAcquireReleaseFIFO(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	s := NewSemaphore(l, 1)

	order := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		spawn(l, func(ctx context.Context) {
			ok, err := s.Acquire(ctx, true)
			require.NoError(t, err)
			require.True(t, ok)
			order <- i
		})
		// the very first spawn takes the only permit synchronously; give
		// later spawns a moment to enqueue before we release.
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, 1, <-order)
	assert.Equal(t, 2, s.Getting())

	s.Release(1)
	assert.Eventually(t, func() bool { return len(order) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, <-order)

	s.Release(1)
	assert.Eventually(t, func() bool { return len(order) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, <-order)
}

func TestSemaphoreNonBlockingAcquire(t *testing.T) {
	l := eventloop.New()
	s := NewSemaphore(l, 1)

	ok, err := s.Acquire(context.Background(), false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSemaphoreReleaseClampsToCapacity(t *testing.T) {
	l := eventloop.New()
	s := NewSemaphore(l, 2)

	s.Release(10)
	assert.False(t, s.IsUsed())

	ok1, _ := s.Acquire(context.Background(), false)
	ok2, _ := s.Acquire(context.Background(), false)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.True(t, s.IsLocked())
}

func TestSemaphoreAcquireCancellation(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	s := NewSemaphore(l, 1)
	require.True(t, firstOK(s.Acquire(context.Background(), false)))

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	coro := l.Go(ctx, func(ctx context.Context) {
		_, err := s.Acquire(ctx, true)
		done <- err
	})
	assert.Eventually(t, func() bool { return s.Getting() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("acquire did not observe cancellation")
	}
	assert.Eventually(t, coro.Dead, time.Second, time.Millisecond)
	assert.Equal(t, 0, s.Getting())
}

func TestSemaphoreDestroyWakesWaitersFalse(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	s := NewSemaphore(l, 1)
	require.True(t, firstOK(s.Acquire(context.Background(), false)))

	result := make(chan bool, 1)
	spawn(l, func(ctx context.Context) {
		ok, err := s.Acquire(ctx, true)
		require.NoError(t, err)
		result <- ok
	})
	assert.Eventually(t, func() bool { return s.Getting() == 1 }, time.Second, time.Millisecond)

	s.Destroy()
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("destroyed semaphore did not wake waiter")
	}

	ok, err := s.Acquire(context.Background(), true)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireAnyPicksFirstAvailable(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	a := NewSemaphore(l, 1)
	b := NewSemaphore(l, 1)
	require.True(t, firstOK(a.Acquire(context.Background(), false)))

	winner, ok, err := AcquireAny(context.Background(), []*Semaphore{a, b}, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, b, winner)
}

func TestAcquireAnyBlocksThenWins(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	a := NewSemaphore(l, 1)
	b := NewSemaphore(l, 1)
	require.True(t, firstOK(a.Acquire(context.Background(), false)))
	require.True(t, firstOK(b.Acquire(context.Background(), false)))

	type outcome struct {
		s   *Semaphore
		ok  bool
		err error
	}
	out := make(chan outcome, 1)
	spawn(l, func(ctx context.Context) {
		s, ok, err := AcquireAny(ctx, []*Semaphore{a, b}, true)
		out <- outcome{s, ok, err}
	})
	assert.Eventually(t, func() bool { return a.Getting() == 1 && b.Getting() == 1 }, time.Second, time.Millisecond)

	b.Release(1)
	select {
	case o := <-out:
		require.NoError(t, o.err)
		require.True(t, o.ok)
		assert.Same(t, b, o.s)
	case <-time.After(time.Second):
		t.Fatal("acquire-any did not resolve")
	}
	assert.Equal(t, 0, a.Getting())
	assert.Equal(t, 0, b.Getting())
}

// TestSemaphoreConcurrentAcquireReleaseNoLostWakeup guards against a
// lost-wakeup regression: if Acquire ever drops its mutex between
// checking the counter and joining the waiter queue, a Release landing in
// that gap bumps the counter, finds no waiters to drain, and leaves the
// late-joining waiter parked forever despite a permit being free. Run
// with many concurrent plain goroutines (not bound to any coroutine) to
// give that window every chance to bite; the Loop runs only to deliver
// the deferred drains that hand permits to queued waiters.
func TestSemaphoreConcurrentAcquireReleaseNoLostWakeup(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	s := NewSemaphore(l, 1)

	const n = 64
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			ok, err := s.Acquire(context.Background(), true)
			if err == nil && ok {
				s.Release(1)
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d/%d acquires completed; a waiter is likely stuck on a lost wakeup", i, n)
		}
	}
}

func firstOK(ok bool, err error) bool {
	return ok && err == nil
}
