package csync

import (
	"context"
	"testing"
	"time"

	"github.com/mkuznets/corosync/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadEventWaitFromPlainGoroutine(t *testing.T) {
	e := NewThreadEvent()
	result := make(chan bool, 1)
	go func() {
		ok, err := e.Wait(context.Background(), true)
		require.NoError(t, err)
		result <- ok
	}()
	assert.Eventually(t, func() bool { return e.Getting() == 1 }, time.Second, time.Millisecond)

	e.Set()
	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("plain goroutine never woke")
	}
}

func TestThreadEventWaitFromLoopBoundCoroutine(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	e := NewThreadEvent()

	result := make(chan bool, 1)
	spawn(l, func(ctx context.Context) {
		ok, err := e.Wait(ctx, true)
		require.NoError(t, err)
		result <- ok
	})
	assert.Eventually(t, func() bool { return e.Getting() == 1 }, time.Second, time.Millisecond)

	e.Set()
	select {
	case ok := <-result:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("loop-bound coroutine never woke")
	}
}

func TestThreadEventWaitAcrossMultipleLoops(t *testing.T) {
	l1 := eventloop.New()
	l2 := eventloop.New()
	runLoop(t, l1)
	runLoop(t, l2)
	e := NewThreadEvent()

	results := make(chan bool, 2)
	spawn(l1, func(ctx context.Context) {
		ok, _ := e.Wait(ctx, true)
		results <- ok
	})
	spawn(l2, func(ctx context.Context) {
		ok, _ := e.Wait(ctx, true)
		results <- ok
	})
	assert.Eventually(t, func() bool { return e.Getting() == 2 }, time.Second, time.Millisecond)

	e.Set()
	for i := 0; i < 2; i++ {
		select {
		case ok := <-results:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("not all loops woke")
		}
	}
}

func TestThreadEventCloseWakesWithFalse(t *testing.T) {
	e := NewThreadEvent()
	result := make(chan bool, 1)
	go func() {
		ok, err := e.Wait(context.Background(), true)
		require.NoError(t, err)
		result <- ok
	}()
	assert.Eventually(t, func() bool { return e.Getting() == 1 }, time.Second, time.Millisecond)

	e.Close()
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("closed thread event did not wake waiter")
	}

	ok, err := e.Wait(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestThreadEventCancellation(t *testing.T) {
	e := NewThreadEvent()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := e.Wait(ctx, true)
		result <- err
	}()
	assert.Eventually(t, func() bool { return e.Getting() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancellation did not wake waiter")
	}
}

// TestThreadEventSetRacingWaitNeverLosesWakeup guards against a
// lost-wakeup regression: if checking the flag and joining the per-Loop
// Condition's wait queue are not atomic with respect to Set's flag
// transition, a Set that fires (and dispatches its deferred NotifyAll)
// between the check and the join wakes nobody, and since the flag only
// ever rises once, the waiter then hangs forever despite the flag being
// set. Races Set against a freshly spawned waiter with no synchronizing
// delay, repeatedly, to give that window every chance to bite.
func TestThreadEventSetRacingWaitNeverLosesWakeup(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)

	for i := 0; i < 200; i++ {
		e := NewThreadEvent()
		result := make(chan bool, 1)
		spawn(l, func(ctx context.Context) {
			ok, err := e.Wait(ctx, true)
			require.NoError(t, err)
			result <- ok
		})
		go e.Set()

		select {
		case ok := <-result:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: waiter never woke; Set raced ahead of queueing", i)
		}
	}
}

func TestThreadEventLinkPropagatesSet(t *testing.T) {
	a := NewThreadEvent()
	b := NewThreadEvent()
	a.Link(b)

	a.Set()
	assert.True(t, b.IsSet())
}

// TestThreadEventSetAfterLoopStopsDoesNotHang exercises the hold for a
// Loop whose Run has already returned: Set must still prune or otherwise
// tolerate it rather than blocking forever trying to reach a dispatcher
// that is no longer running.
func TestThreadEventSetAfterLoopStopsDoesNotHang(t *testing.T) {
	l := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(ctx) }()

	e := NewThreadEvent()
	waiterCtx, waiterCancel := context.WithCancel(context.Background())
	defer waiterCancel()
	spawn(l, func(ctx context.Context) {
		_, _ = e.Wait(waiterCtx, true)
	})
	assert.Eventually(t, func() bool { return e.Getting() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-runErr:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Eventually(t, func() bool { return !l.Running() }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		e.Set()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Set hung on a hold for a stopped loop")
	}

	waiterCancel()
}
