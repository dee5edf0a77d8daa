package corogroup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuznets/corosync/eventloop"
)

func TestGroupGoJoinReturnsError(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	g := NewGroup(l)

	wantErr := errors.New("boom")
	finish := make(chan struct{})
	_, err := g.Go(context.Background(), "worker", func(ctx context.Context) error {
		<-finish
		return wantErr
	})
	require.NoError(t, err)

	// A finished coroutine leaves the Group, so let it finish only once
	// Join is already waiting on it.
	g.mu.Lock()
	workerDone := g.byName["worker"].done
	g.mu.Unlock()
	go func() {
		assert.Eventually(t, func() bool { return workerDone.Getting() == 1 }, time.Second, time.Millisecond)
		close(finish)
	}()

	joinErr, found := g.Join(context.Background(), "worker")
	require.True(t, found)
	assert.Equal(t, wantErr, joinErr)
}

func TestGroupGoRejectsDuplicateName(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	g := NewGroup(l)

	block := make(chan struct{})
	_, err := g.Go(context.Background(), "only", func(ctx context.Context) error {
		<-block
		return nil
	})
	require.NoError(t, err)

	_, err = g.Go(context.Background(), "only", func(ctx context.Context) error { return nil })
	assert.Error(t, err)

	close(block)
}

func TestGroupHasAndGetReflectLifetime(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	g := NewGroup(l)

	done := make(chan struct{})
	_, err := g.Go(context.Background(), "w", func(ctx context.Context) error {
		<-done
		return nil
	})
	require.NoError(t, err)

	assert.True(t, g.Has("w"))
	assert.NotNil(t, g.Get("w"))

	close(done)

	assert.Eventually(t, func() bool { return !g.Has("w") }, time.Second, time.Millisecond)
}

func TestGroupKillCancelsContext(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	g := NewGroup(l)

	cancelled := make(chan struct{})
	_, err := g.Go(context.Background(), "w", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	require.NoError(t, err)

	assert.True(t, g.Kill("w"))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("coroutine was not cancelled")
	}
}

func TestGroupKillUnknownNameReturnsFalse(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	g := NewGroup(l)
	assert.False(t, g.Kill("nope"))
}

func TestGroupJoinAllWaitsForEveryone(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	g := NewGroup(l)

	const n = 4
	gates := make([]chan struct{}, n)
	for i := range gates {
		gates[i] = make(chan struct{})
		gate := gates[i]
		_, err := g.Go(context.Background(), "", func(ctx context.Context) error {
			<-gate
			return nil
		})
		require.NoError(t, err)
	}

	joined := make(chan error, 1)
	go func() { joined <- g.JoinAll(context.Background()) }()

	select {
	case <-joined:
		t.Fatal("JoinAll returned before every coroutine finished")
	case <-time.After(50 * time.Millisecond):
	}

	for _, gate := range gates {
		close(gate)
	}

	select {
	case err := <-joined:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("JoinAll did not return")
	}
}

func TestGroupAnyReturnsFirstFinisher(t *testing.T) {
	l := eventloop.New()
	runLoop(t, l)
	g := NewGroup(l)

	slow := make(chan struct{})
	_, err := g.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-slow
		return nil
	})
	require.NoError(t, err)

	fast := make(chan struct{})
	fastErr := errors.New("fast done")
	_, err = g.Go(context.Background(), "fast", func(ctx context.Context) error {
		<-fast
		return fastErr
	})
	require.NoError(t, err)

	// A finished coroutine leaves the Group, so let "fast" finish only once
	// Any is already waiting on it.
	g.mu.Lock()
	fastDone := g.byName["fast"].done
	g.mu.Unlock()
	go func() {
		assert.Eventually(t, func() bool { return fastDone.Getting() == 1 }, time.Second, time.Millisecond)
		close(fast)
	}()

	name, err, waitErr := g.Any(context.Background(), "slow", "fast")
	require.NoError(t, waitErr)
	assert.Equal(t, "fast", name)
	assert.Equal(t, fastErr, err)

	close(slow)
}
