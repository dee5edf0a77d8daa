package csync

import (
	"context"
	"testing"

	"github.com/mkuznets/corosync/eventloop"
)

// runLoop starts l.Run on a fresh goroutine and arranges for it to stop
// when the test ends.
func runLoop(t *testing.T, l *eventloop.Loop) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(cancel)
}

// spawn runs fn as a coroutine on l without waiting for it, and returns a
// channel that is closed once fn returns.
func spawn(l *eventloop.Loop, fn func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	l.Go(context.Background(), func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})
	return done
}
