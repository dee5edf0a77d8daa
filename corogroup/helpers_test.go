package corogroup

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
