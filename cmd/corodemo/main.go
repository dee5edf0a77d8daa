// Command corodemo is a small, runnable demonstration of the eventloop,
// csync, and corogroup packages working together: a handful of
// coroutines contend over a semaphore-backed pool, coordinate via a
// Gate and an Event, and have their names joined back by a Group --
// with everything logged through logiface atop slog.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"

	"github.com/mkuznets/corosync/corogroup"
	"github.com/mkuznets/corosync/csync"
	"github.com/mkuznets/corosync/eventloop"
)

func main() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := logiface.New[*logifaceslog.Event](logifaceslog.NewLogger(handler))

	loop := eventloop.New(
		eventloop.WithTaskQueueCapacity(64),
		eventloop.WithOnOverload(func(pending int) {
			logger.Warning().Int("pending", pending).Log("event loop task queue is overloaded")
		}),
	)

	runCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(runCtx) }()

	if err := run(context.Background(), loop, logger); err != nil {
		logger.Err().Err(err).Log("demo run failed")
		os.Exit(1)
	}

	stopLoop()
	<-loopErr
}

// run drives the demo to completion: it fills a two-permit Pool with
// five jobs, has one named coroutine wait on a Gate that a sixth
// coroutine opens after a short delay, and finally joins everything
// through a Group.
func run(ctx context.Context, loop *eventloop.Loop, logger *logiface.Logger[*logifaceslog.Event]) error {
	gate := csync.NewGate(loop)
	ready := csync.NewEvent(loop)
	group := corogroup.NewGroup(loop)
	pool := corogroup.NewPool(loop, 2, corogroup.WithPoolName("demo-pool"))

	if _, err := gate.Close(ctx); err != nil {
		return fmt.Errorf("closing gate: %w", err)
	}

	_, err := group.Go(ctx, "opener", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		gate.Open()
		ready.Set()
		logger.Info().Log("gate opened")
		return nil
	})
	if err != nil {
		return fmt.Errorf("spawning opener: %w", err)
	}

	_, err = group.Go(ctx, "waiter", func(ctx context.Context) error {
		ok, err := gate.GoThrough(ctx, true)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("gate closed permanently before waiter got through")
		}
		logger.Info().Log("waiter passed through the gate")
		return nil
	})
	if err != nil {
		return fmt.Errorf("spawning waiter: %w", err)
	}

	for i := 0; i < 5; i++ {
		i := i
		err := pool.Submit(ctx, func(ctx context.Context) error {
			logger.Debug().Int("job", i).Log("job started")
			time.Sleep(10 * time.Millisecond)
			logger.Debug().Int("job", i).Log("job finished")
			return nil
		})
		if err != nil {
			return fmt.Errorf("submitting job %d: %w", i, err)
		}
	}

	if err := pool.Wait(); err != nil {
		return fmt.Errorf("waiting for pool: %w", err)
	}

	if err := group.JoinAll(ctx); err != nil {
		return fmt.Errorf("joining group: %w", err)
	}

	if ok, err := ready.Wait(ctx, false); err != nil {
		return fmt.Errorf("checking ready event: %w", err)
	} else if !ok {
		return errors.New("opener finished without setting the ready event")
	}

	logger.Info().Log("demo finished")
	return nil
}
