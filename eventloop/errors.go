package eventloop

import "errors"

// Standard errors.
var (
	// ErrLoopTerminated is returned by Run when the loop has been shut down
	// with Shutdown.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrBlockingFromLoopCoroutine is the fatal-misuse error raised when a
	// blocking operation is attempted from the event loop coroutine itself.
	// The event loop coroutine has nowhere to yield to: doing so would mean
	// the loop waits for its own resumption, which can never happen.
	ErrBlockingFromLoopCoroutine = errors.New("eventloop: blocking call made from the event loop coroutine")
)
