// Package corogroup tracks and coordinates groups of coroutines spawned
// on an eventloop.Loop, and provides a bounded worker pool admission-
// controlled by a csync.Semaphore. It supplements the cooperative
// synchronization primitives in csync with the coroutine-lifecycle
// bookkeeping a real networking runtime layers on top of them: naming,
// cancellation, join-on-completion, and racing several coroutines for
// whichever finishes first.
package corogroup
