// Package eventloop provides the scheduling substrate on top of which the
// csync and corogroup packages implement cooperative coroutine
// synchronization primitives.
//
// A Loop owns exactly one distinguished "event loop coroutine": the
// goroutine that drives Loop.Run. Ordinary coroutines are spawned with
// Loop.Go and run as independent goroutines, but by convention they only
// touch a given Loop's cooperative primitives through that Loop's task
// queue, so that release/notify/set callbacks never race a waiter's own
// bookkeeping. Blocking operations accept a context.Context: the coroutine
// bound to that context (see WithCoroutine, CurrentCoroutine) is what
// Semaphore, Condition, Event and friends treat as "the current coroutine",
// and cancelling that context is how a waiter is asynchronously unwound.
package eventloop
