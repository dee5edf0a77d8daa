// Package csync implements the cooperative synchronization primitives used
// by coroutines running on an eventloop.Loop: a counting Semaphore, a Lock
// and re-entrant RLock built from it, a Condition variable, a one-shot
// Event with fan-out links, a binary Gate, and ThreadEvent, the one
// primitive in this package safe to use from multiple goroutines and
// multiple Loops at once.
//
// Every primitive except ThreadEvent is affined to a single eventloop.Loop,
// bound once at construction, and assumes that it is only ever touched by
// coroutines spawned on that Loop (via Loop.Go) plus the deferred callbacks
// the primitive itself schedules on it. Blocking operations take a
// context.Context; the coroutine identity and cancellation semantics used
// throughout this package are both carried by that context rather than any
// ambient/thread-local state -- see eventloop.WithCoroutine.
package csync
