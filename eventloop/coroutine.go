package eventloop

import (
	"context"
	"sync/atomic"
)

// ID is a stable, unique identifier for a Coroutine's lifetime.
type ID uint64

// Coroutine is the identity of a single cooperative execution context: either
// a user coroutine spawned with Loop.Go, or a Loop's distinguished event
// loop coroutine.
//
// Waiter queues across this module store *Coroutine values directly rather
// than a separate weak-reference type: Go's garbage collector already keeps
// the struct alive for as long as anything (including a waiter queue)
// references it, so the only thing a drain loop needs to check is the Dead
// flag, which the runtime sets once and is thereafter only ever read.
type Coroutine struct {
	id     ID
	loop   *Loop
	isLoop bool
	dead   atomic.Bool
}

// ID returns the coroutine's stable identifier.
func (c *Coroutine) ID() ID {
	if c == nil {
		return 0
	}
	return c.id
}

// Loop returns the Loop this coroutine is affined to.
func (c *Coroutine) Loop() *Loop {
	if c == nil {
		return nil
	}
	return c.loop
}

// IsEventLoop reports whether this is the distinguished event loop
// coroutine of its Loop.
func (c *Coroutine) IsEventLoop() bool {
	return c != nil && c.isLoop
}

// Dead reports whether the coroutine has finished running (its function
// returned or panicked) or was otherwise abandoned. Waiter-queue drain
// loops skip dead entries rather than attempt to resume them.
func (c *Coroutine) Dead() bool {
	return c == nil || c.dead.Load()
}

func (c *Coroutine) markDead() {
	c.dead.Store(true)
}

type coroutineKey struct{}

// WithCoroutine returns a context carrying coro as the "current coroutine".
// Loop.Go calls this internally when spawning coroutines; most callers never
// need to call it directly.
func WithCoroutine(ctx context.Context, coro *Coroutine) context.Context {
	return context.WithValue(ctx, coroutineKey{}, coro)
}

// CurrentCoroutine returns the coroutine bound to ctx, or nil if ctx carries
// none (e.g. it was not derived from a Loop.Go call).
func CurrentCoroutine(ctx context.Context) *Coroutine {
	coro, _ := ctx.Value(coroutineKey{}).(*Coroutine)
	return coro
}

// AssertNotEventLoop panics-equivalent: it returns ErrBlockingFromLoopCoroutine
// if the coroutine bound to ctx is its Loop's distinguished event loop
// coroutine. Every blocking primitive operation in this module calls this
// before enqueueing a waiter.
func AssertNotEventLoop(ctx context.Context) error {
	if coro := CurrentCoroutine(ctx); coro != nil && coro.IsEventLoop() {
		return ErrBlockingFromLoopCoroutine
	}
	return nil
}
