package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CallHandle identifies a callback scheduled with Loop.CallLater or
// Loop.CallLaterThreadSafe. The zero value is reserved for "no pending
// call", matching the contract that primitives use to know whether a
// deferred resume is already in flight.
type CallHandle uint64

var nextLoopID atomic.Uint64

type scheduledCall struct {
	handle    CallHandle
	fn        func()
	cancelled atomic.Bool
	timer     *time.Timer // non-nil only for delay > 0 calls
}

// Loop is a single-threaded task dispatcher: a stand-in for the Scheduler
// collaborator the specification treats as external. Tasks submitted via
// CallLater/CallLaterThreadSafe run strictly one at a time, in the order
// they become due, on the goroutine that calls Run -- the Loop's
// distinguished event loop coroutine.
type Loop struct {
	id   uint64
	self *Coroutine

	tasks chan *scheduledCall

	mu      sync.Mutex
	pending map[CallHandle]*scheduledCall
	nextID  uint64

	nextCoroID atomic.Uint64

	running atomic.Bool
	done    chan struct{}

	onOverload      func(pending int)
	overloadLimiter overloadLimiter
}

// New creates a Loop, applying any Options given. The Loop does not start
// processing tasks until Run is called.
func New(opts ...Option) *Loop {
	cfg := resolveLoopOptions(opts)
	l := &Loop{
		id:              nextLoopID.Add(1),
		tasks:           make(chan *scheduledCall, cfg.taskQueueCapacity),
		pending:         make(map[CallHandle]*scheduledCall),
		done:            make(chan struct{}),
		onOverload:      cfg.onOverload,
		overloadLimiter: cfg.overloadLimiter,
	}
	l.self = &Coroutine{id: ID(l.nextCoroID.Add(1)), loop: l, isLoop: true}
	return l
}

// ID returns the Loop's identity, stable for its lifetime. Used for log
// correlation only.
func (l *Loop) ID() uint64 { return l.id }

// EventLoopCoroutine returns the distinguished coroutine that runs this
// Loop's dispatch. It is a fatal misuse to invoke any blocking primitive
// operation from it.
func (l *Loop) EventLoopCoroutine() *Coroutine { return l.self }

// Running reports whether Run is currently executing on some goroutine.
// Used by long-lived, cross-Loop primitives (e.g. ThreadEvent) to notice
// and drop their bookkeeping for a Loop that has stopped dispatching.
func (l *Loop) Running() bool { return l.running.Load() }

// CurrentLoop returns the Loop owning the coroutine bound to ctx, or nil if
// ctx carries no coroutine (e.g. a plain, non-coroutine goroutine).
func CurrentLoop(ctx context.Context) *Loop {
	return CurrentCoroutine(ctx).Loop()
}

// Run drives the Loop until ctx is cancelled or Shutdown is called. It must
// be called from the goroutine that is to become the event loop coroutine;
// that goroutine is thereafter identified by EventLoopCoroutine.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopAlreadyRunning
	}
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrLoopTerminated
		case call := <-l.tasks:
			l.runCall(call)
		}
	}
}

func (l *Loop) runCall(call *scheduledCall) {
	l.mu.Lock()
	delete(l.pending, call.handle)
	l.mu.Unlock()
	if call.cancelled.Load() {
		return
	}
	call.fn()
}

// CallLater schedules fn to run on the event loop coroutine after delay. A
// delay of zero queues fn to run on the next iteration of Run, after
// whatever is currently queued ahead of it -- used by the cooperative
// primitives to decouple a release/notify/set call from the waiters it
// wakes. The returned handle is non-zero and may be passed to CancelCall.
//
// CallLater is safe to call from any goroutine, including one not
// associated with this Loop at all; see CallLaterThreadSafe, which is the
// same operation under a different name for cross-thread callers.
func (l *Loop) CallLater(delay time.Duration, fn func()) CallHandle {
	l.mu.Lock()
	l.nextID++
	handle := CallHandle(l.nextID)
	call := &scheduledCall{handle: handle, fn: fn}
	l.pending[handle] = call
	l.mu.Unlock()

	if delay <= 0 {
		select {
		case l.tasks <- call:
		case <-l.done:
		default:
			if pending := len(l.tasks); pending >= cap(l.tasks) {
				l.reportOverload(pending)
			}
			select {
			case l.tasks <- call:
			case <-l.done:
			}
		}
		return handle
	}

	call.timer = time.AfterFunc(delay, func() {
		select {
		case l.tasks <- call:
		case <-l.done:
		}
	})
	return handle
}

// CallLaterThreadSafe is CallLater under the name the specification's
// Scheduler contract uses for the cross-thread variant. Because CallLater
// already only ever communicates with the Loop via a channel send, the two
// are identical here: channel sends are safe from any goroutine.
func (l *Loop) CallLaterThreadSafe(delay time.Duration, fn func()) CallHandle {
	return l.CallLater(delay, fn)
}

// CancelCall removes a pending callback if it has not yet fired. Cancelling
// a zero handle, or one that already fired, is a no-op.
func (l *Loop) CancelCall(handle CallHandle) {
	if handle == 0 {
		return
	}
	l.mu.Lock()
	call, ok := l.pending[handle]
	if ok {
		delete(l.pending, handle)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	call.cancelled.Store(true)
	if call.timer != nil {
		call.timer.Stop()
	}
}

// Shutdown stops Run, which then returns ErrLoopTerminated. Later
// CallLater and Go calls are not rejected and report no error: CallLater
// still returns a handle (and no longer blocks on a full queue), and Go
// still spawns the coroutine. It is idempotent.
func (l *Loop) Shutdown() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// Go spawns a new coroutine running fn on its own goroutine, bound via ctx
// to this Loop. fn receives a context carrying the new coroutine's
// identity; blocking calls made with that context (or one derived from it)
// are attributed to this coroutine.
//
// The coroutine is marked Dead once fn returns, including via panic: the
// marking is deferred, so it runs while a panic unwinds the dedicated
// goroutine. The panic itself is not recovered.
func (l *Loop) Go(ctx context.Context, fn func(ctx context.Context)) *Coroutine {
	coro := &Coroutine{id: ID(l.nextCoroID.Add(1)), loop: l}
	coroCtx := WithCoroutine(ctx, coro)
	go func() {
		defer coro.markDead()
		fn(coroCtx)
	}()
	return coro
}
