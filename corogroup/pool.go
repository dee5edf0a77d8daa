package corogroup

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mkuznets/corosync/csync"
	"github.com/mkuznets/corosync/eventloop"
)

// poolOptions holds Pool's resolved configuration, following the same
// functional-options shape eventloop.Option uses.
type poolOptions struct {
	name string
}

// PoolOption configures a Pool at construction time.
type PoolOption interface {
	applyPool(*poolOptions)
}

type poolOptionFunc func(*poolOptions)

func (f poolOptionFunc) applyPool(o *poolOptions) { f(o) }

// WithPoolName attaches a name to a Pool, used only for diagnostics.
func WithPoolName(name string) PoolOption {
	return poolOptionFunc(func(o *poolOptions) { o.name = name })
}

func resolvePoolOptions(opts []PoolOption) *poolOptions {
	cfg := &poolOptions{name: "pool"}
	for _, o := range opts {
		o.applyPool(cfg)
	}
	return cfg
}

// Pool is a bounded worker pool: at most size submitted jobs run
// concurrently, admission controlled by a csync.Semaphore rather than a
// fixed set of dedicated worker goroutines, which is the idiomatic Go
// replacement for the reference implementation's ThreadPoolWorkThread
// pool -- here, every Submit spawns its own coroutine, but only size of
// them ever hold the semaphore's permits at once.
type Pool struct {
	name string
	loop *eventloop.Loop
	sem  *csync.Semaphore

	mu sync.Mutex
	eg *errgroup.Group
}

// NewPool creates a Pool bound to loop with the given concurrency limit.
func NewPool(loop *eventloop.Loop, size int, opts ...PoolOption) *Pool {
	cfg := resolvePoolOptions(opts)
	return &Pool{
		name: cfg.name,
		loop: loop,
		sem:  csync.NewSemaphore(loop, size),
		eg:   &errgroup.Group{},
	}
}

// Name returns the Pool's diagnostic name, as given via WithPoolName, or
// "pool" if none was given.
func (p *Pool) Name() string { return p.name }

// Submit runs fn as a new coroutine once a permit is available, blocking
// the calling coroutine until either a permit frees up or ctx is
// cancelled. The job's error, if any, is collected and surfaced by the
// next call to Wait.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	ok, err := p.sem.Acquire(ctx, true)
	if err != nil {
		return err
	}
	if !ok {
		return context.Canceled
	}

	p.mu.Lock()
	eg := p.eg
	p.mu.Unlock()

	done := make(chan struct{})
	p.loop.Go(ctx, func(rc context.Context) {
		defer close(done)
		eg.Go(func() error {
			defer p.sem.Release(1)
			return fn(rc)
		})
	})
	<-done
	return nil
}

// Wait blocks until every job submitted so far has finished, returning the
// first non-nil error any of them returned. Calling Wait resets the
// Pool's error group, so jobs submitted after a Wait call are tracked
// independently of ones submitted before it.
func (p *Pool) Wait() error {
	p.mu.Lock()
	eg := p.eg
	p.eg = &errgroup.Group{}
	p.mu.Unlock()
	return eg.Wait()
}

// Available reports the number of permits currently free, i.e. how many
// more jobs could be submitted right now without blocking.
func (p *Pool) Available() int {
	return p.sem.Available()
}
