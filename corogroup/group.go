package corogroup

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mkuznets/corosync/csync"
	"github.com/mkuznets/corosync/eventloop"
)

// entry is one coroutine tracked by a Group. err is only ever written by
// the coroutine itself, under g.mu, immediately before calling done.Set,
// and only ever read by callers after done.Wait has returned true. The
// Event's own mutex orders that write before every such read; Any
// additionally takes g.mu for its read, join does not.
type entry struct {
	name   string
	coro   *eventloop.Coroutine
	cancel context.CancelFunc
	done   *csync.Event
	err    error
}

// Group is a named, trackable set of coroutines spawned on one
// eventloop.Loop, grounded on the reference implementation's
// CoroutineGroup: a lightweight registry that lets one part of a program
// spawn background work and have another part name, cancel, or wait on
// it without passing channels around by hand.
type Group struct {
	loop *eventloop.Loop

	mu      sync.Mutex
	byName  map[string]*entry
	entries []*entry
}

// NewGroup creates an empty Group bound to loop.
func NewGroup(loop *eventloop.Loop) *Group {
	return &Group{loop: loop, byName: make(map[string]*entry)}
}

// Go spawns fn as a new coroutine on the Group's Loop. If name is
// non-empty it must be unique among currently-running members of the
// Group; Go returns an error rather than spawning anything if it is
// already taken. An empty name opts out of the name-based operations
// (Get/Has/IsCurrent/Kill/Join) but still participates in KillAll/JoinAll.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error) (*eventloop.Coroutine, error) {
	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{name: name, cancel: cancel, done: csync.NewEvent(g.loop)}

	g.mu.Lock()
	if name != "" {
		if _, exists := g.byName[name]; exists {
			g.mu.Unlock()
			cancel()
			return nil, fmt.Errorf("corogroup: coroutine named %q is already running", name)
		}
		g.byName[name] = e
	}
	g.entries = append(g.entries, e)
	g.mu.Unlock()

	coro := g.loop.Go(runCtx, func(rc context.Context) {
		err := fn(rc)
		g.mu.Lock()
		e.err = err
		g.removeLocked(e)
		g.mu.Unlock()
		e.done.Set()
	})

	g.mu.Lock()
	e.coro = coro
	g.mu.Unlock()

	return coro, nil
}

func (g *Group) removeLocked(target *entry) {
	if target.name != "" {
		delete(g.byName, target.name)
	}
	for i, e := range g.entries {
		if e == target {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return
		}
	}
}

// Get returns the coroutine registered under name, or nil if none is
// currently running with that name.
func (g *Group) Get(name string) *eventloop.Coroutine {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.byName[name]; ok {
		return e.coro
	}
	return nil
}

// Has reports whether a coroutine is currently registered under name.
func (g *Group) Has(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.byName[name]
	return ok
}

// IsCurrent reports whether the coroutine bound to ctx is the one
// registered under name.
func (g *Group) IsCurrent(ctx context.Context, name string) bool {
	current := eventloop.CurrentCoroutine(ctx)
	if current == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.byName[name]
	return ok && e.coro == current
}

// Kill cancels the coroutine registered under name by cancelling the
// context it was spawned with, the idiomatic replacement for the
// reference implementation's raised CoroutineExitException. It reports
// whether a coroutine with that name was found.
func (g *Group) Kill(name string) bool {
	g.mu.Lock()
	e, ok := g.byName[name]
	g.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	return true
}

// KillAll cancels every coroutine currently tracked by the Group. It
// reports whether there was anything to cancel.
func (g *Group) KillAll() bool {
	g.mu.Lock()
	entries := append([]*entry(nil), g.entries...)
	g.mu.Unlock()
	for _, e := range entries {
		e.cancel()
	}
	return len(entries) > 0
}

// Join blocks until the coroutine registered under name finishes, or ctx
// is cancelled, and returns the error it finished with. The bool result
// reports whether a coroutine with that name was found to join at all.
func (g *Group) Join(ctx context.Context, name string) (error, bool) {
	g.mu.Lock()
	e, ok := g.byName[name]
	g.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.join(ctx), true
}

func (e *entry) join(ctx context.Context) error {
	_, err := e.done.Wait(ctx, true)
	if err != nil {
		return err
	}
	return e.err
}

// JoinAll blocks until every coroutine currently tracked by the Group
// finishes, or ctx is cancelled, returning the first non-nil error any of
// them finished with -- or that any of them was asked to join with via a
// cancelled ctx.
func (g *Group) JoinAll(ctx context.Context) error {
	g.mu.Lock()
	entries := append([]*entry(nil), g.entries...)
	g.mu.Unlock()

	var eg errgroup.Group
	for _, e := range entries {
		e := e
		eg.Go(func() error { return e.join(ctx) })
	}
	return eg.Wait()
}

// Any waits for the first of the named coroutines to finish and returns
// its name and the error it finished with, grounded on the reference
// implementation's CoroutineGroup::any -- there, a ValueEvent racing
// per-coroutine "finished" callbacks; here, a fan-in over each named
// coroutine's completion Event.
func (g *Group) Any(ctx context.Context, names ...string) (string, error, error) {
	type outcome struct {
		name string
		err  error
	}
	resultCh := make(chan outcome, 1)
	var once sync.Once
	var wg sync.WaitGroup

	for _, name := range names {
		g.mu.Lock()
		e, ok := g.byName[name]
		g.mu.Unlock()
		if !ok {
			continue
		}
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			ok, err := e.done.Wait(ctx, true)
			if err != nil || !ok {
				return
			}
			g.mu.Lock()
			finishErr := e.err
			g.mu.Unlock()
			once.Do(func() { resultCh <- outcome{e.name, finishErr} })
		}(e)
	}

	select {
	case r := <-resultCh:
		return r.name, r.err, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}
