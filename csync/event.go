package csync

import (
	"context"
	"sync"

	"github.com/mkuznets/corosync/eventloop"
)

// Event is a one-shot, level-triggered flag: once Set, it stays set until
// Clear, and any number of coroutines may Wait on it concurrently. Events
// may additionally be linked together with Link so that setting one
// transitively sets everything reachable from it -- cycles are safe, since
// Set is a no-op once the flag is already true.
type Event struct {
	loop *eventloop.Loop
	cond *Condition

	mu       sync.Mutex
	flag     bool
	linkTo   []*Event
	linkFrom []*Event
}

// NewEvent creates an unset Event bound to loop.
func NewEvent(loop *eventloop.Loop) *Event {
	return &Event{loop: loop, cond: NewCondition(loop)}
}

// Set raises the flag, if it is not already raised, waking every waiting
// coroutine and propagating to every Event linked via Link. Set is a
// no-op on an already-set Event.
func (e *Event) Set() {
	e.mu.Lock()
	if e.flag {
		e.mu.Unlock()
		return
	}
	e.flag = true
	links := append([]*Event(nil), e.linkTo...)
	e.mu.Unlock()

	e.cond.NotifyAll()
	for _, other := range links {
		other.Set()
	}
}

// Clear lowers the flag. It does not wake or affect linked Events.
func (e *Event) Clear() {
	e.mu.Lock()
	e.flag = false
	e.mu.Unlock()
}

// IsSet reports the current value of the flag.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flag
}

// Wait blocks the calling coroutine until the flag is set, or the Event is
// destroyed, or ctx is cancelled. If blocking is false, Wait returns the
// current flag value immediately without parking.
func (e *Event) Wait(ctx context.Context, blocking bool) (bool, error) {
	for {
		e.mu.Lock()
		flag := e.flag
		e.mu.Unlock()
		if flag || !blocking {
			return flag, nil
		}
		ok, err := e.cond.Wait(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
}

// Getting returns the number of coroutines currently parked in Wait.
func (e *Event) Getting() int { return e.cond.Getting() }

// Link makes setting e also set other, transitively. The relationship is
// one-directional: setting other does not set e.
func (e *Event) Link(other *Event) {
	e.mu.Lock()
	e.linkTo = append(e.linkTo, other)
	e.mu.Unlock()

	other.mu.Lock()
	other.linkFrom = append(other.linkFrom, e)
	other.mu.Unlock()
}

// Unlink removes the relationship established by e.Link(other). A link
// made the other way round, by other.Link(e), is left in place.
func (e *Event) Unlink(other *Event) {
	e.mu.Lock()
	e.linkTo = removeEvent(e.linkTo, other)
	e.mu.Unlock()

	other.mu.Lock()
	other.linkFrom = removeEvent(other.linkFrom, e)
	other.mu.Unlock()
}

// Destroy retires the Event. If it is not set at that moment, every parked
// waiter is woken with false, mirroring Condition.Destroy. Destroy also severs every
// Link relationship this Event participates in, in either direction, so
// dangling references are never left behind.
func (e *Event) Destroy() {
	e.mu.Lock()
	wasSet := e.flag
	linkTo := e.linkTo
	linkFrom := e.linkFrom
	e.linkTo = nil
	e.linkFrom = nil
	e.mu.Unlock()

	if !wasSet {
		e.cond.Destroy()
	}
	for _, other := range linkFrom {
		other.mu.Lock()
		other.linkTo = removeEvent(other.linkTo, e)
		other.mu.Unlock()
	}
	for _, other := range linkTo {
		other.mu.Lock()
		other.linkFrom = removeEvent(other.linkFrom, e)
		other.mu.Unlock()
	}
}

func removeEvent(list []*Event, target *Event) []*Event {
	for i, e := range list {
		if e == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
