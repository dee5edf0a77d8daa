package eventloop

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// overloadLimiter decides whether an overload diagnostic is worth logging
// right now. It exists so WithOverloadLogLimiter can swap in a test double
// without pulling catrate into every test.
type overloadLimiter interface {
	Allow() bool
}

// catrateOverloadLimiter rate-limits overload logging via
// github.com/joeycumines/go-catrate, keyed on a single fixed category
// since a Loop only ever has one overload signal to report on.
type catrateOverloadLimiter struct {
	limiter *catrate.Limiter
}

const overloadLogCategory = "loop-overload"

func newDefaultOverloadLimiter(window time.Duration) overloadLimiter {
	return &catrateOverloadLimiter{
		limiter: catrate.NewLimiter(map[time.Duration]int{window: 1}),
	}
}

func (c *catrateOverloadLimiter) Allow() bool {
	_, ok := c.limiter.Allow(overloadLogCategory)
	return ok
}

// reportOverload is called whenever CallLater observes its task queue
// already at capacity. It always invokes the caller's OnOverload hook (if
// any), since that is operationally meaningful every time, but only emits
// a structured Warnf log when the overload limiter currently permits it.
func (l *Loop) reportOverload(pending int) {
	if l.onOverload != nil {
		l.onOverload(pending)
	}
	if l.overloadLimiter.Allow() {
		Warnf("eventloop", "task queue overloaded: %d pending", pending)
	}
}
