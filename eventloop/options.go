package eventloop

import "time"

// loopOptions holds configuration gathered from Option values passed to New.
type loopOptions struct {
	taskQueueCapacity int
	onOverload        func(pending int)
	overloadLimiter   overloadLimiter
}

// Option configures a Loop at construction time.
type Option interface {
	applyLoop(*loopOptions)
}

type loopOptionFunc func(*loopOptions)

func (f loopOptionFunc) applyLoop(opts *loopOptions) { f(opts) }

// WithTaskQueueCapacity sets the buffer size of the channel CallLater
// submits work to. The default is 256; a Loop whose producers can burst
// well past that should raise it, at the cost of a larger worst-case
// memory footprint per idle Loop.
func WithTaskQueueCapacity(n int) Option {
	return loopOptionFunc(func(o *loopOptions) {
		if n > 0 {
			o.taskQueueCapacity = n
		}
	})
}

// WithOnOverload registers a callback invoked whenever CallLater observes
// the task queue is full enough that a submission had to wait, receiving
// the number of tasks still pending. It fires on every such observation;
// the overload-log limiter (see WithOverloadLogLimiter) throttles only the
// Warnf diagnostic, not this callback.
func WithOnOverload(fn func(pending int)) Option {
	return loopOptionFunc(func(o *loopOptions) {
		o.onOverload = fn
	})
}

// WithOverloadLogLimiter installs the rate limiter used to throttle
// Warnf calls emitted when the Loop's task queue is overloaded, so a
// sustained overload condition produces a steady trickle of diagnostics
// rather than a log storm that would itself worsen the overload. The
// default permits at most one such log per second.
func WithOverloadLogLimiter(limiter overloadLimiter) Option {
	return loopOptionFunc(func(o *loopOptions) {
		o.overloadLimiter = limiter
	})
}

func resolveLoopOptions(opts []Option) *loopOptions {
	cfg := &loopOptions{
		taskQueueCapacity: 256,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyLoop(cfg)
	}
	if cfg.overloadLimiter == nil {
		cfg.overloadLimiter = newDefaultOverloadLimiter(time.Second)
	}
	return cfg
}
