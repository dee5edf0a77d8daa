package csync

import "github.com/mkuznets/corosync/eventloop"

// Lock is a mutual-exclusion Semaphore with exactly one permit. It adds no
// state of its own: every method it has comes from the embedded Semaphore.
type Lock struct {
	*Semaphore
}

// NewLock creates an unlocked Lock bound to loop.
func NewLock(loop *eventloop.Loop) *Lock {
	return &Lock{Semaphore: NewSemaphore(loop, 1)}
}
