package scheduler

import "golang.org/x/sync/semaphore"

// Lock is the exclusive, non-blocking lock shared by every workflow loop.
// Holding it means no other workflow is touching any managed node.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock creates an unheld lock
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// TryAcquire takes the lock if it is free. It never blocks.
func (l *Lock) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release frees a lock taken with TryAcquire
func (l *Lock) Release() {
	l.sem.Release(1)
}
