package backend

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// fairMutex is a sync.Locker that admits contending goroutines in FIFO
// order. A weighted semaphore of size one queues waiters in arrival order,
// which sync.Mutex does not guarantee.
type fairMutex struct {
	sem *semaphore.Weighted
}

func newFairMutex() *fairMutex {
	return &fairMutex{sem: semaphore.NewWeighted(1)}
}

func (m *fairMutex) Lock() {
	// Acquire only fails on context cancellation.
	_ = m.sem.Acquire(context.Background(), 1)
}

func (m *fairMutex) Unlock() {
	m.sem.Release(1)
}

func (m *fairMutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

func newLocker(fair bool) sync.Locker {
	if fair {
		return newFairMutex()
	}
	return defaultLocker()
}
