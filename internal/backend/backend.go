// Package backend holds the synchronization strategies behind a worker pool.
//
// A Backend owns two logical groups of shared state, each behind its own
// critical section: the pending task queue and the result map. Two
// interchangeable implementations exist. The lock backend uses explicit
// lockers with condition variables and can be made fair (FIFO admission to
// its locks). The monitor backend uses a mutex with notify-all signalling
// over a broadcast channel. Callers observe the same contract from both.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/utkarsh5026/forkpool/internal/types"
)

var (
	// ErrStopped is returned by Submit once the backend has been stopped.
	ErrStopped = errors.New("backend stopped")

	// ErrUnknownTask is returned by Await for an id that is neither pending
	// a result nor holding an unconsumed one.
	ErrUnknownTask = errors.New("unknown task id")
)

// Kind selects a Backend implementation.
type Kind int

const (
	// KindLock uses explicit lockers with condition variables.
	KindLock Kind = iota
	// KindMonitor uses monitor-style wait/notify-all.
	KindMonitor
)

func (k Kind) String() string {
	switch k {
	case KindLock:
		return "lock"
	case KindMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Backend is the synchronization contract a worker pool is built on.
type Backend[I any, O any] interface {
	// Submit allocates the next id, marks it outstanding and appends the
	// task to the pending queue, waking a waiting consumer. Allocation
	// happens inside the task critical section so ids follow queue order.
	// Fails with ErrStopped, without allocating, when not running.
	Submit(input I, allocate func() uint64) (uint64, error)

	// Pop removes the head of the pending queue, blocking while the queue
	// is empty. It returns false once the backend is stopped or when gen
	// no longer matches the current generation.
	Pop(gen uint64) (types.Task[I], bool)

	// Stop marks the backend as not running, starts a new generation,
	// wakes every blocked Pop and returns the tasks that were still pending.
	Stop() []types.Task[I]

	// Resume marks the backend as running again and returns the current
	// generation for newly started consumers.
	Resume() uint64

	// Running reports whether the backend accepts submissions.
	Running() bool

	// Generation returns the current generation.
	Generation() uint64

	// Pending returns the number of queued tasks.
	Pending() int

	// Publish stores the outcome for an outstanding id and wakes waiters.
	// It returns false if the id is not outstanding (never submitted, or
	// already published).
	Publish(id uint64, out types.Outcome[O]) bool

	// Await blocks until an outcome for id is available, then removes and
	// returns it. It returns ErrUnknownTask for ids that will never get an
	// outcome and ctx.Err() when the context ends first.
	Await(ctx context.Context, id uint64) (types.Outcome[O], error)

	// Ready reports whether Await would return an outcome immediately.
	Ready(id uint64) bool

	// Outstanding returns the number of ids still waiting for an outcome.
	Outstanding() int
}

// New creates a backend of the given kind. fair only applies to KindLock.
func New[I any, O any](kind Kind, fair bool) (Backend[I, O], error) {
	switch kind {
	case KindLock:
		return newLockBackend[I, O](fair), nil
	case KindMonitor:
		return newMonitorBackend[I, O](), nil
	default:
		return nil, fmt.Errorf("unsupported backend kind %v", kind)
	}
}
