package pool

import (
	"errors"
	"fmt"

	"github.com/utkarsh5026/forkpool/internal/backend"
)

var (
	// ErrPoolStopped is returned by Submit on a stopped pool, and stored as
	// the outcome of tasks abandoned by a shutdown.
	ErrPoolStopped = errors.New("pool stopped")

	// ErrCapacityExceeded signals an attempt to start a worker beyond the
	// configured maximum. It is handled inside the pool and only reduces
	// the number of workers created.
	ErrCapacityExceeded = errors.New("operation not permitted: worker capacity exceeded")

	// ErrUnknownTask is returned by Get for an id that was never issued
	// or whose outcome was already retrieved.
	ErrUnknownTask = backend.ErrUnknownTask

	// ErrInvalidArgument rejects non-positive counts and similar misuse
	// before any state is touched.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidConfig rejects worker bounds outside 0 < min <= max.
	ErrInvalidConfig = errors.New("invalid pool configuration")
)

// TaskError is returned by Get when the computation for a task failed.
type TaskError struct {
	ID  uint64
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.ID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
