// Package pool provides a reservable, long-lived worker pool.
//
// A WorkerPool[I, O] owns a bounded set of workers. Each worker runs on its
// own goroutine, pulls tasks from a shared FIFO queue, applies the pool's
// computation and publishes the outcome under the task's id. Callers
// submit inputs, get back ids, and later retrieve outcomes by id.
//
// # Basic Usage
//
//	p, err := pool.New(func(ctx context.Context, n int) (int, error) {
//	    return n * 2, nil
//	}, pool.WithMinWorkers(2), pool.WithMaxWorkers(4))
//	if err != nil {
//	    return err
//	}
//	defer p.Shutdown(context.Background(), true)
//
//	id, _ := p.Submit(21)
//	v, err := p.Get(ctx, id) // 42
//
// # Reservations
//
// Worker capacity can be promised to a caller ahead of time so that
// concurrent or nested users of one pool do not oversubscribe it:
//
//	n, _ := p.ReserveMaxWorkers(8) // may be fewer than 8
//	defer p.FreeWorkers(n)
//
// Every successful reservation must be paired with exactly one
// FreeWorkers call of the same size.
//
// # Backends
//
// The task queue and result map are synchronized by a backend chosen at
// construction time:
//
//   - BackendLock: explicit locks with condition variables. WithFairness
//     makes lock admission FIFO.
//   - BackendMonitor: monitor-style wait/notify-all.
//
// Both behave identically apart from wakeup ordering under contention.
//
// # Failures
//
// A computation that returns an error or panics never stops its worker.
// The failure is stored as the task's outcome and Get returns it as a
// *TaskError. Pool management errors (ErrPoolStopped, ErrUnknownTask,
// ErrInvalidArgument, ErrCapacityExceeded) are sentinel values.
//
// # Lifecycle
//
// Shutdown stops the pool. Pending tasks are failed with ErrPoolStopped.
// A forced shutdown also cancels the workers' context, fails their
// in-flight tasks and detaches them, so the live worker count is zero on
// return. Restart shuts down and starts a fresh set of workers.
package pool
