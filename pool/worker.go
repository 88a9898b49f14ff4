package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/utkarsh5026/forkpool/internal/backoff"
	"github.com/utkarsh5026/forkpool/internal/cpu"
	"github.com/utkarsh5026/forkpool/internal/types"
)

// ProcessFunc is the computation a worker applies to every task input.
// A returned error, or a panic, marks that one task as failed; the worker
// keeps running.
//
// Type parameters:
//   - I: The type of the task input
//   - O: The type of the produced output
type ProcessFunc[I any, O any] func(ctx context.Context, input I) (O, error)

// WorkerState is the lifecycle state of a Worker.
type WorkerState int32

const (
	// WorkerIdle is a worker that has not been started.
	WorkerIdle WorkerState = iota
	// WorkerRunning is a worker inside its task loop.
	WorkerRunning
	// WorkerTerminated is a worker whose loop has exited.
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// Worker binds a computation to a single goroutine. Inside a pool, workers
// are cloned from a model and started by the pool; outside a pool a Worker
// can run one input at a time through Call.
type Worker[I any, O any] struct {
	id    uint64
	exec  *executor[I, O]
	state atomic.Int32

	// Set when the worker is bound to a pool, read-only afterwards.
	pool   *WorkerPool[I, O]
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64

	// Guarded by pool.mu.
	busy     bool
	current  uint64
	detached bool
}

// NewWorker creates an unbound worker for fn. Options that shape task
// execution (retry, backoff, rate limit, hooks, logger) apply; sizing and
// backend options are ignored.
func NewWorker[I any, O any](fn ProcessFunc[I, O], opts ...Option) (*Worker[I, O], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil computation", ErrInvalidArgument)
	}
	cfg, err := buildConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Worker[I, O]{exec: newExecutor(fn, cfg)}, nil
}

// Clone returns a fresh, unbound worker sharing this worker's computation.
func (w *Worker[I, O]) Clone() *Worker[I, O] {
	return &Worker[I, O]{exec: w.exec}
}

// ID returns the pool-assigned identifier, or 0 for an unbound worker.
func (w *Worker[I, O]) ID() uint64 {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker[I, O]) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Call runs the computation once on input in the calling goroutine, with
// the same panic recovery, retry and rate limiting a pooled worker uses.
func (w *Worker[I, O]) Call(ctx context.Context, input I) (O, error) {
	return w.exec.execute(ctx, 0, input)
}

// run is the worker loop. It exits when the pool hands out no more tasks.
func (w *Worker[I, O]) run(slot int) {
	p := w.pool
	defer p.deregister(w)

	if p.conf.lockOSThread {
		release, err := cpu.LockThread(slot, p.conf.pinCPU)
		defer release()
		if err != nil {
			p.logger.WithError(err).WithField("worker", w.id).Warn("cpu pinning failed")
		}
	}

	w.state.Store(int32(WorkerRunning))
	defer w.state.Store(int32(WorkerTerminated))

	for {
		task, ok := p.getNextTask(w)
		if !ok {
			return
		}

		start := time.Now()
		v, err := w.exec.execute(w.ctx, task.ID, task.Input)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{"task": task.ID, "worker": w.id}).Warn("task failed")
			p.addResult(w, task.ID, types.Fail[O](err), time.Since(start))
			continue
		}
		p.addResult(w, task.ID, types.Ok(v), time.Since(start))
	}
}

// executor applies a computation with rate limiting, hooks, panic recovery
// and retries. It is shared by every clone of a worker.
type executor[I any, O any] struct {
	fn          ProcessFunc[I, O]
	rateLimiter interface{ Wait(context.Context) error }
	maxAttempts int
	backoff     backoff.Strategy

	beforeTaskStart func(uint64)
	onTaskEnd       func(uint64, error, time.Duration)
}

func newExecutor[I any, O any](fn ProcessFunc[I, O], cfg *config) *executor[I, O] {
	e := &executor[I, O]{
		fn:              fn,
		maxAttempts:     max(cfg.maxAttempts, 1),
		backoff:         backoff.New(cfg.backoffType, cfg.initialDelay, cfg.maxDelay, cfg.jitterFactor),
		beforeTaskStart: cfg.beforeTaskStart,
		onTaskEnd:       cfg.onTaskEnd,
	}
	if cfg.rateLimiter != nil {
		e.rateLimiter = cfg.rateLimiter
	}
	return e
}

func (e *executor[I, O]) execute(ctx context.Context, id uint64, input I) (O, error) {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx); err != nil {
			var zero O
			// The limiter's error does not wrap context errors.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			return zero, err
		}
	}

	if e.beforeTaskStart != nil {
		e.beforeTaskStart(id)
	}

	start := time.Now()
	v, err := e.processWithRetry(ctx, input)

	if e.onTaskEnd != nil {
		e.onTaskEnd(id, err, time.Since(start))
	}
	return v, err
}

// processWithRetry runs the computation up to maxAttempts times, sleeping
// between attempts as the backoff strategy dictates.
func (e *executor[I, O]) processWithRetry(ctx context.Context, input I) (O, error) {
	var (
		v   O
		err error
	)

	for attempt := range e.maxAttempts {
		if attempt > 0 {
			if delay := e.backoff.NextDelay(attempt - 1); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return v, ctx.Err()
				}
			}
		}

		v, err = e.processWithRecovery(ctx, input)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, err
		}
	}
	return v, err
}

// processWithRecovery converts a panic in the computation into an error
// carrying the stack, so a single task cannot take its worker down.
func (e *executor[I, O]) processWithRecovery(ctx context.Context, input I) (v O, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			var zero O
			v = zero
			err = fmt.Errorf("worker panic: %v\nstack trace:\n%s", r, buf[:n])
		}
	}()

	return e.fn(ctx, input)
}
