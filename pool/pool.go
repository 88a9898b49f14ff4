package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/utkarsh5026/forkpool/internal/backend"
	"github.com/utkarsh5026/forkpool/internal/types"
)

// WorkerPool is a reservable pool of long-lived workers sharing one FIFO
// task queue.
//
// State is split into three groups, each under its own critical section:
// the worker set and its counters (mu), the pending queue and the result
// map (both inside the backend). Reservation and worker creation share mu,
// so reserve-then-create is atomic with respect to other reservers.
//
// Type parameters:
//   - I: The task input type
//   - O: The output type
type WorkerPool[I any, O any] struct {
	conf    *config
	logger  logrus.FieldLogger
	metrics *Metrics
	backend backend.Backend[I, O]
	model   *Worker[I, O]

	lastTaskID atomic.Uint64

	// lifecycle serializes Shutdown and Restart.
	lifecycle sync.Mutex

	mu           sync.Mutex
	running      bool
	gen          uint64
	workers      map[uint64]*Worker[I, O]
	available    int
	reserved     int
	lastWorkerID uint64
	goroutines   int
	exited       chan struct{} // closed while no worker goroutine is alive
	runCtx       context.Context
	cancelRun    context.CancelFunc
}

// New creates a pool running fn and eagerly starts the minimum number of
// workers.
//
// Default configuration:
//   - minWorkers: 1
//   - maxWorkers: runtime.GOMAXPROCS(0)
//   - backend: BackendLock, unfair
//   - maxAttempts: 1 (no retries)
//
// Example:
//
//	p, err := pool.New(square,
//	    pool.WithMinWorkers(2),
//	    pool.WithMaxWorkers(8),
//	    pool.WithBackend(pool.BackendMonitor),
//	)
func New[I any, O any](fn ProcessFunc[I, O], opts ...Option) (*WorkerPool[I, O], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil computation", ErrInvalidArgument)
	}

	cfg, err := buildConfig(opts...)
	if err != nil {
		return nil, err
	}

	b, err := backend.New[I, O](cfg.backend, cfg.fair)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	exited := make(chan struct{})
	close(exited)

	p := &WorkerPool[I, O]{
		conf:    cfg,
		logger:  cfg.logger.WithFields(logrus.Fields{"component": "pool", "backend": cfg.backend.String()}),
		metrics: cfg.metrics,
		backend: b,
		model:   &Worker[I, O]{exec: newExecutor(fn, cfg)},
		running: true,
		gen:     b.Generation(),
		workers: make(map[uint64]*Worker[I, O], cfg.maxWorkers),
		exited:  exited,
	}
	p.runCtx, p.cancelRun = context.WithCancel(context.Background())

	p.mu.Lock()
	created := p.createWorkersLocked(cfg.minWorkers)
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"min": cfg.minWorkers, "max": cfg.maxWorkers, "fair": cfg.fair, "workers": created,
	}).Debug("pool started")
	return p, nil
}

// CreateWorkers starts up to n new workers, bounded by the free capacity.
// Attempts beyond the maximum are refused with ErrCapacityExceeded, which
// is logged rather than returned. It reports how many workers started.
func (p *WorkerPool[I, O]) CreateWorkers(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createWorkersLocked(n)
}

// CreateAvailableWorkers starts just enough workers that at least n are
// available once the currently pending tasks have been picked up.
func (p *WorkerPool[I, O]) CreateAvailableWorkers(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	need := n + p.backend.Pending() - p.available
	return p.createWorkersLocked(min(need, p.conf.maxWorkers-len(p.workers)))
}

// Submit queues input for processing and returns its task id immediately.
// Ids are unique and strictly increasing within the pool. If the queue is
// deeper than the idle workers can absorb, more workers are started, up to
// the maximum. A stopped pool rejects the input with ErrPoolStopped.
func (p *WorkerPool[I, O]) Submit(input I) (uint64, error) {
	id, err := p.backend.Submit(input, p.nextTaskID)
	if err != nil {
		if errors.Is(err, backend.ErrStopped) {
			return 0, ErrPoolStopped
		}
		return 0, err
	}
	p.metrics.submitted()

	p.mu.Lock()
	if shortfall := p.backend.Pending() - p.available; shortfall > 0 {
		p.createWorkersLocked(min(shortfall, p.conf.maxWorkers-len(p.workers)))
	}
	p.mu.Unlock()

	return id, nil
}

// Get blocks until the outcome of task id is available, then removes and
// returns it; a second Get for the same id fails with ErrUnknownTask.
//
// A failed computation is returned as a *TaskError along with the zero
// value of O. Ids never issued by this pool fail with ErrUnknownTask, and
// tasks abandoned by a shutdown fail with ErrPoolStopped. If ctx ends
// first its error is returned and the outcome stays retrievable.
func (p *WorkerPool[I, O]) Get(ctx context.Context, id uint64) (O, error) {
	out, err := p.backend.Await(ctx, id)
	if err != nil {
		var zero O
		return zero, err
	}
	if out.Err != nil {
		return out.Value, &TaskError{ID: id, Err: out.Err}
	}
	return out.Value, nil
}

// Outcome is Get without the error translation: computation failures
// stay in the returned outcome's Err field and are not wrapped.
func (p *WorkerPool[I, O]) Outcome(ctx context.Context, id uint64) (types.Outcome[O], error) {
	return p.backend.Await(ctx, id)
}

// IsReady reports whether Get(id) would return without blocking.
func (p *WorkerPool[I, O]) IsReady(id uint64) bool {
	return p.backend.Ready(id)
}

// ReserveWorkers atomically promises n workers to the caller. It fails
// without side effects on the reservation if the total would exceed the
// maximum, or if the workers backing it cannot be started.
func (p *WorkerPool[I, O]) ReserveWorkers(n int) (bool, error) {
	if n <= 0 {
		return false, fmt.Errorf("%w: reserve %d workers", ErrInvalidArgument, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reserved+n > p.conf.maxWorkers {
		return false, nil
	}

	p.reserved += n
	if short := p.reserved - len(p.workers); short > 0 {
		p.createWorkersLocked(short)
	}
	if len(p.workers) < p.reserved {
		p.reserved -= n
		p.updateGaugesLocked()
		return false, nil
	}

	p.updateGaugesLocked()
	return true, nil
}

// ReserveMaxWorkers reserves as many workers as fit, up to n, starting
// workers as needed. If fewer can be started the reservation shrinks to
// match. The returned count is what the caller must later free.
func (p *WorkerPool[I, O]) ReserveMaxWorkers(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: reserve %d workers", ErrInvalidArgument, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	actual := min(n, p.conf.maxWorkers-p.reserved)
	if actual <= 0 {
		return 0, nil
	}

	p.reserved += actual
	if short := p.reserved - len(p.workers); short > 0 {
		p.createWorkersLocked(short)
	}
	if deficit := p.reserved - len(p.workers); deficit > 0 {
		deficit = min(deficit, actual)
		actual -= deficit
		p.reserved -= deficit
	}

	p.updateGaugesLocked()
	return actual, nil
}

// FreeWorkers releases n reserved workers. Freeing zero is a no-op;
// freeing more than is reserved is rejected.
func (p *WorkerPool[I, O]) FreeWorkers(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: free %d workers", ErrInvalidArgument, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > p.reserved {
		return fmt.Errorf("%w: free %d workers with only %d reserved", ErrInvalidArgument, n, p.reserved)
	}
	p.reserved -= n
	p.updateGaugesLocked()
	return nil
}

// CloneWorker returns an unbound worker that shares the pool's executor:
// the same computation, rate limiter, retry policy and hooks. Use it to run
// an input on the calling goroutine under the pool's rules.
func (p *WorkerPool[I, O]) CloneWorker() *Worker[I, O] {
	return p.model.Clone()
}

// IsRunning reports whether the pool accepts submissions.
func (p *WorkerPool[I, O]) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Shutdown stops the pool. Blocked workers wake and exit, pending tasks
// are failed with ErrPoolStopped and Submit starts rejecting input.
//
// Without force, busy workers finish their current task and then exit;
// Shutdown does not wait for them (see AwaitTermination).
//
// With force, the workers' context is cancelled, their in-flight tasks are
// failed with ErrPoolStopped and they are removed from the pool at once,
// so the worker count is zero on return. Shutdown then waits, bounded by
// ctx, for the worker goroutines to exit. A computation that ignores its
// context keeps its goroutine alive until it returns; its output is
// discarded.
func (p *WorkerPool[I, O]) Shutdown(ctx context.Context, force bool) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.shutdownLocked(ctx, force)
}

// Restart shuts the pool down as Shutdown does, waits (bounded by ctx)
// for the old worker goroutines to exit, then starts the minimum number of
// workers and accepts submissions again. Reservations held by callers
// survive the restart. If ctx ends first the pool stays stopped.
func (p *WorkerPool[I, O]) Restart(ctx context.Context, force bool) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if err := p.shutdownLocked(ctx, force); err != nil {
		return err
	}
	if !force {
		if err := p.AwaitTermination(ctx); err != nil {
			return fmt.Errorf("waiting for workers to exit: %w", err)
		}
	}

	gen := p.backend.Resume()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = true
	p.gen = gen
	created := p.createWorkersLocked(min(p.conf.minWorkers, p.conf.maxWorkers-len(p.workers)))

	p.logger.WithFields(logrus.Fields{"force": force, "workers": created}).Info("pool restarted")
	return nil
}

// AwaitTermination blocks until no worker goroutine is alive or ctx ends.
func (p *WorkerPool[I, O]) AwaitTermination(ctx context.Context) error {
	p.mu.Lock()
	exited := p.exited
	p.mu.Unlock()

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool[I, O]) shutdownLocked(ctx context.Context, force bool) error {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	abandoned := p.backend.Stop()
	for _, t := range abandoned {
		p.backend.Publish(t.ID, types.Fail[O](ErrPoolStopped))
	}
	p.metrics.failedN(len(abandoned))

	if !force {
		p.logger.WithField("abandoned", len(abandoned)).Info("pool shut down")
		return nil
	}

	p.mu.Lock()
	cancel := p.cancelRun
	p.runCtx, p.cancelRun = context.WithCancel(context.Background())

	var inFlight []uint64
	for id, w := range p.workers {
		w.detached = true
		if w.busy {
			inFlight = append(inFlight, w.current)
		} else {
			p.available--
		}
		delete(p.workers, id)
	}
	p.updateGaugesLocked()
	exited := p.exited
	p.mu.Unlock()

	// Publish before cancelling so a computation returning ctx.Err()
	// cannot claim the outcome first.
	for _, id := range inFlight {
		p.backend.Publish(id, types.Fail[O](ErrPoolStopped))
	}
	p.metrics.failedN(len(inFlight))
	cancel()

	p.logger.WithFields(logrus.Fields{"abandoned": len(abandoned), "interrupted": len(inFlight)}).Info("pool force shut down")

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers to exit: %w", ctx.Err())
	}
}

// createWorkersLocked starts up to n workers and returns how many started.
func (p *WorkerPool[I, O]) createWorkersLocked(n int) int {
	created := 0
	for range n {
		if err := p.createWorkerLocked(); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"workers": len(p.workers), "max": p.conf.maxWorkers,
			}).Debug("worker not created")
			break
		}
		created++
	}
	if created > 0 {
		p.updateGaugesLocked()
	}
	return created
}

func (p *WorkerPool[I, O]) createWorkerLocked() error {
	if !p.running {
		return ErrPoolStopped
	}
	if len(p.workers) >= p.conf.maxWorkers {
		return ErrCapacityExceeded
	}

	p.lastWorkerID++
	w := p.model.Clone()
	w.id = p.lastWorkerID
	w.pool = p
	w.gen = p.gen
	w.ctx, w.cancel = context.WithCancel(p.runCtx)

	p.workers[w.id] = w
	p.available++
	if p.goroutines == 0 {
		p.exited = make(chan struct{})
	}
	p.goroutines++

	go w.run(int(w.id - 1))
	return nil
}

// getNextTask hands the next pending task to w, blocking while the queue
// is empty. It returns false once w should terminate.
func (p *WorkerPool[I, O]) getNextTask(w *Worker[I, O]) (types.Task[I], bool) {
	task, ok := p.backend.Pop(w.gen)
	if !ok {
		return task, false
	}

	p.mu.Lock()
	if w.detached {
		// Popped just before a forced shutdown reached this worker.
		p.mu.Unlock()
		p.backend.Publish(task.ID, types.Fail[O](ErrPoolStopped))
		p.metrics.failedN(1)
		return task, false
	}
	w.busy = true
	w.current = task.ID
	p.available--
	p.updateGaugesLocked()
	p.mu.Unlock()

	return task, true
}

// addResult publishes the outcome of a task and marks w available again.
// Outcomes of tasks already failed by a forced shutdown are dropped.
func (p *WorkerPool[I, O]) addResult(w *Worker[I, O], id uint64, out types.Outcome[O], elapsed time.Duration) {
	if p.backend.Publish(id, out) {
		p.metrics.completed(out.Err, elapsed)
	} else {
		p.logger.WithFields(logrus.Fields{"task": id, "worker": w.id}).Debug("outcome dropped")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if w.detached {
		return
	}
	w.busy = false
	w.current = 0
	p.available++
	p.updateGaugesLocked()
}

// deregister removes an exiting worker from the live set exactly once.
func (p *WorkerPool[I, O]) deregister(w *Worker[I, O]) {
	w.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.goroutines--
	if p.goroutines == 0 {
		close(p.exited)
	}

	if w.detached {
		return
	}
	delete(p.workers, w.id)
	if !w.busy {
		p.available--
	}
	p.updateGaugesLocked()
}

func (p *WorkerPool[I, O]) nextTaskID() uint64 {
	return p.lastTaskID.Add(1)
}

func (p *WorkerPool[I, O]) updateGaugesLocked() {
	p.metrics.setWorkers(len(p.workers), p.available, p.reserved)
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Running     bool
	Workers     int    // live workers
	Available   int    // live workers not running a task
	Reserved    int    // capacity promised through reservations
	Pending     int    // tasks waiting for a worker
	Outstanding int    // submitted tasks without a published outcome
	LastTaskID  uint64 // most recently issued id, 0 if none
	MinWorkers  int
	MaxWorkers  int
	Backend     BackendKind
	Fair        bool
}

// Stats returns a snapshot of the pool's counters. Values from different
// groups are read one after the other, not atomically together.
func (p *WorkerPool[I, O]) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Running:    p.running,
		Workers:    len(p.workers),
		Available:  p.available,
		Reserved:   p.reserved,
		MinWorkers: p.conf.minWorkers,
		MaxWorkers: p.conf.maxWorkers,
		Backend:    p.conf.backend,
		Fair:       p.conf.fair,
	}
	p.mu.Unlock()

	s.Pending = p.backend.Pending()
	s.Outstanding = p.backend.Outstanding()
	s.LastTaskID = p.lastTaskID.Load()
	return s
}
