package pool

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/forkpool/internal/backend"
	"github.com/utkarsh5026/forkpool/internal/backoff"
)

// BackendKind selects how the pool synchronizes its task queue and results.
type BackendKind = backend.Kind

const (
	// BackendLock uses explicit locks with condition variables.
	BackendLock = backend.KindLock
	// BackendMonitor uses monitor-style wait/notify-all.
	BackendMonitor = backend.KindMonitor
)

// BackoffType selects the delay algorithm between retry attempts.
type BackoffType = backoff.Type

const (
	BackoffExponential = backoff.Exponential
	BackoffJittered    = backoff.Jittered
	BackoffConstant    = backoff.Constant
)

// Option is a functional option for configuring a WorkerPool.
type Option func(*config)

type config struct {
	minWorkers int
	maxWorkers int
	maxSet     bool

	backend BackendKind
	fair    bool

	logger  logrus.FieldLogger
	metrics *Metrics

	rateLimiter *rate.Limiter

	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	backoffType  BackoffType
	jitterFactor float64

	lockOSThread bool
	pinCPU       bool

	beforeTaskStart func(id uint64)
	onTaskEnd       func(id uint64, err error, elapsed time.Duration)
}

func defaultConfig() *config {
	return &config{
		minWorkers:   1,
		maxWorkers:   runtime.GOMAXPROCS(0),
		backend:      BackendLock,
		maxAttempts:  1,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     5 * time.Second,
		backoffType:  BackoffExponential,
		jitterFactor: 0.1,
	}
}

func buildConfig(opts ...Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.maxSet && cfg.maxWorkers < cfg.minWorkers {
		cfg.maxWorkers = cfg.minWorkers
	}
	if cfg.minWorkers <= 0 || cfg.minWorkers > cfg.maxWorkers {
		return nil, fmt.Errorf("%w: need 0 < min (%d) <= max (%d)", ErrInvalidConfig, cfg.minWorkers, cfg.maxWorkers)
	}
	if cfg.logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		cfg.logger = discard
	}
	return cfg, nil
}

// WithMinWorkers sets the number of workers started eagerly and on restart.
// Defaults to 1.
func WithMinWorkers(n int) Option {
	return func(cfg *config) {
		cfg.minWorkers = n
	}
}

// WithMaxWorkers caps the number of live workers and of reservable capacity.
// Defaults to runtime.GOMAXPROCS(0), raised to the minimum if needed.
func WithMaxWorkers(n int) Option {
	return func(cfg *config) {
		cfg.maxWorkers = n
		cfg.maxSet = true
	}
}

// WithBackend selects the synchronization backend. Defaults to BackendLock.
func WithBackend(kind BackendKind) Option {
	return func(cfg *config) {
		cfg.backend = kind
	}
}

// WithFairness makes the lock backend admit contending goroutines in
// FIFO order. It has no effect on BackendMonitor.
func WithFairness(fair bool) Option {
	return func(cfg *config) {
		cfg.fair = fair
	}
}

// WithLogger sets the structured logger used for worker failures, capacity
// refusals and lifecycle events. Logging is discarded by default.
func WithLogger(l logrus.FieldLogger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

// WithMetrics publishes pool activity to the given prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(cfg *config) {
		cfg.metrics = m
	}
}

// WithRateLimit caps how many computations start per second across all
// workers. A worker waits for a token before running a task.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 tasks/sec with bursts of 5
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(cfg *config) {
		if tasksPerSecond > 0 && burst > 0 {
			cfg.rateLimiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithRetryPolicy retries a failing computation up to maxAttempts times in
// total, waiting initialDelay before the first retry and backing off after.
// The outcome of the last attempt is what gets published.
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) Option {
	return func(cfg *config) {
		if maxAttempts > 0 {
			cfg.maxAttempts = maxAttempts
		}
		if initialDelay >= 0 {
			cfg.initialDelay = initialDelay
		}
	}
}

// WithBackoff chooses the retry delay algorithm and its ceiling.
// jitterFactor only applies to BackoffJittered.
func WithBackoff(t BackoffType, maxDelay time.Duration, jitterFactor float64) Option {
	return func(cfg *config) {
		cfg.backoffType = t
		cfg.maxDelay = maxDelay
		cfg.jitterFactor = jitterFactor
	}
}

// WithLockOSThread dedicates one OS thread to each worker for its lifetime.
func WithLockOSThread() Option {
	return func(cfg *config) {
		cfg.lockOSThread = true
	}
}

// WithThreadAffinity locks each worker to an OS thread and pins that thread
// to a CPU core, spreading workers round-robin over the cores. Pinning
// failures are logged and the worker keeps running unpinned.
func WithThreadAffinity() Option {
	return func(cfg *config) {
		cfg.lockOSThread = true
		cfg.pinCPU = true
	}
}

// WithBeforeTaskStart registers a hook called by a worker right before it
// runs a task.
func WithBeforeTaskStart(fn func(id uint64)) Option {
	return func(cfg *config) {
		cfg.beforeTaskStart = fn
	}
}

// WithOnTaskEnd registers a hook called by a worker after a task finished,
// with the task's error (nil on success) and the time spent computing.
func WithOnTaskEnd(fn func(id uint64, err error, elapsed time.Duration)) Option {
	return func(cfg *config) {
		cfg.onTaskEnd = fn
	}
}
