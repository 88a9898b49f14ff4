package pool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestWorker_Call(t *testing.T) {
	t.Run("runs the computation once", func(t *testing.T) {
		w, err := NewWorker(double)
		if err != nil {
			t.Fatalf("failed to create worker: %v", err)
		}

		v, err := w.Call(context.Background(), 8)
		if err != nil || v != 16 {
			t.Errorf("expected 16, got %d, %v", v, err)
		}
		if w.State() != WorkerIdle {
			t.Errorf("Call must not start the worker loop, state %v", w.State())
		}
		if w.ID() != 0 {
			t.Errorf("unbound worker should have id 0, got %d", w.ID())
		}
	})

	t.Run("panic becomes an error with the stack", func(t *testing.T) {
		w, _ := NewWorker(func(_ context.Context, n int) (int, error) {
			panic("kaboom")
		})

		_, err := w.Call(context.Background(), 1)
		if err == nil {
			t.Fatal("expected error from panic")
		}
		msg := err.Error()
		if !strings.Contains(msg, "kaboom") || !strings.Contains(msg, "stack trace") {
			t.Errorf("unexpected panic error: %q", msg)
		}
	})

	t.Run("nil computation", func(t *testing.T) {
		if _, err := NewWorker[int, int](nil); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWorker_Clone(t *testing.T) {
	var calls atomic.Int32
	w, _ := NewWorker(func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		return n + 1, nil
	})

	c := w.Clone()
	if c == w {
		t.Fatal("clone must be a distinct worker")
	}
	if c.pool != nil || c.ID() != 0 || c.State() != WorkerIdle {
		t.Error("clone must start unbound and idle")
	}

	v, err := c.Call(context.Background(), 1)
	if err != nil || v != 2 {
		t.Errorf("expected 2, got %d, %v", v, err)
	}
	if calls.Load() != 1 {
		t.Errorf("clone should share the computation, got %d calls", calls.Load())
	}
}

func TestWorker_Retry(t *testing.T) {
	errTransient := errors.New("transient")

	tests := []struct {
		name        string
		failures    int32
		maxAttempts int
		expectErr   bool
		expectCalls int32
	}{
		{name: "no retries configured", failures: 1, maxAttempts: 1, expectErr: true, expectCalls: 1},
		{name: "succeeds on retry", failures: 2, maxAttempts: 3, expectErr: false, expectCalls: 3},
		{name: "gives up after max attempts", failures: 5, maxAttempts: 3, expectErr: true, expectCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			fn := func(_ context.Context, n int) (int, error) {
				if calls.Add(1) <= tt.failures {
					return 0, errTransient
				}
				return n, nil
			}

			w, err := NewWorker(fn,
				WithRetryPolicy(tt.maxAttempts, time.Millisecond),
				WithBackoff(BackoffConstant, 5*time.Millisecond, 0),
			)
			if err != nil {
				t.Fatalf("failed to create worker: %v", err)
			}

			_, err = w.Call(context.Background(), 7)
			if tt.expectErr != (err != nil) {
				t.Errorf("expected error %v, got %v", tt.expectErr, err)
			}
			if tt.expectErr && !errors.Is(err, errTransient) {
				t.Errorf("expected last attempt's error, got %v", err)
			}
			if calls.Load() != tt.expectCalls {
				t.Errorf("expected %d calls, got %d", tt.expectCalls, calls.Load())
			}
		})
	}

	t.Run("cancellation stops the backoff wait", func(t *testing.T) {
		w, _ := NewWorker(func(_ context.Context, n int) (int, error) {
			return 0, errTransient
		}, WithRetryPolicy(3, time.Hour), WithBackoff(BackoffConstant, time.Hour, 0))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := w.Call(ctx, 1)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("retry wait ignored the context")
		}
	})
}

func TestWorker_Hooks(t *testing.T) {
	runBackendTest(t, func(t *testing.T, b backendConfig) {
		var (
			mu      sync.Mutex
			started []uint64
			ended   = map[uint64]error{}
		)
		errOdd := errors.New("odd")

		opts := append(b.opts,
			WithBeforeTaskStart(func(id uint64) {
				mu.Lock()
				started = append(started, id)
				mu.Unlock()
			}),
			WithOnTaskEnd(func(id uint64, err error, _ time.Duration) {
				mu.Lock()
				ended[id] = err
				mu.Unlock()
			}),
		)
		p := newTestPool(t, func(_ context.Context, n int) (int, error) {
			if n%2 == 1 {
				return 0, errOdd
			}
			return n, nil
		}, opts...)

		ids := make([]uint64, 4)
		for i := range ids {
			ids[i], _ = p.Submit(i)
		}
		for _, id := range ids {
			_, _ = getWithTimeout(t, p, id)
		}

		mu.Lock()
		defer mu.Unlock()
		if len(started) != 4 || len(ended) != 4 {
			t.Fatalf("expected 4 start and end calls, got %d and %d", len(started), len(ended))
		}
		for i, id := range ids {
			err := ended[id]
			if (i%2 == 1) != errors.Is(err, errOdd) {
				t.Errorf("task %d: unexpected end error %v", id, err)
			}
		}
	}, WithMinWorkers(1), WithMaxWorkers(1))
}

func TestWorker_RateLimit(t *testing.T) {
	p := newTestPool(t, double, WithRateLimit(50, 1), WithMinWorkers(2), WithMaxWorkers(2))

	start := time.Now()
	ids := make([]uint64, 6)
	for i := range ids {
		ids[i], _ = p.Submit(i)
	}
	for _, id := range ids {
		if _, err := getWithTimeout(t, p, id); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	}

	// One token up front, then one every 20ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("rate limit not applied, 6 tasks took %v", elapsed)
	}
}

func TestWorker_LockOSThread(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"lock thread", WithLockOSThread()},
		{"thread affinity", WithThreadAffinity()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPool(t, double, tt.opt, WithMinWorkers(2), WithMaxWorkers(2))

			id, _ := p.Submit(4)
			v, err := getWithTimeout(t, p, id)
			if err != nil || v != 8 {
				t.Errorf("expected 8, got %d, %v", v, err)
			}
		})
	}
}

func TestWorkerState_String(t *testing.T) {
	tests := []struct {
		state    WorkerState
		expected string
	}{
		{WorkerIdle, "idle"},
		{WorkerRunning, "running"},
		{WorkerTerminated, "terminated"},
		{WorkerState(9), "WorkerState(9)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
}

func TestWorker_StateInPool(t *testing.T) {
	p := newTestPool(t, double, WithMinWorkers(1), WithMaxWorkers(1))

	p.mu.Lock()
	var w *Worker[int, int]
	for _, pooled := range p.workers {
		w = pooled
	}
	p.mu.Unlock()

	eventually(t, time.Second, func() bool { return w.State() == WorkerRunning }, "worker never entered its loop")
	if w.ID() == 0 {
		t.Error("pooled worker should have a non-zero id")
	}

	if err := p.Shutdown(context.Background(), true); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	eventually(t, time.Second, func() bool { return w.State() == WorkerTerminated }, "worker never terminated")
}

func TestWorkerPool_CloneWorker(t *testing.T) {
	var started atomic.Int32
	p := newTestPool(t, double,
		WithMinWorkers(1), WithMaxWorkers(1),
		WithRateLimit(20, 1),
		WithBeforeTaskStart(func(uint64) { started.Add(1) }),
	)

	id, _ := p.Submit(1)
	if _, err := getWithTimeout(t, p, id); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	w := p.CloneWorker()
	if w.ID() != 0 || w.State() != WorkerIdle {
		t.Error("cloned worker must be unbound")
	}

	start := time.Now()
	v, err := w.Call(context.Background(), 5)
	if err != nil || v != 10 {
		t.Errorf("expected 10, got %d, %v", v, err)
	}
	if started.Load() != 2 {
		t.Errorf("expected the pool's hook to run twice, got %d", started.Load())
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("clone should share the pool's rate limiter, call took %v", elapsed)
	}
	if s := p.Stats(); s.LastTaskID != 1 {
		t.Errorf("Call must not submit to the pool, last id %d", s.LastTaskID)
	}
}

func TestWorkerPool_Logging(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	errBoom := errors.New("boom")
	p := newTestPool(t, func(_ context.Context, n int) (int, error) {
		return 0, errBoom
	}, WithLogger(logger), WithMinWorkers(1), WithMaxWorkers(1))

	id, _ := p.Submit(1)
	_, _ = getWithTimeout(t, p, id)

	eventually(t, time.Second, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "task failed" {
				return true
			}
		}
		return false
	}, "task failure was not logged")

	for _, e := range hook.AllEntries() {
		if e.Message != "task failed" {
			continue
		}
		if e.Level != logrus.WarnLevel {
			t.Errorf("expected warn level, got %v", e.Level)
		}
		if e.Data["task"] != id || e.Data["component"] != "pool" {
			t.Errorf("missing fields in %v", e.Data)
		}
		if err, _ := e.Data[logrus.ErrorKey].(error); !errors.Is(err, errBoom) {
			t.Errorf("expected logged error %v, got %v", errBoom, e.Data[logrus.ErrorKey])
		}
	}

	if err := p.Shutdown(context.Background(), true); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	found := false
	for _, e := range hook.AllEntries() {
		found = found || e.Message == "pool force shut down"
	}
	if !found {
		t.Error("forced shutdown was not logged")
	}
}
