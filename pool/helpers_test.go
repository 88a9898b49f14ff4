package pool

import (
	"context"
	"testing"
	"time"
)

// backendConfig defines a test configuration for a synchronization backend
type backendConfig struct {
	name string
	opts []Option
}

// getAllBackends returns every backend variant the pool contract is run against
func getAllBackends() []backendConfig {
	return []backendConfig{
		{name: "Lock", opts: []Option{WithBackend(BackendLock)}},
		{name: "FairLock", opts: []Option{WithBackend(BackendLock), WithFairness(true)}},
		{name: "Monitor", opts: []Option{WithBackend(BackendMonitor)}},
	}
}

func runBackendTest(t *testing.T, testFunc func(t *testing.T, b backendConfig), additionalOpts ...Option) {
	for _, b := range getAllBackends() {
		b.opts = append(b.opts, additionalOpts...)
		t.Run(b.name, func(t *testing.T) {
			testFunc(t, b)
		})
	}
}

// newTestPool builds a pool and registers a forced shutdown as cleanup.
func newTestPool[I, O any](t *testing.T, fn ProcessFunc[I, O], opts ...Option) *WorkerPool[I, O] {
	t.Helper()
	p, err := New(fn, opts...)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx, true)
	})
	return p
}

// eventually polls cond until it holds or the timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func getWithTimeout[I, O any](t *testing.T, p *WorkerPool[I, O], id uint64) (O, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.Get(ctx, id)
}

func double(_ context.Context, n int) (int, error) {
	return n * 2, nil
}
