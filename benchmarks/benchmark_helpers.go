package benchmarks

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/utkarsh5026/forkpool/pool"
)

// backendConfig defines a benchmark configuration for a synchronization backend
type backendConfig struct {
	name string
	opts []pool.Option
}

// getAllBackends returns every backend variant, sized to workerCount
func getAllBackends(workerCount int) []backendConfig {
	sizing := []pool.Option{pool.WithMinWorkers(workerCount), pool.WithMaxWorkers(workerCount)}
	return []backendConfig{
		{
			name: "Lock",
			opts: append([]pool.Option{pool.WithBackend(pool.BackendLock)}, sizing...),
		},
		{
			name: "FairLock",
			opts: append([]pool.Option{pool.WithBackend(pool.BackendLock), pool.WithFairness(true)}, sizing...),
		},
		{
			name: "Monitor",
			opts: append([]pool.Option{pool.WithBackend(pool.BackendMonitor)}, sizing...),
		},
	}
}

// cpuBoundWork simulates a CPU-intensive operation
func cpuBoundWork(iterations int) pool.ProcessFunc[int, int] {
	return func(_ context.Context, task int) (int, error) {
		result := 0
		for i := range iterations {
			result += i * task
		}
		return result, nil
	}
}

// ioBoundWork simulates an I/O operation with a delay
func ioBoundWork(delay time.Duration) pool.ProcessFunc[int, int] {
	return func(ctx context.Context, task int) (int, error) {
		select {
		case <-time.After(delay):
			return task * 2, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// sqrtSum is the per-slice work for divide-and-conquer benchmarks
func sqrtSum(from, to int) float64 {
	sum := 0.0
	for i := from; i < to; i++ {
		sum += math.Sqrt(float64(i))
	}
	return sum
}

func newPool(b *testing.B, fn pool.ProcessFunc[int, int], opts ...pool.Option) *pool.WorkerPool[int, int] {
	b.Helper()
	p, err := pool.New(fn, opts...)
	if err != nil {
		b.Fatalf("failed to create pool: %v", err)
	}
	b.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx, true)
	})
	return p
}

// submitAndCollect submits n tasks and waits for every outcome.
func submitAndCollect(b *testing.B, p *pool.WorkerPool[int, int], n int) {
	b.Helper()
	ctx := context.Background()

	ids := make([]uint64, n)
	for i := range n {
		id, err := p.Submit(i)
		if err != nil {
			b.Fatalf("submit failed: %v", err)
		}
		ids[i] = id
	}
	for _, id := range ids {
		if _, err := p.Get(ctx, id); err != nil {
			b.Fatalf("get %d failed: %v", id, err)
		}
	}
}
