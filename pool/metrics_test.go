package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Run("registers every collector", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m, err := NewMetrics("forkpool", "test", reg)
		require.NoError(t, err)
		require.NotNil(t, m)

		m.submitted()
		families, err := reg.Gather()
		require.NoError(t, err)
		assert.Len(t, families, 7)
	})

	t.Run("duplicate registration is reported", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_, err := NewMetrics("forkpool", "dup", reg)
		require.NoError(t, err)

		_, err = NewMetrics("forkpool", "dup", reg)
		var already prometheus.AlreadyRegisteredError
		assert.True(t, errors.As(err, &already), "expected AlreadyRegisteredError, got %v", err)
	})

	t.Run("nil registerer skips registration", func(t *testing.T) {
		m, err := NewMetrics("forkpool", "free", nil)
		require.NoError(t, err)
		assert.NotNil(t, m.TaskLatency)
	})

	t.Run("nil metrics is a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.submitted()
			m.completed(nil, time.Millisecond)
			m.failedN(3)
			m.setWorkers(1, 1, 0)
		})
	})
}

func TestWorkerPool_Metrics(t *testing.T) {
	runBackendTest(t, func(t *testing.T, b backendConfig) {
		m, err := NewMetrics("forkpool", "pool", nil)
		require.NoError(t, err)

		errBad := errors.New("bad input")
		fn := func(_ context.Context, n int) (int, error) {
			if n < 0 {
				return 0, errBad
			}
			return n, nil
		}
		p := newTestPool(t, fn, append(b.opts, WithMetrics(m))...)

		inputs := []int{1, 2, -1, 3}
		ids := make([]uint64, len(inputs))
		for i, in := range inputs {
			ids[i], err = p.Submit(in)
			require.NoError(t, err)
		}
		for _, id := range ids {
			_, _ = getWithTimeout(t, p, id)
		}

		assert.Equal(t, 4.0, testutil.ToFloat64(m.TasksSubmitted))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.TasksCompleted))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksFailed))

		ok, err := p.ReserveWorkers(2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2.0, testutil.ToFloat64(m.ReservedWorkers))
		assert.Equal(t, float64(p.Stats().Workers), testutil.ToFloat64(m.Workers))

		require.NoError(t, p.Shutdown(context.Background(), true))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.Workers))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.AvailableWorkers))
	}, WithMinWorkers(1), WithMaxWorkers(3))
}
