package pool

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors a pool reports to.
// A nil *Metrics disables reporting.
type Metrics struct {
	TasksSubmitted   prometheus.Counter
	TasksCompleted   prometheus.Counter
	TasksFailed      prometheus.Counter
	Workers          prometheus.Gauge
	AvailableWorkers prometheus.Gauge
	ReservedWorkers  prometheus.Gauge
	TaskLatency      prometheus.Histogram
}

// NewMetrics creates the pool collectors and registers them with reg.
// Pass a nil registerer to skip registration.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the pool",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks whose computation succeeded",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that failed or were abandoned by a shutdown",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workers",
			Help:      "Current number of live workers",
		}),
		AvailableWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "available_workers",
			Help:      "Current number of live workers not running a task",
		}),
		ReservedWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reserved_workers",
			Help:      "Worker capacity currently promised to callers",
		}),
		TaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_latency_seconds",
			Help:      "Histogram of task computation latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg == nil {
		return m, nil
	}

	var errs []error
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return m, errors.Join(errs...)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TasksSubmitted,
		m.TasksCompleted,
		m.TasksFailed,
		m.Workers,
		m.AvailableWorkers,
		m.ReservedWorkers,
		m.TaskLatency,
	}
}

func (m *Metrics) submitted() {
	if m == nil {
		return
	}
	m.TasksSubmitted.Inc()
}

func (m *Metrics) completed(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TaskLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.TasksFailed.Inc()
		return
	}
	m.TasksCompleted.Inc()
}

func (m *Metrics) failedN(n int) {
	if m == nil || n == 0 {
		return
	}
	m.TasksFailed.Add(float64(n))
}

func (m *Metrics) setWorkers(workers, available, reserved int) {
	if m == nil {
		return
	}
	m.Workers.Set(float64(workers))
	m.AvailableWorkers.Set(float64(available))
	m.ReservedWorkers.Set(float64(reserved))
}
