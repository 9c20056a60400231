// Package metrics defines the Prometheus collectors exported by the engine
// and the owner dispatcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "stepwise"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// StepsCommitted counts steps pushed onto the undo stack.
	StepsCommitted prometheus.Counter

	// Replays counts undo and redo executions by direction.
	Replays *prometheus.CounterVec

	// InvocationFailures counts replay entries that were skipped, by kind.
	InvocationFailures *prometheus.CounterVec

	// Misuse counts programming defects detected at runtime, by class.
	Misuse *prometheus.CounterVec

	// QueueDepth tracks tasks waiting for the owner goroutine.
	QueueDepth prometheus.Gauge

	// TaskDuration tracks owner task execution time.
	TaskDuration prometheus.Histogram

	// TasksPanicked counts owner tasks that panicked.
	TasksPanicked prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors, which suits tests and embedding.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)

	return &Metrics{
		StepsCommitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_committed_total",
			Help:      "Total steps committed to the undo stack",
		}),
		Replays: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Total undo/redo replays by direction",
		}, []string{"direction"}),
		InvocationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_failures_total",
			Help:      "Replay entries skipped by failure kind",
		}, []string{"kind"}),
		Misuse: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misuse_total",
			Help:      "Programming defects detected at runtime by class",
		}, []string{"class"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "owner_queue_depth",
			Help:      "Tasks waiting for the owner goroutine",
		}),
		TaskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "owner_task_duration_seconds",
			Help:      "Owner task execution time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10), // 50us to ~13s
		}),
		TasksPanicked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "owner_tasks_panicked_total",
			Help:      "Owner tasks that panicked",
		}),
	}
}

// Committed records a committed step.
func (m *Metrics) Committed() {
	if m == nil {
		return
	}
	m.StepsCommitted.Inc()
}

// Replayed records an undo or redo.
func (m *Metrics) Replayed(direction string) {
	if m == nil {
		return
	}
	m.Replays.WithLabelValues(direction).Inc()
}

// InvocationFailed records a skipped replay entry.
func (m *Metrics) InvocationFailed(kind string) {
	if m == nil {
		return
	}
	m.InvocationFailures.WithLabelValues(kind).Inc()
}

// Misused records a detected programming defect.
func (m *Metrics) Misused(class string) {
	if m == nil {
		return
	}
	m.Misuse.WithLabelValues(class).Inc()
}

// Queued sets the owner queue depth.
func (m *Metrics) Queued(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// TaskDone records an owner task.
func (m *Metrics) TaskDone(d time.Duration, panicked bool) {
	if m == nil {
		return
	}
	m.TaskDuration.Observe(d.Seconds())
	if panicked {
		m.TasksPanicked.Inc()
	}
}
