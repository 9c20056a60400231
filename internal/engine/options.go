package engine

import (
	"log/slog"

	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/metrics"
)

// DefaultMaxSteps is the default bound on the undo stack.
const DefaultMaxSteps = history.DefaultMaxSteps

// Option configures an Engine during creation.
type Option func(*Engine)

// WithName sets the engine name used in logs and lock names.
func WithName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.name = name
		}
	}
}

// WithMaxSteps sets the maximum number of undo steps.
func WithMaxSteps(max int) Option {
	return func(e *Engine) {
		if max > 0 {
			e.maxSteps = max
		}
	}
}

// WithStrict controls whether programming errors panic (the default) or are
// logged and returned.
func WithStrict(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithStatusSink sets where replay failures are reported.
func WithStatusSink(sink history.StatusSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithNotifier registers a history notifier.
func WithNotifier(n history.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifiers = append(e.notifiers, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}
