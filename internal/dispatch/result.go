package dispatch

import (
	"context"
	"time"
)

// Task is a unit of work run on the owner goroutine.
type Task func(ctx context.Context) error

// Result represents the outcome of a task execution.
type Result struct {
	// Error is the error returned by the task, if any.
	Error error

	// Panicked is true if the task panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the task took to execute.
	Duration time.Duration

	// Skipped is true if the task was not executed (e.g., context cancelled).
	Skipped bool
}

// IsSuccess returns true if the result indicates successful execution.
func (r Result) IsSuccess() bool {
	return !r.Skipped && !r.Panicked && r.Error == nil
}

// Err returns the error a waiting caller should see.
func (r Result) Err() error {
	if r.Panicked {
		return &PanicError{Value: r.PanicValue, Stack: r.PanicStack}
	}
	return r.Error
}

// PanicHandler is called when a task panics.
type PanicHandler func(panicValue any, stack []byte)
