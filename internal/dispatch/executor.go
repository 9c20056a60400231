package dispatch

import (
	"context"
	"runtime/debug"
	"time"
)

// Executor runs tasks with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// NewExecutor creates a new executor.
func NewExecutor(panicHandler PanicHandler) *Executor {
	return &Executor{panicHandler: panicHandler}
}

// Execute runs a task and returns the result.
// It recovers from panics and captures timing information.
func (e *Executor) Execute(ctx context.Context, task Task) (result Result) {
	// Check context before starting
	select {
	case <-ctx.Done():
		return Result{Error: ctx.Err(), Skipped: true}
	default:
	}

	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			// Protect the panic handler call - don't let it crash the process
			if e.panicHandler != nil {
				func() {
					defer func() { _ = recover() }()
					e.panicHandler(r, stack)
				}()
			}
		}
	}()

	result.Error = task(ctx)
	return result
}
