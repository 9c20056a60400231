package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running owner.
	ErrAlreadyRunning = errors.New("owner is already running")

	// ErrNotRunning is returned when tasks are submitted to a stopped owner.
	ErrNotRunning = errors.New("owner is not running")

	// ErrOwnerViolation indicates a call made off the owner goroutine.
	ErrOwnerViolation = errors.New("called off the owner goroutine")
)

// PanicError is returned to a waiting caller when its task panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("owner task panicked: %v", e.Value)
}

// Unwrap exposes a panic value that is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
