package history

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrTransactionMisuse indicates unbalanced or out-of-transaction use of
	// the builder. It is a programming defect in the caller.
	ErrTransactionMisuse = errors.New("transaction misuse")

	// ErrOperationNotSupported is returned by a Target that does not
	// implement the requested operation.
	ErrOperationNotSupported = errors.New("operation not supported")

	// ErrStaleTarget is reported when a command's target has left the
	// object graph before replay.
	ErrStaleTarget = errors.New("target is no longer live")

	// ErrNotifying is returned when a notifier tries to change history.
	ErrNotifying = errors.New("history changed from inside a notifier")

	// ErrCheckpointNotFound is returned when a checkpoint's step has been
	// evicted or undone past.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// Kind classifies an invocation failure.
type Kind int

const (
	// KindNotSupported means the target does not implement the operation.
	KindNotSupported Kind = iota
	// KindFailed means the operation ran and reported an error.
	KindFailed
	// KindStale means the target was no longer live.
	KindStale
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotSupported:
		return "not_supported"
	case KindFailed:
		return "failed"
	case KindStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Phase identifies which command of an entry was being invoked.
type Phase int

const (
	PhaseDirect Phase = iota
	PhaseUndo
	PhaseRedo
	PhasePost
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseUndo:
		return "undo"
	case PhaseRedo:
		return "redo"
	case PhasePost:
		return "post"
	default:
		return "direct"
	}
}

// InvocationError describes a command that could not be applied.
type InvocationError struct {
	Kind  Kind
	Phase Phase
	Op    string
	Label string

	// Step and Index locate the entry during replay. Index is -1 for
	// direct invocations.
	Step  uuid.UUID
	Index int

	Err error
}

func (e *InvocationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s %s of entry %d (%s): %s: %v", e.Phase, e.Op, e.Index, e.Label, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
