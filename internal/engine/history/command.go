package history

import (
	"errors"
	"fmt"
)

// Command is a deferred, re-invocable unit of work: an operation bound to a
// target with its arguments captured at creation time.
//
// Commands are values and are never mutated once recorded.
type Command struct {
	Target Target
	Op     Operation
}

// NewCommand creates a new command.
func NewCommand(target Target, op Operation) Command {
	return Command{Target: target, Op: op}
}

// IsZero returns true if the command has no target or operation.
func (c Command) IsZero() bool {
	return c.Target == nil || c.Op == nil
}

// Invoke applies the operation to the target.
//
// Failures are returned as *InvocationError. A target that does not handle
// the operation yields KindNotSupported, a target that is no longer live
// yields KindStale, and any other error yields KindFailed.
func (c Command) Invoke() (err error) {
	if c.IsZero() {
		return &InvocationError{Kind: KindNotSupported, Op: c.Description(), Index: -1, Err: ErrOperationNotSupported}
	}

	if l, ok := c.Target.(Liveness); ok && !l.Live() {
		return &InvocationError{Kind: KindStale, Op: c.Op.OpName(), Index: -1, Err: ErrStaleTarget}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &InvocationError{Kind: KindFailed, Op: c.Op.OpName(), Index: -1, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if applyErr := c.Target.Apply(c.Op); applyErr != nil {
		kind := KindFailed
		if errors.Is(applyErr, ErrOperationNotSupported) {
			kind = KindNotSupported
		}
		return &InvocationError{Kind: kind, Op: c.Op.OpName(), Index: -1, Err: applyErr}
	}
	return nil
}

// Description returns a human-readable description.
func (c Command) Description() string {
	if c.Op == nil {
		return "<none>"
	}
	return c.Op.OpName()
}
