package history

// Operation selects a behavior on a Target. Implementations are small value
// types that carry their typed arguments, captured when the command is built.
type Operation interface {
	// OpName returns a stable identifier for the operation.
	OpName() string
}

// Target is an object whose state can be changed by operations.
//
// Apply pattern-matches on the operation and performs exactly one state
// transition. Applying the same operation twice must produce the same state
// twice. Unknown operations return ErrOperationNotSupported.
type Target interface {
	Apply(op Operation) error
}

// Liveness is implemented by targets that can leave the object graph.
// Commands on a target that is not live are skipped during replay.
type Liveness interface {
	Live() bool
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc func(op Operation) error

// Apply calls f(op).
func (f TargetFunc) Apply(op Operation) error {
	return f(op)
}

// Named is an operation that carries nothing but its name. It is used for
// pre-bound commands built with Bind.
type Named string

// OpName returns the name.
func (n Named) OpName() string {
	return string(n)
}

// Bind returns a Command that calls fn when invoked. It suits post commands
// such as repaint requests that have no meaningful target.
func Bind(name string, fn func() error) Command {
	return Command{
		Target: TargetFunc(func(Operation) error { return fn() }),
		Op:     Named(name),
	}
}
