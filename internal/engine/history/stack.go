package history

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxSteps is the default bound on the undo stack.
const DefaultMaxSteps = 1000

// History manages the undo/redo stacks and the transaction builder.
type History struct {
	undoStack []*Step
	redoStack []*Step

	// Transaction builder state
	depth   int
	pending []Entry

	// Notification state
	notifiers []Notifier
	notifying bool
	suspended int
	deferred  []pendingEvent

	// Configuration
	maxSteps int
	strict   bool
	sink     StatusSink
	log      *slog.Logger
}

// Option configures a History.
type Option func(*History)

// WithMaxSteps sets the maximum number of undo steps. Older steps are
// evicted first.
func WithMaxSteps(max int) Option {
	return func(h *History) {
		if max > 0 {
			h.maxSteps = max
		}
	}
}

// WithStrict controls how transaction misuse is handled. Strict histories
// panic; lenient ones log at error level and return the error.
func WithStrict(strict bool) Option {
	return func(h *History) {
		h.strict = strict
	}
}

// WithStatusSink sets where replay failures are reported.
func WithStatusSink(sink StatusSink) Option {
	return func(h *History) {
		if sink != nil {
			h.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *History) {
		if log != nil {
			h.log = log
		}
	}
}

// WithNotifier registers a notifier at construction.
func WithNotifier(n Notifier) Option {
	return func(h *History) {
		h.AddNotifier(n)
	}
}

// New creates a new history.
func New(opts ...Option) *History {
	h := &History{
		maxSteps: DefaultMaxSteps,
		strict:   true,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.sink == nil {
		h.sink = logSink{log: h.log}
	}
	return h
}

// misuse reports a programming defect in a caller.
func (h *History) misuse(format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrTransactionMisuse, fmt.Sprintf(format, args...))
	h.log.Error("transaction misuse", "err", err, "depth", h.depth)
	if h.strict {
		panic(err)
	}
	return err
}

// Undo reverts the most recent step.
//
// Undo commands run in reverse entry order. Entries that fail are reported
// to the status sink and skipped; the step still moves to the redo stack.
func (h *History) Undo() error {
	if h.notifying {
		return ErrNotifying
	}
	if h.depth > 0 {
		return h.misuse("undo inside an open transaction")
	}
	if len(h.undoStack) == 0 {
		return ErrNothingToUndo
	}

	step := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]

	for i := len(step.entries) - 1; i >= 0; i-- {
		h.invoke(step, i, PhaseUndo, step.entries[i].Undo)
	}

	h.redoStack = append(h.redoStack, step)
	h.notify(EventUndo, step)
	return nil
}

// Redo reapplies the most recently undone step.
//
// Redo commands run in forward entry order, each followed by its post
// command. Failures are reported and skipped like in Undo.
func (h *History) Redo() error {
	if h.notifying {
		return ErrNotifying
	}
	if h.depth > 0 {
		return h.misuse("redo inside an open transaction")
	}
	if len(h.redoStack) == 0 {
		return ErrNothingToRedo
	}

	step := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]

	for i, e := range step.entries {
		err := h.invoke(step, i, PhaseRedo, e.Redo)
		var ie *InvocationError
		if errors.As(err, &ie) && ie.Kind == KindStale {
			continue
		}
		if !e.Post.IsZero() {
			h.invoke(step, i, PhasePost, e.Post)
		}
	}

	h.undoStack = append(h.undoStack, step)
	h.notify(EventRedo, step)
	return nil
}

// invoke runs one command of a step and reports its failure, if any.
func (h *History) invoke(step *Step, index int, phase Phase, cmd Command) error {
	err := cmd.Invoke()
	if err == nil {
		return nil
	}

	var ie *InvocationError
	if !errors.As(err, &ie) {
		ie = &InvocationError{Kind: KindFailed, Op: cmd.Description(), Err: err}
	}
	ie.Phase = phase
	ie.Step = step.id
	ie.Index = index
	ie.Label = step.entries[index].Label

	if ie.Kind == KindNotSupported {
		h.log.Debug("operation not supported during replay", "op", ie.Op, "phase", phase.String())
		return ie
	}
	h.sink.Report(ie)
	return ie
}

// CanUndo returns true if undo is available.
func (h *History) CanUndo() bool {
	return len(h.undoStack) > 0
}

// CanRedo returns true if redo is available.
func (h *History) CanRedo() bool {
	return len(h.redoStack) > 0
}

// UndoCount returns the number of undo steps available.
func (h *History) UndoCount() int {
	return len(h.undoStack)
}

// RedoCount returns the number of redo steps available.
func (h *History) RedoCount() int {
	return len(h.redoStack)
}

// Clear removes all undo/redo history. No commands are replayed.
func (h *History) Clear() error {
	if h.notifying {
		return ErrNotifying
	}
	if h.depth > 0 {
		return h.misuse("clear inside an open transaction")
	}
	h.undoStack = nil
	h.redoStack = nil
	h.notify(EventClear, nil)
	return nil
}

// PeekUndo returns the step the next Undo would revert.
func (h *History) PeekUndo() (*Step, bool) {
	if len(h.undoStack) == 0 {
		return nil, false
	}
	return h.undoStack[len(h.undoStack)-1], true
}

// PeekRedo returns the step the next Redo would reapply.
func (h *History) PeekRedo() (*Step, bool) {
	if len(h.redoStack) == 0 {
		return nil, false
	}
	return h.redoStack[len(h.redoStack)-1], true
}

// Steps returns a snapshot of the undo stack, oldest first. Steps are
// immutable, so the snapshot may be walked from any goroutine.
func (h *History) Steps() []*Step {
	out := make([]*Step, len(h.undoStack))
	copy(out, h.undoStack)
	return out
}

// RedoSteps returns a snapshot of the redo stack, oldest first.
func (h *History) RedoSteps() []*Step {
	out := make([]*Step, len(h.redoStack))
	copy(out, h.redoStack)
	return out
}

// State returns the current history state.
func (h *History) State() State {
	return h.state(-1)
}

// MaxSteps returns the maximum number of undo steps.
func (h *History) MaxSteps() int {
	return h.maxSteps
}

// SetMaxSteps changes the maximum number of undo steps.
// If the current stack is larger, oldest steps are removed.
func (h *History) SetMaxSteps(max int) {
	if max <= 0 {
		max = DefaultMaxSteps
	}
	h.maxSteps = max
	h.evict()
}

func (h *History) evict() {
	if len(h.undoStack) > h.maxSteps {
		excess := len(h.undoStack) - h.maxSteps
		clear(h.undoStack[:excess])
		h.undoStack = h.undoStack[excess:]
	}
}
