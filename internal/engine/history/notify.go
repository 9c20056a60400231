package history

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Event identifies what changed the history.
type Event int

const (
	EventCommit Event = iota
	EventUndo
	EventRedo
	EventClear
)

// String returns the string representation of the event.
func (e Event) String() string {
	switch e {
	case EventCommit:
		return "commit"
	case EventUndo:
		return "undo"
	case EventRedo:
		return "redo"
	case EventClear:
		return "clear"
	default:
		return "unknown"
	}
}

// State is a snapshot of the history delivered to notifiers.
type State struct {
	Event     Event
	CanUndo   bool
	CanRedo   bool
	UndoLabel string
	RedoLabel string
	UndoCount int
	RedoCount int

	// Step is the step committed, undone or redone. It is nil for a clear
	// and for State snapshots taken outside a notification.
	Step *Step
}

// Notifier is told when history changes so dependent affordances can refresh.
// It must not change the history.
type Notifier interface {
	OnHistoryChanged(State)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(State)

// OnHistoryChanged calls f(s).
func (f NotifierFunc) OnHistoryChanged(s State) {
	f(s)
}

// StatusSink receives replay failures that did not stop the replay.
type StatusSink interface {
	Report(err *InvocationError)
}

// StatusSinkFunc adapts a function to the StatusSink interface.
type StatusSinkFunc func(err *InvocationError)

// Report calls f(err).
func (f StatusSinkFunc) Report(err *InvocationError) {
	f(err)
}

// logSink reports failures to a logger.
type logSink struct {
	log *slog.Logger
}

func (s logSink) Report(err *InvocationError) {
	s.log.Warn("replay entry skipped",
		"phase", err.Phase.String(),
		"kind", err.Kind.String(),
		"op", err.Op,
		"index", err.Index,
		"label", err.Label,
		"err", err.Err,
	)
}

// AddNotifier registers a notifier.
func (h *History) AddNotifier(n Notifier) {
	if n != nil {
		h.notifiers = append(h.notifiers, n)
	}
}

// SuspendNotify holds notifications until the returned function is called.
// Events raised while suspended are delivered once, in order, on resume.
// Suspensions nest.
func (h *History) SuspendNotify() (resume func()) {
	h.suspended++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		h.suspended--
		if h.suspended > 0 {
			return
		}
		events := h.deferred
		h.deferred = nil
		for _, p := range events {
			h.fire(p.ev, p.step)
		}
	}
}

// pendingEvent is a notification held by SuspendNotify.
type pendingEvent struct {
	ev   Event
	step *Step
}

func (h *History) notify(ev Event, step *Step) {
	if h.suspended > 0 {
		h.deferred = append(h.deferred, pendingEvent{ev: ev, step: step})
		return
	}
	h.fire(ev, step)
}

func (h *History) fire(ev Event, step *Step) {
	if len(h.notifiers) == 0 {
		return
	}
	state := h.state(ev)
	state.Step = step

	h.notifying = true
	defer func() { h.notifying = false }()

	for _, n := range h.notifiers {
		h.callNotifier(n, state)
	}
}

// callNotifier isolates a notifier so a panic cannot corrupt history state.
func (h *History) callNotifier(n Notifier, s State) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("history notifier panicked",
				"event", s.Event.String(),
				"err", fmt.Errorf("panic: %v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	n.OnHistoryChanged(s)
}

func (h *History) state(ev Event) State {
	s := State{
		Event:     ev,
		CanUndo:   len(h.undoStack) > 0,
		CanRedo:   len(h.redoStack) > 0,
		UndoCount: len(h.undoStack),
		RedoCount: len(h.redoStack),
	}
	if s.CanUndo {
		s.UndoLabel = h.undoStack[len(h.undoStack)-1].label
	}
	if s.CanRedo {
		s.RedoLabel = h.redoStack[len(h.redoStack)-1].label
	}
	return s
}
