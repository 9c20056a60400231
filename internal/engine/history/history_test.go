package history

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// box is a minimal target with two tracked attributes.
type box struct {
	x, y  int
	label string
	dead  bool
}

type moveTo struct{ X, Y int }

func (moveTo) OpName() string { return "moveTo" }

type relabel struct{ Label string }

func (relabel) OpName() string { return "relabel" }

type explode struct{}

func (explode) OpName() string { return "explode" }

type unknownOp struct{}

func (unknownOp) OpName() string { return "unknown" }

func (b *box) Apply(op Operation) error {
	switch op := op.(type) {
	case moveTo:
		b.x, b.y = op.X, op.Y
		return nil
	case relabel:
		b.label = op.Label
		return nil
	case explode:
		return errors.New("boom")
	default:
		return ErrOperationNotSupported
	}
}

func (b *box) Live() bool { return !b.dead }

// move applies a move and records it in the open transaction.
func move(t *testing.T, h *History, b *box, x, y int) {
	t.Helper()
	undo := NewCommand(b, moveTo{X: b.x, Y: b.y})
	redo := NewCommand(b, moveTo{X: x, Y: y})
	require.NoError(t, redo.Invoke())
	require.NoError(t, h.AddUndo(Entry{Undo: undo, Redo: redo, Label: "Move"}))
}

func setLabel(t *testing.T, h *History, b *box, label string) {
	t.Helper()
	undo := NewCommand(b, relabel{Label: b.label})
	redo := NewCommand(b, relabel{Label: label})
	require.NoError(t, redo.Invoke())
	require.NoError(t, h.AddUndo(Entry{Undo: undo, Redo: redo, Label: "Rename"}))
}

type sinkRecorder struct {
	errs []*InvocationError
}

func (s *sinkRecorder) Report(err *InvocationError) { s.errs = append(s.errs, err) }

func TestMoveUndoRedo(t *testing.T) {
	h := New()
	b := &box{x: 10, y: 10}

	tok := h.StartSteps()
	move(t, h, b, 50, 50)
	require.NoError(t, h.FinishUndoSteps(tok, "Move"))

	require.Equal(t, 1, h.UndoCount())
	assert.Equal(t, 50, b.x)

	require.NoError(t, h.Undo())
	assert.Equal(t, [2]int{10, 10}, [2]int{b.x, b.y})
	assert.True(t, h.CanRedo())
	assert.False(t, h.CanUndo())

	require.NoError(t, h.Redo())
	assert.Equal(t, [2]int{50, 50}, [2]int{b.x, b.y})
	assert.True(t, h.CanUndo())
	assert.False(t, h.CanRedo())
}

func TestRoundTripRestoresState(t *testing.T) {
	h := New()
	a := &box{x: 1, y: 2, label: "a"}
	c := &box{x: 3, y: 4, label: "c"}
	before := [2]box{*a, *c}

	tok := h.StartSteps()
	move(t, h, a, 5, 6)
	setLabel(t, h, a, "a2")
	move(t, h, c, 7, 8)
	move(t, h, a, 9, 9)
	setLabel(t, h, c, "c2")
	require.NoError(t, h.FinishUndoSteps(tok, "Edit"))
	after := [2]box{*a, *c}

	require.NoError(t, h.Undo())
	assert.Equal(t, before, [2]box{*a, *c})

	require.NoError(t, h.Redo())
	assert.Equal(t, after, [2]box{*a, *c})
}

func TestNestingCollapsesIntoOneStep(t *testing.T) {
	h := New()
	b := &box{}

	outer := h.StartSteps()
	inner := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NoError(t, h.FinishUndoSteps(inner, "inner"))
	assert.Equal(t, 0, h.UndoCount(), "inner finish must not commit")
	setLabel(t, h, b, "x")
	require.NoError(t, h.FinishUndoSteps(outer, "outer"))

	require.Equal(t, 1, h.UndoCount())
	step, ok := h.PeekUndo()
	require.True(t, ok)
	assert.Equal(t, "outer", step.Label())
	require.Equal(t, 2, step.Len())
	assert.Equal(t, "Move", step.Entry(0).Label)
	assert.Equal(t, "Rename", step.Entry(1).Label)
}

func TestEmptyTransactionIsNoop(t *testing.T) {
	var events []Event
	h := New(WithNotifier(NotifierFunc(func(s State) { events = append(events, s.Event) })))

	tok := h.StartSteps()
	require.NoError(t, h.FinishUndoSteps(tok, "nothing"))

	assert.Equal(t, 0, h.UndoCount())
	assert.Empty(t, events)
}

func TestNewCommitClearsRedo(t *testing.T) {
	h := New()
	b := &box{}

	for i := 1; i <= 2; i++ {
		tok := h.StartSteps()
		move(t, h, b, i, i)
		require.NoError(t, h.FinishUndoSteps(tok, "Move"))
	}
	require.NoError(t, h.Undo())
	require.Equal(t, 1, h.RedoCount())

	tok := h.StartSteps()
	move(t, h, b, 9, 9)
	require.NoError(t, h.FinishUndoSteps(tok, "Move"))

	assert.Equal(t, 0, h.RedoCount())
	assert.ErrorIs(t, h.Redo(), ErrNothingToRedo)
}

func TestAddUndoOutsideTransaction(t *testing.T) {
	b := &box{}
	entry := Entry{
		Undo:  NewCommand(b, moveTo{}),
		Redo:  NewCommand(b, moveTo{X: 1}),
		Label: "Move",
	}

	t.Run("strict panics", func(t *testing.T) {
		h := New()
		defer func() {
			r := recover()
			require.NotNil(t, r)
			err, ok := r.(error)
			require.True(t, ok)
			assert.ErrorIs(t, err, ErrTransactionMisuse)
			assert.Equal(t, 0, h.UndoCount())
			assert.Equal(t, 0, h.Pending())
		}()
		_ = h.AddUndo(entry)
	})

	t.Run("lenient returns error", func(t *testing.T) {
		h := New(WithStrict(false))
		err := h.AddUndo(entry)
		assert.ErrorIs(t, err, ErrTransactionMisuse)
		assert.Equal(t, 0, h.UndoCount())
		assert.Equal(t, 0, h.Pending())

		// A later transaction must not pick up the rejected entry.
		tok := h.StartSteps()
		require.NoError(t, h.FinishUndoSteps(tok, "empty"))
		assert.Equal(t, 0, h.UndoCount())
	})
}

func TestFinishWithoutStart(t *testing.T) {
	h := New(WithStrict(false))
	tok := h.StartSteps()
	require.NoError(t, h.FinishUndoSteps(tok, "a"))

	err := h.FinishUndoSteps(tok, "a")
	assert.ErrorIs(t, err, ErrTransactionMisuse)
	assert.Equal(t, 0, h.Depth())
}

func TestFinishWithWrongToken(t *testing.T) {
	h := New(WithStrict(false))
	outer := h.StartSteps()
	_ = h.StartSteps()

	err := h.FinishUndoSteps(outer, "out of order")
	assert.ErrorIs(t, err, ErrTransactionMisuse)
	assert.Equal(t, 2, h.Depth())
}

func TestAddUndoRequiresCommands(t *testing.T) {
	h := New(WithStrict(false))
	tok := h.StartSteps()
	err := h.AddUndo(Entry{Label: "empty"})
	assert.ErrorIs(t, err, ErrTransactionMisuse)
	require.NoError(t, h.FinishUndoSteps(tok, ""))
	assert.Equal(t, 0, h.UndoCount())
}

func TestUndoOnEmpty(t *testing.T) {
	h := New()
	assert.ErrorIs(t, h.Undo(), ErrNothingToUndo)
	assert.Equal(t, 0, h.UndoCount())
	assert.Equal(t, 0, h.RedoCount())
}

func TestUndoInsideTransaction(t *testing.T) {
	h := New(WithStrict(false))
	tok := h.StartSteps()
	assert.ErrorIs(t, h.Undo(), ErrTransactionMisuse)
	assert.ErrorIs(t, h.Redo(), ErrTransactionMisuse)
	assert.ErrorIs(t, h.Clear(), ErrTransactionMisuse)
	require.NoError(t, h.FinishUndoSteps(tok, ""))
}

func TestReplayContinuesPastUnsupportedOperation(t *testing.T) {
	sink := &sinkRecorder{}
	h := New(WithStatusSink(sink))
	b := &box{}

	tok := h.StartSteps()
	require.NoError(t, h.AddUndo(Entry{
		Undo:  NewCommand(b, unknownOp{}),
		Redo:  NewCommand(b, unknownOp{}),
		Label: "Optional feature",
	}))
	move(t, h, b, 4, 4)
	require.NoError(t, h.FinishUndoSteps(tok, "Mixed"))

	require.NoError(t, h.Undo())
	assert.Equal(t, 0, b.x)

	require.NoError(t, h.Redo())
	assert.Equal(t, 4, b.x, "entry after the unsupported one must still replay")
	assert.Empty(t, sink.errs, "unsupported operations are not reported")
}

func TestReplayReportsFailuresAndContinues(t *testing.T) {
	sink := &sinkRecorder{}
	h := New(WithStatusSink(sink))
	b := &box{}

	tok := h.StartSteps()
	move(t, h, b, 2, 2)
	require.NoError(t, h.AddUndo(Entry{
		Undo:  NewCommand(b, explode{}),
		Redo:  NewCommand(b, explode{}),
		Label: "Explode",
	}))
	move(t, h, b, 3, 3)
	require.NoError(t, h.FinishUndoSteps(tok, "Risky"))

	require.NoError(t, h.Undo())
	assert.Equal(t, 0, b.x)
	require.Len(t, sink.errs, 1)
	got := sink.errs[0]
	assert.Equal(t, KindFailed, got.Kind)
	assert.Equal(t, PhaseUndo, got.Phase)
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, "Explode", got.Label)
	assert.EqualError(t, errors.Unwrap(got), "boom")
	assert.True(t, h.CanRedo())
}

func TestReplaySkipsStaleTargets(t *testing.T) {
	sink := &sinkRecorder{}
	h := New(WithStatusSink(sink))
	gone := &box{}
	kept := &box{}

	tok := h.StartSteps()
	move(t, h, gone, 1, 1)
	move(t, h, kept, 2, 2)
	require.NoError(t, h.FinishUndoSteps(tok, "Two"))

	require.NoError(t, h.Undo())
	gone.dead = true

	require.NoError(t, h.Redo())
	assert.Equal(t, 0, gone.x)
	assert.Equal(t, 2, kept.x)
	require.Len(t, sink.errs, 1)
	assert.Equal(t, KindStale, sink.errs[0].Kind)
	assert.ErrorIs(t, sink.errs[0], ErrStaleTarget)
}

func TestPostRunsAfterRedo(t *testing.T) {
	h := New()
	b := &box{}
	var trace []string

	tok := h.StartSteps()
	move(t, h, b, 1, 1)
	entry := h.pending[0]
	entry.Post = Bind("repaint", func() error {
		trace = append(trace, fmt.Sprintf("post at %d", b.x))
		return nil
	})
	h.pending[0] = entry
	require.NoError(t, h.FinishUndoSteps(tok, "Move"))

	require.NoError(t, h.Undo())
	assert.Empty(t, trace, "post runs on redo only")
	require.NoError(t, h.Redo())
	assert.Equal(t, []string{"post at 1"}, trace)
}

func TestPanickingCommandIsContained(t *testing.T) {
	sink := &sinkRecorder{}
	h := New(WithStatusSink(sink))
	b := &box{}

	tok := h.StartSteps()
	require.NoError(t, h.AddUndo(Entry{
		Undo: Bind("panic", func() error { panic("bad target") }),
		Redo: Bind("noop", func() error { return nil }),
	}))
	move(t, h, b, 1, 1)
	require.NoError(t, h.FinishUndoSteps(tok, "Panicky"))

	require.NoError(t, h.Undo())
	assert.Equal(t, 0, b.x)
	require.Len(t, sink.errs, 1)
	assert.Contains(t, sink.errs[0].Error(), "bad target")
}

func TestNotifierEvents(t *testing.T) {
	var states []State
	h := New(WithNotifier(NotifierFunc(func(s State) { states = append(states, s) })))
	b := &box{}

	tok := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NoError(t, h.FinishUndoSteps(tok, "Move"))
	require.NoError(t, h.Undo())
	require.NoError(t, h.Redo())
	require.NoError(t, h.Clear())

	require.Len(t, states, 4)
	step := states[0].Step
	require.NotNil(t, step)
	assert.Same(t, step, states[1].Step)
	assert.Same(t, step, states[2].Step)
	assert.Nil(t, states[3].Step)
	for i := range states {
		states[i].Step = nil
	}

	assert.Equal(t, State{Event: EventCommit, CanUndo: true, UndoLabel: "Move", UndoCount: 1}, states[0])
	assert.Equal(t, State{Event: EventUndo, CanRedo: true, RedoLabel: "Move", RedoCount: 1}, states[1])
	assert.Equal(t, EventRedo, states[2].Event)
	assert.Equal(t, State{Event: EventClear}, states[3])
}

func TestNotifierCannotMutate(t *testing.T) {
	var got error
	h := New()
	h.AddNotifier(NotifierFunc(func(State) { got = h.Undo() }))
	b := &box{}

	tok := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NoError(t, h.FinishUndoSteps(tok, "Move"))

	assert.ErrorIs(t, got, ErrNotifying)
	assert.Equal(t, 1, h.UndoCount())
}

func TestNotifierCannotOpenTransaction(t *testing.T) {
	var tok Token
	h := New(WithStrict(false))
	h.AddNotifier(NotifierFunc(func(State) { tok = h.StartSteps() }))
	b := &box{}

	outer := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NoError(t, h.FinishUndoSteps(outer, "Move"))

	assert.Equal(t, 0, tok.Depth())
	assert.Equal(t, 0, h.Depth())
	assert.Error(t, h.FinishUndoSteps(tok, "Late"))
	require.NoError(t, h.Undo(), "history is not left inside a transaction")
}

func TestNotifierCannotOpenTransactionStrict(t *testing.T) {
	h := New(WithStrict(true))
	h.AddNotifier(NotifierFunc(func(State) { h.StartSteps() }))
	b := &box{}

	tok := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NotPanics(t, func() { require.NoError(t, h.FinishUndoSteps(tok, "Move")) })
	assert.Equal(t, 0, h.Depth())
}

func TestNotificationCarriesSubjects(t *testing.T) {
	var got [][]any
	h := New(WithNotifier(NotifierFunc(func(s State) {
		if s.Step != nil {
			got = append(got, s.Step.Subjects())
		}
	})))
	b := &box{}

	tok := h.StartSteps()
	undo := NewCommand(b, moveTo{})
	redo := NewCommand(b, moveTo{X: 2, Y: 2})
	require.NoError(t, redo.Invoke())
	require.NoError(t, h.AddUndo(Entry{Undo: undo, Redo: redo, Subject: WeakSubject(b), Label: "Move"}))
	setLabel(t, h, b, "x")
	require.NoError(t, h.FinishUndoSteps(tok, "Edit"))
	require.NoError(t, h.Undo())

	require.Len(t, got, 2)
	assert.Equal(t, []any{b}, got[0], "entries without a subject are left out")
	assert.Equal(t, []any{b}, got[1])
}

func TestNotifierPanicIsContained(t *testing.T) {
	calls := 0
	h := New(
		WithNotifier(NotifierFunc(func(State) { panic("notifier bug") })),
		WithNotifier(NotifierFunc(func(State) { calls++ })),
	)
	b := &box{}

	tok := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NotPanics(t, func() { _ = h.FinishUndoSteps(tok, "Move") })

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, h.UndoCount())
	require.NoError(t, h.Undo())
}

func TestSuspendNotify(t *testing.T) {
	var events []Event
	h := New(WithNotifier(NotifierFunc(func(s State) { events = append(events, s.Event) })))
	b := &box{}

	resume := h.SuspendNotify()
	tok := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NoError(t, h.FinishUndoSteps(tok, "Move"))
	require.NoError(t, h.Undo())
	assert.Empty(t, events)

	resume()
	resume()
	assert.Equal(t, []Event{EventCommit, EventUndo}, events)
}

func TestMaxStepsEvictsOldest(t *testing.T) {
	h := New(WithMaxSteps(2))
	b := &box{}
	for i := 1; i <= 3; i++ {
		tok := h.StartSteps()
		move(t, h, b, i, i)
		require.NoError(t, h.FinishUndoSteps(tok, fmt.Sprintf("Move %d", i)))
	}

	steps := h.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "Move 2", steps[0].Label())
	assert.Equal(t, "Move 3", steps[1].Label())

	h.SetMaxSteps(1)
	assert.Equal(t, 1, h.UndoCount())
	assert.Equal(t, 1, h.MaxSteps())
}

func TestScopeAndTransaction(t *testing.T) {
	h := New()
	b := &box{}

	func() {
		s := h.Begin("Scoped")
		defer s.End()
		move(t, h, b, 1, 1)
	}()
	assert.Equal(t, 1, h.UndoCount())

	s := h.Begin("Twice")
	require.NoError(t, s.End())
	require.NoError(t, s.End())
	assert.Equal(t, 0, h.Depth())

	err := h.Transaction("Failing", func() error {
		move(t, h, b, 2, 2)
		return errors.New("late failure")
	})
	assert.EqualError(t, err, "late failure")
	assert.Equal(t, 2, h.UndoCount(), "applied mutations stay undoable")
	assert.Equal(t, 0, h.Depth())
}

func TestCheckpoint(t *testing.T) {
	h := New()
	b := &box{}

	commit := func(x int) {
		tok := h.StartSteps()
		move(t, h, b, x, x)
		require.NoError(t, h.FinishUndoSteps(tok, "Move"))
	}

	commit(1)
	cp := h.Checkpoint()
	commit(2)
	commit(3)

	require.NoError(t, h.UndoTo(cp))
	assert.Equal(t, 1, b.x)
	assert.Equal(t, 1, h.UndoCount())

	require.NoError(t, h.Undo())
	assert.ErrorIs(t, h.UndoTo(cp), ErrCheckpointNotFound)

	require.NoError(t, h.RedoTo(cp))
	assert.Equal(t, 1, b.x)
	assert.Equal(t, 2, h.RedoCount())

	empty := New().Checkpoint()
	require.NoError(t, h.UndoTo(empty))
	assert.Equal(t, 0, b.x)
}

func TestStepLabelFallback(t *testing.T) {
	h := New()
	b := &box{}

	tok := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NoError(t, h.FinishUndoSteps(tok, ""))
	step, _ := h.PeekUndo()
	assert.Equal(t, "Move", step.Label())

	tok = h.StartSteps()
	require.NoError(t, h.AddUndo(Entry{Undo: NewCommand(b, moveTo{}), Redo: NewCommand(b, moveTo{})}))
	require.NoError(t, h.AddUndo(Entry{Undo: NewCommand(b, moveTo{}), Redo: NewCommand(b, moveTo{})}))
	require.NoError(t, h.FinishUndoSteps(tok, ""))
	step, _ = h.PeekUndo()
	assert.Equal(t, "2 changes", step.Label())
}

func TestStepsSnapshotIsStable(t *testing.T) {
	h := New()
	b := &box{}

	tok := h.StartSteps()
	move(t, h, b, 1, 1)
	require.NoError(t, h.FinishUndoSteps(tok, "First"))
	snap := h.Steps()

	tok = h.StartSteps()
	move(t, h, b, 2, 2)
	require.NoError(t, h.FinishUndoSteps(tok, "Second"))

	require.Len(t, snap, 1)
	assert.Equal(t, "First", snap[0].Label())
	entries := snap[0].Entries()
	entries[0].Label = "changed"
	assert.Equal(t, "Move", snap[0].Entry(0).Label)
}

func TestWeakSubject(t *testing.T) {
	b := &box{label: "subject"}
	s := WeakSubject(b)
	got, ok := s.Value().(*box)
	require.True(t, ok)
	assert.Equal(t, "subject", got.label)

	assert.Nil(t, Subject{}.Value())
	assert.Nil(t, WeakSubject[box](nil).Value())
}

func TestCommandInvokeClassification(t *testing.T) {
	b := &box{}
	tests := []struct {
		name string
		cmd  Command
		kind Kind
	}{
		{"unsupported", NewCommand(b, unknownOp{}), KindNotSupported},
		{"failed", NewCommand(b, explode{}), KindFailed},
		{"zero", Command{}, KindNotSupported},
		{"stale", NewCommand(&box{dead: true}, moveTo{}), KindStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ie *InvocationError
			require.ErrorAs(t, tt.cmd.Invoke(), &ie)
			assert.Equal(t, tt.kind, ie.Kind)
		})
	}

	assert.NoError(t, NewCommand(b, moveTo{X: 1}).Invoke())
	assert.Equal(t, "moveTo", NewCommand(b, moveTo{}).Description())
}
