package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dshills/stepwise/internal/dispatch"
	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/engine/lock"
	"github.com/dshills/stepwise/internal/metrics"
)

// Re-export commonly used types for convenience.
type (
	// Command is a deferred operation on a target.
	Command = history.Command

	// Entry is one reversible mutation inside a step.
	Entry = history.Entry

	// Step is a committed undoable action.
	Step = history.Step

	// State is the history state delivered to notifiers.
	State = history.State

	// Checkpoint is a position in history.
	Checkpoint = history.Checkpoint
)

// Engine is the undo/redo engine for one document or session.
type Engine struct {
	name    string
	hist    *history.History
	ledger  *lock.Ledger
	owner   *dispatch.Owner
	metrics *metrics.Metrics
	log     *slog.Logger

	// Configuration
	maxSteps  int
	strict    bool
	sink      history.StatusSink
	notifiers []history.Notifier
}

// New creates a new engine whose history is confined to owner.
func New(owner *dispatch.Owner, opts ...Option) *Engine {
	if owner == nil {
		panic("engine: nil owner")
	}

	e := &Engine{
		name:     "engine",
		owner:    owner,
		maxSteps: DefaultMaxSteps,
		strict:   true,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine", "engine", e.name)
	e.ledger = lock.NewLedger(e.name)

	hopts := []history.Option{
		history.WithMaxSteps(e.maxSteps),
		history.WithStrict(e.strict),
		history.WithLogger(e.log),
		history.WithStatusSink(e.statusSink()),
		history.WithNotifier(history.NotifierFunc(e.observe)),
	}
	for _, n := range e.notifiers {
		hopts = append(hopts, history.WithNotifier(n))
	}
	e.hist = history.New(hopts...)
	return e
}

// statusSink counts replay failures before forwarding them.
func (e *Engine) statusSink() history.StatusSink {
	next := e.sink
	return history.StatusSinkFunc(func(err *history.InvocationError) {
		e.metrics.InvocationFailed(err.Kind.String())
		if next != nil {
			next.Report(err)
			return
		}
		e.log.Warn("replay entry skipped",
			"phase", err.Phase.String(),
			"kind", err.Kind.String(),
			"op", err.Op,
			"label", err.Label,
			"err", err.Err,
		)
	})
}

func (e *Engine) observe(s history.State) {
	switch s.Event {
	case history.EventCommit:
		e.metrics.Committed()
	case history.EventUndo, history.EventRedo:
		e.metrics.Replayed(s.Event.String())
	}
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.name
}

// Owner returns the dispatcher the engine is confined to.
func (e *Engine) Owner() *dispatch.Owner {
	return e.owner
}

// fatal reports a programming error. Strict engines panic with err.
func (e *Engine) fatal(err error) error {
	e.log.Error("engine misuse", "err", err)
	if e.strict {
		panic(err)
	}
	return err
}

func (e *Engine) assertOwner(ctx context.Context) error {
	if err := e.owner.AssertOwner(ctx); err != nil {
		return e.fatal(err)
	}
	return nil
}

// ownTx returns the transaction of this engine carried by ctx. A transaction
// of another engine is a lock order violation since its ledger is held.
func (e *Engine) ownTx(ctx context.Context) (*Tx, error) {
	tx, ok := TxFrom(ctx)
	if !ok {
		return nil, nil
	}
	if tx.e != e {
		e.metrics.Misused("lock_order")
		return nil, e.fatal(fmt.Errorf("%w: engine %q used inside a transaction of engine %q",
			lock.ErrLockOrder, e.name, tx.e.name))
	}
	return tx, nil
}

// Mutate runs fn inside a transaction labelled label with the ledger lock
// and data held. fn changes protected data and records one entry per
// change through tx. The transaction is closed even when fn fails, so
// changes already recorded stay undoable.
//
// Mutate must be called on the owner goroutine. Called from inside another
// Mutate of the same engine it joins the running transaction.
func (e *Engine) Mutate(ctx context.Context, data *lock.Data, label string, fn func(ctx context.Context, tx *Tx) error) (err error) {
	if err := e.assertOwner(ctx); err != nil {
		return err
	}
	tx, err := e.ownTx(ctx)
	if err != nil {
		return err
	}

	if tx == nil {
		resume := e.hist.SuspendNotify()
		defer resume()

		held := e.ledger.Acquire()
		defer held.Release()

		tx = &Tx{e: e, held: held}
		ctx = context.WithValue(ctx, txKey{}, tx)
	}

	if err := tx.Lock(data); err != nil {
		return err
	}

	tok := e.hist.StartSteps()
	defer func() {
		if ferr := e.hist.FinishUndoSteps(tok, label); err == nil {
			err = ferr
		}
	}()

	return fn(ctx, tx)
}

// Undo reverts the most recent step.
func (e *Engine) Undo(ctx context.Context) error {
	return e.replay(ctx, e.hist.Undo, func() []*history.Step {
		return topOf(e.hist.PeekUndo())
	})
}

// Redo reapplies the most recently undone step.
func (e *Engine) Redo(ctx context.Context) error {
	return e.replay(ctx, e.hist.Redo, func() []*history.Step {
		return topOf(e.hist.PeekRedo())
	})
}

// Checkpoint returns the current history position.
func (e *Engine) Checkpoint(ctx context.Context) (Checkpoint, error) {
	if err := e.assertOwner(ctx); err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	err := e.ledgered(ctx, func() error {
		cp = e.hist.Checkpoint()
		return nil
	})
	return cp, err
}

// UndoTo undoes every step committed since cp.
func (e *Engine) UndoTo(ctx context.Context, cp Checkpoint) error {
	return e.replay(ctx, func() error { return e.hist.UndoTo(cp) }, e.hist.Steps)
}

// RedoTo redoes steps until cp is the current position again.
func (e *Engine) RedoTo(ctx context.Context, cp Checkpoint) error {
	return e.replay(ctx, func() error { return e.hist.RedoTo(cp) }, e.hist.RedoSteps)
}

// replay holds the ledger and the data locks guarding the targets of steps
// while run replays them.
func (e *Engine) replay(ctx context.Context, run func() error, steps func() []*history.Step) error {
	if err := e.assertOwner(ctx); err != nil {
		return err
	}
	tx, err := e.ownTx(ctx)
	if err != nil {
		return err
	}
	if tx != nil {
		// Reported as misuse by the history since a transaction is open.
		return run()
	}

	resume := e.hist.SuspendNotify()
	defer resume()

	held := e.ledger.Acquire()
	defer held.Release()

	if err := held.Lock(dataLocks(steps())...); err != nil {
		return e.fatal(err)
	}
	return run()
}

func topOf(step *history.Step, ok bool) []*history.Step {
	if !ok {
		return nil
	}
	return []*history.Step{step}
}

// dataLocks returns the data locks of the guarded targets in steps.
func dataLocks(steps []*history.Step) []*lock.Data {
	var out []*lock.Data
	add := func(c history.Command) {
		if g, ok := c.Target.(lock.Guarded); ok {
			out = append(out, g.DataLock())
		}
	}
	for _, step := range steps {
		for i := range step.Len() {
			entry := step.Entry(i)
			add(entry.Undo)
			add(entry.Redo)
			add(entry.Post)
		}
	}
	return out
}

// Clear drops both stacks without replaying anything.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.assertOwner(ctx); err != nil {
		return err
	}
	if _, err := e.ownTx(ctx); err != nil {
		return err
	}
	return e.ledgered(ctx, e.hist.Clear)
}

// AddNotifier registers a notifier. It may be called from any goroutine.
func (e *Engine) AddNotifier(ctx context.Context, n history.Notifier) error {
	return e.owner.RunOnOwnerAndWait(ctx, func(ctx context.Context) error {
		return e.ledgered(ctx, func() error {
			e.hist.AddNotifier(n)
			return nil
		})
	})
}

// SetMaxSteps changes the undo limit, evicting the oldest steps if the
// stack is over it. A non-positive n restores the default. It may be called
// from any goroutine.
func (e *Engine) SetMaxSteps(ctx context.Context, n int) error {
	return e.owner.RunOnOwnerAndWait(ctx, func(ctx context.Context) error {
		return e.ledgered(ctx, func() error {
			e.hist.SetMaxSteps(n)
			return nil
		})
	})
}

// MaxSteps returns the undo limit. It may be called from any goroutine.
func (e *Engine) MaxSteps(ctx context.Context) (int, error) {
	return query(ctx, e, (*history.History).MaxSteps)
}

// CanUndo returns true if undo is available. It may be called from any
// goroutine.
func (e *Engine) CanUndo(ctx context.Context) (bool, error) {
	return query(ctx, e, (*history.History).CanUndo)
}

// CanRedo returns true if redo is available. It may be called from any
// goroutine.
func (e *Engine) CanRedo(ctx context.Context) (bool, error) {
	return query(ctx, e, (*history.History).CanRedo)
}

// State returns the current history state. It may be called from any
// goroutine.
func (e *Engine) State(ctx context.Context) (State, error) {
	return query(ctx, e, (*history.History).State)
}

// Steps returns a snapshot of the committed undo steps, oldest first. It may
// be called from any goroutine and the result may be walked while new steps
// are committed.
func (e *Engine) Steps(ctx context.Context) ([]*Step, error) {
	return query(ctx, e, (*history.History).Steps)
}

// query reads the history on the owner goroutine under the ledger lock.
func query[T any](ctx context.Context, e *Engine, read func(*history.History) T) (T, error) {
	return dispatch.Call(ctx, e.owner, func(ctx context.Context) (T, error) {
		var out T
		err := e.ledgered(ctx, func() error {
			out = read(e.hist)
			return nil
		})
		return out, err
	})
}

// ledgered runs fn with the ledger lock held. Inside a transaction of this
// engine the lock is already held and fn runs directly.
func (e *Engine) ledgered(ctx context.Context, fn func() error) error {
	tx, err := e.ownTx(ctx)
	if err != nil {
		return err
	}
	if tx != nil {
		return fn()
	}

	resume := e.hist.SuspendNotify()
	defer resume()

	held := e.ledger.Acquire()
	defer held.Release()
	return fn()
}
