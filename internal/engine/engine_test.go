package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/stepwise/internal/dispatch"
	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/engine/lock"
	"github.com/dshills/stepwise/internal/metrics"
)

// cell is a guarded integer target.
type cell struct {
	data  *lock.Data
	value int
}

type setValue struct{ v int }

func (setValue) OpName() string { return "setValue" }

func newCell(name string) *cell {
	return &cell{data: lock.NewData(name)}
}

func (c *cell) Apply(op history.Operation) error {
	switch op := op.(type) {
	case setValue:
		c.value = op.v
		return nil
	}
	return history.ErrOperationNotSupported
}

func (c *cell) DataLock() *lock.Data { return c.data }

func (c *cell) set(ctx context.Context, e *Engine, v int) error {
	return e.Mutate(ctx, c.data, "Set", func(ctx context.Context, tx *Tx) error {
		return tx.Record("Set", c, setValue{v}, setValue{c.value})
	})
}

func (c *cell) read() int {
	var v int
	c.data.Read(func() { v = c.value })
	return v
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	owner := dispatch.NewOwner()
	require.NoError(t, owner.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = owner.Stop(ctx)
	})
	return New(owner, opts...)
}

func onOwner(e *Engine, fn func(ctx context.Context) error) error {
	return e.Owner().RunOnOwnerAndWait(context.Background(), fn)
}

func TestNewRequiresOwner(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}

func TestMutateUndoRedo(t *testing.T) {
	e := newEngine(t)
	c := newCell("cell")

	require.NoError(t, onOwner(e, func(ctx context.Context) error {
		return c.set(ctx, e, 5)
	}))
	assert.Equal(t, 5, c.read())

	ctx := context.Background()
	canUndo, err := e.CanUndo(ctx)
	require.NoError(t, err)
	assert.True(t, canUndo)

	require.NoError(t, onOwner(e, e.Undo))
	assert.Equal(t, 0, c.read())

	canRedo, err := e.CanRedo(ctx)
	require.NoError(t, err)
	assert.True(t, canRedo)

	require.NoError(t, onOwner(e, e.Redo))
	assert.Equal(t, 5, c.read())
}

func TestNestedMutateCollapses(t *testing.T) {
	e := newEngine(t)
	a := newCell("a")
	b := newCell("b")

	err := onOwner(e, func(ctx context.Context) error {
		return e.Mutate(ctx, nil, "Both", func(ctx context.Context, tx *Tx) error {
			if err := a.set(ctx, e, 1); err != nil {
				return err
			}
			return b.set(ctx, e, 2)
		})
	})
	require.NoError(t, err)

	steps, err := e.Steps(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "Both", steps[0].Label())
	assert.Equal(t, 2, steps[0].Len())

	require.NoError(t, onOwner(e, e.Undo))
	assert.Equal(t, 0, a.read())
	assert.Equal(t, 0, b.read())
}

func TestMutateFailureKeepsRecordedChanges(t *testing.T) {
	e := newEngine(t)
	c := newCell("cell")
	boom := errors.New("boom")

	err := onOwner(e, func(ctx context.Context) error {
		return e.Mutate(ctx, c.data, "Partial", func(ctx context.Context, tx *Tx) error {
			if err := tx.Record("Set", c, setValue{7}, setValue{c.value}); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	state, err := e.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.UndoCount)
	assert.Equal(t, "Partial", state.UndoLabel)
}

func TestOffOwnerStrictPanics(t *testing.T) {
	e := newEngine(t)
	c := newCell("cell")

	assert.Panics(t, func() {
		_ = c.set(context.Background(), e, 1)
	})
	assert.Panics(t, func() {
		_ = e.Undo(context.Background())
	})
}

func TestOffOwnerLenientReturnsError(t *testing.T) {
	e := newEngine(t, WithStrict(false))
	c := newCell("cell")

	err := c.set(context.Background(), e, 1)
	assert.ErrorIs(t, err, dispatch.ErrOwnerViolation)
	assert.Equal(t, 0, c.read())
}

func TestAddUndoOutsideMutateLeavesStacksUnchanged(t *testing.T) {
	e := newEngine(t, WithStrict(false))
	c := newCell("cell")

	require.NoError(t, onOwner(e, func(ctx context.Context) error {
		return c.set(ctx, e, 1)
	}))

	var stale *Tx
	require.NoError(t, onOwner(e, func(ctx context.Context) error {
		return e.Mutate(ctx, c.data, "Capture", func(ctx context.Context, tx *Tx) error {
			stale = tx
			return nil
		})
	}))

	err := onOwner(e, func(ctx context.Context) error {
		return stale.AddUndo(history.Entry{
			Undo: history.NewCommand(c, setValue{0}),
			Redo: history.NewCommand(c, setValue{9}),
		})
	})
	assert.ErrorIs(t, err, ErrTransactionMisuse)

	state, err := e.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.UndoCount)
}

func TestUndoEmpty(t *testing.T) {
	e := newEngine(t)

	err := onOwner(e, e.Undo)
	assert.ErrorIs(t, err, ErrNothingToUndo)

	err = onOwner(e, e.Redo)
	assert.ErrorIs(t, err, ErrNothingToRedo)
}

func TestUndoInsideMutateIsMisuse(t *testing.T) {
	e := newEngine(t, WithStrict(false))
	c := newCell("cell")

	err := onOwner(e, func(ctx context.Context) error {
		return e.Mutate(ctx, c.data, "Set", func(ctx context.Context, tx *Tx) error {
			return e.Undo(ctx)
		})
	})
	assert.ErrorIs(t, err, ErrTransactionMisuse)
}

func TestLockOrderViolation(t *testing.T) {
	e := newEngine(t)
	first := newCell("first")
	second := newCell("second")

	err := onOwner(e, func(ctx context.Context) error {
		return e.Mutate(ctx, second.data, "Reverse", func(ctx context.Context, tx *Tx) error {
			return tx.Lock(first.data)
		})
	})
	assert.ErrorIs(t, err, lock.ErrLockOrder)

	// Requesting both at once is fine regardless of argument order.
	err = onOwner(e, func(ctx context.Context) error {
		return e.Mutate(ctx, nil, "Both", func(ctx context.Context, tx *Tx) error {
			if err := tx.Lock(second.data, first.data); err != nil {
				return err
			}
			assert.True(t, tx.Holds(first.data))
			assert.True(t, e.Holds(ctx, second.data))
			return nil
		})
	})
	assert.NoError(t, err)
}

func TestOtherEngineInsideTransaction(t *testing.T) {
	e := newEngine(t, WithName("a"), WithStrict(false))
	other := New(e.Owner(), WithName("b"), WithStrict(false))
	c := newCell("cell")

	err := onOwner(e, func(ctx context.Context) error {
		return e.Mutate(ctx, nil, "Outer", func(ctx context.Context, tx *Tx) error {
			return c.set(ctx, other, 1)
		})
	})
	assert.ErrorIs(t, err, lock.ErrLockOrder)
}

func TestNotifierRunsAfterLocksReleased(t *testing.T) {
	c := newCell("cell")
	var seen []int
	var events []history.Event

	e := newEngine(t, WithNotifier(history.NotifierFunc(func(s history.State) {
		// Reading the data would block if the data lock were still held.
		seen = append(seen, c.read())
		events = append(events, s.Event)
	})))

	require.NoError(t, onOwner(e, func(ctx context.Context) error {
		return c.set(ctx, e, 3)
	}))
	require.NoError(t, onOwner(e, e.Undo))

	assert.Equal(t, []int{3, 0}, seen)
	assert.Equal(t, []history.Event{history.EventCommit, history.EventUndo}, events)
}

func TestReplayFailureReportedAndCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")

	var reports []*history.InvocationError
	e := newEngine(t,
		WithMetrics(m),
		WithStatusSink(history.StatusSinkFunc(func(err *history.InvocationError) {
			reports = append(reports, err)
		})),
	)
	c := newCell("cell")
	boom := errors.New("boom")
	failing := history.TargetFunc(func(history.Operation) error { return boom })

	require.NoError(t, onOwner(e, func(ctx context.Context) error {
		return e.Mutate(ctx, c.data, "Mixed", func(ctx context.Context, tx *Tx) error {
			if err := tx.AddUndo(history.Entry{
				Undo:  history.NewCommand(failing, history.Named("fail")),
				Redo:  history.NewCommand(failing, history.Named("fail")),
				Label: "Fails",
			}); err != nil {
				return err
			}
			return tx.Record("Set", c, setValue{4}, setValue{c.value})
		})
	}))
	require.NoError(t, onOwner(e, e.Undo))

	assert.Equal(t, 0, c.read())
	require.Len(t, reports, 1)
	assert.Equal(t, history.KindFailed, reports[0].Kind)
	assert.ErrorIs(t, reports[0], boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsCommitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Replays.WithLabelValues("undo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvocationFailures.WithLabelValues("failed")))
}

func TestCheckpointUndoToRedoTo(t *testing.T) {
	e := newEngine(t)
	c := newCell("cell")

	var cp Checkpoint
	require.NoError(t, onOwner(e, func(ctx context.Context) error {
		if err := c.set(ctx, e, 1); err != nil {
			return err
		}
		var err error
		if cp, err = e.Checkpoint(ctx); err != nil {
			return err
		}
		for _, v := range []int{2, 3, 4} {
			if err := c.set(ctx, e, v); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, onOwner(e, func(ctx context.Context) error { return e.UndoTo(ctx, cp) }))
	assert.Equal(t, 1, c.read())

	state, err := e.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.UndoCount)
	assert.Equal(t, 3, state.RedoCount)

	require.NoError(t, onOwner(e, e.Undo))
	require.NoError(t, onOwner(e, func(ctx context.Context) error { return e.RedoTo(ctx, cp) }))
	assert.Equal(t, 1, c.read())
}

func TestClear(t *testing.T) {
	e := newEngine(t)
	c := newCell("cell")

	require.NoError(t, onOwner(e, func(ctx context.Context) error {
		return c.set(ctx, e, 1)
	}))
	require.NoError(t, onOwner(e, e.Clear))

	canUndo, err := e.CanUndo(context.Background())
	require.NoError(t, err)
	assert.False(t, canUndo)
	assert.Equal(t, 1, c.read())
}

func TestMaxSteps(t *testing.T) {
	e := newEngine(t, WithMaxSteps(2))
	c := newCell("cell")

	for v := 1; v <= 4; v++ {
		require.NoError(t, onOwner(e, func(ctx context.Context) error {
			return c.set(ctx, e, v)
		}))
	}

	steps, err := e.Steps(context.Background())
	require.NoError(t, err)
	assert.Len(t, steps, 2)

	require.NoError(t, e.SetMaxSteps(context.Background(), 1))
	limit, err := e.MaxSteps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, limit)

	steps, err = e.Steps(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.NoError(t, onOwner(e, e.Undo))
	assert.Equal(t, 3, c.read(), "oldest steps evicted")
}

func TestConcurrentProducers(t *testing.T) {
	e := newEngine(t)
	c := newCell("cell")
	ctx := context.Background()

	var mu sync.Mutex
	var applied []int

	g, gctx := errgroup.WithContext(ctx)
	for p := range 4 {
		g.Go(func() error {
			for i := range 25 {
				v := p*100 + i
				err := e.Owner().RunOnOwner(gctx, func(ctx context.Context) error {
					if err := c.set(ctx, e, v); err != nil {
						return err
					}
					mu.Lock()
					applied = append(applied, v)
					mu.Unlock()
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	steps, err := e.Steps(ctx)
	require.NoError(t, err)
	assert.Len(t, steps, 100)

	mu.Lock()
	last := applied[len(applied)-1]
	mu.Unlock()
	assert.Equal(t, last, c.read())

	// Undo everything from a producer goroutine.
	for range 100 {
		require.NoError(t, onOwner(e, e.Undo))
	}
	assert.Equal(t, 0, c.read())
}
