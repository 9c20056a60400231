package engine

import (
	"context"
	"errors"

	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/engine/lock"
)

type txKey struct{}

// Tx is the running transaction of a Mutate call. It is only valid until
// the outermost Mutate returns.
type Tx struct {
	e    *Engine
	held *lock.Held
}

// TxFrom returns the transaction carried by ctx.
func TxFrom(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// Holds returns true if ctx carries a transaction of e that holds d.
// Readers use it to decide whether d must be read-locked.
func (e *Engine) Holds(ctx context.Context, d *lock.Data) bool {
	tx, ok := TxFrom(ctx)
	return ok && tx.e == e && tx.held.Holds(d)
}

// Engine returns the engine that owns the transaction.
func (tx *Tx) Engine() *Engine {
	return tx.e
}

// Lock acquires further data locks for the transaction.
func (tx *Tx) Lock(ds ...*lock.Data) error {
	err := tx.held.Lock(ds...)
	if errors.Is(err, lock.ErrLockOrder) {
		tx.e.metrics.Misused("lock_order")
		return tx.e.fatal(err)
	}
	return err
}

// Holds returns true if d is held by the transaction.
func (tx *Tx) Holds(d *lock.Data) bool {
	return tx.held.Holds(d)
}

// AddUndo records an entry for a mutation already applied.
func (tx *Tx) AddUndo(entry history.Entry) error {
	err := tx.e.hist.AddUndo(entry)
	if errors.Is(err, history.ErrTransactionMisuse) {
		tx.e.metrics.Misused("transaction")
	}
	return err
}

// Do applies the entry's redo command and records the entry.
// Nothing is recorded when the redo command fails.
func (tx *Tx) Do(entry history.Entry) error {
	if err := entry.Redo.Invoke(); err != nil {
		return err
	}
	return tx.AddUndo(entry)
}

// Record applies redo to target and records undo as its reversal. undo must
// be built from the state before the call.
func (tx *Tx) Record(label string, target history.Target, redo, undo history.Operation) error {
	return tx.Do(history.Entry{
		Undo:  history.NewCommand(target, undo),
		Redo:  history.NewCommand(target, redo),
		Label: label,
	})
}
