// Package history provides the transactional undo/redo ledger.
//
// The history system uses the Command pattern to record mutations on a live
// object graph as reversible pairs of deferred invocations. Key concepts:
//
// # Commands
//
// A Command binds a Target to an Operation. Operations are small typed
// values (MoveTo, SetFeature, ...) and the Target pattern-matches on them in
// its Apply method. Targets that do not understand an operation return
// ErrOperationNotSupported, which replay treats as a no-op.
//
// # Entries and Steps
//
// An Entry pairs an undo Command with the redo Command that reproduces the
// already-applied mutation, plus an optional post Command run after redo.
// A Step is an ordered, immutable list of entries that undo and redo as one
// unit.
//
// # Transactions
//
// Entries are buffered between StartSteps and FinishUndoSteps. The calls
// nest; only the outermost FinishUndoSteps commits a Step:
//
//	tok := h.StartSteps()
//	_ = h.AddUndo(history.Entry{Undo: undo, Redo: redo, Label: "Move"})
//	_ = h.FinishUndoSteps(tok, "Move")
//
// Scopes make the pairing harder to get wrong:
//
//	defer h.Begin("Group").End()
//
// # Replay
//
// Undo runs a Step's undo commands in reverse entry order, Redo runs redo
// commands (then post commands) in forward order. Replay is best effort: a
// failing entry is reported to the StatusSink and the remaining entries
// still run.
//
// A History is not safe for concurrent use. All calls must come from the
// owner goroutine; see package dispatch and the engine facade.
package history
