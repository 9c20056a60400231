// Package engine ties the undo/redo history, the lock protocol and the owner
// dispatcher into one facade.
//
// # Architecture
//
// The engine is built on several sub-packages:
//
//   - history: commands, steps, the transaction builder and undo/redo replay
//   - lock: the ledger and data lock roles and their acquisition order
//   - property: typed feature registries layered on commands
//
// # Owner goroutine
//
// Every Engine method that reads or changes history must run on the owner
// goroutine of its dispatch.Owner. Calls made from a task running on the
// owner execute inline. Calls made anywhere else are programming errors and
// panic in strict mode. Producers on other goroutines go through
// dispatch.Owner.RunOnOwner or RunOnOwnerAndWait.
//
// # Mutations
//
// Mutate is the only path that both changes protected data and records undo
// entries:
//
//	err := eng.Mutate(ctx, doc.DataLock(), "Move", func(ctx context.Context, tx *engine.Tx) error {
//	    return tx.Record("Move", comp, scene.MoveTo{X: 50, Y: 50}, scene.MoveTo{X: comp.X, Y: comp.Y})
//	})
//
// Mutate acquires the ledger lock, then the data lock, opens a transaction,
// runs fn and closes the transaction. A Mutate called from inside fn joins
// the running transaction instead of acquiring again, so compound operations
// built from primitive ones commit a single step.
//
// Notifiers run on the owner goroutine after all locks are released. They
// receive the history state and must not wait on the owner themselves.
package engine
