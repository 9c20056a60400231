package engine

import "github.com/dshills/stepwise/internal/engine/history"

// Errors returned by engine operations.
var (
	// ErrNothingToUndo indicates the undo stack is empty.
	ErrNothingToUndo = history.ErrNothingToUndo

	// ErrNothingToRedo indicates the redo stack is empty.
	ErrNothingToRedo = history.ErrNothingToRedo

	// ErrTransactionMisuse indicates unbalanced or misplaced transaction calls.
	ErrTransactionMisuse = history.ErrTransactionMisuse
)
