package history

// Token is returned by StartSteps and must be handed back to the matching
// FinishUndoSteps.
type Token struct {
	depth int
	h     *History
}

// Depth returns the nesting depth the token was issued at.
func (t Token) Depth() int {
	return t.depth
}

// StartSteps opens a transaction, or a nested one if a transaction is
// already open.
//
// Opening a transaction from a notifier is misuse: the returned token is
// the zero Token and the depth is left unchanged.
func (h *History) StartSteps() Token {
	if h.notifying {
		_ = h.misuse("StartSteps while notifying")
		return Token{}
	}
	h.depth++
	return Token{depth: h.depth, h: h}
}

// AddUndo appends an entry to the open transaction. The mutation it
// describes must already have been applied.
func (h *History) AddUndo(e Entry) error {
	if h.notifying {
		return ErrNotifying
	}
	if h.depth == 0 {
		return h.misuse("AddUndo(%q) outside a transaction", e.Label)
	}
	if e.Undo.IsZero() || e.Redo.IsZero() {
		return h.misuse("AddUndo(%q) without undo and redo commands", e.Label)
	}
	h.pending = append(h.pending, e)
	return nil
}

// FinishUndoSteps closes the transaction opened by tok. Closing the
// outermost transaction commits the buffered entries as one Step, clears
// the redo stack and notifies. An empty transaction commits nothing.
func (h *History) FinishUndoSteps(tok Token, label string) error {
	if tok.h != h || h.depth == 0 || tok.depth != h.depth {
		return h.misuse("FinishUndoSteps(%q) at depth %d with token for depth %d", label, h.depth, tok.depth)
	}

	h.depth--
	if h.depth > 0 || len(h.pending) == 0 {
		return nil
	}

	step := newStep(label, h.pending)
	h.pending = nil

	h.undoStack = append(h.undoStack, step)
	clear(h.redoStack)
	h.redoStack = nil
	h.evict()

	h.notify(EventCommit, step)
	return nil
}

// Depth returns the current transaction nesting depth.
func (h *History) Depth() int {
	return h.depth
}

// Pending returns the number of entries buffered in the open transaction.
func (h *History) Pending() int {
	return len(h.pending)
}

// Scope provides a convenient way to pair StartSteps with FinishUndoSteps
// using defer.
// Usage:
//
//	func groupComponents(h *History) {
//	    defer h.Begin("Group").End()
//	    // ... multiple mutations ...
//	}
type Scope struct {
	h      *History
	tok    Token
	label  string
	active bool
}

// Begin starts a new scope.
// Call End() or use with defer to properly close it.
func (h *History) Begin(label string) *Scope {
	return &Scope{
		h:      h,
		tok:    h.StartSteps(),
		label:  label,
		active: true,
	}
}

// End finishes the scope.
// Safe to call multiple times; only the first call has effect.
func (s *Scope) End() error {
	if !s.active {
		return nil
	}
	s.active = false
	return s.h.FinishUndoSteps(s.tok, s.label)
}

// Transaction runs fn within a scope. The scope is finished even when fn
// fails or panics, so mutations already applied stay undoable.
func (h *History) Transaction(label string, fn func() error) (err error) {
	s := h.Begin(label)
	defer func() {
		if endErr := s.End(); err == nil {
			err = endErr
		}
	}()
	return fn()
}

// Checkpoint represents a point in history that can be returned to.
type Checkpoint struct {
	top   *Step
	empty bool
}

// Checkpoint creates a checkpoint at the current history position.
func (h *History) Checkpoint() Checkpoint {
	top, ok := h.PeekUndo()
	return Checkpoint{top: top, empty: !ok}
}

// UndoTo undoes all steps committed since the checkpoint.
func (h *History) UndoTo(cp Checkpoint) error {
	if !cp.empty && !h.onUndoStack(cp.top) {
		return ErrCheckpointNotFound
	}
	for {
		top, ok := h.PeekUndo()
		if !ok || (!cp.empty && top == cp.top) {
			return nil
		}
		if err := h.Undo(); err != nil {
			return err
		}
	}
}

// RedoTo redoes steps until the checkpoint's step is on top of the undo
// stack again.
func (h *History) RedoTo(cp Checkpoint) error {
	if cp.empty {
		return nil
	}
	if !h.onUndoStack(cp.top) && !h.onRedoStack(cp.top) {
		return ErrCheckpointNotFound
	}
	for !h.onUndoStack(cp.top) {
		if err := h.Redo(); err != nil {
			return err
		}
	}
	return nil
}

func (h *History) onUndoStack(s *Step) bool {
	for _, x := range h.undoStack {
		if x == s {
			return true
		}
	}
	return false
}

func (h *History) onRedoStack(s *Step) bool {
	for _, x := range h.redoStack {
		if x == s {
			return true
		}
	}
	return false
}
