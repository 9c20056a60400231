// Package lock provides the two lock roles that guard mutations: a ledger
// lock per history and a data lock per protected object graph.
//
// Any path that needs both acquires the ledger first. The only way to take a
// data lock exclusively is through a Held value returned by Ledger.Acquire,
// so the order is encoded once instead of at every call site. When several
// data locks are needed they are taken in ascending ordinal order.
package lock

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Errors returned by lock operations.
var (
	// ErrLockOrder indicates a data lock was requested out of order.
	ErrLockOrder = errors.New("lock order violation")

	// ErrReleased indicates use of a Held after Release.
	ErrReleased = errors.New("locks already released")
)

var nextOrdinal atomic.Uint64

// Ledger guards an undo/redo ledger.
type Ledger struct {
	mu   sync.Mutex
	name string
}

// NewLedger creates a new ledger lock.
func NewLedger(name string) *Ledger {
	return &Ledger{name: name}
}

// Name returns the ledger's name.
func (l *Ledger) Name() string {
	return l.name
}

// Acquire locks the ledger and returns the acquisition. The caller must
// call Release on the returned value.
func (l *Ledger) Acquire() *Held {
	l.mu.Lock()
	return &Held{ledger: l}
}

// Data guards a protected object graph.
type Data struct {
	mu      sync.RWMutex
	name    string
	ordinal uint64
}

// NewData creates a new data lock. Ordinals increase with creation order.
func NewData(name string) *Data {
	return &Data{name: name, ordinal: nextOrdinal.Add(1)}
}

// Name returns the data lock's name.
func (d *Data) Name() string {
	return d.name
}

// Ordinal returns the lock's position in the global acquisition order.
func (d *Data) Ordinal() uint64 {
	return d.ordinal
}

// Read runs fn under a shared lock. Pure reads that do not touch the ledger
// may use it. It must not be called while the same goroutine holds d
// through a Held.
func (d *Data) Read(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn()
}

// Guarded is implemented by objects that live under a data lock.
type Guarded interface {
	DataLock() *Data
}

// Held is an acquired ledger lock plus the data locks taken under it.
// It is owned by one goroutine.
type Held struct {
	ledger   *Ledger
	data     []*Data
	released bool
}

// Holds returns true if d is held.
func (h *Held) Holds(d *Data) bool {
	return !h.released && slices.Contains(h.data, d)
}

// Lock acquires the given data locks that are not held yet. New locks are
// taken in ascending ordinal order and must all rank above the locks
// already held; otherwise nothing is acquired and ErrLockOrder is returned.
func (h *Held) Lock(ds ...*Data) error {
	if h.released {
		return ErrReleased
	}

	var want []*Data
	for _, d := range ds {
		if d != nil && !slices.Contains(h.data, d) && !slices.Contains(want, d) {
			want = append(want, d)
		}
	}
	if len(want) == 0 {
		return nil
	}

	slices.SortFunc(want, func(a, b *Data) int {
		return cmp.Compare(a.ordinal, b.ordinal)
	})

	if top := h.top(); top != nil && want[0].ordinal < top.ordinal {
		return fmt.Errorf("%w: %q (ordinal %d) requested while holding %q (ordinal %d)",
			ErrLockOrder, want[0].name, want[0].ordinal, top.name, top.ordinal)
	}

	for _, d := range want {
		d.mu.Lock()
		h.data = append(h.data, d)
	}
	return nil
}

func (h *Held) top() *Data {
	if len(h.data) == 0 {
		return nil
	}
	return h.data[len(h.data)-1]
}

// Release unlocks the data locks in reverse acquisition order and then the
// ledger. Safe to call multiple times; only the first call has effect.
func (h *Held) Release() {
	if h.released {
		return
	}
	h.released = true
	for i := len(h.data) - 1; i >= 0; i-- {
		h.data[i].mu.Unlock()
	}
	h.data = nil
	h.ledger.mu.Unlock()
}
