package scene

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/dshills/stepwise/internal/engine"
	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/engine/lock"
)

// Document is a tree of components guarded by one data lock. Every change
// goes through the document's engine and is undoable.
//
// Mutating methods must run on the engine's owner goroutine. Readers may
// run anywhere.
type Document struct {
	name string
	eng  *engine.Engine
	data *lock.Data
	log  *slog.Logger

	roots     []*Component
	byID      map[uuid.UUID]*Component
	selection []uuid.UUID
	crosshair Point

	invalidate func(id uuid.UUID)
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Document) {
		if log != nil {
			d.log = log
		}
	}
}

// WithInvalidate sets the callback asked to repaint a component after it
// changed, including after redo.
func WithInvalidate(fn func(id uuid.UUID)) Option {
	return func(d *Document) {
		d.invalidate = fn
	}
}

// New creates an empty document recorded by eng.
func New(eng *engine.Engine, name string, opts ...Option) *Document {
	d := &Document{
		name:       name,
		eng:        eng,
		data:       lock.NewData(name),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		byID:       make(map[uuid.UUID]*Component),
		invalidate: func(uuid.UUID) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With("component", "scene", "document", name)
	return d
}

// Name returns the document name.
func (d *Document) Name() string {
	return d.name
}

// Engine returns the engine recording the document.
func (d *Document) Engine() *engine.Engine {
	return d.eng
}

// DataLock returns the document's data lock.
func (d *Document) DataLock() *lock.Data {
	return d.data
}

// Apply performs one structural operation on the document.
func (d *Document) Apply(op history.Operation) error {
	switch op := op.(type) {
	case Insert:
		return d.insert(op.Comp, op.Parent, op.Index)
	case Detach:
		return d.detach(op.Comp)
	case SetSelection:
		d.selection = slices.Clone(op.IDs)
		return nil
	case CrosshairTo:
		d.crosshair = op.Pos
		return nil
	}
	return history.ErrOperationNotSupported
}

func (d *Document) insert(c, parent *Component, index int) error {
	if c.attached {
		return fmt.Errorf("%w: %s", ErrAttached, c.id)
	}
	if parent != nil && !parent.attached {
		return fmt.Errorf("%w: parent %s", ErrNotAttached, parent.id)
	}

	if parent == nil {
		index = min(max(index, 0), len(d.roots))
		d.roots = slices.Insert(d.roots, index, c)
	} else {
		index = min(max(index, 0), len(parent.children))
		parent.children = slices.Insert(parent.children, index, c)
	}
	c.parent = parent
	d.attach(c)
	return nil
}

// attach marks the subtree rooted at c as part of the document.
func (d *Document) attach(c *Component) {
	c.attached = true
	d.byID[c.id] = c
	for _, ch := range c.children {
		ch.parent = c
		d.attach(ch)
	}
}

func (d *Document) detach(c *Component) error {
	if !c.attached {
		return fmt.Errorf("%w: %s", ErrNotAttached, c.id)
	}
	if c.parent == nil {
		d.roots = slices.DeleteFunc(d.roots, func(x *Component) bool { return x == c })
	} else {
		c.parent.children = slices.DeleteFunc(c.parent.children, func(x *Component) bool { return x == c })
	}
	d.release(c)
	return nil
}

// release marks the subtree rooted at c as gone. Members keep their place
// in c so that re-inserting c restores them.
func (d *Document) release(c *Component) {
	c.attached = false
	delete(d.byID, c.id)
	for _, ch := range c.children {
		d.release(ch)
	}
}

// indexOf returns c's position among its siblings.
func (d *Document) indexOf(c *Component) int {
	if c.parent == nil {
		return slices.Index(d.roots, c)
	}
	return slices.Index(c.parent.children, c)
}

func (d *Document) lookup(id uuid.UUID) (*Component, error) {
	c, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// repaint returns the post command that invalidates c after redo.
func (d *Document) repaint(c *Component) history.Command {
	id := c.id
	return history.Bind("repaint", func() error {
		d.invalidate(id)
		return nil
	})
}

// OnHistoryChanged repaints the components an undone step touched. Redo
// repaints through its post commands, which undo does not have.
//
// It runs on the owner goroutine after the data lock is released.
func (d *Document) OnHistoryChanged(s history.State) {
	if s.Event != history.EventUndo || s.Step == nil {
		return
	}
	for _, v := range s.Step.Subjects() {
		if c, ok := v.(*Component); ok && d.byID[c.id] == c {
			d.invalidate(c.id)
		}
	}
}

// view runs fn with the data readable: directly inside a transaction
// holding the data lock, under a shared lock otherwise.
func (d *Document) view(ctx context.Context, fn func()) {
	if d.eng.Holds(ctx, d.data) {
		fn()
		return
	}
	d.data.Read(fn)
}

// Get returns a copy of the component with the given ID.
func (d *Document) Get(ctx context.Context, id uuid.UUID) (Info, error) {
	var (
		in  Info
		err error
	)
	d.view(ctx, func() {
		var c *Component
		if c, err = d.lookup(id); err == nil {
			in = c.info()
		}
	})
	return in, err
}

// List returns copies of the top-level components in stacking order.
func (d *Document) List(ctx context.Context) []Info {
	var out []Info
	d.view(ctx, func() {
		out = make([]Info, len(d.roots))
		for i, c := range d.roots {
			out[i] = c.info()
		}
	})
	return out
}

// Len returns the number of attached components, members included.
func (d *Document) Len(ctx context.Context) int {
	var n int
	d.view(ctx, func() { n = len(d.byID) })
	return n
}

// Selection returns the selected components that are still attached.
func (d *Document) Selection(ctx context.Context) []uuid.UUID {
	var out []uuid.UUID
	d.view(ctx, func() {
		for _, id := range d.selection {
			if _, ok := d.byID[id]; ok {
				out = append(out, id)
			}
		}
	})
	return out
}

// Crosshair returns the crosshair position.
func (d *Document) Crosshair(ctx context.Context) Point {
	var p Point
	d.view(ctx, func() { p = d.crosshair })
	return p
}
