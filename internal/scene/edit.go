package scene

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/stepwise/internal/engine"
	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/engine/property"
)

// mutate runs fn in a transaction holding the document's data lock.
func (d *Document) mutate(ctx context.Context, label string, fn func(ctx context.Context, tx *engine.Tx) error) error {
	return d.eng.Mutate(ctx, d.data, label, fn)
}

// Add creates a top-level component and returns its ID.
func (d *Document) Add(ctx context.Context, name string, pos Point, size Size) (uuid.UUID, error) {
	if size.W < 0 || size.H < 0 {
		return uuid.Nil, ErrInvalidSize
	}
	c := newComponent(d, name, pos, size)
	err := d.mutate(ctx, "Add "+name, func(ctx context.Context, tx *engine.Tx) error {
		return d.add(tx, c, nil, len(d.roots))
	})
	if err != nil {
		return uuid.Nil, err
	}
	d.log.Debug("component added", "id", c.id, "name", name)
	return c.id, nil
}

func (d *Document) add(tx *engine.Tx, c, parent *Component, index int) error {
	return tx.Do(history.Entry{
		Undo:    history.NewCommand(d, Detach{Comp: c}),
		Redo:    history.NewCommand(d, Insert{Comp: c, Parent: parent, Index: index}),
		Subject: history.WeakSubject(c),
		Label:   "Add " + c.name,
	})
}

// Remove detaches a component. Undo restores it at the same place.
func (d *Document) Remove(ctx context.Context, id uuid.UUID) error {
	return d.mutate(ctx, "Remove", func(ctx context.Context, tx *engine.Tx) error {
		c, err := d.lookup(id)
		if err != nil {
			return err
		}
		return d.remove(tx, c)
	})
}

func (d *Document) remove(tx *engine.Tx, c *Component) error {
	return tx.Do(history.Entry{
		Undo:    history.NewCommand(d, Insert{Comp: c, Parent: c.parent, Index: d.indexOf(c)}),
		Redo:    history.NewCommand(d, Detach{Comp: c}),
		Subject: history.WeakSubject(c),
		Label:   "Remove " + c.name,
	})
}

// Move places a component at pos. Moving a group moves its members by the
// same offset, recorded in the same step.
func (d *Document) Move(ctx context.Context, id uuid.UUID, pos Point) error {
	return d.mutate(ctx, "Move", func(ctx context.Context, tx *engine.Tx) error {
		c, err := d.lookup(id)
		if err != nil {
			return err
		}
		delta := pos.Sub(c.pos)
		for _, ch := range c.children {
			if err := d.Move(ctx, ch.id, ch.pos.Add(delta)); err != nil {
				return err
			}
		}
		if err := tx.Do(history.Entry{
			Undo:    history.NewCommand(c, MoveTo{Pos: c.pos}),
			Redo:    history.NewCommand(c, MoveTo{Pos: pos}),
			Post:    d.repaint(c),
			Subject: history.WeakSubject(c),
			Label:   "Move " + c.name,
		}); err != nil {
			return err
		}
		d.invalidate(c.id)
		return nil
	})
}

// Resize changes a component's size. Groups cannot be resized.
func (d *Document) Resize(ctx context.Context, id uuid.UUID, size Size) error {
	return d.mutate(ctx, "Resize", func(ctx context.Context, tx *engine.Tx) error {
		c, err := d.lookup(id)
		if err != nil {
			return err
		}
		if err := tx.Do(history.Entry{
			Undo:    history.NewCommand(c, ResizeTo{Size: c.size}),
			Redo:    history.NewCommand(c, ResizeTo{Size: size}),
			Post:    d.repaint(c),
			Subject: history.WeakSubject(c),
			Label:   "Resize " + c.name,
		}); err != nil {
			return err
		}
		d.invalidate(c.id)
		return nil
	})
}

// Set changes a feature of a component by name. Setting the current value
// records nothing.
func (d *Document) Set(ctx context.Context, id uuid.UUID, f property.Feature, v any) error {
	return d.mutate(ctx, "Set "+string(f), func(ctx context.Context, tx *engine.Tx) error {
		c, err := d.lookup(id)
		if err != nil {
			return err
		}
		changed, err := property.Change(tx, features, c, c, f, v)
		if err != nil {
			return err
		}
		if changed {
			d.invalidate(c.id)
		}
		return nil
	})
}

// Feature returns the current value of a component feature.
func (d *Document) Feature(ctx context.Context, id uuid.UUID, f property.Feature) (any, error) {
	var (
		v   any
		err error
	)
	d.view(ctx, func() {
		var c *Component
		if c, err = d.lookup(id); err == nil {
			v, err = features.Get(c, f)
		}
	})
	return v, err
}

// SetFill sets the fill colour from a hex string such as "#ff8800".
func (d *Document) SetFill(ctx context.Context, id uuid.UUID, hex string) error {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fmt.Errorf("parse fill %q: %w", hex, err)
	}
	return d.Set(ctx, id, FeatureFill, c)
}

// Tint blends the fill of a component toward hex by t in [0,1], in Lab
// space.
func (d *Document) Tint(ctx context.Context, id uuid.UUID, hex string, t float64) error {
	to, err := colorful.Hex(hex)
	if err != nil {
		return fmt.Errorf("parse tint %q: %w", hex, err)
	}
	t = min(max(t, 0), 1)
	return d.mutate(ctx, "Tint", func(ctx context.Context, tx *engine.Tx) error {
		c, err := d.lookup(id)
		if err != nil {
			return err
		}
		return d.Set(ctx, id, FeatureFill, c.fill.BlendLab(to, t).Clamped())
	})
}

// Group replaces top-level components by a new group containing them and
// returns the group ID. The group is placed where the lowest member was.
// One undo restores the members and removes the group.
func (d *Document) Group(ctx context.Context, name string, ids ...uuid.UUID) (uuid.UUID, error) {
	if len(ids) == 0 {
		return uuid.Nil, ErrEmptyGroup
	}

	var gid uuid.UUID
	err := d.mutate(ctx, "Group "+name, func(ctx context.Context, tx *engine.Tx) error {
		members := make([]*Component, 0, len(ids))
		for _, id := range ids {
			c, err := d.lookup(id)
			if err != nil {
				return err
			}
			if c.parent != nil {
				return fmt.Errorf("%w: %s", ErrNotTopLevel, id)
			}
			if !slices.Contains(members, c) {
				members = append(members, c)
			}
		}
		// Stacking order, bottom first.
		slices.SortFunc(members, func(a, b *Component) int {
			return d.indexOf(a) - d.indexOf(b)
		})
		index := d.indexOf(members[0])

		for _, c := range slices.Backward(members) {
			if err := d.Remove(ctx, c.id); err != nil {
				return err
			}
		}

		pos, size := bounds(members)
		g := newComponent(d, name, pos, size)
		g.group = true
		g.children = members
		if err := d.add(tx, g, nil, index); err != nil {
			return err
		}
		gid = g.id
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	d.log.Debug("components grouped", "group", gid, "members", len(ids))
	return gid, nil
}

// Ungroup replaces a top-level group by its members.
func (d *Document) Ungroup(ctx context.Context, id uuid.UUID) error {
	return d.mutate(ctx, "Ungroup", func(ctx context.Context, tx *engine.Tx) error {
		g, err := d.lookup(id)
		if err != nil {
			return err
		}
		if !g.group {
			return fmt.Errorf("%w: %s", ErrNotGroup, id)
		}
		if g.parent != nil {
			return fmt.Errorf("%w: %s", ErrNotTopLevel, id)
		}
		index := d.indexOf(g)
		members := slices.Clone(g.children)

		if err := d.Remove(ctx, g.id); err != nil {
			return err
		}
		for i, c := range members {
			if err := d.add(tx, c, nil, index+i); err != nil {
				return err
			}
		}
		return nil
	})
}

// Select replaces the selection. Unknown IDs are rejected.
func (d *Document) Select(ctx context.Context, ids ...uuid.UUID) error {
	return d.mutate(ctx, "Select", func(ctx context.Context, tx *engine.Tx) error {
		for _, id := range ids {
			if _, err := d.lookup(id); err != nil {
				return err
			}
		}
		return tx.Record("Select", d, NewSetSelection(ids), NewSetSelection(d.selection))
	})
}

// TrackCrosshair moves the crosshair. The move is undoable.
func (d *Document) TrackCrosshair(ctx context.Context, pos Point) error {
	return d.mutate(ctx, "Crosshair", func(ctx context.Context, tx *engine.Tx) error {
		if pos == d.crosshair {
			return nil
		}
		return tx.Record("Crosshair", d, CrosshairTo{Pos: pos}, CrosshairTo{Pos: d.crosshair})
	})
}
