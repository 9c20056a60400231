package property

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stepwise/internal/engine/history"
)

type widget struct {
	title   string
	visible bool
	width   int
}

func (w *widget) Apply(op history.Operation) error {
	return widgets.Apply(w, op)
}

var widgets = func() *Registry[*widget] {
	r := NewRegistry[*widget]("widget")
	Register(r, "title", func(w *widget) string { return w.title }, func(w *widget, v string) { w.title = v })
	Register(r, "visible", func(w *widget) bool { return w.visible }, func(w *widget, v bool) { w.visible = v })
	Register(r, "width", func(w *widget) int { return w.width }, func(w *widget, v int) { w.width = v })
	return r
}()

// recorder applies redo and keeps the entry like a transaction would.
type recorder struct {
	entries []history.Entry
}

func (r *recorder) Record(label string, target history.Target, redo, undo history.Operation) error {
	entry := history.Entry{
		Undo:  history.NewCommand(target, undo),
		Redo:  history.NewCommand(target, redo),
		Label: label,
	}
	if err := entry.Redo.Invoke(); err != nil {
		return err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func TestRegistryGetApply(t *testing.T) {
	w := &widget{title: "a"}

	v, err := widgets.Get(w, "title")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	require.NoError(t, widgets.Apply(w, SetOp{Feature: "width", Value: 40}))
	assert.Equal(t, 40, w.width)

	err = widgets.Apply(w, SetOp{Feature: "width", Value: "wide"})
	assert.ErrorIs(t, err, ErrValueType)

	_, err = widgets.Get(w, "height")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	assert.Equal(t, []Feature{"title", "visible", "width"}, widgets.Features())
}

func TestChangeRecordsPriorValue(t *testing.T) {
	w := &widget{title: "before"}
	rec := &recorder{}

	changed, err := Change(rec, widgets, w, w, "title", "after")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "after", w.title)

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, "Set title", entry.Label)
	assert.Equal(t, "set:title", entry.Undo.Description())

	require.NoError(t, entry.Undo.Invoke())
	assert.Equal(t, "before", w.title)
	require.NoError(t, entry.Redo.Invoke())
	assert.Equal(t, "after", w.title)
}

func TestChangeSameValueRecordsNothing(t *testing.T) {
	w := &widget{visible: true}
	rec := &recorder{}

	changed, err := Change(rec, widgets, w, w, "visible", true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, rec.entries)
}

func TestChangeErrors(t *testing.T) {
	w := &widget{}
	rec := &recorder{}

	_, err := Change(rec, widgets, w, w, "color", "red")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	_, err = Change(rec, widgets, w, w, "width", "wide")
	assert.ErrorIs(t, err, ErrValueType)
	assert.Empty(t, rec.entries)
	assert.Zero(t, w.width)
}

func TestApplyUnsupported(t *testing.T) {
	w := &widget{}

	err := widgets.Apply(w, history.Named("resize"))
	assert.ErrorIs(t, err, history.ErrOperationNotSupported)

	err = widgets.Apply(w, SetOp{Feature: "color", Value: "red"})
	assert.ErrorIs(t, err, history.ErrOperationNotSupported)

	cmd := history.NewCommand(w, SetOp{Feature: "color", Value: "red"})
	var ie *history.InvocationError
	require.ErrorAs(t, cmd.Invoke(), &ie)
	assert.Equal(t, history.KindNotSupported, ie.Kind)
}
