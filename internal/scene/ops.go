package scene

import (
	"slices"

	"github.com/google/uuid"
)

// MoveTo places a component at Pos.
type MoveTo struct {
	Pos Point
}

// OpName returns the operation name.
func (MoveTo) OpName() string { return "moveTo" }

// Payload returns the operation arguments for export.
func (op MoveTo) Payload() any { return op.Pos }

// ResizeTo changes a component's size. Groups do not support it.
type ResizeTo struct {
	Size Size
}

// OpName returns the operation name.
func (ResizeTo) OpName() string { return "resizeTo" }

// Payload returns the operation arguments for export.
func (op ResizeTo) Payload() any { return op.Size }

// Insert attaches a component, and its members if it is a group, under
// Parent at Index. A nil Parent means the top level.
type Insert struct {
	Comp   *Component
	Parent *Component
	Index  int
}

// OpName returns the operation name.
func (Insert) OpName() string { return "insert" }

// Payload returns the operation arguments for export.
func (op Insert) Payload() any {
	p := map[string]any{"id": op.Comp.id.String(), "name": op.Comp.name, "index": op.Index}
	if op.Parent != nil {
		p["parent"] = op.Parent.id.String()
	}
	return p
}

// Detach removes a component and its members from the document.
type Detach struct {
	Comp *Component
}

// OpName returns the operation name.
func (Detach) OpName() string { return "detach" }

// Payload returns the operation arguments for export.
func (op Detach) Payload() any {
	return map[string]any{"id": op.Comp.id.String()}
}

// SetSelection replaces the selection.
type SetSelection struct {
	IDs []uuid.UUID
}

// NewSetSelection copies ids so the operation never aliases caller memory.
func NewSetSelection(ids []uuid.UUID) SetSelection {
	return SetSelection{IDs: slices.Clone(ids)}
}

// OpName returns the operation name.
func (SetSelection) OpName() string { return "setSelection" }

// Payload returns the operation arguments for export.
func (op SetSelection) Payload() any {
	ids := make([]string, len(op.IDs))
	for i, id := range op.IDs {
		ids[i] = id.String()
	}
	return ids
}

// CrosshairTo moves the crosshair.
type CrosshairTo struct {
	Pos Point
}

// OpName returns the operation name.
func (CrosshairTo) OpName() string { return "crosshairTo" }

// Payload returns the operation arguments for export.
func (op CrosshairTo) Payload() any { return op.Pos }
