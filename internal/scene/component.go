package scene

import (
	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/stepwise/internal/engine/history"
	"github.com/dshills/stepwise/internal/engine/lock"
	"github.com/dshills/stepwise/internal/engine/property"
)

// Point is a position in document coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Size is a component extent.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Features of a component.
const (
	FeatureName    property.Feature = "name"
	FeatureVisible property.Feature = "visible"
	FeatureFill    property.Feature = "fill"
)

// DefaultFill is the fill of new components.
var DefaultFill = colorful.Color{R: 0.8, G: 0.8, B: 0.8}

var features = func() *property.Registry[*Component] {
	r := property.NewRegistry[*Component]("component")
	property.Register(r, FeatureName,
		func(c *Component) string { return c.name },
		func(c *Component, v string) { c.name = v })
	property.Register(r, FeatureVisible,
		func(c *Component) bool { return c.visible },
		func(c *Component, v bool) { c.visible = v })
	property.Register(r, FeatureFill,
		func(c *Component) colorful.Color { return c.fill },
		func(c *Component, v colorful.Color) { c.fill = v.Clamped() })
	return r
}()

// Features returns the feature names a component supports.
func Features() []property.Feature {
	return features.Features()
}

// Component is a positioned element of a document. Groups are components
// whose members move with them.
type Component struct {
	doc      *Document
	id       uuid.UUID
	name     string
	pos      Point
	size     Size
	visible  bool
	fill     colorful.Color
	group    bool
	parent   *Component
	children []*Component
	attached bool
}

func newComponent(doc *Document, name string, pos Point, size Size) *Component {
	return &Component{
		doc:     doc,
		id:      uuid.New(),
		name:    name,
		pos:     pos,
		size:    size,
		visible: true,
		fill:    DefaultFill,
	}
}

// ID returns the component ID.
func (c *Component) ID() uuid.UUID {
	return c.id
}

// Live returns true while the component is attached to its document.
func (c *Component) Live() bool {
	return c.attached
}

// DataLock returns the lock of the owning document.
func (c *Component) DataLock() *lock.Data {
	return c.doc.data
}

// Apply performs one operation on the component.
func (c *Component) Apply(op history.Operation) error {
	switch op := op.(type) {
	case MoveTo:
		c.pos = op.Pos
		return nil
	case ResizeTo:
		if c.group {
			return history.ErrOperationNotSupported
		}
		if op.Size.W < 0 || op.Size.H < 0 {
			return ErrInvalidSize
		}
		c.size = op.Size
		return nil
	case property.SetOp:
		return features.Apply(c, op)
	}
	return history.ErrOperationNotSupported
}

// info returns a copy of the component state.
func (c *Component) info() Info {
	in := Info{
		ID:      c.id,
		Name:    c.name,
		Pos:     c.pos,
		Size:    c.size,
		Visible: c.visible,
		Fill:    c.fill.Hex(),
		Group:   c.group,
	}
	if c.parent != nil {
		in.Parent = c.parent.id
	}
	for _, ch := range c.children {
		in.Children = append(in.Children, ch.id)
	}
	return in
}

// bounds returns the smallest rectangle covering all components.
func bounds(cs []*Component) (Point, Size) {
	minX, minY := cs[0].pos.X, cs[0].pos.Y
	maxX, maxY := minX+cs[0].size.W, minY+cs[0].size.H
	for _, c := range cs[1:] {
		minX = min(minX, c.pos.X)
		minY = min(minY, c.pos.Y)
		maxX = max(maxX, c.pos.X+c.size.W)
		maxY = max(maxY, c.pos.Y+c.size.H)
	}
	return Point{X: minX, Y: minY}, Size{W: maxX - minX, H: maxY - minY}
}

// Info is a read-only copy of a component.
type Info struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	Pos      Point       `json:"pos"`
	Size     Size        `json:"size"`
	Visible  bool        `json:"visible"`
	Fill     string      `json:"fill"`
	Group    bool        `json:"group,omitempty"`
	Parent   uuid.UUID   `json:"parent,omitzero"`
	Children []uuid.UUID `json:"children,omitempty"`
}
