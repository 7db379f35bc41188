package actor

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// TransformedShape is a convex shape placed inside a compound.
type TransformedShape struct {
	Shape       Shape
	Position    mgl64.Vec3
	Orientation mgl64.Mat3

	invOrientation mgl64.Mat3
	box            AABB // compound space
}

func (ts *TransformedShape) support(direction mgl64.Vec3) mgl64.Vec3 {
	local := ts.Shape.SupportMapping(ts.invOrientation.Mul3x1(direction))
	return ts.Orientation.Mul3x1(local).Add(ts.Position)
}

// CompoundShape is a rigid assembly of convex shapes. NewCompoundShape moves the parts so that
// the center of mass sits at the shape origin; Shift tells by how much.
type CompoundShape struct {
	shapes []TransformedShape
	shift  mgl64.Vec3
	box    AABB

	current  int
	selected []int

	parent *CompoundShape
	clones *sync.Pool
}

// NewCompoundShape builds a compound from parts. Every part must be convex: nesting a
// Multishape is not supported.
func NewCompoundShape(parts []TransformedShape) *CompoundShape {
	c := &CompoundShape{
		shapes: make([]TransformedShape, len(parts)),
		clones: &sync.Pool{},
	}
	copy(c.shapes, parts)

	// center of volume
	var total float64
	var center mgl64.Vec3
	for i := range c.shapes {
		s := &c.shapes[i]
		if s.Orientation == (mgl64.Mat3{}) {
			s.Orientation = mgl64.Ident3()
		}
		v := s.Shape.ComputeMass(1)
		total += v
		center = center.Add(s.Position.Mul(v))
	}
	if total > 0 {
		c.shift = center.Mul(1 / total)
	}

	c.box = EmptyAABB()
	for i := range c.shapes {
		s := &c.shapes[i]
		s.Position = s.Position.Sub(c.shift)
		s.invOrientation = s.Orientation.Transpose()
		b := s.Shape.BoundingBox(s.Orientation)
		s.box = AABB{Min: b.Min.Add(s.Position), Max: b.Max.Add(s.Position)}
		c.box = c.box.Merge(s.box)
	}

	return c
}

func (c *CompoundShape) Shapes() []TransformedShape {
	return c.shapes
}

// Shift is the offset that was subtracted from every part position.
func (c *CompoundShape) Shift() mgl64.Vec3 {
	return c.shift
}

func (c *CompoundShape) SupportMapping(direction mgl64.Vec3) mgl64.Vec3 {
	return c.shapes[c.current].support(direction)
}

func (c *CompoundShape) Center() mgl64.Vec3 {
	s := &c.shapes[c.current]
	return s.Orientation.Mul3x1(s.Shape.Center()).Add(s.Position)
}

func (c *CompoundShape) BoundingBox(orientation mgl64.Mat3) AABB {
	box := EmptyAABB()
	for i := range c.shapes {
		s := &c.shapes[i]
		b := s.Shape.BoundingBox(orientation.Mul3(s.Orientation))
		p := orientation.Mul3x1(s.Position)
		box = box.Merge(AABB{Min: b.Min.Add(p), Max: b.Max.Add(p)})
	}
	return box
}

func (c *CompoundShape) ComputeMass(density float64) float64 {
	var mass float64
	for i := range c.shapes {
		mass += c.shapes[i].Shape.ComputeMass(density)
	}
	return mass
}

// ComputeInertia spreads mass over the parts by volume and sums their tensors around the
// compound origin (parallel axis theorem).
func (c *CompoundShape) ComputeInertia(mass float64) mgl64.Mat3 {
	total := c.ComputeMass(1)
	if total <= 0 {
		return mgl64.Mat3{}
	}

	var inertia mgl64.Mat3
	for i := range c.shapes {
		s := &c.shapes[i]
		m := mass * s.Shape.ComputeMass(1) / total

		local := s.Shape.ComputeInertia(m)
		rotated := s.Orientation.Mul3(local).Mul3(s.invOrientation)

		p := s.Position
		offset := mgl64.Ident3().Mul(p.Dot(p)).Sub(outer(p, p)).Mul(m)

		inertia = inertia.Add(rotated).Add(offset)
	}
	return inertia
}

func (c *CompoundShape) Prepare(box AABB) int {
	c.selected = c.selected[:0]
	for i := range c.shapes {
		if c.shapes[i].box.Overlaps(box) {
			c.selected = append(c.selected, i)
		}
	}
	return len(c.selected)
}

func (c *CompoundShape) PrepareRay(origin, direction mgl64.Vec3) int {
	c.selected = c.selected[:0]
	for i := range c.shapes {
		if c.shapes[i].box.RayIntersect(origin, direction) {
			c.selected = append(c.selected, i)
		}
	}
	return len(c.selected)
}

func (c *CompoundShape) SetCurrentShape(index int) {
	c.current = c.selected[index]
}

func (c *CompoundShape) RequestWorkingClone() Multishape {
	root := c
	if c.parent != nil {
		root = c.parent
	}

	if v := root.clones.Get(); v != nil {
		return v.(*CompoundShape)
	}

	return &CompoundShape{
		shapes: root.shapes,
		shift:  root.shift,
		box:    root.box,
		parent: root,
	}
}

func (c *CompoundShape) ReturnWorkingClone() {
	if c.parent == nil {
		return
	}
	c.selected = c.selected[:0]
	c.current = 0
	c.parent.clones.Put(c)
}

func outer(a, b mgl64.Vec3) mgl64.Mat3 {
	// column-major
	return mgl64.Mat3{
		a[0] * b[0], a[1] * b[0], a[2] * b[0],
		a[0] * b[1], a[1] * b[1], a[2] * b[1],
		a[0] * b[2], a[1] * b[2], a[2] * b[2],
	}
}
