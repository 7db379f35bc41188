package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SupportMappable is the only geometric query the narrow phase needs from a convex shape.
type SupportMappable interface {
	// SupportMapping returns the farthest point of the shape along direction, in shape space.
	// direction is not necessarily normalized.
	SupportMapping(direction mgl64.Vec3) mgl64.Vec3
	// Center returns a point strictly inside the shape, in shape space.
	Center() mgl64.Vec3
}

// Shape is the interface that all collision shapes must implement
type Shape interface {
	SupportMappable

	// BoundingBox returns the shape's box around the body origin after rotating the shape by
	// orientation. The body adds its position.
	BoundingBox(orientation mgl64.Mat3) AABB
	// ComputeMass calculates the mass of the shape for a given density
	ComputeMass(density float64) float64
	// ComputeInertia returns the local inertia tensor for a given mass
	ComputeInertia(mass float64) mgl64.Mat3
}

// Multishape is a shape made of many convex sub-shapes (compounds, terrains). The narrow
// phase first calls Prepare to select the sub-shapes touching a region, then iterates them
// with SetCurrentShape; the SupportMappable methods always answer for the current one.
//
// Prepare/SetCurrentShape mutate the shape, so concurrent users must work on their own
// clone obtained from RequestWorkingClone and give it back with ReturnWorkingClone.
type Multishape interface {
	Shape

	// Prepare selects the sub-shapes overlapping box (shape space) and returns their count.
	Prepare(box AABB) int
	// PrepareRay selects the sub-shapes hit by the ray (shape space) and returns their count.
	PrepareRay(origin, direction mgl64.Vec3) int
	// SetCurrentShape makes the index-th prepared sub-shape current.
	SetCurrentShape(index int)

	RequestWorkingClone() Multishape
	ReturnWorkingClone()
}

// Box represents an oriented box collision shape
// The box is defined by its half-extents (half-width, half-height, half-depth)
type Box struct {
	HalfExtents mgl64.Vec3
}

func (b *Box) BoundingBox(orientation mgl64.Mat3) AABB {
	extents := absMat3(orientation).Mul3x1(b.HalfExtents)
	return AABB{Min: extents.Mul(-1), Max: extents}
}

// ComputeMass calculates mass data for the box
func (b *Box) ComputeMass(density float64) float64 {
	// Volume = 8 * hx * hy * hz (full dimensions are 2*halfExtents)
	volume := 8.0 * b.HalfExtents.X() * b.HalfExtents.Y() * b.HalfExtents.Z()

	return density * volume
}

func (b *Box) ComputeInertia(mass float64) mgl64.Mat3 {
	x := b.HalfExtents.X() * 2
	y := b.HalfExtents.Y() * 2
	z := b.HalfExtents.Z() * 2

	// I = (m/12) * (d1² + d2²)
	factor := mass / 12.0
	return mgl64.Diag3(mgl64.Vec3{
		factor * (y*y + z*z),
		factor * (x*x + z*z),
		factor * (x*x + y*y),
	})
}

func (b *Box) SupportMapping(direction mgl64.Vec3) mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()

	if direction.X() < 0 {
		hx = -hx
	}
	if direction.Y() < 0 {
		hy = -hy
	}
	if direction.Z() < 0 {
		hz = -hz
	}

	return mgl64.Vec3{hx, hy, hz}
}

func (b *Box) Center() mgl64.Vec3 {
	return mgl64.Vec3{}
}

// Sphere represents a spherical collision shape
type Sphere struct {
	Radius float64
}

func (s *Sphere) BoundingBox(orientation mgl64.Mat3) AABB {
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{Min: r.Mul(-1), Max: r}
}

// ComputeMass calculates mass data for the sphere
func (s *Sphere) ComputeMass(density float64) float64 {
	// Volume of sphere = (4/3) * π * r³
	volume := (4.0 / 3.0) * math.Pi * math.Pow(s.Radius, 3)

	return density * volume
}

func (s *Sphere) ComputeInertia(mass float64) mgl64.Mat3 {
	// I = (2/5) * m * r²
	i := (2.0 / 5.0) * mass * s.Radius * s.Radius
	return mgl64.Diag3(mgl64.Vec3{i, i, i})
}

func (s *Sphere) SupportMapping(direction mgl64.Vec3) mgl64.Vec3 {
	l := direction.Len()
	if l < 1e-12 {
		return mgl64.Vec3{s.Radius, 0, 0}
	}
	return direction.Mul(s.Radius / l)
}

func (s *Sphere) Center() mgl64.Vec3 {
	return mgl64.Vec3{}
}

// Capsule is a cylinder capped by two half spheres, aligned with the local Y axis.
// Length is the distance between the centers of the two caps.
type Capsule struct {
	Radius float64
	Length float64
}

func (c *Capsule) BoundingBox(orientation mgl64.Mat3) AABB {
	axis := orientation.Col(1).Mul(c.Length * 0.5)
	extents := mgl64.Vec3{
		math.Abs(axis.X()) + c.Radius,
		math.Abs(axis.Y()) + c.Radius,
		math.Abs(axis.Z()) + c.Radius,
	}
	return AABB{Min: extents.Mul(-1), Max: extents}
}

func (c *Capsule) volumes() (cylinder, sphere float64) {
	r2 := c.Radius * c.Radius
	return math.Pi * r2 * c.Length, (4.0 / 3.0) * math.Pi * r2 * c.Radius
}

func (c *Capsule) ComputeMass(density float64) float64 {
	cylinder, sphere := c.volumes()
	return density * (cylinder + sphere)
}

func (c *Capsule) ComputeInertia(mass float64) mgl64.Mat3 {
	cylinder, sphere := c.volumes()
	total := cylinder + sphere
	if total <= 0 {
		return mgl64.Mat3{}
	}
	mCyl := mass * cylinder / total
	mSph := mass * sphere / total

	r2 := c.Radius * c.Radius
	l2 := c.Length * c.Length

	side := 0.25*mCyl*r2 + mCyl*l2/12.0 + 0.4*mSph*r2 + 0.25*l2*mSph
	axial := 0.5*mCyl*r2 + 0.4*mSph*r2

	return mgl64.Diag3(mgl64.Vec3{side, axial, side})
}

func (c *Capsule) SupportMapping(direction mgl64.Vec3) mgl64.Vec3 {
	var point mgl64.Vec3
	l := direction.Len()
	if l > 1e-12 {
		point = direction.Mul(c.Radius / l)
	}

	if direction.Y() >= 0 {
		point[1] += c.Length * 0.5
	} else {
		point[1] -= c.Length * 0.5
	}
	return point
}

func (c *Capsule) Center() mgl64.Vec3 {
	return mgl64.Vec3{}
}
