package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyAABB returns an inverted box that any AddPoint/Merge call will overwrite.
func EmptyAABB() AABB {
	return AABB{
		Min: mgl64.Vec3{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64},
		Max: mgl64.Vec3{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64},
	}
}

// ContainsPoint checks if a point is inside the AABB
func (a AABB) ContainsPoint(point mgl64.Vec3) bool {
	return point.X() >= a.Min.X() && point.X() <= a.Max.X() &&
		point.Y() >= a.Min.Y() && point.Y() <= a.Max.Y() &&
		point.Z() >= a.Min.Z() && point.Z() <= a.Max.Z()
}

// Contains reports whether other lies entirely inside a.
func (a AABB) Contains(other AABB) bool {
	return a.ContainsPoint(other.Min) && a.ContainsPoint(other.Max)
}

// Overlaps checks if two AABBs overlap. Touching boxes overlap.
func (a AABB) Overlaps(other AABB) bool {
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// AddPoint grows the box to include point.
func (a AABB) AddPoint(point mgl64.Vec3) AABB {
	for i := 0; i < 3; i++ {
		a.Min[i] = math.Min(a.Min[i], point[i])
		a.Max[i] = math.Max(a.Max[i], point[i])
	}
	return a
}

// Merge returns the smallest box containing a and other.
func (a AABB) Merge(other AABB) AABB {
	for i := 0; i < 3; i++ {
		a.Min[i] = math.Min(a.Min[i], other.Min[i])
		a.Max[i] = math.Max(a.Max[i], other.Max[i])
	}
	return a
}

// Expand grows the box by margin on every side.
func (a AABB) Expand(margin float64) AABB {
	m := mgl64.Vec3{margin, margin, margin}
	return AABB{Min: a.Min.Sub(m), Max: a.Max.Add(m)}
}

// Center returns the middle of the box.
func (a AABB) Center() mgl64.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// Extents returns the half sizes of the box.
func (a AABB) Extents() mgl64.Vec3 {
	return a.Max.Sub(a.Min).Mul(0.5)
}

// Perimeter is the surface-area heuristic used by the dynamic tree.
func (a AABB) Perimeter() float64 {
	d := a.Max.Sub(a.Min)
	return 2 * (d.X()*d.Y() + d.Y()*d.Z() + d.Z()*d.X())
}

// Transform rotates the box by orientation and translates it by position, returning the
// axis-aligned box of the result.
func (a AABB) Transform(orientation mgl64.Mat3, position mgl64.Vec3) AABB {
	center := orientation.Mul3x1(a.Center()).Add(position)
	extents := absMat3(orientation).Mul3x1(a.Extents())
	return AABB{Min: center.Sub(extents), Max: center.Add(extents)}
}

// InverseTransform moves a world-space box into the local space of a body at
// position/orientation.
func (a AABB) InverseTransform(position mgl64.Vec3, orientation mgl64.Mat3) AABB {
	inv := orientation.Transpose()
	center := inv.Mul3x1(a.Center().Sub(position))
	extents := absMat3(inv).Mul3x1(a.Extents())
	return AABB{Min: center.Sub(extents), Max: center.Add(extents)}
}

// RayIntersect is the slab test for the infinite ray origin + t*direction, t >= 0.
func (a AABB) RayIntersect(origin, direction mgl64.Vec3) bool {
	_, ok := a.rayInterval(origin, direction, math.MaxFloat64)
	return ok
}

// SegmentIntersect tests the segment origin + t*direction, t in [0, 1].
func (a AABB) SegmentIntersect(origin, direction mgl64.Vec3) bool {
	_, ok := a.rayInterval(origin, direction, 1)
	return ok
}

func (a AABB) rayInterval(origin, direction mgl64.Vec3, tMax float64) (float64, bool) {
	const epsilon = 1e-12

	tMin := 0.0
	for i := 0; i < 3; i++ {
		if math.Abs(direction[i]) < epsilon {
			if origin[i] < a.Min[i] || origin[i] > a.Max[i] {
				return 0, false
			}
			continue
		}

		inv := 1.0 / direction[i]
		t1 := (a.Min[i] - origin[i]) * inv
		t2 := (a.Max[i] - origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}

func absMat3(m mgl64.Mat3) mgl64.Mat3 {
	for i := range m {
		m[i] = math.Abs(m[i])
	}
	return m
}
