package xeno

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MaximumIterations2D bounds the 2D loops.
const MaximumIterations2D = 10

// Support2D is the planar counterpart of actor.SupportMappable.
type Support2D interface {
	SupportMapping(direction mgl64.Vec2) mgl64.Vec2
	Center() mgl64.Vec2
}

// Circle is a 2D disc centered on its origin.
type Circle struct {
	Radius float64
}

func (c *Circle) SupportMapping(direction mgl64.Vec2) mgl64.Vec2 {
	l := direction.Len()
	if l < 1e-12 {
		return mgl64.Vec2{c.Radius, 0}
	}
	return direction.Mul(c.Radius / l)
}

func (c *Circle) Center() mgl64.Vec2 {
	return mgl64.Vec2{}
}

// Rectangle is a 2D box given by its half extents.
type Rectangle struct {
	HalfExtents mgl64.Vec2
}

func (r *Rectangle) SupportMapping(direction mgl64.Vec2) mgl64.Vec2 {
	hx, hy := r.HalfExtents.X(), r.HalfExtents.Y()
	if direction.X() < 0 {
		hx = -hx
	}
	if direction.Y() < 0 {
		hy = -hy
	}
	return mgl64.Vec2{hx, hy}
}

func (r *Rectangle) Center() mgl64.Vec2 {
	return mgl64.Vec2{}
}

// Rotation2D returns the rotation matrix of angle radians.
func Rotation2D(angle float64) mgl64.Mat2 {
	return mgl64.Rotate2D(angle)
}

func cross2(a, b mgl64.Vec2) float64 {
	return a.X()*b.Y() - a.Y()*b.X()
}

// perpendicular returns edge rotated by 90 degrees, on the side of target.
func perpendicular(edge, target mgl64.Vec2) mgl64.Vec2 {
	n := mgl64.Vec2{-edge.Y(), edge.X()}
	if n.Dot(target) < 0 {
		n = n.Mul(-1)
	}
	return n
}

func support2DTransformed(shape Support2D, orientation mgl64.Mat2, position, direction mgl64.Vec2) mgl64.Vec2 {
	local := orientation.Transpose().Mul2x1(direction)
	return orientation.Mul2x1(shape.SupportMapping(local)).Add(position)
}

// Detect2D tests two convex planar shapes for intersection. Outputs follow Detect: normal
// points from shape2 toward shape1.
func Detect2D(support1, support2 Support2D, orientation1, orientation2 mgl64.Mat2,
	position1, position2 mgl64.Vec2) (point, normal mgl64.Vec2, penetration float64, ok bool) {

	v01 := orientation1.Mul2x1(support1.Center()).Add(position1)
	v02 := orientation2.Mul2x1(support2.Center()).Add(position2)

	v0 := v02.Sub(v01)
	if v0.LenSqr() < zeroEpsilonSqr {
		v0 = mgl64.Vec2{0.00001, 0}
	}
	toOrigin := v0.Mul(-1)

	// ========== FIRST PORTAL VERTEX ==========
	normal = toOrigin
	v11 := support2DTransformed(support1, orientation1, position1, normal.Mul(-1))
	v12 := support2DTransformed(support2, orientation2, position2, normal)
	v1 := v12.Sub(v11)

	if v1.Dot(normal) <= 0 {
		return point, normal, 0, false
	}

	// ========== SECOND PORTAL VERTEX ==========
	var v2, v21, v22 mgl64.Vec2
	for i := 0; ; i++ {
		if i > MaximumIterations2D {
			return point, normal, 0, false
		}

		edge := v1.Sub(v0)
		if math.Abs(cross2(edge, toOrigin)) < 1e-12 {
			// origin on the line v0-v1
			normal = edge.Normalize()
			point = v11.Add(v12).Mul(0.5)
			penetration = v12.Sub(v11).Dot(normal)
			return point, normal, penetration, true
		}

		normal = perpendicular(edge, toOrigin)
		v21 = support2DTransformed(support1, orientation1, position1, normal.Mul(-1))
		v22 = support2DTransformed(support2, orientation2, position2, normal)
		v2 = v22.Sub(v21)

		if v2.Dot(normal) <= 0 {
			return point, normal, 0, false
		}

		// the origin ray has to pass between v1 and v2
		side := v2.Sub(v0)
		if cross2(side, toOrigin)*cross2(side, v1.Sub(v0)) >= 0 {
			break
		}
		v1, v11, v12 = v2, v21, v22
	}

	// ========== PORTAL REFINEMENT ==========
	hit := false
	for i := 0; ; i++ {
		edge := v2.Sub(v1)
		normal = perpendicular(edge, v1.Sub(v0))
		if normal.LenSqr() < zeroEpsilonSqr {
			return point, normal, penetration, hit
		}
		normal = normal.Normalize()

		if normal.Dot(v1) >= 0 {
			hit = true
		}

		v31 := support2DTransformed(support1, orientation1, position1, normal.Mul(-1))
		v32 := support2DTransformed(support2, orientation2, position2, normal)
		v3 := v32.Sub(v31)

		delta := v3.Sub(v1).Dot(normal)
		penetration = v3.Dot(normal)

		if delta <= CollideEpsilon || penetration <= 0 || i > MaximumIterations2D {
			if hit {
				t := 0.0
				if d := cross2(edge, toOrigin); math.Abs(d) > 1e-12 {
					t = -cross2(v1.Sub(v0), toOrigin) / d
				}
				t = math.Max(0, math.Min(1, t))
				point = v11.Add(v12).Mul(1 - t).Add(v21.Add(v22).Mul(t)).Mul(0.5)
			}
			return point, normal, penetration, hit
		}

		split := v3.Sub(v0)
		if cross2(split, toOrigin)*cross2(split, v1.Sub(v0)) >= 0 {
			v2, v21, v22 = v3, v31, v32
		} else {
			v1, v11, v12 = v3, v31, v32
		}
	}
}
