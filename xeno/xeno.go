// Package xeno implements XenoCollide (Minkowski Portal Refinement) for convex shapes given
// by their support mapping, in 3D and 2D.
//
// The algorithm finds a portal on the Minkowski difference B - A that the ray from an
// interior point toward the origin passes through, then refines it until the surface is
// reached. It is approximate: thin or nearly degenerate configurations can be missed or
// reported with a rough normal, and callers are expected to reject separated pairs with a
// bounding box test first.
package xeno

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

const (
	// MaximumIterations bounds both the portal discovery and the refinement loops.
	MaximumIterations = 34
	// CollideEpsilon is how close the refined portal has to get to the surface.
	CollideEpsilon = 1e-4

	zeroEpsilonSqr = 1e-20
)

var centerPerturbation = mgl64.Vec3{0.00001, 0, 0}

func nearlyZero(v mgl64.Vec3) bool {
	return v.LenSqr() < zeroEpsilonSqr
}

// supportTransformed returns the support point of a shape placed at position/orientation.
func supportTransformed(shape actor.SupportMappable, orientation mgl64.Mat3, position, direction mgl64.Vec3) mgl64.Vec3 {
	local := orientation.Transpose().Mul3x1(direction)
	return orientation.Mul3x1(shape.SupportMapping(local)).Add(position)
}

// Detect tests two convex shapes for intersection.
//
// On a hit, point is halfway between the two surfaces, normal is a unit vector pointing from
// shape2 toward shape1 and penetration is the depth along normal.
func Detect(support1, support2 actor.SupportMappable, orientation1, orientation2 mgl64.Mat3,
	position1, position2 mgl64.Vec3) (point, normal mgl64.Vec3, penetration float64, ok bool) {

	// ========== INTERIOR POINT ==========
	v01 := orientation1.Mul3x1(support1.Center()).Add(position1)
	v02 := orientation2.Mul3x1(support2.Center()).Add(position2)

	v0 := v02.Sub(v01)
	if nearlyZero(v0) {
		// concentric shapes: any direction will do
		v0 = centerPerturbation
	}

	// ========== FIRST PORTAL VERTEX ==========
	normal = v0.Mul(-1)
	v11 := supportTransformed(support1, orientation1, position1, v0)
	v12 := supportTransformed(support2, orientation2, position2, normal)
	v1 := v12.Sub(v11)

	if v1.Dot(normal) <= 0 {
		return point, normal, 0, false
	}

	// ========== SECOND PORTAL VERTEX ==========
	normal = v1.Cross(v0)
	if nearlyZero(normal) {
		// origin lies on the segment v0-v1
		normal = v1.Sub(v0).Normalize()
		point = v11.Add(v12).Mul(0.5)
		penetration = v12.Sub(v11).Dot(normal)
		return point, normal, penetration, true
	}

	v21 := supportTransformed(support1, orientation1, position1, normal.Mul(-1))
	v22 := supportTransformed(support2, orientation2, position2, normal)
	v2 := v22.Sub(v21)

	if v2.Dot(normal) <= 0 {
		return point, normal, 0, false
	}

	// plane (v0, v1, v2) must face the origin
	normal = v1.Sub(v0).Cross(v2.Sub(v0))
	if normal.Dot(v0) > 0 {
		v1, v2 = v2, v1
		v11, v21 = v21, v11
		v12, v22 = v22, v12
		normal = normal.Mul(-1)
	}

	var v3, v31, v32 mgl64.Vec3
	phase1, phase2 := 0, 0
	hit := false

	// ========== PHASE ONE: PORTAL DISCOVERY ==========
	for {
		if phase1 > MaximumIterations {
			return point, normal, 0, false
		}
		phase1++

		v31 = supportTransformed(support1, orientation1, position1, normal.Mul(-1))
		v32 = supportTransformed(support2, orientation2, position2, normal)
		v3 = v32.Sub(v31)

		if v3.Dot(normal) <= 0 {
			return point, normal, 0, false
		}

		// origin outside (v1, v0, v3): drop v2
		if v1.Cross(v3).Dot(v0) < 0 {
			v2, v21, v22 = v3, v31, v32
			normal = v1.Sub(v0).Cross(v3.Sub(v0))
			continue
		}

		// origin outside (v3, v0, v2): drop v1
		if v3.Cross(v2).Dot(v0) < 0 {
			v1, v11, v12 = v3, v31, v32
			normal = v3.Sub(v0).Cross(v2.Sub(v0))
			continue
		}

		break
	}

	// ========== PHASE TWO: PORTAL REFINEMENT ==========
	for {
		phase2++

		normal = v2.Sub(v1).Cross(v3.Sub(v1))
		if nearlyZero(normal) {
			return point, normal, penetration, true
		}
		normal = normal.Normalize()

		if normal.Dot(v1) >= 0 {
			hit = true
		}

		v41 := supportTransformed(support1, orientation1, position1, normal.Mul(-1))
		v42 := supportTransformed(support2, orientation2, position2, normal)
		v4 := v42.Sub(v41)

		delta := v4.Sub(v3).Dot(normal)
		penetration = v4.Dot(normal)

		if delta <= CollideEpsilon || penetration <= 0 || phase2 > MaximumIterations {
			if hit {
				point = barycentricPoint(normal,
					[4]mgl64.Vec3{v0, v1, v2, v3},
					[4]mgl64.Vec3{v01, v11, v21, v31},
					[4]mgl64.Vec3{v02, v12, v22, v32})
			}
			return point, normal, penetration, hit
		}

		// pick the sub-portal the origin ray goes through
		temp := v4.Cross(v0)
		if temp.Dot(v1) >= 0 {
			if temp.Dot(v2) >= 0 {
				v1, v11, v12 = v4, v41, v42
			} else {
				v3, v31, v32 = v4, v41, v42
			}
		} else {
			if temp.Dot(v3) >= 0 {
				v2, v21, v22 = v4, v41, v42
			} else {
				v1, v11, v12 = v4, v41, v42
			}
		}
	}
}

// barycentricPoint projects the origin on the final tetrahedron and maps it back to the
// mid-point of the two shapes' support points.
func barycentricPoint(normal mgl64.Vec3, v, s1, s2 [4]mgl64.Vec3) mgl64.Vec3 {
	b := [4]float64{
		v[1].Cross(v[2]).Dot(v[3]),
		v[3].Cross(v[2]).Dot(v[0]),
		v[0].Cross(v[1]).Dot(v[3]),
		v[2].Cross(v[1]).Dot(v[0]),
	}
	sum := b[0] + b[1] + b[2] + b[3]

	if sum <= 0 {
		b[0] = 0
		b[1] = v[2].Cross(v[3]).Dot(normal)
		b[2] = v[3].Cross(v[1]).Dot(normal)
		b[3] = v[1].Cross(v[2]).Dot(normal)
		sum = b[1] + b[2] + b[3]
	}

	var point mgl64.Vec3
	for i := 0; i < 4; i++ {
		point = point.Add(s1[i].Add(s2[i]).Mul(b[i]))
	}
	return point.Mul(0.5 / sum)
}
