// Package gjk implements the Gilbert-Johnson-Keerthi (GJK) distance algorithm on support
// mapped convex shapes.
//
// Instead of a boolean overlap test it answers distance queries: the closest points between
// two shapes (used for speculative contacts), ray casts against a single shape, and point
// containment. All three iterate a Voronoi simplex solver (see Simplex) toward the origin of
// the relevant Minkowski difference.
//
// References:
//   - Gilbert, Johnson, Keerthi: "A Fast Procedure for Computing the Distance Between
//     Complex Objects in Three-Dimensional Space" (1988)
//   - Van den Bergen: "Ray Casting against General Convex Objects with Application to
//     Continuous Collision Detection" (2004)
package gjk

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

const (
	// MaxIterations bounds every query. Hitting it returns the best answer so far.
	MaxIterations = 15

	distanceEpsilon    = 1e-5
	rayEpsilon         = 1e-6
	convergenceEpsilon = 1e-10
	zeroEpsilon        = 1e-12
)

func acquireSimplex() *Simplex {
	s := SimplexPool.Get().(*Simplex)
	s.Reset()
	return s
}

// SupportTransformed computes the support point of a shape placed in the world.
//
// The direction is brought into shape space with the transposed orientation, the shape's
// support mapping is evaluated there, and the result is moved back to world space.
func SupportTransformed(shape actor.SupportMappable, orientation mgl64.Mat3, position, direction mgl64.Vec3) mgl64.Vec3 {
	local := orientation.Transpose().Mul3x1(direction)
	return orientation.Mul3x1(shape.SupportMapping(local)).Add(position)
}

// MinkowskiSupport computes a support point in the Minkowski difference (A - B).
//
// Returns the difference and the two support points it is made of:
//
//	w = support(A, direction) - support(B, -direction)
func MinkowskiSupport(a, b actor.SupportMappable, orientationA, orientationB mgl64.Mat3,
	positionA, positionB, direction mgl64.Vec3) (w, pa, pb mgl64.Vec3) {

	pa = SupportTransformed(a, orientationA, positionA, direction)
	pb = SupportTransformed(b, orientationB, positionB, direction.Mul(-1))
	return pa.Sub(pb), pa, pb
}

// ClosestPoints computes the closest points between two separated convex shapes.
//
// Algorithm overview:
//  1. Seed the simplex search with the support along the center offset
//  2. Query the Minkowski support opposite to the current closest vector v
//  3. Add it to the simplex (unless already there) and project the origin on the simplex
//  4. Stop when no support point improves v, after MaxIterations, or when |v|² falls
//     under 1e-5 (the shapes are considered touching)
//
// Returns:
//   - pointA, pointB: closest points on each shape, in world space
//   - normal: unit vector from shape B toward shape A (zero if the shapes overlap)
//   - ok: false when the shapes overlap, in which case the points are meaningless
func ClosestPoints(a, b actor.SupportMappable, orientationA, orientationB mgl64.Mat3,
	positionA, positionB mgl64.Vec3) (pointA, pointB, normal mgl64.Vec3, ok bool) {

	simplex := acquireSimplex()
	defer SimplexPool.Put(simplex)

	r := positionA.Sub(positionB)
	v, _, _ := MinkowskiSupport(a, b, orientationA, orientationB, positionA, positionB, r.Mul(-1))

	distSqr := v.LenSqr()
	ok = true

	for i := 0; i < MaxIterations; i++ {
		w, pa, pb := MinkowskiSupport(a, b, orientationA, orientationB, positionA, positionB, v.Mul(-1))

		// no support point gets closer than the current estimate
		converged := distSqr-v.Dot(w) <= convergenceEpsilon*distSqr

		if !simplex.InSimplex(w) {
			simplex.AddVertex(w, pa, pb)
		}

		closest, valid := simplex.Closest()
		if valid {
			v = closest
			distSqr = v.LenSqr()
			normal = v
		} else {
			distSqr = 0
		}

		if distSqr <= distanceEpsilon {
			// origin reached: the shapes touch or overlap
			ok = false
			break
		}
		if converged {
			break
		}
	}

	pointA, pointB = simplex.ComputePoints()

	if normal.LenSqr() > zeroEpsilon*zeroEpsilon {
		normal = normal.Normalize()
	}

	return pointA, pointB, normal, ok
}

// Raycast casts the ray origin + t*direction (t >= 0) against a convex shape.
//
// This is Van den Bergen's GJK ray cast: the ray origin x is advanced along the ray whenever
// the current support plane proves the segment before it is free, and the simplex is built
// on x - shape instead of a Minkowski difference of two shapes.
//
// Returns:
//   - fraction: hit distance in units of direction (|hit - origin| / |direction|)
//   - normal: unit surface normal at the hit, zero when the origin starts inside
//   - ok: false if the ray misses
func Raycast(shape actor.SupportMappable, orientation mgl64.Mat3, position, origin, direction mgl64.Vec3) (fraction float64, normal mgl64.Vec3, ok bool) {
	simplex := acquireSimplex()
	defer SimplexPool.Put(simplex)

	fraction = math.MaxFloat64
	lambda := 0.0

	x := origin
	arbitrary := SupportTransformed(shape, orientation, position, direction)
	v := x.Sub(arbitrary)

	distSqr := v.LenSqr()

	for i := 0; distSqr > rayEpsilon && i < MaxIterations; i++ {
		p := SupportTransformed(shape, orientation, position, v)
		w := x.Sub(p)

		vDotW := v.Dot(w)
		if vDotW > 0 {
			vDotR := v.Dot(direction)
			if vDotR >= -zeroEpsilon {
				return fraction, normal, false
			}

			lambda -= vDotW / vDotR
			x = origin.Add(direction.Mul(lambda))
			w = x.Sub(p)
			normal = v
		}

		if !simplex.InSimplex(w) {
			simplex.AddVertex(w, x, p)
		}

		if closest, valid := simplex.Closest(); valid {
			v = closest
			distSqr = v.LenSqr()
		} else {
			distSqr = 0
		}
	}

	_, hit := simplex.ComputePoints()
	fraction = hit.Sub(origin).Len() / direction.Len()

	if normal.LenSqr() > zeroEpsilon*zeroEpsilon {
		normal = normal.Normalize()
	}

	return fraction, normal, true
}

// pointShape is a shape reduced to a single point.
type pointShape struct{}

func (pointShape) SupportMapping(mgl64.Vec3) mgl64.Vec3 { return mgl64.Vec3{} }
func (pointShape) Center() mgl64.Vec3                   { return mgl64.Vec3{} }

// Pointcast tells whether point lies inside the shape. Points closer than about 3e-3 to the
// surface count as inside.
func Pointcast(shape actor.SupportMappable, orientation mgl64.Mat3, position, point mgl64.Vec3) bool {
	_, _, _, separated := ClosestPoints(shape, pointShape{}, orientation, mgl64.Ident3(), position, point)
	return !separated
}
