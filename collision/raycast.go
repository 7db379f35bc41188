package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/gjk"
)

// RaycastBody casts the ray origin + t*direction, t >= 0, against one rigid body. fraction is
// the t of the hit, normal the surface normal there.
func (b *Base) RaycastBody(body *actor.RigidBody, origin, direction mgl64.Vec3) (normal mgl64.Vec3, fraction float64, ok bool) {
	if !body.BoundingBox.RayIntersect(origin, direction) {
		return normal, 0, false
	}

	ms, multi := body.Shape.(actor.Multishape)
	if !multi {
		fraction, normal, ok = gjk.Raycast(body.Shape, body.Orientation, body.Transform.Position, origin, direction)
		return normal, fraction, ok
	}

	clone := ms.RequestWorkingClone()
	defer clone.ReturnWorkingClone()

	localOrigin := body.InvOrientation.Mul3x1(origin.Sub(body.Transform.Position))
	localDirection := body.InvOrientation.Mul3x1(direction)

	fraction = math.MaxFloat64
	count := clone.PrepareRay(localOrigin, localDirection)
	for i := range count {
		clone.SetCurrentShape(i)

		f, n, hit := gjk.Raycast(clone, body.Orientation, body.Transform.Position, origin, direction)
		if hit && f < fraction {
			fraction, normal, ok = f, n, true
		}
	}
	return normal, fraction, ok
}

// RaycastSoftBody casts the ray against the triangles of soft. The reported body is the mass
// point nearest to the hit.
func (b *Base) RaycastSoftBody(soft *actor.SoftBody, origin, direction mgl64.Vec3) (body *actor.RigidBody, normal mgl64.Vec3, fraction float64, ok bool) {
	if !soft.Bounds().RayIntersect(origin, direction) {
		return nil, normal, 0, false
	}

	list := b.acquireList()
	defer b.releaseList(list)

	b.treeMu.Lock()
	*list = soft.Tree().QueryRay(*list, origin, direction)
	b.treeMu.Unlock()

	var zero mgl64.Vec3
	fraction = math.MaxFloat64
	for _, index := range *list {
		triangle := soft.Triangles[index]

		f, n, hit := gjk.Raycast(triangle, identity, zero, origin, direction)
		if !hit || f >= fraction {
			continue
		}

		point := origin.Add(direction.Mul(f))
		body = soft.Points[nearestTrianglePoint(soft, triangle, point)]
		fraction, normal, ok = f, n, true
	}
	return body, normal, fraction, ok
}

// raycastEntities returns the closest hit among entities accepted by filter.
func (b *Base) raycastEntities(entities []actor.BroadphaseEntity, origin, direction mgl64.Vec3, filter RaycastFilter) (RaycastHit, bool) {
	best := RaycastHit{Fraction: math.MaxFloat64}
	found := false

	accept := func(body *actor.RigidBody, normal mgl64.Vec3, fraction float64) {
		if fraction >= best.Fraction {
			return
		}
		if filter != nil && !filter(body, normal, fraction) {
			return
		}
		best = RaycastHit{Body: body, Normal: normal, Fraction: fraction}
		found = true
	}

	for _, entity := range entities {
		switch e := entity.(type) {
		case *actor.RigidBody:
			if normal, fraction, ok := b.RaycastBody(e, origin, direction); ok {
				accept(e, normal, fraction)
			}
		case *actor.SoftBody:
			if body, normal, fraction, ok := b.RaycastSoftBody(e, origin, direction); ok {
				accept(body, normal, fraction)
			}
		}
	}
	return best, found
}
