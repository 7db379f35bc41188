package collision

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"

	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/gjk"
	"github.com/akmonengine/jitter/parallel"
	"github.com/akmonengine/jitter/xeno"
)

var identity = mgl64.Ident3()

type entityPair struct {
	entity1, entity2 actor.BroadphaseEntity
}

// Base is embedded by every System. It owns the handlers and options and implements the
// narrowphase dispatch over {rigid, soft} x {convex, multishape} pairs.
type Base struct {
	handlers    Handlers
	threadPool  *parallel.ThreadPool
	speculative bool
	logger      logr.Logger

	// QueryBox and QueryRay on a soft body tree share the tree's traversal stack.
	treeMu sync.Mutex
	lists  sync.Pool
}

func newBase() Base {
	return Base{
		logger: logr.Discard(),
		lists: sync.Pool{New: func() any {
			list := make([]int, 0, 32)
			return &list
		}},
	}
}

func (b *Base) Handlers() *Handlers {
	return &b.handlers
}

// SetThreadPool sets the pool used by Detect(true). Without one, Detect always runs on the
// calling goroutine.
func (b *Base) SetThreadPool(pool *parallel.ThreadPool) {
	b.threadPool = pool
}

// EnableSpeculativeContacts makes every pair report closest points of separated shapes whose
// distance is smaller than their relative swept motion. Bodies can also opt in one by one.
func (b *Base) EnableSpeculativeContacts(enabled bool) {
	b.speculative = enabled
}

func (b *Base) SetLogger(logger logr.Logger) {
	b.logger = logger
}

func (b *Base) acquireList() *[]int {
	list := b.lists.Get().(*[]int)
	*list = (*list)[:0]
	return list
}

func (b *Base) releaseList(list *[]int) {
	b.lists.Put(list)
}

// accept runs the checks shared by every broadphase once two boxes overlap: pairs where
// nothing can move are dropped, then the broadphase listeners may veto.
func (b *Base) accept(entity1, entity2 actor.BroadphaseEntity) bool {
	if entity1.IsStaticOrInactive() && entity2.IsStaticOrInactive() {
		return false
	}
	return b.handlers.RaisePassedBroadphase(entity1, entity2)
}

// narrowphase tests every pair, on the thread pool when asked to.
func (b *Base) narrowphase(pairs []entityPair, multithreaded bool) {
	if multithreaded && b.threadPool != nil && len(pairs) > 1 {
		for i := range pairs {
			b.threadPool.AddTask(b.detectTask, &pairs[i])
		}
		b.threadPool.Execute()
		return
	}

	for _, p := range pairs {
		b.DetectPair(p.entity1, p.entity2)
	}
}

func (b *Base) detectTask(param any) {
	p := param.(*entityPair)
	b.DetectPair(p.entity1, p.entity2)
}

// DetectPair runs the narrowphase on one broadphase pair and raises CollisionDetected for every
// contact found.
func (b *Base) DetectPair(entity1, entity2 actor.BroadphaseEntity) {
	if entity1 == entity2 {
		if Debug {
			panic(fmt.Sprintf("collision: entity %p paired with itself", entity1))
		}
		return
	}

	switch e1 := entity1.(type) {
	case *actor.RigidBody:
		switch e2 := entity2.(type) {
		case *actor.RigidBody:
			b.detectRigidRigid(e1, e2)
		case *actor.SoftBody:
			b.detectSoftRigid(e2, e1)
		}
	case *actor.SoftBody:
		switch e2 := entity2.(type) {
		case *actor.RigidBody:
			b.detectSoftRigid(e1, e2)
		case *actor.SoftBody:
			b.detectSoftSoft(e1, e2)
		}
	}
}

func (b *Base) detectRigidRigid(body1, body2 *actor.RigidBody) {
	ms1, multi1 := body1.Shape.(actor.Multishape)
	ms2, multi2 := body2.Shape.(actor.Multishape)
	speculative := b.speculative || body1.EnableSpeculativeContacts || body2.EnableSpeculativeContacts

	switch {
	case !multi1 && !multi2:
		b.detectShapes(body1, body2, body1.Shape, body2.Shape, speculative, nil)
	case multi1 && multi2:
		b.detectMultiMulti(body1, body2, ms1, ms2, speculative)
	case multi1:
		b.detectMulti(body1, body2, ms1, speculative)
	default:
		// the multishape always goes first
		b.detectMulti(body2, body1, ms2, speculative)
	}
}

// detectMulti tests every sub-shape of body1 overlapping the box of body2.
func (b *Base) detectMulti(body1, body2 *actor.RigidBody, ms actor.Multishape, speculative bool) {
	clone := ms.RequestWorkingClone()
	defer clone.ReturnWorkingClone()

	box := body2.BoundingBox.InverseTransform(body1.Transform.Position, body1.Orientation)
	count := clone.Prepare(box)

	terrain, _ := clone.(*actor.TerrainShape)
	for i := range count {
		clone.SetCurrentShape(i)
		b.detectShapes(body1, body2, clone, body2.Shape, speculative, terrain)
	}
}

func (b *Base) detectMultiMulti(body1, body2 *actor.RigidBody, ms1, ms2 actor.Multishape, speculative bool) {
	clone1 := ms1.RequestWorkingClone()
	defer clone1.ReturnWorkingClone()
	clone2 := ms2.RequestWorkingClone()
	defer clone2.ReturnWorkingClone()

	count1 := clone1.Prepare(body2.BoundingBox.InverseTransform(body1.Transform.Position, body1.Orientation))
	if count1 == 0 {
		return
	}
	count2 := clone2.Prepare(body1.BoundingBox.InverseTransform(body2.Transform.Position, body2.Orientation))

	terrain, _ := clone1.(*actor.TerrainShape)
	for i := range count1 {
		clone1.SetCurrentShape(i)
		for j := range count2 {
			clone2.SetCurrentShape(j)
			b.detectShapes(body1, body2, clone1, clone2, speculative, terrain)
		}
	}
}

// detectShapes is the convex core of the rigid narrowphase. When terrain is set it is the
// current shape of body1 and its face normal replaces the one found by XenoCollide.
func (b *Base) detectShapes(body1, body2 *actor.RigidBody, shape1, shape2 actor.SupportMappable,
	speculative bool, terrain *actor.TerrainShape) {

	point, normal, penetration, ok := xeno.Detect(shape1, shape2, body1.Orientation, body2.Orientation,
		body1.Transform.Position, body2.Transform.Position)

	if ok {
		if !b.handlers.RaisePassedNarrowphase(body1, body2, point, normal, penetration) {
			return
		}

		point1, point2 := FindSupportPoints(body1, body2, shape1, shape2, point, normal)
		if terrain != nil {
			normal = body1.Orientation.Mul3x1(terrain.CollisionNormal()).Mul(-1)
		}
		b.handlers.RaiseCollisionDetected(body1, body2, point1, point2, normal, penetration)
		return
	}

	if !speculative {
		return
	}

	// ========== SPECULATIVE ==========
	hit1, hit2, gjkNormal, separated := gjk.ClosestPoints(shape1, shape2, body1.Orientation, body2.Orientation,
		body1.Transform.Position, body2.Transform.Position)
	if !separated {
		return
	}

	delta := hit2.Sub(hit1)
	swept := body1.SweptDirection.Sub(body2.SweptDirection)
	if delta.LenSqr() >= swept.LenSqr() {
		return
	}

	penetration = delta.Dot(gjkNormal)
	if penetration < 0 {
		b.handlers.RaiseCollisionDetected(body1, body2, hit1, hit2, gjkNormal, penetration)
	}
}

// FindSupportPoints turns the mid point and normal of a XenoCollide hit into one point on each
// surface: the deepest point of shape1 along -normal and of shape2 along normal, projected on
// the normal line through point.
func FindSupportPoints(body1, body2 *actor.RigidBody, shape1, shape2 actor.SupportMappable,
	point, normal mgl64.Vec3) (point1, point2 mgl64.Vec3) {

	return supportPoints(shape1, body1.Orientation, body1.Transform.Position,
		shape2, body2.Orientation, body2.Transform.Position, point, normal)
}

func supportPoints(shape1 actor.SupportMappable, orientation1 mgl64.Mat3, position1 mgl64.Vec3,
	shape2 actor.SupportMappable, orientation2 mgl64.Mat3, position2 mgl64.Vec3,
	point, normal mgl64.Vec3) (point1, point2 mgl64.Vec3) {

	sA := gjk.SupportTransformed(shape1, orientation1, position1, normal.Mul(-1))
	sB := gjk.SupportTransformed(shape2, orientation2, position2, normal)

	point1 = point.Add(normal.Mul(sA.Sub(point).Dot(normal)))
	point2 = point.Add(normal.Mul(sB.Sub(point).Dot(normal)))
	return point1, point2
}

// ========== SOFT BODIES ==========

// nearestTrianglePoint returns the index in soft.Points of the triangle vertex closest to point.
func nearestTrianglePoint(soft *actor.SoftBody, triangle *actor.Triangle, point mgl64.Vec3) int {
	nearest := triangle.Indices[0]
	best := math.Inf(1)
	for _, index := range triangle.Indices {
		if d := soft.Points[index].Transform.Position.Sub(point).LenSqr(); d < best {
			best = d
			nearest = index
		}
	}
	return nearest
}

// detectSoftRigid tests the triangles of soft overlapping the box of body. Each hit becomes a
// contact between body and the mass point nearest to it.
func (b *Base) detectSoftRigid(soft *actor.SoftBody, body *actor.RigidBody) {
	if !soft.Bounds().Overlaps(body.BoundingBox) {
		return
	}

	list := b.acquireList()
	defer b.releaseList(list)

	b.treeMu.Lock()
	*list = soft.QueryBox(*list, body.BoundingBox)
	b.treeMu.Unlock()

	if len(*list) == 0 {
		return
	}

	ms, multi := body.Shape.(actor.Multishape)
	if !multi {
		b.detectTriangles(soft, body, body.Shape, *list)
		return
	}

	clone := ms.RequestWorkingClone()
	defer clone.ReturnWorkingClone()

	count := clone.Prepare(soft.Bounds().InverseTransform(body.Transform.Position, body.Orientation))
	for i := range count {
		clone.SetCurrentShape(i)
		b.detectTriangles(soft, body, clone, *list)
	}
}

func (b *Base) detectTriangles(soft *actor.SoftBody, body *actor.RigidBody, shape actor.SupportMappable, triangles []int) {
	var zero mgl64.Vec3

	for _, index := range triangles {
		triangle := soft.Triangles[index]

		point, normal, penetration, ok := xeno.Detect(shape, triangle, body.Orientation, identity,
			body.Transform.Position, zero)
		if !ok {
			continue
		}

		massPoint := soft.Points[nearestTrianglePoint(soft, triangle, point)]
		if !b.handlers.RaisePassedNarrowphase(body, massPoint, point, normal, penetration) {
			continue
		}

		point1, point2 := supportPoints(shape, body.Orientation, body.Transform.Position,
			triangle, identity, zero, point, normal)
		b.handlers.RaiseCollisionDetected(body, massPoint, point1, point2, normal, penetration)
	}
}

// detectSoftSoft tests every overlapping triangle pair of two soft bodies. The contact joins
// the mass points nearest to the hit on each side.
func (b *Base) detectSoftSoft(soft1, soft2 *actor.SoftBody) {
	if !soft1.Bounds().Overlaps(soft2.Bounds()) {
		return
	}

	list := b.acquireList()
	defer b.releaseList(list)

	*list = soft1.Query(*list, soft2)

	var zero mgl64.Vec3
	for k := 0; k+1 < len(*list); k += 2 {
		triangle1 := soft1.Triangles[(*list)[k]]
		triangle2 := soft2.Triangles[(*list)[k+1]]

		point, normal, penetration, ok := xeno.Detect(triangle1, triangle2, identity, identity, zero, zero)
		if !ok {
			continue
		}

		body1 := soft1.Points[nearestTrianglePoint(soft1, triangle1, point)]
		body2 := soft2.Points[nearestTrianglePoint(soft2, triangle2, point)]
		if !b.handlers.RaisePassedNarrowphase(body1, body2, point, normal, penetration) {
			continue
		}

		point1, point2 := supportPoints(triangle1, identity, zero, triangle2, identity, zero, point, normal)
		b.handlers.RaiseCollisionDetected(body1, body2, point1, point2, normal, penetration)
	}
}
