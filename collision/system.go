// Package collision finds the colliding body pairs of a world.
//
// A System keeps the broadphase entities (rigid bodies and soft bodies), reduces them to
// candidate pairs with its own broadphase structure and hands every candidate to the shared
// narrowphase dispatcher in Base. Three implementations exist:
//
//   - Brute tests every pair's bounding boxes. Only useful for small scenes and debugging.
//   - PersistentSAP keeps sorted endpoint lists across steps and updates them incrementally.
//   - Grid hashes the boxes into a uniform grid rebuilt on every Detect.
//
// All of them report the same set of collisions for the same scene.
package collision

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"

	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/parallel"
)

// Debug turns internal invariant violations, such as a body paired with itself, into panics.
// They are skipped silently otherwise.
var Debug = false

// BroadphaseHandler decides whether a pair whose boxes overlap goes to the narrowphase.
type BroadphaseHandler func(entity1, entity2 actor.BroadphaseEntity) bool

// NarrowphaseHandler sees the raw narrowphase result before contact points are computed.
type NarrowphaseHandler func(body1, body2 *actor.RigidBody, point, normal mgl64.Vec3, penetration float64) bool

// CollisionHandler receives a collision. normal points from body2 toward body1, point1 and
// point2 lie on the surfaces of body1 and body2. A negative penetration is a speculative
// contact: the bodies are still apart.
type CollisionHandler func(body1, body2 *actor.RigidBody, point1, point2, normal mgl64.Vec3, penetration float64) bool

// RaycastFilter accepts or rejects a ray hit.
type RaycastFilter func(body *actor.RigidBody, normal mgl64.Vec3, fraction float64) bool

// Handlers holds the listeners of a System. Every listener of a kind runs in registration
// order until one of them returns false.
//
// Registration is not synchronized: register before stepping.
type Handlers struct {
	passedBroadphase  []BroadphaseHandler
	passedNarrowphase []NarrowphaseHandler
	collisionDetected []CollisionHandler
}

func (h *Handlers) OnPassedBroadphase(handler BroadphaseHandler) {
	h.passedBroadphase = append(h.passedBroadphase, handler)
}

func (h *Handlers) OnPassedNarrowphase(handler NarrowphaseHandler) {
	h.passedNarrowphase = append(h.passedNarrowphase, handler)
}

func (h *Handlers) OnCollisionDetected(handler CollisionHandler) {
	h.collisionDetected = append(h.collisionDetected, handler)
}

// RaisePassedBroadphase returns false as soon as a listener vetoes the pair.
func (h *Handlers) RaisePassedBroadphase(entity1, entity2 actor.BroadphaseEntity) bool {
	for _, fn := range h.passedBroadphase {
		if !fn(entity1, entity2) {
			return false
		}
	}
	return true
}

func (h *Handlers) RaisePassedNarrowphase(body1, body2 *actor.RigidBody, point, normal mgl64.Vec3, penetration float64) bool {
	for _, fn := range h.passedNarrowphase {
		if !fn(body1, body2, point, normal, penetration) {
			return false
		}
	}
	return true
}

func (h *Handlers) RaiseCollisionDetected(body1, body2 *actor.RigidBody, point1, point2, normal mgl64.Vec3, penetration float64) {
	for _, fn := range h.collisionDetected {
		if !fn(body1, body2, point1, point2, normal, penetration) {
			return
		}
	}
}

// RaycastHit is the closest hit of a scene raycast.
type RaycastHit struct {
	Body     *actor.RigidBody
	Normal   mgl64.Vec3
	Fraction float64
}

// System is a broadphase together with the shared narrowphase.
type System interface {
	// AddEntity registers a rigid body or a soft body. Adding twice is not detected here;
	// the world guards against it.
	AddEntity(entity actor.BroadphaseEntity)
	// RemoveEntity reports whether the entity was registered.
	RemoveEntity(entity actor.BroadphaseEntity) bool
	Len() int

	// Detect runs broadphase and narrowphase over every entity and raises the handlers for
	// each collision. With multithreaded set, the narrowphase tests run on the thread pool
	// and CollisionDetected listeners may be called concurrently.
	Detect(multithreaded bool)

	// Raycast returns the closest body hit by the ray origin + t*direction, t >= 0.
	Raycast(origin, direction mgl64.Vec3, filter RaycastFilter) (RaycastHit, bool)
	// RaycastBody tests a single body.
	RaycastBody(body *actor.RigidBody, origin, direction mgl64.Vec3) (normal mgl64.Vec3, fraction float64, ok bool)

	Handlers() *Handlers
	SetThreadPool(pool *parallel.ThreadPool)
	EnableSpeculativeContacts(enabled bool)
	SetLogger(logger logr.Logger)
}
