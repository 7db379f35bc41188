package actor

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyType represents the type of rigid body
type BodyType int

const (
	// BodyTypeDynamic bodies are affected by forces, gravity, and collisions
	// They have finite mass and can move freely
	BodyTypeDynamic BodyType = iota

	// BodyTypeStatic bodies are immovable and have infinite mass
	// They are not affected by forces or gravity (e.g., ground, walls)
	BodyTypeStatic
)

// DampingType selects which velocities the world damps after integration.
type DampingType int

const (
	DampingNone    DampingType = 0
	DampingLinear  DampingType = 1 << 0
	DampingAngular DampingType = 1 << 1
	DampingAll                 = DampingLinear | DampingAngular
)

type Material struct {
	Density     float64
	Restitution float64 // 0= no rebound, 1= perfect restitution

	StaticFriction  float64
	DynamicFriction float64
}

// DefaultMaterial is used by NewRigidBody.
func DefaultMaterial(density float64) Material {
	return Material{
		Density:         density,
		Restitution:     0.0,
		StaticFriction:  0.6,
		DynamicFriction: 0.3,
	}
}

// Link is anything joining two bodies in the island graph: arbiters and constraints.
// One of the two bodies may be nil for single-body constraints.
type Link interface {
	Bodies() (*RigidBody, *RigidBody)
}

// Links is the body side of the island graph. Connections holds one entry per link to a
// non-static body, so a body connected twice appears twice.
type Links struct {
	Connections []*RigidBody
	Arbiters    []Link
	Constraints []Link
}

// BroadphaseEntity is the closed set of things a collision system can hold: *RigidBody and
// *SoftBody.
type BroadphaseEntity interface {
	Bounds() AABB
	IsStaticOrInactive() bool
	BroadphaseTag() int
	SetBroadphaseTag(tag int)

	broadphaseEntity()
}

// StepHook is called on a body right before or after each world step.
type StepHook func(body *RigidBody, dt float64)

// RigidBody represents a rigid body in the physics simulation
type RigidBody struct {
	// Spatial properties
	Transform      Transform
	Orientation    mgl64.Mat3 // cached from Transform.Rotation by Update
	InvOrientation mgl64.Mat3

	// Linear motion
	Velocity mgl64.Vec3 // Linear velocity (m/s)

	// Angular motion
	AngularVelocity mgl64.Vec3 // rad/s

	InertiaLocal        mgl64.Mat3
	InverseInertiaLocal mgl64.Mat3
	InverseInertiaWorld mgl64.Mat3

	mass        float64
	inverseMass float64

	accumulatedForce  mgl64.Vec3
	accumulatedTorque mgl64.Vec3

	// IsSleeping is true for deactivated bodies. SleepTimer is the time spent under the
	// velocity thresholds, +Inf while sleeping.
	IsSleeping bool
	SleepTimer float64

	AllowDeactivation         bool
	AffectedByGravity         bool
	EnableSpeculativeContacts bool
	IsParticle                bool
	Damping                   DampingType

	// Physical properties
	Material Material
	BodyType BodyType // Dynamic or Static

	// Collision shape
	Shape Shape

	BoundingBox    AABB       // world space, swept when speculative contacts are on
	SweptDirection mgl64.Vec3 // displacement predicted over the last step

	Links    Links
	IslandID int // 0 = no island

	PreStep  StepHook
	PostStep StepHook
	UserData any

	id            uint64
	broadphaseTag int
	softBody      *SoftBody
}

var nextBodyID atomic.Uint64

// ID is unique per body for the life of the process. It orders body pairs.
func (rb *RigidBody) ID() uint64 {
	return rb.id
}

// NewRigidBody creates a new rigid body with the given properties
// density is used to calculate mass for dynamic bodies (ignored for static)
func NewRigidBody(transform Transform, shape Shape, bodyType BodyType, density float64) *RigidBody {
	if transform.Rotation.Len() < 1e-12 {
		transform.Rotation = mgl64.QuatIdent()
	}

	rb := &RigidBody{
		id:                nextBodyID.Add(1),
		Transform:         transform,
		Shape:             shape,
		BodyType:          bodyType,
		AllowDeactivation: true,
		AffectedByGravity: true,
		Damping:           DampingAll,
		Material:          DefaultMaterial(density),
	}

	// Calculate mass data based on body type
	if bodyType == BodyTypeStatic {
		// Static bodies have infinite mass
		rb.Material.Density = 0
		rb.mass = math.Inf(1)
		rb.inverseMass = 0
	} else {
		rb.mass = shape.ComputeMass(density)
		rb.inverseMass = 1.0 / rb.mass
		rb.InertiaLocal = shape.ComputeInertia(rb.mass)
		rb.InverseInertiaLocal = rb.InertiaLocal.Inv()
	}

	rb.Update()

	return rb
}

func (rb *RigidBody) broadphaseEntity() {}

func (rb *RigidBody) Bounds() AABB {
	return rb.BoundingBox
}

func (rb *RigidBody) BroadphaseTag() int {
	return rb.broadphaseTag
}

func (rb *RigidBody) SetBroadphaseTag(tag int) {
	rb.broadphaseTag = tag
}

// SoftBody returns the soft body this body is a mass point of, or nil.
func (rb *RigidBody) SoftBody() *SoftBody {
	return rb.softBody
}

func (rb *RigidBody) IsStatic() bool {
	return rb.BodyType == BodyTypeStatic
}

func (rb *RigidBody) IsActive() bool {
	return !rb.IsSleeping
}

// IsStaticOrInactive tells whether the body behaves as immovable for the solver.
func (rb *RigidBody) IsStaticOrInactive() bool {
	return rb.BodyType == BodyTypeStatic || rb.IsSleeping
}

// SetActive wakes or puts the body to sleep. A sleeping body has exactly zero velocity.
func (rb *RigidBody) SetActive(active bool) {
	if active {
		if rb.IsSleeping {
			rb.SleepTimer = 0.0
		}
		rb.IsSleeping = false
		return
	}

	if !rb.IsSleeping {
		rb.SleepTimer = math.Inf(1)
		rb.Velocity = mgl64.Vec3{}
		rb.AngularVelocity = mgl64.Vec3{}
	}
	rb.IsSleeping = true
}

func (rb *RigidBody) Mass() float64 {
	return rb.mass
}

func (rb *RigidBody) InverseMass() float64 {
	return rb.inverseMass
}

// SetMass changes the mass and scales the inertia tensor accordingly.
func (rb *RigidBody) SetMass(mass float64) {
	if rb.BodyType == BodyTypeStatic || mass <= 0 {
		return
	}

	if rb.mass > 0 && !math.IsInf(rb.mass, 1) {
		rb.InertiaLocal = rb.InertiaLocal.Mul(mass / rb.mass)
	} else {
		rb.InertiaLocal = rb.Shape.ComputeInertia(mass)
	}
	rb.InverseInertiaLocal = rb.InertiaLocal.Inv()
	rb.mass = mass
	rb.inverseMass = 1.0 / mass
	rb.Update()
}

// Update refreshes the cached orientation matrices, world inverse inertia and bounding box
// from the current transform.
func (rb *RigidBody) Update() {
	rb.Orientation = rb.Transform.Orientation()
	rb.InvOrientation = rb.Orientation.Transpose()

	if rb.IsParticle {
		rb.InertiaLocal = mgl64.Mat3{}
		rb.InverseInertiaLocal = mgl64.Mat3{}
		rb.InverseInertiaWorld = mgl64.Mat3{}
		rb.AngularVelocity = mgl64.Vec3{}
	} else if rb.BodyType != BodyTypeStatic {
		// I_world^(-1) = R * I_local^(-1) * R^T
		rb.InverseInertiaWorld = rb.Orientation.Mul3(rb.InverseInertiaLocal).Mul3(rb.InvOrientation)
	}

	box := rb.Shape.BoundingBox(rb.Orientation)
	rb.BoundingBox = AABB{
		Min: box.Min.Add(rb.Transform.Position),
		Max: box.Max.Add(rb.Transform.Position),
	}
}

// ApplyImpulse changes the linear velocity and wakes the body.
func (rb *RigidBody) ApplyImpulse(impulse mgl64.Vec3) {
	if rb.BodyType == BodyTypeStatic {
		return
	}
	rb.SetActive(true)
	rb.Velocity = rb.Velocity.Add(impulse.Mul(rb.inverseMass))
}

// ApplyImpulseAt applies impulse at relativePosition (from the body center) and wakes the body.
func (rb *RigidBody) ApplyImpulseAt(impulse, relativePosition mgl64.Vec3) {
	if rb.BodyType == BodyTypeStatic {
		return
	}
	rb.SetActive(true)
	rb.Velocity = rb.Velocity.Add(impulse.Mul(rb.inverseMass))
	rb.AngularVelocity = rb.AngularVelocity.Add(rb.InverseInertiaWorld.Mul3x1(relativePosition.Cross(impulse)))
}

// AddForce accumulates a force (N) for the next step.
func (rb *RigidBody) AddForce(force mgl64.Vec3) {
	if rb.BodyType != BodyTypeStatic {
		rb.SetActive(true)

		rb.accumulatedForce = rb.accumulatedForce.Add(force)
	}
}

// AddForceAt accumulates a force applied at a world position, adding the matching torque.
func (rb *RigidBody) AddForceAt(force, position mgl64.Vec3) {
	rb.AddForce(force)
	rb.AddTorque(position.Sub(rb.Transform.Position).Cross(force))
}

// AddTorque accumulates a torque (N⋅m) for the next step.
func (rb *RigidBody) AddTorque(torque mgl64.Vec3) {
	if rb.BodyType != BodyTypeStatic {
		rb.SetActive(true)

		rb.accumulatedTorque = rb.accumulatedTorque.Add(torque)
	}
}

func (rb *RigidBody) Force() mgl64.Vec3 {
	return rb.accumulatedForce
}

func (rb *RigidBody) Torque() mgl64.Vec3 {
	return rb.accumulatedTorque
}

func (rb *RigidBody) ClearForces() {
	rb.accumulatedForce = mgl64.Vec3{0, 0, 0}
	rb.accumulatedTorque = mgl64.Vec3{0, 0, 0}
}

// IntegrateForces turns the accumulated force, torque and gravity into velocity, then clears
// the accumulators. Static and sleeping bodies only get their accumulators cleared.
func (rb *RigidBody) IntegrateForces(dt float64, gravity mgl64.Vec3) {
	if rb.BodyType != BodyTypeStatic && !rb.IsSleeping {
		rb.Velocity = rb.Velocity.Add(rb.accumulatedForce.Mul(rb.inverseMass * dt))

		if !rb.IsParticle {
			rb.AngularVelocity = rb.AngularVelocity.Add(rb.InverseInertiaWorld.Mul3x1(rb.accumulatedTorque).Mul(dt))
		}

		if rb.AffectedByGravity {
			rb.Velocity = rb.Velocity.Add(gravity.Mul(dt))
		}
	}

	rb.ClearForces()
}

// Integrate advances position and orientation by dt, applies the damping factors and refreshes
// the cached state.
func (rb *RigidBody) Integrate(dt, linearDamping, angularDamping float64, speculative bool) {
	if rb.BodyType == BodyTypeStatic || rb.IsSleeping {
		return
	}

	// ========== LINEAR ==========
	rb.Transform.Position = rb.Transform.Position.Add(rb.Velocity.Mul(dt))

	// ========== ANGULAR (exponential map) ==========
	if !rb.IsParticle {
		angle := rb.AngularVelocity.Len()

		var axis mgl64.Vec3
		if angle < 0.001 {
			// Taylor expansion of sin(angle*dt/2)/angle
			axis = rb.AngularVelocity.Mul(0.5*dt - (dt*dt*dt)*0.020833333333*angle*angle)
		} else {
			axis = rb.AngularVelocity.Mul(math.Sin(0.5*angle*dt) / angle)
		}

		delta := mgl64.Quat{W: math.Cos(angle * dt * 0.5), V: axis}
		rb.Transform.Rotation = delta.Mul(rb.Transform.Rotation).Normalize()
	}

	// ========== DAMPING ==========
	if rb.Damping&DampingLinear != 0 {
		rb.Velocity = rb.Velocity.Mul(linearDamping)
	}
	if rb.Damping&DampingAngular != 0 {
		rb.AngularVelocity = rb.AngularVelocity.Mul(angularDamping)
	}

	rb.Update()

	if speculative || rb.EnableSpeculativeContacts {
		rb.SweptExpandBoundingBox(dt)
	}
}

// SweptExpandBoundingBox grows the bounding box along the displacement of the next dt.
func (rb *RigidBody) SweptExpandBoundingBox(dt float64) {
	rb.SweptDirection = rb.Velocity.Mul(dt)

	for i := 0; i < 3; i++ {
		if rb.SweptDirection[i] < 0 {
			rb.BoundingBox.Min[i] += rb.SweptDirection[i]
		} else {
			rb.BoundingBox.Max[i] += rb.SweptDirection[i]
		}
	}
}

// SupportWorld is the support mapping of the shape placed at the body transform.
func (rb *RigidBody) SupportWorld(direction mgl64.Vec3) mgl64.Vec3 {
	localDirection := rb.InvOrientation.Mul3x1(direction)
	localSupport := rb.Shape.SupportMapping(localDirection)
	return rb.Orientation.Mul3x1(localSupport).Add(rb.Transform.Position)
}

// GetInertiaWorld returns R * I_local * R^T
func (rb *RigidBody) GetInertiaWorld() mgl64.Mat3 {
	return rb.Orientation.Mul3(rb.InertiaLocal).Mul3(rb.InvOrientation)
}

// KineticEnergy returns the linear plus rotational kinetic energy.
func (rb *RigidBody) KineticEnergy() float64 {
	if rb.BodyType == BodyTypeStatic {
		return 0
	}
	linear := 0.5 * rb.mass * rb.Velocity.Dot(rb.Velocity)
	angular := 0.5 * rb.AngularVelocity.Dot(rb.GetInertiaWorld().Mul3x1(rb.AngularVelocity))
	return linear + angular
}
