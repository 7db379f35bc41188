package constraint

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

// Contact is one point of a contact manifold, solved with sequential impulses.
//
// The normal points from Body1 toward Body2. A positive penetration means the surfaces
// overlap, a negative one is a speculative contact: the bodies are apart but may touch during
// the next step.
type Contact struct {
	Body1, Body2 *actor.RigidBody

	Normal  mgl64.Vec3
	Tangent mgl64.Vec3

	// surface points in world space, refreshed by UpdatePosition
	Position1, Position2 mgl64.Vec3
	// lever arms from each body's center, world space
	RelativePosition1, RelativePosition2 mgl64.Vec3
	// the same points in body space
	localPosition1, localPosition2 mgl64.Vec3

	Penetration float64

	AccumulatedNormalImpulse  float64
	AccumulatedTangentImpulse float64

	Restitution     float64
	StaticFriction  float64
	DynamicFriction float64
	friction        float64

	massNormal, massTangent float64
	restitutionBias         float64
	speculativeVelocity     float64
	lostSpeculativeBounce   float64

	treatBody1AsStatic, treatBody2AsStatic bool
	newContact                             bool
	lastTimestep                           float64

	settings *ContactSettings
}

func resetContact(c *Contact) {
	*c = Contact{}
}

// Initialize places the contact. A new contact starts with zero impulses, an updated one keeps
// its accumulated impulses for warm starting.
func (c *Contact) Initialize(body1, body2 *actor.RigidBody, point1, point2, normal mgl64.Vec3,
	penetration float64, newContact bool, settings *ContactSettings) {

	c.Body1 = body1
	c.Body2 = body2
	c.Normal = normal
	c.Penetration = penetration
	c.settings = settings

	c.Position1 = point1
	c.Position2 = point2
	c.RelativePosition1 = point1.Sub(body1.Transform.Position)
	c.RelativePosition2 = point2.Sub(body2.Transform.Position)
	c.localPosition1 = body1.InvOrientation.Mul3x1(c.RelativePosition1)
	c.localPosition2 = body2.InvOrientation.Mul3x1(c.RelativePosition2)

	c.newContact = newContact
	if newContact {
		c.treatBody1AsStatic = body1.IsStaticOrInactive()
		c.treatBody2AsStatic = body2.IsStaticOrInactive()

		c.AccumulatedNormalImpulse = 0
		c.AccumulatedTangentImpulse = 0
		c.lostSpeculativeBounce = 0
		c.lastTimestep = math.Inf(1)

		c.Restitution, c.StaticFriction, c.DynamicFriction = settings.MaterialCoefficientMixing().MixMaterials(body1.Material, body2.Material)
	}
}

// IsNew tells whether the contact has not been through a solver step yet.
func (c *Contact) IsNew() bool {
	return c.newContact
}

// UpdatePosition moves the cached surface points with their bodies and recomputes the
// penetration along the unchanged normal.
func (c *Contact) UpdatePosition() {
	c.RelativePosition1 = c.Body1.Orientation.Mul3x1(c.localPosition1)
	c.RelativePosition2 = c.Body2.Orientation.Mul3x1(c.localPosition2)
	c.Position1 = c.RelativePosition1.Add(c.Body1.Transform.Position)
	c.Position2 = c.RelativePosition2.Add(c.Body2.Transform.Position)

	c.Penetration = c.Position1.Sub(c.Position2).Dot(c.Normal)
}

// relativeVelocity is the velocity of the body2 point relative to the body1 point.
func (c *Contact) relativeVelocity() mgl64.Vec3 {
	return pointVelocity(c.Body2, c.RelativePosition2).Sub(pointVelocity(c.Body1, c.RelativePosition1))
}

// effectiveMass along direction, static or sleeping sides contributing nothing.
func (c *Contact) effectiveMass(direction mgl64.Vec3) float64 {
	k := 0.0
	if !c.treatBody1AsStatic {
		k += c.Body1.InverseMass() + angularMass(c.Body1, c.RelativePosition1, direction)
	}
	if !c.treatBody2AsStatic {
		k += c.Body2.InverseMass() + angularMass(c.Body2, c.RelativePosition2, direction)
	}
	if k <= 0 {
		return 0
	}
	return 1.0 / k
}

// PrepareForIteration computes the effective masses and bias targets and applies the warm
// start impulse. It runs once per step before the solver iterations.
func (c *Contact) PrepareForIteration(dt float64) {
	c.treatBody1AsStatic = c.Body1.IsStaticOrInactive()
	c.treatBody2AsStatic = c.Body2.IsStaticOrInactive()

	dv := c.relativeVelocity()

	// ========== EFFECTIVE MASSES ==========
	c.massNormal = c.effectiveMass(c.Normal)

	c.Tangent = dv.Sub(c.Normal.Mul(c.Normal.Dot(dv)))
	if l := c.Tangent.LenSqr(); l > 0 {
		c.Tangent = c.Tangent.Mul(1 / math.Sqrt(l))
	}
	c.massTangent = c.effectiveMass(c.Tangent)

	// ========== BIAS ==========
	c.restitutionBias = c.lostSpeculativeBounce
	c.speculativeVelocity = 0

	relativeNormalVelocity := c.Normal.Dot(dv)

	if c.Penetration > -c.settings.allowedPenetration {
		c.restitutionBias = c.settings.biasFactor * (1.0 / dt) * math.Max(0, c.Penetration-c.settings.allowedPenetration)
		c.restitutionBias = math.Max(0, math.Min(c.restitutionBias, c.settings.maximumBias))
	}

	// ========== WARM START SCALING ==========
	// zero on the first step: lastTimestep starts at +Inf
	ratio := dt / c.lastTimestep
	c.AccumulatedNormalImpulse *= ratio
	c.AccumulatedTangentImpulse *= ratio

	// static friction while the tangential impulse needed to stop sliding stays in the cone
	tangentImpulse := c.massTangent * -c.Tangent.Dot(dv)
	if tangentImpulse < -c.StaticFriction*c.AccumulatedNormalImpulse {
		c.friction = c.DynamicFriction
	} else {
		c.friction = c.StaticFriction
	}

	// restitution only makes sense on the first impact
	if relativeNormalVelocity < -1.0 && c.newContact {
		c.restitutionBias = math.Max(-c.Restitution*relativeNormalVelocity, c.restitutionBias)
	}

	// ========== SPECULATIVE CONTACT ==========
	if c.Penetration < -c.settings.allowedPenetration {
		c.speculativeVelocity = c.Penetration / dt
		c.lostSpeculativeBounce = c.restitutionBias
		c.restitutionBias = 0
	} else {
		c.lostSpeculativeBounce = 0
	}

	impulse := c.Normal.Mul(c.AccumulatedNormalImpulse).Add(c.Tangent.Mul(c.AccumulatedTangentImpulse))
	c.applyImpulse(impulse)

	c.lastTimestep = dt
	c.newContact = false
}

// Iterate runs one solver iteration: a non attractive normal impulse, then a friction impulse
// inside the Coulomb cone of the accumulated normal impulse.
func (c *Contact) Iterate() {
	if c.treatBody1AsStatic && c.treatBody2AsStatic {
		return
	}

	dv := c.relativeVelocity()
	if dv.LenSqr() < c.settings.minimumVelocity*c.settings.minimumVelocity {
		return
	}

	vn := c.Normal.Dot(dv)
	normalImpulse := c.massNormal * (-vn + c.restitutionBias + c.speculativeVelocity)

	oldNormalImpulse := c.AccumulatedNormalImpulse
	c.AccumulatedNormalImpulse = math.Max(oldNormalImpulse+normalImpulse, 0)
	normalImpulse = c.AccumulatedNormalImpulse - oldNormalImpulse

	vt := c.Tangent.Dot(dv)
	maxTangentImpulse := c.friction * c.AccumulatedNormalImpulse
	tangentImpulse := c.massTangent * -vt

	oldTangentImpulse := c.AccumulatedTangentImpulse
	c.AccumulatedTangentImpulse = math.Max(-maxTangentImpulse, math.Min(oldTangentImpulse+tangentImpulse, maxTangentImpulse))
	tangentImpulse = c.AccumulatedTangentImpulse - oldTangentImpulse

	c.applyImpulse(c.Normal.Mul(normalImpulse).Add(c.Tangent.Mul(tangentImpulse)))
}

func (c *Contact) applyImpulse(impulse mgl64.Vec3) {
	if !c.treatBody1AsStatic {
		c.Body1.Velocity = c.Body1.Velocity.Sub(impulse.Mul(c.Body1.InverseMass()))
		c.Body1.AngularVelocity = c.Body1.AngularVelocity.Sub(c.Body1.InverseInertiaWorld.Mul3x1(c.RelativePosition1.Cross(impulse)))
	}
	if !c.treatBody2AsStatic {
		c.Body2.Velocity = c.Body2.Velocity.Add(impulse.Mul(c.Body2.InverseMass()))
		c.Body2.AngularVelocity = c.Body2.AngularVelocity.Add(c.Body2.InverseInertiaWorld.Mul3x1(c.RelativePosition2.Cross(impulse)))
	}
}

// AppliedNormalImpulse is the accumulated normal impulse of the last step.
func (c *Contact) AppliedNormalImpulse() float64 {
	return c.AccumulatedNormalImpulse
}
