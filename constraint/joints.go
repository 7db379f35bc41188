package constraint

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

// DistanceBehavior is shared with the soft body springs.
type DistanceBehavior = actor.DistanceBehavior

const (
	LimitDistance        = actor.LimitDistance
	LimitMaximumDistance = actor.LimitMaximumDistance
	LimitMinimumDistance = actor.LimitMinimumDistance
)

// pointJoint is the one dimensional constraint along the line between two anchors, shared by
// PointOnPoint and PointPointDistance.
type pointJoint struct {
	Body1, Body2 *actor.RigidBody

	Softness   float64
	BiasFactor float64

	localAnchor1, localAnchor2 mgl64.Vec3
	r1, r2                     mgl64.Vec3

	jacobian           [4]mgl64.Vec3
	effectiveMass      float64
	softnessOverDt     float64
	bias               float64
	accumulatedImpulse float64
}

func newPointJoint(body1, body2 *actor.RigidBody, anchor1, anchor2 mgl64.Vec3, softness, biasFactor float64) pointJoint {
	return pointJoint{
		Body1:        body1,
		Body2:        body2,
		Softness:     softness,
		BiasFactor:   biasFactor,
		localAnchor1: body1.InvOrientation.Mul3x1(anchor1.Sub(body1.Transform.Position)),
		localAnchor2: body2.InvOrientation.Mul3x1(anchor2.Sub(body2.Transform.Position)),
	}
}

func (j *pointJoint) Bodies() (*actor.RigidBody, *actor.RigidBody) {
	return j.Body1, j.Body2
}

func (j *pointJoint) AccumulatedImpulse() float64 {
	return j.accumulatedImpulse
}

// prepare builds the jacobian and returns the current anchor distance.
func (j *pointJoint) prepare(dt float64) float64 {
	j.r1 = j.Body1.Orientation.Mul3x1(j.localAnchor1)
	j.r2 = j.Body2.Orientation.Mul3x1(j.localAnchor2)

	p1 := j.Body1.Transform.Position.Add(j.r1)
	p2 := j.Body2.Transform.Position.Add(j.r2)

	dp := p2.Sub(p1)
	length := dp.Len()

	n := dp
	if length > 1e-12 {
		n = dp.Mul(1 / length)
	}

	j.jacobian[0] = n.Mul(-1)
	j.jacobian[1] = j.r1.Cross(n).Mul(-1)
	j.jacobian[2] = n
	j.jacobian[3] = j.r2.Cross(n)

	k := 0.0
	if !j.Body1.IsStaticOrInactive() {
		k += j.Body1.InverseMass() + j.Body1.InverseInertiaWorld.Mul3x1(j.jacobian[1]).Dot(j.jacobian[1])
	}
	if !j.Body2.IsStaticOrInactive() {
		k += j.Body2.InverseMass() + j.Body2.InverseInertiaWorld.Mul3x1(j.jacobian[3]).Dot(j.jacobian[3])
	}

	j.softnessOverDt = j.Softness / dt
	k += j.softnessOverDt
	j.effectiveMass = 0
	if k > 0 {
		j.effectiveMass = 1.0 / k
	}

	return length
}

// velocityError is J*v.
func (j *pointJoint) velocityError() float64 {
	return j.Body1.Velocity.Dot(j.jacobian[0]) +
		j.Body1.AngularVelocity.Dot(j.jacobian[1]) +
		j.Body2.Velocity.Dot(j.jacobian[2]) +
		j.Body2.AngularVelocity.Dot(j.jacobian[3])
}

func (j *pointJoint) apply(lambda float64) {
	if !j.Body1.IsStaticOrInactive() {
		j.Body1.Velocity = j.Body1.Velocity.Add(j.jacobian[0].Mul(lambda * j.Body1.InverseMass()))
		j.Body1.AngularVelocity = j.Body1.AngularVelocity.Add(j.Body1.InverseInertiaWorld.Mul3x1(j.jacobian[1].Mul(lambda)))
	}
	if !j.Body2.IsStaticOrInactive() {
		j.Body2.Velocity = j.Body2.Velocity.Add(j.jacobian[2].Mul(lambda * j.Body2.InverseMass()))
		j.Body2.AngularVelocity = j.Body2.AngularVelocity.Add(j.Body2.InverseInertiaWorld.Mul3x1(j.jacobian[3].Mul(lambda)))
	}
}

// PointOnPoint pins a point of Body1 onto a point of Body2, a ball and socket joint.
type PointOnPoint struct {
	pointJoint
}

// NewPointOnPoint joins both bodies at anchor, given in world space.
func NewPointOnPoint(body1, body2 *actor.RigidBody, anchor mgl64.Vec3) *PointOnPoint {
	return &PointOnPoint{newPointJoint(body1, body2, anchor, anchor, 0.01, 0.05)}
}

func (c *PointOnPoint) PrepareForIteration(dt float64) {
	length := c.prepare(dt)
	c.bias = length * c.BiasFactor / dt

	c.apply(c.accumulatedImpulse)
}

func (c *PointOnPoint) Iterate() {
	jv := c.velocityError()
	lambda := -c.effectiveMass * (jv + c.bias + c.accumulatedImpulse*c.softnessOverDt)

	c.accumulatedImpulse += lambda
	c.apply(lambda)
}

// PointPointDistance keeps two anchors at a distance, or only under or over it depending on
// Behavior.
type PointPointDistance struct {
	pointJoint

	Distance float64
	Behavior DistanceBehavior

	skip bool
}

// NewPointPointDistance keeps the current distance between anchor1 on body1 and anchor2 on
// body2 (world space).
func NewPointPointDistance(body1, body2 *actor.RigidBody, anchor1, anchor2 mgl64.Vec3) *PointPointDistance {
	return &PointPointDistance{
		pointJoint: newPointJoint(body1, body2, anchor1, anchor2, 0.01, 0.1),
		Distance:   anchor2.Sub(anchor1).Len(),
	}
}

func (c *PointPointDistance) PrepareForIteration(dt float64) {
	length := c.prepare(dt)
	delta := length - c.Distance

	switch {
	case c.Behavior == LimitMaximumDistance && delta <= 0:
		c.skip = true
	case c.Behavior == LimitMinimumDistance && delta >= 0:
		c.skip = true
	default:
		c.skip = false
	}
	if c.skip {
		return
	}

	c.bias = delta * c.BiasFactor / dt
	c.apply(c.accumulatedImpulse)
}

func (c *PointPointDistance) Iterate() {
	if c.skip {
		return
	}

	jv := c.velocityError()
	lambda := -c.effectiveMass * (jv + c.bias + c.accumulatedImpulse*c.softnessOverDt)

	previous := c.accumulatedImpulse
	switch c.Behavior {
	case LimitMinimumDistance:
		c.accumulatedImpulse = math.Max(previous+lambda, 0)
	case LimitMaximumDistance:
		c.accumulatedImpulse = math.Min(previous+lambda, 0)
	default:
		c.accumulatedImpulse = previous + lambda
	}

	c.apply(c.accumulatedImpulse - previous)
}

// FixedAngle locks the relative orientation of two bodies to the one they had at creation.
type FixedAngle struct {
	Body1, Body2 *actor.RigidBody

	Softness   float64
	BiasFactor float64

	initialRelative mgl64.Quat

	effectiveMass      mgl64.Mat3
	softnessOverDt     float64
	bias               mgl64.Vec3
	accumulatedImpulse mgl64.Vec3
}

func NewFixedAngle(body1, body2 *actor.RigidBody) *FixedAngle {
	return &FixedAngle{
		Body1:           body1,
		Body2:           body2,
		Softness:        0.0,
		BiasFactor:      0.05,
		initialRelative: relativeRotation(body1, body2),
	}
}

func relativeRotation(body1, body2 *actor.RigidBody) mgl64.Quat {
	return body1.Transform.Rotation.Normalize().Mul(body2.Transform.Rotation.Normalize().Conjugate())
}

func (c *FixedAngle) Bodies() (*actor.RigidBody, *actor.RigidBody) {
	return c.Body1, c.Body2
}

func (c *FixedAngle) AccumulatedImpulse() mgl64.Vec3 {
	return c.accumulatedImpulse
}

// angularError is the world space rotation vector by which body1 turned away from its rest
// orientation relative to body2.
func (c *FixedAngle) angularError() mgl64.Vec3 {
	q := relativeRotation(c.Body1, c.Body2).Mul(c.initialRelative.Conjugate())
	if q.W < 0 {
		q = q.Scale(-1)
	}

	s := q.V.Len()
	if s < 1e-12 {
		return q.V.Mul(2)
	}
	angle := 2 * math.Atan2(s, q.W)
	return q.V.Mul(angle / s)
}

func (c *FixedAngle) PrepareForIteration(dt float64) {
	var k mgl64.Mat3
	if !c.Body1.IsStaticOrInactive() {
		k = k.Add(c.Body1.InverseInertiaWorld)
	}
	if !c.Body2.IsStaticOrInactive() {
		k = k.Add(c.Body2.InverseInertiaWorld)
	}

	c.softnessOverDt = c.Softness / dt
	k = k.Add(mgl64.Ident3().Mul(c.softnessOverDt))

	c.effectiveMass = mgl64.Mat3{}
	if math.Abs(k.Det()) > 1e-12 {
		c.effectiveMass = k.Inv()
	}

	c.bias = c.angularError().Mul(c.BiasFactor / dt)

	c.apply(c.accumulatedImpulse)
}

func (c *FixedAngle) Iterate() {
	jv := c.Body1.AngularVelocity.Sub(c.Body2.AngularVelocity)
	softness := c.accumulatedImpulse.Mul(c.softnessOverDt)

	lambda := c.effectiveMass.Mul3x1(jv.Add(c.bias).Add(softness)).Mul(-1)

	c.accumulatedImpulse = c.accumulatedImpulse.Add(lambda)
	c.apply(lambda)
}

func (c *FixedAngle) apply(impulse mgl64.Vec3) {
	if !c.Body1.IsStaticOrInactive() {
		c.Body1.AngularVelocity = c.Body1.AngularVelocity.Add(c.Body1.InverseInertiaWorld.Mul3x1(impulse))
	}
	if !c.Body2.IsStaticOrInactive() {
		c.Body2.AngularVelocity = c.Body2.AngularVelocity.Sub(c.Body2.InverseInertiaWorld.Mul3x1(impulse))
	}
}

var (
	_ Constraint = (*PointOnPoint)(nil)
	_ Constraint = (*PointPointDistance)(nil)
	_ Constraint = (*FixedAngle)(nil)
	_ Constraint = (*actor.Spring)(nil)
	_ Constraint = (*Arbiter)(nil)
)
