package constraint

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/akmonengine/jitter/actor"
)

// ErrInvalidContactSetting is returned by the ContactSettings setters.
var ErrInvalidContactSetting = errors.New("constraint: invalid contact setting")

// Constraint is anything the sequential impulse solver iterates: joints, soft body springs.
// PrepareForIteration runs once per step, Iterate once per solver iteration.
type Constraint interface {
	actor.Link
	PrepareForIteration(dt float64)
	Iterate()
}

// MaterialCoefficientMixing tells how the coefficients of two materials are combined.
type MaterialCoefficientMixing int

const (
	MixingUseAverage MaterialCoefficientMixing = iota
	MixingTakeMinimum
	MixingTakeMaximum
)

func (m MaterialCoefficientMixing) String() string {
	switch m {
	case MixingTakeMinimum:
		return "minimum"
	case MixingTakeMaximum:
		return "maximum"
	default:
		return "average"
	}
}

// ParseMaterialCoefficientMixing is the inverse of String.
func ParseMaterialCoefficientMixing(s string) (MaterialCoefficientMixing, error) {
	switch s {
	case "", "average":
		return MixingUseAverage, nil
	case "minimum":
		return MixingTakeMinimum, nil
	case "maximum":
		return MixingTakeMaximum, nil
	}
	return MixingUseAverage, errors.Wrapf(ErrInvalidContactSetting, "unknown material mixing %q", s)
}

func (m MaterialCoefficientMixing) mix(a, b float64) float64 {
	switch m {
	case MixingTakeMinimum:
		return math.Min(a, b)
	case MixingTakeMaximum:
		return math.Max(a, b)
	default:
		return (a + b) / 2.0
	}
}

// MixMaterials combines two materials into restitution, static and dynamic friction.
func (m MaterialCoefficientMixing) MixMaterials(a, b actor.Material) (restitution, staticFriction, dynamicFriction float64) {
	return m.mix(a.Restitution, b.Restitution),
		m.mix(a.StaticFriction, b.StaticFriction),
		m.mix(a.DynamicFriction, b.DynamicFriction)
}

// ContactSettings holds the tuning shared by every contact of a world.
type ContactSettings struct {
	maximumBias        float64
	biasFactor         float64
	minimumVelocity    float64
	allowedPenetration float64
	breakThreshold     float64
	mixing             MaterialCoefficientMixing
}

func DefaultContactSettings() *ContactSettings {
	return &ContactSettings{
		maximumBias:        10.0,
		biasFactor:         0.25,
		minimumVelocity:    0.001,
		allowedPenetration: 0.01,
		breakThreshold:     0.01,
		mixing:             MixingUseAverage,
	}
}

// MaximumBias caps the velocity used to push penetrating bodies apart.
func (s *ContactSettings) MaximumBias() float64 { return s.maximumBias }

func (s *ContactSettings) SetMaximumBias(v float64) error {
	if v < 0 {
		return errors.Wrapf(ErrInvalidContactSetting, "maximum bias %v is negative", v)
	}
	s.maximumBias = v
	return nil
}

// BiasFactor is the Baumgarte factor, the share of the penetration corrected per second.
func (s *ContactSettings) BiasFactor() float64 { return s.biasFactor }

func (s *ContactSettings) SetBiasFactor(v float64) error {
	if v < 0 || v > 1 {
		return errors.Wrapf(ErrInvalidContactSetting, "bias factor %v outside [0, 1]", v)
	}
	s.biasFactor = v
	return nil
}

// MinimumVelocity is the relative velocity under which a contact is not iterated.
func (s *ContactSettings) MinimumVelocity() float64 { return s.minimumVelocity }

func (s *ContactSettings) SetMinimumVelocity(v float64) error {
	if v < 0 {
		return errors.Wrapf(ErrInvalidContactSetting, "minimum velocity %v is negative", v)
	}
	s.minimumVelocity = v
	return nil
}

// AllowedPenetration is the slop left uncorrected.
func (s *ContactSettings) AllowedPenetration() float64 { return s.allowedPenetration }

func (s *ContactSettings) SetAllowedPenetration(v float64) error {
	if v < 0 {
		return errors.Wrapf(ErrInvalidContactSetting, "allowed penetration %v is negative", v)
	}
	s.allowedPenetration = v
	return nil
}

// BreakThreshold is how far a cached contact may separate or drift before it is dropped.
func (s *ContactSettings) BreakThreshold() float64 { return s.breakThreshold }

func (s *ContactSettings) SetBreakThreshold(v float64) error {
	if v < 0 {
		return errors.Wrapf(ErrInvalidContactSetting, "break threshold %v is negative", v)
	}
	s.breakThreshold = v
	return nil
}

func (s *ContactSettings) MaterialCoefficientMixing() MaterialCoefficientMixing { return s.mixing }

func (s *ContactSettings) SetMaterialCoefficientMixing(m MaterialCoefficientMixing) error {
	if m < MixingUseAverage || m > MixingTakeMaximum {
		return errors.Wrapf(ErrInvalidContactSetting, "unknown material mixing %d", m)
	}
	s.mixing = m
	return nil
}

// pointVelocity is v + w x r.
func pointVelocity(body *actor.RigidBody, r mgl64.Vec3) mgl64.Vec3 {
	return body.Velocity.Add(body.AngularVelocity.Cross(r))
}

// angularMass is the rotational part of the effective mass along direction.
func angularMass(body *actor.RigidBody, r, direction mgl64.Vec3) float64 {
	return body.InverseInertiaWorld.Mul3x1(r.Cross(direction)).Cross(r).Dot(direction)
}
