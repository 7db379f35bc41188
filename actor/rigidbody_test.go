package actor

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func createBoxBody(position mgl64.Vec3, bodyType BodyType) *RigidBody {
	transform := Transform{Position: position, Rotation: mgl64.QuatIdent()}
	return NewRigidBody(transform, &Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}}, bodyType, 1.0)
}

// =============================================================================
// NewRigidBody Tests
// =============================================================================

func TestNewRigidBody(t *testing.T) {
	tests := []struct {
		name        string
		bodyType    BodyType
		wantInvMass float64
	}{
		{"dynamic", BodyTypeDynamic, 1.0},
		{"static", BodyTypeStatic, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := createBoxBody(mgl64.Vec3{1, 2, 3}, tt.bodyType)

			if rb.InverseMass() != tt.wantInvMass {
				t.Errorf("InverseMass = %v, want %v", rb.InverseMass(), tt.wantInvMass)
			}
			if !rb.AllowDeactivation || !rb.AffectedByGravity || rb.IsSleeping {
				t.Errorf("unexpected defaults: %+v", rb)
			}
			if !rb.BoundingBox.ContainsPoint(mgl64.Vec3{1, 2, 3}) {
				t.Errorf("bounding box %+v should surround the position", rb.BoundingBox)
			}
			if tt.bodyType == BodyTypeStatic && rb.InverseInertiaWorld != (mgl64.Mat3{}) {
				t.Error("static body must have zero inverse inertia")
			}
		})
	}
}

func TestNewRigidBody_ZeroRotationIsIdentity(t *testing.T) {
	rb := NewRigidBody(Transform{}, &Sphere{Radius: 1}, BodyTypeDynamic, 1)

	if rb.Orientation != mgl64.Ident3() {
		t.Errorf("Orientation = %v, want identity", rb.Orientation)
	}
}

func TestRigidBody_SetMassScalesInertia(t *testing.T) {
	rb := createBoxBody(mgl64.Vec3{}, BodyTypeDynamic)
	before := rb.InertiaLocal.At(0, 0)

	rb.SetMass(4)

	if rb.Mass() != 4 || rb.InverseMass() != 0.25 {
		t.Fatalf("mass = %v inverse = %v", rb.Mass(), rb.InverseMass())
	}
	if math.Abs(rb.InertiaLocal.At(0, 0)-4*before) > 1e-12 {
		t.Errorf("inertia = %v, want %v", rb.InertiaLocal.At(0, 0), 4*before)
	}
}

// =============================================================================
// Activation Tests
// =============================================================================

func TestRigidBody_SetActive(t *testing.T) {
	rb := createBoxBody(mgl64.Vec3{}, BodyTypeDynamic)
	rb.Velocity = mgl64.Vec3{1, 0, 0}
	rb.AngularVelocity = mgl64.Vec3{0, 1, 0}

	rb.SetActive(false)
	if !rb.IsSleeping || rb.Velocity != (mgl64.Vec3{}) || rb.AngularVelocity != (mgl64.Vec3{}) {
		t.Fatalf("sleeping body must have zero velocity, got %v %v", rb.Velocity, rb.AngularVelocity)
	}
	if !math.IsInf(rb.SleepTimer, 1) {
		t.Errorf("SleepTimer = %v, want +Inf", rb.SleepTimer)
	}

	rb.SetActive(true)
	if rb.IsSleeping || rb.SleepTimer != 0 {
		t.Errorf("woken body: sleeping=%v timer=%v", rb.IsSleeping, rb.SleepTimer)
	}
}

func TestRigidBody_ApplyImpulseWakes(t *testing.T) {
	rb := createBoxBody(mgl64.Vec3{}, BodyTypeDynamic)
	rb.SetActive(false)

	rb.ApplyImpulse(mgl64.Vec3{0, 2, 0})

	if rb.IsSleeping {
		t.Error("impulse should wake the body")
	}
	if rb.Velocity != (mgl64.Vec3{0, 2, 0}) {
		t.Errorf("Velocity = %v, want (0,2,0)", rb.Velocity)
	}
}

func TestRigidBody_ApplyImpulseAtSpins(t *testing.T) {
	rb := createBoxBody(mgl64.Vec3{}, BodyTypeDynamic)

	rb.ApplyImpulseAt(mgl64.Vec3{0, 1, 0}, mgl64.Vec3{0.5, 0, 0})

	if rb.AngularVelocity.Z() <= 0 {
		t.Errorf("impulse off center should spin around +Z, got %v", rb.AngularVelocity)
	}
}

func TestRigidBody_StaticIgnoresImpulses(t *testing.T) {
	rb := createBoxBody(mgl64.Vec3{}, BodyTypeStatic)

	rb.ApplyImpulse(mgl64.Vec3{1, 1, 1})
	rb.AddForce(mgl64.Vec3{1, 1, 1})

	if rb.Velocity != (mgl64.Vec3{}) || rb.Force() != (mgl64.Vec3{}) {
		t.Error("static body must not react")
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestRigidBody_IntegrateForces(t *testing.T) {
	rb := createBoxBody(mgl64.Vec3{}, BodyTypeDynamic)
	rb.AddForce(mgl64.Vec3{10, 0, 0})

	rb.IntegrateForces(0.5, mgl64.Vec3{0, -10, 0})

	if !vecNear(rb.Velocity, mgl64.Vec3{5, -5, 0}, 1e-12) {
		t.Errorf("Velocity = %v, want (5,-5,0)", rb.Velocity)
	}
	if rb.Force() != (mgl64.Vec3{}) {
		t.Error("accumulators should be cleared")
	}
}

func TestRigidBody_IntegrateForcesWithoutGravity(t *testing.T) {
	rb := createBoxBody(mgl64.Vec3{}, BodyTypeDynamic)
	rb.AffectedByGravity = false

	rb.IntegrateForces(1, mgl64.Vec3{0, -10, 0})

	if rb.Velocity != (mgl64.Vec3{}) {
		t.Errorf("Velocity = %v, want zero", rb.Velocity)
	}
}

func TestRigidBody_IntegrateRotation(t *testing.T) {
	tests := []struct {
		name  string
		omega float64
	}{
		{"fast", math.Pi},
		{"slow taylor branch", 0.0005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := createBoxBody(mgl64.Vec3{}, BodyTypeDynamic)
			rb.AngularVelocity = mgl64.Vec3{0, tt.omega, 0}

			rb.Integrate(1, 1, 1, false)

			want := mgl64.QuatRotate(tt.omega, mgl64.Vec3{0, 1, 0})
			if !rb.Transform.Rotation.ApproxEqualThreshold(want, 1e-6) {
				t.Errorf("Rotation = %v, want %v", rb.Transform.Rotation, want)
			}
			if math.Abs(rb.Transform.Rotation.Len()-1) > 1e-9 {
				t.Errorf("rotation should stay normalized")
			}
		})
	}
}

func TestRigidBody_IntegrateDampingAndSweep(t *testing.T) {
	rb := createBoxBody(mgl64.Vec3{}, BodyTypeDynamic)
	rb.Velocity = mgl64.Vec3{2, 0, 0}

	rb.Integrate(0.5, 0.5, 1, true)

	if !vecNear(rb.Transform.Position, mgl64.Vec3{1, 0, 0}, 1e-12) {
		t.Errorf("Position = %v, want (1,0,0)", rb.Transform.Position)
	}
	if !vecNear(rb.Velocity, mgl64.Vec3{1, 0, 0}, 1e-12) {
		t.Errorf("damped velocity = %v, want (1,0,0)", rb.Velocity)
	}
	// swept with the damped velocity
	if math.Abs(rb.BoundingBox.Max.X()-2.0) > 1e-12 || math.Abs(rb.BoundingBox.Min.X()-0.5) > 1e-12 {
		t.Errorf("swept box = %+v", rb.BoundingBox)
	}
}

func TestRigidBody_SupportWorld(t *testing.T) {
	rb := NewRigidBody(Transform{
		Position: mgl64.Vec3{10, 0, 0},
		Rotation: mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1}),
	}, &Box{HalfExtents: mgl64.Vec3{2, 1, 1}}, BodyTypeDynamic, 1)

	got := rb.SupportWorld(mgl64.Vec3{0, 1, 0})
	if math.Abs(got.Y()-2) > 1e-9 {
		t.Errorf("SupportWorld = %v, want y=2", got)
	}
}
