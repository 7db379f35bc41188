package actor

import "github.com/go-gl/mathgl/mgl64"

// Transform represents a position and an orientation in 3D space
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position: mgl64.Vec3{0, 0, 0},
		Rotation: mgl64.QuatIdent(),
	}
}

// Orientation returns the rotation as a 3x3 matrix. A zero quaternion is treated as the
// identity so that literal Transform{Position: p} values stay usable.
func (t Transform) Orientation() mgl64.Mat3 {
	if t.Rotation.Len() < 1e-12 {
		return mgl64.Ident3()
	}
	return t.Rotation.Normalize().Mat4().Mat3()
}
