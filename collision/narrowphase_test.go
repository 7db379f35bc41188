package collision

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

type collision struct {
	body1, body2   *actor.RigidBody
	point1, point2 mgl64.Vec3
	normal         mgl64.Vec3
	penetration    float64
}

func recordCollisions(system System) *[]collision {
	var collisions []collision
	system.Handlers().OnCollisionDetected(func(body1, body2 *actor.RigidBody, point1, point2, normal mgl64.Vec3, penetration float64) bool {
		collisions = append(collisions, collision{body1, body2, point1, point2, normal, penetration})
		return true
	})
	return &collisions
}

func flatTerrainBody(height float64) *actor.RigidBody {
	heights := make([][]float64, 5)
	for x := range heights {
		heights[x] = []float64{height, height, height, height, height}
	}
	return actor.NewRigidBody(
		actor.Transform{Rotation: mgl64.QuatIdent()},
		actor.NewTerrainShape(heights, 1, 1),
		actor.BodyTypeStatic,
		0,
	)
}

// =============================================================================
// Rigid Narrowphase Tests
// =============================================================================

func TestDetect_SpherePair(t *testing.T) {
	system := NewBrute()
	collisions := recordCollisions(system)

	body1 := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
	body2 := createSphere(mgl64.Vec3{1.5, 0, 0}, 1, actor.BodyTypeDynamic)
	system.AddEntity(body1)
	system.AddEntity(body2)

	system.Detect(false)

	if len(*collisions) != 1 {
		t.Fatalf("collisions = %d, want 1", len(*collisions))
	}
	c := (*collisions)[0]

	if math.Abs(c.penetration-0.5) > 1e-2 {
		t.Errorf("penetration = %v, want 0.5", c.penetration)
	}
	// normal points from body2 toward body1
	if !c.normal.ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-2) {
		t.Errorf("normal = %v, want (-1, 0, 0)", c.normal)
	}
	// point1 is the deepest point of body1 inside body2 and the other way around
	if !c.point1.ApproxEqualThreshold(mgl64.Vec3{1, 0, 0}, 1e-2) {
		t.Errorf("point1 = %v, want (1, 0, 0)", c.point1)
	}
	if !c.point2.ApproxEqualThreshold(mgl64.Vec3{0.5, 0, 0}, 1e-2) {
		t.Errorf("point2 = %v, want (0.5, 0, 0)", c.point2)
	}
}

func TestFindSupportPoints(t *testing.T) {
	body1 := actor.NewRigidBody(actor.Transform{Rotation: mgl64.QuatIdent()},
		&actor.Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, actor.BodyTypeDynamic, 1)
	body2 := createSphere(mgl64.Vec3{0, 1.8, 0}, 1, actor.BodyTypeDynamic)

	point1, point2 := FindSupportPoints(body1, body2, body1.Shape, body2.Shape,
		mgl64.Vec3{0.3, 0.9, 0}, mgl64.Vec3{0, -1, 0})

	if !point1.ApproxEqualThreshold(mgl64.Vec3{0.3, 1, 0}, 1e-9) {
		t.Errorf("point1 = %v, want (0.3, 1, 0)", point1)
	}
	if !point2.ApproxEqualThreshold(mgl64.Vec3{0.3, 0.8, 0}, 1e-9) {
		t.Errorf("point2 = %v, want (0.3, 0.8, 0)", point2)
	}
}

func TestDetect_Speculative(t *testing.T) {
	const dt = 1.0 / 60.0

	tests := []struct {
		name        string
		speculative bool
		want        int
	}{
		{"disabled", false, 0},
		{"enabled", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system := NewBrute()
			system.EnableSpeculativeContacts(tt.speculative)
			collisions := recordCollisions(system)

			body1 := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
			body2 := createSphere(mgl64.Vec3{2.2, 0, 0}, 1, actor.BodyTypeDynamic)
			body1.Velocity = mgl64.Vec3{10, 0, 0}
			body2.Velocity = mgl64.Vec3{-10, 0, 0}
			body1.SweptExpandBoundingBox(dt)
			body2.SweptExpandBoundingBox(dt)

			system.AddEntity(body1)
			system.AddEntity(body2)
			system.Detect(false)

			if len(*collisions) != tt.want {
				t.Fatalf("collisions = %d, want %d", len(*collisions), tt.want)
			}
			if tt.want == 0 {
				return
			}

			c := (*collisions)[0]
			if math.Abs(c.penetration+0.2) > 1e-2 {
				t.Errorf("penetration = %v, want -0.2", c.penetration)
			}
			if !c.normal.ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-2) {
				t.Errorf("normal = %v, want (-1, 0, 0)", c.normal)
			}
		})
	}
}

func TestDetect_SpeculativeIgnoresSlowBodies(t *testing.T) {
	system := NewBrute()
	system.EnableSpeculativeContacts(true)
	collisions := recordCollisions(system)

	body1 := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
	body2 := createSphere(mgl64.Vec3{2.2, 0, 0}, 1, actor.BodyTypeDynamic)
	// boxes overlap but nothing moves toward closing the gap this step
	body1.BoundingBox = body1.BoundingBox.Expand(0.5)

	system.AddEntity(body1)
	system.AddEntity(body2)
	system.Detect(false)

	if len(*collisions) != 0 {
		t.Errorf("collisions = %d, want 0", len(*collisions))
	}
}

func TestDetect_TerrainNormal(t *testing.T) {
	system := NewBrute()
	collisions := recordCollisions(system)

	terrain := flatTerrainBody(0)
	ball := createSphere(mgl64.Vec3{2.5, 0.9, 2.5}, 1, actor.BodyTypeDynamic)

	// the terrain is added second, the dispatcher still puts it first
	system.AddEntity(ball)
	system.AddEntity(terrain)
	system.Detect(false)

	if len(*collisions) == 0 {
		t.Fatal("no collision with the terrain")
	}
	for i, c := range *collisions {
		if c.body1 != terrain || c.body2 != ball {
			t.Errorf("collision %d: bodies not ordered terrain first", i)
		}
		if !c.normal.ApproxEqualThreshold(mgl64.Vec3{0, -1, 0}, 1e-9) {
			t.Errorf("collision %d: normal = %v, want the face normal (0, -1, 0)", i, c.normal)
		}
		if c.penetration <= 0 {
			t.Errorf("collision %d: penetration = %v", i, c.penetration)
		}
	}
}

func TestDetect_CompoundOnlyTouchingPart(t *testing.T) {
	system := NewBrute()
	collisions := recordCollisions(system)

	compound := actor.NewRigidBody(
		actor.Transform{Rotation: mgl64.QuatIdent()},
		actor.NewCompoundShape([]actor.TransformedShape{
			{Shape: &actor.Sphere{Radius: 1}, Position: mgl64.Vec3{-2, 0, 0}},
			{Shape: &actor.Sphere{Radius: 1}, Position: mgl64.Vec3{2, 0, 0}},
		}),
		actor.BodyTypeDynamic,
		1,
	)
	ball := createSphere(mgl64.Vec3{2, 1.5, 0}, 1, actor.BodyTypeDynamic)

	system.AddEntity(compound)
	system.AddEntity(ball)
	system.Detect(false)

	if len(*collisions) != 1 {
		t.Fatalf("collisions = %d, want 1", len(*collisions))
	}
	c := (*collisions)[0]
	if c.body1 != compound {
		t.Error("compound is not body1")
	}
	if math.Abs(c.penetration-0.5) > 1e-2 {
		t.Errorf("penetration = %v, want 0.5", c.penetration)
	}
	if !c.normal.ApproxEqualThreshold(mgl64.Vec3{0, -1, 0}, 1e-2) {
		t.Errorf("normal = %v, want (0, -1, 0)", c.normal)
	}
}

// =============================================================================
// Soft Body Narrowphase Tests
// =============================================================================

func TestDetect_SoftRigid(t *testing.T) {
	system := NewBrute()
	collisions := recordCollisions(system)

	cloth := actor.NewClothGrid(3, 3, 1, 0.1)
	ball := createSphere(mgl64.Vec3{1, 0.95, 1}, 1, actor.BodyTypeDynamic)

	system.AddEntity(cloth)
	system.AddEntity(ball)
	system.Detect(false)

	if len(*collisions) == 0 {
		t.Fatal("no collision between the cloth and the ball")
	}
	for i, c := range *collisions {
		if c.body1 != ball {
			t.Errorf("collision %d: body1 is not the ball", i)
		}
		if c.body2.SoftBody() != cloth {
			t.Errorf("collision %d: body2 is not a mass point of the cloth", i)
		}
		if c.normal.Y() < 0.5 {
			t.Errorf("collision %d: normal = %v, want pointing up toward the ball", i, c.normal)
		}
	}
}

func TestNearestTrianglePoint(t *testing.T) {
	cloth := actor.NewClothGrid(2, 2, 1, 0.1)
	triangle := cloth.Triangles[0]

	for _, index := range triangle.Indices {
		corner := cloth.Points[index].Transform.Position
		probe := corner.Add(mgl64.Vec3{0.01, 0.2, 0.01})
		if got := nearestTrianglePoint(cloth, triangle, probe); got != index {
			t.Errorf("nearest to %v = %d, want %d", probe, got, index)
		}
	}
}

// =============================================================================
// Raycast Tests
// =============================================================================

func TestRaycast_ClosestHit(t *testing.T) {
	system := NewPersistentSAP()
	near := createSphere(mgl64.Vec3{5, 0, 0}, 1, actor.BodyTypeDynamic)
	far := createSphere(mgl64.Vec3{10, 0, 0}, 1, actor.BodyTypeDynamic)
	system.AddEntity(far)
	system.AddEntity(near)

	origin := mgl64.Vec3{0, 0, 0}
	direction := mgl64.Vec3{1, 0, 0}

	tests := []struct {
		name         string
		filter       RaycastFilter
		wantBody     *actor.RigidBody
		wantFraction float64
	}{
		{"no filter", nil, near, 4},
		{"skip near", func(body *actor.RigidBody, _ mgl64.Vec3, _ float64) bool { return body != near }, far, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := system.Raycast(origin, direction, tt.filter)
			if !ok {
				t.Fatal("ray missed")
			}
			if hit.Body != tt.wantBody {
				t.Errorf("hit the wrong body")
			}
			if math.Abs(hit.Fraction-tt.wantFraction) > 1e-2 {
				t.Errorf("fraction = %v, want %v", hit.Fraction, tt.wantFraction)
			}
			if !hit.Normal.ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-2) {
				t.Errorf("normal = %v, want (-1, 0, 0)", hit.Normal)
			}
		})
	}

	if _, ok := system.Raycast(origin, mgl64.Vec3{0, 1, 0}, nil); ok {
		t.Error("ray pointing away hit something")
	}
}

func TestRaycastBody_Compound(t *testing.T) {
	system := NewBrute()
	compound := actor.NewRigidBody(
		actor.Transform{Position: mgl64.Vec3{0, 5, 0}, Rotation: mgl64.QuatIdent()},
		actor.NewCompoundShape([]actor.TransformedShape{
			{Shape: &actor.Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}}, Position: mgl64.Vec3{-2, 0, 0}},
			{Shape: &actor.Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}}, Position: mgl64.Vec3{2, 0, 0}},
		}),
		actor.BodyTypeDynamic,
		1,
	)

	normal, fraction, ok := system.RaycastBody(compound, mgl64.Vec3{2, 0, 0}, mgl64.Vec3{0, 1, 0})
	if !ok {
		t.Fatal("ray missed the compound part")
	}
	if math.Abs(fraction-4.5) > 1e-2 {
		t.Errorf("fraction = %v, want 4.5", fraction)
	}
	if !normal.ApproxEqualThreshold(mgl64.Vec3{0, -1, 0}, 1e-2) {
		t.Errorf("normal = %v, want (0, -1, 0)", normal)
	}

	if _, _, ok := system.RaycastBody(compound, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 1, 0}); ok {
		t.Error("ray through the gap between the parts hit")
	}
}

func TestRaycast_SoftBody(t *testing.T) {
	system := NewBrute()
	cloth := actor.NewClothGrid(3, 3, 1, 0.1)
	system.AddEntity(cloth)

	hit, ok := system.Raycast(mgl64.Vec3{0.2, 5, 0.2}, mgl64.Vec3{0, -1, 0}, nil)
	if !ok {
		t.Fatal("ray missed the cloth")
	}
	if hit.Body.SoftBody() != cloth {
		t.Error("hit body is not a mass point of the cloth")
	}
	if hit.Body != cloth.Points[0] {
		t.Errorf("hit body is not the nearest corner")
	}
	// triangles are expanded by 0.1
	if math.Abs(hit.Fraction-4.9) > 2e-2 {
		t.Errorf("fraction = %v, want 4.9", hit.Fraction)
	}
}
