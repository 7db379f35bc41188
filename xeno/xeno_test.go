package xeno

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

func randomUnit(r *rand.Rand) mgl64.Vec3 {
	for {
		v := mgl64.Vec3{r.Float64()*2 - 1, r.Float64()*2 - 1, r.Float64()*2 - 1}
		if l := v.Len(); l > 0.1 && l <= 1 {
			return v.Mul(1 / l)
		}
	}
}

// =============================================================================
// Detect (3D) Tests
// =============================================================================

func TestDetect_SphereSoundness(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	ident := mgl64.Ident3()

	for i := 0; i < 500; i++ {
		r1 := 0.2 + r.Float64()
		r2 := 0.2 + r.Float64()
		d := 0.05 + r.Float64()*(r1+r2+1)
		if math.Abs(d-(r1+r2)) < 1e-3 {
			continue
		}

		axis := randomUnit(r)
		p1 := mgl64.Vec3{r.Float64() * 10, r.Float64() * 10, r.Float64() * 10}
		p2 := p1.Add(axis.Mul(d))

		point, normal, penetration, hit := Detect(&actor.Sphere{Radius: r1}, &actor.Sphere{Radius: r2}, ident, ident, p1, p2)

		want := d < r1+r2
		if hit != want {
			t.Fatalf("case %d: r1=%v r2=%v d=%v hit=%v want %v", i, r1, r2, d, hit, want)
		}
		if !hit {
			continue
		}

		if math.Abs(penetration-(r1+r2-d)) > 1e-6 {
			t.Errorf("case %d: penetration = %v, want %v", i, penetration, r1+r2-d)
		}
		if normal.Dot(axis) > -1+1e-6 {
			t.Errorf("case %d: normal %v should point from shape2 to shape1 along %v", i, normal, axis)
		}
		mid := p1.Add(axis.Mul(r1 - (r1+r2-d)/2))
		if !point.ApproxEqualThreshold(mid, 1e-6) {
			t.Errorf("case %d: point = %v, want %v", i, point, mid)
		}
	}
}

func TestDetect_ConcentricSpheres(t *testing.T) {
	ident := mgl64.Ident3()
	p := mgl64.Vec3{1, 2, 3}

	_, normal, penetration, hit := Detect(&actor.Sphere{Radius: 1}, &actor.Sphere{Radius: 2}, ident, ident, p, p)

	if !hit {
		t.Fatal("concentric spheres must collide")
	}
	if math.Abs(penetration-3) > 1e-6 {
		t.Errorf("penetration = %v, want 3", penetration)
	}
	if math.Abs(normal.Len()-1) > 1e-9 {
		t.Errorf("normal %v should be unit length", normal)
	}
}

func TestDetect_Boxes(t *testing.T) {
	ident := mgl64.Ident3()
	box := &actor.Box{HalfExtents: mgl64.Vec3{1, 1, 1}}

	tests := []struct {
		name            string
		position2       mgl64.Vec3
		wantHit         bool
		wantPenetration float64
		wantNormal      mgl64.Vec3
	}{
		{"face overlap", mgl64.Vec3{1.5, 0.3, 0.2}, true, 0.5, mgl64.Vec3{-1, 0, 0}},
		{"overlap from above", mgl64.Vec3{0.2, 1.9, -0.1}, true, 0.1, mgl64.Vec3{0, -1, 0}},
		{"separated", mgl64.Vec3{2.5, 0, 0}, false, 0, mgl64.Vec3{}},
		{"separated diagonally", mgl64.Vec3{2.1, 2.1, 0}, false, 0, mgl64.Vec3{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point, normal, penetration, hit := Detect(box, box, ident, ident, mgl64.Vec3{}, tt.position2)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tt.wantHit)
			}
			if !hit {
				return
			}

			if math.Abs(penetration-tt.wantPenetration) > 1e-3 {
				t.Errorf("penetration = %v, want %v", penetration, tt.wantPenetration)
			}
			if normal.Dot(tt.wantNormal) < 0.999 {
				t.Errorf("normal = %v, want %v", normal, tt.wantNormal)
			}
			// the contact point lies in the overlap region
			overlap := actor.AABB{Min: tt.position2.Sub(mgl64.Vec3{1, 1, 1}), Max: mgl64.Vec3{1, 1, 1}}
			if !overlap.Expand(1e-3).ContainsPoint(point) {
				t.Errorf("point %v outside overlap %+v", point, overlap)
			}
		})
	}
}

func TestDetect_RotatedBoxAgainstSphere(t *testing.T) {
	box := &actor.Box{HalfExtents: mgl64.Vec3{1, 1, 1}}
	sphere := &actor.Sphere{Radius: 0.5}
	rot := mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 0, 1}).Mat4().Mat3()
	ident := mgl64.Ident3()

	_, normal, penetration, hit := Detect(box, sphere, rot, ident, mgl64.Vec3{}, mgl64.Vec3{1.8, 0, 0})
	if !hit {
		t.Fatal("sphere touching the rotated box edge should collide")
	}
	if penetration <= 0 || penetration > 0.2 {
		t.Errorf("penetration = %v, want about %v", penetration, math.Sqrt2+0.5-1.8)
	}
	if normal.X() > -0.9 {
		t.Errorf("normal = %v, want roughly -X", normal)
	}

	if _, _, _, hit := Detect(box, sphere, rot, ident, mgl64.Vec3{}, mgl64.Vec3{2.0, 0, 0}); hit {
		t.Error("sphere beyond the rotated box edge should not collide")
	}
}

func TestDetect_Capsule(t *testing.T) {
	capsule := &actor.Capsule{Radius: 0.5, Length: 2}
	sphere := &actor.Sphere{Radius: 0.5}
	ident := mgl64.Ident3()

	// sphere resting against the upper cap
	_, _, penetration, hit := Detect(capsule, sphere, ident, ident, mgl64.Vec3{}, mgl64.Vec3{0, 1.9, 0})
	if !hit || math.Abs(penetration-0.1) > 1e-6 {
		t.Errorf("hit=%v penetration=%v, want true 0.1", hit, penetration)
	}
}

// =============================================================================
// Detect2D Tests
// =============================================================================

func TestDetect2D_CircleSoundness(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	ident := mgl64.Ident2()

	for i := 0; i < 500; i++ {
		r1 := 0.2 + r.Float64()
		r2 := 0.2 + r.Float64()
		d := 0.05 + r.Float64()*(r1+r2+1)
		if math.Abs(d-(r1+r2)) < 1e-3 {
			continue
		}

		angle := r.Float64() * 2 * math.Pi
		axis := mgl64.Vec2{math.Cos(angle), math.Sin(angle)}
		p1 := mgl64.Vec2{r.Float64() * 5, r.Float64() * 5}
		p2 := p1.Add(axis.Mul(d))

		_, normal, penetration, hit := Detect2D(&Circle{Radius: r1}, &Circle{Radius: r2}, ident, ident, p1, p2)

		if want := d < r1+r2; hit != want {
			t.Fatalf("case %d: hit = %v, want %v (d=%v)", i, hit, want, d)
		}
		if !hit {
			continue
		}
		if math.Abs(penetration-(r1+r2-d)) > 1e-6 {
			t.Errorf("case %d: penetration = %v, want %v", i, penetration, r1+r2-d)
		}
		if normal.Dot(axis) > -1+1e-6 {
			t.Errorf("case %d: normal = %v, want %v", i, normal, axis.Mul(-1))
		}
	}
}

func TestDetect2D_Rectangles(t *testing.T) {
	rect := &Rectangle{HalfExtents: mgl64.Vec2{1, 1}}
	ident := mgl64.Ident2()

	tests := []struct {
		name            string
		position2       mgl64.Vec2
		wantHit         bool
		wantPenetration float64
		wantNormal      mgl64.Vec2
	}{
		{"aligned", mgl64.Vec2{1.5, 0}, true, 0.5, mgl64.Vec2{-1, 0}},
		{"offset", mgl64.Vec2{1.6, 0.4}, true, 0.4, mgl64.Vec2{-1, 0}},
		{"from below", mgl64.Vec2{0.3, -1.8}, true, 0.2, mgl64.Vec2{0, 1}},
		{"separated", mgl64.Vec2{0, 2.2}, false, 0, mgl64.Vec2{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, normal, penetration, hit := Detect2D(rect, rect, ident, ident, mgl64.Vec2{}, tt.position2)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tt.wantHit)
			}
			if !hit {
				return
			}
			if math.Abs(penetration-tt.wantPenetration) > 1e-3 {
				t.Errorf("penetration = %v, want %v", penetration, tt.wantPenetration)
			}
			if normal.Dot(tt.wantNormal) < 0.999 {
				t.Errorf("normal = %v, want %v", normal, tt.wantNormal)
			}
		})
	}
}

func TestDetect2D_RotatedRectangle(t *testing.T) {
	rect := &Rectangle{HalfExtents: mgl64.Vec2{1, 1}}
	circle := &Circle{Radius: 0.5}
	ident := mgl64.Ident2()
	rot := Rotation2D(math.Pi / 4)

	if _, _, _, hit := Detect2D(rect, circle, rot, ident, mgl64.Vec2{}, mgl64.Vec2{1.8, 0}); !hit {
		t.Error("circle against the rotated corner should collide")
	}
	if _, _, _, hit := Detect2D(rect, circle, rot, ident, mgl64.Vec2{}, mgl64.Vec2{2.0, 0}); hit {
		t.Error("circle beyond the rotated corner should not collide")
	}
}
