package gjk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

// =============================================================================
// Simplex Tests
// =============================================================================

func TestSimplex_Segment(t *testing.T) {
	s := &Simplex{}
	s.Reset()

	s.AddVertex(mgl64.Vec3{-1, 1, 0}, mgl64.Vec3{-1, 1, 0}, mgl64.Vec3{})
	s.AddVertex(mgl64.Vec3{1, 1, 0}, mgl64.Vec3{1, 1, 0}, mgl64.Vec3{})

	v, ok := s.Closest()
	if !ok {
		t.Fatal("segment above the origin should have a closest point")
	}
	if !v.ApproxEqualThreshold(mgl64.Vec3{0, 1, 0}, 1e-12) {
		t.Errorf("closest = %v, want (0, 1, 0)", v)
	}
	if s.Count != 2 {
		t.Errorf("Count = %d, want 2", s.Count)
	}
}

func TestSimplex_ReducesToVertex(t *testing.T) {
	s := &Simplex{}
	s.Reset()

	s.AddVertex(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{})
	s.AddVertex(mgl64.Vec3{3, 0, 0}, mgl64.Vec3{3, 0, 0}, mgl64.Vec3{})

	v, ok := s.Closest()
	if !ok || !v.ApproxEqualThreshold(mgl64.Vec3{1, 0, 0}, 1e-12) {
		t.Fatalf("closest = %v %v, want (1, 0, 0)", v, ok)
	}
	if s.Count != 1 {
		t.Errorf("Count = %d, want 1 after reduction", s.Count)
	}
}

func TestSimplex_TriangleFace(t *testing.T) {
	s := &Simplex{}
	s.Reset()

	// W = P - Q with Q at the origin
	for _, w := range []mgl64.Vec3{{-1, -1, 2}, {1, -1, 2}, {0, 1, 2}} {
		s.AddVertex(w, w, mgl64.Vec3{})
	}

	v, ok := s.Closest()
	if !ok || !v.ApproxEqualThreshold(mgl64.Vec3{0, 0, 2}, 1e-12) {
		t.Errorf("closest = %v %v, want (0, 0, 2)", v, ok)
	}
	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}

	p, q := s.ComputePoints()
	if !p.ApproxEqualThreshold(mgl64.Vec3{0, 0, 2}, 1e-12) || q.Len() != 0 {
		t.Errorf("points = %v %v, want (0, 0, 2) and the origin", p, q)
	}
}

func TestSimplex_TetrahedronContainsOrigin(t *testing.T) {
	s := &Simplex{}
	s.Reset()

	for _, w := range []mgl64.Vec3{{1, 1, 1}, {-1, -1, 1}, {-1, 1, -1}, {1, -1, -1}} {
		s.AddVertex(w, w, mgl64.Vec3{})
	}

	v, ok := s.Closest()
	if !ok || v.LenSqr() != 0 {
		t.Errorf("closest = %v %v, want the origin", v, ok)
	}
}

func TestSimplex_InSimplex(t *testing.T) {
	s := &Simplex{}
	s.Reset()

	w := mgl64.Vec3{1, 2, 3}
	if s.InSimplex(w) {
		t.Error("empty simplex should not contain anything")
	}
	s.AddVertex(w, w, mgl64.Vec3{})
	if !s.InSimplex(w) {
		t.Error("added vertex should be found")
	}
}

// =============================================================================
// ClosestPoints Tests
// =============================================================================

func TestClosestPoints_Spheres(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	ident := mgl64.Ident3()
	a := &actor.Sphere{Radius: 1}
	b := &actor.Sphere{Radius: 0.5}

	for i := 0; i < 100; i++ {
		offset := mgl64.Vec3{r.Float64()*2 - 1, r.Float64()*2 - 1, r.Float64()*2 - 1}
		if offset.Len() < 0.1 {
			continue
		}
		dir := offset.Normalize()
		dist := 2 + r.Float64()*3
		positionB := dir.Mul(dist)

		pa, pb, normal, ok := ClosestPoints(a, b, ident, ident, mgl64.Vec3{}, positionB)
		if !ok {
			t.Fatalf("case %d: separated spheres reported as touching", i)
		}

		if got, want := pb.Sub(pa).Len(), dist-1.5; math.Abs(got-want) > 1e-3 {
			t.Errorf("case %d: distance = %v, want %v", i, got, want)
		}
		if !pa.ApproxEqualThreshold(dir, 1e-2) {
			t.Errorf("case %d: pointA = %v, want %v", i, pa, dir)
		}
		if normal.Dot(dir) > -0.999 {
			t.Errorf("case %d: normal = %v, want %v", i, normal, dir.Mul(-1))
		}
	}
}

func TestClosestPoints_Boxes(t *testing.T) {
	ident := mgl64.Ident3()
	box := &actor.Box{HalfExtents: mgl64.Vec3{1, 1, 1}}

	pa, pb, normal, ok := ClosestPoints(box, box, ident, ident, mgl64.Vec3{}, mgl64.Vec3{3, 0.5, 0})
	if !ok {
		t.Fatal("separated boxes reported as touching")
	}
	if math.Abs(pa.X()-1) > 1e-6 || math.Abs(pb.X()-2) > 1e-6 {
		t.Errorf("points = %v %v, want x = 1 and x = 2", pa, pb)
	}
	if !normal.ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-6) {
		t.Errorf("normal = %v, want (-1, 0, 0)", normal)
	}
}

func TestClosestPoints_Overlapping(t *testing.T) {
	ident := mgl64.Ident3()
	box := &actor.Box{HalfExtents: mgl64.Vec3{1, 1, 1}}

	if _, _, _, ok := ClosestPoints(box, box, ident, ident, mgl64.Vec3{}, mgl64.Vec3{1.5, 0.2, 0.1}); ok {
		t.Error("overlapping boxes should not report a separation")
	}
}

// =============================================================================
// Raycast Tests
// =============================================================================

func TestRaycast(t *testing.T) {
	ident := mgl64.Ident3()
	sphere := &actor.Sphere{Radius: 1}
	box := &actor.Box{HalfExtents: mgl64.Vec3{1, 1, 1}}

	tests := []struct {
		name         string
		shape        actor.SupportMappable
		origin       mgl64.Vec3
		direction    mgl64.Vec3
		wantHit      bool
		wantFraction float64
		wantNormal   mgl64.Vec3
	}{
		{"sphere head on", sphere, mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{1, 0, 0}, true, 4, mgl64.Vec3{-1, 0, 0}},
		{"box from above scaled direction", box, mgl64.Vec3{0, 5, 0}, mgl64.Vec3{0, -2, 0}, true, 2, mgl64.Vec3{0, 1, 0}},
		{"pointing away", sphere, mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{-1, 0, 0}, false, 0, mgl64.Vec3{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fraction, normal, hit := Raycast(tt.shape, ident, mgl64.Vec3{}, tt.origin, tt.direction)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tt.wantHit)
			}
			if !hit {
				return
			}
			if math.Abs(fraction-tt.wantFraction) > 1e-2 {
				t.Errorf("fraction = %v, want %v", fraction, tt.wantFraction)
			}
			if normal.Dot(tt.wantNormal) < 0.99 {
				t.Errorf("normal = %v, want %v", normal, tt.wantNormal)
			}
		})
	}
}

func TestRaycast_TranslatedShape(t *testing.T) {
	sphere := &actor.Sphere{Radius: 1}

	fraction, _, hit := Raycast(sphere, mgl64.Ident3(), mgl64.Vec3{0, 0, 10}, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 0, 1})
	if !hit {
		t.Fatal("ray along +Z should hit the sphere at z=10")
	}
	if math.Abs(fraction-9) > 1e-2 {
		t.Errorf("fraction = %v, want 9", fraction)
	}
}

// =============================================================================
// Pointcast Tests
// =============================================================================

func TestPointcast(t *testing.T) {
	box := &actor.Box{HalfExtents: mgl64.Vec3{1, 1, 1}}
	rot := mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 1, 0}).Mat4().Mat3()

	tests := []struct {
		name        string
		orientation mgl64.Mat3
		point       mgl64.Vec3
		want        bool
	}{
		{"center", mgl64.Ident3(), mgl64.Vec3{}, true},
		{"inside", mgl64.Ident3(), mgl64.Vec3{0.5, 0.2, -0.3}, true},
		{"outside", mgl64.Ident3(), mgl64.Vec3{3, 0, 0}, false},
		{"outside corner", mgl64.Ident3(), mgl64.Vec3{1.2, 1.2, 1.2}, false},
		{"inside rotated corner", rot, mgl64.Vec3{1.3, 0, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Pointcast(box, tt.orientation, mgl64.Vec3{}, tt.point); got != tt.want {
				t.Errorf("Pointcast(%v) = %v, want %v", tt.point, got, tt.want)
			}
		})
	}
}
