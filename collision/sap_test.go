package collision

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/parallel"
)

func TestTriangularIndex(t *testing.T) {
	seen := make(map[int]bool)
	for j := 1; j < 200; j++ {
		for i := 0; i < j; i++ {
			k := triangularIndex(i, j)
			if seen[k] {
				t.Fatalf("index %d used twice", k)
			}
			seen[k] = true

			if k != triangularIndex(j, i) {
				t.Fatalf("triangularIndex(%d, %d) is not symmetric", i, j)
			}
			gi, gj := triangularPair(k)
			if gi != i || gj != j {
				t.Fatalf("triangularPair(%d) = (%d, %d), want (%d, %d)", k, gi, gj, i, j)
			}
		}
	}
}

func TestTriangularBits(t *testing.T) {
	bits := make(triangularBits, triangularWords(100))

	bits.set(3, 70, true)
	bits.set(99, 98, true)

	tests := []struct {
		i, j int
		want bool
	}{
		{3, 70, true},
		{70, 3, true},
		{98, 99, true},
		{3, 71, false},
		{0, 1, false},
	}
	for _, tt := range tests {
		if got := bits.get(tt.i, tt.j); got != tt.want {
			t.Errorf("get(%d, %d) = %v, want %v", tt.i, tt.j, got, tt.want)
		}
	}

	bits.set(70, 3, false)
	if bits.get(3, 70) {
		t.Error("bit still set after clearing")
	}
}

// =============================================================================
// Persistent SAP Tests
// =============================================================================

func TestPersistentSAP_FullOverlaps(t *testing.T) {
	sap := NewPersistentSAP()

	a := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
	b := createSphere(mgl64.Vec3{1.5, 0, 0}, 1, actor.BodyTypeDynamic)
	c := createSphere(mgl64.Vec3{1.5, 5, 0}, 1, actor.BodyTypeDynamic)
	sap.AddEntity(a)
	sap.AddEntity(b)
	sap.AddEntity(c)

	sap.Detect(false)
	if got := sap.FullOverlaps(); got != 1 {
		t.Fatalf("FullOverlaps = %d, want 1", got)
	}

	// c moves down onto b, its box also reaches the box of a
	c.Transform.Position = mgl64.Vec3{1.5, 1.5, 0}
	c.Update()
	sap.Detect(false)
	if got := sap.FullOverlaps(); got != 3 {
		t.Fatalf("FullOverlaps = %d, want 3", got)
	}

	// a leaves along x only
	a.Transform.Position = mgl64.Vec3{-5, 0, 0}
	a.Update()
	sap.Detect(false)
	if got := sap.FullOverlaps(); got != 1 {
		t.Fatalf("FullOverlaps = %d, want 1", got)
	}
}

func TestPersistentSAP_RemoveCompactsSlots(t *testing.T) {
	sap := NewPersistentSAP()

	bodies := make([]*actor.RigidBody, 5)
	for i := range bodies {
		bodies[i] = createSphere(mgl64.Vec3{float64(i) * 1.5, 0, 0}, 1, actor.BodyTypeDynamic)
		sap.AddEntity(bodies[i])
	}
	sap.Detect(false)
	if got := sap.FullOverlaps(); got != 4 {
		t.Fatalf("FullOverlaps = %d, want 4", got)
	}

	if !sap.RemoveEntity(bodies[1]) {
		t.Fatal("RemoveEntity failed")
	}

	if bodies[1].BroadphaseTag() != -1 {
		t.Errorf("removed tag = %d, want -1", bodies[1].BroadphaseTag())
	}
	// the last body takes the freed slot
	if bodies[4].BroadphaseTag() != 1 {
		t.Errorf("moved tag = %d, want 1", bodies[4].BroadphaseTag())
	}
	for tag, entity := range sap.entities {
		if entity.BroadphaseTag() != tag {
			t.Errorf("entity at slot %d has tag %d", tag, entity.BroadphaseTag())
		}
	}

	// 2-3 and 3-4 remain and keep their bits in the moved slot
	if got := sap.FullOverlaps(); got != 2 {
		t.Errorf("FullOverlaps = %d, want 2", got)
	}
	for axis := range sap.bits {
		if !sap.bits[axis].get(bodies[3].BroadphaseTag(), bodies[4].BroadphaseTag()) {
			t.Errorf("axis %d lost the 3-4 overlap bit", axis)
		}
		if sap.bits[axis].get(bodies[0].BroadphaseTag(), bodies[4].BroadphaseTag()) && axis == 0 {
			t.Errorf("axis 0 reports 0-4 overlapping")
		}
	}

	// 2 moves left: it meets 0 and leaves 3
	bodies[2].Transform.Position = mgl64.Vec3{1, 0, 0}
	bodies[2].Update()
	sap.Detect(false)
	if got := sap.FullOverlaps(); got != 2 {
		t.Errorf("FullOverlaps = %d, want 2 (0-2, 3-4)", got)
	}
}

func TestPersistentSAP_Resize(t *testing.T) {
	sap := NewPersistentSAP()

	bodies := make([]*actor.RigidBody, CapacityBatch+1)
	for i := range bodies {
		bodies[i] = createSphere(mgl64.Vec3{float64(i) * 3, 0, 0}, 1, actor.BodyTypeDynamic)
		sap.AddEntity(bodies[i])
	}
	if sap.capacity != 2*CapacityBatch {
		t.Fatalf("capacity = %d, want %d", sap.capacity, 2*CapacityBatch)
	}
	if len(sap.bits[0]) != triangularWords(sap.capacity) {
		t.Errorf("words = %d, want %d", len(sap.bits[0]), triangularWords(sap.capacity))
	}

	for _, body := range bodies {
		sap.RemoveEntity(body)
	}
	if sap.Len() != 0 {
		t.Errorf("Len = %d, want 0", sap.Len())
	}
	if sap.capacity > 2*CapacityBatch {
		t.Errorf("capacity = %d after removing everything", sap.capacity)
	}
}

func TestPersistentSAP_RebuildOnPool(t *testing.T) {
	sequential := NewPersistentSAP()
	pooled := NewPersistentSAP()

	pool := parallel.NewThreadPool(3)
	defer pool.Close()
	pooled.SetThreadPool(pool)

	for i := 0; i < AddedThreshold+20; i++ {
		position := mgl64.Vec3{float64(i%15) * 1.1, float64((i/15)%15) * 1.1, float64(i/225) * 1.1}
		sequential.AddEntity(createSphere(position, 0.6, actor.BodyTypeDynamic))
		pooled.AddEntity(createSphere(position, 0.6, actor.BodyTypeDynamic))
	}

	if err := sequential.rebuild(false); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := pooled.rebuild(true); err != nil {
		t.Fatalf("rebuild on pool: %v", err)
	}

	if sequential.FullOverlaps() == 0 {
		t.Fatal("grid of spheres produced no overlap")
	}
	if got, want := pooled.FullOverlaps(), sequential.FullOverlaps(); got != want {
		t.Errorf("FullOverlaps = %d, want %d", got, want)
	}
	for axis := range pooled.bits {
		for w := range pooled.bits[axis] {
			if pooled.bits[axis][w] != sequential.bits[axis][w] {
				t.Fatalf("axis %d word %d differs", axis, w)
			}
		}
	}
}

func TestPersistentSAP_RebuildNonFiniteBounds(t *testing.T) {
	for _, multithreaded := range []bool{false, true} {
		sap := NewPersistentSAP()
		pool := parallel.NewThreadPool(2)
		sap.SetThreadPool(pool)

		a := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic)
		b := createSphere(mgl64.Vec3{1.5, 0, 0}, 1, actor.BodyTypeDynamic)
		broken := createSphere(mgl64.Vec3{20, 0, 0}, 1, actor.BodyTypeDynamic)
		sap.AddEntity(a)
		sap.AddEntity(b)
		sap.AddEntity(broken)
		broken.BoundingBox.Max[1] = math.NaN()

		err := sap.rebuild(multithreaded)
		if !errors.Is(err, ErrNonFiniteBounds) {
			t.Errorf("multithreaded %v: err = %v, want ErrNonFiniteBounds", multithreaded, err)
		}
		// errors do not leak into the next rebuild
		broken.BoundingBox.Max[1] = 1
		if err := sap.rebuild(multithreaded); err != nil {
			t.Errorf("multithreaded %v: second rebuild err = %v", multithreaded, err)
		}
		if got := sap.FullOverlaps(); got != 1 {
			t.Errorf("multithreaded %v: FullOverlaps = %d, want 1", multithreaded, got)
		}
		pool.Close()
	}
}
