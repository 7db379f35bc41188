package collision

import (
	"cmp"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	gocmp "github.com/google/go-cmp/cmp"

	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/parallel"
)

func createSphere(position mgl64.Vec3, radius float64, bodyType actor.BodyType) *actor.RigidBody {
	density := 1.0
	if bodyType == actor.BodyTypeStatic {
		density = 0
	}
	return actor.NewRigidBody(
		actor.Transform{Position: position, Rotation: mgl64.QuatIdent()},
		&actor.Sphere{Radius: radius},
		bodyType,
		density,
	)
}

type pair [2]int

func comparePairs(a, b pair) int {
	return cmp.Or(cmp.Compare(a[0], b[0]), cmp.Compare(a[1], b[1]))
}

// scene mirrors one logical set of spheres into a System and records what it reports, keyed
// by logical body index.
type scene struct {
	system System
	bodies []*actor.RigidBody
	index  map[*actor.RigidBody]int

	mu         sync.Mutex
	broadphase []pair
	collisions []pair
	selfPairs  int
}

func newScene(system System) *scene {
	s := &scene{system: system, index: make(map[*actor.RigidBody]int)}

	system.Handlers().OnPassedBroadphase(func(entity1, entity2 actor.BroadphaseEntity) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.broadphase = append(s.broadphase, s.key(entity1.(*actor.RigidBody), entity2.(*actor.RigidBody)))
		return true
	})
	system.Handlers().OnCollisionDetected(func(body1, body2 *actor.RigidBody, _, _, _ mgl64.Vec3, _ float64) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if body1 == body2 {
			s.selfPairs++
		}
		if !nearTangent(body1, body2) {
			s.collisions = append(s.collisions, s.key(body1, body2))
		}
		return true
	})
	return s
}

func (s *scene) key(body1, body2 *actor.RigidBody) pair {
	a, b := s.index[body1], s.index[body2]
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

func (s *scene) add(position mgl64.Vec3, radius float64, bodyType actor.BodyType) {
	body := createSphere(position, radius, bodyType)
	s.index[body] = len(s.bodies)
	s.bodies = append(s.bodies, body)
	s.system.AddEntity(body)
}

func (s *scene) remove(i int) {
	if !s.system.RemoveEntity(s.bodies[i]) {
		panic("body was not registered")
	}
	s.bodies[i] = nil
}

func (s *scene) move(i int, delta mgl64.Vec3) {
	body := s.bodies[i]
	body.Transform.Position = body.Transform.Position.Add(delta)
	body.Update()
}

// take returns the sorted reports since the last call.
func (s *scene) take() (broadphase, collisions []pair) {
	broadphase, collisions = s.broadphase, s.collisions
	s.broadphase, s.collisions = nil, nil
	slices.SortFunc(broadphase, comparePairs)
	slices.SortFunc(collisions, comparePairs)
	return broadphase, collisions
}

// nearTangent drops sphere pairs too close to touching for XenoCollide to decide the same way
// whatever the body order.
func nearTangent(body1, body2 *actor.RigidBody) bool {
	r1 := body1.Shape.(*actor.Sphere).Radius
	r2 := body2.Shape.(*actor.Sphere).Radius
	d := body1.Transform.Position.Sub(body2.Transform.Position).Len()
	diff := d - (r1 + r2)
	return diff > -1e-2 && diff < 1e-2
}

// =============================================================================
// Broadphase Agreement Tests
// =============================================================================

func TestSystems_AgreeWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	reference := newScene(NewBrute())
	others := map[string]*scene{
		"sap":  newScene(NewPersistentSAP()),
		"grid": newScene(NewGrid(2.0, 1024)),
	}
	all := []*scene{reference, others["sap"], others["grid"]}

	addRandom := func(n int) {
		for range n {
			position := mgl64.Vec3{rng.Float64() * 15, rng.Float64() * 15, rng.Float64() * 15}
			radius := 0.3 + rng.Float64()*0.9
			bodyType := actor.BodyTypeDynamic
			if rng.Intn(10) == 0 {
				bodyType = actor.BodyTypeStatic
			}
			for _, s := range all {
				s.add(position, radius, bodyType)
			}
		}
	}

	moveRandom := func() {
		for i, body := range reference.bodies {
			if body == nil || body.IsStatic() {
				continue
			}
			delta := mgl64.Vec3{rng.Float64() - 0.5, rng.Float64() - 0.5, rng.Float64() - 0.5}.Mul(0.8)
			for _, s := range all {
				s.move(i, delta)
			}
		}
	}

	removeRandom := func(n int) {
		for range n {
			i := rng.Intn(len(reference.bodies))
			if reference.bodies[i] == nil {
				continue
			}
			for _, s := range all {
				s.remove(i)
			}
		}
	}

	pool := parallel.NewThreadPool(3)
	defer pool.Close()
	for _, s := range all {
		s.system.SetThreadPool(pool)
	}

	check := func(t *testing.T, multithreaded bool) {
		t.Helper()
		for _, s := range all {
			s.system.Detect(multithreaded)
		}

		wantBroad, wantCollisions := reference.take()
		if len(wantBroad) == 0 {
			t.Fatal("scene produced no candidate pairs")
		}
		for name, s := range others {
			broad, collisions := s.take()
			if diff := gocmp.Diff(wantBroad, broad); diff != "" {
				t.Errorf("%s broadphase mismatch (-brute +%s):\n%s", name, name, diff)
			}
			if diff := gocmp.Diff(wantCollisions, collisions); diff != "" {
				t.Errorf("%s collisions mismatch (-brute +%s):\n%s", name, name, diff)
			}
		}
	}

	t.Run("cold start", func(t *testing.T) {
		addRandom(AddedThreshold + 50)
		check(t, false)
	})

	t.Run("steady state", func(t *testing.T) {
		for range 5 {
			moveRandom()
			check(t, false)
		}
	})

	t.Run("insertions and removals", func(t *testing.T) {
		for range 5 {
			removeRandom(15)
			addRandom(10)
			moveRandom()
			check(t, false)
		}
	})

	t.Run("multithreaded", func(t *testing.T) {
		for range 3 {
			moveRandom()
			check(t, true)
		}
	})

	t.Run("second cold start", func(t *testing.T) {
		addRandom(AddedThreshold + 1)
		moveRandom()
		check(t, false)
	})

	t.Run("multithreaded cold start", func(t *testing.T) {
		addRandom(AddedThreshold + 1)
		moveRandom()
		check(t, true)
	})

	for _, s := range all {
		if s.selfPairs != 0 {
			t.Errorf("%T reported %d self pairs", s.system, s.selfPairs)
		}
	}
}

func TestSystems_SkipRestingPairs(t *testing.T) {
	systems := map[string]System{
		"brute": NewBrute(),
		"sap":   NewPersistentSAP(),
		"grid":  NewGrid(2.0, 64),
	}

	for name, system := range systems {
		t.Run(name, func(t *testing.T) {
			floor := createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeStatic)
			sleeper := createSphere(mgl64.Vec3{0, 1.5, 0}, 1, actor.BodyTypeDynamic)
			sleeper.SetActive(false)

			system.AddEntity(floor)
			system.AddEntity(sleeper)

			calls := 0
			system.Handlers().OnPassedBroadphase(func(actor.BroadphaseEntity, actor.BroadphaseEntity) bool {
				calls++
				return true
			})

			system.Detect(false)
			if calls != 0 {
				t.Errorf("static/sleeping pair reached the broadphase handlers %d times", calls)
			}

			sleeper.SetActive(true)
			system.Detect(false)
			if calls != 1 {
				t.Errorf("awake pair reached the broadphase handlers %d times, want 1", calls)
			}
		})
	}
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestHandlers_ShortCircuit(t *testing.T) {
	system := NewBrute()
	system.AddEntity(createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic))
	system.AddEntity(createSphere(mgl64.Vec3{1, 0, 0}, 1, actor.BodyTypeDynamic))

	var order []string
	system.Handlers().OnPassedBroadphase(func(actor.BroadphaseEntity, actor.BroadphaseEntity) bool {
		order = append(order, "first")
		return false
	})
	system.Handlers().OnPassedBroadphase(func(actor.BroadphaseEntity, actor.BroadphaseEntity) bool {
		order = append(order, "second")
		return true
	})
	system.Handlers().OnCollisionDetected(func(*actor.RigidBody, *actor.RigidBody, mgl64.Vec3, mgl64.Vec3, mgl64.Vec3, float64) bool {
		order = append(order, "collision")
		return true
	})

	system.Detect(false)

	if diff := gocmp.Diff([]string{"first"}, order); diff != "" {
		t.Errorf("handler calls (-want +got):\n%s", diff)
	}
}

func TestHandlers_NarrowphaseVeto(t *testing.T) {
	system := NewBrute()
	system.AddEntity(createSphere(mgl64.Vec3{0, 0, 0}, 1, actor.BodyTypeDynamic))
	system.AddEntity(createSphere(mgl64.Vec3{1, 0, 0}, 1, actor.BodyTypeDynamic))

	system.Handlers().OnPassedNarrowphase(func(_, _ *actor.RigidBody, _, _ mgl64.Vec3, penetration float64) bool {
		return penetration > 5
	})

	collisions := 0
	system.Handlers().OnCollisionDetected(func(*actor.RigidBody, *actor.RigidBody, mgl64.Vec3, mgl64.Vec3, mgl64.Vec3, float64) bool {
		collisions++
		return true
	})

	system.Detect(false)
	if collisions != 0 {
		t.Errorf("vetoed pair reported %d collisions", collisions)
	}
}

func TestDetectPair_SelfPair(t *testing.T) {
	body := createSphere(mgl64.Vec3{}, 1, actor.BodyTypeDynamic)
	system := NewBrute()

	collisions := 0
	system.Handlers().OnCollisionDetected(func(*actor.RigidBody, *actor.RigidBody, mgl64.Vec3, mgl64.Vec3, mgl64.Vec3, float64) bool {
		collisions++
		return true
	})

	t.Run("release skips", func(t *testing.T) {
		system.DetectPair(body, body)
		if collisions != 0 {
			t.Errorf("self pair reported %d collisions", collisions)
		}
	})

	t.Run("debug panics", func(t *testing.T) {
		Debug = true
		defer func() { Debug = false }()

		defer func() {
			if recover() == nil {
				t.Error("self pair did not panic in debug mode")
			}
		}()
		system.DetectPair(body, body)
	})
}

func TestRemoveEntity_Unknown(t *testing.T) {
	systems := map[string]System{
		"brute": NewBrute(),
		"sap":   NewPersistentSAP(),
		"grid":  NewGrid(1.0, 16),
	}

	for name, system := range systems {
		t.Run(name, func(t *testing.T) {
			registered := createSphere(mgl64.Vec3{}, 1, actor.BodyTypeDynamic)
			stranger := createSphere(mgl64.Vec3{}, 1, actor.BodyTypeDynamic)
			system.AddEntity(registered)

			if system.RemoveEntity(stranger) {
				t.Error("removed an entity that was never added")
			}
			if !system.RemoveEntity(registered) {
				t.Error("failed to remove a registered entity")
			}
			if system.RemoveEntity(registered) {
				t.Error("removed the same entity twice")
			}
			if system.Len() != 0 {
				t.Errorf("Len = %d, want 0", system.Len())
			}
		})
	}
}
