package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DistanceBehavior selects which side of a distance constraint is enforced.
type DistanceBehavior int

const (
	LimitDistance DistanceBehavior = iota
	LimitMaximumDistance
	LimitMinimumDistance
)

// SpringType tells what a soft body spring holds together.
type SpringType int

const (
	EdgeSpring SpringType = iota
	ShearSpring
	BendSpring
)

// Spring is a soft distance constraint between two mass points. It only acts on linear
// velocity: mass points are particles.
type Spring struct {
	Body1, Body2 *RigidBody
	Type         SpringType
	Behavior     DistanceBehavior
	Distance     float64

	Softness   float64
	BiasFactor float64

	accumulatedImpulse float64
	effectiveMass      float64
	softnessOverDt     float64
	bias               float64
	jacobian           mgl64.Vec3
	skip               bool
}

func NewSpring(body1, body2 *RigidBody, springType SpringType) *Spring {
	return &Spring{
		Body1:      body1,
		Body2:      body2,
		Type:       springType,
		Distance:   body2.Transform.Position.Sub(body1.Transform.Position).Len(),
		Softness:   0.01,
		BiasFactor: 0.1,
	}
}

func (s *Spring) Bodies() (*RigidBody, *RigidBody) {
	return s.Body1, s.Body2
}

func (s *Spring) AccumulatedImpulse() float64 {
	return s.accumulatedImpulse
}

func (s *Spring) PrepareForIteration(dt float64) {
	dp := s.Body2.Transform.Position.Sub(s.Body1.Transform.Position)
	length := dp.Len()
	delta := length - s.Distance

	switch {
	case s.Behavior == LimitMaximumDistance && delta <= 0:
		s.skip = true
	case s.Behavior == LimitMinimumDistance && delta >= 0:
		s.skip = true
	default:
		s.skip = false
	}
	if s.skip {
		return
	}

	s.jacobian = dp
	if length > 1e-12 {
		s.jacobian = dp.Mul(1 / length)
	}

	s.softnessOverDt = s.Softness / dt
	s.effectiveMass = 1.0 / (s.Body1.InverseMass() + s.Body2.InverseMass() + s.softnessOverDt)
	s.bias = delta * s.BiasFactor / dt

	s.apply(s.accumulatedImpulse)
}

func (s *Spring) Iterate() {
	if s.skip {
		return
	}

	jv := s.Body2.Velocity.Sub(s.Body1.Velocity).Dot(s.jacobian)
	lambda := -s.effectiveMass * (jv + s.bias + s.accumulatedImpulse*s.softnessOverDt)

	previous := s.accumulatedImpulse
	switch s.Behavior {
	case LimitMinimumDistance:
		s.accumulatedImpulse = math.Max(previous+lambda, 0)
	case LimitMaximumDistance:
		s.accumulatedImpulse = math.Min(previous+lambda, 0)
	default:
		s.accumulatedImpulse = previous + lambda
	}
	lambda = s.accumulatedImpulse - previous

	s.apply(lambda)
}

func (s *Spring) apply(lambda float64) {
	if !s.Body1.IsStatic() {
		s.Body1.Velocity = s.Body1.Velocity.Sub(s.jacobian.Mul(lambda * s.Body1.InverseMass()))
	}
	if !s.Body2.IsStatic() {
		s.Body2.Velocity = s.Body2.Velocity.Add(s.jacobian.Mul(lambda * s.Body2.InverseMass()))
	}
}

// Triangle is a face of a soft body. Its support mapping works directly in world space.
type Triangle struct {
	Indices  [3]int
	owner    *SoftBody
	proxyID  int
	box      AABB
	expanded float64
}

func (t *Triangle) vertex(i int) mgl64.Vec3 {
	return t.owner.Points[t.Indices[i]].Transform.Position
}

func (t *Triangle) SupportMapping(direction mgl64.Vec3) mgl64.Vec3 {
	best := t.vertex(0)
	bestDot := best.Dot(direction)
	for i := 1; i < 3; i++ {
		v := t.vertex(i)
		if d := v.Dot(direction); d > bestDot {
			best, bestDot = v, d
		}
	}

	if l := direction.Len(); l > 1e-12 {
		best = best.Add(direction.Mul(t.expanded / l))
	}
	return best
}

func (t *Triangle) Center() mgl64.Vec3 {
	return t.vertex(0).Add(t.vertex(1)).Add(t.vertex(2)).Mul(1.0 / 3.0)
}

func (t *Triangle) BoundingBox() AABB {
	return t.box
}

// Normal is the area weighted normal (p1-p0)x(p2-p0)/2.
func (t *Triangle) Normal() mgl64.Vec3 {
	p0 := t.vertex(0)
	return t.vertex(1).Sub(p0).Cross(t.vertex(2).Sub(p0)).Mul(0.5)
}

func (t *Triangle) updateBox() {
	t.box = EmptyAABB().AddPoint(t.vertex(0)).AddPoint(t.vertex(1)).AddPoint(t.vertex(2)).Expand(t.expanded)
}

// SoftBody is a mesh of point masses held together by springs. Its points are registered in
// the world as particle bodies and its springs as constraints, so contacts and springs go
// through the regular island and solver machinery.
type SoftBody struct {
	Points    []*RigidBody
	Triangles []*Triangle
	Springs   []*Spring

	// Pressure inflates closed meshes: every face is pushed along its normal by
	// Pressure / volume.
	Pressure          float64
	TriangleExpansion float64
	Material          Material

	tree   *DynamicTree
	box    AABB
	volume float64
	active bool

	broadphaseTag int
}

// NewSoftBodyFromMesh creates a soft body with one point per vertex, an edge spring per
// distinct edge and a bend spring across every edge shared by two faces.
func NewSoftBodyFromMesh(vertices []mgl64.Vec3, indices [][3]int, pointMass float64) *SoftBody {
	sb := newSoftBody(vertices, pointMass)

	type edge struct{ a, b int }
	key := func(a, b int) edge {
		if a > b {
			a, b = b, a
		}
		return edge{a, b}
	}

	opposite := make(map[edge]int, len(indices)*3)
	for _, tri := range indices {
		sb.addTriangle(tri)

		for k := 0; k < 3; k++ {
			a, b, c := tri[k], tri[(k+1)%3], tri[(k+2)%3]
			e := key(a, b)
			if other, ok := opposite[e]; ok {
				if other >= 0 && other != c {
					sb.addSpring(other, c, BendSpring)
				}
				opposite[e] = -1
				continue
			}
			opposite[e] = c
			sb.addSpring(a, b, EdgeSpring)
		}
	}

	sb.Update(0)
	return sb
}

// NewClothGrid creates a sizeX by sizeZ grid of points spaced by scale on the XZ plane, with
// structural, shear and bend springs.
func NewClothGrid(sizeX, sizeZ int, scale, pointMass float64) *SoftBody {
	vertices := make([]mgl64.Vec3, 0, sizeX*sizeZ)
	for x := 0; x < sizeX; x++ {
		for z := 0; z < sizeZ; z++ {
			vertices = append(vertices, mgl64.Vec3{float64(x) * scale, 0, float64(z) * scale})
		}
	}

	sb := newSoftBody(vertices, pointMass)
	index := func(x, z int) int { return x*sizeZ + z }

	for x := 0; x < sizeX; x++ {
		for z := 0; z < sizeZ; z++ {
			if x+1 < sizeX {
				sb.addSpring(index(x, z), index(x+1, z), EdgeSpring)
			}
			if z+1 < sizeZ {
				sb.addSpring(index(x, z), index(x, z+1), EdgeSpring)
			}
			if x+1 < sizeX && z+1 < sizeZ {
				sb.addSpring(index(x, z), index(x+1, z+1), ShearSpring)
				sb.addSpring(index(x+1, z), index(x, z+1), ShearSpring)

				sb.addTriangle([3]int{index(x, z), index(x, z+1), index(x+1, z)})
				sb.addTriangle([3]int{index(x+1, z), index(x, z+1), index(x+1, z+1)})
			}
			if x+2 < sizeX {
				sb.addSpring(index(x, z), index(x+2, z), BendSpring)
			}
			if z+2 < sizeZ {
				sb.addSpring(index(x, z), index(x, z+2), BendSpring)
			}
		}
	}

	sb.Update(0)
	return sb
}

func newSoftBody(vertices []mgl64.Vec3, pointMass float64) *SoftBody {
	sb := &SoftBody{
		Points:            make([]*RigidBody, len(vertices)),
		TriangleExpansion: 0.1,
		Material:          DefaultMaterial(1),
		tree:              NewDynamicTree(0.1),
		active:            true,
	}

	for i, v := range vertices {
		sb.Points[i] = newMassPoint(sb, v, pointMass)
	}
	return sb
}

func newMassPoint(owner *SoftBody, position mgl64.Vec3, mass float64) *RigidBody {
	p := &RigidBody{
		id:                nextBodyID.Add(1),
		Transform:         Transform{Position: position, Rotation: mgl64.QuatIdent()},
		Shape:             &Sphere{Radius: 0.01},
		IsParticle:        true,
		AllowDeactivation: true,
		AffectedByGravity: true,
		Damping:           DampingAll,
		Material:          owner.Material,
		mass:              mass,
		inverseMass:       1.0 / mass,
		softBody:          owner,
	}
	p.Update()
	return p
}

func (sb *SoftBody) addSpring(a, b int, springType SpringType) {
	sb.Springs = append(sb.Springs, NewSpring(sb.Points[a], sb.Points[b], springType))
}

func (sb *SoftBody) addTriangle(indices [3]int) {
	t := &Triangle{Indices: indices, owner: sb, expanded: sb.TriangleExpansion}
	t.updateBox()
	t.proxyID = sb.tree.CreateProxy(t.box, len(sb.Triangles))
	sb.Triangles = append(sb.Triangles, t)
}

func (sb *SoftBody) broadphaseEntity() {}

func (sb *SoftBody) Bounds() AABB {
	return sb.box
}

func (sb *SoftBody) BroadphaseTag() int {
	return sb.broadphaseTag
}

func (sb *SoftBody) SetBroadphaseTag(tag int) {
	sb.broadphaseTag = tag
}

// IsStaticOrInactive is true once every point is asleep.
func (sb *SoftBody) IsStaticOrInactive() bool {
	return !sb.active
}

func (sb *SoftBody) Volume() float64 {
	return sb.volume
}

func (sb *SoftBody) Tree() *DynamicTree {
	return sb.tree
}

// SetSpringCoefficients changes softness and bias factor of every spring of the given type.
func (sb *SoftBody) SetSpringCoefficients(springType SpringType, softness, biasFactor float64) {
	for _, s := range sb.Springs {
		if s.Type == springType {
			s.Softness = softness
			s.BiasFactor = biasFactor
		}
	}
}

// SetMass spreads mass evenly over the points.
func (sb *SoftBody) SetMass(mass float64) {
	if len(sb.Points) == 0 || mass <= 0 {
		return
	}
	each := mass / float64(len(sb.Points))
	for _, p := range sb.Points {
		p.mass = each
		p.inverseMass = 1.0 / each
	}
}

// Update refreshes the triangle tree and bounding box, then applies pressure forces. Nothing
// happens while every point sleeps.
func (sb *SoftBody) Update(dt float64) {
	sb.active = false
	for _, p := range sb.Points {
		if p.IsActive() && !p.IsStatic() {
			sb.active = true
			break
		}
	}
	if !sb.active {
		return
	}

	// ========== BOUNDS ==========
	box := EmptyAABB()
	for _, p := range sb.Points {
		box = box.AddPoint(p.Transform.Position)
	}
	sb.box = box.Expand(sb.TriangleExpansion)

	for _, t := range sb.Triangles {
		t.expanded = sb.TriangleExpansion
		t.updateBox()

		v := t.owner.Points[t.Indices[0]].Velocity.
			Add(t.owner.Points[t.Indices[1]].Velocity).
			Add(t.owner.Points[t.Indices[2]].Velocity).
			Mul(1.0 / 3.0)
		sb.tree.MoveProxy(t.proxyID, t.box, v.Mul(dt))
	}

	// ========== PRESSURE ==========
	sb.volume = 0
	for _, t := range sb.Triangles {
		p0, p1, p2 := t.vertex(0), t.vertex(1), t.vertex(2)
		sb.volume += p0.Dot(p1.Cross(p2)) / 6.0
	}

	if sb.Pressure == 0 || sb.volume <= 1e-9 {
		return
	}

	factor := sb.Pressure / sb.volume / 3.0
	for _, t := range sb.Triangles {
		force := t.Normal().Mul(factor)
		for _, i := range t.Indices {
			sb.Points[i].accumulatedForce = sb.Points[i].accumulatedForce.Add(force)
		}
	}
}

// Query appends (own triangle, other triangle) index pairs whose boxes overlap.
func (sb *SoftBody) Query(list []int, other *SoftBody) []int {
	return sb.tree.QueryTree(list, other.tree)
}

// QueryBox appends the index of every triangle whose box overlaps box.
func (sb *SoftBody) QueryBox(list []int, box AABB) []int {
	return sb.tree.QueryBox(list, box)
}
