package actor

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// TerrainExpansion is the sphere radius swept around every terrain triangle, which gives thin
// triangles some volume for the narrow phase.
const TerrainExpansion = 0.05

type terrainTriangle struct {
	x, z  int
	upper bool
}

// TerrainShape is a height field on the XZ plane. Cell (x, z) spans
// [x*ScaleX, (x+1)*ScaleX] x [z*ScaleZ, (z+1)*ScaleZ] and is split into two triangles.
// It is meant for static bodies only.
type TerrainShape struct {
	heights        [][]float64 // [x][z]
	ScaleX, ScaleZ float64
	minHeight      float64
	maxHeight      float64

	selected []terrainTriangle
	points   [3]mgl64.Vec3
	normal   mgl64.Vec3
	center   mgl64.Vec3

	parent *TerrainShape
	clones *sync.Pool
}

// NewTerrainShape builds a terrain from heights[x][z]. Every column must have the same length
// and there must be at least 2x2 samples.
func NewTerrainShape(heights [][]float64, scaleX, scaleZ float64) *TerrainShape {
	t := &TerrainShape{
		heights:   heights,
		ScaleX:    scaleX,
		ScaleZ:    scaleZ,
		minHeight: math.MaxFloat64,
		maxHeight: -math.MaxFloat64,
		clones:    &sync.Pool{},
	}
	for _, column := range heights {
		for _, h := range column {
			t.minHeight = math.Min(t.minHeight, h)
			t.maxHeight = math.Max(t.maxHeight, h)
		}
	}
	return t
}

func (t *TerrainShape) cellsX() int { return len(t.heights) - 1 }
func (t *TerrainShape) cellsZ() int { return len(t.heights[0]) - 1 }

func (t *TerrainShape) vertex(x, z int) mgl64.Vec3 {
	return mgl64.Vec3{float64(x) * t.ScaleX, t.heights[x][z], float64(z) * t.ScaleZ}
}

// HeightAt returns the sampled height at grid coordinates.
func (t *TerrainShape) HeightAt(x, z int) float64 {
	return t.heights[x][z]
}

func (t *TerrainShape) localBounds() AABB {
	return AABB{
		Min: mgl64.Vec3{0, t.minHeight, 0},
		Max: mgl64.Vec3{float64(t.cellsX()) * t.ScaleX, t.maxHeight, float64(t.cellsZ()) * t.ScaleZ},
	}.Expand(TerrainExpansion)
}

func (t *TerrainShape) BoundingBox(orientation mgl64.Mat3) AABB {
	return t.localBounds().Transform(orientation, mgl64.Vec3{})
}

func (t *TerrainShape) ComputeMass(density float64) float64 {
	return 0
}

func (t *TerrainShape) ComputeInertia(mass float64) mgl64.Mat3 {
	return mgl64.Mat3{}
}

func (t *TerrainShape) SupportMapping(direction mgl64.Vec3) mgl64.Vec3 {
	best := 0
	bestDot := t.points[0].Dot(direction)
	for i := 1; i < 3; i++ {
		if d := t.points[i].Dot(direction); d > bestDot {
			best, bestDot = i, d
		}
	}

	var expansion mgl64.Vec3
	if l := direction.Len(); l > 1e-12 {
		expansion = direction.Mul(TerrainExpansion / l)
	}
	return t.points[best].Add(expansion)
}

func (t *TerrainShape) Center() mgl64.Vec3 {
	return t.center
}

// CollisionNormal returns the upward normal of the current triangle, in shape space.
func (t *TerrainShape) CollisionNormal() mgl64.Vec3 {
	return t.normal
}

func (t *TerrainShape) cellRange(box AABB) (minX, maxX, minZ, maxZ int, ok bool) {
	if box.Max.Y() < t.minHeight-TerrainExpansion || box.Min.Y() > t.maxHeight+TerrainExpansion {
		return 0, 0, 0, 0, false
	}

	minX = max(int(math.Floor(box.Min.X()/t.ScaleX)), 0)
	maxX = min(int(math.Floor(box.Max.X()/t.ScaleX)), t.cellsX()-1)
	minZ = max(int(math.Floor(box.Min.Z()/t.ScaleZ)), 0)
	maxZ = min(int(math.Floor(box.Max.Z()/t.ScaleZ)), t.cellsZ()-1)
	return minX, maxX, minZ, maxZ, minX <= maxX && minZ <= maxZ
}

func (t *TerrainShape) Prepare(box AABB) int {
	t.selected = t.selected[:0]

	minX, maxX, minZ, maxZ, ok := t.cellRange(box.Expand(TerrainExpansion))
	if !ok {
		return 0
	}

	for x := minX; x <= maxX; x++ {
		for z := minZ; z <= maxZ; z++ {
			t.selected = append(t.selected,
				terrainTriangle{x: x, z: z},
				terrainTriangle{x: x, z: z, upper: true},
			)
		}
	}
	return len(t.selected)
}

// PrepareRay selects the triangles of every cell under the segment origin to
// origin+direction.
func (t *TerrainShape) PrepareRay(origin, direction mgl64.Vec3) int {
	box := EmptyAABB().AddPoint(origin).AddPoint(origin.Add(direction))
	return t.Prepare(box)
}

func (t *TerrainShape) SetCurrentShape(index int) {
	tri := t.selected[index]
	x, z := tri.x, tri.z

	if tri.upper {
		t.points[0] = t.vertex(x+1, z)
		t.points[1] = t.vertex(x, z+1)
		t.points[2] = t.vertex(x+1, z+1)
	} else {
		t.points[0] = t.vertex(x, z)
		t.points[1] = t.vertex(x, z+1)
		t.points[2] = t.vertex(x+1, z)
	}

	t.normal = t.points[1].Sub(t.points[0]).Cross(t.points[2].Sub(t.points[0]))
	if l := t.normal.Len(); l > 1e-12 {
		t.normal = t.normal.Mul(1 / l)
	}
	t.center = t.points[0].Add(t.points[1]).Add(t.points[2]).Mul(1.0 / 3.0)
}

func (t *TerrainShape) RequestWorkingClone() Multishape {
	root := t
	if t.parent != nil {
		root = t.parent
	}

	if v := root.clones.Get(); v != nil {
		return v.(*TerrainShape)
	}

	return &TerrainShape{
		heights:   root.heights,
		ScaleX:    root.ScaleX,
		ScaleZ:    root.ScaleZ,
		minHeight: root.minHeight,
		maxHeight: root.maxHeight,
		parent:    root,
	}
}

func (t *TerrainShape) ReturnWorkingClone() {
	if t.parent == nil {
		return
	}
	t.selected = t.selected[:0]
	t.parent.clones.Put(t)
}
