package collision

import (
	"cmp"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

// MaxCellsPerEntity is the number of cells above which an entity is not hashed into the grid
// but tested against every other entity.
const MaxCellsPerEntity = 64

// CellKey is the integer coordinate of a grid cell.
type CellKey struct {
	X, Y, Z int
}

type cell struct {
	indices []int
}

// Grid hashes the entity boxes into a uniform grid, rebuilt on every Detect. Cells are stored
// in a power of two table addressed by a spatial hash, so distant cells may share a slot;
// candidates are filtered with a box test anyway.
//
// Entities spanning more than MaxCellsPerEntity cells (terrains, large floors) are kept aside
// and paired with everything.
type Grid struct {
	Base

	entities []actor.BroadphaseEntity

	cellSize  float64
	cells     []cell
	cellMask  int
	oversized []int

	found  []indexPair
	pairs  []entityPair
	chunks []gridChunk
}

// gridChunk is the range of entity indices scanned by one pool task, with its own seen stamps
// and pairs.
type gridChunk struct {
	grid       *Grid
	start, end int
	seen       []int
	found      []indexPair
}

type indexPair struct {
	a, b int
}

// NewGrid creates a grid of cellSize wide cells hashed into numCells slots, rounded up to a
// power of two.
func NewGrid(cellSize float64, numCells int) *Grid {
	numCells = nextPowerOfTwo(numCells)

	cells := make([]cell, numCells)
	for i := range cells {
		cells[i].indices = make([]int, 0, 8)
	}

	return &Grid{
		Base:     newBase(),
		cellSize: cellSize,
		cells:    cells,
		cellMask: numCells - 1,
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

func (g *Grid) AddEntity(entity actor.BroadphaseEntity) {
	entity.SetBroadphaseTag(len(g.entities))
	g.entities = append(g.entities, entity)
}

func (g *Grid) RemoveEntity(entity actor.BroadphaseEntity) bool {
	index := indexOf(g.entities, entity)
	if index < 0 {
		return false
	}

	g.entities = slices.Delete(g.entities, index, index+1)
	for i := index; i < len(g.entities); i++ {
		g.entities[i].SetBroadphaseTag(i)
	}
	entity.SetBroadphaseTag(-1)
	return true
}

func (g *Grid) Len() int {
	return len(g.entities)
}

func (g *Grid) Raycast(origin, direction mgl64.Vec3, filter RaycastFilter) (RaycastHit, bool) {
	return g.raycastEntities(g.entities, origin, direction, filter)
}

func (g *Grid) Detect(multithreaded bool) {
	g.clear()
	for i, entity := range g.entities {
		g.insert(i, entity.Bounds())
	}
	g.sortCells()

	g.found = g.found[:0]
	if multithreaded && g.threadPool != nil && len(g.entities) > 1 {
		g.found = g.findPairsParallel(g.found)
	} else {
		g.found = g.findPairs(g.found)
	}
	g.found = g.findOversizedPairs(g.found)

	slices.SortFunc(g.found, func(p, q indexPair) int {
		return cmp.Or(cmp.Compare(p.a, q.a), cmp.Compare(p.b, q.b))
	})

	g.pairs = g.pairs[:0]
	for _, p := range g.found {
		entity1, entity2 := g.entities[p.a], g.entities[p.b]
		if g.handlers.RaisePassedBroadphase(entity1, entity2) {
			g.pairs = append(g.pairs, entityPair{entity1, entity2})
		}
	}

	g.narrowphase(g.pairs, multithreaded)
	clear(g.pairs)
}

// cellRange returns the cells covered by box, or ok false when there are too many of them or
// the box is empty.
func (g *Grid) cellRange(box actor.AABB) (minCell, maxCell CellKey, ok bool) {
	count := 1.0
	for i := 0; i < 3; i++ {
		span := math.Floor(box.Max[i]/g.cellSize) - math.Floor(box.Min[i]/g.cellSize) + 1
		if math.IsNaN(span) || math.IsInf(span, 0) || span < 1 {
			return minCell, maxCell, false
		}
		count *= span
	}
	if count > MaxCellsPerEntity {
		return minCell, maxCell, false
	}

	return g.worldToCell(box.Min), g.worldToCell(box.Max), true
}

// insert adds the entity index to every cell its box touches.
func (g *Grid) insert(index int, box actor.AABB) {
	minCell, maxCell, ok := g.cellRange(box)
	if !ok {
		g.oversized = append(g.oversized, index)
		return
	}

	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for z := minCell.Z; z <= maxCell.Z; z++ {
				slot := g.hashCell(CellKey{x, y, z})
				g.cells[slot].indices = append(g.cells[slot].indices, index)
			}
		}
	}
}

func (g *Grid) clear() {
	for i := range g.cells {
		g.cells[i].indices = g.cells[i].indices[:0]
	}
	g.oversized = g.oversized[:0]
}

func (g *Grid) sortCells() {
	for i := range g.cells {
		if len(g.cells[i].indices) > 1 {
			slices.Sort(g.cells[i].indices)
		}
	}
}

// candidate is the grid side of the broadphase test for two entity indices.
func (g *Grid) candidate(a, b int) bool {
	entity1, entity2 := g.entities[a], g.entities[b]
	if entity1.IsStaticOrInactive() && entity2.IsStaticOrInactive() {
		return false
	}
	return entity1.Bounds().Overlaps(entity2.Bounds())
}

// scanCells calls emit for every candidate (index, other) with other > index found in the cells
// of index. seen is stamped with index+1 to report each pair once.
func (g *Grid) scanCells(index int, seen []int, emit func(indexPair)) {
	minCell, maxCell, ok := g.cellRange(g.entities[index].Bounds())
	if !ok {
		return
	}

	stamp := index + 1
	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for z := minCell.Z; z <= maxCell.Z; z++ {
				slot := g.hashCell(CellKey{x, y, z})

				for _, other := range g.cells[slot].indices {
					if other <= index || seen[other] == stamp {
						continue
					}
					seen[other] = stamp

					if g.candidate(index, other) {
						emit(indexPair{index, other})
					}
				}
			}
		}
	}
}

func (g *Grid) findPairs(found []indexPair) []indexPair {
	seen := make([]int, len(g.entities))
	for index := range g.entities {
		g.scanCells(index, seen, func(p indexPair) {
			found = append(found, p)
		})
	}
	return found
}

// findPairsParallel splits the entities in contiguous ranges, one pool task each, and appends
// the pairs of every range in order.
func (g *Grid) findPairsParallel(found []indexPair) []indexPair {
	n := len(g.entities)
	workers := g.threadPool.ThreadCount()
	chunkSize := (n + workers - 1) / workers

	g.chunks = g.chunks[:0]
	for start := 0; start < n; start += chunkSize {
		g.chunks = append(g.chunks, gridChunk{grid: g, start: start, end: min(start+chunkSize, n)})
	}
	for i := range g.chunks {
		g.threadPool.AddTask(findPairsTask, &g.chunks[i])
	}
	g.threadPool.Execute()

	for i := range g.chunks {
		found = append(found, g.chunks[i].found...)
	}
	clear(g.chunks)
	return found
}

func findPairsTask(param any) {
	chunk := param.(*gridChunk)
	chunk.seen = make([]int, len(chunk.grid.entities))
	for index := chunk.start; index < chunk.end; index++ {
		chunk.grid.scanCells(index, chunk.seen, func(p indexPair) {
			chunk.found = append(chunk.found, p)
		})
	}
}

// findOversizedPairs pairs every oversized entity with all the others.
func (g *Grid) findOversizedPairs(found []indexPair) []indexPair {
	for _, index := range g.oversized {
		for other := range g.entities {
			if other == index {
				continue
			}
			// two oversized entities are paired once, from the lower index
			if other < index && slices.Contains(g.oversized, other) {
				continue
			}

			a, b := min(index, other), max(index, other)
			if g.candidate(a, b) {
				found = append(found, indexPair{a, b})
			}
		}
	}
	return found
}

func (g *Grid) worldToCell(position mgl64.Vec3) CellKey {
	return CellKey{
		X: int(math.Floor(position.X() / g.cellSize)),
		Y: int(math.Floor(position.Y() / g.cellSize)),
		Z: int(math.Floor(position.Z() / g.cellSize)),
	}
}

// hashCell maps a cell to its slot in the table.
func (g *Grid) hashCell(key CellKey) int {
	h := (key.X * 73856093) ^ (key.Y * 19349663) ^ (key.Z * 83492791)
	return h & g.cellMask
}

var _ System = (*Grid)(nil)
