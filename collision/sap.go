package collision

import (
	"cmp"
	"math"
	"math/bits"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/akmonengine/jitter/actor"
)

const (
	// AddedThreshold is how many entities may be added between two Detect calls before the
	// axes are rebuilt from scratch instead of insertion sorted.
	AddedThreshold = 250
	// CapacityBatch is the step by which the overlap matrices grow and shrink.
	CapacityBatch = 500
)

// ErrNonFiniteBounds is reported by a cold start rebuild when an entity box holds a NaN or
// infinite bound. The axis order around such an entity is undefined.
var ErrNonFiniteBounds = errors.New("non-finite entity bounds")

// endpoint is the begin (box min) or end (box max) of an entity on one axis.
type endpoint struct {
	entity actor.BroadphaseEntity
	value  float64
	begin  bool
}

func (e *endpoint) refresh(axis int) {
	box := e.entity.Bounds()
	if e.begin {
		e.value = box.Min[axis]
	} else {
		e.value = box.Max[axis]
	}
}

// before orders endpoints by value. A begin goes first on ties, so touching boxes overlap as
// they do for AABB.Overlaps.
func before(a, b endpoint) bool {
	return a.value < b.value || (a.value == b.value && a.begin && !b.begin)
}

func compareEndpoints(a, b endpoint) int {
	switch {
	case before(a, b):
		return -1
	case before(b, a):
		return 1
	}
	return 0
}

// triangularBits holds one bit per unordered pair of distinct slots, packed row after row.
// Slot pairs (i, j) with i < j live at j*(j-1)/2 + i, so growing the matrix never moves bits.
type triangularBits []uint64

func triangularIndex(i, j int) int {
	if i > j {
		i, j = j, i
	}
	return j*(j-1)/2 + i
}

// triangularPair is the inverse of triangularIndex.
func triangularPair(k int) (i, j int) {
	j = int((1 + math.Sqrt(float64(1+8*k))) / 2)
	for j*(j-1)/2 > k {
		j--
	}
	for (j+1)*j/2 <= k {
		j++
	}
	return k - j*(j-1)/2, j
}

func triangularWords(capacity int) int {
	return (capacity*(capacity-1)/2 + 63) / 64
}

func (t triangularBits) get(i, j int) bool {
	k := triangularIndex(i, j)
	return t[k>>6]&(1<<(k&63)) != 0
}

func (t triangularBits) set(i, j int, value bool) {
	k := triangularIndex(i, j)
	if value {
		t[k>>6] |= 1 << (k & 63)
	} else {
		t[k>>6] &^= 1 << (k & 63)
	}
}

type overlapPair struct {
	entity1, entity2 actor.BroadphaseEntity
}

// PersistentSAP is a sweep and prune kept across steps. Each axis holds the sorted begin/end
// endpoints of every entity; a bit per axis and pair tells whether their intervals overlap on
// that axis, and pairs overlapping on all three axes form the full overlap set handed to the
// narrowphase.
//
// Moving endpoints are re-sorted with an insertion sort, which is close to linear when bodies
// move little between steps. Every swap of a begin and an end of two entities flips their bit
// on that axis. The three axes are sorted concurrently when Detect runs multithreaded; bit and
// set updates are serialized by mu since two axes may flip the same pair.
//
// The broadphase tag of an entity is its slot: its index in the entity list and its row in the
// bit matrices.
type PersistentSAP struct {
	Base

	entities []actor.BroadphaseEntity
	axes     [3][]endpoint
	capacity int
	added    int

	mu           sync.Mutex
	bits         [3]triangularBits
	fullOverlaps map[overlapPair]struct{}

	pairs       []entityPair
	rebuildErrs [3]error
}

func NewPersistentSAP() *PersistentSAP {
	return &PersistentSAP{
		Base:         newBase(),
		fullOverlaps: make(map[overlapPair]struct{}),
	}
}

func (s *PersistentSAP) Len() int {
	return len(s.entities)
}

// FullOverlaps returns the number of pairs whose boxes overlap.
func (s *PersistentSAP) FullOverlaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fullOverlaps)
}

// AddEntity appends the entity endpoints at the end of every axis, as if the entity lay beyond
// everything else; the next Detect sorts them into place and sets their overlaps.
func (s *PersistentSAP) AddEntity(entity actor.BroadphaseEntity) {
	entity.SetBroadphaseTag(len(s.entities))
	s.entities = append(s.entities, entity)
	s.resize()

	box := entity.Bounds()
	for axis := range s.axes {
		s.axes[axis] = append(s.axes[axis],
			endpoint{entity: entity, value: box.Min[axis], begin: true},
			endpoint{entity: entity, value: box.Max[axis], begin: false},
		)
	}
	s.added++
}

// RemoveEntity drops the entity endpoints and overlaps, then moves the last slot into the freed
// one.
func (s *PersistentSAP) RemoveEntity(entity actor.BroadphaseEntity) bool {
	tag := entity.BroadphaseTag()
	if tag < 0 || tag >= len(s.entities) || s.entities[tag] != entity {
		return false
	}

	for axis := range s.axes {
		s.axes[axis] = slices.DeleteFunc(s.axes[axis], func(e endpoint) bool {
			return e.entity == entity
		})
	}

	s.mu.Lock()
	for p := range s.fullOverlaps {
		if p.entity1 == entity || p.entity2 == entity {
			delete(s.fullOverlaps, p)
		}
	}

	last := len(s.entities) - 1
	for other := range s.entities {
		if other == tag {
			continue
		}
		for axis := range s.bits {
			s.bits[axis].set(tag, other, false)
		}
	}

	// ========== SWAP REMOVE ==========
	if tag != last {
		moved := s.entities[last]
		for other := 0; other < last; other++ {
			if other == tag {
				continue
			}
			for axis := range s.bits {
				s.bits[axis].set(tag, other, s.bits[axis].get(last, other))
				s.bits[axis].set(last, other, false)
			}
		}
		s.entities[tag] = moved
		moved.SetBroadphaseTag(tag)
	}
	s.mu.Unlock()

	s.entities[last] = nil
	s.entities = s.entities[:last]
	entity.SetBroadphaseTag(-1)
	s.resize()
	return true
}

// resize grows the bit matrices by CapacityBatch slots when full, and shrinks them only once
// two batches are unused.
func (s *PersistentSAP) resize() {
	n := len(s.entities)
	capacity := s.capacity
	for n > capacity {
		capacity += CapacityBatch
	}
	for capacity-n > 2*CapacityBatch {
		capacity -= CapacityBatch
	}
	if capacity == s.capacity {
		return
	}

	words := triangularWords(capacity)
	for axis := range s.bits {
		if words > len(s.bits[axis]) {
			s.bits[axis] = append(s.bits[axis], make(triangularBits, words-len(s.bits[axis]))...)
		} else {
			// slots beyond n are always clear
			s.bits[axis] = slices.Clip(s.bits[axis][:words])
		}
	}

	s.logger.V(2).Info("resized overlap matrices", "from", s.capacity, "to", capacity, "entities", n)
	s.capacity = capacity
}

func (s *PersistentSAP) Detect(multithreaded bool) {
	if s.added > AddedThreshold {
		s.logger.V(1).Info("rebuilding sweep and prune axes", "added", s.added, "entities", len(s.entities))
		if err := s.rebuild(multithreaded); err != nil {
			s.logger.Error(err, "sweep and prune rebuild")
		}
	} else {
		s.sortAxes(multithreaded)
	}
	s.added = 0

	// ========== CANDIDATES ==========
	s.pairs = s.pairs[:0]
	for p := range s.fullOverlaps {
		entity1, entity2 := p.entity1, p.entity2
		if entity1.BroadphaseTag() > entity2.BroadphaseTag() {
			entity1, entity2 = entity2, entity1
		}
		s.pairs = append(s.pairs, entityPair{entity1, entity2})
	}
	slices.SortFunc(s.pairs, func(a, b entityPair) int {
		return cmp.Or(
			cmp.Compare(a.entity1.BroadphaseTag(), b.entity1.BroadphaseTag()),
			cmp.Compare(a.entity2.BroadphaseTag(), b.entity2.BroadphaseTag()),
		)
	})

	s.pairs = slices.DeleteFunc(s.pairs, func(p entityPair) bool {
		return !s.accept(p.entity1, p.entity2)
	})

	s.narrowphase(s.pairs, multithreaded)
	clear(s.pairs)
}

func (s *PersistentSAP) Raycast(origin, direction mgl64.Vec3, filter RaycastFilter) (RaycastHit, bool) {
	return s.raycastEntities(s.entities, origin, direction, filter)
}

// ========== INCREMENTAL ==========

func (s *PersistentSAP) sortAxes(multithreaded bool) {
	if multithreaded && s.threadPool != nil {
		for axis := range s.axes {
			s.threadPool.AddTask(s.sortAxisTask, axis)
		}
		s.threadPool.Execute()
		return
	}

	for axis := range s.axes {
		s.sortAxis(axis)
	}
}

func (s *PersistentSAP) sortAxisTask(param any) {
	s.sortAxis(param.(int))
}

// sortAxis refreshes the endpoint values and insertion sorts the axis. A begin moving before
// an end starts an overlap, an end moving before a begin ends one.
func (s *PersistentSAP) sortAxis(axis int) {
	list := s.axes[axis]
	for i := range list {
		list[i].refresh(axis)
	}

	for j := 1; j < len(list); j++ {
		key := list[j]
		i := j - 1

		for i >= 0 && before(key, list[i]) {
			swapper := list[i]
			if key.entity != swapper.entity {
				switch {
				case key.begin && !swapper.begin:
					s.setOverlap(axis, key.entity, swapper.entity, true)
				case !key.begin && swapper.begin:
					s.setOverlap(axis, key.entity, swapper.entity, false)
				}
			}
			list[i+1] = swapper
			i--
		}
		list[i+1] = key
	}
}

func (s *PersistentSAP) setOverlap(axis int, entity1, entity2 actor.BroadphaseEntity, overlapping bool) {
	i, j := entity1.BroadphaseTag(), entity2.BroadphaseTag()

	s.mu.Lock()
	if s.bits[axis].get(i, j) != overlapping {
		wasFull := s.full(i, j)
		s.bits[axis].set(i, j, overlapping)

		switch {
		case overlapping && s.full(i, j):
			s.fullOverlaps[overlapPair{entity1, entity2}] = struct{}{}
		case !overlapping && wasFull:
			delete(s.fullOverlaps, overlapPair{entity1, entity2})
			delete(s.fullOverlaps, overlapPair{entity2, entity1})
		}
	}
	s.mu.Unlock()
}

func (s *PersistentSAP) full(i, j int) bool {
	return s.bits[0].get(i, j) && s.bits[1].get(i, j) && s.bits[2].get(i, j)
}

// ========== REBUILD ==========

// rebuild fully sorts the three axes and sweeps them from scratch, one pool task per axis when
// multithreaded. Each axis only writes its own bit matrix, so the sweeps need no locking.
func (s *PersistentSAP) rebuild(multithreaded bool) error {
	clear(s.fullOverlaps)

	if multithreaded && s.threadPool != nil {
		for axis := range s.axes {
			s.threadPool.AddTask(s.rebuildAxisTask, axis)
		}
		s.threadPool.Execute()
	} else {
		for axis := range s.axes {
			s.rebuildErrs[axis] = s.rebuildAxis(axis)
		}
	}

	x, y, z := s.bits[0], s.bits[1], s.bits[2]
	for w := range x {
		word := x[w] & y[w] & z[w]
		for word != 0 {
			k := w*64 + bits.TrailingZeros64(word)
			word &= word - 1

			i, j := triangularPair(k)
			s.fullOverlaps[overlapPair{s.entities[i], s.entities[j]}] = struct{}{}
		}
	}

	errs := s.rebuildErrs
	clear(s.rebuildErrs[:])
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PersistentSAP) rebuildAxisTask(param any) {
	axis := param.(int)
	s.rebuildErrs[axis] = s.rebuildAxis(axis)
}

// rebuildAxis sorts one axis and sets its overlap bits. The sweep completes even when a bound
// is not finite; the first such entity is reported.
func (s *PersistentSAP) rebuildAxis(axis int) error {
	var err error

	list := s.axes[axis]
	for i := range list {
		list[i].refresh(axis)
		if err == nil && (math.IsNaN(list[i].value) || math.IsInf(list[i].value, 0)) {
			err = errors.Wrapf(ErrNonFiniteBounds, "axis %d, slot %d", axis, list[i].entity.BroadphaseTag())
		}
	}
	slices.SortFunc(list, compareEndpoints)

	matrix := s.bits[axis]
	clear(matrix)

	active := make([]int, 0, 16)
	for _, e := range list {
		tag := e.entity.BroadphaseTag()
		if !e.begin {
			if k := slices.Index(active, tag); k >= 0 {
				active = slices.Delete(active, k, k+1)
			}
			continue
		}
		for _, other := range active {
			matrix.set(tag, other, true)
		}
		active = append(active, tag)
	}
	return err
}

var _ System = (*PersistentSAP)(nil)
