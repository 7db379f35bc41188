package collision

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
)

// Brute tests the bounding boxes of every entity pair, O(n²).
type Brute struct {
	Base

	entities []actor.BroadphaseEntity
	pairs    []entityPair
}

func NewBrute() *Brute {
	return &Brute{Base: newBase()}
}

func (s *Brute) AddEntity(entity actor.BroadphaseEntity) {
	entity.SetBroadphaseTag(len(s.entities))
	s.entities = append(s.entities, entity)
}

func (s *Brute) RemoveEntity(entity actor.BroadphaseEntity) bool {
	index := indexOf(s.entities, entity)
	if index < 0 {
		return false
	}

	s.entities = slices.Delete(s.entities, index, index+1)
	for i := index; i < len(s.entities); i++ {
		s.entities[i].SetBroadphaseTag(i)
	}
	entity.SetBroadphaseTag(-1)
	return true
}

func (s *Brute) Len() int {
	return len(s.entities)
}

func (s *Brute) Detect(multithreaded bool) {
	s.pairs = s.pairs[:0]

	for i, entity1 := range s.entities {
		for _, entity2 := range s.entities[i+1:] {
			if !entity1.Bounds().Overlaps(entity2.Bounds()) || !s.accept(entity1, entity2) {
				continue
			}
			s.pairs = append(s.pairs, entityPair{entity1, entity2})
		}
	}

	s.narrowphase(s.pairs, multithreaded)
	clear(s.pairs)
}

func (s *Brute) Raycast(origin, direction mgl64.Vec3, filter RaycastFilter) (RaycastHit, bool) {
	return s.raycastEntities(s.entities, origin, direction, filter)
}

// indexOf trusts the broadphase tag first and falls back to a scan.
func indexOf(entities []actor.BroadphaseEntity, entity actor.BroadphaseEntity) int {
	if tag := entity.BroadphaseTag(); tag >= 0 && tag < len(entities) && entities[tag] == entity {
		return tag
	}
	return slices.Index(entities, entity)
}

var _ System = (*Brute)(nil)
