package jitter

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/constraint"
)

// IslandStrategy selects how the islands follow the body graph.
type IslandStrategy int

const (
	// IslandsRebuild discards and rebuilds every island at each step.
	IslandsRebuild IslandStrategy = iota
	// IslandsIncremental merges islands when links are created and splits them when links
	// are removed.
	IslandsIncremental
)

func (s IslandStrategy) String() string {
	if s == IslandsIncremental {
		return "incremental"
	}
	return "rebuild"
}

func ParseIslandStrategy(s string) (IslandStrategy, error) {
	switch s {
	case "", "rebuild":
		return IslandsRebuild, nil
	case "incremental":
		return IslandsIncremental, nil
	}
	return IslandsRebuild, errors.Wrapf(ErrInvalidConfiguration, "unknown island strategy %q", s)
}

// CollisionIsland is a maximal set of non static bodies joined by arbiters and constraints.
// Islands are solved and deactivated as a whole.
type CollisionIsland struct {
	id    int
	index int // in IslandManager.islands

	Bodies      []*actor.RigidBody
	Arbiters    []*constraint.Arbiter
	Constraints []constraint.Constraint
}

func (i *CollisionIsland) ID() int {
	return i.id
}

// IsActive tells whether any body of the island is awake.
func (i *CollisionIsland) IsActive() bool {
	for _, body := range i.Bodies {
		if body.IsActive() {
			return true
		}
	}
	return false
}

func (i *CollisionIsland) reset() {
	clear(i.Bodies)
	i.Bodies = i.Bodies[:0]
	clear(i.Arbiters)
	i.Arbiters = i.Arbiters[:0]
	clear(i.Constraints)
	i.Constraints = i.Constraints[:0]
}

// linkOwner is the body whose island lists the link: Body1, or Body2 when Body1 is static.
func linkOwner(link actor.Link) *actor.RigidBody {
	body1, body2 := link.Bodies()
	if body1.IsStatic() {
		return body2
	}
	return body1
}

// collectLinks fills Arbiters and Constraints from the links of the island bodies.
func (i *CollisionIsland) collectLinks() {
	clear(i.Arbiters)
	i.Arbiters = i.Arbiters[:0]
	clear(i.Constraints)
	i.Constraints = i.Constraints[:0]

	for _, body := range i.Bodies {
		for _, link := range body.Links.Arbiters {
			if linkOwner(link) == body {
				i.Arbiters = append(i.Arbiters, link.(*constraint.Arbiter))
			}
		}
		for _, link := range body.Links.Constraints {
			if linkOwner(link) == body {
				i.Constraints = append(i.Constraints, link.(constraint.Constraint))
			}
		}
	}
}

// IslandManager keeps the body links and the islands built on them. Islands live in an arena
// addressed by ID, 0 meaning no island, and freed IDs are reused.
//
// Links (RigidBody.Links) are maintained in both strategies. Merges and splits only happen
// with IslandsIncremental; IslandsRebuild relies on Rebuild being called every step.
type IslandManager struct {
	strategy IslandStrategy

	arena   []*CollisionIsland
	free    []int
	islands []*CollisionIsland

	queue1, queue2     []*actor.RigidBody
	visited1, visited2 map[*actor.RigidBody]struct{}
}

func NewIslandManager(strategy IslandStrategy) *IslandManager {
	return &IslandManager{
		strategy: strategy,
		arena:    []*CollisionIsland{nil},
		visited1: make(map[*actor.RigidBody]struct{}),
		visited2: make(map[*actor.RigidBody]struct{}),
	}
}

func (m *IslandManager) Strategy() IslandStrategy {
	return m.strategy
}

// Islands returns the live islands. The slice is owned by the manager.
func (m *IslandManager) Islands() []*CollisionIsland {
	return m.islands
}

func (m *IslandManager) Len() int {
	return len(m.islands)
}

// Island returns the island of body, nil for static or unregistered bodies.
func (m *IslandManager) Island(body *actor.RigidBody) *CollisionIsland {
	if body.IslandID <= 0 || body.IslandID >= len(m.arena) {
		return nil
	}
	return m.arena[body.IslandID]
}

// ========== ARENA ==========

func (m *IslandManager) acquire() *CollisionIsland {
	var island *CollisionIsland
	if n := len(m.free); n > 0 {
		island = m.arena[m.free[n-1]]
		m.free = m.free[:n-1]
	} else {
		island = &CollisionIsland{id: len(m.arena)}
		m.arena = append(m.arena, island)
	}

	island.index = len(m.islands)
	m.islands = append(m.islands, island)
	return island
}

func (m *IslandManager) release(island *CollisionIsland) {
	last := m.islands[len(m.islands)-1]
	m.islands[island.index] = last
	last.index = island.index
	m.islands[len(m.islands)-1] = nil
	m.islands = m.islands[:len(m.islands)-1]

	island.reset()
	island.index = -1
	m.free = append(m.free, island.id)
}

func (m *IslandManager) releaseAll() {
	for _, island := range m.islands {
		island.reset()
		island.index = -1
		m.free = append(m.free, island.id)
	}
	clear(m.islands)
	m.islands = m.islands[:0]
}

func (m *IslandManager) moveTo(body *actor.RigidBody, island *CollisionIsland) {
	body.IslandID = island.id
	island.Bodies = append(island.Bodies, body)
}

// ========== BODIES ==========

// AddBody puts a non static body alone in a new island.
func (m *IslandManager) AddBody(body *actor.RigidBody) {
	body.IslandID = 0
	if body.IsStatic() {
		return
	}
	m.moveTo(body, m.acquire())
}

// RemoveBody takes the body out of its island. Its links must have been removed before.
func (m *IslandManager) RemoveBody(body *actor.RigidBody) {
	island := m.Island(body)
	body.IslandID = 0
	if island == nil {
		return
	}

	if i := slices.Index(island.Bodies, body); i >= 0 {
		island.Bodies = slices.Delete(island.Bodies, i, i+1)
	}
	if len(island.Bodies) == 0 {
		m.release(island)
	}
}

// ========== LINKS ==========

func (m *IslandManager) ArbiterCreated(arbiter *constraint.Arbiter) {
	body1, body2 := arbiter.Bodies()
	body1.Links.Arbiters = append(body1.Links.Arbiters, arbiter)
	body2.Links.Arbiters = append(body2.Links.Arbiters, arbiter)
	m.connect(body1, body2)
}

func (m *IslandManager) ArbiterRemoved(arbiter *constraint.Arbiter) {
	body1, body2 := arbiter.Bodies()
	body1.Links.Arbiters = removeLink(body1.Links.Arbiters, arbiter)
	body2.Links.Arbiters = removeLink(body2.Links.Arbiters, arbiter)
	m.disconnect(body1, body2)
}

func (m *IslandManager) ConstraintCreated(c constraint.Constraint) {
	body1, body2 := c.Bodies()
	body1.Links.Constraints = append(body1.Links.Constraints, c)
	body2.Links.Constraints = append(body2.Links.Constraints, c)
	m.connect(body1, body2)
}

func (m *IslandManager) ConstraintRemoved(c constraint.Constraint) {
	body1, body2 := c.Bodies()
	body1.Links.Constraints = removeLink(body1.Links.Constraints, c)
	body2.Links.Constraints = removeLink(body2.Links.Constraints, c)
	m.disconnect(body1, body2)
}

func removeLink(links []actor.Link, link actor.Link) []actor.Link {
	if i := slices.Index(links, link); i >= 0 {
		return slices.Delete(links, i, i+1)
	}
	return links
}

func (m *IslandManager) connect(body1, body2 *actor.RigidBody) {
	if body1.IsStatic() || body2.IsStatic() {
		return
	}
	body1.Links.Connections = append(body1.Links.Connections, body2)
	body2.Links.Connections = append(body2.Links.Connections, body1)

	if m.strategy == IslandsIncremental {
		m.merge(body1, body2)
	}
}

func (m *IslandManager) disconnect(body1, body2 *actor.RigidBody) {
	if body1.IsStatic() || body2.IsStatic() {
		return
	}
	if i := slices.Index(body1.Links.Connections, body2); i >= 0 {
		body1.Links.Connections = slices.Delete(body1.Links.Connections, i, i+1)
	}
	if i := slices.Index(body2.Links.Connections, body1); i >= 0 {
		body2.Links.Connections = slices.Delete(body2.Links.Connections, i, i+1)
	}

	if m.strategy == IslandsIncremental {
		m.split(body1, body2)
	}
}

// ========== INCREMENTAL ==========

// merge joins the islands of two newly connected bodies, moving the smaller one.
func (m *IslandManager) merge(body1, body2 *actor.RigidBody) {
	island1, island2 := m.Island(body1), m.Island(body2)

	switch {
	case island1 == island2 && island1 != nil:
		return
	case island1 == nil && island2 == nil:
		island := m.acquire()
		m.moveTo(body1, island)
		m.moveTo(body2, island)
		return
	case island1 == nil:
		m.moveTo(body1, island2)
		return
	case island2 == nil:
		m.moveTo(body2, island1)
		return
	}

	small, large := island1, island2
	if len(small.Bodies) > len(large.Bodies) {
		small, large = large, small
	}
	for _, body := range small.Bodies {
		m.moveTo(body, large)
	}
	m.release(small)
}

// split runs a breadth first search from both bodies at once, one body per side and turn.
// When the searches meet the island is still connected. When one side runs out first, what it
// visited is a whole component and moves to a new island.
func (m *IslandManager) split(body1, body2 *actor.RigidBody) {
	island := m.Island(body1)
	if island == nil || island != m.Island(body2) {
		return
	}

	clear(m.visited1)
	clear(m.visited2)
	m.queue1 = append(m.queue1[:0], body1)
	m.queue2 = append(m.queue2[:0], body2)
	m.visited1[body1] = struct{}{}
	m.visited2[body2] = struct{}{}

	for {
		switch {
		case len(m.queue1) == 0:
			m.detach(island, m.visited1)
			return
		case len(m.queue2) == 0:
			m.detach(island, m.visited2)
			return
		}

		var met bool
		m.queue1, met = expand(m.queue1, m.visited1, m.visited2)
		if met {
			return
		}
		m.queue2, met = expand(m.queue2, m.visited2, m.visited1)
		if met {
			return
		}
	}
}

// expand pops one body off queue and visits its connections. It reports whether one of them
// was already visited by the other side.
func expand(queue []*actor.RigidBody, visited, other map[*actor.RigidBody]struct{}) ([]*actor.RigidBody, bool) {
	body := queue[0]
	queue = queue[1:]

	for _, next := range body.Links.Connections {
		if _, ok := other[next]; ok {
			return queue, true
		}
		if _, ok := visited[next]; ok {
			continue
		}
		visited[next] = struct{}{}
		queue = append(queue, next)
	}
	return queue, false
}

// detach moves the bodies of component out of island into a new one.
func (m *IslandManager) detach(island *CollisionIsland, component map[*actor.RigidBody]struct{}) {
	fresh := m.acquire()

	island.Bodies = slices.DeleteFunc(island.Bodies, func(body *actor.RigidBody) bool {
		if _, ok := component[body]; ok {
			m.moveTo(body, fresh)
			return true
		}
		return false
	})
}

// ========== REBUILD ==========

// Rebuild recomputes every island from the links of bodies. Each non static body ends up in
// exactly one island, isolated bodies alone in theirs.
func (m *IslandManager) Rebuild(bodies []*actor.RigidBody) {
	m.releaseAll()
	for _, body := range bodies {
		body.IslandID = 0
	}

	for _, root := range bodies {
		if root.IsStatic() || root.IslandID != 0 {
			continue
		}

		island := m.acquire()
		m.moveTo(root, island)

		queue := append(m.queue1[:0], root)
		for len(queue) > 0 {
			body := queue[0]
			queue = queue[1:]

			for _, next := range body.Links.Connections {
				if next.IslandID != 0 {
					continue
				}
				m.moveTo(next, island)
				queue = append(queue, next)
			}
		}
		m.queue1 = queue[:0]
	}
}

// CollectLinks refreshes the arbiter and constraint lists of every island.
func (m *IslandManager) CollectLinks() {
	for _, island := range m.islands {
		island.collectLinks()
	}
}
