package constraint

import (
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/internal/pool"
)

// MaxContacts is the size of a contact manifold.
const MaxContacts = 4

// Arbiter owns the contact manifold of one body pair.
type Arbiter struct {
	Body1, Body2 *actor.RigidBody

	contacts    []*Contact
	contactPool *pool.Pool[Contact]
}

func (a *Arbiter) Bodies() (*actor.RigidBody, *actor.RigidBody) {
	return a.Body1, a.Body2
}

func (a *Arbiter) Contacts() []*Contact {
	return a.contacts
}

func (a *Arbiter) Len() int {
	return len(a.contacts)
}

// AddContact merges a new contact point into the manifold. The points and normal are given for
// the (body1, body2) order of the caller and swapped when the arbiter stores the pair the other
// way around. It returns the contact when one was created, nil when an existing one was
// refreshed or replaced.
func (a *Arbiter) AddContact(body1 *actor.RigidBody, point1, point2, normal mgl64.Vec3,
	penetration float64, settings *ContactSettings) *Contact {

	if body1 != a.Body1 {
		point1, point2 = point2, point1
		normal = normal.Mul(-1)
	}

	relativePosition := point1.Sub(a.Body1.Transform.Position)

	if index := a.cacheEntry(relativePosition, settings.breakThreshold); index >= 0 {
		a.contacts[index].Initialize(a.Body1, a.Body2, point1, point2, normal, penetration, false, settings)
		return nil
	}

	if len(a.contacts) == MaxContacts {
		index := a.sortCachedPoints(relativePosition, penetration)
		a.contacts[index].Initialize(a.Body1, a.Body2, point1, point2, normal, penetration, false, settings)
		return nil
	}

	contact := a.acquireContact()
	contact.Initialize(a.Body1, a.Body2, point1, point2, normal, penetration, true, settings)
	a.contacts = append(a.contacts, contact)
	return contact
}

func (a *Arbiter) acquireContact() *Contact {
	if a.contactPool == nil {
		return &Contact{}
	}
	return a.contactPool.Acquire()
}

func (a *Arbiter) releaseContact(c *Contact) {
	if a.contactPool != nil {
		a.contactPool.Release(c)
	}
}

// cacheEntry finds the closest contact within threshold of the body1 lever arm.
func (a *Arbiter) cacheEntry(relativePosition mgl64.Vec3, threshold float64) int {
	shortest := threshold * threshold
	index := -1

	for i, c := range a.contacts {
		if dist := c.RelativePosition1.Sub(relativePosition).LenSqr(); dist < shortest {
			shortest = dist
			index = i
		}
	}
	return index
}

// sortCachedPoints picks the contact to replace when the manifold is full. The deepest point
// is always kept; among the others, the one whose replacement leaves the largest contact area
// goes.
func (a *Arbiter) sortCachedPoints(relativePosition mgl64.Vec3, penetration float64) int {
	deepest := -1
	maxPenetration := penetration
	for i, c := range a.contacts {
		if c.Penetration > maxPenetration {
			deepest = i
			maxPenetration = c.Penetration
		}
	}

	p := [MaxContacts]mgl64.Vec3{}
	for i, c := range a.contacts {
		p[i] = c.RelativePosition1
	}

	var area [MaxContacts]float64
	if deepest != 0 {
		area[0] = relativePosition.Sub(p[1]).Cross(p[3].Sub(p[2])).LenSqr()
	}
	if deepest != 1 {
		area[1] = relativePosition.Sub(p[0]).Cross(p[3].Sub(p[2])).LenSqr()
	}
	if deepest != 2 {
		area[2] = relativePosition.Sub(p[0]).Cross(p[3].Sub(p[1])).LenSqr()
	}
	if deepest != 3 {
		area[3] = relativePosition.Sub(p[0]).Cross(p[2].Sub(p[1])).LenSqr()
	}

	best := 0
	for i := 1; i < MaxContacts; i++ {
		if area[i] > area[best] {
			best = i
		}
	}
	return best
}

// Update repositions every contact and drops those that separated beyond the break threshold
// or slid apart tangentially. It reports whether the manifold is now empty.
func (a *Arbiter) Update(settings *ContactSettings) bool {
	threshold := settings.breakThreshold

	for i := len(a.contacts) - 1; i >= 0; i-- {
		c := a.contacts[i]
		c.UpdatePosition()

		if c.Penetration < -threshold {
			a.removeContact(i)
			continue
		}

		diff := c.Position1.Sub(c.Position2)
		tangential := diff.Sub(c.Normal.Mul(diff.Dot(c.Normal)))
		if tangential.LenSqr() > threshold*threshold*100 {
			a.removeContact(i)
		}
	}

	return len(a.contacts) == 0
}

func (a *Arbiter) removeContact(i int) {
	c := a.contacts[i]
	a.contacts = slices.Delete(a.contacts, i, i+1)
	a.releaseContact(c)
}

func (a *Arbiter) PrepareForIteration(dt float64) {
	for _, c := range a.contacts {
		c.PrepareForIteration(dt)
	}
}

func (a *Arbiter) Iterate() {
	for _, c := range a.contacts {
		c.Iterate()
	}
}

func (a *Arbiter) reset() {
	for _, c := range a.contacts {
		a.releaseContact(c)
	}
	clear(a.contacts)
	a.contacts = a.contacts[:0]
	a.Body1, a.Body2 = nil, nil
}

// ArbiterKey identifies an unordered body pair.
type ArbiterKey struct {
	low, high uint64
}

func NewArbiterKey(body1, body2 *actor.RigidBody) ArbiterKey {
	a, b := body1.ID(), body2.ID()
	if a > b {
		a, b = b, a
	}
	return ArbiterKey{low: a, high: b}
}

// ArbiterMap holds at most one Arbiter per unordered body pair, together with the pools its
// arbiters and contacts come from.
//
// Its methods do not lock. Callers adding contacts from several goroutines hold Lock around
// the LookUp/Add/AddContact sequence.
type ArbiterMap struct {
	sync.Mutex

	arbiters    map[ArbiterKey]*Arbiter
	arbiterPool *pool.Pool[Arbiter]
	contactPool *pool.Pool[Contact]
}

func NewArbiterMap() *ArbiterMap {
	m := &ArbiterMap{
		arbiters:    make(map[ArbiterKey]*Arbiter),
		contactPool: pool.New(nil, resetContact),
	}
	m.arbiterPool = pool.New(func() *Arbiter {
		return &Arbiter{
			contacts:    make([]*Contact, 0, MaxContacts),
			contactPool: m.contactPool,
		}
	}, (*Arbiter).reset)
	return m
}

func (m *ArbiterMap) LookUp(body1, body2 *actor.RigidBody) (*Arbiter, bool) {
	a, ok := m.arbiters[NewArbiterKey(body1, body2)]
	return a, ok
}

// Add returns the arbiter of the pair, creating it when needed. created tells which.
func (m *ArbiterMap) Add(body1, body2 *actor.RigidBody) (arbiter *Arbiter, created bool) {
	key := NewArbiterKey(body1, body2)
	if a, ok := m.arbiters[key]; ok {
		return a, false
	}

	a := m.arbiterPool.Acquire()
	a.Body1, a.Body2 = body1, body2
	m.arbiters[key] = a
	return a, true
}

// Remove drops the arbiter from the map and recycles it with its contacts.
func (m *ArbiterMap) Remove(arbiter *Arbiter) {
	key := NewArbiterKey(arbiter.Body1, arbiter.Body2)
	if m.arbiters[key] != arbiter {
		return
	}
	delete(m.arbiters, key)
	m.arbiterPool.Release(arbiter)
}

// Range calls fn for every arbiter until it returns false. fn must not add or remove arbiters.
func (m *ArbiterMap) Range(fn func(*Arbiter) bool) {
	for _, a := range m.arbiters {
		if !fn(a) {
			return
		}
	}
}

func (m *ArbiterMap) Len() int {
	return len(m.arbiters)
}
