package jitter

import (
	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/constraint"
)

const (
	PRE_STEP EventType = iota
	POST_STEP
	BODY_ADDED
	BODY_REMOVED
	CONSTRAINT_ADDED
	CONSTRAINT_REMOVED
	SOFTBODY_ADDED
	SOFTBODY_REMOVED
	COLLISION_BEGIN
	COLLISION_END
	CONTACT_CREATED
	BODY_ACTIVATED
	BODY_DEACTIVATED
)

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// Step events
type PreStepEvent struct {
	Timestep float64
}

func (e PreStepEvent) Type() EventType { return PRE_STEP }

type PostStepEvent struct {
	Timestep float64
}

func (e PostStepEvent) Type() EventType { return POST_STEP }

// Topology events
type BodyAddedEvent struct {
	Body *actor.RigidBody
}

func (e BodyAddedEvent) Type() EventType { return BODY_ADDED }

type BodyRemovedEvent struct {
	Body *actor.RigidBody
}

func (e BodyRemovedEvent) Type() EventType { return BODY_REMOVED }

type ConstraintAddedEvent struct {
	Constraint constraint.Constraint
}

func (e ConstraintAddedEvent) Type() EventType { return CONSTRAINT_ADDED }

type ConstraintRemovedEvent struct {
	Constraint constraint.Constraint
}

func (e ConstraintRemovedEvent) Type() EventType { return CONSTRAINT_REMOVED }

type SoftBodyAddedEvent struct {
	SoftBody *actor.SoftBody
}

func (e SoftBodyAddedEvent) Type() EventType { return SOFTBODY_ADDED }

type SoftBodyRemovedEvent struct {
	SoftBody *actor.SoftBody
}

func (e SoftBodyRemovedEvent) Type() EventType { return SOFTBODY_REMOVED }

// Collision events. Arbiters are recycled once removed: keep the bodies, not the arbiter.
type CollisionBeginEvent struct {
	Body1 *actor.RigidBody
	Body2 *actor.RigidBody
}

func (e CollisionBeginEvent) Type() EventType { return COLLISION_BEGIN }

type CollisionEndEvent struct {
	Body1 *actor.RigidBody
	Body2 *actor.RigidBody
}

func (e CollisionEndEvent) Type() EventType { return COLLISION_END }

type ContactCreatedEvent struct {
	Contact *constraint.Contact
}

func (e ContactCreatedEvent) Type() EventType { return CONTACT_CREATED }

// Activation events
type BodyActivatedEvent struct {
	Body *actor.RigidBody
}

func (e BodyActivatedEvent) Type() EventType { return BODY_ACTIVATED }

type BodyDeactivatedEvent struct {
	Body *actor.RigidBody
}

func (e BodyDeactivatedEvent) Type() EventType { return BODY_DEACTIVATED }

// EventListener - callback for events
type EventListener func(event Event)

// Events manager. Listeners run on the goroutine calling World.Step, in registration order.
type Events struct {
	// Listeners by event type
	listeners map[EventType][]EventListener

	// Events recorded during collision detection, sent at flush. Writers hold the arbiter
	// map lock.
	buffer []Event

	// Last seen sleeping state, to report every transition once
	sleepStates map[*actor.RigidBody]bool
}

func NewEvents() Events {
	return Events{
		listeners:   make(map[EventType][]EventListener),
		buffer:      make([]Event, 0, 256),
		sleepStates: make(map[*actor.RigidBody]bool),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

// emit sends the event right away
func (e *Events) emit(event Event) {
	for _, listener := range e.listeners[event.Type()] {
		listener(event)
	}
}

// record buffers an event until the next flush. Events nobody listens to are dropped.
func (e *Events) record(event Event) {
	if len(e.listeners[event.Type()]) == 0 {
		return
	}
	e.buffer = append(e.buffer, event)
}

// flush sends all buffered events and clears the buffer
func (e *Events) flush() {
	for _, event := range e.buffer {
		e.emit(event)
	}
	clear(e.buffer)
	e.buffer = e.buffer[:0]
}

func (e *Events) track(body *actor.RigidBody) {
	e.sleepStates[body] = body.IsSleeping
}

func (e *Events) untrack(body *actor.RigidBody) {
	delete(e.sleepStates, body)
}

// processSleepEvents compares the sleeping state of bodies with the last one seen, wherever
// the change came from: deactivation, contacts or an impulse applied by the host.
func (e *Events) processSleepEvents(bodies []*actor.RigidBody) {
	for _, body := range bodies {
		trackedState, exists := e.sleepStates[body]
		if !exists {
			e.sleepStates[body] = body.IsSleeping
			continue
		}

		if !trackedState && body.IsSleeping {
			e.emit(BodyDeactivatedEvent{Body: body})
			e.sleepStates[body] = true
		} else if trackedState && !body.IsSleeping {
			e.emit(BodyActivatedEvent{Body: body})
			e.sleepStates[body] = false
		}
	}
}
