package jitter

import (
	"cmp"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/collision"
	"github.com/akmonengine/jitter/constraint"
	"github.com/akmonengine/jitter/parallel"
)

// World owns the bodies, soft bodies and constraints of a simulation and advances them with
// Step. It is not safe for concurrent use: Step spreads its own work over the thread pool.
type World struct {
	bodies          []*actor.RigidBody
	bodyIndex       map[*actor.RigidBody]int
	softBodies      []*actor.SoftBody
	constraints     []constraint.Constraint
	constraintIndex map[constraint.Constraint]int

	// Gravity acceleration (m/s², or N/kg)
	gravity mgl64.Vec3

	linearDamping, angularDamping float64
	iterations, smallIterations   int

	allowDeactivation          bool
	inactiveAngularThresholdSq float64
	inactiveLinearThresholdSq  float64
	deactivationTime           float64
	speculative                bool

	contactSettings *constraint.ContactSettings
	arbiters        *constraint.ArbiterMap
	islands         *IslandManager
	collision       collision.System
	threadPool      *parallel.ThreadPool

	Events Events
	logger logr.Logger

	timestep        float64
	accumulatedTime float64

	createdArbiters []*constraint.Arbiter
	removedArbiters []*constraint.Arbiter
}

type Option func(*World)

// WithLogger sets the logger of the world and of its collision system.
func WithLogger(logger logr.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// WithCollisionSystem replaces the broadphase picked by Config.Broadphase.
func WithCollisionSystem(system collision.System) Option {
	return func(w *World) {
		w.collision = system
	}
}

// NewWorld validates cfg and builds a world from it. A nil cfg means DefaultConfig.
func NewWorld(cfg *Config, opts ...Option) (*World, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings, err := cfg.contactSettings()
	if err != nil {
		return nil, err
	}
	strategy, err := ParseIslandStrategy(cfg.Islands)
	if err != nil {
		return nil, err
	}

	w := &World{
		bodyIndex:       make(map[*actor.RigidBody]int),
		constraintIndex: make(map[constraint.Constraint]int),
		gravity:         mgl64.Vec3(cfg.Gravity),
		contactSettings: settings,
		arbiters:        constraint.NewArbiterMap(),
		islands:         NewIslandManager(strategy),
		Events:          NewEvents(),
		logger:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.SetDampingFactors(cfg.LinearDamping, cfg.AngularDamping); err != nil {
		return nil, err
	}
	if err := w.SetIterations(cfg.Iterations, cfg.SmallIterations); err != nil {
		return nil, err
	}
	if err := w.SetInactivityThreshold(cfg.InactiveAngularThreshold, cfg.InactiveLinearThreshold, cfg.DeactivationTime); err != nil {
		return nil, err
	}
	w.SetAllowDeactivation(cfg.AllowDeactivation)

	if w.collision == nil {
		w.collision = newCollisionSystem(cfg)
	}
	w.threadPool = parallel.NewThreadPool(cfg.Workers)
	w.collision.SetThreadPool(w.threadPool)
	w.collision.SetLogger(w.logger.WithName("collision"))
	w.collision.Handlers().OnCollisionDetected(w.collisionDetected)
	w.SetSpeculativeContacts(cfg.SpeculativeContacts)

	w.logger.V(1).Info("world created", "broadphase", cfg.Broadphase, "islands", strategy.String(),
		"threads", w.threadPool.ThreadCount())
	return w, nil
}

func newCollisionSystem(cfg *Config) collision.System {
	switch cfg.Broadphase {
	case BroadphaseBrute:
		return collision.NewBrute()
	case BroadphaseGrid:
		return collision.NewGrid(cfg.Grid.CellSize, cfg.Grid.Cells)
	default:
		return collision.NewPersistentSAP()
	}
}

// Close stops the thread pool. The world can still step, on the calling goroutine only.
func (w *World) Close() {
	w.threadPool.Close()
}

// ========== SETTINGS ==========

func (w *World) Gravity() mgl64.Vec3 {
	return w.gravity
}

func (w *World) SetGravity(gravity mgl64.Vec3) {
	w.gravity = gravity
}

func (w *World) DampingFactors() (linear, angular float64) {
	return w.linearDamping, w.angularDamping
}

// SetDampingFactors sets the share of velocity kept after one second. Both must lie in
// [0, 1].
func (w *World) SetDampingFactors(linear, angular float64) error {
	if linear < 0 || linear > 1 || angular < 0 || angular > 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "damping factors (%v, %v) outside [0, 1]", linear, angular)
	}
	w.linearDamping, w.angularDamping = linear, angular
	return nil
}

func (w *World) Iterations() (iterations, smallIterations int) {
	return w.iterations, w.smallIterations
}

// SetIterations sets the solver iteration count, and the one used by islands of three bodies
// and constraints or less.
func (w *World) SetIterations(iterations, smallIterations int) error {
	if iterations < 1 || smallIterations < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "iterations (%d, %d) must be positive", iterations, smallIterations)
	}
	w.iterations, w.smallIterations = iterations, smallIterations
	return nil
}

// SetInactivityThreshold sets the velocities under which a body counts as resting, and how
// long a whole island must rest before it is deactivated.
func (w *World) SetInactivityThreshold(angularVelocity, linearVelocity, time float64) error {
	if angularVelocity < 0 || linearVelocity < 0 || time < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "inactivity threshold (%v, %v, %v) is negative",
			angularVelocity, linearVelocity, time)
	}
	w.inactiveAngularThresholdSq = angularVelocity * angularVelocity
	w.inactiveLinearThresholdSq = linearVelocity * linearVelocity
	w.deactivationTime = time
	return nil
}

func (w *World) AllowDeactivation() bool {
	return w.allowDeactivation
}

func (w *World) SetAllowDeactivation(allow bool) {
	w.allowDeactivation = allow
}

// SetSpeculativeContacts sweeps every body box along its velocity and reports near misses as
// negative penetration contacts.
func (w *World) SetSpeculativeContacts(enabled bool) {
	w.speculative = enabled
	w.collision.EnableSpeculativeContacts(enabled)
}

func (w *World) ContactSettings() *constraint.ContactSettings {
	return w.contactSettings
}

func (w *World) CollisionSystem() collision.System {
	return w.collision
}

func (w *World) Islands() *IslandManager {
	return w.islands
}

func (w *World) Arbiters() *constraint.ArbiterMap {
	return w.arbiters
}

// Bodies returns the bodies of the world, soft body mass points included. The slice is owned
// by the world.
func (w *World) Bodies() []*actor.RigidBody {
	return w.bodies
}

func (w *World) SoftBodies() []*actor.SoftBody {
	return w.softBodies
}

func (w *World) Constraints() []constraint.Constraint {
	return w.constraints
}

// KineticEnergy sums the kinetic energy of every body.
func (w *World) KineticEnergy() float64 {
	var energy float64
	for _, body := range w.bodies {
		energy += body.KineticEnergy()
	}
	return energy
}

// ========== BODIES ==========

func (w *World) AddBody(body *actor.RigidBody) error {
	if body == nil {
		return errors.WithStack(ErrNilBody)
	}
	if _, ok := w.bodyIndex[body]; ok {
		return errors.Wrapf(ErrBodyExists, "body %d", body.ID())
	}

	w.addBody(body)
	return nil
}

func (w *World) addBody(body *actor.RigidBody) {
	w.bodyIndex[body] = len(w.bodies)
	w.bodies = append(w.bodies, body)

	// mass points collide through their soft body
	if body.SoftBody() == nil {
		w.collision.AddEntity(body)
	}
	w.islands.AddBody(body)
	w.Events.track(body)

	w.logger.V(1).Info("body added", "id", body.ID(), "bodies", len(w.bodies))
	w.Events.emit(BodyAddedEvent{Body: body})
}

// RemoveBody removes the body with its arbiters and constraints. Mass points go with their
// soft body, through RemoveSoftBody.
func (w *World) RemoveBody(body *actor.RigidBody) error {
	if body == nil {
		return errors.WithStack(ErrNilBody)
	}
	if _, ok := w.bodyIndex[body]; !ok {
		return errors.Wrapf(ErrBodyNotFound, "body %d", body.ID())
	}
	if sb := body.SoftBody(); sb != nil && slices.Contains(w.softBodies, sb) {
		return errors.Wrapf(ErrInvalidTopology, "body %d is a mass point of a soft body", body.ID())
	}

	w.removeBody(body)
	return nil
}

func (w *World) removeBody(body *actor.RigidBody) {
	for n := len(body.Links.Arbiters); n > 0; n = len(body.Links.Arbiters) {
		w.removeArbiter(body.Links.Arbiters[n-1].(*constraint.Arbiter))
	}
	for n := len(body.Links.Constraints); n > 0; n = len(body.Links.Constraints) {
		w.removeConstraint(body.Links.Constraints[n-1].(constraint.Constraint))
	}

	if body.SoftBody() == nil {
		w.collision.RemoveEntity(body)
	}
	w.islands.RemoveBody(body)
	w.Events.untrack(body)

	i, last := w.bodyIndex[body], len(w.bodies)-1
	w.bodies[i] = w.bodies[last]
	w.bodyIndex[w.bodies[i]] = i
	w.bodies[last] = nil
	w.bodies = w.bodies[:last]
	delete(w.bodyIndex, body)

	w.logger.V(1).Info("body removed", "id", body.ID(), "bodies", len(w.bodies))
	w.Events.emit(BodyRemovedEvent{Body: body})
}

// ========== CONSTRAINTS ==========

// AddConstraint adds a constraint between two bodies already in the world. Anchor a body to
// the world with a static body.
func (w *World) AddConstraint(c constraint.Constraint) error {
	if c == nil {
		return errors.Wrap(ErrInvalidTopology, "nil constraint")
	}
	body1, body2 := c.Bodies()
	if body1 == nil || body2 == nil {
		return errors.Wrap(ErrNilBody, "constraint needs two bodies")
	}
	if body1 == body2 {
		return errors.Wrapf(ErrInvalidTopology, "constraint joins body %d to itself", body1.ID())
	}
	if _, ok := w.constraintIndex[c]; ok {
		return errors.WithStack(ErrConstraintExists)
	}
	for _, body := range []*actor.RigidBody{body1, body2} {
		if _, ok := w.bodyIndex[body]; !ok {
			return errors.Wrapf(ErrBodyNotFound, "constraint body %d", body.ID())
		}
	}

	w.addConstraint(c)
	return nil
}

func (w *World) addConstraint(c constraint.Constraint) {
	w.constraintIndex[c] = len(w.constraints)
	w.constraints = append(w.constraints, c)
	w.islands.ConstraintCreated(c)

	w.logger.V(1).Info("constraint added", "constraints", len(w.constraints))
	w.Events.emit(ConstraintAddedEvent{Constraint: c})
}

func (w *World) RemoveConstraint(c constraint.Constraint) error {
	if c == nil {
		return errors.Wrap(ErrInvalidTopology, "nil constraint")
	}
	if _, ok := w.constraintIndex[c]; !ok {
		return errors.WithStack(ErrConstraintNotFound)
	}

	w.removeConstraint(c)
	return nil
}

func (w *World) removeConstraint(c constraint.Constraint) {
	w.islands.ConstraintRemoved(c)

	i, last := w.constraintIndex[c], len(w.constraints)-1
	w.constraints[i] = w.constraints[last]
	w.constraintIndex[w.constraints[i]] = i
	w.constraints[last] = nil
	w.constraints = w.constraints[:last]
	delete(w.constraintIndex, c)

	w.logger.V(1).Info("constraint removed", "constraints", len(w.constraints))
	w.Events.emit(ConstraintRemovedEvent{Constraint: c})
}

// ========== SOFT BODIES ==========

// AddSoftBody adds the mass points as bodies, the springs as constraints, and the soft body
// itself to the collision system.
func (w *World) AddSoftBody(sb *actor.SoftBody) error {
	if sb == nil {
		return errors.Wrap(ErrInvalidTopology, "nil soft body")
	}
	if slices.Contains(w.softBodies, sb) {
		return errors.WithStack(ErrSoftBodyExists)
	}
	for _, point := range sb.Points {
		if _, ok := w.bodyIndex[point]; ok {
			return errors.Wrapf(ErrBodyExists, "mass point %d", point.ID())
		}
	}

	w.softBodies = append(w.softBodies, sb)
	for _, point := range sb.Points {
		w.addBody(point)
	}
	for _, spring := range sb.Springs {
		w.addConstraint(spring)
	}
	w.collision.AddEntity(sb)

	w.logger.V(1).Info("soft body added", "points", len(sb.Points), "springs", len(sb.Springs))
	w.Events.emit(SoftBodyAddedEvent{SoftBody: sb})
	return nil
}

func (w *World) RemoveSoftBody(sb *actor.SoftBody) error {
	i := slices.Index(w.softBodies, sb)
	if sb == nil || i < 0 {
		return errors.WithStack(ErrSoftBodyNotFound)
	}

	w.collision.RemoveEntity(sb)
	for _, point := range sb.Points {
		if _, ok := w.bodyIndex[point]; ok {
			w.removeBody(point)
		}
	}
	w.softBodies = slices.Delete(w.softBodies, i, i+1)

	w.logger.V(1).Info("soft body removed", "soft bodies", len(w.softBodies))
	w.Events.emit(SoftBodyRemovedEvent{SoftBody: sb})
	return nil
}

// ========== ARBITERS ==========

// collisionDetected is the CollisionDetected listener of the collision system. It may run on
// several goroutines at once, hence the arbiter map lock; island bookkeeping waits for
// registerArbiters on the stepping goroutine.
func (w *World) collisionDetected(body1, body2 *actor.RigidBody, point1, point2, normal mgl64.Vec3, penetration float64) bool {
	w.arbiters.Lock()
	defer w.arbiters.Unlock()

	arbiter, created := w.arbiters.Add(body1, body2)
	if created {
		w.createdArbiters = append(w.createdArbiters, arbiter)
		w.Events.record(CollisionBeginEvent{Body1: arbiter.Body1, Body2: arbiter.Body2})
	}

	// contacts keep their normal from Body1 toward Body2
	if contact := arbiter.AddContact(body1, point1, point2, normal.Mul(-1), penetration, w.contactSettings); contact != nil {
		w.Events.record(ContactCreatedEvent{Contact: contact})
	}
	return true
}

func compareArbiters(a, b *constraint.Arbiter) int {
	return cmp.Or(cmp.Compare(a.Body1.ID(), b.Body1.ID()), cmp.Compare(a.Body2.ID(), b.Body2.ID()))
}

// registerArbiters links the arbiters created by the last detection into the island graph.
func (w *World) registerArbiters() {
	slices.SortFunc(w.createdArbiters, compareArbiters)
	for _, arbiter := range w.createdArbiters {
		w.islands.ArbiterCreated(arbiter)
	}
	clear(w.createdArbiters)
	w.createdArbiters = w.createdArbiters[:0]
}

// updateContacts moves the cached contacts with their bodies and destroys the arbiters left
// without contacts, once the pass over the map is done.
func (w *World) updateContacts() {
	w.arbiters.Range(func(arbiter *constraint.Arbiter) bool {
		if arbiter.Update(w.contactSettings) {
			w.removedArbiters = append(w.removedArbiters, arbiter)
		}
		return true
	})

	slices.SortFunc(w.removedArbiters, compareArbiters)
	for _, arbiter := range w.removedArbiters {
		w.removeArbiter(arbiter)
	}
	clear(w.removedArbiters)
	w.removedArbiters = w.removedArbiters[:0]
}

func (w *World) removeArbiter(arbiter *constraint.Arbiter) {
	body1, body2 := arbiter.Bodies()
	w.islands.ArbiterRemoved(arbiter)
	w.arbiters.Remove(arbiter)
	w.Events.emit(CollisionEndEvent{Body1: body1, Body2: body2})
}

// ========== STEP ==========

// Step advances the world by timestep seconds. With multithreaded set, the narrowphase, the
// axis sorts, the body integration and the island solver run on the thread pool.
func (w *World) Step(timestep float64, multithreaded bool) error {
	if timestep < 0 || math.IsNaN(timestep) {
		return errors.Wrapf(ErrNegativeTimestep, "timestep %v", timestep)
	}
	if timestep == 0 {
		return nil
	}
	w.timestep = timestep

	// Phase 1: pre-step hooks
	w.Events.emit(PreStepEvent{Timestep: timestep})
	for _, body := range w.bodies {
		if body.PreStep != nil {
			body.PreStep(body, timestep)
		}
	}

	// Phase 2: drop the contacts that broke since the last step
	w.updateContacts()

	// Phase 3: broad phase and narrow phase
	w.collision.Detect(multithreaded)
	w.registerArbiters()
	w.Events.flush()

	// Phase 4: islands
	if w.islands.Strategy() == IslandsRebuild {
		w.islands.Rebuild(w.bodies)
	}
	w.islands.CollectLinks()

	// Phase 5: deactivation
	w.checkDeactivation(timestep)
	w.Events.processSleepEvents(w.bodies)

	// Phase 6: soft bodies
	for _, sb := range w.softBodies {
		sb.Update(timestep)
	}

	// Phase 7: forces into velocities
	gravity := w.gravity
	task(w.threadPool, multithreaded, w.bodies, func(body *actor.RigidBody) {
		body.IntegrateForces(timestep, gravity)
	})

	// Phase 8: solver
	w.solve(multithreaded)

	// Phase 9: velocities into positions
	linearDamping := math.Pow(w.linearDamping, timestep)
	angularDamping := math.Pow(w.angularDamping, timestep)
	speculative := w.speculative
	task(w.threadPool, multithreaded, w.bodies, func(body *actor.RigidBody) {
		body.Integrate(timestep, linearDamping, angularDamping, speculative)
	})

	// Phase 10: post-step hooks
	for _, body := range w.bodies {
		if body.PostStep != nil {
			body.PostStep(body, timestep)
		}
	}
	w.Events.emit(PostStepEvent{Timestep: timestep})

	w.logger.V(2).Info("step", "dt", timestep, "bodies", len(w.bodies), "arbiters", w.arbiters.Len(),
		"islands", w.islands.Len())
	return nil
}

// StepFixed adds totalTime to the accumulated time and consumes it in steps of timestep, at
// most maxSteps of them. Time left over after maxSteps is dropped. It returns the number of
// steps taken.
func (w *World) StepFixed(totalTime float64, multithreaded bool, timestep float64, maxSteps int) (int, error) {
	if totalTime < 0 || math.IsNaN(totalTime) {
		return 0, errors.Wrapf(ErrNegativeTimestep, "total time %v", totalTime)
	}
	if timestep <= 0 || math.IsNaN(timestep) {
		return 0, errors.Wrapf(ErrInvalidConfiguration, "timestep %v must be positive", timestep)
	}
	if maxSteps < 1 {
		return 0, errors.Wrapf(ErrInvalidConfiguration, "max steps %d < 1", maxSteps)
	}

	w.accumulatedTime += totalTime

	steps := 0
	for w.accumulatedTime >= timestep && steps < maxSteps {
		if err := w.Step(timestep, multithreaded); err != nil {
			return steps, err
		}
		w.accumulatedTime -= timestep
		steps++
	}

	if w.accumulatedTime >= timestep {
		w.logger.Info("dropping simulation time", "dropped", w.accumulatedTime, "steps", steps, "maxSteps", maxSteps)
		w.accumulatedTime = 0
	}
	return steps, nil
}

// checkDeactivation puts an island to sleep once every body in it rested for the
// deactivation time, and wakes the whole island as soon as one of them does not.
func (w *World) checkDeactivation(timestep float64) {
	for _, island := range w.islands.Islands() {
		deactivate := true

		for _, body := range island.Bodies {
			if w.allowDeactivation && body.AllowDeactivation &&
				body.AngularVelocity.LenSqr() < w.inactiveAngularThresholdSq &&
				body.Velocity.LenSqr() < w.inactiveLinearThresholdSq {
				body.SleepTimer += timestep
			} else {
				body.SleepTimer = 0
			}

			if body.SleepTimer < w.deactivationTime {
				deactivate = false
			}
		}

		for _, body := range island.Bodies {
			body.SetActive(!deactivate)
		}
	}
}

func (w *World) solve(multithreaded bool) {
	if multithreaded && w.threadPool.ThreadCount() > 1 {
		for _, island := range w.islands.Islands() {
			if island.IsActive() {
				w.threadPool.AddTask(w.solveIslandTask, island)
			}
		}
		w.threadPool.Execute()
		return
	}

	for _, island := range w.islands.Islands() {
		if island.IsActive() {
			w.solveIsland(island)
		}
	}
}

func (w *World) solveIslandTask(param any) {
	w.solveIsland(param.(*CollisionIsland))
}

func (w *World) solveIsland(island *CollisionIsland) {
	iterations := w.iterations
	if len(island.Bodies)+len(island.Constraints) <= 3 {
		iterations = w.smallIterations
	}

	for _, arbiter := range island.Arbiters {
		arbiter.PrepareForIteration(w.timestep)
	}
	for _, c := range island.Constraints {
		c.PrepareForIteration(w.timestep)
	}

	for range iterations {
		for _, arbiter := range island.Arbiters {
			arbiter.Iterate()
		}
		for _, c := range island.Constraints {
			c.Iterate()
		}
	}
}
