package main

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/akmonengine/jitter"
	"github.com/akmonengine/jitter/actor"
)

// SetupScene creates a world with a static floor and a tilted cube above it.
func SetupScene() (*jitter.World, *actor.RigidBody, *actor.RigidBody, error) {
	world, err := jitter.NewWorld(jitter.DefaultConfig())
	if err != nil {
		return nil, nil, nil, err
	}

	// Floor top at y=0
	floorBody := actor.NewRigidBody(
		actor.Transform{Position: mgl64.Vec3{0, -1, 0}},
		&actor.Box{HalfExtents: mgl64.Vec3{20, 1, 20}},
		actor.BodyTypeStatic,
		0.0,
	)
	if err := world.AddBody(floorBody); err != nil {
		return nil, nil, nil, err
	}

	cubeTransform := actor.Transform{
		Position: mgl64.Vec3{-5.0, 5.0, -5.0},
		Rotation: mgl64.QuatRotate(mgl64.DegToRad(70.0), mgl64.Vec3{0, 0, 1}),
	}
	cubeBody := actor.NewRigidBody(cubeTransform, &actor.Box{HalfExtents: mgl64.Vec3{1.5, 1.5, 1.5}}, actor.BodyTypeDynamic, 1.0)
	cubeBody.Material.Restitution = 0.8
	if err := world.AddBody(cubeBody); err != nil {
		return nil, nil, nil, err
	}

	return world, floorBody, cubeBody, nil
}

// RunCubeScene drops the cube and prints its state until it falls asleep.
func RunCubeScene() error {
	world, floorBody, cubeBody, err := SetupScene()
	if err != nil {
		return err
	}
	defer world.Close()

	world.Events.Subscribe(jitter.COLLISION_BEGIN, func(e jitter.Event) {
		fmt.Printf("  collision begin: %d - %d\n", e.(jitter.CollisionBeginEvent).Body1.ID(), e.(jitter.CollisionBeginEvent).Body2.ID())
	})
	world.Events.Subscribe(jitter.CONTACT_CREATED, func(e jitter.Event) {
		c := e.(jitter.ContactCreatedEvent).Contact
		fmt.Printf("  contact: point=%v normal=%v penetration=%.4f\n", c.Position1, c.Normal, c.Penetration)
	})
	world.Events.Subscribe(jitter.BODY_DEACTIVATED, func(e jitter.Event) {
		fmt.Printf("  body %d deactivated\n", e.(jitter.BodyDeactivatedEvent).Body.ID())
	})

	fmt.Printf("Floor: position %v\n", floorBody.Transform.Position)
	fmt.Printf("Cube: position %v, rotation %v\n", cubeBody.Transform.Position, cubeBody.Transform.Rotation)
	fmt.Printf("Gravity: %v\n\n", world.Gravity())

	const dt float64 = 1.0 / 60.0
	const maxSteps int = 600

	for step := 0; step < maxSteps && !cubeBody.IsSleeping; step++ {
		if err := world.Step(dt, true); err != nil {
			return err
		}

		if step%30 == 0 {
			fmt.Printf("--- step %d ---\n", step+1)
			fmt.Printf("  position: %v\n", cubeBody.Transform.Position)
			fmt.Printf("  velocity: %v\n", cubeBody.Velocity)
			fmt.Printf("  angular velocity: %v (len=%.3f)\n", cubeBody.AngularVelocity, cubeBody.AngularVelocity.Len())
		}
	}

	fmt.Printf("\nfinal position %v, sleeping %v\n", cubeBody.Transform.Position, cubeBody.IsSleeping)
	return nil
}

func main() {
	if err := RunCubeScene(); err != nil {
		fmt.Println(err)
	}
}
