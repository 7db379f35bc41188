package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/akmonengine/jitter"
	"github.com/akmonengine/jitter/actor"
	"github.com/akmonengine/jitter/constraint"
)

// Scene is the yaml description of a benchmark scene.
type Scene struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Floor       bool        `yaml:"floor"`
	Bodies      []BodySpec  `yaml:"bodies"`
	Chains      []ChainSpec `yaml:"chains"`
	Cloths      []ClothSpec `yaml:"cloths"`
}

// BodySpec places Count bodies, each one Offset away from the previous.
type BodySpec struct {
	Shape       string     `yaml:"shape"` // box, sphere, capsule
	Size        [3]float64 `yaml:"size"`  // half extents, radius, or radius and length
	Position    [3]float64 `yaml:"position"`
	Velocity    [3]float64 `yaml:"velocity"`
	Static      bool       `yaml:"static"`
	Density     float64    `yaml:"density"`
	Restitution float64    `yaml:"restitution"`
	Friction    float64    `yaml:"friction"`
	Count       int        `yaml:"count"`
	Offset      [3]float64 `yaml:"offset"`
}

// ChainSpec hangs Links spheres under a static anchor, joined by distance constraints.
type ChainSpec struct {
	Anchor  [3]float64 `yaml:"anchor"`
	Links   int        `yaml:"links"`
	Spacing float64    `yaml:"spacing"`
	Radius  float64    `yaml:"radius"`
}

type ClothSpec struct {
	Position  [3]float64 `yaml:"position"`
	Size      [2]int     `yaml:"size"`
	Scale     float64    `yaml:"scale"`
	PointMass float64    `yaml:"point_mass"`
}

var builtinScenes = map[string]Scene{
	"pyramid": {
		Name:        "pyramid",
		Description: "a box pyramid resting on the floor",
		Floor:       true,
		Bodies:      pyramid(8),
	},
	"rain": {
		Name:        "rain",
		Description: "spheres and capsules falling onto the floor",
		Floor:       true,
		Bodies: []BodySpec{
			{Shape: "sphere", Size: [3]float64{0.5}, Position: [3]float64{-4, 2, -4}, Count: 10, Offset: [3]float64{0.9, 1.2, 0.8}},
			{Shape: "capsule", Size: [3]float64{0.3, 1}, Position: [3]float64{4, 3, -4}, Count: 10, Offset: [3]float64{-0.8, 1.2, 0.9}},
			{Shape: "box", Size: [3]float64{0.5, 0.5, 0.5}, Position: [3]float64{0, 4, 0}, Count: 10, Offset: [3]float64{0.1, 1.1, 0.1}},
		},
	},
	"newton": {
		Name:        "newton",
		Description: "elastic spheres colliding head-on, no gravity needed",
		Bodies: []BodySpec{
			{Shape: "sphere", Size: [3]float64{0.5}, Position: [3]float64{-5, 0.5, 0}, Velocity: [3]float64{5, 0, 0}, Restitution: 1},
			{Shape: "sphere", Size: [3]float64{0.5}, Position: [3]float64{0, 0.5, 0}, Restitution: 1, Count: 4, Offset: [3]float64{1.01, 0, 0}},
		},
		Floor: true,
	},
	"chain": {
		Name:        "chain",
		Description: "a swinging chain of spheres",
		Chains:      []ChainSpec{{Anchor: [3]float64{0, 10, 0}, Links: 12, Spacing: 0.6, Radius: 0.25}},
		Floor:       true,
	},
	"cloth": {
		Name:        "cloth",
		Description: "a cloth falling onto a box",
		Floor:       true,
		Bodies:      []BodySpec{{Shape: "box", Size: [3]float64{1, 1, 1}, Position: [3]float64{2, 1, 2}, Static: true}},
		Cloths:      []ClothSpec{{Position: [3]float64{0, 3, 0}, Size: [2]int{10, 10}, Scale: 0.4, PointMass: 0.1}},
	},
}

func pyramid(rows int) []BodySpec {
	specs := make([]BodySpec, 0, rows)
	for row := 0; row < rows; row++ {
		specs = append(specs, BodySpec{
			Shape:    "box",
			Size:     [3]float64{0.5, 0.5, 0.5},
			Position: [3]float64{float64(row)*0.51 - float64(rows)*0.5, 0.5 + float64(row), 0},
			Count:    rows - row,
			Offset:   [3]float64{1.02, 0, 0},
		})
	}
	return specs
}

func sceneNames() []string {
	names := make([]string, 0, len(builtinScenes))
	for name := range builtinScenes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// loadScene returns a built-in scene by name, or reads a yaml file.
func loadScene(nameOrPath string) (Scene, error) {
	if scene, ok := builtinScenes[nameOrPath]; ok {
		return scene, nil
	}

	data, err := os.ReadFile(nameOrPath)
	if err != nil {
		return Scene{}, errors.Wrapf(err, "scene %q is neither built in nor a readable file", nameOrPath)
	}
	var scene Scene
	if err := yaml.Unmarshal(data, &scene); err != nil {
		return Scene{}, errors.Wrapf(err, "parsing scene %s", nameOrPath)
	}
	if scene.Name == "" {
		scene.Name = nameOrPath
	}
	return scene, nil
}

func newShape(spec BodySpec) (actor.Shape, error) {
	switch spec.Shape {
	case "box":
		return &actor.Box{HalfExtents: mgl64.Vec3(spec.Size)}, nil
	case "sphere":
		return &actor.Sphere{Radius: spec.Size[0]}, nil
	case "capsule":
		return &actor.Capsule{Radius: spec.Size[0], Length: spec.Size[1]}, nil
	}
	return nil, fmt.Errorf("unknown shape %q", spec.Shape)
}

// Build adds the scene to w.
func (s Scene) Build(w *jitter.World) error {
	if s.Floor {
		floor := actor.NewRigidBody(
			actor.Transform{Position: mgl64.Vec3{0, -1, 0}},
			&actor.Box{HalfExtents: mgl64.Vec3{50, 1, 50}},
			actor.BodyTypeStatic,
			0,
		)
		if err := w.AddBody(floor); err != nil {
			return err
		}
	}

	for i, spec := range s.Bodies {
		if err := addBodies(w, spec); err != nil {
			return errors.Wrapf(err, "bodies[%d]", i)
		}
	}
	for i, spec := range s.Chains {
		if err := addChain(w, spec); err != nil {
			return errors.Wrapf(err, "chains[%d]", i)
		}
	}
	for i, spec := range s.Cloths {
		cloth := actor.NewClothGrid(spec.Size[0], spec.Size[1], spec.Scale, spec.PointMass)
		for _, point := range cloth.Points {
			point.Transform.Position = point.Transform.Position.Add(mgl64.Vec3(spec.Position))
			point.Update()
		}
		cloth.Update(0)
		if err := w.AddSoftBody(cloth); err != nil {
			return errors.Wrapf(err, "cloths[%d]", i)
		}
	}
	return nil
}

func addBodies(w *jitter.World, spec BodySpec) error {
	bodyType := actor.BodyTypeDynamic
	if spec.Static {
		bodyType = actor.BodyTypeStatic
	}
	density := spec.Density
	if density <= 0 {
		density = 1
	}

	position := mgl64.Vec3(spec.Position)
	for i := 0; i < max(spec.Count, 1); i++ {
		shape, err := newShape(spec)
		if err != nil {
			return err
		}

		body := actor.NewRigidBody(actor.Transform{Position: position}, shape, bodyType, density)
		body.Velocity = mgl64.Vec3(spec.Velocity)
		body.Material.Restitution = spec.Restitution
		body.Material.StaticFriction = spec.Friction
		body.Material.DynamicFriction = spec.Friction
		if err := w.AddBody(body); err != nil {
			return err
		}
		position = position.Add(mgl64.Vec3(spec.Offset))
	}
	return nil
}

func addChain(w *jitter.World, spec ChainSpec) error {
	anchor := actor.NewRigidBody(
		actor.Transform{Position: mgl64.Vec3(spec.Anchor)},
		&actor.Sphere{Radius: spec.Radius},
		actor.BodyTypeStatic,
		0,
	)
	if err := w.AddBody(anchor); err != nil {
		return err
	}

	previous := anchor
	for i := 1; i <= spec.Links; i++ {
		// links start horizontal so the chain swings
		position := anchor.Transform.Position.Add(mgl64.Vec3{float64(i) * spec.Spacing, 0, 0})
		link := actor.NewRigidBody(actor.Transform{Position: position}, &actor.Sphere{Radius: spec.Radius}, actor.BodyTypeDynamic, 1)
		if err := w.AddBody(link); err != nil {
			return err
		}

		joint := constraint.NewPointPointDistance(previous, link, previous.Transform.Position, link.Transform.Position)
		if err := w.AddConstraint(joint); err != nil {
			return err
		}
		previous = link
	}
	return nil
}
