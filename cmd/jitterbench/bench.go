package main

import (
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/akmonengine/jitter"
)

var parallelRuns int

type benchResult struct {
	scene    string
	bodies   int
	sleeping int
	steps    int
	elapsed  time.Duration
}

// benchmark runs every scene in its own single threaded world, at most limit of them at once.
// It stops at the first scene that fails.
func benchmark(scenes []Scene, cfg *jitter.Config, logger logr.Logger, limit int) ([]benchResult, error) {
	results := make([]benchResult, len(scenes))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, scene := range scenes {
		g.Go(func() error {
			world, err := jitter.NewWorld(cfg, jitter.WithLogger(logger.WithName(scene.Name)))
			if err != nil {
				return err
			}
			defer world.Close()

			if err := scene.Build(world); err != nil {
				return errors.Wrapf(err, "scene %s", scene.Name)
			}

			start := time.Now()
			frames := int(duration / dt)
			for frame := 0; frame < frames; frame++ {
				if err := world.Step(dt, false); err != nil {
					return errors.Wrapf(err, "scene %s, frame %d", scene.Name, frame)
				}
			}

			result := benchResult{scene: scene.Name, bodies: len(world.Bodies()), steps: frames, elapsed: time.Since(start)}
			for _, body := range world.Bodies() {
				if body.IsSleeping {
					result.sleeping++
				}
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func benchScenes(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = sceneNames()
	}
	scenes := make([]Scene, 0, len(args))
	for _, arg := range args {
		scene, err := loadScene(arg)
		if err != nil {
			return err
		}
		scenes = append(scenes, scene)
	}

	cfg, err := loadWorldConfig()
	if err != nil {
		return err
	}
	// each world steps on its own goroutine
	cfg.Workers = 0

	limit := parallelRuns
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results, err := benchmark(scenes, cfg, newLogger(), limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENE\tBODIES\tSLEEPING\tSTEPS\tELAPSED\tPER STEP")
	for _, r := range results {
		perStep := time.Duration(0)
		if r.steps > 0 {
			perStep = r.elapsed / time.Duration(r.steps)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\t%v\n", r.scene, r.bodies, r.sleeping, r.steps, r.elapsed, perStep)
	}
	return w.Flush()
}
