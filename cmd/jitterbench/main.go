package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/akmonengine/jitter"
)

var (
	configFile    string
	verbose       int
	dt            float64
	duration      float64
	maxSteps      int
	multithreaded bool
	broadphase    string
	islands       string
	plot          bool
)

// main registers the commands and runs the root command, exiting with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:          "jitterbench",
		Short:        "headless rigid body scene runner",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "world config file path (yaml)")
	rootCmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", 0, "log verbosity (0-2)")

	runCmd := &cobra.Command{
		Use:   "run [scene]",
		Short: "run a built-in scene or a yaml scene file",
		Args:  cobra.ExactArgs(1),
		RunE:  runScene,
	}
	runCmd.Flags().Float64Var(&dt, "dt", 1.0/60.0, "timestep")
	runCmd.Flags().Float64Var(&duration, "time", 10.0, "simulated duration")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 4, "maximum steps per frame")
	runCmd.Flags().BoolVar(&multithreaded, "multithreaded", true, "use the thread pool")
	runCmd.Flags().StringVar(&broadphase, "broadphase", "", "override the broadphase (brute, sap, grid)")
	runCmd.Flags().StringVar(&islands, "islands", "", "override the island strategy (rebuild, incremental)")
	runCmd.Flags().BoolVar(&plot, "plot", false, "plot the kinetic energy")

	benchCmd := &cobra.Command{
		Use:   "bench [scene...]",
		Short: "run scenes side by side, each in its own world, and time them",
		RunE:  benchScenes,
	}
	benchCmd.Flags().Float64Var(&dt, "dt", 1.0/60.0, "timestep")
	benchCmd.Flags().Float64Var(&duration, "time", 10.0, "simulated duration")
	benchCmd.Flags().StringVar(&broadphase, "broadphase", "", "override the broadphase (brute, sap, grid)")
	benchCmd.Flags().StringVar(&islands, "islands", "", "override the island strategy (rebuild, incremental)")
	benchCmd.Flags().IntVar(&parallelRuns, "parallel", 0, "scenes run at once (0 uses GOMAXPROCS)")

	scenesCmd := &cobra.Command{
		Use:   "scenes",
		Short: "list built-in scenes",
		RunE:  listScenes,
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write the default world config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return jitter.SaveConfig(args[0], jitter.DefaultConfig())
		},
	}

	rootCmd.AddCommand(runCmd, benchCmd, scenesCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
		} else {
			fmt.Fprintln(os.Stderr, args)
		}
	}, funcr.Options{Verbosity: verbose})
}

func loadWorldConfig() (*jitter.Config, error) {
	cfg := jitter.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = jitter.LoadConfig(configFile); err != nil {
			return nil, err
		}
	}
	if broadphase != "" {
		cfg.Broadphase = broadphase
	}
	if islands != "" {
		cfg.Islands = islands
	}
	return cfg, cfg.Validate()
}

func runScene(cmd *cobra.Command, args []string) error {
	scene, err := loadScene(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadWorldConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	world, err := jitter.NewWorld(cfg, jitter.WithLogger(logger.WithName("world")))
	if err != nil {
		return err
	}
	defer world.Close()

	if err := scene.Build(world); err != nil {
		return err
	}

	frames := int(duration / dt)
	energy := make([]float64, 0, frames)
	steps := 0

	start := time.Now()
	for frame := 0; frame < frames; frame++ {
		n, err := world.StepFixed(dt, multithreaded, dt, maxSteps)
		if err != nil {
			return err
		}
		steps += n
		energy = append(energy, world.KineticEnergy())
	}
	elapsed := time.Since(start)

	sleeping := 0
	for _, body := range world.Bodies() {
		if body.IsSleeping {
			sleeping++
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "scene:\t%s\n", scene.Name)
	fmt.Fprintf(w, "broadphase:\t%s\n", cfg.Broadphase)
	fmt.Fprintf(w, "islands:\t%s (%d)\n", cfg.Islands, world.Islands().Len())
	fmt.Fprintf(w, "bodies:\t%d (%d sleeping)\n", len(world.Bodies()), sleeping)
	fmt.Fprintf(w, "arbiters:\t%d\n", world.Arbiters().Len())
	fmt.Fprintf(w, "steps:\t%d\n", steps)
	fmt.Fprintf(w, "elapsed:\t%v\n", elapsed)
	if steps > 0 {
		fmt.Fprintf(w, "per step:\t%v\n", elapsed/time.Duration(steps))
	}
	w.Flush()

	if plot && len(energy) > 0 {
		fmt.Println()
		graph := asciigraph.Plot(energy,
			asciigraph.Height(12),
			asciigraph.Width(80),
			asciigraph.Caption("kinetic energy (J)"),
		)
		fmt.Println(graph)
	}

	return nil
}

func listScenes(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, name := range sceneNames() {
		fmt.Fprintf(w, "%s\t%s\n", name, builtinScenes[name].Description)
	}
	return w.Flush()
}
