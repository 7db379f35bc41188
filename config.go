package jitter

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/akmonengine/jitter/constraint"
)

const (
	DefaultIterations               = 10
	DefaultSmallIterations          = 4
	DefaultDamping                  = 0.85
	DefaultInactiveAngularThreshold = 0.1
	DefaultInactiveLinearThreshold  = 0.1
	DefaultDeactivationTime         = 2.0
	DefaultGridCellSize             = 2.0
	DefaultGridCells                = 4096
)

// Broadphase kinds accepted in Config.Broadphase.
const (
	BroadphaseBrute = "brute"
	BroadphaseSAP   = "sap"
	BroadphaseGrid  = "grid"
)

// Config is everything NewWorld needs. The zero value is not usable, start from
// DefaultConfig.
type Config struct {
	Gravity [3]float64 `yaml:"gravity"`

	// Damping factors are applied as factor^dt after every step, 1 disables damping.
	LinearDamping  float64 `yaml:"linear_damping"`
	AngularDamping float64 `yaml:"angular_damping"`

	Iterations      int `yaml:"iterations"`
	SmallIterations int `yaml:"small_iterations"`

	AllowDeactivation        bool    `yaml:"allow_deactivation"`
	InactiveAngularThreshold float64 `yaml:"inactive_angular_threshold"`
	InactiveLinearThreshold  float64 `yaml:"inactive_linear_threshold"`
	DeactivationTime         float64 `yaml:"deactivation_time"`

	Contacts ContactConfig `yaml:"contacts"`

	Broadphase          string     `yaml:"broadphase"`
	Grid                GridConfig `yaml:"grid"`
	Islands             string     `yaml:"islands"`
	SpeculativeContacts bool       `yaml:"speculative_contacts"`

	// Workers is the number of thread pool goroutines besides the caller. Negative picks
	// GOMAXPROCS-1.
	Workers int `yaml:"workers"`
}

type ContactConfig struct {
	MaximumBias        float64 `yaml:"maximum_bias"`
	BiasFactor         float64 `yaml:"bias_factor"`
	MinimumVelocity    float64 `yaml:"minimum_velocity"`
	AllowedPenetration float64 `yaml:"allowed_penetration"`
	BreakThreshold     float64 `yaml:"break_threshold"`
	Mixing             string  `yaml:"mixing"`
}

type GridConfig struct {
	CellSize float64 `yaml:"cell_size"`
	Cells    int     `yaml:"cells"`
}

func DefaultConfig() *Config {
	contacts := constraint.DefaultContactSettings()

	return &Config{
		Gravity:                  [3]float64{0, -9.81, 0},
		LinearDamping:            DefaultDamping,
		AngularDamping:           DefaultDamping,
		Iterations:               DefaultIterations,
		SmallIterations:          DefaultSmallIterations,
		AllowDeactivation:        true,
		InactiveAngularThreshold: DefaultInactiveAngularThreshold,
		InactiveLinearThreshold:  DefaultInactiveLinearThreshold,
		DeactivationTime:         DefaultDeactivationTime,
		Contacts: ContactConfig{
			MaximumBias:        contacts.MaximumBias(),
			BiasFactor:         contacts.BiasFactor(),
			MinimumVelocity:    contacts.MinimumVelocity(),
			AllowedPenetration: contacts.AllowedPenetration(),
			BreakThreshold:     contacts.BreakThreshold(),
			Mixing:             contacts.MaterialCoefficientMixing().String(),
		},
		Broadphase: BroadphaseSAP,
		Grid: GridConfig{
			CellSize: DefaultGridCellSize,
			Cells:    DefaultGridCells,
		},
		Islands: IslandsRebuild.String(),
		Workers: -1,
	}
}

// LoadConfig reads a yaml file over DefaultConfig, so missing keys keep their default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "parsing %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0644), "writing config %s", path)
}

// Validate reports the first out of range value. It does not clamp anything.
func (c *Config) Validate() error {
	switch {
	case c.LinearDamping < 0 || c.LinearDamping > 1:
		return errors.Wrapf(ErrInvalidConfiguration, "linear damping %v outside [0, 1]", c.LinearDamping)
	case c.AngularDamping < 0 || c.AngularDamping > 1:
		return errors.Wrapf(ErrInvalidConfiguration, "angular damping %v outside [0, 1]", c.AngularDamping)
	case c.Iterations < 1:
		return errors.Wrapf(ErrInvalidConfiguration, "iterations %d < 1", c.Iterations)
	case c.SmallIterations < 1:
		return errors.Wrapf(ErrInvalidConfiguration, "small iterations %d < 1", c.SmallIterations)
	case c.InactiveAngularThreshold < 0:
		return errors.Wrapf(ErrInvalidConfiguration, "inactive angular threshold %v is negative", c.InactiveAngularThreshold)
	case c.InactiveLinearThreshold < 0:
		return errors.Wrapf(ErrInvalidConfiguration, "inactive linear threshold %v is negative", c.InactiveLinearThreshold)
	case c.DeactivationTime < 0:
		return errors.Wrapf(ErrInvalidConfiguration, "deactivation time %v is negative", c.DeactivationTime)
	}

	switch c.Broadphase {
	case BroadphaseBrute, BroadphaseSAP:
	case BroadphaseGrid:
		if c.Grid.CellSize <= 0 {
			return errors.Wrapf(ErrInvalidConfiguration, "grid cell size %v must be positive", c.Grid.CellSize)
		}
		if c.Grid.Cells < 1 {
			return errors.Wrapf(ErrInvalidConfiguration, "grid cells %d < 1", c.Grid.Cells)
		}
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown broadphase %q", c.Broadphase)
	}

	if _, err := ParseIslandStrategy(c.Islands); err != nil {
		return err
	}

	_, err := c.contactSettings()
	return err
}

// contactSettings goes through the validating setters of constraint.ContactSettings.
func (c *Config) contactSettings() (*constraint.ContactSettings, error) {
	settings := constraint.DefaultContactSettings()

	mixing, err := constraint.ParseMaterialCoefficientMixing(c.Contacts.Mixing)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfiguration, err.Error())
	}

	for _, set := range []func() error{
		func() error { return settings.SetMaximumBias(c.Contacts.MaximumBias) },
		func() error { return settings.SetBiasFactor(c.Contacts.BiasFactor) },
		func() error { return settings.SetMinimumVelocity(c.Contacts.MinimumVelocity) },
		func() error { return settings.SetAllowedPenetration(c.Contacts.AllowedPenetration) },
		func() error { return settings.SetBreakThreshold(c.Contacts.BreakThreshold) },
		func() error { return settings.SetMaterialCoefficientMixing(mixing) },
	} {
		if err := set(); err != nil {
			return nil, errors.Wrap(ErrInvalidConfiguration, err.Error())
		}
	}
	return settings, nil
}
