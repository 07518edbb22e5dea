// Package config loads simulation settings from YAML or INI files layered
// over embedded defaults, with BOLDSIM_* environment overrides on top.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/boldsim/internal/dynamo"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const (
	MethodMonteCarlo = "montecarlo"
	// MethodMonteCarloGrid walks spins through the discretized field.
	MethodMonteCarloGrid = "montecarlo_grid"
	MethodDeterministic  = "deterministic"
)

// Methods lists the simulation methods a config may name.
var Methods = []string{MethodMonteCarlo, MethodMonteCarloGrid, MethodDeterministic}

type Config struct {
	Method   string   `yaml:"method" env:"METHOD"`
	Seed     uint64   `yaml:"seed" env:"SEED"`
	Repeats  int      `yaml:"repeats" env:"REPEATS"`
	LogLevel string   `yaml:"log_level" env:"LOG_LEVEL"`
	Metrics  []string `yaml:"metrics" env:"METRICS" envSeparator:","`

	Voxel         VoxelConfig         `yaml:"voxel" envPrefix:"VOXEL_"`
	Groups        []GroupConfig       `yaml:"groups"`
	Spins         SpinConfig          `yaml:"spins" envPrefix:"SPINS_"`
	Sequence      SequenceConfig      `yaml:"sequence" envPrefix:"SEQUENCE_"`
	Deterministic DeterministicConfig `yaml:"deterministic" envPrefix:"DD_"`
}

type VoxelConfig struct {
	Dim        int     `yaml:"dim" env:"DIM"`
	Size       float64 `yaml:"size" env:"SIZE"`
	NumVessels int     `yaml:"num_vessels" env:"NUM_VESSELS"`
	SizeFromK  float64 `yaml:"size_from_k" env:"SIZE_FROM_K"`
	CBV        float64 `yaml:"cbv" env:"CBV"`
	B0         float64 `yaml:"b0" env:"B0"`

	AllowIntersection bool   `yaml:"allow_intersection" env:"ALLOW_INTERSECTION"`
	MaxRetries        int    `yaml:"max_retries" env:"MAX_RETRIES"`
	MaxVessels        int    `yaml:"max_vessels" env:"MAX_VESSELS"`
	InsideField       string `yaml:"inside_field" env:"INSIDE_FIELD"`
	// FieldCutoff enables the 2D spatial index: vessels whose field falls
	// below this fraction of the peak are skipped. 0 sums every vessel.
	FieldCutoff float64 `yaml:"field_cutoff" env:"FIELD_CUTOFF"`
	// Snapshot loads a saved voxel instead of populating one.
	Snapshot string `yaml:"snapshot" env:"SNAPSHOT"`
}

type DistributionConfig struct {
	Kind   string    `yaml:"kind"`
	Values []float64 `yaml:"values,flow,omitempty"`
	Min    float64   `yaml:"min,omitempty"`
	Max    float64   `yaml:"max,omitempty"`
	Mean   float64   `yaml:"mean,omitempty"`
	Std    float64   `yaml:"std,omitempty"`
}

type GroupConfig struct {
	Label        string             `yaml:"label"`
	Weight       float64            `yaml:"weight"`
	Shape        string             `yaml:"shape"`
	Diameters    DistributionConfig `yaml:"diameters"`
	Dchi         float64            `yaml:"dchi"`
	Permeability float64            `yaml:"permeability"`
	// Theta defaults to π/2, perpendicular to B0.
	Theta *Angle `yaml:"theta,omitempty"`
	Phi   Angle  `yaml:"phi,omitempty"`
	// RandomOrientation defaults to true in 3D.
	RandomOrientation *bool `yaml:"random_orientation,omitempty"`
}

type SpinConfig struct {
	NumSpins     int     `yaml:"num_spins" env:"NUM_SPINS"`
	ADC          float64 `yaml:"adc" env:"ADC"`
	Dt           float64 `yaml:"dt" env:"DT"`
	TimeUnit     float64 `yaml:"time_unit" env:"TIME_UNIT"`
	Filter       string  `yaml:"filter" env:"FILTER"`
	Displacement string  `yaml:"displacement" env:"DISPLACEMENT"`
	Workers      int     `yaml:"workers" env:"WORKERS"`
}

type PulseConfig struct {
	Step  int      `yaml:"step"`
	Angle Angle    `yaml:"angle"`
	Axis  AxisSpec `yaml:"axis"`
}

type SequenceConfig struct {
	NumSteps int           `yaml:"num_steps" env:"NUM_STEPS"`
	Initial  string        `yaml:"initial" env:"INITIAL"`
	Pulses   []PulseConfig `yaml:"pulses"`
}

type DeterministicConfig struct {
	Grid      int    `yaml:"grid" env:"GRID"`
	Kernel    string `yaml:"kernel" env:"KERNEL"`
	Permeable bool   `yaml:"permeable" env:"PERMEABLE"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load reads a user file over the defaults. The format follows the
// extension: .ini and .gcfg are INI files, anything else is YAML. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini", ".gcfg":
		if err := mergeINIFile(cfg, path); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	return cfg, nil
}

// LoadWithEnv is Load followed by the BOLDSIM_* environment overlay.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Clone deep-copies the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Metrics = append([]string(nil), c.Metrics...)
	out.Groups = make([]GroupConfig, len(c.Groups))
	for i, g := range c.Groups {
		g.Diameters.Values = append([]float64(nil), g.Diameters.Values...)
		if g.Theta != nil {
			t := *g.Theta
			g.Theta = &t
		}
		if g.RandomOrientation != nil {
			r := *g.RandomOrientation
			g.RandomOrientation = &r
		}
		out.Groups[i] = g
	}
	out.Sequence.Pulses = append([]PulseConfig(nil), c.Sequence.Pulses...)
	return &out
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, field, format string, args ...any) {
		if !ok {
			errs = append(errs, dynamo.Configf(field, format, args...))
		}
	}

	check(slices.Contains(Methods, c.Method), "method", "must be one of %s, got %q", strings.Join(Methods, ", "), c.Method)
	check(c.Repeats >= 1, "repeats", "must be at least 1, got %d", c.Repeats)

	v := c.Voxel
	check(v.Dim == 2 || v.Dim == 3, "voxel.dim", "must be 2 or 3, got %d", v.Dim)
	check(v.CBV >= 0 && v.CBV < 1, "voxel.cbv", "must be in [0, 1), got %g", v.CBV)
	check(v.Size >= 0, "voxel.size", "must be non-negative, got %g", v.Size)
	check(v.FieldCutoff >= 0 && v.FieldCutoff < 1, "voxel.field_cutoff", "must be in [0, 1), got %g", v.FieldCutoff)
	check(v.Snapshot != "" || v.Size > 0 || v.SizeFromK > 0 || v.NumVessels > 0,
		"voxel.size", "one of size, size_from_k or num_vessels is required")
	if v.Snapshot == "" {
		check(len(c.Groups) > 0, "groups", "at least one vessel group is required")
	}
	if c.Method == MethodDeterministic {
		check(v.Dim == 2, "method", "deterministic diffusion needs a 2D voxel")
	}
	if c.Method != MethodMonteCarlo {
		check(c.Deterministic.Grid > 0, "deterministic.grid", "must be positive, got %d", c.Deterministic.Grid)
	}

	for i, g := range c.Groups {
		field := fmt.Sprintf("groups[%d]", i)
		check(g.Weight >= 0, field+".weight", "must be non-negative, got %g", g.Weight)
		check(g.Permeability >= 0 && g.Permeability <= 1, field+".permeability", "must be in [0, 1], got %g", g.Permeability)
	}

	s := c.Spins
	check(s.NumSpins > 0 || c.Method == MethodDeterministic, "spins.num_spins", "must be positive, got %d", s.NumSpins)
	check(s.ADC >= 0, "spins.adc", "must be non-negative, got %g", s.ADC)
	check(s.Dt > 0, "spins.dt", "must be positive, got %g", s.Dt)
	check(s.TimeUnit > 0, "spins.time_unit", "must be positive, got %g", s.TimeUnit)

	check(c.Sequence.NumSteps > 0, "sequence.num_steps", "must be positive, got %d", c.Sequence.NumSteps)
	for i, p := range c.Sequence.Pulses {
		check(p.Step >= 0 && p.Step < c.Sequence.NumSteps, fmt.Sprintf("sequence.pulses[%d].step", i),
			"must be in [0, %d), got %d", c.Sequence.NumSteps, p.Step)
	}

	// Conversions catch unknown names.
	if _, err := c.GroupSpecs(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Schedule(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SpinOptions(c.Seed, nil); err != nil {
		errs = append(errs, err)
	}
	if c.Method == MethodDeterministic {
		if _, err := c.DeterministicOptions(nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
