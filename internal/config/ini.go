package config

import (
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/gcfg.v1"
)

// ExampleINI documents the INI layout accepted by Load for .ini and .gcfg
// files. Vessel groups and pulses are named subsections.
const ExampleINI = `[simulation]
method = montecarlo
seed = 1
repeats = 1
log-level = info
metric = decay_rate
metric = echo_peak

[voxel]
dim = 2
num-vessels = 100
cbv = 0.02
b0 = 3
inside-field = lorentz

[group "vesselGroup1"]
weight = 1
shape = cylinder
distribution = choice
diameter = 0.002
dchi = 3e-8
theta = pi/2

[spins]
num-spins = 10000
adc = 0.001
dt = 0.2

[sequence]
num-steps = 600
initial = equilibrium

[pulse "excite"]
step = 0
angle = pi/2
axis = y

[pulse "refocus"]
step = 175
angle = pi
axis = x

[deterministic]
grid = 200
kernel = bessel
`

type iniFile struct {
	Simulation struct {
		Method   string
		Seed     uint64
		Repeats  int
		LogLevel string   `gcfg:"log-level"`
		Metric   []string `gcfg:"metric"`
	}
	Voxel struct {
		Dim               int
		Size              float64
		NumVessels        int     `gcfg:"num-vessels"`
		SizeFromK         float64 `gcfg:"size-from-k"`
		CBV               float64 `gcfg:"cbv"`
		B0                float64 `gcfg:"b0"`
		AllowIntersection bool    `gcfg:"allow-intersection"`
		MaxRetries        int     `gcfg:"max-retries"`
		MaxVessels        int     `gcfg:"max-vessels"`
		InsideField       string  `gcfg:"inside-field"`
		FieldCutoff       float64 `gcfg:"field-cutoff"`
		Snapshot          string
	}
	Group map[string]*iniGroup
	Spins struct {
		NumSpins     int     `gcfg:"num-spins"`
		ADC          float64 `gcfg:"adc"`
		Dt           float64
		TimeUnit     float64 `gcfg:"time-unit"`
		Filter       string
		Displacement string
		Workers      int
	}
	Sequence struct {
		NumSteps int `gcfg:"num-steps"`
		Initial  string
	}
	Pulse         map[string]*iniPulse
	Deterministic struct {
		Grid      int
		Kernel    string
		Permeable bool
	}
}

type iniGroup struct {
	Weight            float64
	Shape             string
	Distribution      string
	Diameter          []float64
	Min               float64
	Max               float64
	Mean              float64
	Std               float64
	Dchi              float64
	Permeability      float64
	Theta             string
	Phi               Angle
	RandomOrientation string `gcfg:"random-orientation"`
}

type iniPulse struct {
	Step  int
	Angle Angle
	Axis  AxisSpec
}

// mergeINIFile overlays an INI file onto cfg. Groups and pulses in the file
// replace the existing lists; groups are ordered by subsection name.
func mergeINIFile(cfg *Config, path string) error {
	ini := toINI(cfg)
	if err := gcfg.ReadFileInto(ini, path); err != nil {
		return err
	}
	return fromINI(cfg, ini)
}

func mergeINIString(cfg *Config, text string) error {
	ini := toINI(cfg)
	if err := gcfg.ReadStringInto(ini, text); err != nil {
		return err
	}
	return fromINI(cfg, ini)
}

func toINI(c *Config) *iniFile {
	ini := &iniFile{}
	s := &ini.Simulation
	s.Method, s.Seed, s.Repeats, s.LogLevel = c.Method, c.Seed, c.Repeats, c.LogLevel

	v := &ini.Voxel
	v.Dim, v.Size, v.NumVessels, v.SizeFromK = c.Voxel.Dim, c.Voxel.Size, c.Voxel.NumVessels, c.Voxel.SizeFromK
	v.CBV, v.B0, v.AllowIntersection = c.Voxel.CBV, c.Voxel.B0, c.Voxel.AllowIntersection
	v.MaxRetries, v.MaxVessels = c.Voxel.MaxRetries, c.Voxel.MaxVessels
	v.InsideField, v.Snapshot = c.Voxel.InsideField, c.Voxel.Snapshot
	v.FieldCutoff = c.Voxel.FieldCutoff

	sp := &ini.Spins
	sp.NumSpins, sp.ADC, sp.Dt, sp.TimeUnit = c.Spins.NumSpins, c.Spins.ADC, c.Spins.Dt, c.Spins.TimeUnit
	sp.Filter, sp.Displacement, sp.Workers = c.Spins.Filter, c.Spins.Displacement, c.Spins.Workers

	ini.Sequence.NumSteps, ini.Sequence.Initial = c.Sequence.NumSteps, c.Sequence.Initial
	ini.Deterministic.Grid = c.Deterministic.Grid
	ini.Deterministic.Kernel = c.Deterministic.Kernel
	ini.Deterministic.Permeable = c.Deterministic.Permeable
	return ini
}

func fromINI(c *Config, ini *iniFile) error {
	s := ini.Simulation
	c.Method, c.Seed, c.Repeats, c.LogLevel = s.Method, s.Seed, s.Repeats, s.LogLevel
	if len(s.Metric) > 0 {
		c.Metrics = s.Metric
	}

	v := ini.Voxel
	c.Voxel = VoxelConfig{
		Dim:               v.Dim,
		Size:              v.Size,
		NumVessels:        v.NumVessels,
		SizeFromK:         v.SizeFromK,
		CBV:               v.CBV,
		B0:                v.B0,
		AllowIntersection: v.AllowIntersection,
		MaxRetries:        v.MaxRetries,
		MaxVessels:        v.MaxVessels,
		InsideField:       v.InsideField,
		FieldCutoff:       v.FieldCutoff,
		Snapshot:          v.Snapshot,
	}

	sp := ini.Spins
	c.Spins = SpinConfig{
		NumSpins:     sp.NumSpins,
		ADC:          sp.ADC,
		Dt:           sp.Dt,
		TimeUnit:     sp.TimeUnit,
		Filter:       sp.Filter,
		Displacement: sp.Displacement,
		Workers:      sp.Workers,
	}
	c.Sequence.NumSteps = ini.Sequence.NumSteps
	c.Sequence.Initial = ini.Sequence.Initial
	c.Deterministic = DeterministicConfig{
		Grid:      ini.Deterministic.Grid,
		Kernel:    ini.Deterministic.Kernel,
		Permeable: ini.Deterministic.Permeable,
	}

	if len(ini.Group) > 0 {
		labels := make([]string, 0, len(ini.Group))
		for label := range ini.Group {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		c.Groups = c.Groups[:0]
		for _, label := range labels {
			g := ini.Group[label]
			gc := GroupConfig{
				Label:        label,
				Weight:       g.Weight,
				Shape:        g.Shape,
				Dchi:         g.Dchi,
				Permeability: g.Permeability,
				Phi:          g.Phi,
				Diameters: DistributionConfig{
					Kind:   g.Distribution,
					Values: g.Diameter,
					Min:    g.Min,
					Max:    g.Max,
					Mean:   g.Mean,
					Std:    g.Std,
				},
			}
			if g.Theta != "" {
				theta, err := ParseAngle(g.Theta)
				if err != nil {
					return fmt.Errorf("group %q: theta: %w", label, err)
				}
				gc.Theta = &theta
			}
			if g.RandomOrientation != "" {
				r, err := strconv.ParseBool(g.RandomOrientation)
				if err != nil {
					return fmt.Errorf("group %q: random-orientation: %w", label, err)
				}
				gc.RandomOrientation = &r
			}
			c.Groups = append(c.Groups, gc)
		}
	}

	if len(ini.Pulse) > 0 {
		names := make([]string, 0, len(ini.Pulse))
		for name := range ini.Pulse {
			names = append(names, name)
		}
		sort.Strings(names)
		c.Sequence.Pulses = c.Sequence.Pulses[:0]
		for _, name := range names {
			p := ini.Pulse[name]
			c.Sequence.Pulses = append(c.Sequence.Pulses, PulseConfig{Step: p.Step, Angle: p.Angle, Axis: p.Axis})
		}
		sort.SliceStable(c.Sequence.Pulses, func(i, j int) bool {
			return c.Sequence.Pulses[i].Step < c.Sequence.Pulses[j].Step
		})
	}
	return nil
}
