package config

import (
	"math"
	"sort"
)

func pulses(ps ...PulseConfig) []PulseConfig { return ps }

func excite() PulseConfig {
	return PulseConfig{Step: 0, Angle: math.Pi / 2, Axis: AxisSpec{Name: "y"}.resolved()}
}

func refocus(step int) PulseConfig {
	return PulseConfig{Step: step, Angle: math.Pi, Axis: AxisSpec{Name: "x"}.resolved()}
}

// Presets are named overrides of the defaults, grouped by method.
var Presets = map[string]map[string]func(*Config){
	MethodMonteCarlo: {
		"spin_echo": func(c *Config) {},
		"gradient_echo": func(c *Config) {
			c.Sequence.Pulses = pulses(excite())
		},
		"permeable": func(c *Config) {
			c.Groups[0].Permeability = 0.5
		},
		"vessels_3d": func(c *Config) {
			c.Voxel.Dim = 3
			c.Voxel.NumVessels = 50
			c.Spins.NumSpins = 20000
		},
		"size_from_k": func(c *Config) {
			c.Voxel.NumVessels = 0
			c.Voxel.SizeFromK = 40
		},
		"distributed": func(c *Config) {
			c.Groups[0].Diameters = DistributionConfig{Kind: "lognormal", Mean: math.Log(0.002), Std: 0.3}
			c.Voxel.AllowIntersection = true
		},
	},
	MethodDeterministic: {
		"bessel": func(c *Config) {
			c.Method = MethodDeterministic
		},
		"gaussian": func(c *Config) {
			c.Method = MethodDeterministic
			c.Deterministic.Kernel = "gaussian"
		},
		"permeable": func(c *Config) {
			c.Method = MethodDeterministic
			c.Deterministic.Permeable = true
		},
	},
}

// GetPreset returns the defaults with the named preset applied, or nil.
func GetPreset(method, preset string) *Config {
	methodPresets, ok := Presets[method]
	if !ok {
		return nil
	}
	apply, ok := methodPresets[preset]
	if !ok {
		return nil
	}
	cfg := Default()
	apply(cfg)
	return cfg
}

func ListPresets(method string) []string {
	methodPresets, ok := Presets[method]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(methodPresets))
	for name := range methodPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
