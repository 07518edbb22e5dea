package optim

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/boldsim/internal/config"
	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/experiment"
)

var setters = map[string]func(c *config.Config, v float64){
	"cbv":          func(c *config.Config, v float64) { c.Voxel.CBV = v },
	"b0":           func(c *config.Config, v float64) { c.Voxel.B0 = v },
	"size":         func(c *config.Config, v float64) { c.Voxel.Size = v },
	"num_vessels":  func(c *config.Config, v float64) { c.Voxel.NumVessels = int(v) },
	"adc":          func(c *config.Config, v float64) { c.Spins.ADC = v },
	"dt":           func(c *config.Config, v float64) { c.Spins.Dt = v },
	"num_spins":    func(c *config.Config, v float64) { c.Spins.NumSpins = int(v) },
	"seed":         func(c *config.Config, v float64) { c.Seed = uint64(v) },
	"grid":         func(c *config.Config, v float64) { c.Deterministic.Grid = int(v) },
	"field_cutoff": func(c *config.Config, v float64) { c.Voxel.FieldCutoff = v },
	// Group parameters apply to every vessel group.
	"diameter": func(c *config.Config, v float64) {
		for i := range c.Groups {
			c.Groups[i].Diameters = config.DistributionConfig{Kind: "choice", Values: []float64{v}}
		}
	},
	"dchi": func(c *config.Config, v float64) {
		for i := range c.Groups {
			c.Groups[i].Dchi = v
		}
	},
	"permeability": func(c *config.Config, v float64) {
		for i := range c.Groups {
			c.Groups[i].Permeability = v
		}
	},
}

func ParamNames() []string {
	names := make([]string, 0, len(setters))
	for n := range setters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply sets a named sweep parameter on cfg.
func Apply(cfg *config.Config, name string, v float64) error {
	set, ok := setters[name]
	if !ok {
		return dynamo.Configf("sweep", "unknown parameter %q (have %s)", name, strings.Join(ParamNames(), ", "))
	}
	set(cfg, v)
	return nil
}

// ParseRange accepts "lo:hi:n" for n evenly spaced values or a comma list.
func ParseRange(s string) ([]float64, error) {
	if parts := strings.Split(s, ":"); len(parts) == 3 {
		lo, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		hi, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		n, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err1 != nil || err2 != nil || err3 != nil || n < 1 {
			return nil, fmt.Errorf("invalid range %q", s)
		}
		if n == 1 {
			return []float64{lo}, nil
		}
		return floats.Span(make([]float64, n), lo, hi), nil
	}
	var out []float64
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseSpec parses "name=range" sweep arguments into a grid.
func ParseSpec(args []string) (*GridSearch, error) {
	names := make([]string, 0, len(args))
	ranges := make([][]float64, 0, len(args))
	for _, arg := range args {
		name, rng, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("sweep parameter %q: expected name=range", arg)
		}
		name = strings.TrimSpace(name)
		if _, known := setters[name]; !known {
			return nil, dynamo.Configf("sweep", "unknown parameter %q (have %s)", name, strings.Join(ParamNames(), ", "))
		}
		values, err := ParseRange(rng)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	return NewGridSearch(names, ranges)
}

// ConfigBuilder derives each grid point from base. Grid points are
// independent, so a builder is safe to call concurrently.
func ConfigBuilder(base *config.Config, opts ...experiment.Option) Builder {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		for name, v := range params {
			if err := Apply(cfg, name, v); err != nil {
				return nil, err
			}
		}
		return experiment.New(cfg, opts...), nil
	}
}
