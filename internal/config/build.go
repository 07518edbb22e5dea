package config

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/boldsim/internal/deterministic"
	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/metrics"
	"github.com/san-kum/boldsim/internal/sequence"
	"github.com/san-kum/boldsim/internal/spins"
	"github.com/san-kum/boldsim/internal/vessel"
)

func (d DistributionConfig) Distribution() (geometry.Distribution, error) {
	kind, err := geometry.ParseDistributionKind(d.Kind)
	if err != nil {
		return geometry.Distribution{}, err
	}
	dist := geometry.Distribution{
		Kind:   kind,
		Values: append([]float64(nil), d.Values...),
		Min:    d.Min,
		Max:    d.Max,
		Mean:   d.Mean,
		Std:    d.Std,
	}
	return dist, dist.Validate()
}

func (c *Config) GroupSpecs() ([]geometry.GroupSpec, error) {
	specs := make([]geometry.GroupSpec, 0, len(c.Groups))
	for i, g := range c.Groups {
		shape, err := vessel.ParseShape(g.Shape)
		if err != nil {
			return nil, err
		}
		dist, err := g.Diameters.Distribution()
		if err != nil {
			return nil, fmt.Errorf("groups[%d]: %w", i, err)
		}
		theta := math.Pi / 2
		if g.Theta != nil {
			theta = float64(*g.Theta)
		}
		random := c.Voxel.Dim == 3
		if g.RandomOrientation != nil {
			random = *g.RandomOrientation
		}
		label := g.Label
		if label == "" {
			label = fmt.Sprintf("vesselGroup%d", i+1)
		}
		specs = append(specs, geometry.GroupSpec{
			Label:             label,
			Weight:            g.Weight,
			Diameters:         dist,
			Dchi:              g.Dchi,
			Permeability:      g.Permeability,
			Shape:             shape,
			Theta:             theta,
			Phi:               float64(g.Phi),
			RandomOrientation: random,
		})
	}
	return specs, nil
}

// PopulateOptions resolves the voxel size: an explicit size wins, then
// size_from_k applied to the first group's largest diameter, then the size
// implied by num_vessels at the target CBV.
func (c *Config) PopulateOptions(logger *slog.Logger) (geometry.PopulateOptions, error) {
	groups, err := c.GroupSpecs()
	if err != nil {
		return geometry.PopulateOptions{}, err
	}
	policy, err := vessel.ParseFieldPolicy(c.Voxel.InsideField)
	if err != nil {
		return geometry.PopulateOptions{}, err
	}
	opts := geometry.PopulateOptions{
		Dim:               c.Voxel.Dim,
		Size:              c.Voxel.Size,
		NumVessels:        c.Voxel.NumVessels,
		CBV:               c.Voxel.CBV,
		B0:                c.Voxel.B0,
		Groups:            groups,
		AllowIntersection: c.Voxel.AllowIntersection,
		MaxRetries:        c.Voxel.MaxRetries,
		MaxVessels:        c.Voxel.MaxVessels,
		FieldPolicy:       policy,
		Seed:              c.Seed,
		Logger:            logger,
	}
	if opts.Size == 0 && c.Voxel.SizeFromK > 0 {
		if len(groups) == 0 {
			return opts, dynamo.Configf("voxel.size_from_k", "needs a vessel group")
		}
		d := largestDiameter(groups[0].Diameters)
		size, err := geometry.SizeFromK(d, c.Voxel.SizeFromK, c.Spins.ADC, c.Spins.Dt, c.Spins.TimeUnit)
		if err != nil {
			return opts, err
		}
		opts.Size = size
		opts.NumVessels = 0
	}
	return opts, nil
}

func largestDiameter(d geometry.Distribution) float64 {
	switch d.Kind {
	case geometry.Choice:
		m := 0.0
		for _, v := range d.Values {
			m = math.Max(m, v)
		}
		return m
	case geometry.Uniform:
		return d.Max
	}
	return math.Sqrt(d.SecondMoment())
}

func (c *Config) SpinOptions(seed uint64, logger *slog.Logger) (spins.Options, error) {
	filter, err := spins.ParseFilter(c.Spins.Filter)
	if err != nil {
		return spins.Options{}, err
	}
	disp, err := spins.ParseDisplacement(c.Spins.Displacement)
	if err != nil {
		return spins.Options{}, err
	}
	return spins.Options{
		ADC:          c.Spins.ADC,
		Dt:           c.Spins.Dt,
		TimeUnit:     c.Spins.TimeUnit,
		NumSpins:     c.Spins.NumSpins,
		Filter:       filter,
		Displacement: disp,
		Seed:         seed,
		Workers:      c.Spins.Workers,
		Logger:       logger,
	}, nil
}

func (c *Config) DeterministicOptions(logger *slog.Logger) (deterministic.Options, error) {
	kernel, err := deterministic.ParseKernel(c.Deterministic.Kernel)
	if err != nil {
		return deterministic.Options{}, err
	}
	initial, err := sequence.ParseInitialState(c.Sequence.Initial)
	if err != nil {
		return deterministic.Options{}, err
	}
	return deterministic.Options{
		ADC:       c.Spins.ADC,
		Dt:        c.Spins.Dt,
		TimeUnit:  c.Spins.TimeUnit,
		Kernel:    kernel,
		Permeable: c.Deterministic.Permeable,
		Initial:   initial,
		Logger:    logger,
	}, nil
}

func (c *Config) Schedule() (sequence.Schedule, error) {
	steps := make([]int, len(c.Sequence.Pulses))
	angles := make([]float64, len(c.Sequence.Pulses))
	axes := make([]sequence.Axis, len(c.Sequence.Pulses))
	for i, p := range c.Sequence.Pulses {
		steps[i] = p.Step
		angles[i] = float64(p.Angle)
		axes[i] = p.Axis.Axis
	}
	sched, err := sequence.NewSchedule(steps, angles, axes)
	if err != nil {
		return nil, err
	}
	return sched, sched.Validate(c.Sequence.NumSteps)
}

func (c *Config) SequenceOptions(logger *slog.Logger) ([]sequence.Option, error) {
	initial, err := sequence.ParseInitialState(c.Sequence.Initial)
	if err != nil {
		return nil, err
	}
	return []sequence.Option{
		sequence.WithInitialState(initial),
		sequence.WithLogger(logger),
		sequence.WithWorkers(c.Spins.Workers),
	}, nil
}

// MetricParams anchors echo-relative metrics on the last scheduled pulse.
func (c *Config) MetricParams() metrics.Params {
	p := metrics.Params{TimeUnit: c.Spins.TimeUnit}
	for _, pulse := range c.Sequence.Pulses {
		p.EchoStep = max(p.EchoStep, pulse.Step)
	}
	return p
}

func (c *Config) BuildMetrics() ([]dynamo.Metric, error) {
	p := c.MetricParams()
	out := make([]dynamo.Metric, 0, len(c.Metrics))
	for _, name := range c.Metrics {
		m, err := metrics.New(name, p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
