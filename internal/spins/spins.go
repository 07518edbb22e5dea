// Package spins implements the Monte Carlo random walk of water protons
// through a voxel.
//
// Every spin draws from its own PCG stream keyed by the ensemble seed and
// the spin index, so a walk is reproducible regardless of how many workers
// share the steps.
package spins

import (
	"log/slog"
	"math"
	"runtime"
	"strings"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/vessel"
)

// Gamma is the proton gyromagnetic ratio in rad/s/T.
const Gamma = 2.675222e8

const (
	DefaultTimeUnit          = 1e-3
	DefaultPlacementAttempts = 100_000

	minChunk = 256
)

type Filter int

const (
	All Filter = iota
	IVOnly
	EVOnly
)

func (f Filter) String() string {
	switch f {
	case IVOnly:
		return "iv"
	case EVOnly:
		return "ev"
	}
	return "all"
}

func ParseFilter(name string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all", "eviv":
		return All, nil
	case "iv":
		return IVOnly, nil
	case "ev":
		return EVOnly, nil
	}
	return 0, dynamo.Configf("filter", "unknown compartment filter %q", name)
}

func (f Filter) accepts(vesselIdx int) bool {
	switch f {
	case IVOnly:
		return vesselIdx > 0
	case EVOnly:
		return vesselIdx == 0
	}
	return true
}

type Displacement int

const (
	// Gaussian draws each axis from N(0, 2·ADC·dt).
	Gaussian Displacement = iota
	// UniformStep draws each axis uniformly with the same variance.
	UniformStep
)

func ParseDisplacement(name string) (Displacement, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gaussian", "normal":
		return Gaussian, nil
	case "uniform":
		return UniformStep, nil
	}
	return 0, dynamo.Configf("displacement", "unknown displacement %q", name)
}

type Options struct {
	ADC float64
	Dt  float64
	// TimeUnit is the number of seconds in one unit of Dt.
	TimeUnit     float64
	NumSpins     int
	Filter       Filter
	Displacement Displacement
	Seed         uint64
	Workers      int
	Gamma        float64
	// MaxPlacementAttempts bounds rejection sampling per spin.
	MaxPlacementAttempts int
	Logger               *slog.Logger
}

func (o *Options) setDefaults() {
	if o.TimeUnit == 0 {
		o.TimeUnit = DefaultTimeUnit
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Gamma == 0 {
		o.Gamma = Gamma
	}
	if o.MaxPlacementAttempts <= 0 {
		o.MaxPlacementAttempts = DefaultPlacementAttempts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func (o *Options) validate() error {
	switch {
	case o.NumSpins <= 0:
		return dynamo.Configf("num_spins", "must be positive, got %d", o.NumSpins)
	case o.ADC < 0 || math.IsNaN(o.ADC):
		return dynamo.Configf("adc", "must be non-negative, got %g", o.ADC)
	case !(o.Dt > 0):
		return dynamo.Configf("dt", "must be positive, got %g", o.Dt)
	case !(o.TimeUnit > 0):
		return dynamo.Configf("time_unit", "must be positive, got %g", o.TimeUnit)
	}
	return nil
}

type Spin struct {
	Position vessel.Vec
	Phase    float64
	// Vessel is the owning vessel index, 0 when extravascular.
	Vessel int
}

func (s Spin) IsIV() bool { return s.Vessel > 0 }

// StepOutput is what one step hands to the pulse sequence. The slices are
// owned by the ensemble and overwritten by the next Step.
type StepOutput struct {
	Phase       []float64
	VesselIndex []int
	Dt          float64
}

// IsIV returns a fresh compartment mask.
func (o StepOutput) IsIV() []bool {
	iv := make([]bool, len(o.VesselIndex))
	for i, v := range o.VesselIndex {
		iv[i] = v > 0
	}
	return iv
}
