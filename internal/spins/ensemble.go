package spins

import (
	"math"
	"math/rand/v2"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/vessel"
)

type Ensemble struct {
	geo   geometry.Geometry
	opts  Options
	sigma float64
	dtSec float64

	spins []Spin
	rngs  []*rand.Rand
	out   StepOutput
	steps int
}

func NewEnsemble(geo geometry.Geometry, opts Options) (*Ensemble, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Filter == IVOnly && geo.NumVessels() == 0 {
		return nil, dynamo.Configf("filter", "intravascular spins requested but the voxel has no vessels")
	}

	dtSec := opts.Dt * opts.TimeUnit
	e := &Ensemble{
		geo:   geo,
		opts:  opts,
		sigma: math.Sqrt(2 * opts.ADC * dtSec),
		dtSec: dtSec,
		out: StepOutput{
			Phase:       make([]float64, opts.NumSpins),
			VesselIndex: make([]int, opts.NumSpins),
			Dt:          opts.Dt,
		},
	}
	if err := e.place(); err != nil {
		return nil, err
	}

	iv := 0
	for _, s := range e.spins {
		if s.IsIV() {
			iv++
		}
	}
	opts.Logger.Debug("spin ensemble placed",
		"spins", opts.NumSpins,
		"iv", iv,
		"filter", opts.Filter.String(),
		"step_std", e.sigma)
	return e, nil
}

// place seeds every spin stream and draws the initial positions from it.
func (e *Ensemble) place() error {
	n := e.opts.NumSpins
	e.spins = make([]Spin, n)
	e.rngs = make([]*rand.Rand, n)
	e.steps = 0

	errs := make([]error, n)
	dynamo.ParallelForN(n, minChunk, e.opts.Workers, func(start, end int) {
		for i := start; i < end; i++ {
			rng := rand.New(rand.NewPCG(e.opts.Seed, uint64(i)))
			e.rngs[i] = rng
			s, ok := e.initialSpin(rng)
			if !ok {
				errs[i] = dynamo.Configf("filter", "no %s volume found for spin %d after %d attempts",
					e.opts.Filter, i, e.opts.MaxPlacementAttempts)
				continue
			}
			e.spins[i] = s
			e.out.Phase[i] = 0
			e.out.VesselIndex[i] = s.Vessel
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Ensemble) initialSpin(rng *rand.Rand) (Spin, bool) {
	size, dim := e.geo.Size(), e.geo.Dim()
	for a := 0; a < e.opts.MaxPlacementAttempts; a++ {
		var p vessel.Vec
		for d := 0; d < dim; d++ {
			p[d] = (rng.Float64() - 0.5) * size
		}
		idx := e.geo.VesselIndex(p)
		if e.opts.Filter.accepts(idx) {
			return Spin{Position: p, Vessel: idx}, true
		}
	}
	return Spin{}, false
}

// Step moves every spin once and accrues the phase at its new position.
// It returns after all spins have moved.
func (e *Ensemble) Step() StepOutput {
	dynamo.ParallelForN(len(e.spins), minChunk, e.opts.Workers, func(start, end int) {
		for i := start; i < end; i++ {
			e.stepSpin(i)
		}
	})
	e.steps++
	return e.out
}

func (e *Ensemble) stepSpin(i int) {
	s := &e.spins[i]
	rng := e.rngs[i]
	size, dim := e.geo.Size(), e.geo.Dim()

	p := s.Position
	for d := 0; d < dim; d++ {
		p[d] += e.displacement(rng)
	}
	p = vessel.Wrap(p, size, dim)

	idx := e.geo.VesselIndex(p)
	if idx != s.Vessel && !e.crossing(rng, s.Vessel, idx) {
		p, idx = s.Position, s.Vessel
	}

	dphi := e.opts.Gamma * e.geo.Field(p) * e.dtSec
	s.Position = p
	s.Vessel = idx
	s.Phase += dphi

	e.out.Phase[i] = dphi
	e.out.VesselIndex[i] = idx
}

func (e *Ensemble) displacement(rng *rand.Rand) float64 {
	if e.opts.Displacement == UniformStep {
		return (2*rng.Float64() - 1) * e.sigma * math.Sqrt(3)
	}
	return rng.NormFloat64() * e.sigma
}

// crossing decides whether a move between compartments goes through. The
// probability is the product of the permeabilities of the vessels left and
// entered.
func (e *Ensemble) crossing(rng *rand.Rand, from, to int) bool {
	prob := 1.0
	if from > 0 {
		prob *= e.geo.Vessel(from).Permeability
	}
	if to > 0 {
		prob *= e.geo.Vessel(to).Permeability
	}
	switch {
	case prob >= 1:
		return true
	case prob <= 0:
		return false
	}
	return rng.Float64() < prob
}

// Reset restores the initial placement and restarts every stream.
func (e *Ensemble) Reset() error {
	return e.place()
}

func (e *Ensemble) NumSpins() int               { return len(e.spins) }
func (e *Ensemble) Dt() float64                 { return e.opts.Dt }
func (e *Ensemble) StepsTaken() int             { return e.steps }
func (e *Ensemble) Geometry() geometry.Geometry { return e.geo }

// Spins returns a copy of the current spin states.
func (e *Ensemble) Spins() []Spin {
	out := make([]Spin, len(e.spins))
	copy(out, e.spins)
	return out
}

// Phases returns the accumulated phase of every spin.
func (e *Ensemble) Phases() []float64 {
	out := make([]float64, len(e.spins))
	for i, s := range e.spins {
		out[i] = s.Phase
	}
	return out
}

// IsIV returns the current compartment mask.
func (e *Ensemble) IsIV() []bool {
	out := make([]bool, len(e.spins))
	for i, s := range e.spins {
		out[i] = s.IsIV()
	}
	return out
}

// VesselIndices returns the owning vessel of every spin.
func (e *Ensemble) VesselIndices() []int {
	out := make([]int, len(e.spins))
	for i, s := range e.spins {
		out[i] = s.Vessel
	}
	return out
}
