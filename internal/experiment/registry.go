package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/boldsim/internal/config"
	"github.com/san-kum/boldsim/internal/deterministic"
	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/sequence"
	"github.com/san-kum/boldsim/internal/spins"
)

// Builder constructs the propagator for one run. The experiment has been
// set up, so its voxel (and grid, when the method needs one) exist.
type Builder func(e *Experiment, seed uint64) (dynamo.Propagator, error)

type method struct {
	build     Builder
	needsGrid bool
}

type Registry struct {
	methods map[string]method
}

func NewRegistry() *Registry {
	r := &Registry{methods: make(map[string]method)}

	r.Register(config.MethodMonteCarlo, false, func(e *Experiment, seed uint64) (dynamo.Propagator, error) {
		return e.spinSequence(e.voxel, seed)
	})
	r.Register(config.MethodMonteCarloGrid, true, func(e *Experiment, seed uint64) (dynamo.Propagator, error) {
		return e.spinSequence(e.discrete, seed)
	})
	r.Register(config.MethodDeterministic, true, func(e *Experiment, seed uint64) (dynamo.Propagator, error) {
		opts, err := e.cfg.DeterministicOptions(e.logger)
		if err != nil {
			return nil, err
		}
		opts.Partition = e.partition
		return deterministic.New(e.discrete, e.cfg.Sequence.NumSteps, e.schedule, opts)
	})
	return r
}

// Register adds or replaces a method. needsGrid asks Setup to discretize
// the voxel before building.
func (r *Registry) Register(name string, needsGrid bool, b Builder) {
	r.methods[name] = method{build: b, needsGrid: needsGrid}
}

func (r *Registry) GetMethod(name string) (Builder, error) {
	m, ok := r.methods[name]
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", name)
	}
	return m.build, nil
}

func (r *Registry) NeedsGrid(name string) bool {
	return r.methods[name].needsGrid
}

func (r *Registry) ListMethods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Experiment) spinSequence(geo geometry.Geometry, seed uint64) (dynamo.Propagator, error) {
	opts, err := e.cfg.SpinOptions(seed, e.logger)
	if err != nil {
		return nil, err
	}
	ens, err := spins.NewEnsemble(geo, opts)
	if err != nil {
		return nil, err
	}
	seqOpts, err := e.cfg.SequenceOptions(e.logger)
	if err != nil {
		return nil, err
	}
	return sequence.NewMaskedSpinSequence(ens, e.cfg.Sequence.NumSteps, e.schedule, e.partition, seqOpts...)
}
