// Package experiment wires a configuration into a voxel, a propagator and a
// simulator, and runs it once or averaged over repeats.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/boldsim/internal/config"
	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/sequence"
)

type Option func(*Experiment)

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) { e.reg = r }
}

// WithVoxel skips voxel construction and uses v.
func WithVoxel(v *geometry.ContinuousVoxel) Option {
	return func(e *Experiment) { e.voxel = v }
}

// WithPartition replaces vessel ownership as the intravascular mask.
func WithPartition(p sequence.Partition) Option {
	return func(e *Experiment) { e.partition = p }
}

// WithObserver attaches o to the single-run simulator.
func WithObserver(o dynamo.Observer) Option {
	return func(e *Experiment) { e.observers = append(e.observers, o) }
}

type Experiment struct {
	cfg       *config.Config
	reg       *Registry
	logger    *slog.Logger
	voxel     *geometry.ContinuousVoxel
	discrete  *geometry.DiscreteVoxel
	partition sequence.Partition
	observers []dynamo.Observer
	schedule  sequence.Schedule
	simulator *dynamo.Simulator
}

func New(cfg *config.Config, opts ...Option) *Experiment {
	e := &Experiment{
		cfg:       cfg.Clone(),
		logger:    slog.Default(),
		partition: sequence.AnyVessel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reg == nil {
		e.reg = NewRegistry()
	}
	return e
}

// Setup validates the configuration, builds or loads the voxel, discretizes
// it when the method needs a grid and constructs the primary simulator.
func (e *Experiment) Setup(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if _, err := e.reg.GetMethod(e.cfg.Method); err != nil {
		return dynamo.Configf("method", "%v", err)
	}
	sched, err := e.cfg.Schedule()
	if err != nil {
		return err
	}
	e.schedule = sched

	if e.voxel == nil {
		start := time.Now()
		v, err := e.buildVoxel()
		if err != nil {
			return err
		}
		e.voxel = v
		e.logger.Debug("voxel ready", "vessels", v.NumVessels(), "cbv", v.CBV(), "size", v.Size(),
			"elapsed", time.Since(start))
	}
	if tol := e.cfg.Voxel.FieldCutoff; tol > 0 && e.voxel.Dim() == 2 && !e.voxel.Accelerated() {
		if err := e.voxel.EnableAcceleration(tol); err != nil {
			return err
		}
		e.logger.Debug("field index enabled", "cutoff", tol, "vessels", e.voxel.NumVessels())
	}

	if e.reg.NeedsGrid(e.cfg.Method) && e.discrete == nil {
		dv, err := geometry.Discretize(ctx, e.voxel, e.cfg.Deterministic.Grid)
		if err != nil {
			return err
		}
		e.discrete = dv
	}

	sim, err := e.NewSimulator(e.cfg.Seed)
	if err != nil {
		return err
	}
	for _, o := range e.observers {
		sim.AddObserver(o)
	}
	e.simulator = sim
	return nil
}

func (e *Experiment) buildVoxel() (*geometry.ContinuousVoxel, error) {
	if path := e.cfg.Voxel.Snapshot; path != "" {
		v, err := geometry.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load voxel: %w", err)
		}
		return v, nil
	}
	opts, err := e.cfg.PopulateOptions(e.logger)
	if err != nil {
		return nil, err
	}
	return geometry.Populate(opts)
}

// NewSimulator builds an independent simulator sharing the experiment's
// read-only voxel. It is the factory for repeats.
func (e *Experiment) NewSimulator(seed uint64) (*dynamo.Simulator, error) {
	build, err := e.reg.GetMethod(e.cfg.Method)
	if err != nil {
		return nil, err
	}
	prop, err := build(e, seed)
	if err != nil {
		return nil, err
	}
	sim, err := dynamo.New(prop, e.cfg.Sequence.NumSteps)
	if err != nil {
		return nil, err
	}
	sim.SetLogger(e.logger)
	ms, err := e.cfg.BuildMetrics()
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		sim.AddMetric(m)
	}
	return sim, nil
}

// Run walks the primary simulator, or averages cfg.Repeats independent
// runs seeded cfg.Seed, cfg.Seed+1, ... A canceled repeated run returns the
// average of the repeats that completed together with the error.
func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	start := time.Now()
	defer func() {
		e.logger.Info("run finished", "method", e.cfg.Method, "steps", e.cfg.Sequence.NumSteps,
			"repeats", e.cfg.Repeats, "elapsed", time.Since(start))
	}()

	if e.cfg.Repeats <= 1 {
		return e.simulator.Walk(ctx)
	}
	ens := dynamo.NewEnsemble(e.NewSimulator, e.cfg.Repeats, e.cfg.Seed)
	results, err := ens.Run(ctx)
	if err != nil {
		if !errors.Is(err, dynamo.ErrContextCanceled) || len(results) == 0 {
			return nil, err
		}
		avg, aerr := dynamo.Average(results)
		if aerr != nil {
			return nil, err
		}
		e.logger.Warn("run canceled, averaging completed repeats", "completed", len(results), "repeats", e.cfg.Repeats)
		return avg, err
	}
	return dynamo.Average(results)
}

func (e *Experiment) Config() *config.Config            { return e.cfg }
func (e *Experiment) Voxel() *geometry.ContinuousVoxel  { return e.voxel }
func (e *Experiment) Discrete() *geometry.DiscreteVoxel { return e.discrete }
func (e *Experiment) Simulator() *dynamo.Simulator      { return e.simulator }
func (e *Experiment) Schedule() sequence.Schedule       { return append(sequence.Schedule(nil), e.schedule...) }
func (e *Experiment) Registry() *Registry               { return e.reg }
