package dynamo

import (
	"context"
	"fmt"
	"log/slog"
)

// Warner is implemented by propagators that collect soft diagnostics.
type Warner interface {
	Warnings() []error
}

type Simulator struct {
	prop      Propagator
	numSteps  int
	step      int
	status    Status
	result    *Result
	metrics   []Metric
	observers []Observer
	logger    *slog.Logger
}

func New(p Propagator, numSteps int) (*Simulator, error) {
	if p == nil {
		return nil, Configf("propagator", "must not be nil")
	}
	if numSteps <= 0 {
		return nil, Configf("num_steps", "must be positive, got %d", numSteps)
	}
	if p.Dt() <= 0 {
		return nil, Configf("dt", "must be positive, got %g", p.Dt())
	}
	return &Simulator{
		prop:      p,
		numSteps:  numSteps,
		result:    newResult(numSteps, p.Dt()),
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
		logger:    slog.Default(),
	}, nil
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }
func (s *Simulator) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

func (s *Simulator) Status() Status         { return s.status }
func (s *Simulator) NumSteps() int          { return s.numSteps }
func (s *Simulator) CurrentStep() int       { return s.step }
func (s *Simulator) Propagator() Propagator { return s.prop }

// Step advances one time index and returns the signal recorded there.
func (s *Simulator) Step(ctx context.Context) (Signal, error) {
	if s.status == StatusFinalized {
		return Signal{}, ErrFinalized
	}
	select {
	case <-ctx.Done():
		return Signal{}, &SimulationError{Step: s.step, Time: s.time(), Wrapped: fmt.Errorf("%w: %w", ErrContextCanceled, ctx.Err())}
	default:
	}

	if s.status == StatusInitialized {
		for _, m := range s.metrics {
			m.Reset()
		}
		s.status = StatusStepping
	}

	t := s.time()
	sig, err := s.prop.Advance(s.step)
	if err != nil {
		return Signal{}, &SimulationError{Step: s.step, Time: t, Wrapped: err}
	}
	if !sig.IsValid() {
		return Signal{}, &SimulationError{Step: s.step, Time: t, Wrapped: fmt.Errorf("invalid signal (NaN/Inf)")}
	}

	for _, m := range s.metrics {
		m.Observe(s.step, t, sig)
	}
	for _, obs := range s.observers {
		obs.OnStep(s.step, t, sig)
	}

	s.result.append(t, sig)
	s.step++
	if s.step >= s.numSteps {
		s.finalize()
	}
	return sig, nil
}

// Walk runs the remaining steps. On cancellation the partial result is
// returned together with the error.
func (s *Simulator) Walk(ctx context.Context) (*Result, error) {
	if s.status == StatusFinalized {
		return nil, ErrFinalized
	}
	for s.status != StatusFinalized {
		if _, err := s.Step(ctx); err != nil {
			return s.result.Clone(), err
		}
	}
	return s.Result(), nil
}

// Result returns a copy of the series recorded so far.
func (s *Simulator) Result() *Result {
	return s.result.Clone()
}

func (s *Simulator) Reset() error {
	if err := s.prop.Reset(); err != nil {
		return err
	}
	s.step = 0
	s.status = StatusInitialized
	s.result = newResult(s.numSteps, s.prop.Dt())
	for _, m := range s.metrics {
		m.Reset()
	}
	return nil
}

func (s *Simulator) time() float64 {
	return float64(s.step) * s.prop.Dt()
}

func (s *Simulator) finalize() {
	s.status = StatusFinalized
	for _, m := range s.metrics {
		s.result.Metrics[m.Name()] = m.Value()
	}
	if w, ok := s.prop.(Warner); ok {
		s.result.Warnings = append(s.result.Warnings, w.Warnings()...)
	}
	s.logger.Debug("simulation finalized", "steps", s.step, "warnings", len(s.result.Warnings))
}
