// Package sequence applies RF pulse schedules to per-sample magnetization
// and demodulates the ensemble into total, extravascular and intravascular
// signal.
//
// Each step precesses every sample by its phase increment, applies the
// pulses scheduled at that step and records the signal, so an excitation
// at step 0 yields a total signal of one at step 0.
package sequence

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/san-kum/boldsim/internal/dynamo"
)

type InitialState int

const (
	// Equilibrium starts every sample along +z.
	Equilibrium InitialState = iota
	// Transverse starts every sample along +x, as after an ideal excitation.
	Transverse
)

func ParseInitialState(name string) (InitialState, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "equilibrium", "z":
		return Equilibrium, nil
	case "transverse", "x":
		return Transverse, nil
	}
	return 0, dynamo.Configf("initial", "unknown initial state %q", name)
}

func (s InitialState) vector() [3]float64 {
	if s == Transverse {
		return [3]float64{1, 0, 0}
	}
	return [3]float64{0, 0, 1}
}

type Option func(*Sequence)

func WithInitialState(s InitialState) Option {
	return func(seq *Sequence) { seq.initial = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(seq *Sequence) {
		if l != nil {
			seq.logger = l
		}
	}
}

func WithWorkers(n int) Option {
	return func(seq *Sequence) { seq.workers = n }
}

type Sequence struct {
	m        [][3]float64
	initial  InitialState
	schedule Schedule
	pulses   map[int]Rotation
	numSteps int
	step     int
	workers  int

	total []float64
	ev    []float64
	iv    []float64

	warnedEV bool
	warnedIV bool
	warnings []error
	logger   *slog.Logger
}

func New(numSamples, numSteps int, sched Schedule, opts ...Option) (*Sequence, error) {
	if numSamples <= 0 {
		return nil, dynamo.Configf("sample_shape", "must be positive, got %d", numSamples)
	}
	if numSteps <= 0 {
		return nil, dynamo.Configf("num_steps", "must be positive, got %d", numSteps)
	}
	if err := sched.Validate(numSteps); err != nil {
		return nil, err
	}

	s := &Sequence{
		m:        make([][3]float64, numSamples),
		schedule: append(Schedule(nil), sched...),
		pulses:   make(map[int]Rotation),
		numSteps: numSteps,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Pulses sharing a step are applied in schedule order.
	for _, p := range s.schedule {
		r := NewRotation(p.Axis, p.Angle)
		if prev, ok := s.pulses[p.Step]; ok {
			r = prev.Then(r)
		}
		s.pulses[p.Step] = r
	}
	s.Reset()
	return s, nil
}

// Reset returns every sample to the initial state and clears the series.
func (s *Sequence) Reset() {
	v := s.initial.vector()
	for i := range s.m {
		s.m[i] = v
	}
	s.step = 0
	s.total = make([]float64, 0, s.numSteps)
	s.ev = make([]float64, 0, s.numSteps)
	s.iv = make([]float64, 0, s.numSteps)
	s.warnedEV, s.warnedIV = false, false
	s.warnings = nil
}

// Step precesses by the phase increments, applies any pulse scheduled at
// the current index and records the demodulated signal.
func (s *Sequence) Step(phase []float64, isIV []bool, dt float64) (dynamo.Signal, error) {
	if s.step >= s.numSteps {
		return dynamo.Signal{}, dynamo.ErrFinalized
	}
	if len(phase) != len(s.m) || len(isIV) != len(s.m) {
		return dynamo.Signal{}, dynamo.Configf("sample_shape", "expected %d samples, got %d phases and %d flags",
			len(s.m), len(phase), len(isIV))
	}

	pulse, pulsed := s.pulses[s.step]
	dynamo.ParallelForN(len(s.m), 1024, s.workerCount(), func(start, end int) {
		for i := start; i < end; i++ {
			m := Precess(s.m[i], phase[i])
			if pulsed {
				m = pulse.Apply(m)
			}
			s.m[i] = m
		}
	})

	sig := Demodulate(s.m, isIV)
	s.diagnose(sig)
	s.total = append(s.total, sig.Total)
	s.ev = append(s.ev, sig.EV)
	s.iv = append(s.iv, sig.IV)
	s.step++
	return sig, nil
}

func (s *Sequence) workerCount() int {
	if s.workers > 0 {
		return s.workers
	}
	return runtime.GOMAXPROCS(0)
}

func (s *Sequence) diagnose(sig dynamo.Signal) {
	if sig.NumEV == 0 && !s.warnedEV {
		s.warnedEV = true
		s.warn("ev")
	}
	if sig.NumIV == 0 && !s.warnedIV {
		s.warnedIV = true
		s.warn("iv")
	}
}

func (s *Sequence) warn(compartment string) {
	err := fmt.Errorf("%w: no %s samples at step %d", dynamo.ErrDegenerateSignal, compartment, s.step)
	s.warnings = append(s.warnings, err)
	s.logger.Warn("degenerate signal, reporting zero", "compartment", compartment, "step", s.step)
}

// Demodulate sums Mx + iMy per compartment.
func Demodulate(m [][3]float64, isIV []bool) dynamo.Signal {
	var evSum, ivSum complex128
	numEV, numIV := 0, 0
	for i := range m {
		c := complex(m[i][0], m[i][1])
		if isIV[i] {
			ivSum += c
			numIV++
		} else {
			evSum += c
			numEV++
		}
	}
	return dynamo.NewSignal(evSum, ivSum, numEV, numIV)
}

// Mix hands the per-sample vectors to fn for in-place rewriting between
// steps. The deterministic diffuser spreads magnetization this way.
func (s *Sequence) Mix(fn func(m [][3]float64)) {
	fn(s.m)
}

// Signals returns copies of the recorded total, EV and IV series.
func (s *Sequence) Signals() (total, ev, iv []float64) {
	return append([]float64(nil), s.total...),
		append([]float64(nil), s.ev...),
		append([]float64(nil), s.iv...)
}

func (s *Sequence) Warnings() []error {
	return append([]error(nil), s.warnings...)
}

// Magnetization returns a copy of the per-sample vectors.
func (s *Sequence) Magnetization() [][3]float64 {
	return append([][3]float64(nil), s.m...)
}

func (s *Sequence) StepIndex() int     { return s.step }
func (s *Sequence) NumSteps() int      { return s.numSteps }
func (s *Sequence) NumSamples() int    { return len(s.m) }
func (s *Sequence) Schedule() Schedule { return append(Schedule(nil), s.schedule...) }
