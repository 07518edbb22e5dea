package dynamo

import (
	"context"
	"errors"
	"math"
	"testing"
)

// decayPropagator emits exp(-rate*step) on the EV compartment only.
type decayPropagator struct {
	rate   float64
	dt     float64
	resets int
	calls  []int
}

func (p *decayPropagator) Advance(step int) (Signal, error) {
	p.calls = append(p.calls, step)
	v := math.Exp(-p.rate * float64(step))
	return NewSignal(complex(v*10, 0), 0, 10, 0), nil
}

func (p *decayPropagator) Dt() float64 { return p.dt }

func (p *decayPropagator) Reset() error {
	p.resets++
	p.calls = nil
	return nil
}

type countMetric struct{ n int }

func (m *countMetric) Name() string                          { return "count" }
func (m *countMetric) Observe(step int, t float64, s Signal) { m.n++ }
func (m *countMetric) Value() float64                        { return float64(m.n) }
func (m *countMetric) Reset()                                { m.n = 0 }

func TestSimulatorWalk(t *testing.T) {
	p := &decayPropagator{rate: 0.1, dt: 0.2}
	sim, err := New(p, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sim.AddMetric(&countMetric{})

	if sim.Status() != StatusInitialized {
		t.Errorf("expected initialized, got %v", sim.Status())
	}

	result, err := sim.Walk(context.Background())
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	if result.StepsTaken != 10 {
		t.Errorf("expected 10 steps, got %d", result.StepsTaken)
	}
	if len(result.Total) != 10 || len(result.Times) != 10 {
		t.Errorf("expected 10 samples, got %d/%d", len(result.Total), len(result.Times))
	}
	if result.Total[0] != 1 {
		t.Errorf("expected total(0)=1, got %f", result.Total[0])
	}
	if math.Abs(result.Times[3]-0.6) > 1e-12 {
		t.Errorf("expected t=0.6 at step 3, got %f", result.Times[3])
	}
	if result.Metrics["count"] != 10 {
		t.Errorf("expected metric 10, got %f", result.Metrics["count"])
	}
	if sim.Status() != StatusFinalized {
		t.Errorf("expected finalized, got %v", sim.Status())
	}
	for i, step := range p.calls {
		if step != i {
			t.Fatalf("expected step %d, got %d", i, step)
		}
	}
}

func TestSimulatorFinalized(t *testing.T) {
	p := &decayPropagator{rate: 0.1, dt: 1}
	sim, _ := New(p, 3)

	for i := 0; i < 3; i++ {
		if _, err := sim.Step(context.Background()); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if _, err := sim.Step(context.Background()); !errors.Is(err, ErrFinalized) {
		t.Errorf("expected ErrFinalized, got %v", err)
	}
	if _, err := sim.Walk(context.Background()); !errors.Is(err, ErrFinalized) {
		t.Errorf("expected ErrFinalized from walk, got %v", err)
	}

	if err := sim.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if p.resets != 1 {
		t.Errorf("expected propagator reset, got %d", p.resets)
	}
	if sim.Status() != StatusInitialized {
		t.Errorf("expected initialized after reset, got %v", sim.Status())
	}
	result, err := sim.Walk(context.Background())
	if err != nil {
		t.Fatalf("walk after reset: %v", err)
	}
	if result.StepsTaken != 3 {
		t.Errorf("expected 3 steps after reset, got %d", result.StepsTaken)
	}
}

func TestSimulatorCancel(t *testing.T) {
	p := &decayPropagator{rate: 0.1, dt: 1}
	sim, _ := New(p, 100)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := sim.Step(ctx); err != nil {
		t.Fatalf("step: %v", err)
	}
	cancel()

	result, err := sim.Walk(ctx)
	if !errors.Is(err, ErrContextCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	var simErr *SimulationError
	if !errors.As(err, &simErr) || simErr.Step != 1 {
		t.Errorf("expected SimulationError at step 1, got %v", err)
	}
	if result.StepsTaken != 1 {
		t.Errorf("expected partial result of 1 step, got %d", result.StepsTaken)
	}
	if sim.Status() != StatusStepping {
		t.Errorf("expected stepping, got %v", sim.Status())
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		prop     Propagator
		numSteps int
	}{
		{"nil propagator", nil, 10},
		{"zero steps", &decayPropagator{dt: 1}, 0},
		{"zero dt", &decayPropagator{dt: 0}, 10},
		{"negative dt", &decayPropagator{dt: -0.2}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.prop, tt.numSteps)
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestNewSignalPartition(t *testing.T) {
	ev := complex(3, 4)
	iv := complex(-1, 0.5)
	s := NewSignal(ev, iv, 8, 2)

	if s.TotalSum != ev+iv {
		t.Errorf("expected exact partition, got %v", s.TotalSum)
	}
	if math.Abs(s.EV-5.0/8) > 1e-12 {
		t.Errorf("expected EV 0.625, got %f", s.EV)
	}

	empty := NewSignal(ev, 0, 8, 0)
	if empty.IV != 0 || math.IsNaN(empty.IV) {
		t.Errorf("expected zero IV for empty compartment, got %f", empty.IV)
	}
	if !empty.Degenerate() {
		t.Error("expected degenerate signal")
	}
}
