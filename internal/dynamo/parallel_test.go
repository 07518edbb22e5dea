package dynamo

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

func TestParallelForCoversRange(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 8} {
		var hits [1000]int32
		ParallelForN(len(hits), 16, workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, h)
			}
		}
	}
}

func TestEnsembleAverage(t *testing.T) {
	factory := func(seed uint64) (*Simulator, error) {
		return New(&decayPropagator{rate: 0.01 * float64(seed), dt: 1}, 20)
	}

	ens := NewEnsemble(factory, 3, 1)
	results, err := ens.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	avg, err := Average(results)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	want := (math.Exp(-0.01*5) + math.Exp(-0.02*5) + math.Exp(-0.03*5)) / 3
	if math.Abs(avg.Total[5]-want) > 1e-12 {
		t.Errorf("expected %f, got %f", want, avg.Total[5])
	}
}

// cancelingPropagator cancels the run once it reaches step at.
type cancelingPropagator struct {
	decayPropagator
	at     int
	cancel context.CancelFunc
}

func (p *cancelingPropagator) Advance(step int) (Signal, error) {
	if step == p.at {
		p.cancel()
	}
	return p.decayPropagator.Advance(step)
}

func TestEnsembleCanceledKeepsCompleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	factory := func(seed uint64) (*Simulator, error) {
		if seed == 2 {
			return New(&cancelingPropagator{decayPropagator: decayPropagator{rate: 0.02, dt: 1}, at: 5, cancel: cancel}, 20)
		}
		return New(&decayPropagator{rate: 0.01 * float64(seed), dt: 1}, 20)
	}

	ens := NewEnsemble(factory, 3, 1)
	ens.SetLimit(1)
	results, err := ens.Run(ctx)
	if !errors.Is(err, ErrContextCanceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(results) != 1 || results[0].StepsTaken != 20 {
		t.Fatalf("expected the first repeat only, got %d results", len(results))
	}
	if got, want := results[0].Total[5], math.Exp(-0.01*5); math.Abs(got-want) > 1e-12 {
		t.Errorf("kept repeat total[5] = %g, want %g", got, want)
	}
}

func TestEnsembleFactoryError(t *testing.T) {
	boom := errors.New("boom")
	ens := NewEnsemble(func(seed uint64) (*Simulator, error) { return nil, boom }, 2, 0)
	if _, err := ens.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}
