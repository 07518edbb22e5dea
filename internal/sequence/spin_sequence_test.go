package sequence

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/spins"
)

func vesselVoxel(t *testing.T) *geometry.ContinuousVoxel {
	t.Helper()
	v, err := geometry.Populate(geometry.PopulateOptions{
		Dim:        2,
		NumVessels: 20,
		CBV:        0.05,
		B0:         3,
		Groups: []geometry.GroupSpec{{
			Label:     "vesselGroup1",
			Weight:    1,
			Diameters: geometry.ChoiceOf(0.002),
			Dchi:      3e-8,
			Theta:     math.Pi / 2,
		}},
		AllowIntersection: true,
		Seed:              1,
	})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	return v
}

func runSpinSequence(t *testing.T, geo geometry.Geometry, adc float64, steps int, sched Schedule) *dynamo.Result {
	t.Helper()
	ens, err := spins.NewEnsemble(geo, spins.Options{ADC: adc, Dt: 0.2, NumSpins: 2000, Seed: 1})
	if err != nil {
		t.Fatalf("ensemble: %v", err)
	}
	ss, err := NewSpinSequence(ens, steps, sched)
	if err != nil {
		t.Fatalf("spin sequence: %v", err)
	}
	sim, err := dynamo.New(ss, steps)
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}
	res, err := sim.Walk(context.Background())
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return res
}

func TestSpinSequenceZeroVessels(t *testing.T) {
	geo, _ := geometry.NewContinuousVoxel(2, 0.08, 3)
	res := runSpinSequence(t, geo, 0.001, 50, SpinEcho(20))

	for i := range res.Total {
		if math.Abs(res.Total[i]-1) > 1e-12 || math.Abs(res.EV[i]-1) > 1e-12 {
			t.Fatalf("step %d: expected total=EV=1, got %f/%f", i, res.Total[i], res.EV[i])
		}
		if res.IV[i] != 0 {
			t.Fatalf("step %d: expected IV 0, got %f", i, res.IV[i])
		}
	}
	if len(res.Warnings) != 1 || !errors.Is(res.Warnings[0], dynamo.ErrDegenerateSignal) {
		t.Errorf("expected one degenerate signal warning, got %v", res.Warnings)
	}
}

func TestSpinSequenceStaticEcho(t *testing.T) {
	res := runSpinSequence(t, vesselVoxel(t), 0, 201, SpinEcho(100))

	if math.Abs(res.Total[0]-1) > 1e-12 {
		t.Errorf("expected total(0)=1, got %f", res.Total[0])
	}
	if res.Total[100] > 0.99 {
		t.Errorf("expected dephasing before the echo, got %f", res.Total[100])
	}
	if math.Abs(res.Total[200]-1) > 1e-9 {
		t.Errorf("expected full refocusing at step 200, got %.12f", res.Total[200])
	}
}

func TestSpinSequenceMasked(t *testing.T) {
	geo := vesselVoxel(t)
	ens, _ := spins.NewEnsemble(geo, spins.Options{ADC: 0.001, Dt: 0.2, NumSpins: 500, Seed: 2})
	ss, err := NewMaskedSpinSequence(ens, 10, GradientEcho(), VesselSet(nil))
	if err != nil {
		t.Fatalf("masked: %v", err)
	}
	for step := 0; step < 10; step++ {
		sig, err := ss.Advance(step)
		if err != nil {
			t.Fatalf("advance %d: %v", step, err)
		}
		if sig.NumIV != 0 {
			t.Fatalf("expected no IV samples with an empty vessel set, got %d", sig.NumIV)
		}
	}
	if _, err := ss.Advance(3); err == nil {
		t.Error("expected out-of-order advance to fail")
	}
	if err := ss.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := ss.Advance(0); err != nil {
		t.Errorf("expected advance after reset, got %v", err)
	}
}
