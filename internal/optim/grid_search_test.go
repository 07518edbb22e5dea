package optim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/boldsim/internal/config"
	"github.com/san-kum/boldsim/internal/dynamo"
)

func TestPointsOrder(t *testing.T) {
	g, err := NewGridSearch([]string{"cbv", "adc"}, [][]float64{{0.01, 0.02}, {0, 0.001, 0.002}})
	if err != nil {
		t.Fatal(err)
	}
	pts := g.Points()
	if len(pts) != 6 {
		t.Fatalf("expected 6 points, got %d", len(pts))
	}
	if pts[0]["cbv"] != 0.01 || pts[0]["adc"] != 0 || pts[1]["adc"] != 0.001 || pts[3]["cbv"] != 0.02 {
		t.Errorf("unexpected order %v", pts)
	}
}

func TestNewGridSearchRejectsMismatch(t *testing.T) {
	if _, err := NewGridSearch([]string{"cbv"}, nil); err == nil {
		t.Error("expected mismatch error")
	}
	if _, err := NewGridSearch([]string{"cbv"}, [][]float64{{}}); err == nil {
		t.Error("expected empty range error")
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want []float64
	}{
		{"0:1:5", []float64{0, 0.25, 0.5, 0.75, 1}},
		{"0.002", []float64{0.002}},
		{"1, 2,3", []float64{1, 2, 3}},
		{"3:4:1", []float64{3}},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.in)
		if err != nil {
			t.Errorf("ParseRange(%q): %v", tt.in, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("ParseRange(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if math.Abs(got[i]-tt.want[i]) > 1e-12 {
				t.Errorf("ParseRange(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
	for _, bad := range []string{"a", "0:1:0", "0:x:3", ""} {
		if _, err := ParseRange(bad); err == nil {
			t.Errorf("ParseRange(%q) should fail", bad)
		}
	}
}

func TestParseSpec(t *testing.T) {
	g, err := ParseSpec([]string{"cbv=0.01,0.03", "diameter=0.002:0.004:3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Points()) != 6 {
		t.Errorf("expected 6 points, got %d", len(g.Points()))
	}
	if _, err := ParseSpec([]string{"viscosity=1"}); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
	if _, err := ParseSpec([]string{"cbv"}); err == nil {
		t.Error("expected error for missing range")
	}
}

func TestApply(t *testing.T) {
	cfg := config.Default()
	for name, v := range map[string]float64{"diameter": 0.004, "dchi": 1e-8, "num_spins": 250, "permeability": 0.3, "field_cutoff": 0.01} {
		if err := Apply(cfg, name, v); err != nil {
			t.Fatal(err)
		}
	}
	g := cfg.Groups[0]
	if g.Diameters.Values[0] != 0.004 || g.Dchi != 1e-8 || g.Permeability != 0.3 || cfg.Spins.NumSpins != 250 ||
		cfg.Voxel.FieldCutoff != 0.01 {
		t.Errorf("parameters not applied: %+v spins=%d", g, cfg.Spins.NumSpins)
	}
}

func TestSweepAndSearch(t *testing.T) {
	base := config.Default()
	base.Spins.NumSpins = 200
	base.Sequence.NumSteps = 40
	base.Sequence.Pulses = base.Sequence.Pulses[:1]
	base.Voxel.NumVessels = 20

	g, err := NewGridSearch([]string{"dchi", "cbv"}, [][]float64{{1e-8, 6e-8}, {0.02, 1.5}})
	if err != nil {
		t.Fatal(err)
	}
	g.SetWorkers(2)
	var calls int
	points, err := g.Sweep(context.Background(), ConfigBuilder(base), func(done, total int) { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	if calls != 4 {
		t.Errorf("progress called %d times", calls)
	}
	var failed int
	for _, p := range points {
		if p.Err != nil {
			failed++
			if p.Params["cbv"] != 1.5 {
				t.Errorf("unexpected failure at %v: %v", p.Params, p.Err)
			}
		}
	}
	if failed != 2 {
		t.Errorf("expected the invalid cbv points to fail, got %d failures", failed)
	}

	best, val, err := g.Search(context.Background(), ConfigBuilder(base), "final_signal", true)
	if err != nil {
		t.Fatal(err)
	}
	if best["dchi"] != 1e-8 {
		t.Errorf("weaker susceptibility should keep more signal, best %v (%g)", best, val)
	}
}
