package analysis

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestCompare(t *testing.T) {
	a := []float64{1, 0.9, 0.8, 0.7}
	b := []float64{1, 0.9, 0.5, 0.7, 0.1}
	c, err := Compare(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if c.Samples != 4 || c.MaxStep != 2 || math.Abs(c.MaxAbs-0.3) > 1e-12 {
		t.Errorf("unexpected comparison %v", c)
	}
	if want := 0.3 / 2; math.Abs(c.RMS-want) > 1e-12 {
		t.Errorf("rms = %g, want %g", c.RMS, want)
	}

	if _, err := Compare(nil, b); err == nil {
		t.Error("expected error for empty series")
	}
}

func TestCompareIdentical(t *testing.T) {
	a := []float64{1, 0.5, 0.25}
	c, err := Compare(a, a)
	if err != nil {
		t.Fatal(err)
	}
	if c.RMS != 0 || c.MaxAbs != 0 {
		t.Errorf("identical series should not differ: %v", c)
	}
}

func TestFrequencyHistogram(t *testing.T) {
	gamma := 2 * math.Pi
	field := []float64{-2, -1, 0, 0, 0, 1, 2}
	h := FrequencyHistogram(field, gamma, 4)
	if len(h.Counts) != 4 || len(h.Edges) != 5 {
		t.Fatalf("got %d bins and %d edges", len(h.Counts), len(h.Edges))
	}
	total := 0.0
	for _, c := range h.Counts {
		total += c
	}
	if total != float64(len(field)) {
		t.Errorf("histogram holds %g samples, want %d", total, len(field))
	}
	if h.Edges[0] != -2 {
		t.Errorf("first edge = %g, want -2", h.Edges[0])
	}
	if got := FrequencyHistogram([]float64{0, 0}, gamma, 3); got.Counts[0] != 2 {
		t.Errorf("constant field should fill the first bin, got %v", got.Counts)
	}
}

func TestFrequencyHistogramRandomFields(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		field := make([]float64, 1000)
		for i := range field {
			field[i] = (rng.Float64() - 0.5) * 1e-6
		}
		h := FrequencyHistogram(field, 2.675222e8, 40)
		total := 0.0
		for _, c := range h.Counts {
			total += c
		}
		if total != float64(len(field)) {
			t.Fatalf("trial %d: histogram holds %g samples, want %d", trial, total, len(field))
		}
		if top := h.Edges[len(h.Edges)-1]; top <= 2.675222e8*slicesMax(field)/(2*math.Pi) {
			t.Fatalf("trial %d: top edge %g does not exceed the largest sample", trial, top)
		}
	}
}

func slicesMax(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}

func TestPowerSpectrum(t *testing.T) {
	n := 64
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Cos(2 * math.Pi * 4 * float64(i) / float64(n))
	}
	ps := PowerSpectrum(data)
	if len(ps) != n/2+1 {
		t.Fatalf("len = %d, want %d", len(ps), n/2+1)
	}
	peak := 0
	for i := range ps {
		if ps[i] > ps[peak] {
			peak = i
		}
	}
	if peak != 4 {
		t.Errorf("peak bin = %d, want 4", peak)
	}
}
