package analysis

import (
	"math"
	"math/cmplx"
	"slices"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PowerSpectrum returns the magnitudes of the non-negative frequency bins.
func PowerSpectrum(data []float64) []float64 {
	if len(data) == 0 {
		return nil
	}
	f := fft.FFTReal(data)
	ps := make([]float64, len(f)/2+1)
	for i := range ps {
		ps[i] = cmplx.Abs(f[i])
	}
	return ps
}

// Histogram is a binned distribution with bin edges.
type Histogram struct {
	Edges  []float64
	Counts []float64
}

// Centers returns bin midpoints.
func (h Histogram) Centers() []float64 {
	c := make([]float64, len(h.Counts))
	for i := range c {
		c[i] = (h.Edges[i] + h.Edges[i+1]) / 2
	}
	return c
}

// FrequencyHistogram bins the precession frequency offsets γ·ΔBz/2π, in Hz,
// of the given field samples.
func FrequencyHistogram(field []float64, gamma float64, bins int) Histogram {
	if bins < 1 {
		bins = 1
	}
	freq := make([]float64, len(field))
	for i, b := range field {
		freq[i] = gamma * b / (2 * math.Pi)
	}
	slices.Sort(freq)
	if len(freq) == 0 {
		return Histogram{Edges: []float64{0, 1}, Counts: []float64{0}}
	}
	lo, hi := freq[0], freq[len(freq)-1]
	if hi == lo {
		hi = lo + 1
	}
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	// Span can round the top edge down onto hi; stat.Histogram needs it above.
	edges[bins] = math.Nextafter(hi, math.Inf(1))
	return Histogram{Edges: edges, Counts: stat.Histogram(nil, edges, freq, nil)}
}
