package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

type Comparison struct {
	RMS     float64
	MaxAbs  float64
	MaxStep int
	// Samples is the number of compared steps.
	Samples int
}

func (c Comparison) String() string {
	return fmt.Sprintf("rms=%.3g max=%.3g@%d n=%d", c.RMS, c.MaxAbs, c.MaxStep, c.Samples)
}

// Compare measures how far b deviates from a over their common length.
func Compare(a, b []float64) (Comparison, error) {
	n := min(len(a), len(b))
	if n == 0 {
		return Comparison{}, fmt.Errorf("compare: empty series (%d, %d samples)", len(a), len(b))
	}
	diff := floats.SubTo(make([]float64, n), a[:n], b[:n])
	for i, d := range diff {
		diff[i] = math.Abs(d)
	}
	idx := floats.MaxIdx(diff)
	return Comparison{
		RMS:     floats.Norm(diff, 2) / math.Sqrt(float64(n)),
		MaxAbs:  diff[idx],
		MaxStep: idx,
		Samples: n,
	}, nil
}
