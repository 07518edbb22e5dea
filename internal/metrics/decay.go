package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/boldsim/internal/dynamo"
)

// DecayRate fits ln(total) against time and reports the negated slope in
// 1/s, the apparent R2* of a gradient echo or R2 of a spin-echo train.
type DecayRate struct {
	name     string
	from     int
	timeUnit float64
	floor    float64
	xs       []float64
	ys       []float64
}

// NewDecayRate fits samples from step from onwards. Times are multiplied by
// timeUnit to convert to seconds.
func NewDecayRate(from int, timeUnit float64) *DecayRate {
	if timeUnit <= 0 {
		timeUnit = 1e-3
	}
	return &DecayRate{
		name:     "decay_rate",
		from:     from,
		timeUnit: timeUnit,
		floor:    1e-12,
	}
}

func (d *DecayRate) Name() string { return d.name }

func (d *DecayRate) Observe(step int, t float64, s dynamo.Signal) {
	if step < d.from || s.Total <= d.floor {
		return
	}
	d.xs = append(d.xs, t*d.timeUnit)
	d.ys = append(d.ys, math.Log(s.Total))
}

func (d *DecayRate) Value() float64 {
	if len(d.xs) < 2 {
		return 0
	}
	_, beta := stat.LinearRegression(d.xs, d.ys, nil, false)
	return -beta
}

// RSquared reports the goodness of the log-linear fit.
func (d *DecayRate) RSquared() float64 {
	if len(d.xs) < 2 {
		return 0
	}
	alpha, beta := stat.LinearRegression(d.xs, d.ys, nil, false)
	return stat.RSquared(d.xs, d.ys, nil, alpha, beta)
}

func (d *DecayRate) Reset() {
	d.xs = d.xs[:0]
	d.ys = d.ys[:0]
}

type FinalSignal struct {
	name string
	last float64
}

func NewFinalSignal() *FinalSignal {
	return &FinalSignal{name: "final_signal"}
}

func (f *FinalSignal) Name() string { return f.name }

func (f *FinalSignal) Observe(step int, t float64, s dynamo.Signal) {
	f.last = s.Total
}

func (f *FinalSignal) Value() float64 { return f.last }
func (f *FinalSignal) Reset()         { f.last = 0 }
