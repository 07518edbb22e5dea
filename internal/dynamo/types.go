package dynamo

import (
	"math"
	"math/cmplx"
)

// Signal is the demodulated magnetization at one step.
type Signal struct {
	Total float64
	EV    float64
	IV    float64

	// Unnormalized transverse sums. TotalSum == EVSum + IVSum.
	TotalSum complex128
	EVSum    complex128
	IVSum    complex128

	NumEV int
	NumIV int
}

// NewSignal normalizes the compartment sums. Empty compartments report zero.
func NewSignal(evSum, ivSum complex128, numEV, numIV int) Signal {
	s := Signal{
		EVSum:    evSum,
		IVSum:    ivSum,
		TotalSum: evSum + ivSum,
		NumEV:    numEV,
		NumIV:    numIV,
	}
	if n := numEV + numIV; n > 0 {
		s.Total = cmplx.Abs(s.TotalSum) / float64(n)
	}
	if numEV > 0 {
		s.EV = cmplx.Abs(evSum) / float64(numEV)
	}
	if numIV > 0 {
		s.IV = cmplx.Abs(ivSum) / float64(numIV)
	}
	return s
}

func (s Signal) NumTotal() int { return s.NumEV + s.NumIV }

// Degenerate reports whether either compartment is empty.
func (s Signal) Degenerate() bool { return s.NumEV == 0 || s.NumIV == 0 }

func (s Signal) IsValid() bool {
	for _, v := range []float64{s.Total, s.EV, s.IV} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Propagator advances a simulation by one discrete time index and reports the
// signal recorded at that index.
type Propagator interface {
	Advance(step int) (Signal, error)
	Dt() float64
	Reset() error
}

type Metric interface {
	Name() string
	Observe(step int, t float64, s Signal)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(step int, t float64, s Signal)
}

type Status int

const (
	StatusInitialized Status = iota
	StatusStepping
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusStepping:
		return "stepping"
	case StatusFinalized:
		return "finalized"
	}
	return "unknown"
}

type Result struct {
	Times      []float64
	Total      []float64
	EV         []float64
	IV         []float64
	Dt         float64
	StepsTaken int
	Metrics    map[string]float64
	Warnings   []error
}

func newResult(capacity int, dt float64) *Result {
	return &Result{
		Times:   make([]float64, 0, capacity),
		Total:   make([]float64, 0, capacity),
		EV:      make([]float64, 0, capacity),
		IV:      make([]float64, 0, capacity),
		Dt:      dt,
		Metrics: make(map[string]float64),
	}
}

func (r *Result) append(t float64, s Signal) {
	r.Times = append(r.Times, t)
	r.Total = append(r.Total, s.Total)
	r.EV = append(r.EV, s.EV)
	r.IV = append(r.IV, s.IV)
	r.StepsTaken++
}

// Clone returns a deep copy safe to hand to read-only consumers.
func (r *Result) Clone() *Result {
	c := &Result{
		Times:      append([]float64(nil), r.Times...),
		Total:      append([]float64(nil), r.Total...),
		EV:         append([]float64(nil), r.EV...),
		IV:         append([]float64(nil), r.IV...),
		Dt:         r.Dt,
		StepsTaken: r.StepsTaken,
		Metrics:    make(map[string]float64, len(r.Metrics)),
		Warnings:   append([]error(nil), r.Warnings...),
	}
	for k, v := range r.Metrics {
		c.Metrics[k] = v
	}
	return c
}
