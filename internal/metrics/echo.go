package metrics

import (
	"math/cmplx"

	"github.com/san-kum/boldsim/internal/dynamo"
)

// EchoPeak is the largest total signal at or after a given step, typically
// the refocusing pulse of a spin echo.
type EchoPeak struct {
	name  string
	after int
	peak  float64
	step  int
}

func NewEchoPeak(after int) *EchoPeak {
	return &EchoPeak{name: "echo_peak", after: after, step: -1}
}

func (e *EchoPeak) Name() string { return e.name }

func (e *EchoPeak) Observe(step int, t float64, s dynamo.Signal) {
	if step < e.after {
		return
	}
	if e.step < 0 || s.Total > e.peak {
		e.peak = s.Total
		e.step = step
	}
}

func (e *EchoPeak) Value() float64 { return e.peak }

// Step is where the peak occurred, or -1 before any observation.
func (e *EchoPeak) Step() int { return e.step }

func (e *EchoPeak) Reset() {
	e.peak = 0
	e.step = -1
}

// IVShare averages the intravascular fraction of the unnormalized signal
// magnitude, |IVSum| / (|EVSum| + |IVSum|).
type IVShare struct {
	name    string
	sum     float64
	samples int
}

func NewIVShare() *IVShare {
	return &IVShare{name: "iv_share"}
}

func (c *IVShare) Name() string { return c.name }

func (c *IVShare) Observe(step int, t float64, s dynamo.Signal) {
	ev, iv := cmplx.Abs(s.EVSum), cmplx.Abs(s.IVSum)
	if ev+iv == 0 {
		return
	}
	c.sum += iv / (ev + iv)
	c.samples++
}

func (c *IVShare) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *IVShare) Reset() {
	c.sum = 0
	c.samples = 0
}
