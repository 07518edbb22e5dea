package sequence

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/san-kum/boldsim/internal/dynamo"
)

// Axis is a rotation axis given by its polar and azimuthal angles relative
// to the static field (+z).
type Axis struct {
	Theta float64
	Phi   float64
}

var (
	AxisX = Axis{Theta: math.Pi / 2, Phi: 0}
	AxisY = Axis{Theta: math.Pi / 2, Phi: math.Pi / 2}
	AxisZ = Axis{Theta: 0, Phi: 0}
)

func ParseAxis(name string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "x", "+x":
		return AxisX, nil
	case "y", "+y":
		return AxisY, nil
	case "z", "+z":
		return AxisZ, nil
	case "-x":
		return Axis{Theta: math.Pi / 2, Phi: math.Pi}, nil
	case "-y":
		return Axis{Theta: math.Pi / 2, Phi: 3 * math.Pi / 2}, nil
	case "-z":
		return Axis{Theta: math.Pi, Phi: 0}, nil
	}
	return Axis{}, dynamo.Configf("pulse_axes", "unknown axis %q", name)
}

func (a Axis) Vector() [3]float64 {
	st, ct := math.Sincos(a.Theta)
	sp, cp := math.Sincos(a.Phi)
	return [3]float64{st * cp, st * sp, ct}
}

func (a Axis) String() string {
	return fmt.Sprintf("[%.4f, %.4f]", a.Theta, a.Phi)
}

type Pulse struct {
	Step  int
	Angle float64
	Axis  Axis
}

// Schedule is an ordered list of RF pulses.
type Schedule []Pulse

// NewSchedule zips parallel lists of step indices, flip angles and axes.
func NewSchedule(indices []int, angles []float64, axes []Axis) (Schedule, error) {
	if len(indices) != len(angles) || len(indices) != len(axes) {
		return nil, dynamo.Configf("pulses", "mismatched lengths: %d indices, %d angles, %d axes",
			len(indices), len(angles), len(axes))
	}
	s := make(Schedule, len(indices))
	for i := range indices {
		s[i] = Pulse{Step: indices[i], Angle: angles[i], Axis: axes[i]}
	}
	sort.SliceStable(s, func(a, b int) bool { return s[a].Step < s[b].Step })
	return s, nil
}

// SpinEcho is the excitation about y at step 0 followed by a refocusing π
// about x at the given step.
func SpinEcho(refocus int) Schedule {
	return Schedule{
		{Step: 0, Angle: math.Pi / 2, Axis: AxisY},
		{Step: refocus, Angle: math.Pi, Axis: AxisX},
	}
}

// GradientEcho is a single excitation about y at step 0.
func GradientEcho() Schedule {
	return Schedule{{Step: 0, Angle: math.Pi / 2, Axis: AxisY}}
}

func (s Schedule) Validate(numSteps int) error {
	for _, p := range s {
		if p.Step < 0 || p.Step >= numSteps {
			return dynamo.Configf("pulse_time_indices", "pulse at step %d outside planned %d steps", p.Step, numSteps)
		}
		if math.IsNaN(p.Angle) || math.IsInf(p.Angle, 0) {
			return dynamo.Configf("pulse_angles", "invalid angle %g at step %d", p.Angle, p.Step)
		}
	}
	return nil
}

// LastStep is the index of the final pulse, or -1 for an empty schedule.
func (s Schedule) LastStep() int {
	last := -1
	for _, p := range s {
		if p.Step > last {
			last = p.Step
		}
	}
	return last
}

// Rotation is a 3x3 rotation matrix acting on magnetization vectors.
type Rotation [3][3]float64

// NewRotation returns the right-handed rotation by angle about axis.
func NewRotation(axis Axis, angle float64) Rotation {
	n := axis.Vector()
	s, c := math.Sincos(angle)
	t := 1 - c
	return Rotation{
		{c + n[0]*n[0]*t, n[0]*n[1]*t - n[2]*s, n[0]*n[2]*t + n[1]*s},
		{n[1]*n[0]*t + n[2]*s, c + n[1]*n[1]*t, n[1]*n[2]*t - n[0]*s},
		{n[2]*n[0]*t - n[1]*s, n[2]*n[1]*t + n[0]*s, c + n[2]*n[2]*t},
	}
}

func (r Rotation) Apply(m [3]float64) [3]float64 {
	return [3]float64{
		r[0][0]*m[0] + r[0][1]*m[1] + r[0][2]*m[2],
		r[1][0]*m[0] + r[1][1]*m[1] + r[1][2]*m[2],
		r[2][0]*m[0] + r[2][1]*m[1] + r[2][2]*m[2],
	}
}

// Then returns the rotation applying r first and next second.
func (r Rotation) Then(next Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += next[i][k] * r[k][j]
			}
		}
	}
	return out
}

// Precess rotates the transverse magnetization by phase about +z.
func Precess(m [3]float64, phase float64) [3]float64 {
	s, c := math.Sincos(phase)
	return [3]float64{m[0]*c - m[1]*s, m[0]*s + m[1]*c, m[2]}
}
