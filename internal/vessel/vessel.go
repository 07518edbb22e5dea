package vessel

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/boldsim/internal/dynamo"
)

type Shape int

const (
	Cylinder Shape = iota
	Sphere
)

func (s Shape) String() string {
	switch s {
	case Cylinder:
		return "cylinder"
	case Sphere:
		return "sphere"
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cylinder", "infinite_cylinder":
		return Cylinder, nil
	case "sphere":
		return Sphere, nil
	}
	return 0, dynamo.Configf("shape", "unknown vessel shape %q", name)
}

// FieldPolicy selects the perturbation assigned to points inside a cylinder.
type FieldPolicy int

const (
	// InsideLorentz uses (2π/3)·dchi·B0·(3cos²θ-1).
	InsideLorentz FieldPolicy = iota
	// InsideNone reports no perturbation inside the vessel.
	InsideNone
)

func (p FieldPolicy) String() string {
	if p == InsideNone {
		return "none"
	}
	return "lorentz"
}

func ParseFieldPolicy(name string) (FieldPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lorentz":
		return InsideLorentz, nil
	case "none", "zero":
		return InsideNone, nil
	}
	return 0, dynamo.Configf("inside_field", "unknown policy %q", name)
}

// Vessel describes one susceptibility inclusion. Values are immutable once
// added to a voxel.
//
// For cylinders in a 2D voxel the axis is normal to the plane and Theta/Phi
// give the B0 direction: Theta is the angle between B0 and the axis, Phi the
// in-plane azimuth of the B0 projection. In a 3D voxel B0 points along +z and
// Theta/Phi orient the cylinder axis. Spheres ignore the orientation.
type Vessel struct {
	Shape        Shape
	Diameter     float64
	Origin       Vec
	Theta        float64
	Phi          float64
	Dchi         float64
	Permeability float64
	Label        string
}

func NewCylinder(diameter float64, origin Vec, theta, phi, dchi, permeability float64, label string) (Vessel, error) {
	v := Vessel{
		Shape:        Cylinder,
		Diameter:     diameter,
		Origin:       origin,
		Theta:        theta,
		Phi:          phi,
		Dchi:         dchi,
		Permeability: permeability,
		Label:        label,
	}
	return v, v.Validate()
}

func NewSphere(diameter float64, origin Vec, dchi, permeability float64, label string) (Vessel, error) {
	v := Vessel{
		Shape:        Sphere,
		Diameter:     diameter,
		Origin:       origin,
		Dchi:         dchi,
		Permeability: permeability,
		Label:        label,
	}
	return v, v.Validate()
}

func (v Vessel) Validate() error {
	if !(v.Diameter > 0) || math.IsInf(v.Diameter, 0) {
		return &dynamo.ConstructionError{Reason: fmt.Sprintf("vessel diameter must be positive, got %g", v.Diameter)}
	}
	if v.Permeability < 0 || v.Permeability > 1 || math.IsNaN(v.Permeability) {
		return dynamo.Configf("permeation_probability", "must be in [0, 1], got %g", v.Permeability)
	}
	if v.Shape != Cylinder && v.Shape != Sphere {
		return dynamo.Configf("shape", "unknown vessel shape %d", int(v.Shape))
	}
	return nil
}

func (v Vessel) Radius() float64 { return v.Diameter / 2 }

// Axis is the unit cylinder axis in a 3D voxel.
func (v Vessel) Axis() Vec {
	st, ct := math.Sincos(v.Theta)
	sp, cp := math.Sincos(v.Phi)
	return Vec{st * cp, st * sp, ct}
}

// radial returns the minimum-image offset of p from the vessel, projected
// onto the cross-section for cylinders in 3D.
func (v Vessel) radial(p Vec, size float64, dim int) Vec {
	d := MinImage(p.Sub(v.Origin), size, dim)
	if dim == 2 {
		d[2] = 0
		return d
	}
	if v.Shape == Cylinder {
		a := v.Axis()
		d = d.Sub(a.Scale(d.Dot(a)))
	}
	return d
}

// Field returns the z perturbation of the static field at p.
func (v Vessel) Field(p Vec, b0, size float64, dim int, policy FieldPolicy) float64 {
	d := v.radial(p, size, dim)
	r2 := d.Dot(d)
	R := v.Radius()
	R2 := R * R

	if v.Shape == Sphere {
		if r2 < R2 {
			return 0
		}
		r := math.Sqrt(r2)
		cos2 := d[2] * d[2] / r2
		return 4 * math.Pi / 3 * v.Dchi * b0 * (R2 * R / (r2 * r)) * (3*cos2 - 1)
	}

	if r2 < R2 {
		if policy == InsideNone {
			return 0
		}
		ct := math.Cos(v.Theta)
		return 2 * math.Pi / 3 * v.Dchi * b0 * (3*ct*ct - 1)
	}

	if dim == 2 {
		st := math.Sin(v.Theta)
		s2, c2 := math.Sincos(2 * v.Phi)
		// cos 2ψ with ψ measured from the in-plane B0 projection.
		cos2psi := ((d[0]*d[0]-d[1]*d[1])*c2 + 2*d[0]*d[1]*s2) / r2
		return 2 * math.Pi * v.Dchi * b0 * st * st * (R2 / r2) * cos2psi
	}

	// sin²θ·cos2ψ reduces to 2z²/r² - sin²θ for the perpendicular offset.
	st := math.Sin(v.Theta)
	return 2 * math.Pi * v.Dchi * b0 * (R2 / r2) * (2*d[2]*d[2]/r2 - st*st)
}

// Contains reports whether p lies strictly inside the vessel.
func (v Vessel) Contains(p Vec, size float64, dim int) bool {
	d := v.radial(p, size, dim)
	R := v.Radius()
	return d.Dot(d) < R*R
}

// Volume is the measure of the vessel inside a voxel of the given edge.
// Cylinders in 3D are counted over one voxel edge of length.
func (v Vessel) Volume(size float64, dim int) float64 {
	R := v.Radius()
	switch {
	case v.Shape == Sphere && dim == 3:
		return 4 * math.Pi / 3 * R * R * R
	case dim == 3:
		return math.Pi * R * R * size
	default:
		return math.Pi * R * R
	}
}

// Overlaps reports whether two vessel cross-sections intersect.
func (v Vessel) Overlaps(o Vessel, size float64, dim int) bool {
	limit := v.Radius() + o.Radius()
	w := MinImage(o.Origin.Sub(v.Origin), size, dim)
	if dim == 2 {
		w[2] = 0
		return w.Dot(w) < limit*limit
	}

	var dist float64
	switch {
	case v.Shape == Sphere && o.Shape == Sphere:
		dist = w.Norm()
	case v.Shape == Cylinder && o.Shape == Cylinder:
		a, b := v.Axis(), o.Axis()
		n := a.Cross(b)
		if nn := n.Norm(); nn > 1e-9 {
			dist = math.Abs(w.Dot(n)) / nn
		} else {
			dist = w.Sub(a.Scale(w.Dot(a))).Norm()
		}
	case v.Shape == Cylinder:
		a := v.Axis()
		dist = w.Sub(a.Scale(w.Dot(a))).Norm()
	default:
		a := o.Axis()
		dist = w.Sub(a.Scale(w.Dot(a))).Norm()
	}
	return dist < limit
}

// InfluenceRadius is the distance beyond which the outside field falls
// below tol times its value at the vessel wall.
func (v Vessel) InfluenceRadius(tol float64) float64 {
	if tol <= 0 || tol >= 1 {
		return math.Inf(1)
	}
	if v.Shape == Sphere {
		return v.Radius() / math.Cbrt(tol)
	}
	return v.Radius() / math.Sqrt(tol)
}
