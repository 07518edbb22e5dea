package geometry

import (
	"fmt"
	"math"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/vessel"
)

// Geometry is the read-only view of a voxel consumed by walkers.
type Geometry interface {
	Dim() int
	Size() float64
	B0() float64
	Field(p vessel.Vec) float64
	// VesselIndex is 0 in the extravascular space, k for the k-th vessel.
	VesselIndex(p vessel.Vec) int
	Vessel(idx int) vessel.Vessel
	NumVessels() int
}

type ContinuousVoxel struct {
	dim     int
	size    float64
	b0      float64
	policy  vessel.FieldPolicy
	vessels []vessel.Vessel
	index   *spatialIndex
	tol     float64
}

func NewContinuousVoxel(dim int, size, b0 float64) (*ContinuousVoxel, error) {
	if dim != 2 && dim != 3 {
		return nil, dynamo.Configf("dim", "must be 2 or 3, got %d", dim)
	}
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, &dynamo.ConstructionError{Reason: fmt.Sprintf("voxel size must be positive, got %g", size)}
	}
	return &ContinuousVoxel{dim: dim, size: size, b0: b0}, nil
}

func (v *ContinuousVoxel) Dim() int                        { return v.dim }
func (v *ContinuousVoxel) Size() float64                   { return v.size }
func (v *ContinuousVoxel) B0() float64                     { return v.b0 }
func (v *ContinuousVoxel) NumVessels() int                 { return len(v.vessels) }
func (v *ContinuousVoxel) FieldPolicy() vessel.FieldPolicy { return v.policy }

func (v *ContinuousVoxel) SetFieldPolicy(p vessel.FieldPolicy) { v.policy = p }

// Vessel returns the idx-th vessel (1-based, matching VesselIndex).
func (v *ContinuousVoxel) Vessel(idx int) vessel.Vessel {
	return v.vessels[idx-1]
}

// Vessels returns a copy of the ordered vessel list.
func (v *ContinuousVoxel) Vessels() []vessel.Vessel {
	out := make([]vessel.Vessel, len(v.vessels))
	copy(out, v.vessels)
	return out
}

// AddVessel appends a vessel. Its origin must lie inside the voxel.
func (v *ContinuousVoxel) AddVessel(ves vessel.Vessel) error {
	if err := ves.Validate(); err != nil {
		return err
	}
	if ves.Shape == vessel.Sphere && v.dim != 3 {
		return dynamo.Configf("shape", "spheres require a 3D voxel")
	}
	if !vessel.InBounds(ves.Origin, v.size, v.dim) {
		return &dynamo.ConstructionError{Reason: fmt.Sprintf("vessel origin %v outside voxel of size %g", ves.Origin[:v.dim], v.size)}
	}
	if v.dim == 2 {
		ves.Origin[2] = 0
	}
	v.vessels = append(v.vessels, ves)
	if v.index != nil {
		v.index = newSpatialIndex(v.vessels, v.size, v.tol)
	}
	return nil
}

// Intersects reports whether ves overlaps any vessel already in the voxel.
func (v *ContinuousVoxel) Intersects(ves vessel.Vessel) bool {
	for i := range v.vessels {
		if v.vessels[i].Overlaps(ves, v.size, v.dim) {
			return true
		}
	}
	return false
}

// CBV is the summed vessel volume over the voxel volume.
func (v *ContinuousVoxel) CBV() float64 {
	total := 0.0
	for i := range v.vessels {
		total += v.vessels[i].Volume(v.size, v.dim)
	}
	return total / math.Pow(v.size, float64(v.dim))
}

// EnableAcceleration restricts the field sum to vessels binned near the
// query point. Only 2D voxels are binned; tol is the relative field level
// below which a vessel is ignored.
func (v *ContinuousVoxel) EnableAcceleration(tol float64) error {
	if v.dim != 2 {
		return dynamo.Configf("voxel.field_cutoff", "acceleration requires a 2D voxel")
	}
	if !(tol > 0 && tol < 1) {
		return dynamo.Configf("voxel.field_cutoff", "must be in (0, 1), got %g", tol)
	}
	v.tol = tol
	v.index = newSpatialIndex(v.vessels, v.size, tol)
	return nil
}

func (v *ContinuousVoxel) DisableAcceleration() {
	v.index = nil
	v.tol = 0
}

// Accelerated reports whether field lookups use the spatial index.
func (v *ContinuousVoxel) Accelerated() bool {
	return v.index != nil && v.index.usable()
}

func (v *ContinuousVoxel) Field(p vessel.Vec) float64 {
	if v.Accelerated() {
		return v.index.field(p, v)
	}
	return v.FieldBruteForce(p)
}

// FieldBruteForce sums the contribution of every vessel.
func (v *ContinuousVoxel) FieldBruteForce(p vessel.Vec) float64 {
	sum := 0.0
	for i := range v.vessels {
		sum += v.vessels[i].Field(p, v.b0, v.size, v.dim, v.policy)
	}
	return sum
}

func (v *ContinuousVoxel) VesselIndex(p vessel.Vec) int {
	if v.Accelerated() {
		return v.index.owner(p, v)
	}
	for i := range v.vessels {
		if v.vessels[i].Contains(p, v.size, v.dim) {
			return i + 1
		}
	}
	return 0
}

func (v *ContinuousVoxel) String() string {
	return fmt.Sprintf("ContinuousVoxel%dD(size=%g, B0=%g, vessels=%d, CBV=%.5f)",
		v.dim, v.size, v.b0, len(v.vessels), v.CBV())
}
