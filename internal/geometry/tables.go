package geometry

import (
	"fmt"
	"math"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/vessel"
)

// TableOptions controls how externally packed positions become a voxel.
type TableOptions struct {
	// Scale converts table units to voxel units, e.g. 1e-3 for µm to mm.
	Scale float64
	// Crop keeps the central fraction of the packed region. Zero keeps all.
	Crop        float64
	FieldPolicy vessel.FieldPolicy
}

// TableVessel is one kept table column, already centred and scaled.
type TableVessel struct {
	Column   int
	Origin   vessel.Vec
	Diameter float64
}

// VesselBuilder turns the k-th kept table entry into a vessel.
type VesselBuilder func(k int, tv TableVessel) (vessel.Vessel, error)

// FromTables builds a voxel from parallel position and radius tables: one
// row per dimension, one column per vessel. The voxel is centred on the
// packed region, sized to the cropped span and keeps only vessels whose
// centres fall inside it. It returns the source column of every vessel.
func FromTables(dim int, b0 float64, positions [][]float64, radii []float64, opts TableOptions, build VesselBuilder) (*ContinuousVoxel, []int, error) {
	if len(positions) != dim {
		return nil, nil, dynamo.Configf("positions", "expected %d rows, got %d", dim, len(positions))
	}
	n := len(radii)
	if n == 0 {
		return nil, nil, dynamo.Configf("radii", "table is empty")
	}
	for d, row := range positions {
		if len(row) != n {
			return nil, nil, dynamo.Configf("positions", "row %d has %d columns, radii has %d", d, len(row), n)
		}
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.Crop == 0 {
		opts.Crop = 1
	}
	if opts.Crop < 0 || opts.Crop > 1 {
		return nil, nil, dynamo.Configf("crop", "must be in (0, 1], got %g", opts.Crop)
	}

	var centre vessel.Vec
	size := 0.0
	for d := 0; d < dim; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, x := range positions[d] {
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		centre[d] = (lo + hi) / 2
		size = math.Max(size, opts.Crop*(hi-lo)*opts.Scale)
	}

	v, err := NewContinuousVoxel(dim, size, b0)
	if err != nil {
		return nil, nil, fmt.Errorf("table voxel: %w", err)
	}
	v.SetFieldPolicy(opts.FieldPolicy)

	columns := make([]int, 0, n)
	for i := 0; i < n; i++ {
		var origin vessel.Vec
		for d := 0; d < dim; d++ {
			origin[d] = (positions[d][i] - centre[d]) * opts.Scale
		}
		if !vessel.InBounds(origin, size, dim) {
			continue
		}
		ves, err := build(len(columns), TableVessel{Column: i, Origin: origin, Diameter: 2 * radii[i] * opts.Scale})
		if err != nil {
			return nil, nil, fmt.Errorf("table column %d: %w", i, err)
		}
		if err := v.AddVessel(ves); err != nil {
			return nil, nil, fmt.Errorf("table column %d: %w", i, err)
		}
		columns = append(columns, i)
	}
	return v, columns, nil
}
