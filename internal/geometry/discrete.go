package geometry

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/vessel"
)

// DiscreteVoxel is a fixed-resolution sampling of a ContinuousVoxel. Cells
// are stored x-fastest. It is never mutated after Discretize returns.
type DiscreteVoxel struct {
	dim     int
	n       int
	size    float64
	b0      float64
	h       float64
	dBz     []float64
	owner   []int32
	vessels []vessel.Vessel
}

// Discretize samples the field and ownership of v at every cell centre of an
// n-per-axis grid. Rows are evaluated concurrently.
func Discretize(ctx context.Context, v *ContinuousVoxel, n int) (*DiscreteVoxel, error) {
	if n <= 0 {
		return nil, &dynamo.ConstructionError{Reason: fmt.Sprintf("grid resolution must be positive, got %d", n)}
	}
	cells := 1
	for i := 0; i < v.dim; i++ {
		cells *= n
	}
	dv := &DiscreteVoxel{
		dim:     v.dim,
		n:       n,
		size:    v.size,
		b0:      v.b0,
		h:       v.size / float64(n),
		dBz:     make([]float64, cells),
		owner:   make([]int32, cells),
		vessels: v.Vessels(),
	}

	rows := cells / n
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for r := 0; r < rows; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			base := r * n
			for x := 0; x < n; x++ {
				p := dv.CellCenter(base + x)
				dv.dBz[base+x] = v.Field(p)
				dv.owner[base+x] = int32(v.VesselIndex(p))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discretize: %w", err)
	}
	return dv, nil
}

func (d *DiscreteVoxel) Dim() int          { return d.dim }
func (d *DiscreteVoxel) N() int            { return d.n }
func (d *DiscreteVoxel) Size() float64     { return d.size }
func (d *DiscreteVoxel) B0() float64       { return d.b0 }
func (d *DiscreteVoxel) CellSize() float64 { return d.h }
func (d *DiscreteVoxel) NumCells() int     { return len(d.dBz) }
func (d *DiscreteVoxel) NumVessels() int   { return len(d.vessels) }

func (d *DiscreteVoxel) Vessel(idx int) vessel.Vessel { return d.vessels[idx-1] }

// CellIndex returns the flat index of the cell containing p.
func (d *DiscreteVoxel) CellIndex(p vessel.Vec) int {
	idx, stride := 0, 1
	half := d.size / 2
	for i := 0; i < d.dim; i++ {
		c := int(math.Floor((p[i] + half) / d.h))
		idx += clampCell(c, d.n) * stride
		stride *= d.n
	}
	return idx
}

func (d *DiscreteVoxel) CellCenter(idx int) vessel.Vec {
	var p vessel.Vec
	half := d.size / 2
	for i := 0; i < d.dim; i++ {
		p[i] = -half + (float64(idx%d.n)+0.5)*d.h
		idx /= d.n
	}
	return p
}

func (d *DiscreteVoxel) Field(p vessel.Vec) float64 { return d.dBz[d.CellIndex(p)] }
func (d *DiscreteVoxel) VesselIndex(p vessel.Vec) int {
	return int(d.owner[d.CellIndex(p)])
}

// FieldAt and OwnerAt read one cell by flat index.
func (d *DiscreteVoxel) FieldAt(i int) float64 { return d.dBz[i] }
func (d *DiscreteVoxel) OwnerAt(i int) int     { return int(d.owner[i]) }

// FieldGrid returns a copy of the per-cell field perturbation.
func (d *DiscreteVoxel) FieldGrid() []float64 {
	out := make([]float64, len(d.dBz))
	copy(out, d.dBz)
	return out
}

// OwnerGrid returns a copy of the per-cell vessel index.
func (d *DiscreteVoxel) OwnerGrid() []int {
	out := make([]int, len(d.owner))
	for i, o := range d.owner {
		out[i] = int(o)
	}
	return out
}

// IVFraction is the share of cells owned by a vessel.
func (d *DiscreteVoxel) IVFraction() float64 {
	owned := 0
	for _, o := range d.owner {
		if o > 0 {
			owned++
		}
	}
	return float64(owned) / float64(len(d.owner))
}

func (d *DiscreteVoxel) String() string {
	return fmt.Sprintf("DiscreteVoxel%dD(N=%d, size=%g, B0=%g, vessels=%d)", d.dim, d.n, d.size, d.b0, len(d.vessels))
}
