package viz

import (
	"math"

	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/vessel"
)

// frame maps the voxel's x-y cross-section onto the largest centred square
// of the canvas.
type frame struct {
	size         float64
	side, ox, oy int
}

func newFrame(c *Canvas, size float64) frame {
	side := min(c.PixelWidth(), c.PixelHeight())
	return frame{size: size, side: side, ox: (c.PixelWidth() - side) / 2, oy: (c.PixelHeight() - side) / 2}
}

func (f frame) pixel(p vessel.Vec) (int, int) {
	x := int(math.Floor((p[0]/f.size + 0.5) * float64(f.side)))
	y := int(math.Floor((0.5 - p[1]/f.size) * float64(f.side)))
	return f.ox + x, f.oy + y
}

func (f frame) point(x, y int) vessel.Vec {
	return vessel.Vec{
		(float64(x-f.ox)+0.5)/float64(f.side)*f.size - f.size/2,
		f.size/2 - (float64(y-f.oy)+0.5)/float64(f.side)*f.size,
		0,
	}
}

func (f frame) contains(x, y int) bool {
	return x >= f.ox && x < f.ox+f.side && y >= f.oy && y < f.oy+f.side
}

// DrawVoxel draws vessel cross-sections of a 2D voxel as circles, or the
// camera view of a 3D voxel's wireframe.
func DrawVoxel(c *Canvas, v *geometry.ContinuousVoxel, cam *Camera) {
	if v.Dim() == 3 {
		Render3D(c, VoxelWireframe(v), cam)
		return
	}
	f := newFrame(c, v.Size())
	for _, ves := range v.Vessels() {
		x, y := f.pixel(ves.Origin)
		r := int(math.Round(ves.Radius() / v.Size() * float64(f.side)))
		c.DrawCircle(x, y, r)
	}
}

// DrawOwnership fills every sub-pixel whose point lies inside a vessel. 3D
// geometries show the z = 0 slice.
func DrawOwnership(c *Canvas, g geometry.Geometry) {
	f := newFrame(c, g.Size())
	for y := f.oy; y < f.oy+f.side; y++ {
		for x := f.ox; x < f.ox+f.side; x++ {
			if g.VesselIndex(f.point(x, y)) > 0 {
				c.Set(x, y)
			}
		}
	}
}

// DrawField lights sub-pixels where |dBz| exceeds threshold, outlining the
// dipole lobes around each vessel.
func DrawField(c *Canvas, g geometry.Geometry, threshold float64) {
	f := newFrame(c, g.Size())
	for y := f.oy; y < f.oy+f.side; y++ {
		for x := f.ox; x < f.ox+f.side; x++ {
			if math.Abs(g.Field(f.point(x, y))) > threshold {
				c.Set(x, y)
			}
		}
	}
}

// DrawSpins plots at most limit spin positions projected onto x-y.
func DrawSpins(c *Canvas, positions []vessel.Vec, size float64, limit int) {
	f := newFrame(c, size)
	stride := 1
	if limit > 0 && len(positions) > limit {
		stride = (len(positions) + limit - 1) / limit
	}
	for i := 0; i < len(positions); i += stride {
		x, y := f.pixel(positions[i])
		if f.contains(x, y) {
			c.Set(x, y)
		}
	}
}
