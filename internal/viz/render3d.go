package viz

import (
	"math"
	"sort"

	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/vessel"
)

// Camera orbits a voxel normalized to a cube of half-width one.
type Camera struct {
	Distance         float64
	RotX, RotY, RotZ float64
	Zoom             float64
}

func NewCamera() *Camera {
	return &Camera{Distance: 6, RotX: -0.5, RotY: 0.6, Zoom: 1.0}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) RotateZ(a float64) { c.RotZ += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

// RotatePoint rotates a point around the camera's axes.
func (c *Camera) RotatePoint(p vessel.Vec) vessel.Vec {
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p[1], p[2] = p[1]*cx-p[2]*sx, p[1]*sx+p[2]*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p[0], p[2] = p[0]*cy+p[2]*sy, -p[0]*sy+p[2]*cy
	cz, sz := math.Cos(c.RotZ), math.Sin(c.RotZ)
	p[0], p[1] = p[0]*cz-p[1]*sz, p[0]*sz+p[1]*cz
	return p
}

// Project maps a normalized point to sub-pixel coordinates on a sw×sh
// canvas. It returns x, y, depth and visibility.
func (c *Camera) Project(p vessel.Vec, sw, sh int) (int, int, float64, bool) {
	rot := c.RotatePoint(p).Scale(c.Zoom)
	if rot[2] >= c.Distance-0.1 {
		return 0, 0, 0, false
	}
	scale := c.Distance / (c.Distance - rot[2])
	minDim := math.Min(float64(sw), float64(sh))
	pScale := minDim / 3.0
	sx := int(rot[0]*scale*pScale) + sw/2
	sy := int(-rot[1]*scale*pScale) + sh/2
	return sx, sy, rot[2], sx >= 0 && sx < sw && sy >= 0 && sy < sh
}

type Edge struct {
	Start, End vessel.Vec
}

type Wireframe struct{ Edges []Edge }

func NewWireframe() *Wireframe               { return &Wireframe{Edges: make([]Edge, 0)} }
func (w *Wireframe) AddEdge(s, e vessel.Vec) { w.Edges = append(w.Edges, Edge{s, e}) }
func (w *Wireframe) AddPoint(p vessel.Vec)   { w.Edges = append(w.Edges, Edge{p, p}) }

type projectedEdge struct {
	x1, y1, x2, y2 int
	depth          float64
}

// Render3D draws the wireframe back to front.
func Render3D(c *Canvas, w *Wireframe, cam *Camera) {
	if c == nil || w == nil || cam == nil {
		return
	}
	cw, ch := c.PixelWidth(), c.PixelHeight()
	proj := make([]projectedEdge, 0, len(w.Edges))
	for _, e := range w.Edges {
		x1, y1, d1, v1 := cam.Project(e.Start, cw, ch)
		x2, y2, d2, v2 := cam.Project(e.End, cw, ch)
		if v1 || v2 {
			proj = append(proj, projectedEdge{x1, y1, x2, y2, (d1 + d2) / 2})
		}
	}
	sort.Slice(proj, func(i, j int) bool { return proj[i].depth < proj[j].depth })
	for _, e := range proj {
		if e.x1 == e.x2 && e.y1 == e.y2 {
			c.Set(e.x1, e.y1)
		} else {
			c.DrawLine(e.x1, e.y1, e.x2, e.y2)
		}
	}
}

// normalize maps voxel coordinates into [-1, 1]³.
func normalize(p vessel.Vec, size float64) vessel.Vec {
	return p.Scale(2 / size)
}

// VoxelWireframe outlines a 3D voxel and draws each cylinder's axis clipped
// to the voxel; spheres are single points.
func VoxelWireframe(v *geometry.ContinuousVoxel) *Wireframe {
	w := NewWireframe()
	corners := []vessel.Vec{{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1}, {-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}}
	for _, e := range [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {4, 5}, {5, 6}, {6, 7}, {7, 4}, {0, 4}, {1, 5}, {2, 6}, {3, 7}} {
		w.AddEdge(corners[e[0]], corners[e[1]])
	}
	size := v.Size()
	for _, ves := range v.Vessels() {
		o := normalize(ves.Origin, size)
		if ves.Shape == vessel.Sphere {
			w.AddPoint(o)
			continue
		}
		a := ves.Axis()
		lo, hi, ok := clipToCube(o, a)
		if !ok {
			w.AddPoint(o)
			continue
		}
		w.AddEdge(o.Add(a.Scale(lo)), o.Add(a.Scale(hi)))
	}
	return w
}

// clipToCube returns the parameter interval where o + t·a stays inside
// [-1, 1]³.
func clipToCube(o, a vessel.Vec) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(-1), math.Inf(1)
	for d := 0; d < 3; d++ {
		if math.Abs(a[d]) < 1e-12 {
			if o[d] < -1 || o[d] > 1 {
				return 0, 0, false
			}
			continue
		}
		t1, t2 := (-1-o[d])/a[d], (1-o[d])/a[d]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		lo, hi = math.Max(lo, t1), math.Min(hi, t2)
	}
	return lo, hi, lo < hi && !math.IsInf(lo, 0)
}
