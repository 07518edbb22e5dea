package geometry

import (
	"math"

	"github.com/san-kum/boldsim/internal/vessel"
)

// spatialIndex bins 2D vessel centres on a periodic grid whose cells are at
// least as wide as the largest influence radius, so every vessel that
// matters at a point sits in the 3x3 block around it.
type spatialIndex struct {
	cells    int
	cellSize float64
	half     float64
	bins     [][]int
}

func newSpatialIndex(vessels []vessel.Vessel, size, tol float64) *spatialIndex {
	reach := 0.0
	for i := range vessels {
		reach = math.Max(reach, vessels[i].InfluenceRadius(tol))
	}

	cells := 0
	if reach > 0 {
		cells = int(math.Floor(size / reach))
	}
	idx := &spatialIndex{cells: cells, half: size / 2}
	if !idx.usable() {
		return idx
	}
	idx.cellSize = size / float64(cells)
	idx.bins = make([][]int, cells*cells)
	for i := range vessels {
		cx, cy := idx.cell(vessels[i].Origin)
		b := cy*cells + cx
		idx.bins[b] = append(idx.bins[b], i)
	}
	return idx
}

// usable is false when the grid is too coarse for the 3x3 neighbourhood to
// be distinct cells. Callers fall back to the brute-force sum.
func (s *spatialIndex) usable() bool {
	return s.cells >= 3
}

func (s *spatialIndex) cell(p vessel.Vec) (int, int) {
	cx := int(math.Floor((p[0] + s.half) / s.cellSize))
	cy := int(math.Floor((p[1] + s.half) / s.cellSize))
	return clampCell(cx, s.cells), clampCell(cy, s.cells)
}

func clampCell(c, n int) int {
	if c < 0 {
		return 0
	}
	if c >= n {
		return n - 1
	}
	return c
}

func (s *spatialIndex) neighbours(p vessel.Vec, fn func(i int)) {
	cx, cy := s.cell(p)
	for dy := -1; dy <= 1; dy++ {
		y := (cy + dy + s.cells) % s.cells
		for dx := -1; dx <= 1; dx++ {
			x := (cx + dx + s.cells) % s.cells
			for _, i := range s.bins[y*s.cells+x] {
				fn(i)
			}
		}
	}
}

func (s *spatialIndex) field(p vessel.Vec, v *ContinuousVoxel) float64 {
	sum := 0.0
	s.neighbours(p, func(i int) {
		sum += v.vessels[i].Field(p, v.b0, v.size, v.dim, v.policy)
	})
	return sum
}

func (s *spatialIndex) owner(p vessel.Vec, v *ContinuousVoxel) int {
	best := 0
	s.neighbours(p, func(i int) {
		if (best == 0 || i+1 < best) && v.vessels[i].Contains(p, v.size, v.dim) {
			best = i + 1
		}
	})
	return best
}
