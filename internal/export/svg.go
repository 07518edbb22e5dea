// Package export renders canvases, field maps and signal curves as SVG.
package export

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/viz"
)

const background = "#0a0a0a"

func header(sb *strings.Builder, width, height float64) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)
}

// CanvasToSVG converts a Braille canvas to SVG format
func CanvasToSVG(canvas *viz.Canvas, scale float64) string {
	if canvas == nil {
		return ""
	}

	width := float64(canvas.PixelWidth()) * scale
	height := float64(canvas.PixelHeight()) * scale

	var sb strings.Builder
	header(&sb, width, height)
	sb.WriteString(`<g fill="#00ff00">` + "\n")

	dotRadius := scale * 0.4
	for y := 0; y < canvas.PixelHeight(); y++ {
		for x := 0; x < canvas.PixelWidth(); x++ {
			if canvas.IsSet(x, y) {
				fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f"/>`+"\n",
					float64(x)*scale+scale/2, float64(y)*scale+scale/2, dotRadius)
			}
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// diverging maps t in [-1, 1] from blue through white to red.
func diverging(t float64) string {
	t = math.Max(-1, math.Min(1, t))
	if t < 0 {
		v := int(255 * (1 + t))
		return fmt.Sprintf("#%02x%02xff", v, v)
	}
	v := int(255 * (1 - t))
	return fmt.Sprintf("#ff%02x%02x", v, v)
}

// sliceCells returns the flat indices of the z = 0 plane in row-major
// order, rows running from +y to -y.
func sliceCells(d *geometry.DiscreteVoxel) []int {
	n := d.N()
	base := 0
	if d.Dim() == 3 {
		base = (n / 2) * n * n
	}
	cells := make([]int, 0, n*n)
	for row := n - 1; row >= 0; row-- {
		for col := 0; col < n; col++ {
			cells = append(cells, base+row*n+col)
		}
	}
	return cells
}

// FieldToSVG draws the field perturbation of a discretized voxel as a
// heatmap scaled to the largest extravascular |dBz|. Cells owned by a vessel
// are outlined. 3D voxels show the z = 0 slice.
func FieldToSVG(d *geometry.DiscreteVoxel, cellPx float64) string {
	n := d.N()
	cells := sliceCells(d)

	peak := 0.0
	for _, i := range cells {
		if d.OwnerAt(i) == 0 {
			peak = math.Max(peak, math.Abs(d.FieldAt(i)))
		}
	}
	if peak == 0 {
		peak = 1
	}

	side := float64(n) * cellPx
	var sb strings.Builder
	header(&sb, side, side)
	sb.WriteString(`<g shape-rendering="crispEdges">` + "\n")
	for k, i := range cells {
		x, y := float64(k%n)*cellPx, float64(k/n)*cellPx
		stroke := ""
		if d.OwnerAt(i) > 0 {
			stroke = ` stroke="#000000" stroke-width="0.5"`
		}
		fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"%s/>`+"\n",
			x, y, cellPx, cellPx, diverging(d.FieldAt(i)/peak), stroke)
	}
	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

type Point struct{ X, Y float64 }

// Series is one stroked curve.
type Series struct {
	Points []Point
	Color  string
}

// bounds returns the padded data window over every series.
func bounds(series []Series) (minX, maxX, minY, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, s := range series {
		for _, p := range s.Points {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return minX - rangeX*0.1, maxX + rangeX*0.1, minY - rangeY*0.1, maxY + rangeY*0.1
}

// CurvesToSVG draws every series with at least two points on shared axes.
func CurvesToSVG(series []Series, width, height int) string {
	kept := series[:0:0]
	for _, s := range series {
		if len(s.Points) >= 2 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	minX, maxX, minY, maxY := bounds(kept)
	rangeX, rangeY := maxX-minX, maxY-minY

	var sb strings.Builder
	header(&sb, float64(width), float64(height))
	for _, s := range kept {
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, s.Color)
		for i, p := range s.Points {
			x := (p.X - minX) / rangeX * float64(width)
			y := float64(height) - (p.Y-minY)/rangeY*float64(height)
			if i == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString(`"/>` + "\n")
	}
	sb.WriteString("</svg>")
	return sb.String()
}

// SignalToSVG plots total (white), EV (cyan) and IV (magenta) against time.
// Empty compartments are left out.
func SignalToSVG(r *dynamo.Result, width, height int) string {
	curve := func(values []float64, color string) Series {
		s := Series{Color: color}
		if len(values) != len(r.Times) {
			return s
		}
		s.Points = make([]Point, len(values))
		for i, v := range values {
			s.Points[i] = Point{r.Times[i], v}
		}
		return s
	}
	series := []Series{curve(r.Total, "#ffffff")}
	if hasSignal(r.EV) {
		series = append(series, curve(r.EV, "#00ffff"))
	}
	if hasSignal(r.IV) {
		series = append(series, curve(r.IV, "#ff00ff"))
	}
	return CurvesToSVG(series, width, height)
}

func hasSignal(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return true
		}
	}
	return false
}

// WriteFile writes svg to path, or to w when path is "-".
func WriteFile(path string, w io.Writer, svg string) error {
	if path == "-" {
		_, err := io.WriteString(w, svg)
		return err
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
