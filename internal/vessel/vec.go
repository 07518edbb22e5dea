package vessel

import "math"

// Vec is a point or offset in voxel coordinates. 2D voxels ignore Z.
type Vec [3]float64

func (v Vec) Add(o Vec) Vec { return Vec{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec) Sub(o Vec) Vec { return Vec{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }

func (v Vec) Scale(f float64) Vec { return Vec{v[0] * f, v[1] * f, v[2] * f} }

func (v Vec) Dot(o Vec) float64 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }

func (v Vec) Cross(o Vec) Vec {
	return Vec{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

func (v Vec) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// MinImage maps an offset to its nearest periodic image in a cube of the
// given edge length.
func MinImage(d Vec, size float64, dim int) Vec {
	for i := 0; i < dim; i++ {
		d[i] -= size * math.Round(d[i]/size)
	}
	return d
}

// Wrap maps a position back into [-size/2, size/2) on every active axis.
func Wrap(p Vec, size float64, dim int) Vec {
	half := size / 2
	for i := 0; i < dim; i++ {
		if p[i] < -half || p[i] >= half {
			p[i] -= size * math.Floor((p[i]+half)/size)
			if p[i] >= half {
				p[i] = -half
			}
		}
	}
	return p
}

// InBounds reports whether p lies in the centred voxel of the given size.
func InBounds(p Vec, size float64, dim int) bool {
	half := size / 2
	for i := 0; i < dim; i++ {
		if p[i] < -half || p[i] > half {
			return false
		}
	}
	return true
}
