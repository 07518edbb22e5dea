// Package deterministic propagates magnetization on a discrete voxel grid by
// convolving it with a lattice diffusion kernel each step, giving signal
// curves free of sampling noise.
//
// The pulse schedule, precession and demodulation are shared with the Monte
// Carlo path through sequence.Sequence, with one sample per grid cell.
package deterministic

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/sequence"
	"github.com/san-kum/boldsim/internal/spins"
)

type Options struct {
	ADC      float64
	Dt       float64
	TimeUnit float64
	Kernel   KernelType
	// Permeable lets magnetization diffuse across vessel walls. When false
	// each compartment is diffused on its own.
	Permeable bool
	Gamma     float64
	Initial   sequence.InitialState
	// Partition marks which owner indices count as intravascular. Nil
	// means any vessel.
	Partition sequence.Partition
	Logger    *slog.Logger
}

func (o *Options) setDefaults() {
	if o.TimeUnit == 0 {
		o.TimeUnit = spins.DefaultTimeUnit
	}
	if o.Gamma == 0 {
		o.Gamma = spins.Gamma
	}
	if o.Partition == nil {
		o.Partition = sequence.AnyVessel
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func (o *Options) validate() error {
	switch {
	case o.ADC < 0 || math.IsNaN(o.ADC):
		return dynamo.Configf("adc", "must be non-negative, got %g", o.ADC)
	case !(o.Dt > 0):
		return dynamo.Configf("dt", "must be positive, got %g", o.Dt)
	case !(o.TimeUnit > 0):
		return dynamo.Configf("time_unit", "must be positive, got %g", o.TimeUnit)
	}
	return nil
}

// Diffuser is the deterministic propagator. It implements dynamo.Propagator.
type Diffuser struct {
	dv     *geometry.DiscreteVoxel
	opts   Options
	seq    *sequence.Sequence
	n      int
	lambda float64

	kernel []float64
	// taps holds kernel weights for offsets -reach..reach. reach < 0 means
	// the kernel is too wide and convolution goes through the FFT.
	taps  []float64
	reach int
	khat  [][]complex128
	// lastPulse is the final pulse index; past it Mz no longer reaches the
	// signal and is left undiffused.
	lastPulse int

	phase []float64
	isIV  []bool

	// Per-compartment indicator grids and their kernel-smoothed norms,
	// used only when impermeable.
	masks [][]float64
	norms [][]float64
}

// New builds a diffuser over a two-dimensional discrete voxel.
func New(dv *geometry.DiscreteVoxel, numSteps int, sched sequence.Schedule, opts Options) (*Diffuser, error) {
	if dv == nil {
		return nil, dynamo.Configf("voxel", "discrete voxel is required")
	}
	if dv.Dim() != 2 {
		return nil, dynamo.Configf("dim", "deterministic diffusion supports 2D voxels only, got %dD", dv.Dim())
	}
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cells := dv.NumCells()
	seq, err := sequence.New(cells, numSteps, sched,
		sequence.WithInitialState(opts.Initial),
		sequence.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}

	h := dv.CellSize()
	d := &Diffuser{
		dv:     dv,
		opts:   opts,
		seq:    seq,
		n:      dv.N(),
		lambda: opts.ADC * opts.Dt * opts.TimeUnit / (h * h),
		phase:  make([]float64, cells),
		isIV:   make([]bool, cells),

		lastPulse: sched.LastStep(),
	}

	scale := opts.Gamma * opts.Dt * opts.TimeUnit
	for i := 0; i < cells; i++ {
		d.phase[i] = scale * dv.FieldAt(i)
		d.isIV[i] = opts.Partition(dv.OwnerAt(i))
	}

	d.kernel = Kernel1D(opts.Kernel, d.lambda, d.n)
	d.reach = KernelReach(d.kernel)
	if d.reach >= 0 {
		d.taps = make([]float64, 2*d.reach+1)
		for k := -d.reach; k <= d.reach; k++ {
			d.taps[k+d.reach] = d.kernel[(k+d.n)%d.n]
		}
		floats.Scale(1/floats.Sum(d.taps), d.taps)
	} else {
		d.buildSpectrum()
	}

	if !opts.Permeable {
		d.buildMasks()
	}

	opts.Logger.Debug("deterministic diffuser ready",
		"cells", cells, "kernel", opts.Kernel, "lambda", d.lambda,
		"permeable", opts.Permeable, "compartments", len(d.masks), "reach", d.reach)
	return d, nil
}

// buildSpectrum transforms the separable 2D kernel for FFT convolution.
func (d *Diffuser) buildSpectrum() {
	k2 := make([][]float64, d.n)
	for y := range k2 {
		k2[y] = make([]float64, d.n)
		for x := range k2[y] {
			k2[y][x] = d.kernel[y] * d.kernel[x]
		}
	}
	d.khat = fft.FFT2Real(k2)
}

// buildMasks splits the grid by ownership. A single compartment falls back
// to plain convolution.
func (d *Diffuser) buildMasks() {
	owners := d.dv.OwnerGrid()
	ev := make([]float64, len(owners))
	iv := make([]float64, len(owners))
	hasEV, hasIV := false, false
	for i, o := range owners {
		if o > 0 {
			iv[i] = 1
			hasIV = true
		} else {
			ev[i] = 1
			hasEV = true
		}
	}
	if !hasEV || !hasIV {
		return
	}
	d.masks = [][]float64{ev, iv}
	d.norms = make([][]float64, len(d.masks))
	for c, mask := range d.masks {
		d.norms[c] = d.convolve(mask)
	}
}

// Advance diffuses, precesses and pulses one step.
func (d *Diffuser) Advance(step int) (dynamo.Signal, error) {
	if step != d.seq.StepIndex() {
		return dynamo.Signal{}, fmt.Errorf("diffuser at step %d, asked for %d", d.seq.StepIndex(), step)
	}
	if d.seq.StepIndex() >= d.seq.NumSteps() {
		return dynamo.Signal{}, dynamo.ErrFinalized
	}
	if d.lambda > 0 {
		d.seq.Mix(d.diffuse)
	}
	return d.seq.Step(d.phase, d.isIV, d.opts.Dt)
}

func (d *Diffuser) Dt() float64 { return d.opts.Dt }

func (d *Diffuser) Reset() error {
	d.seq.Reset()
	return nil
}

func (d *Diffuser) Warnings() []error              { return d.seq.Warnings() }
func (d *Diffuser) Sequence() *sequence.Sequence   { return d.seq }
func (d *Diffuser) Lambda() float64                { return d.lambda }
func (d *Diffuser) Voxel() *geometry.DiscreteVoxel { return d.dv }

// Kernel returns a copy of the one-dimensional kernel.
func (d *Diffuser) Kernel() []float64 {
	return append([]float64(nil), d.kernel...)
}

// diffuse smooths each magnetization component in place.
func (d *Diffuser) diffuse(m [][3]float64) {
	comps := 3
	if d.seq.StepIndex() > d.lastPulse {
		comps = 2
	}
	f := make([]float64, len(m))
	for c := 0; c < comps; c++ {
		for i := range m {
			f[i] = m[i][c]
		}
		g := d.smooth(f)
		for i := range m {
			m[i][c] = g[i]
		}
	}
}

// smooth diffuses one component, keeping compartments apart when masks are
// set by normalised masked convolution.
func (d *Diffuser) smooth(f []float64) []float64 {
	if d.masks == nil {
		return d.convolve(f)
	}
	out := make([]float64, len(f))
	fc := make([]float64, len(f))
	for c, mask := range d.masks {
		for i := range f {
			fc[i] = f[i] * mask[i]
		}
		g := d.convolve(fc)
		norm := d.norms[c]
		for i := range f {
			if mask[i] == 0 || norm[i] <= 0 {
				continue
			}
			out[i] += g[i] / norm[i]
		}
	}
	return out
}

func (d *Diffuser) convolve(f []float64) []float64 {
	if d.reach >= 0 {
		return d.convolveDirect(f)
	}
	return d.convolveFFT(f)
}

// convolveDirect applies the truncated kernel along rows, then columns, on a
// periodic x-fastest grid.
func (d *Diffuser) convolveDirect(f []float64) []float64 {
	n, r := d.n, d.reach
	tmp := make([]float64, len(f))
	out := make([]float64, len(f))
	dynamo.ParallelFor(n, 8, func(start, end int) {
		for y := start; y < end; y++ {
			row := f[y*n : (y+1)*n]
			dst := tmp[y*n : (y+1)*n]
			for x := 0; x < n; x++ {
				sum := 0.0
				for k := -r; k <= r; k++ {
					sum += d.taps[k+r] * row[wrapIndex(x-k, n)]
				}
				dst[x] = sum
			}
		}
	})
	dynamo.ParallelFor(n, 8, func(start, end int) {
		for y := start; y < end; y++ {
			dst := out[y*n : (y+1)*n]
			for k := -r; k <= r; k++ {
				w := d.taps[k+r]
				src := tmp[wrapIndex(y-k, n)*n:]
				for x := 0; x < n; x++ {
					dst[x] += w * src[x]
				}
			}
		}
	})
	return out
}

func wrapIndex(i, n int) int {
	if i < 0 {
		return i + n
	}
	if i >= n {
		return i - n
	}
	return i
}

// convolveFFT applies the full periodic kernel through the 2D FFT.
func (d *Diffuser) convolveFFT(f []float64) []float64 {
	n := d.n
	grid := make([][]float64, n)
	for y := range grid {
		grid[y] = f[y*n : (y+1)*n : (y+1)*n]
	}
	fhat := fft.FFT2Real(grid)
	for y := range fhat {
		for x := range fhat[y] {
			fhat[y][x] *= d.khat[y][x]
		}
	}
	res := fft.IFFT2(fhat)
	out := make([]float64, len(f))
	for y := range res {
		for x, v := range res[y] {
			out[y*n+x] = real(v)
		}
	}
	return out
}
