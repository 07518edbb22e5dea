package deterministic

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/boldsim/internal/dynamo"
)

type KernelType int

const (
	// ModifiedBessel is the lattice heat kernel e^{-2λ} I_n(2λ).
	ModifiedBessel KernelType = iota
	// Gaussian samples the continuum kernel exp(-n²/4λ) on the lattice.
	Gaussian
)

func (k KernelType) String() string {
	switch k {
	case ModifiedBessel:
		return "bessel"
	case Gaussian:
		return "gaussian"
	}
	return "unknown"
}

func ParseKernel(name string) (KernelType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bessel", "modifiedbessel", "modified_bessel":
		return ModifiedBessel, nil
	case "gaussian", "gauss":
		return Gaussian, nil
	}
	return 0, dynamo.Configf("kernel", "unknown kernel %q", name)
}

// maxSeriesTerms bounds the power series beyond its peak term.
const maxSeriesTerms = 4096

// ScaledBessel returns e^{-x} I_n(x) for integer order n and x >= 0. The
// power series is summed in log space so large arguments do not overflow.
func ScaledBessel(n int, x float64) float64 {
	if n < 0 {
		n = -n
	}
	if x == 0 {
		if n == 0 {
			return 1
		}
		return 0
	}
	logHalf := math.Log(x / 2)
	nf := float64(n)
	lgN, _ := math.Lgamma(nf + 1)

	// The largest term sits near k ≈ x/2; sum outward until terms vanish.
	sum := 0.0
	peak := math.Inf(-1)
	limit := int(x/2) + maxSeriesTerms
	for k := 0; k <= limit; k++ {
		kf := float64(k)
		lgK, _ := math.Lgamma(kf + 1)
		lgKN := lgN
		if k > 0 {
			lgKN, _ = math.Lgamma(kf + nf + 1)
		}
		logTerm := (2*kf+nf)*logHalf - lgK - lgKN - x
		if logTerm > peak {
			peak = logTerm
		}
		term := math.Exp(logTerm)
		sum += term
		if float64(k) > x/2 && logTerm < peak-40 {
			break
		}
	}
	return sum
}

// Kernel1D returns the periodic one-dimensional kernel on n lattice sites,
// indexed by displacement modulo n and normalised to unit sum.
func Kernel1D(kind KernelType, lambda float64, n int) []float64 {
	w := make([]float64, n)
	if lambda <= 0 {
		w[0] = 1
		return w
	}
	for j := range w {
		d := j
		if j > n/2 {
			d = j - n
		}
		switch kind {
		case Gaussian:
			w[j] = math.Exp(-float64(d*d) / (4 * lambda))
		default:
			w[j] = ScaledBessel(d, 2*lambda)
		}
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// kernelFloor is the weight below which kernel taps are dropped.
const kernelFloor = 1e-15

// KernelReach returns the largest displacement whose weight is above
// kernelFloor, or -1 when the kernel spans more than half the lattice and
// direct convolution would cost more than the FFT.
func KernelReach(w []float64) int {
	n := len(w)
	reach := 0
	for j := 1; j <= n/2; j++ {
		if w[j] > kernelFloor || w[n-j] > kernelFloor {
			reach = j
		}
	}
	if 2*reach+1 > n/2 {
		return -1
	}
	return reach
}
