package geometry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/boldsim/internal/dynamo"
)

type DistributionKind int

const (
	// Choice draws uniformly from a list of diameters.
	Choice DistributionKind = iota
	Uniform
	Normal
	LogNormal
)

func (k DistributionKind) String() string {
	switch k {
	case Choice:
		return "choice"
	case Uniform:
		return "uniform"
	case Normal:
		return "normal"
	case LogNormal:
		return "lognormal"
	}
	return fmt.Sprintf("distribution(%d)", int(k))
}

func ParseDistributionKind(name string) (DistributionKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "choice", "fixed":
		return Choice, nil
	case "uniform":
		return Uniform, nil
	case "normal", "gaussian":
		return Normal, nil
	case "lognormal", "log_normal":
		return LogNormal, nil
	}
	return 0, dynamo.Configf("distribution", "unknown kind %q", name)
}

// Distribution describes vessel diameters. Normal draws are resampled until
// positive. LogNormal uses Mean and Std as the parameters of the underlying
// normal.
type Distribution struct {
	Kind   DistributionKind
	Values []float64
	Min    float64
	Max    float64
	Mean   float64
	Std    float64
}

func ChoiceOf(values ...float64) Distribution {
	return Distribution{Kind: Choice, Values: values}
}

const maxResample = 1000

func (d Distribution) Validate() error {
	switch d.Kind {
	case Choice:
		if len(d.Values) == 0 {
			return dynamo.Configf("diameters", "choice needs at least one value")
		}
		for _, v := range d.Values {
			if !(v > 0) {
				return &dynamo.ConstructionError{Reason: fmt.Sprintf("diameter must be positive, got %g", v)}
			}
		}
	case Uniform:
		if !(d.Min > 0) || d.Max < d.Min {
			return &dynamo.ConstructionError{Reason: fmt.Sprintf("uniform diameters need 0 < min <= max, got [%g, %g]", d.Min, d.Max)}
		}
	case Normal:
		if !(d.Mean > 0) || d.Std < 0 {
			return &dynamo.ConstructionError{Reason: fmt.Sprintf("normal diameters need mean > 0 and std >= 0, got %g/%g", d.Mean, d.Std)}
		}
	case LogNormal:
		if d.Std < 0 {
			return dynamo.Configf("diameters", "lognormal std must be non-negative, got %g", d.Std)
		}
	default:
		return dynamo.Configf("diameters", "unknown distribution kind %d", int(d.Kind))
	}
	return nil
}

// Sample draws one diameter from rng.
func (d Distribution) Sample(rng *rand.Rand) (float64, error) {
	switch d.Kind {
	case Choice:
		if len(d.Values) == 1 {
			return d.Values[0], nil
		}
		w := make([]float64, len(d.Values))
		for i := range w {
			w[i] = 1
		}
		return d.Values[int(distuv.NewCategorical(w, rng).Rand())], nil
	case Uniform:
		if d.Min == d.Max {
			return d.Min, nil
		}
		return distuv.Uniform{Min: d.Min, Max: d.Max, Src: rng}.Rand(), nil
	case Normal:
		n := distuv.Normal{Mu: d.Mean, Sigma: d.Std, Src: rng}
		for i := 0; i < maxResample; i++ {
			if x := n.Rand(); x > 0 {
				return x, nil
			}
		}
		return 0, &dynamo.ConstructionError{Reason: fmt.Sprintf("normal(%g, %g) produced no positive diameter", d.Mean, d.Std)}
	case LogNormal:
		return distuv.LogNormal{Mu: d.Mean, Sigma: d.Std, Src: rng}.Rand(), nil
	}
	return 0, dynamo.Configf("diameters", "unknown distribution kind %d", int(d.Kind))
}

// SecondMoment is E[d²], used to size a voxel for a vessel count.
func (d Distribution) SecondMoment() float64 {
	switch d.Kind {
	case Choice:
		sum := 0.0
		for _, v := range d.Values {
			sum += v * v
		}
		return sum / float64(len(d.Values))
	case Uniform:
		u := distuv.Uniform{Min: d.Min, Max: d.Max}
		if d.Min == d.Max {
			return d.Min * d.Min
		}
		return u.Variance() + u.Mean()*u.Mean()
	case Normal:
		return d.Std*d.Std + d.Mean*d.Mean
	case LogNormal:
		ln := distuv.LogNormal{Mu: d.Mean, Sigma: d.Std}
		return ln.Variance() + ln.Mean()*ln.Mean()
	}
	return math.NaN()
}
