package geometry

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/vessel"
)

const (
	DefaultMaxRetries = 1000
	DefaultMaxVessels = 1_000_000

	// geometryStream keeps the placement stream apart from the per-spin
	// streams, which use small stream indices.
	geometryStream = 1 << 63
)

// GroupSpec describes one population of vessels.
type GroupSpec struct {
	Label        string
	Weight       float64
	Diameters    Distribution
	Dchi         float64
	Permeability float64
	Shape        vessel.Shape

	// Fixed orientation, used unless RandomOrientation is set.
	Theta float64
	Phi   float64

	// RandomOrientation draws θ = acos(2u-1), φ = 2πu per vessel.
	RandomOrientation bool
}

type PopulateOptions struct {
	Dim  int
	Size float64
	// NumVessels sizes the voxel when Size is zero.
	NumVessels int
	CBV        float64
	B0         float64
	Groups     []GroupSpec

	AllowIntersection bool
	// MaxRetries bounds placement attempts per vessel when intersections
	// are disallowed.
	MaxRetries  int
	MaxVessels  int
	FieldPolicy vessel.FieldPolicy
	Seed        uint64
	Logger      *slog.Logger
}

func (o *PopulateOptions) setDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxVessels <= 0 {
		o.MaxVessels = DefaultMaxVessels
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func (o *PopulateOptions) validate() error {
	if o.Dim != 2 && o.Dim != 3 {
		return dynamo.Configf("dim", "must be 2 or 3, got %d", o.Dim)
	}
	if o.CBV < 0 || o.CBV >= 1 || math.IsNaN(o.CBV) {
		return &dynamo.ConstructionError{Reason: fmt.Sprintf("CBV must be in [0, 1), got %g", o.CBV)}
	}
	if len(o.Groups) == 0 {
		return dynamo.Configf("groups", "at least one vessel group is required")
	}
	total := 0.0
	for _, g := range o.Groups {
		if g.Weight < 0 || math.IsNaN(g.Weight) {
			return dynamo.Configf("weights", "group %q has negative weight %g", g.Label, g.Weight)
		}
		total += g.Weight
		if err := g.Diameters.Validate(); err != nil {
			return fmt.Errorf("group %q: %w", g.Label, err)
		}
		if g.Permeability < 0 || g.Permeability > 1 {
			return dynamo.Configf("permeation_probabilities", "group %q: must be in [0, 1], got %g", g.Label, g.Permeability)
		}
		if g.Shape == vessel.Sphere && o.Dim != 3 {
			return dynamo.Configf("shape", "group %q: spheres require a 3D voxel", g.Label)
		}
	}
	if !(total > 0) {
		return dynamo.Configf("weights", "group weights must sum to a positive value")
	}
	if o.Size < 0 {
		return &dynamo.ConstructionError{Reason: fmt.Sprintf("voxel size must be positive, got %g", o.Size)}
	}
	if o.Size == 0 {
		if o.NumVessels <= 0 {
			return dynamo.Configf("size", "either size or num_vessels must be set")
		}
		if o.CBV == 0 {
			return dynamo.Configf("cbv", "cannot size a voxel for %d vessels at zero CBV", o.NumVessels)
		}
	}
	return nil
}

// Populate fills a new voxel with randomly placed vessels until the target
// CBV is reached. All draws come from one stream in a fixed order, so a seed
// reproduces the vessel list exactly.
func Populate(opts PopulateOptions) (*ContinuousVoxel, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	size := opts.Size
	if size == 0 {
		size = SizeForCount(opts.Dim, opts.NumVessels, opts.CBV, opts.Groups)
	}
	v, err := NewContinuousVoxel(opts.Dim, size, opts.B0)
	if err != nil {
		return nil, err
	}
	v.SetFieldPolicy(opts.FieldPolicy)

	rng := rand.New(rand.NewPCG(opts.Seed, geometryStream))
	weights := make([]float64, len(opts.Groups))
	for i, g := range opts.Groups {
		weights[i] = g.Weight
	}
	picker := distuv.NewCategorical(weights, rng)

	vol := math.Pow(size, float64(opts.Dim))
	filled := 0.0
	rejected := 0
	for filled/vol < opts.CBV {
		if len(v.vessels) >= opts.MaxVessels {
			return nil, &dynamo.ConstructionError{
				Requested: opts.CBV,
				Achieved:  filled / vol,
				Placed:    len(v.vessels),
				Reason:    fmt.Sprintf("vessel cap of %d reached", opts.MaxVessels),
			}
		}

		g := opts.Groups[int(picker.Rand())]
		ves, err := drawVessel(rng, g, opts.Dim)
		if err != nil {
			return nil, err
		}

		attempts := 1
		if !opts.AllowIntersection {
			attempts = opts.MaxRetries
		}
		placed := false
		for a := 0; a < attempts; a++ {
			ves.Origin = uniformPoint(rng, size, opts.Dim)
			if opts.AllowIntersection || !v.Intersects(ves) {
				placed = true
				break
			}
			rejected++
		}
		if !placed {
			return nil, &dynamo.ConstructionError{
				Requested: opts.CBV,
				Achieved:  filled / vol,
				Placed:    len(v.vessels),
				Reason:    fmt.Sprintf("retry budget of %d exhausted placing a %g vessel", opts.MaxRetries, ves.Diameter),
			}
		}

		v.vessels = append(v.vessels, ves)
		filled += ves.Volume(size, opts.Dim)
	}

	opts.Logger.Debug("voxel populated",
		"dim", opts.Dim,
		"size", size,
		"vessels", len(v.vessels),
		"cbv", v.CBV(),
		"rejected", rejected)
	return v, nil
}

func drawVessel(rng *rand.Rand, g GroupSpec, dim int) (vessel.Vessel, error) {
	d, err := g.Diameters.Sample(rng)
	if err != nil {
		return vessel.Vessel{}, fmt.Errorf("group %q: %w", g.Label, err)
	}
	ves := vessel.Vessel{
		Shape:        g.Shape,
		Diameter:     d,
		Theta:        g.Theta,
		Phi:          g.Phi,
		Dchi:         g.Dchi,
		Permeability: g.Permeability,
		Label:        g.Label,
	}
	if g.RandomOrientation && g.Shape == vessel.Cylinder {
		ves.Theta, ves.Phi = RandomOrientation(rng)
	}
	return ves, ves.Validate()
}

// RandomOrientation draws a direction uniformly on the unit sphere.
func RandomOrientation(rng *rand.Rand) (theta, phi float64) {
	theta = math.Acos(2*rng.Float64() - 1)
	phi = 2 * math.Pi * rng.Float64()
	return theta, phi
}

func uniformPoint(rng *rand.Rand, size float64, dim int) vessel.Vec {
	var p vessel.Vec
	for i := 0; i < dim; i++ {
		p[i] = (rng.Float64() - 0.5) * size
	}
	return p
}

// SizeForCount returns the edge length at which n vessels drawn from groups
// fill the requested CBV on average.
func SizeForCount(dim, n int, cbv float64, groups []GroupSpec) float64 {
	total := 0.0
	for _, g := range groups {
		total += g.Weight
	}
	area, volume := 0.0, 0.0
	for _, g := range groups {
		w := g.Weight / total
		m2 := g.Diameters.SecondMoment()
		if g.Shape == vessel.Sphere {
			volume += w * math.Pi / 6 * math.Pow(m2, 1.5)
		} else {
			area += w * math.Pi / 4 * m2
		}
	}
	if volume == 0 {
		return math.Sqrt(float64(n) * area / cbv)
	}

	// Fill fraction n·(area/L² + volume/L³) decreases in L.
	fill := func(l float64) float64 {
		return float64(n) * (area/(l*l) + volume/(l*l*l))
	}
	lo, hi := 1e-12, 1.0
	for fill(hi) > cbv {
		hi *= 2
	}
	for i := 0; i < 200; i++ {
		mid := math.Sqrt(lo * hi)
		if fill(mid) > cbv {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

// SizeFromK scales the voxel to k times the larger of the vessel diameter
// and the per-step diffusion length sqrt(2·ADC·dt·timeUnit).
func SizeFromK(diameter, k, adc, dt, timeUnit float64) (float64, error) {
	if !(diameter > 0) || !(k > 0) {
		return 0, &dynamo.ConstructionError{Reason: fmt.Sprintf("size_from_k needs positive diameter and k, got %g and %g", diameter, k)}
	}
	if adc < 0 || dt < 0 || timeUnit < 0 {
		return 0, dynamo.Configf("size_from_k", "ADC, dt and time unit must be non-negative")
	}
	return k * math.Max(diameter, math.Sqrt(2*adc*dt*timeUnit)), nil
}

// GroupsFromMaps builds group specs from label-keyed maps. Every label must
// appear in every map and no map may carry unknown labels.
func GroupsFromMaps(dim int, labels []string, weights map[string]float64, diameters map[string][]float64,
	dchis map[string]float64, permeabilities map[string]float64) ([]GroupSpec, error) {
	if len(labels) == 0 {
		return nil, dynamo.Configf("labels", "at least one label is required")
	}
	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		if known[l] {
			return nil, dynamo.Configf("labels", "duplicate label %q", l)
		}
		known[l] = true
	}

	check := func(field string, keys []string) error {
		for _, k := range keys {
			if !known[k] {
				return dynamo.Configf(field, "unknown label %q", k)
			}
		}
		if len(keys) != len(labels) {
			return dynamo.Configf(field, "expected %d labels, got %d", len(labels), len(keys))
		}
		return nil
	}
	if err := check("weights", sortedKeys(weights)); err != nil {
		return nil, err
	}
	if err := check("diameter_distributions", sortedKeys(diameters)); err != nil {
		return nil, err
	}
	if err := check("dchis", sortedKeys(dchis)); err != nil {
		return nil, err
	}
	if err := check("permeation_probabilities", sortedKeys(permeabilities)); err != nil {
		return nil, err
	}

	groups := make([]GroupSpec, 0, len(labels))
	for _, l := range labels {
		groups = append(groups, GroupSpec{
			Label:             l,
			Weight:            weights[l],
			Diameters:         ChoiceOf(diameters[l]...),
			Dchi:              dchis[l],
			Permeability:      permeabilities[l],
			Shape:             vessel.Cylinder,
			Theta:             math.Pi / 2,
			RandomOrientation: dim == 3,
		})
	}
	return groups, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
