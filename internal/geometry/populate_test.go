package geometry

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/vessel"
)

func singleGroup(diameter float64) []GroupSpec {
	return []GroupSpec{{
		Label:     "vesselGroup1",
		Weight:    1,
		Diameters: ChoiceOf(diameter),
		Dchi:      3e-8,
		Theta:     math.Pi / 2,
	}}
}

func TestPopulateDeterministic(t *testing.T) {
	opts := PopulateOptions{
		Dim:               2,
		NumVessels:        50,
		CBV:               0.02,
		B0:                3,
		Groups:            singleGroup(0.002),
		AllowIntersection: true,
		Seed:              1,
	}

	a, err := Populate(opts)
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	b, err := Populate(opts)
	if err != nil {
		t.Fatalf("populate: %v", err)
	}
	if !reflect.DeepEqual(a.Vessels(), b.Vessels()) {
		t.Error("expected identical vessel lists for identical seeds")
	}

	opts.Seed = 2
	c, _ := Populate(opts)
	if reflect.DeepEqual(a.Vessels(), c.Vessels()) {
		t.Error("expected different vessel lists for different seeds")
	}
}

func TestPopulateCBVConvergence(t *testing.T) {
	tests := []struct {
		name      string
		dim       int
		intersect bool
	}{
		{"2D intersecting", 2, true},
		{"2D disjoint", 2, false},
		{"3D intersecting", 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := singleGroup(0.002)
			groups[0].RandomOrientation = tt.dim == 3
			v, err := Populate(PopulateOptions{
				Dim:               tt.dim,
				NumVessels:        1000,
				CBV:               0.02,
				B0:                3,
				Groups:            groups,
				AllowIntersection: tt.intersect,
				Seed:              7,
			})
			if err != nil {
				t.Fatalf("populate: %v", err)
			}
			if v.NumVessels() < 1000*0.95 {
				t.Errorf("expected about 1000 vessels, got %d", v.NumVessels())
			}
			if rel := math.Abs(v.CBV()-0.02) / 0.02; rel > 0.05 {
				t.Errorf("expected CBV within 5%% of 0.02, got %f", v.CBV())
			}
		})
	}
}

func TestPopulateNoIntersection(t *testing.T) {
	v, err := Populate(PopulateOptions{
		Dim:        2,
		Size:       0.05,
		CBV:        0.2,
		B0:         3,
		Groups:     singleGroup(0.002),
		MaxRetries: 500,
		Seed:       3,
	})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}

	vessels := v.Vessels()
	for i := range vessels {
		for j := i + 1; j < len(vessels); j++ {
			if vessels[i].Overlaps(vessels[j], v.Size(), 2) {
				t.Fatalf("vessels %d and %d overlap", i+1, j+1)
			}
		}
	}
}

func TestPopulateFailures(t *testing.T) {
	tests := []struct {
		name string
		opts PopulateOptions
		want error
	}{
		{
			name: "retry budget",
			opts: PopulateOptions{Dim: 2, Size: 0.02, CBV: 0.9, Groups: singleGroup(0.002), MaxRetries: 50},
			want: dynamo.ErrGeometryConstruction,
		},
		{
			name: "vessel cap",
			opts: PopulateOptions{Dim: 2, Size: 1, CBV: 0.5, Groups: singleGroup(0.002), AllowIntersection: true, MaxVessels: 5},
			want: dynamo.ErrGeometryConstruction,
		},
		{
			name: "zero diameter",
			opts: PopulateOptions{Dim: 2, Size: 1, CBV: 0.1, Groups: singleGroup(0)},
			want: dynamo.ErrGeometryConstruction,
		},
		{
			name: "negative size",
			opts: PopulateOptions{Dim: 2, Size: -1, CBV: 0.1, Groups: singleGroup(0.002)},
			want: dynamo.ErrGeometryConstruction,
		},
		{
			name: "no groups",
			opts: PopulateOptions{Dim: 2, Size: 1, CBV: 0.1},
			want: dynamo.ErrConfiguration,
		},
		{
			name: "sphere in 2D",
			opts: PopulateOptions{Dim: 2, Size: 1, CBV: 0.1, Groups: []GroupSpec{{Weight: 1, Diameters: ChoiceOf(0.01), Shape: vessel.Sphere}}},
			want: dynamo.ErrConfiguration,
		},
		{
			name: "no size",
			opts: PopulateOptions{Dim: 2, CBV: 0.1, Groups: singleGroup(0.002)},
			want: dynamo.ErrConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Populate(tt.opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPopulateReportsAchievedCBV(t *testing.T) {
	_, err := Populate(PopulateOptions{Dim: 2, Size: 0.02, CBV: 0.9, Groups: singleGroup(0.002), MaxRetries: 50})

	var cerr *dynamo.ConstructionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstructionError, got %v", err)
	}
	if cerr.Requested != 0.9 {
		t.Errorf("expected requested 0.9, got %f", cerr.Requested)
	}
	if cerr.Achieved <= 0 || cerr.Achieved >= 0.9 {
		t.Errorf("expected partial achieved CBV, got %f", cerr.Achieved)
	}
}

func TestPopulateGroupWeights(t *testing.T) {
	groups := []GroupSpec{
		{Label: "a", Weight: 3, Diameters: ChoiceOf(0.001), Theta: math.Pi / 2},
		{Label: "b", Weight: 1, Diameters: ChoiceOf(0.001), Theta: math.Pi / 2},
	}
	v, err := Populate(PopulateOptions{Dim: 2, NumVessels: 4000, CBV: 0.01, Groups: groups, AllowIntersection: true, Seed: 11})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}

	count := 0
	for _, ves := range v.Vessels() {
		if ves.Label == "a" {
			count++
		}
	}
	frac := float64(count) / float64(v.NumVessels())
	if math.Abs(frac-0.75) > 0.03 {
		t.Errorf("expected 75%% of group a, got %.3f", frac)
	}
}

func TestPopulate3DOrientation(t *testing.T) {
	groups := singleGroup(0.002)
	groups[0].RandomOrientation = true
	v, err := Populate(PopulateOptions{Dim: 3, NumVessels: 200, CBV: 0.02, Groups: groups, AllowIntersection: true, Seed: 5})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}

	meanCos := 0.0
	for _, ves := range v.Vessels() {
		if ves.Theta < 0 || ves.Theta > math.Pi {
			t.Fatalf("theta out of range: %f", ves.Theta)
		}
		meanCos += math.Cos(ves.Theta)
	}
	meanCos /= float64(v.NumVessels())
	if math.Abs(meanCos) > 0.15 {
		t.Errorf("expected isotropic axes, mean cos theta %f", meanCos)
	}
}

func TestDistributionSample(t *testing.T) {
	tests := []struct {
		name string
		d    Distribution
		lo   float64
		hi   float64
	}{
		{"choice", ChoiceOf(0.002, 0.004), 0.002, 0.004},
		{"uniform", Distribution{Kind: Uniform, Min: 0.001, Max: 0.003}, 0.001, 0.003},
		{"normal", Distribution{Kind: Normal, Mean: 0.002, Std: 0.002}, 0, math.Inf(1)},
		{"lognormal", Distribution{Kind: LogNormal, Mean: math.Log(0.002), Std: 0.3}, 0, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewPCG(1, 2))
			for i := 0; i < 1000; i++ {
				x, err := tt.d.Sample(rng)
				if err != nil {
					t.Fatalf("sample: %v", err)
				}
				if x <= 0 || x < tt.lo || x > tt.hi {
					t.Fatalf("sample %g outside [%g, %g]", x, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestSizeHelpers(t *testing.T) {
	size, err := SizeFromK(0.002, 40, 0.001, 0.2, 1e-3)
	if err != nil {
		t.Fatalf("size from k: %v", err)
	}
	if math.Abs(size-0.08) > 1e-12 {
		t.Errorf("expected 0.08, got %f", size)
	}

	if _, err := SizeFromK(0, 40, 0.001, 0.2, 1e-3); !errors.Is(err, dynamo.ErrGeometryConstruction) {
		t.Errorf("expected construction error, got %v", err)
	}

	got := SizeForCount(2, 50, 0.02, singleGroup(0.002))
	want := math.Sqrt(50 * math.Pi * 1e-6 / 0.02)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %f, got %f", want, got)
	}

	spheres := []GroupSpec{{Weight: 1, Diameters: ChoiceOf(0.01), Shape: vessel.Sphere}}
	got = SizeForCount(3, 100, 0.05, spheres)
	want = math.Cbrt(100 * math.Pi / 6 * 1e-6 / 0.05)
	if math.Abs(got-want)/want > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestGroupsFromMaps(t *testing.T) {
	labels := []string{"vesselGroup1"}
	groups, err := GroupsFromMaps(2, labels,
		map[string]float64{"vesselGroup1": 1},
		map[string][]float64{"vesselGroup1": {0.002}},
		map[string]float64{"vesselGroup1": 3e-8},
		map[string]float64{"vesselGroup1": 0})
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Diameters.Values[0] != 0.002 {
		t.Errorf("unexpected groups %+v", groups)
	}

	_, err = GroupsFromMaps(2, labels,
		map[string]float64{"vesselGroup1": 1},
		map[string][]float64{"vesselGroup2": {0.002}},
		map[string]float64{"vesselGroup1": 3e-8},
		map[string]float64{"vesselGroup1": 0})
	if !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error for mismatched keys, got %v", err)
	}
}
