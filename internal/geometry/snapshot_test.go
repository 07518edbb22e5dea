package geometry

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/vessel"
)

func populated(t *testing.T, dim int) *ContinuousVoxel {
	t.Helper()
	groups := []GroupSpec{
		{Label: "small", Weight: 2, Diameters: Distribution{Kind: Uniform, Min: 0.001, Max: 0.003}, Dchi: 3e-8, Theta: math.Pi / 2, RandomOrientation: dim == 3},
		{Label: "large", Weight: 1, Diameters: ChoiceOf(0.004), Dchi: 3e-8, Permeability: 0.25, Theta: 1.1, Phi: 0.3, RandomOrientation: dim == 3},
	}
	v, err := Populate(PopulateOptions{Dim: dim, NumVessels: 40, CBV: 0.03, B0: 3, Groups: groups, AllowIntersection: true, Seed: 42})
	require.NoError(t, err)
	return v
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, name := range []string{"voxel.json", "voxel.yaml"} {
		for _, dim := range []int{2, 3} {
			t.Run(name, func(t *testing.T) {
				v := populated(t, dim)
				path := filepath.Join(t.TempDir(), "snapshots", name)

				require.NoError(t, Save(path, v))
				loaded, err := Load(path)
				require.NoError(t, err)

				assert.Equal(t, v.Dim(), loaded.Dim())
				assert.Equal(t, v.Size(), loaded.Size())
				assert.Equal(t, v.B0(), loaded.B0())
				assert.Equal(t, v.CBV(), loaded.CBV())
				assert.Equal(t, v.Vessels(), loaded.Vessels())

				n := 24
				if dim == 3 {
					n = 8
				}
				a, err := Discretize(context.Background(), v, n)
				require.NoError(t, err)
				b, err := Discretize(context.Background(), loaded, n)
				require.NoError(t, err)
				assert.Equal(t, a.FieldGrid(), b.FieldGrid())
				assert.Equal(t, a.OwnerGrid(), b.OwnerGrid())
			})
		}
	}
}

func TestSnapshotPreservesPolicy(t *testing.T) {
	v, err := NewContinuousVoxel(2, 1, 3)
	require.NoError(t, err)
	v.SetFieldPolicy(vessel.InsideNone)
	ves, _ := vessel.NewCylinder(0.1, vessel.Vec{0.1, 0.2}, math.Pi/2, 0, 3e-8, 0, "v")
	require.NoError(t, v.AddVessel(ves))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, v, FormatJSON))
	loaded, err := Decode(&buf, FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, vessel.InsideNone, loaded.FieldPolicy())
	assert.Zero(t, loaded.Field(vessel.Vec{0.1, 0.2}))
}

func TestSnapshotVersion(t *testing.T) {
	s := populated(t, 2).Snapshot()
	s.Version = SnapshotVersion + 1

	_, err := FromSnapshot(s)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration), "got %v", err)

	s.Version = SnapshotVersion
	s.Vessels[0].Origin = []float64{0}
	_, err = FromSnapshot(s)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration), "got %v", err)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFor("a/b.YML"))
	assert.Equal(t, FormatYAML, FormatFor("voxel.yaml"))
	assert.Equal(t, FormatJSON, FormatFor("voxel.json"))
	assert.Equal(t, FormatJSON, FormatFor("voxel"))
}
