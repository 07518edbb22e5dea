package geometry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/vessel"
)

// SnapshotVersion is bumped whenever the snapshot fields change meaning.
const SnapshotVersion = 1

type Snapshot struct {
	Version     int            `json:"version" yaml:"version"`
	Dim         int            `json:"dim" yaml:"dim"`
	Size        float64        `json:"size" yaml:"size"`
	B0          float64        `json:"b0" yaml:"b0"`
	CBV         float64        `json:"cbv" yaml:"cbv"`
	InsideField string         `json:"inside_field" yaml:"inside_field"`
	Vessels     []VesselRecord `json:"vessels" yaml:"vessels"`
}

type VesselRecord struct {
	Shape                 string    `json:"shape" yaml:"shape"`
	Diameter              float64   `json:"diameter" yaml:"diameter"`
	Origin                []float64 `json:"origin" yaml:"origin,flow"`
	Theta                 float64   `json:"theta" yaml:"theta"`
	Phi                   float64   `json:"phi" yaml:"phi"`
	Dchi                  float64   `json:"dchi" yaml:"dchi"`
	PermeationProbability float64   `json:"permeation_probability" yaml:"permeation_probability"`
	Label                 string    `json:"label" yaml:"label"`
}

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the encoding from a file extension; JSON is the default.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

func (v *ContinuousVoxel) Snapshot() Snapshot {
	s := Snapshot{
		Version:     SnapshotVersion,
		Dim:         v.dim,
		Size:        v.size,
		B0:          v.b0,
		CBV:         v.CBV(),
		InsideField: v.policy.String(),
		Vessels:     make([]VesselRecord, len(v.vessels)),
	}
	for i, ves := range v.vessels {
		s.Vessels[i] = VesselRecord{
			Shape:                 ves.Shape.String(),
			Diameter:              ves.Diameter,
			Origin:                append([]float64(nil), ves.Origin[:v.dim]...),
			Theta:                 ves.Theta,
			Phi:                   ves.Phi,
			Dchi:                  ves.Dchi,
			PermeationProbability: ves.Permeability,
			Label:                 ves.Label,
		}
	}
	return s
}

// FromSnapshot rebuilds the voxel in the recorded vessel order.
func FromSnapshot(s Snapshot) (*ContinuousVoxel, error) {
	if s.Version != SnapshotVersion {
		return nil, dynamo.Configf("snapshot", "unsupported version %d (want %d)", s.Version, SnapshotVersion)
	}
	v, err := NewContinuousVoxel(s.Dim, s.Size, s.B0)
	if err != nil {
		return nil, err
	}
	policy, err := vessel.ParseFieldPolicy(s.InsideField)
	if err != nil {
		return nil, err
	}
	v.SetFieldPolicy(policy)

	for i, r := range s.Vessels {
		shape, err := vessel.ParseShape(r.Shape)
		if err != nil {
			return nil, fmt.Errorf("vessel %d: %w", i+1, err)
		}
		if len(r.Origin) != s.Dim {
			return nil, dynamo.Configf("snapshot", "vessel %d origin has %d coordinates, want %d", i+1, len(r.Origin), s.Dim)
		}
		var origin vessel.Vec
		copy(origin[:], r.Origin)
		ves := vessel.Vessel{
			Shape:        shape,
			Diameter:     r.Diameter,
			Origin:       origin,
			Theta:        r.Theta,
			Phi:          r.Phi,
			Dchi:         r.Dchi,
			Permeability: r.PermeationProbability,
			Label:        r.Label,
		}
		if err := v.AddVessel(ves); err != nil {
			return nil, fmt.Errorf("vessel %d: %w", i+1, err)
		}
	}
	return v, nil
}

func Encode(w io.Writer, v *ContinuousVoxel, f Format) error {
	s := v.Snapshot()
	if f == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

func Decode(r io.Reader, f Format) (*ContinuousVoxel, error) {
	var s Snapshot
	var err error
	if f == FormatYAML {
		err = yaml.NewDecoder(r).Decode(&s)
	} else {
		err = json.NewDecoder(r).Decode(&s)
	}
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return FromSnapshot(s)
}

func Save(path string, v *ContinuousVoxel) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, v, FormatFor(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func Load(path string) (*ContinuousVoxel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, FormatFor(path))
}
