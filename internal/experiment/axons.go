package experiment

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/geometry"
	"github.com/san-kum/boldsim/internal/sequence"
	"github.com/san-kum/boldsim/internal/vessel"
)

// AxonOptions turns a packed axon table into a white-matter voxel where a
// CBV fraction of the cylinders are blood vessels.
type AxonOptions struct {
	CBV float64
	B0  float64
	// Crop keeps the central fraction of the packing, whose edges are sparse.
	Crop float64
	// Scale converts table units to mm.
	Scale float64

	BloodDchi float64
	AxonDchi  float64
	// Axon orientation relative to B0. Blood vessels are oriented randomly.
	AxonTheta float64
	AxonPhi   float64
	Seed      uint64
}

func DefaultAxonOptions() AxonOptions {
	return AxonOptions{
		CBV:       0.01,
		B0:        3,
		Crop:      0.5,
		Scale:     1e-3,
		BloodDchi: 3e-8,
		AxonDchi:  -1.5e-8,
		AxonTheta: math.Pi / 2,
		AxonPhi:   math.Pi / 2,
		Seed:      1,
	}
}

// BuildAxonVoxel places one cylinder per table column inside the cropped
// region. int(CBV·columns) columns, chosen without replacement, become blood
// vessels. It returns the voxel and the 1-based indices of the blood vessels.
func BuildAxonVoxel(positions [][]float64, radii []float64, opts AxonOptions) (*geometry.ContinuousVoxel, []int, error) {
	if opts.CBV < 0 || opts.CBV >= 1 {
		return nil, nil, dynamo.Configf("cbv", "must be in [0, 1), got %g", opts.CBV)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, 1<<63))
	numBlood := int(opts.CBV * float64(len(radii)))
	blood := make(map[int]bool, numBlood)
	for _, col := range rng.Perm(len(radii))[:numBlood] {
		blood[col] = true
	}

	var bloodIdx []int
	build := func(k int, tv geometry.TableVessel) (vessel.Vessel, error) {
		if blood[tv.Column] {
			bloodIdx = append(bloodIdx, k+1)
			theta, phi := geometry.RandomOrientation(rng)
			return vessel.NewCylinder(tv.Diameter, tv.Origin, theta, phi, opts.BloodDchi, 0, "blood vessel")
		}
		return vessel.NewCylinder(tv.Diameter, tv.Origin, opts.AxonTheta, opts.AxonPhi, opts.AxonDchi, 0, "axon")
	}
	v, _, err := geometry.FromTables(2, opts.B0, positions, radii,
		geometry.TableOptions{Scale: opts.Scale, Crop: opts.Crop}, build)
	if err != nil {
		return nil, nil, err
	}
	return v, bloodIdx, nil
}

// BloodPartition counts only the given vessels as intravascular, so axons
// contribute to the extravascular signal.
func BloodPartition(bloodIdx []int) sequence.Partition {
	return sequence.VesselSet(bloodIdx)
}

// ReadTable parses a headerless numeric CSV into rows.
func ReadTable(r io.Reader) ([][]float64, error) {
	records, err := gocsv.DefaultCSVReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	rows := make([][]float64, 0, len(records))
	for i, rec := range records {
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("read table: row %d column %d: %w", i+1, j+1, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadAxonTables reads a 2×N positions file and a radii file holding one
// row or one column of N values.
func LoadAxonTables(positionsPath, radiiPath string) ([][]float64, []float64, error) {
	positions, err := readTableFile(positionsPath)
	if err != nil {
		return nil, nil, err
	}
	if len(positions) != 2 {
		return nil, nil, dynamo.Configf("positions", "expected 2 rows, got %d", len(positions))
	}
	radiiRows, err := readTableFile(radiiPath)
	if err != nil {
		return nil, nil, err
	}
	var radii []float64
	switch {
	case len(radiiRows) == 1:
		radii = radiiRows[0]
	default:
		for _, row := range radiiRows {
			if len(row) != 1 {
				return nil, nil, dynamo.Configf("radii", "expected a single row or column")
			}
			radii = append(radii, row[0])
		}
	}
	return positions, radii, nil
}

func readTableFile(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}

// SyntheticPacking lays n fibres on a jittered square lattice with spacing
// in table units and log-normally distributed radii, for runs without a
// packing table.
func SyntheticPacking(n int, spacing float64, seed uint64) ([][]float64, []float64) {
	rng := rand.New(rand.NewPCG(seed, 2))
	side := int(math.Ceil(math.Sqrt(float64(n))))
	positions := [][]float64{make([]float64, n), make([]float64, n)}
	radii := make([]float64, n)
	for i := 0; i < n; i++ {
		jx := (rng.Float64() - 0.5) * 0.1 * spacing
		jy := (rng.Float64() - 0.5) * 0.1 * spacing
		positions[0][i] = float64(i%side)*spacing + jx
		positions[1][i] = float64(i/side)*spacing + jy
		radii[i] = math.Min(0.4*spacing, 0.3*spacing*math.Exp(0.2*rng.NormFloat64()))
	}
	return positions, radii
}
