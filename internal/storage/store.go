// Package storage persists simulation runs: metadata plus the per-step
// signal series. Runs live either in a directory tree or in a SQLite file.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/boldsim/internal/dynamo"
)

const (
	KindDir    = "dir"
	KindSQLite = "sqlite"
)

var ErrNotFound = errors.New("storage: run not found")

type RunMetadata struct {
	ID        string             `json:"id"`
	Method    string             `json:"method"`
	Label     string             `json:"label,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      uint64             `json:"seed"`
	Repeats   int                `json:"repeats"`
	Dt        float64            `json:"dt"`
	Steps     int                `json:"steps"`
	NumSpins  int                `json:"num_spins"`
	CBV       float64            `json:"cbv"`
	Vessels   int                `json:"vessels"`
	Elapsed   time.Duration      `json:"elapsed"`
	Metrics   map[string]float64 `json:"metrics"`
	// Config is the YAML configuration the run was built from.
	Config string `json:"config,omitempty"`
}

// SignalRow is one recorded step.
type SignalRow struct {
	Step  int     `csv:"step" json:"step"`
	Time  float64 `csv:"time" json:"time"`
	Total float64 `csv:"total" json:"total"`
	EV    float64 `csv:"ev" json:"ev"`
	IV    float64 `csv:"iv" json:"iv"`
}

// Rows flattens a result into signal rows.
func Rows(r *dynamo.Result) []*SignalRow {
	rows := make([]*SignalRow, len(r.Times))
	for i := range r.Times {
		rows[i] = &SignalRow{Step: i, Time: r.Times[i], Total: r.Total[i], EV: r.EV[i], IV: r.IV[i]}
	}
	return rows
}

// FromRows rebuilds a result from stored rows. Metrics come from metadata.
func FromRows(rows []*SignalRow, meta *RunMetadata) *dynamo.Result {
	r := &dynamo.Result{
		Times:      make([]float64, len(rows)),
		Total:      make([]float64, len(rows)),
		EV:         make([]float64, len(rows)),
		IV:         make([]float64, len(rows)),
		StepsTaken: len(rows),
		Metrics:    map[string]float64{},
	}
	for i, row := range rows {
		r.Times[i], r.Total[i], r.EV[i], r.IV[i] = row.Time, row.Total, row.EV, row.IV
	}
	if meta != nil {
		r.Dt = meta.Dt
		for k, v := range meta.Metrics {
			r.Metrics[k] = v
		}
	}
	return r
}

// Store is implemented by the directory and SQLite backends.
type Store interface {
	Init() error
	Save(meta RunMetadata, result *dynamo.Result) (string, error)
	List() ([]RunMetadata, error)
	Load(runID string) (*RunMetadata, error)
	LoadSignals(runID string) ([]*SignalRow, error)
	Close() error
}

// Open returns the backend named by kind rooted at baseDir.
func Open(kind, baseDir string) (Store, error) {
	switch kind {
	case "", KindDir:
		return New(baseDir), nil
	case KindSQLite:
		return OpenSQLite(baseDir)
	}
	return nil, dynamo.Configf("store", "unknown backend %q (have %s, %s)", kind, KindDir, KindSQLite)
}

// LoadResult reads a run back as a result.
func LoadResult(s Store, runID string) (*RunMetadata, *dynamo.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.LoadSignals(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, FromRows(rows, meta), nil
}

func prepare(meta *RunMetadata, result *dynamo.Result) {
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%s", meta.Method, uuid.NewString()[:8])
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	if meta.Metrics == nil {
		meta.Metrics = result.Metrics
	}
	if meta.Steps == 0 {
		meta.Steps = result.StepsTaken
	}
	if meta.Dt == 0 {
		meta.Dt = result.Dt
	}
}
