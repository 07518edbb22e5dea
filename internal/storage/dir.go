package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"

	"github.com/san-kum/boldsim/internal/dynamo"
)

// DirStore keeps one directory per run holding metadata.json and
// signals.csv.
type DirStore struct {
	baseDir string
}

func New(baseDir string) *DirStore {
	return &DirStore{baseDir: baseDir}
}

func (s *DirStore) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *DirStore) Close() error { return nil }

func (s *DirStore) Save(meta RunMetadata, result *dynamo.Result) (string, error) {
	prepare(&meta, result)
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "signals.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	if err := gocsv.MarshalFile(Rows(result), csvFile); err != nil {
		return "", fmt.Errorf("write signals: %w", err)
	}
	return meta.ID, nil
}

// List returns every readable run, newest first.
func (s *DirStore) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *DirStore) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *DirStore) LoadSignals(runID string) ([]*SignalRow, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "signals.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	var rows []*SignalRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		if err == gocsv.ErrEmptyCSVFile {
			return []*SignalRow{}, nil
		}
		return nil, fmt.Errorf("read signals: %w", err)
	}
	return rows, nil
}
