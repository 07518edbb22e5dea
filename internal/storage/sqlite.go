package storage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/san-kum/boldsim/internal/dynamo"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteFile is the database name inside the data directory.
const SQLiteFile = "runs.db"

// SQLiteStore keeps runs and their signal rows in one database file.
type SQLiteStore struct {
	path  string
	sqlDB *sql.DB
}

// OpenSQLite opens (creating if needed) baseDir/runs.db and applies the
// schema.
func OpenSQLite(baseDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(filepath.Clean(baseDir), SQLiteFile)
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &SQLiteStore{path: path, sqlDB: sqlDB}
	if err := s.Init(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.sqlDB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Save(meta RunMetadata, result *dynamo.Result) (string, error) {
	prepare(&meta, result)
	metrics, err := json.Marshal(meta.Metrics)
	if err != nil {
		return "", err
	}

	tx, err := s.sqlDB.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (
		   id, method, label, created_at, seed, repeats, dt, steps,
		   num_spins, cbv, vessels, elapsed_ns, metrics, config
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Method, meta.Label, meta.Timestamp.UTC().UnixMilli(), int64(meta.Seed), meta.Repeats,
		meta.Dt, meta.Steps, meta.NumSpins, meta.CBV, meta.Vessels, int64(meta.Elapsed), string(metrics), meta.Config,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO signals (run_id, step, time, total, ev, iv) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, row := range Rows(result) {
		if _, err := stmt.Exec(meta.ID, row.Step, row.Time, row.Total, row.EV, row.IV); err != nil {
			return "", fmt.Errorf("insert signal: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return meta.ID, nil
}

const runColumns = `id, method, label, created_at, seed, repeats, dt, steps, num_spins, cbv, vessels, elapsed_ns, metrics, config`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunMetadata, error) {
	var (
		meta              RunMetadata
		created, seed, ns int64
		metrics           string
	)
	err := row.Scan(&meta.ID, &meta.Method, &meta.Label, &created, &seed, &meta.Repeats, &meta.Dt, &meta.Steps,
		&meta.NumSpins, &meta.CBV, &meta.Vessels, &ns, &metrics, &meta.Config)
	if err != nil {
		return nil, err
	}
	meta.Timestamp = time.UnixMilli(created).UTC()
	meta.Seed = uint64(seed)
	meta.Elapsed = time.Duration(ns)
	if err := json.Unmarshal([]byte(metrics), &meta.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &meta, nil
}

func (s *SQLiteStore) List() ([]RunMetadata, error) {
	rows, err := s.sqlDB.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *meta)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Load(runID string) (*RunMetadata, error) {
	meta, err := scanRun(s.sqlDB.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return meta, err
}

func (s *SQLiteStore) LoadSignals(runID string) ([]*SignalRow, error) {
	if _, err := s.Load(runID); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.Query(`SELECT step, time, total, ev, iv FROM signals WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*SignalRow, 0)
	for rows.Next() {
		var r SignalRow
		if err := rows.Scan(&r.Step, &r.Time, &r.Total, &r.EV, &r.IV); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
