// Package store is the run ledger: one row per pipeline run plus the
// per-subhalo failures it recorded, in sqlite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"subhalo-pipeline/internal/model"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Store wraps the ledger database.
type Store struct {
	db *sql.DB
}

// Open connects to the sqlite database at dbPath and creates the tables.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		analysis TEXT,
		spec TEXT,
		status TEXT,
		metrics TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS item_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		subhalo_id INTEGER,
		kind TEXT,
		message TEXT,
		created_at DATETIME
	);
	`
	indexes := `CREATE INDEX IF NOT EXISTS item_errors_run ON item_errors (run_id, subhalo_id);`

	for _, stmt := range []string{runTable, errorTable, indexes} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create ledger tables: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun stores a new run as pending.
func (s *Store) SaveRun(runID string, spec model.RunSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`INSERT INTO runs (id, analysis, spec, status, metrics, created_at, updated_at) VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		runID, spec.Analysis, string(specJSON), model.RunPending, now, now)
	return err
}

// UpdateRunStatus updates run status
func (s *Store) UpdateRunStatus(runID, status string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, runID)
	if err != nil {
		return err
	}
	return expectOne(res, runID)
}

// SaveRunMetrics attaches the run summary.
func (s *Store) SaveRunMetrics(runID string, m model.RunMetrics) error {
	metricsJSON, err := json.Marshal(m)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE runs SET metrics = ?, updated_at = ? WHERE id = ?`, string(metricsJSON), now, runID)
	if err != nil {
		return err
	}
	return expectOne(res, runID)
}

// SaveItemErrors records per-subhalo failures of a run in one transaction.
func (s *Store) SaveItemErrors(errs []model.ItemError) error {
	if len(errs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO item_errors (run_id, subhalo_id, kind, message, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range errs {
		created := e.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.Exec(e.RunID, int64(e.SubhaloID), e.Kind, e.Message, created); err != nil {
			return fmt.Errorf("failed to record error for subhalo %d: %w", e.SubhaloID, err)
		}
	}
	return tx.Commit()
}

// SaveRunError records a run-level failure. It is stored as an item error
// with subhalo id -1.
func (s *Store) SaveRunError(runID string, err error) error {
	if err == nil {
		return nil
	}
	return s.SaveItemErrors([]model.ItemError{{RunID: runID, SubhaloID: -1, Kind: "run", Message: err.Error()}})
}

// ListRuns returns all runs, newest first, without their metrics.
func (s *Store) ListRuns() ([]model.RunRecord, error) {
	rows, err := s.db.Query(`SELECT id, spec, status, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.RunRecord{}
	for rows.Next() {
		var rec model.RunRecord
		var specJSON string
		if err := rows.Scan(&rec.ID, &specJSON, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(specJSON), &rec.Spec); err != nil {
			return nil, fmt.Errorf("run %s: bad spec: %w", rec.ID, err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetRun fetches a run with its metrics.
func (s *Store) GetRun(runID string) (*model.RunRecord, error) {
	var specJSON string
	var metricsJSON sql.NullString
	rec := model.RunRecord{ID: runID}

	err := s.db.QueryRow(`SELECT spec, status, metrics, created_at, updated_at FROM runs WHERE id = ?`, runID).
		Scan(&specJSON, &rec.Status, &metricsJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(specJSON), &rec.Spec); err != nil {
		return nil, fmt.Errorf("run %s: bad spec: %w", runID, err)
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		var m model.RunMetrics
		if err := json.Unmarshal([]byte(metricsJSON.String), &m); err != nil {
			return nil, fmt.Errorf("run %s: bad metrics: %w", runID, err)
		}
		rec.Metrics = &m
	}
	return &rec, nil
}

// GetRunErrors returns the failures recorded for a run, ordered by subhalo.
func (s *Store) GetRunErrors(runID string) ([]model.ItemError, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT subhalo_id, kind, message, created_at FROM item_errors WHERE run_id = ? ORDER BY subhalo_id, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errs := []model.ItemError{}
	for rows.Next() {
		e := model.ItemError{RunID: runID}
		var id int64
		if err := rows.Scan(&id, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SubhaloID = model.SubhaloID(id)
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

func expectOne(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return nil
}
