package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arostrup/helmsman/internal/model"

	_ "modernc.org/sqlite"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT PRIMARY KEY,
    owner_id     TEXT NOT NULL,
    workflow_id  TEXT NOT NULL,
    status       TEXT NOT NULL,
    params       TEXT NOT NULL DEFAULT '{}',
    external_ref TEXT,
    work_dir     TEXT,
    output_dir   TEXT,
    description  TEXT,
    message      TEXT,
    version      INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    started_at   DATETIME,
    completed_at DATETIME,
    updated_at   DATETIME NOT NULL
)`

const createWorkflowsTable = `
CREATE TABLE IF NOT EXISTS workflows (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT,
    definition  TEXT,
    created_at  DATETIME NOT NULL
)`

// ErrNotFound is returned when a job or workflow is not found.
var ErrNotFound = errors.New("record not found")

// updateRetries bounds how often an atomic update re-reads after losing the
// version race before giving up with ErrVersionConflict.
const updateRetries = 5

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createJobsTable, createWorkflowsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.Job) error {
	params, err := encodeParams(j.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (
			id, owner_id, workflow_id, status, params, external_ref,
			work_dir, output_dir, description, message, version,
			created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.OwnerID, j.WorkflowID, j.Status, params, j.ExternalRef,
		j.WorkDir, j.OutputDir, j.Description, j.Message, j.Version,
		j.CreatedAt, j.StartedAt, j.CompletedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j := &model.Job{}
	var params string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, workflow_id, status, params, external_ref,
			work_dir, output_dir, description, message, version,
			created_at, started_at, completed_at, updated_at
		FROM jobs WHERE id = ?`, id,
	).Scan(
		&j.ID, &j.OwnerID, &j.WorkflowID, &j.Status, &params, &j.ExternalRef,
		&j.WorkDir, &j.OutputDir, &j.Description, &j.Message, &j.Version,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if j.Params, err = decodeParams(params); err != nil {
		return nil, err
	}
	return j, nil
}

// UpdateJob atomically applies mutate to the job with the given ID.
//
// The mutator receives a copy of the current record. Fields that are
// immutable after creation (owner, workflow, work/output locations,
// created_at) are never written back; a completed_at that is already set is
// preserved so it is assigned at most once. The write is guarded by the
// version read; on conflict the whole read-mutate-write cycle is retried.
func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, mutate func(*model.Job) error) (*model.Job, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		cur, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}

		next := cur.Clone()
		if err := mutate(next); err != nil {
			return nil, err
		}

		if next.Status != cur.Status && !model.ValidTransition(cur.Status, next.Status) {
			return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, cur.Status, next.Status)
		}
		if cur.ExternalRef != "" && next.ExternalRef != cur.ExternalRef {
			return nil, errors.New("external ref is immutable once set")
		}
		if cur.CompletedAt != nil {
			next.CompletedAt = cur.CompletedAt
		}

		next.ID = cur.ID
		next.OwnerID = cur.OwnerID
		next.WorkflowID = cur.WorkflowID
		next.WorkDir = cur.WorkDir
		next.OutputDir = cur.OutputDir
		next.CreatedAt = cur.CreatedAt
		next.Version = cur.Version + 1
		next.UpdatedAt = time.Now().UTC()

		params, err := encodeParams(next.Params)
		if err != nil {
			return nil, err
		}

		result, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, params = ?, external_ref = ?,
				description = ?, message = ?, version = ?,
				started_at = ?, completed_at = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			next.Status, params, next.ExternalRef,
			next.Description, next.Message, next.Version,
			next.StartedAt, next.CompletedAt, next.UpdatedAt,
			id, cur.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("update job: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("check rows affected: %w", err)
		}
		if rowsAffected == 1 {
			return next, nil
		}
		// Lost the version race to a concurrent update; re-read and retry.
	}
	return nil, ErrVersionConflict
}

// ListJobs returns a paginated list of jobs matching the filter, ordered by
// created_at DESC with id as a tiebreak, along with the total count for the
// same filter.
func (s *SQLiteStore) ListJobs(ctx context.Context, f JobFilter, limit, offset int) ([]*model.Job, int, error) {
	where := ""
	args := []any{}
	if f.OwnerID != "" {
		where = "WHERE owner_id = ?"
		args = append(args, f.OwnerID)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, owner_id, workflow_id, status, params, external_ref,
			work_dir, output_dir, description, message, version,
			created_at, started_at, completed_at, updated_at
		FROM jobs `+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j := &model.Job{}
		var params string
		if err := rows.Scan(
			&j.ID, &j.OwnerID, &j.WorkflowID, &j.Status, &params, &j.ExternalRef,
			&j.WorkDir, &j.OutputDir, &j.Description, &j.Message, &j.Version,
			&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		if j.Params, err = decodeParams(params); err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// JobStats returns aggregate job statistics. Average duration covers
// completed jobs only, measured from started_at to completed_at.
func (s *SQLiteStore) JobStats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{
		CountByStatus:   make(map[model.Status]int),
		CountByWorkflow: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status model.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	wfRows, err := s.db.QueryContext(ctx, "SELECT workflow_id, COUNT(*) FROM jobs GROUP BY workflow_id")
	if err != nil {
		return nil, fmt.Errorf("count by workflow: %w", err)
	}
	defer wfRows.Close()
	for wfRows.Next() {
		var wf string
		var n int
		if err := wfRows.Scan(&wf, &n); err != nil {
			return nil, fmt.Errorf("scan workflow count: %w", err)
		}
		stats.CountByWorkflow[wf] = n
	}
	if err := wfRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG((julianday(completed_at) - julianday(started_at)) * 86400000.0), 0)
		FROM jobs
		WHERE status = ? AND started_at IS NOT NULL AND completed_at IS NOT NULL`,
		model.StatusCompleted,
	).Scan(&stats.AvgDurationMS)
	if err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}

	return stats, nil
}

// CreateWorkflow inserts a new workflow record.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, w *model.Workflow) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO workflows (id, name, description, definition, created_at) VALUES (?, ?, ?, ?, ?)",
		w.ID, w.Name, w.Description, w.Definition, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	w := &model.Workflow{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, definition, created_at FROM workflows WHERE id = ?", id,
	).Scan(&w.ID, &w.Name, &w.Description, &w.Definition, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

// ListWorkflows returns all workflows ordered by name.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]*model.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, definition, created_at FROM workflows ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*model.Workflow
	for rows.Next() {
		w := &model.Workflow{}
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.Definition, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return workflows, nil
}

// CountWorkflows returns the number of workflows in the catalog.
func (s *SQLiteStore) CountWorkflows(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows").Scan(&n); err != nil {
		return 0, fmt.Errorf("count workflows: %w", err)
	}
	return n, nil
}

// encodeParams serializes params as JSON text for storage. Key order is not
// semantically meaningful; only the key set and values must round-trip.
func encodeParams(p model.Params) (string, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	return string(data), nil
}

func decodeParams(s string) (model.Params, error) {
	if s == "" {
		return model.Params{}, nil
	}
	var p model.Params
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if p == nil {
		p = model.Params{}
	}
	return p, nil
}
