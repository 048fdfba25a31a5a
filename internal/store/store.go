package store

import (
	"context"
	"errors"

	"github.com/arostrup/helmsman/internal/model"
)

// ErrInvalidTransition is returned when a job status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrVersionConflict is returned when an atomic update loses the version race
// repeatedly and gives up.
var ErrVersionConflict = errors.New("job version conflict")

// JobFilter narrows ListJobs. A zero filter matches all jobs.
type JobFilter struct {
	OwnerID string
}

// JobStats holds aggregate job statistics.
type JobStats struct {
	Total           int                  `json:"total"`
	CountByStatus   map[model.Status]int `json:"count_by_status"`
	CountByWorkflow map[string]int       `json:"count_by_workflow"`
	AvgDurationMS   float64              `json:"avg_duration_ms"`
}

// Store defines the persistence operations for jobs and workflows.
//
// UpdateJob is the single critical section of the system: it loads the
// current record, applies the mutator to a copy, and writes the result back
// guarded by the record's version. Concurrent updates of the same job never
// lose writes; the loser of the race re-reads and retries.
type Store interface {
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, id string, mutate func(*model.Job) error) (*model.Job, error)
	ListJobs(ctx context.Context, f JobFilter, limit, offset int) ([]*model.Job, int, error)
	JobStats(ctx context.Context) (*JobStats, error)

	CreateWorkflow(ctx context.Context, w *model.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*model.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*model.Workflow, error)
	CountWorkflows(ctx context.Context) (int, error)

	Close() error
}
