// Package orchestrator owns the job state machine. It accepts submissions,
// reconciles stored status against the executor's authoritative state on
// read, and drives cooperative cancellation, enforcing per-requester
// authorization on every operation.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arostrup/helmsman/internal/auth"
	"github.com/arostrup/helmsman/internal/executor"
	"github.com/arostrup/helmsman/internal/model"
	"github.com/arostrup/helmsman/internal/store"
)

const (
	// DefaultPageSize is used when List is called with limit 0.
	DefaultPageSize = 20
	// MaxPageSize caps the page size of List.
	MaxPageSize = 100

	defaultCallTimeout = 30 * time.Second
)

// Locations derives the executor's work and output addresses from a job id.
// The scheme is deterministic so a job's artifacts are addressable from its
// id alone.
type Locations struct {
	Bucket string
}

// WorkDir returns the scratch location for a job.
func (l Locations) WorkDir(jobID string) string {
	return fmt.Sprintf("s3://%s/work/%s", l.Bucket, jobID)
}

// OutputDir returns the results location for a job.
func (l Locations) OutputDir(jobID string) string {
	return fmt.Sprintf("s3://%s/results/%s", l.Bucket, jobID)
}

// Orchestrator coordinates the job record store and the executor gateway.
// It holds no job state of its own; the store is the single source of truth.
type Orchestrator struct {
	store       store.Store
	exec        executor.Executor
	guard       auth.Guard
	locs        Locations
	logger      *slog.Logger
	now         func() time.Time
	callTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithCallTimeout bounds every executor gateway call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// New creates an orchestrator.
func New(s store.Store, exec executor.Executor, guard auth.Guard, locs Locations, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       s,
		exec:        exec,
		guard:       guard,
		locs:        locs,
		logger:      logger,
		now:         time.Now,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitRequest carries one job submission.
type SubmitRequest struct {
	Requester   auth.Requester
	WorkflowID  string
	RawParams   json.RawMessage
	Description string
}

// Submit validates the request, launches a run on the executor, and creates
// the job record. If the launch fails nothing is persisted and the caller
// receives the launch error; submission is never retried here.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*model.Job, error) {
	params, err := model.ParseParams(req.RawParams)
	if err != nil {
		return nil, &InvalidParamsError{Err: err}
	}

	wf, err := o.store.GetWorkflow(ctx, req.WorkflowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup workflow: %w", err)
	}

	id := model.NewID()
	spec := executor.LaunchSpec{
		JobID:        id,
		RunName:      runName(id),
		WorkflowName: wf.Name,
		Definition:   wf.Definition,
		Params:       params,
		WorkDir:      o.locs.WorkDir(id),
		OutputDir:    o.locs.OutputDir(id),
	}

	lctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	ref, err := o.exec.Launch(lctx, spec)
	if err != nil {
		executorErrorsTotal.WithLabelValues("launch").Inc()
		o.logger.Error("launch failed", "workflow", wf.Name, "error", err)
		return nil, err
	}

	now := o.now().UTC()
	job := &model.Job{
		ID:          id,
		OwnerID:     req.Requester.ID,
		WorkflowID:  wf.ID,
		Status:      model.StatusSubmitted,
		Params:      params,
		ExternalRef: ref,
		WorkDir:     spec.WorkDir,
		OutputDir:   spec.OutputDir,
		Description: req.Description,
		Message:     "job submitted and queued for execution",
		CreatedAt:   now,
		StartedAt:   &now,
		UpdatedAt:   now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}

	jobsSubmittedTotal.Inc()
	o.logger.Info("job submitted",
		"job_id", id,
		"workflow", wf.Name,
		"owner", req.Requester.ID,
		"external_ref", ref,
	)
	return job, nil
}

// GetStatus returns the job, reconciled against the executor when the stored
// status is non-terminal. Terminal jobs are returned as stored without any
// gateway call. A transient query failure leaves the record untouched.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string, req auth.Requester) (*model.Job, error) {
	job, err := o.load(ctx, jobID, req)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	qctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	res, err := o.exec.Query(qctx, job.ExternalRef)
	if err != nil {
		executorErrorsTotal.WithLabelValues("query").Inc()
		return nil, err
	}

	if res.Status == job.Status && res.Message == "" {
		return job, nil
	}

	updated, err := o.store.UpdateJob(ctx, job.ID, func(j *model.Job) error {
		// A concurrent reconcile may have finished the job between our read
		// and this critical section; terminal state always wins.
		if j.Status.Terminal() {
			return nil
		}
		if res.Message != "" {
			j.Message = res.Message
		}
		if j.Status == res.Status {
			return nil
		}
		// A gateway report can lag the stored status (a stale DescribeJobs
		// racing a fresher one); an observation that maps behind the record
		// is ignored, never surfaced as an error.
		if !model.ValidTransition(j.Status, res.Status) {
			return nil
		}
		j.Status = res.Status
		if res.Status.Terminal() && j.CompletedAt == nil {
			t := o.now().UTC()
			j.CompletedAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile job %s: %w", job.ID, err)
	}

	if updated.Status != job.Status {
		jobTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()
		o.logger.Info("job status reconciled",
			"job_id", job.ID,
			"from", job.Status,
			"to", updated.Status,
			"raw", res.Raw,
		)
	}
	return updated, nil
}

// Cancel requests termination of a job's run. Cancelling a job that is
// already terminal is an idempotent success and issues no executor call. A
// transient cancel failure leaves the record untouched so the caller may
// retry.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string, req auth.Requester) (*model.Job, error) {
	job, err := o.load(ctx, jobID, req)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	cctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	if err := o.exec.Cancel(cctx, job.ExternalRef); err != nil {
		executorErrorsTotal.WithLabelValues("cancel").Inc()
		return nil, err
	}

	updated, err := o.store.UpdateJob(ctx, job.ID, func(j *model.Job) error {
		if j.Status.Terminal() {
			return nil
		}
		j.Status = model.StatusCancelled
		j.Message = "job cancelled on request"
		if j.CompletedAt == nil {
			t := o.now().UTC()
			j.CompletedAt = &t
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record cancellation of job %s: %w", job.ID, err)
	}

	if updated.Status != job.Status {
		jobTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()
	}
	o.logger.Info("job cancelled", "job_id", job.ID, "requester", req.ID)
	return updated, nil
}

// List returns a stable page of jobs. Admins see all jobs; everyone else
// sees only their own.
func (o *Orchestrator) List(ctx context.Context, req auth.Requester, offset, limit int) ([]*model.Job, int, error) {
	if offset < 0 || limit < 0 {
		return nil, 0, ErrInvalidPage
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	filter := store.JobFilter{}
	if !req.Admin() {
		filter.OwnerID = req.ID
	}
	return o.store.ListJobs(ctx, filter, limit, offset)
}

// Stats returns aggregate job statistics. Admin only.
func (o *Orchestrator) Stats(ctx context.Context, req auth.Requester) (*store.JobStats, error) {
	if !req.Admin() {
		return nil, ErrForbidden
	}
	return o.store.JobStats(ctx)
}

// load fetches a job and checks authorization.
func (o *Orchestrator) load(ctx context.Context, jobID string, req auth.Requester) (*model.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if !o.guard.Allows(req, job) {
		return nil, ErrForbidden
	}
	return job, nil
}

// runName derives the executor-side run name from a job id.
func runName(jobID string) string {
	return "job-" + strings.ToLower(jobID)
}
