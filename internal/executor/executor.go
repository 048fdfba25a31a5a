// Package executor abstracts the external workflow engine behind a narrow
// submit/query/cancel interface. Implementations own all translation to the
// engine's invocation surface; only canonical statuses cross this boundary.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/arostrup/helmsman/internal/model"
)

// LaunchSpec describes one workflow run to be started by an executor.
type LaunchSpec struct {
	JobID        string
	RunName      string
	WorkflowName string
	Definition   string
	Params       model.Params
	WorkDir      string
	OutputDir    string
}

// QueryResult is the reconciled view of a run. Status is always canonical;
// Raw preserves the engine's own vocabulary for diagnostics, and Message
// carries an advisory when the raw value was not recognized.
type QueryResult struct {
	Status  model.Status
	Raw     string
	Message string
}

// Executor is the gateway to the external workflow engine.
type Executor interface {
	// Launch starts a run and returns the engine-assigned reference.
	Launch(ctx context.Context, spec LaunchSpec) (string, error)

	// Query returns the engine's current view of the run.
	Query(ctx context.Context, externalRef string) (QueryResult, error)

	// Cancel requests cooperative termination of the run.
	Cancel(ctx context.Context, externalRef string) error

	// Name identifies the executor for logs and errors.
	Name() string
}

// statusByRaw maps engine status vocabulary (lowercased) onto the canonical
// enum. Anything absent from this table is deliberately treated as RUNNING:
// an ambiguous engine answer must never produce a terminal transition.
var statusByRaw = map[string]model.Status{
	"queued":      model.StatusSubmitted,
	"pending":     model.StatusSubmitted,
	"submitted":   model.StatusSubmitted,
	"runnable":    model.StatusSubmitted,
	"starting":    model.StatusSubmitted,
	"running":     model.StatusRunning,
	"in-progress": model.StatusRunning,
	"in_progress": model.StatusRunning,
	"succeeded":   model.StatusCompleted,
	"success":     model.StatusCompleted,
	"complete":    model.StatusCompleted,
	"completed":   model.StatusCompleted,
	"ok":          model.StatusCompleted,
	"failed":      model.StatusFailed,
	"error":       model.StatusFailed,
	"err":         model.StatusFailed,
	"cancelled":   model.StatusCancelled,
	"canceled":    model.StatusCancelled,
	"terminated":  model.StatusCancelled,
	"killed":      model.StatusCancelled,
	"aborted":     model.StatusCancelled,
}

// MapStatus translates a raw engine status into the canonical enum. The
// second return reports whether the value was recognized; unrecognized
// values map to RUNNING so the caller can attach an advisory message.
func MapStatus(raw string) (model.Status, bool) {
	s, ok := statusByRaw[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return model.StatusRunning, false
	}
	return s, true
}

// mapResult builds a QueryResult from a raw engine status, attaching an
// advisory message when the value is unrecognized.
func mapResult(raw string) QueryResult {
	status, known := MapStatus(raw)
	res := QueryResult{Status: status, Raw: raw}
	if !known {
		res.Message = fmt.Sprintf("executor reported unrecognized status %q, treating as running", raw)
	}
	return res
}

// LaunchError wraps a submission rejection. No job record exists when the
// caller sees this error.
type LaunchError struct {
	Executor string
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch on %s failed: %v", e.Executor, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// QueryError wraps a transient status-query failure. The stored job record
// is unchanged and the caller may retry.
type QueryError struct {
	Executor string
	Ref      string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s on %s failed: %v", e.Ref, e.Executor, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// CancelError wraps a transient cancellation failure. The stored job record
// is unchanged and the caller may retry.
type CancelError struct {
	Executor string
	Ref      string
	Err      error
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("cancel %s on %s failed: %v", e.Ref, e.Executor, e.Err)
}

func (e *CancelError) Unwrap() error { return e.Err }
