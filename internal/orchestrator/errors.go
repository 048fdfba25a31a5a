package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by orchestrator operations. Executor failures
// (LaunchError, QueryError, CancelError) pass through from the executor
// package untouched.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrForbidden        = errors.New("not authorized for this job")
	ErrInvalidPage      = errors.New("offset and limit must be non-negative")
)

// InvalidParamsError reports parameters rejected at submission time.
type InvalidParamsError struct {
	Err error
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid parameters: %v", e.Err)
}

func (e *InvalidParamsError) Unwrap() error { return e.Err }
