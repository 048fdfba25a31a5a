package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the canonical job status. It is the only status vocabulary that
// crosses package boundaries; executor-specific strings are mapped onto it
// at the executor gateway and nowhere else.
type Status string

// Canonical job statuses.
const (
	StatusSubmitted Status = "SUBMITTED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// validTransitions maps each status to the set of statuses it may transition
// to. Terminal statuses have no outgoing edges.
var validTransitions = map[Status]map[Status]bool{
	StatusSubmitted: {
		StatusRunning:   true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to Status) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether the status is final. A job in a terminal status
// never transitions again and never needs reconciliation against the executor.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ErrMalformedParams is returned when submitted parameters are not a JSON object.
var ErrMalformedParams = errors.New("parameters must be a JSON object")

// Params is an opaque parameter mapping passed through to the executor.
// Keys are unique and values are never interpreted by the orchestrator.
type Params map[string]any

// ParseParams validates raw submission parameters once at the boundary.
// Absent or null input yields an empty map; anything other than a JSON
// object is rejected rather than coerced.
func ParseParams(raw json.RawMessage) (Params, error) {
	if len(raw) == 0 {
		return Params{}, nil
	}
	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedParams, err)
	}
	if p == nil {
		return Params{}, nil
	}
	return p, nil
}

// Job represents one submission of a workflow to the executor.
type Job struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	WorkflowID  string     `json:"workflow_id"`
	Status      Status     `json:"status"`
	Params      Params     `json:"parameters"`
	ExternalRef string     `json:"external_ref,omitempty"`
	WorkDir     string     `json:"work_dir,omitempty"`
	OutputDir   string     `json:"output_dir,omitempty"`
	Description string     `json:"description,omitempty"`
	Message     string     `json:"message,omitempty"`
	Version     int64      `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the job. Store mutators operate on a clone so
// a failed write never leaves a half-mutated record visible to the caller.
func (j *Job) Clone() *Job {
	c := *j
	if j.Params != nil {
		c.Params = make(Params, len(j.Params))
		for k, v := range j.Params {
			c.Params[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Workflow is a runnable workflow definition from the catalog.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Definition  string    `json:"definition,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
