package model

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID string for use as a job identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewWorkflowID generates a new UUID string for a catalog workflow.
func NewWorkflowID() string {
	return uuid.NewString()
}
