// Package auth defines the authorization predicate for job access. Identity
// and role resolution happen upstream; this package only decides whether a
// given requester may act on a given job.
package auth

import "github.com/arostrup/helmsman/internal/model"

// Role of a requester, resolved by the upstream identity layer.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Requester identifies the caller of an orchestrator operation.
type Requester struct {
	ID   string
	Role Role
}

// Admin reports whether the requester holds the elevated role.
func (r Requester) Admin() bool {
	return r.Role == RoleAdmin
}

// Guard decides whether a requester may operate on a job.
type Guard interface {
	Allows(r Requester, job *model.Job) bool
}

// OwnerOrAdmin is the default policy: the job owner is always allowed, an
// admin is allowed for any job, everyone else is denied.
type OwnerOrAdmin struct{}

// Allows implements Guard.
func (OwnerOrAdmin) Allows(r Requester, job *model.Job) bool {
	if r.Admin() {
		return true
	}
	return r.ID != "" && r.ID == job.OwnerID
}
