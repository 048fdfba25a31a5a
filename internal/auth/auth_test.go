package auth

import (
	"testing"

	"github.com/arostrup/helmsman/internal/model"
)

func TestOwnerOrAdmin(t *testing.T) {
	job := &model.Job{ID: model.NewID(), OwnerID: "u1"}
	guard := OwnerOrAdmin{}

	tests := []struct {
		name      string
		requester Requester
		want      bool
	}{
		{"owner", Requester{ID: "u1", Role: RoleUser}, true},
		{"admin for foreign job", Requester{ID: "u2", Role: RoleAdmin}, true},
		{"other user", Requester{ID: "u2", Role: RoleUser}, false},
		{"empty identity", Requester{ID: "", Role: RoleUser}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := guard.Allows(tt.requester, job); got != tt.want {
				t.Errorf("Allows(%+v) = %v, want %v", tt.requester, got, tt.want)
			}
		})
	}
}

func TestOwnerOrAdminEmptyOwner(t *testing.T) {
	// A job with no owner must not be readable by an anonymous requester.
	job := &model.Job{ID: model.NewID(), OwnerID: ""}
	guard := OwnerOrAdmin{}
	if guard.Allows(Requester{ID: "", Role: RoleUser}, job) {
		t.Error("empty requester allowed on job with empty owner")
	}
}
