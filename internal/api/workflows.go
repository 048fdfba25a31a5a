package api

import (
	"net/http"

	"github.com/arostrup/helmsman/internal/model"
)

// listWorkflowsResponse wraps the workflow catalog listing.
type listWorkflowsResponse struct {
	Workflows []*model.Workflow `json:"workflows"`
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		s.logger.Error("list workflows", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}

	if workflows == nil {
		workflows = []*model.Workflow{}
	}

	s.writeJSON(w, http.StatusOK, listWorkflowsResponse{Workflows: workflows})
}
