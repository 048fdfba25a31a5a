package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/arostrup/helmsman/internal/executor"
	"github.com/arostrup/helmsman/internal/model"
	"github.com/arostrup/helmsman/internal/orchestrator"
)

const maxBodySize = 1 << 20 // 1 MB

// submitJobRequest is the JSON body for POST /v1/jobs.
type submitJobRequest struct {
	WorkflowID  string          `json:"workflow_id"`
	Parameters  json.RawMessage `json:"parameters"`
	Description string          `json:"description"`
}

// listJobsResponse wraps the paginated list response.
type listJobsResponse struct {
	Jobs   []*model.Job `json:"jobs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	var body submitJobRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.WorkflowID == "" {
		s.writeError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}

	job, err := s.orch.Submit(r.Context(), orchestrator.SubmitRequest{
		Requester:   req,
		WorkflowID:  body.WorkflowID,
		RawParams:   body.Parameters,
		Description: body.Description,
	})
	if err != nil {
		s.writeOrchestratorError(w, "submit job", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	job, err := s.orch.GetStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeOrchestratorError(w, "get job", err)
		return
	}

	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	limit := parseIntQuery(r, "limit", 0)
	offset := parseIntQuery(r, "offset", 0)

	jobs, total, err := s.orch.List(r.Context(), req, offset, limit)
	if err != nil {
		s.writeOrchestratorError(w, "list jobs", err)
		return
	}

	if jobs == nil {
		jobs = []*model.Job{}
	}
	if limit <= 0 {
		limit = orchestrator.DefaultPageSize
	} else if limit > orchestrator.MaxPageSize {
		limit = orchestrator.MaxPageSize
	}

	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	job, err := s.orch.Cancel(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeOrchestratorError(w, "cancel job", err)
		return
	}

	s.writeJSON(w, http.StatusOK, job)
}

// writeOrchestratorError maps orchestrator and executor errors onto HTTP
// status codes. Gateway failures surface as 502 with a retryable flag so
// clients know the job record itself is intact.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, op string, err error) {
	var (
		invalidParams *orchestrator.InvalidParamsError
		launchErr     *executor.LaunchError
		queryErr      *executor.QueryError
		cancelErr     *executor.CancelError
	)

	switch {
	case errors.Is(err, orchestrator.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, orchestrator.ErrWorkflowNotFound):
		s.writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, orchestrator.ErrForbidden):
		s.writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, orchestrator.ErrInvalidPage):
		s.writeError(w, http.StatusBadRequest, "invalid pagination parameters")
	case errors.As(err, &invalidParams):
		s.writeError(w, http.StatusBadRequest, invalidParams.Error())
	case errors.As(err, &launchErr):
		s.logger.Error(op, "error", err)
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     "failed to launch job on the execution backend",
			"retryable": true,
		})
	case errors.As(err, &queryErr), errors.As(err, &cancelErr):
		s.logger.Error(op, "error", err)
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     "execution backend is unavailable, job record unchanged",
			"retryable": true,
		})
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
