package api

import (
	"net/http"

	"github.com/arostrup/helmsman/internal/model"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int                  `json:"total"`
	ByStatus      map[model.Status]int `json:"by_status"`
	ByWorkflow    map[string]int       `json:"by_workflow"`
	AvgDurationMS float64              `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	stats, err := s.orch.Stats(r.Context(), req)
	if err != nil {
		s.writeOrchestratorError(w, "get job stats", err)
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByWorkflow:    stats.CountByWorkflow,
		AvgDurationMS: stats.AvgDurationMS,
	})
}
