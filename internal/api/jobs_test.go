package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arostrup/helmsman/internal/executor"
	"github.com/arostrup/helmsman/internal/model"
)

// brokenExecutor fails every gateway call. Used to exercise the 502 paths.
type brokenExecutor struct {
	launchErr bool
}

func (b *brokenExecutor) Name() string { return "broken" }

func (b *brokenExecutor) Launch(context.Context, executor.LaunchSpec) (string, error) {
	if b.launchErr {
		return "", &executor.LaunchError{Executor: b.Name(), Err: errors.New("backend down")}
	}
	return "broken-ref", nil
}

func (b *brokenExecutor) Query(_ context.Context, ref string) (executor.QueryResult, error) {
	return executor.QueryResult{}, &executor.QueryError{Executor: b.Name(), Ref: ref, Err: errors.New("backend down")}
}

func (b *brokenExecutor) Cancel(_ context.Context, ref string) error {
	return &executor.CancelError{Executor: b.Name(), Ref: ref, Err: errors.New("backend down")}
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, userID, role string, body string) *http.Response {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJob(t *testing.T, resp *http.Response) *model.Job {
	t.Helper()
	var job model.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return &job
}

func submitBody(workflowID string) string {
	return fmt.Sprintf(`{"workflow_id":%q,"parameters":{"genome":"GRCh38"},"description":"test run"}`, workflowID)
}

func TestSubmitJob(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/v1/jobs", "alice", "", submitBody(testWorkflowID))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	job := decodeJob(t, resp)
	if job.ID == "" {
		t.Error("job ID is empty")
	}
	if job.OwnerID != "alice" {
		t.Errorf("OwnerID = %q, want alice", job.OwnerID)
	}
	if job.Status != model.StatusSubmitted {
		t.Errorf("Status = %q, want %q", job.Status, model.StatusSubmitted)
	}
	if job.Params["genome"] != "GRCh38" {
		t.Errorf("Params[genome] = %v, want GRCh38", job.Params["genome"])
	}
	if job.ExternalRef == "" {
		t.Error("ExternalRef is empty")
	}
}

func TestSubmitJobRequiresIdentity(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/v1/jobs", "", "", submitBody(testWorkflowID))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSubmitJobUnknownWorkflow(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/v1/jobs", "alice", "", submitBody("wf-nope"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSubmitJobMalformedParams(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := fmt.Sprintf(`{"workflow_id":%q,"parameters":["not","an","object"]}`, testWorkflowID)
	resp := doRequest(t, ts, http.MethodPost, "/v1/jobs", "alice", "", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSubmitJobLaunchFailure(t *testing.T) {
	srv := newTestServer(t, &brokenExecutor{launchErr: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/v1/jobs", "alice", "", submitBody(testWorkflowID))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}

	var body struct {
		Retryable bool `json:"retryable"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Retryable {
		t.Error("retryable = false, want true")
	}

	// launch failure must not leave a record behind
	list := doRequest(t, ts, http.MethodGet, "/v1/jobs", "alice", "", "")
	var listed listJobsResponse
	if err := json.NewDecoder(list.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listed.Total != 0 {
		t.Errorf("Total = %d, want 0", listed.Total)
	}
}

func TestGetJobReconciles(t *testing.T) {
	sim := executor.NewSimExecutor()
	sim.SetProgression([]model.Status{model.StatusCompleted})
	srv := newTestServer(t, sim)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	created := decodeJob(t, doRequest(t, ts, http.MethodPost, "/v1/jobs", "alice", "", submitBody(testWorkflowID)))

	resp := doRequest(t, ts, http.MethodGet, "/v1/jobs/"+created.ID, "alice", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	job := decodeJob(t, resp)
	if job.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want %q", job.Status, model.StatusCompleted)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt is nil after completion")
	}
}

func TestGetJobAuthorization(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	created := decodeJob(t, doRequest(t, ts, http.MethodPost, "/v1/jobs", "alice", "", submitBody(testWorkflowID)))

	if resp := doRequest(t, ts, http.MethodGet, "/v1/jobs/"+created.ID, "mallory", "", ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("other user status = %d, want 403", resp.StatusCode)
	}
	if resp := doRequest(t, ts, http.MethodGet, "/v1/jobs/"+created.ID, "root", "admin", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("admin status = %d, want 200", resp.StatusCode)
	}
	if resp := doRequest(t, ts, http.MethodGet, "/v1/jobs/does-not-exist", "alice", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", resp.StatusCode)
	}
}

func TestGetJobGatewayFailure(t *testing.T) {
	srv := newTestServer(t, &brokenExecutor{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	created := decodeJob(t, doRequest(t, ts, http.MethodPost, "/v1/jobs", "alice", "", submitBody(testWorkflowID)))

	resp := doRequest(t, ts, http.MethodGet, "/v1/jobs/"+created.ID, "alice", "", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestCancelJob(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	created := decodeJob(t, doRequest(t, ts, http.MethodPost, "/v1/jobs", "alice", "", submitBody(testWorkflowID)))

	resp := doRequest(t, ts, http.MethodDelete, "/v1/jobs/"+created.ID, "alice", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	job := decodeJob(t, resp)
	if job.Status != model.StatusCancelled {
		t.Errorf("Status = %q, want %q", job.Status, model.StatusCancelled)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt is nil after cancellation")
	}

	// cancelling again is an idempotent success
	again := doRequest(t, ts, http.MethodDelete, "/v1/jobs/"+created.ID, "alice", "", "")
	if again.StatusCode != http.StatusOK {
		t.Errorf("repeat cancel status = %d, want 200", again.StatusCode)
	}
}

func TestListJobsOwnerScoping(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, owner := range []string{"alice", "alice", "bob"} {
		resp := doRequest(t, ts, http.MethodPost, "/v1/jobs", owner, "", submitBody(testWorkflowID))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("submit for %s: status = %d", owner, resp.StatusCode)
		}
	}

	resp := doRequest(t, ts, http.MethodGet, "/v1/jobs", "alice", "", "")
	var mine listJobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&mine); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if mine.Total != 2 {
		t.Errorf("alice Total = %d, want 2", mine.Total)
	}

	resp = doRequest(t, ts, http.MethodGet, "/v1/jobs", "root", "admin", "")
	var all listJobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if all.Total != 3 {
		t.Errorf("admin Total = %d, want 3", all.Total)
	}
}

func TestListJobsLimitClamping(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	cases := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"?limit=500", 100},
		{"?limit=7", 7},
	}
	for _, tc := range cases {
		resp := doRequest(t, ts, http.MethodGet, "/v1/jobs"+tc.query, "alice", "", "")
		var body listJobsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode list %q: %v", tc.query, err)
		}
		if body.Limit != tc.want {
			t.Errorf("limit for %q = %d, want %d", tc.query, body.Limit, tc.want)
		}
	}
}

func TestListJobsInvalidPage(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodGet, "/v1/jobs?offset=-1", "alice", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListWorkflows(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodGet, "/v1/workflows", "", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body listWorkflowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode workflows: %v", err)
	}
	if len(body.Workflows) != 1 || body.Workflows[0].Name != "rnaseq" {
		t.Errorf("Workflows = %+v, want single rnaseq entry", body.Workflows)
	}
}

func TestStatsAdminOnly(t *testing.T) {
	srv := newTestServer(t, executor.NewSimExecutor())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	if resp := doRequest(t, ts, http.MethodGet, "/v1/stats", "alice", "", ""); resp.StatusCode != http.StatusForbidden {
		t.Errorf("user status = %d, want 403", resp.StatusCode)
	}

	resp := doRequest(t, ts, http.MethodGet, "/v1/stats", "root", "admin", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", resp.StatusCode)
	}

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if body.Total != 0 {
		t.Errorf("Total = %d, want 0", body.Total)
	}
}
