package executor

import (
	"errors"
	"strings"
	"testing"

	"github.com/arostrup/helmsman/internal/model"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Status
	}{
		{"queued", model.StatusSubmitted},
		{"pending", model.StatusSubmitted},
		{"SUBMITTED", model.StatusSubmitted},
		{"RUNNABLE", model.StatusSubmitted},
		{"STARTING", model.StatusSubmitted},
		{"running", model.StatusRunning},
		{"RUNNING", model.StatusRunning},
		{"in-progress", model.StatusRunning},
		{"SUCCEEDED", model.StatusCompleted},
		{"complete", model.StatusCompleted},
		{"completed", model.StatusCompleted},
		{"OK", model.StatusCompleted},
		{"FAILED", model.StatusFailed},
		{"error", model.StatusFailed},
		{"cancelled", model.StatusCancelled},
		{"canceled", model.StatusCancelled},
		{"terminated", model.StatusCancelled},
		{"killed", model.StatusCancelled},
		{" aborted ", model.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, known := MapStatus(tt.raw)
			if !known {
				t.Fatalf("MapStatus(%q) reported unknown", tt.raw)
			}
			if got != tt.want {
				t.Errorf("MapStatus(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMapStatusUnknownIsNeverTerminal(t *testing.T) {
	for _, raw := range []string{"", "ZOMBIE", "paused", "rescheduling"} {
		got, known := MapStatus(raw)
		if known {
			t.Errorf("MapStatus(%q) reported known", raw)
		}
		if got != model.StatusRunning {
			t.Errorf("MapStatus(%q) = %s, want RUNNING", raw, got)
		}
		if got.Terminal() {
			t.Errorf("MapStatus(%q) produced terminal status %s", raw, got)
		}
	}
}

func TestMapResultAttachesAdvisory(t *testing.T) {
	res := mapResult("ZOMBIE")
	if res.Status != model.StatusRunning {
		t.Errorf("Status = %s, want RUNNING", res.Status)
	}
	if res.Raw != "ZOMBIE" {
		t.Errorf("Raw = %q, want ZOMBIE", res.Raw)
	}
	if !strings.Contains(res.Message, "ZOMBIE") {
		t.Errorf("Message = %q, want it to name the raw status", res.Message)
	}

	known := mapResult("running")
	if known.Message != "" {
		t.Errorf("Message = %q for recognized status, want empty", known.Message)
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("connection refused")

	var launchErr error = &LaunchError{Executor: "awsbatch", Err: cause}
	if !errors.Is(launchErr, cause) {
		t.Error("LaunchError does not unwrap to cause")
	}
	var le *LaunchError
	if !errors.As(launchErr, &le) {
		t.Error("errors.As failed for LaunchError")
	}

	var queryErr error = &QueryError{Executor: "nextflow", Ref: "run-1", Err: cause}
	if !errors.Is(queryErr, cause) {
		t.Error("QueryError does not unwrap to cause")
	}

	var cancelErr error = &CancelError{Executor: "sim", Ref: "run-1", Err: cause}
	if !errors.Is(cancelErr, cause) {
		t.Error("CancelError does not unwrap to cause")
	}
}

func TestRegistryRegisterResolve(t *testing.T) {
	reg := NewRegistry()
	sim := NewSimExecutor()
	reg.Register("sim", sim)

	got, err := reg.Resolve("sim")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != sim {
		t.Error("Resolve returned a different executor")
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Resolve("awsbatch"); err == nil {
		t.Error("Resolve of unregistered profile succeeded")
	}
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("sim", NewSimExecutor())
	reg.Register("awsbatch", NewSimExecutor())
	reg.Register("nextflow", NewSimExecutor())

	got := reg.List()
	want := []string{"awsbatch", "nextflow", "sim"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
