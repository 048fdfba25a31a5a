package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/arostrup/helmsman/internal/model"
)

// defaultProgression is the status sequence a simulated run walks through,
// one step per Query. The final element repeats once reached.
var defaultProgression = []model.Status{
	model.StatusSubmitted,
	model.StatusRunning,
	model.StatusRunning,
	model.StatusCompleted,
}

type simRun struct {
	step      int
	cancelled bool
}

// SimExecutor is an in-memory executor for development and tests. Runs
// advance through a scripted status progression on each Query; Cancel pins
// them to CANCELLED.
type SimExecutor struct {
	mu          sync.Mutex
	runs        map[string]*simRun
	progression []model.Status
}

// NewSimExecutor creates a simulation executor with the default progression.
func NewSimExecutor() *SimExecutor {
	return &SimExecutor{
		runs:        make(map[string]*simRun),
		progression: defaultProgression,
	}
}

// SetProgression replaces the status sequence for subsequently queried runs.
func (s *SimExecutor) SetProgression(p []model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progression = p
}

// Name implements Executor.
func (s *SimExecutor) Name() string { return "sim" }

// Launch registers a simulated run. The reference is derived from the run
// name so it is deterministic.
func (s *SimExecutor) Launch(_ context.Context, spec LaunchSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := "sim-" + spec.RunName
	s.runs[ref] = &simRun{}
	return ref, nil
}

// Query advances the run one step along the progression and reports the
// resulting status.
func (s *SimExecutor) Query(_ context.Context, externalRef string) (QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[externalRef]
	if !ok {
		return QueryResult{}, &QueryError{
			Executor: s.Name(),
			Ref:      externalRef,
			Err:      fmt.Errorf("unknown run %q", externalRef),
		}
	}
	if run.cancelled {
		return QueryResult{Status: model.StatusCancelled, Raw: "cancelled"}, nil
	}

	status := s.progression[min(run.step, len(s.progression)-1)]
	run.step++
	return QueryResult{Status: status, Raw: string(status)}, nil
}

// Cancel pins the run to CANCELLED.
func (s *SimExecutor) Cancel(_ context.Context, externalRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[externalRef]
	if !ok {
		return &CancelError{
			Executor: s.Name(),
			Ref:      externalRef,
			Err:      fmt.Errorf("unknown run %q", externalRef),
		}
	}
	run.cancelled = true
	return nil
}
