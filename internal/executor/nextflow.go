package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

const (
	workflowConfigFile = "workflow.config"
	nextflowPIDFile    = ".nextflow.pid"
)

// NextflowConfig configures the subprocess gateway. All paths and flags are
// injected here; the executor holds no package-level state.
type NextflowConfig struct {
	// Bin is the nextflow binary to invoke.
	Bin string
	// RunDir is the root directory for per-run launch state. Each run gets
	// RunDir/<run-name>/ holding its materialized config and pid file.
	RunDir string
	// Profile is passed as -profile when non-empty.
	Profile string
	// Env is appended to the inherited environment of every invocation.
	Env []string
}

// NextflowExecutor launches workflows by invoking the nextflow CLI as a
// background subprocess and reconciles status through `nextflow log`.
type NextflowExecutor struct {
	cfg    NextflowConfig
	logger *slog.Logger
}

// NewNextflowExecutor creates a subprocess executor with the given config.
func NewNextflowExecutor(cfg NextflowConfig, logger *slog.Logger) *NextflowExecutor {
	if cfg.Bin == "" {
		cfg.Bin = "nextflow"
	}
	return &NextflowExecutor{cfg: cfg, logger: logger}
}

// Name implements Executor.
func (n *NextflowExecutor) Name() string { return "nextflow" }

// Launch materializes the workflow config under the run directory and starts
// `nextflow run` in background mode. The run name doubles as the external
// reference; nextflow writes its pid file into the run directory, which is
// what Cancel later signals.
func (n *NextflowExecutor) Launch(ctx context.Context, spec LaunchSpec) (string, error) {
	runDir := filepath.Join(n.cfg.RunDir, spec.RunName)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", &LaunchError{Executor: n.Name(), Err: fmt.Errorf("create run dir: %w", err)}
	}

	configPath := filepath.Join(runDir, workflowConfigFile)
	if err := os.WriteFile(configPath, []byte(spec.Definition), 0o644); err != nil {
		return "", &LaunchError{Executor: n.Name(), Err: fmt.Errorf("write workflow config: %w", err)}
	}

	cmd := exec.CommandContext(ctx, n.cfg.Bin, n.runArgs(spec, configPath)...)
	cmd.Dir = runDir
	cmd.Env = append(os.Environ(), n.cfg.Env...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &LaunchError{
			Executor: n.Name(),
			Err:      fmt.Errorf("%w: %s", err, lastLine(out)),
		}
	}

	n.logger.Info("nextflow run launched", "run_name", spec.RunName, "work_dir", spec.WorkDir)
	return spec.RunName, nil
}

// runArgs builds the `nextflow run` argument list. Params are flattened to
// --key value pairs in sorted key order so invocations are deterministic.
func (n *NextflowExecutor) runArgs(spec LaunchSpec, configPath string) []string {
	args := []string{"-bg", "run", spec.WorkflowName,
		"-name", spec.RunName,
		"-c", configPath,
		"-work-dir", spec.WorkDir,
	}
	if n.cfg.Profile != "" {
		args = append(args, "-profile", n.cfg.Profile)
	}
	args = append(args, "--outdir", spec.OutputDir)

	keys := make([]string, 0, len(spec.Params))
	for k := range spec.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--"+k, fmt.Sprint(spec.Params[k]))
	}
	return args
}

// Query asks `nextflow log` for the run's status field and maps it onto the
// canonical enum.
func (n *NextflowExecutor) Query(ctx context.Context, externalRef string) (QueryResult, error) {
	cmd := exec.CommandContext(ctx, n.cfg.Bin, "log", externalRef, "-f", "status")
	cmd.Dir = filepath.Join(n.cfg.RunDir, externalRef)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return QueryResult{}, &QueryError{
			Executor: n.Name(),
			Ref:      externalRef,
			Err:      fmt.Errorf("%w: %s", err, lastLine(out)),
		}
	}

	raw := firstLine(out)
	if raw == "" {
		return QueryResult{}, &QueryError{
			Executor: n.Name(),
			Ref:      externalRef,
			Err:      fmt.Errorf("run %q reported no status", externalRef),
		}
	}
	return mapResult(raw), nil
}

// Cancel signals the background nextflow process recorded in the run's pid
// file. Nextflow traps the signal and terminates its tasks cooperatively.
func (n *NextflowExecutor) Cancel(ctx context.Context, externalRef string) error {
	pidPath := filepath.Join(n.cfg.RunDir, externalRef, nextflowPIDFile)
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return &CancelError{Executor: n.Name(), Ref: externalRef, Err: fmt.Errorf("read pid file: %w", err)}
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return &CancelError{Executor: n.Name(), Ref: externalRef, Err: fmt.Errorf("parse pid file: %w", err)}
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return &CancelError{Executor: n.Name(), Ref: externalRef, Err: err}
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return &CancelError{Executor: n.Name(), Ref: externalRef, Err: fmt.Errorf("signal pid %d: %w", pid, err)}
	}

	n.logger.Info("nextflow run signalled", "run_name", externalRef, "pid", pid)
	return nil
}

// firstLine returns the first non-empty trimmed line of out.
func firstLine(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// lastLine returns the last non-empty trimmed line of out, which is where
// nextflow prints its actual error.
func lastLine(out []byte) string {
	lines := strings.Split(string(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return "no output"
}
