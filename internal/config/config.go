package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultListenAddr      = ":8080"
	defaultDBPath          = "helmsman.db"
	defaultExecutorProfile = "sim"
	defaultArtifactBucket  = "helmsman-artifacts"
	defaultExecutorTimeout = 30 * time.Second
	defaultNextflowRunDir  = "runs"

	envListenAddr      = "HELMSMAN_LISTEN_ADDR"
	envDBPath          = "HELMSMAN_DB_PATH"
	envLogLevel        = "HELMSMAN_LOG_LEVEL"
	envExecutorProfile = "HELMSMAN_EXECUTOR"
	envExecutorTimeout = "HELMSMAN_EXECUTOR_TIMEOUT"
	envArtifactBucket  = "HELMSMAN_ARTIFACT_BUCKET"
	envCatalogPath     = "HELMSMAN_CATALOG_PATH"
	envNextflowBin     = "HELMSMAN_NEXTFLOW_BIN"
	envNextflowRunDir  = "HELMSMAN_NEXTFLOW_RUN_DIR"
	envNextflowProfile = "HELMSMAN_NEXTFLOW_PROFILE"
	envAWSRegion       = "HELMSMAN_AWS_REGION"
	envBatchQueue      = "HELMSMAN_BATCH_QUEUE"
	envBatchJobDef     = "HELMSMAN_BATCH_JOB_DEFINITION"
)

// Config holds application configuration loaded from environment variables.
// Executor settings live here rather than in package-level state so every
// gateway receives its configuration explicitly at construction.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// ExecutorProfile selects the active gateway: sim, nextflow, or awsbatch.
	ExecutorProfile string
	ExecutorTimeout time.Duration
	ArtifactBucket  string

	// CatalogPath points at a workflow catalog YAML; empty means the
	// built-in catalog.
	CatalogPath string

	NextflowBin     string
	NextflowRunDir  string
	NextflowProfile string

	AWSRegion          string
	BatchQueue         string
	BatchJobDefinition string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DBPath:          defaultDBPath,
		LogLevel:        slog.LevelInfo,
		ExecutorProfile: defaultExecutorProfile,
		ExecutorTimeout: defaultExecutorTimeout,
		ArtifactBucket:  defaultArtifactBucket,
		NextflowRunDir:  defaultNextflowRunDir,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envExecutorProfile); v != "" {
		cfg.ExecutorProfile = v
	}
	if v := os.Getenv(envExecutorTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ExecutorTimeout = d
		}
	}
	if v := os.Getenv(envArtifactBucket); v != "" {
		cfg.ArtifactBucket = v
	}
	if v := os.Getenv(envCatalogPath); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv(envNextflowBin); v != "" {
		cfg.NextflowBin = v
	}
	if v := os.Getenv(envNextflowRunDir); v != "" {
		cfg.NextflowRunDir = v
	}
	if v := os.Getenv(envNextflowProfile); v != "" {
		cfg.NextflowProfile = v
	}
	if v := os.Getenv(envAWSRegion); v != "" {
		cfg.AWSRegion = v
	}
	if v := os.Getenv(envBatchQueue); v != "" {
		cfg.BatchQueue = v
	}
	if v := os.Getenv(envBatchJobDef); v != "" {
		cfg.BatchJobDefinition = v
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
