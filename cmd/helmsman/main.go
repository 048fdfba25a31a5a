package main

import (
	"context"
	"log"
	"os"

	"github.com/arostrup/helmsman/internal/api"
	"github.com/arostrup/helmsman/internal/auth"
	"github.com/arostrup/helmsman/internal/catalog"
	"github.com/arostrup/helmsman/internal/config"
	"github.com/arostrup/helmsman/internal/executor"
	"github.com/arostrup/helmsman/internal/orchestrator"
	"github.com/arostrup/helmsman/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("helmsman: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"executor", cfg.ExecutorProfile,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	entries := catalog.Default()
	if cfg.CatalogPath != "" {
		entries, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			log.Fatalf("failed to load workflow catalog: %v", err)
		}
	}
	seeded, err := catalog.Seed(ctx, db, entries)
	if err != nil {
		log.Fatalf("failed to seed workflow catalog: %v", err)
	}
	if seeded > 0 {
		logger.Info("workflow catalog seeded", "workflows", seeded)
	}

	registry := executor.NewRegistry()
	registry.Register("sim", executor.NewSimExecutor())
	if cfg.NextflowBin != "" {
		registry.Register("nextflow", executor.NewNextflowExecutor(executor.NextflowConfig{
			Bin:     cfg.NextflowBin,
			RunDir:  cfg.NextflowRunDir,
			Profile: cfg.NextflowProfile,
		}, logger))
	}
	if cfg.BatchQueue != "" {
		batchExec, err := executor.NewBatchExecutor(ctx, executor.BatchConfig{
			Region:        cfg.AWSRegion,
			JobQueue:      cfg.BatchQueue,
			JobDefinition: cfg.BatchJobDefinition,
		}, logger)
		if err != nil {
			log.Fatalf("failed to build AWS Batch executor: %v", err)
		}
		registry.Register("awsbatch", batchExec)
	}
	logger.Info("executors registered", "profiles", registry.List())

	exec, err := registry.Resolve(cfg.ExecutorProfile)
	if err != nil {
		log.Fatalf("failed to resolve executor: %v", err)
	}

	orch := orchestrator.New(db, exec, auth.OwnerOrAdmin{},
		orchestrator.Locations{Bucket: cfg.ArtifactBucket},
		logger,
		orchestrator.WithCallTimeout(cfg.ExecutorTimeout),
	)

	srv := api.NewServer(cfg.ListenAddr, db, orch, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
