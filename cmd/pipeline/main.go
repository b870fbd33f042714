package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/infrastructure"
	"github.com/cooper437/commodities-research/internal/operations"
)

func main() {
	steps := flag.String("steps", "", "comma list of step ids to run (default full pipeline)")
	baseDir := flag.String("base", "", "workspace base directory (defaults to config or the executable dir)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}
	if *baseDir != "" {
		cfg.Data.BaseDir = *baseDir
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		slog.Error("Failed to resolve workspace paths", "error", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	cfg.Logging.FilePath = paths.GetLogPath("pipeline.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	registry := operations.NewRegistry()
	manager := operations.NewManager(nil, registry, operations.NewConfig(), nil, logger)
	defer manager.Stop()

	if err := operations.RegisterResearchSteps(registry, cfg, paths, logger, operations.StepOptions{
		StatusBroadcaster: manager.Broadcaster(),
	}); err != nil {
		logger.Error("Failed to register pipeline steps", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var request *operations.OperationRequest
	if ids := parseSteps(*steps); len(ids) > 0 {
		for _, id := range ids {
			if !registry.Has(id) {
				logger.Error("Unknown pipeline step",
					slog.String("step", id),
					slog.String("available", strings.Join(registry.ListIDs(), ", ")))
				os.Exit(1)
			}
		}
		request = &operations.OperationRequest{Steps: ids}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting research pipeline",
		slog.String("base_dir", paths.BaseDir),
		slog.String("steps", *steps))

	response, err := manager.Execute(ctx, request)
	if err != nil {
		logger.Error("Pipeline failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	for _, id := range registry.ListIDs() {
		stepState, ok := response.Steps[id]
		if !ok {
			continue
		}
		attrs := []any{
			slog.String("step", id),
			slog.String("status", string(stepState.Status)),
		}
		if stepState.Error != nil {
			attrs = append(attrs, slog.String("error", stepState.Error.Error()))
		}
		logger.Info("Step finished", attrs...)
	}

	logger.Info("Pipeline finished",
		slog.String("operation_id", response.ID),
		slog.String("status", string(response.Status)),
		slog.Duration("duration", response.Duration))

	if response.Status != operations.OperationStatusCompleted {
		os.Exit(1)
	}
}

// parseSteps splits a comma list of step ids, dropping blanks
func parseSteps(value string) []string {
	var ids []string
	for _, part := range strings.Split(value, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
