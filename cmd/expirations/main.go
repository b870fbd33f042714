package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/expirations"
	"github.com/cooper437/commodities-research/internal/infrastructure"
)

func main() {
	prefix := flag.String("prefix", "", "contract filename prefix filter (empty scans every contract)")
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

	cfg.Logging.FilePath = paths.GetLogPath("expirations.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	logger.Info("Deriving contract expirations",
		slog.String("futures_dir", paths.FuturesDir),
		slog.String("prefix", *prefix))

	index, err := expirations.NewBuilder(paths, *prefix).Run(context.Background())
	if err != nil {
		logger.Error("Expiration index failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Expiration index written",
		slog.Int("contracts", index.Len()),
		slog.String("output", paths.ExpirationsCSV))
}
