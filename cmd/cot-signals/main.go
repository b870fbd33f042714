package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/cot"
	"github.com/cooper437/commodities-research/internal/infrastructure"
)

func main() {
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

	cfg.Logging.FilePath = paths.GetLogPath("cot-signals.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	logger.Info("Correlating CoT positioning with intraday opens",
		slog.String("cot_dir", paths.COTDir),
		slog.Int("min_dte", cfg.COT.MinDTE),
		slog.Int("max_dte", cfg.COT.MaxDTE))

	rows, err := cot.NewAnalyzer(paths, cfg.COT).Run(context.Background())
	if err != nil {
		logger.Error("CoT signal analysis failed",
			slog.String("error", err.Error()),
			slog.String("hint", "run open-window first to build the enriched datasets"))
		os.Exit(1)
	}

	logger.Info("CoT signal dataset written",
		slog.Int("rows", rows),
		slog.String("output", paths.COTSignalsCSV))
}
