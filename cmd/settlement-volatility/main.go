package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/infrastructure"
	"github.com/cooper437/commodities-research/internal/settlement"
)

func main() {
	prefix := flag.String("prefix", "", "contract filename prefix (defaults to the configured symbol prefix)")
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
	if *prefix == "" {
		*prefix = cfg.Enrichment.SymbolPrefix
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

	cfg.Logging.FilePath = paths.GetLogPath("settlement-volatility.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	logger.Info("Summarising settlement volatility",
		slog.String("settlement_dir", paths.SettlementDir),
		slog.String("prefix", *prefix))

	rows, err := settlement.NewVolatilityBuilder(paths, *prefix).Run(context.Background())
	if err != nil {
		logger.Error("Settlement volatility failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Settlement volatility written",
		slog.Int("contracts", rows),
		slog.String("output", paths.SettlementVolatilityCSV))
}
