package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/expirations"
	"github.com/cooper437/commodities-research/internal/infrastructure"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

func main() {
	openType := flag.String("open-type", "", "open mode: true_open, sliding_open, or a comma list (default both)")
	baseDir := flag.String("base", "", "workspace base directory (defaults to config or the executable dir)")
	flag.Parse()

	modes, err := parseOpenTypes(*openType)
	if err != nil {
		slog.Error("Invalid open type", "error", err)
		os.Exit(1)
	}

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

	cfg.Logging.FilePath = paths.GetLogPath("openwindow.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	index, err := expirations.Load(paths.ExpirationsCSV)
	if err != nil {
		logger.Error("Expiration index unavailable",
			slog.String("path", paths.ExpirationsCSV),
			slog.String("error", err.Error()),
			slog.String("hint", "run expirations first to build the index"))
		os.Exit(1)
	}

	enricher, err := openwindow.NewEnricher(paths, index, cfg.Enrichment)
	if err != nil {
		logger.Error("Enricher setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Enriching open window bars",
		slog.String("futures_dir", paths.FuturesDir),
		slog.Int("window_minutes", cfg.Enrichment.WindowMinutes),
		slog.String("modes", *openType))

	rows, err := enricher.Run(context.Background(), modes)
	if err != nil {
		logger.Error("Open window enrichment failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	for mode, count := range rows {
		logger.Info("Enriched dataset written",
			slog.String("open_type", mode.String()),
			slog.Int("rows", count),
			slog.String("output", paths.EnrichedCSV(mode.String())))
	}
}

// parseOpenTypes converts a comma list of open mode names. Empty means
// both modes.
func parseOpenTypes(value string) ([]domain.OpenType, error) {
	if strings.TrimSpace(value) == "" {
		return domain.AllOpenTypes(), nil
	}
	var modes []domain.OpenType
	for _, name := range strings.Split(value, ",") {
		mode := domain.OpenType(strings.TrimSpace(name))
		if !mode.Valid() {
			return nil, fmt.Errorf("unknown open type %q (expected true_open or sliding_open)", name)
		}
		modes = append(modes, mode)
	}
	return modes, nil
}
