package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/infrastructure"
	"github.com/cooper437/commodities-research/internal/temporal"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

func main() {
	interval := flag.String("interval", "", "calendar grouping: day_of_week, month, year, or a comma list (default all)")
	openType := flag.String("open-type", "", "open mode: true_open, sliding_open, or a comma list (default both)")
	baseDir := flag.String("base", "", "workspace base directory (defaults to config or the executable dir)")
	flag.Parse()

	openTypes, err := parseOpenTypes(*openType)
	if err != nil {
		slog.Error("Invalid open type", "error", err)
		os.Exit(1)
	}
	intervals, err := parseTemporalIntervals(*interval)
	if err != nil {
		slog.Error("Invalid interval", "error", err)
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

	cfg.Logging.FilePath = paths.GetLogPath("temporal-report.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	logger.Info("Building temporal analytics",
		slog.String("intervals", *interval),
		slog.String("open_types", *openType))

	rows, err := temporal.NewAnalyzer(paths, cfg.COT).Run(context.Background(), openTypes, intervals)
	if err != nil {
		logger.Error("Temporal analytics failed",
			slog.String("error", err.Error()),
			slog.String("hint", "run open-window first to build the enriched datasets"))
		os.Exit(1)
	}

	for dataset, count := range rows {
		logger.Info("Temporal dataset written",
			slog.String("dataset", dataset),
			slog.Int("rows", count))
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

// parseTemporalIntervals converts a comma list of calendar grouping names.
// Empty means every grouping.
func parseTemporalIntervals(value string) ([]domain.TemporalInterval, error) {
	if strings.TrimSpace(value) == "" {
		return domain.AllTemporalIntervals(), nil
	}
	var intervals []domain.TemporalInterval
	for _, name := range strings.Split(value, ",") {
		interval := domain.TemporalInterval(strings.TrimSpace(name))
		if !interval.Valid() {
			return nil, fmt.Errorf("unknown interval %q (expected day_of_week, month, or year)", name)
		}
		intervals = append(intervals, interval)
	}
	return intervals, nil
}
