package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cooper437/commodities-research/internal/calendar"
	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/infrastructure"
	"github.com/cooper437/commodities-research/internal/settlement"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

func main() {
	interval := flag.String("interval", "", "lookback horizon: overnight, weekly, monthly, annualy, or a comma list (default all)")
	openType := flag.String("open-type", "", "open mode: true_open, sliding_open, or a comma list (default both)")
	temporal := flag.Bool("temporal", false, "also build the temporal settlement split")
	prefix := flag.String("prefix", "", "contract filename prefix (defaults to the configured symbol prefix)")
	baseDir := flag.String("base", "", "workspace base directory (defaults to config or the executable dir)")
	flag.Parse()

	openTypes, err := parseOpenTypes(*openType)
	if err != nil {
		slog.Error("Invalid open type", "error", err)
		os.Exit(1)
	}
	intervals, err := parseIntervals(*interval)
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

	cfg.Logging.FilePath = paths.GetLogPath("settlement-changes.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	cal, err := calendar.Load(paths.TradingDaysCSV)
	if err != nil {
		logger.Error("Trading day calendar unavailable",
			slog.String("path", paths.TradingDaysCSV),
			slog.String("error", err.Error()),
			slog.String("hint", "run tradingdays first to build the calendar"))
		os.Exit(1)
	}

	logger.Info("Analyzing settlement gaps",
		slog.String("settlement_dir", paths.SettlementDir),
		slog.String("open_types", *openType),
		slog.String("intervals", *interval),
		slog.Bool("temporal", *temporal))

	ctx := context.Background()
	rows, err := settlement.NewChangeBuilder(paths, cal, *prefix).Run(ctx, openTypes, intervals)
	if err != nil {
		logger.Error("Settlement change analysis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	for dataset, count := range rows {
		logger.Info("Settlement change dataset written",
			slog.String("dataset", dataset),
			slog.Int("rows", count))
	}

	if *temporal {
		temporalRows, err := settlement.NewTemporalBuilder(paths, cfg.COT).Run(ctx, openTypes, intervals)
		if err != nil {
			logger.Error("Temporal settlement split failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Temporal settlement split written",
			slog.Int("rows", temporalRows),
			slog.String("output", paths.TemporalSettlementCSV))
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

// parseIntervals converts a comma list of lookback horizon names. Empty
// means every horizon.
func parseIntervals(value string) ([]domain.LookbackInterval, error) {
	if strings.TrimSpace(value) == "" {
		return domain.AllLookbackIntervals(), nil
	}
	var intervals []domain.LookbackInterval
	for _, name := range strings.Split(value, ",") {
		interval := domain.LookbackInterval(strings.TrimSpace(name))
		if !interval.Valid() {
			return nil, fmt.Errorf("unknown interval %q (expected overnight, weekly, monthly, or annualy)", name)
		}
		intervals = append(intervals, interval)
	}
	return intervals, nil
}
