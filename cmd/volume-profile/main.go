package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/infrastructure"
	"github.com/cooper437/commodities-research/internal/volume"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

func main() {
	openType := flag.String("open-type", "", "open mode: true_open, sliding_open, or a comma list (default both)")
	workbook := flag.Bool("workbook", false, "also assemble the research workbook from every derived dataset")
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

	cfg.Logging.FilePath = paths.GetLogPath("volume-profile.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	logger.Info("Profiling traded volume",
		slog.String("open_types", *openType),
		slog.Bool("workbook", *workbook))

	rows, err := volume.NewProfiler(paths, cfg.Enrichment).Run(context.Background(), modes)
	if err != nil {
		logger.Error("Volume profiling failed",
			slog.String("error", err.Error()),
			slog.String("hint", "run open-window first to build the enriched datasets"))
		os.Exit(1)
	}
	for dataset, count := range rows {
		logger.Info("Volume profile written",
			slog.String("dataset", dataset),
			slog.Int("rows", count))
	}

	if *workbook {
		path, err := exporter.NewResearchExporter(paths).Export(domain.AllOpenTypes())
		if err != nil {
			logger.Error("Workbook assembly failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Research workbook written", slog.String("output", path))
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
