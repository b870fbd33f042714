package openwindow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/expirations"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/files"
	"github.com/cooper437/commodities-research/internal/marketdata"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

// Enricher writes the enriched open-window datasets for every contract
// matching the configured symbol prefix.
type Enricher struct {
	paths   *config.Paths
	index   *expirations.Index
	window  Window
	prefix  string
	workers int
}

// NewEnricher creates an enricher joining expirations from index.
func NewEnricher(paths *config.Paths, index *expirations.Index, cfg config.EnrichmentConfig) (*Enricher, error) {
	schedule, err := NewSchedule(cfg)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Enricher{
		paths:   paths,
		index:   index,
		window:  NewWindow(schedule, cfg.WindowMinutes),
		prefix:  cfg.SymbolPrefix,
		workers: workers,
	}, nil
}

// Run enriches every matching contract for the given open modes and
// writes one dataset per mode, rows in filename order. It returns the
// rows written per mode.
func (e *Enricher) Run(ctx context.Context, modes []domain.OpenType) (map[domain.OpenType]int, error) {
	discovery := files.NewDiscovery(e.paths.FuturesDir)
	csvFiles, err := discovery.FindCSVFilesWithPrefix(e.paths.FuturesDir, e.prefix)
	if err != nil {
		return nil, fmt.Errorf("scan futures directory: %w", err)
	}
	if len(csvFiles) == 0 {
		return nil, fmt.Errorf("no contract files under %s match prefix %q", e.paths.FuturesDir, e.prefix)
	}

	slog.Info("Enriching contracts",
		slog.Int("contracts", len(csvFiles)),
		slog.Int("workers", e.workers),
		slog.String("prefix", e.prefix))

	// Contracts are independent, so they are enriched concurrently and
	// written back in filename order afterwards.
	results := make([]map[domain.OpenType][]EnrichedBar, len(csvFiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, file := range csvFiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			contract, err := marketdata.LoadContractBars(file.Path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					slog.Warn("Contract file disappeared during enrichment", slog.String("file", file.Name))
					return nil
				}
				return err
			}
			perMode := make(map[domain.OpenType][]EnrichedBar, len(modes))
			for _, mode := range modes {
				bars, err := e.window.Enrich(contract, e.index, mode)
				if err != nil {
					return err
				}
				perMode[mode] = bars
			}
			results[i] = perMode
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	writer := exporter.NewCSVWriter(e.paths)
	rows := make(map[domain.OpenType]int, len(modes))
	for _, mode := range modes {
		stream, err := writer.CreateStreamWriter(e.paths.EnrichedCSV(string(mode)), domain.EnrichedBarColumns())
		if err != nil {
			return nil, err
		}
		for _, result := range results {
			for _, bar := range result[mode] {
				if err := stream.WriteRecord(bar.Record()); err != nil {
					stream.Close()
					return nil, fmt.Errorf("write enriched bar: %w", err)
				}
			}
		}
		if err := stream.Close(); err != nil {
			return nil, err
		}

		rows[mode] = stream.Rows()
		slog.Info("Enriched dataset written",
			slog.String("open_type", string(mode)),
			slog.Int("rows", rows[mode]))
	}
	return rows, nil
}
