package calendar

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/files"
	"github.com/cooper437/commodities-research/internal/marketdata"
)

var csvHeader = []string{"DateTime"}

// Builder derives the trading-day calendar from the intraday bar files.
type Builder struct {
	paths  *config.Paths
	prefix string
}

// NewBuilder creates a calendar builder over the bar files whose names
// start with prefix.
func NewBuilder(paths *config.Paths, prefix string) *Builder {
	return &Builder{paths: paths, prefix: prefix}
}

// Build unions the distinct bar dates of every matching contract file
// into one calendar.
func (b *Builder) Build(ctx context.Context) (*Calendar, error) {
	discovery := files.NewDiscovery(b.paths.FuturesDir)
	csvFiles, err := discovery.FindCSVFilesWithPrefix(b.paths.FuturesDir, b.prefix)
	if err != nil {
		return nil, fmt.Errorf("scan futures directory: %w", err)
	}

	var dates []time.Time
	for _, file := range csvFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		contract, err := marketdata.LoadContractBars(file.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Contract file disappeared during scan", slog.String("file", file.Name))
				continue
			}
			return nil, err
		}
		dates = append(dates, contract.TradingDates()...)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no trading days found under %s with prefix %q", b.paths.FuturesDir, b.prefix)
	}

	cal := New(dates)
	slog.Info("Built trading-day calendar",
		slog.String("prefix", b.prefix),
		slog.Int("contracts", len(csvFiles)),
		slog.Int("days", cal.Len()))
	return cal, nil
}

// Run builds the calendar and writes the unique trading days dataset.
func (b *Builder) Run(ctx context.Context) (*Calendar, error) {
	cal, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	records := make([][]string, 0, cal.Len())
	for _, day := range cal.Days() {
		records = append(records, []string{day.Format("2006-01-02")})
	}
	writer := exporter.NewCSVWriter(b.paths)
	if err := writer.WriteSimpleCSV(b.paths.TradingDaysCSV, csvHeader, records); err != nil {
		return nil, fmt.Errorf("write trading days: %w", err)
	}
	return cal, nil
}
