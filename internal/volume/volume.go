// Package volume profiles traded volume across the open window and
// across contract maturity: how activity distributes over the minutes
// after the open and over days-to-expiration buckets.
package volume

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/internal/stats"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

// DTE buckets are ten days wide, matching the granularity the open-bar
// coverage was originally surveyed at.
const dteBucketWidth = 10

var minuteHeader = []string{
	domain.ColOpenType,
	domain.ColOpenMinutesOffset,
	"Bars",
	"Total Volume",
	"Mean Volume",
	"Normalized Mean Volume",
}

var dteHeader = []string{
	domain.ColOpenType,
	"DTE Bucket Start",
	"DTE Bucket End",
	"Bars",
	"Total Volume",
	"Mean Volume",
	"Normalized Mean Volume",
}

// MinuteRow is one open type's volume profile at a single open-minute
// offset. Mean and Normalized are NaN when the offset saw no bars or
// the normalization range is degenerate.
type MinuteRow struct {
	OpenType   domain.OpenType
	Offset     int
	Bars       int
	Total      int64
	Mean       float64
	Normalized float64
}

// Record renders the row as a CSV record.
func (r MinuteRow) Record() []string {
	return []string{
		r.OpenType.String(),
		strconv.Itoa(r.Offset),
		strconv.Itoa(r.Bars),
		exporter.FormatInt(r.Total),
		statCell(r.Mean),
		normalizedCell(r.Normalized),
	}
}

// BucketRow is one open type's volume profile over a days-to-expiration
// bucket [Start, End].
type BucketRow struct {
	OpenType   domain.OpenType
	Start      int
	End        int
	Bars       int
	Total      int64
	Mean       float64
	Normalized float64
}

// Record renders the row as a CSV record.
func (r BucketRow) Record() []string {
	return []string{
		r.OpenType.String(),
		strconv.Itoa(r.Start),
		strconv.Itoa(r.End),
		strconv.Itoa(r.Bars),
		exporter.FormatInt(r.Total),
		statCell(r.Mean),
		normalizedCell(r.Normalized),
	}
}

func statCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return exporter.FormatStat(v)
}

// normalizedCell renders a normalized share rounded half-up to four
// decimals, blank when the share is undefined.
func normalizedCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return exporter.FormatStat(stats.RoundHalfUp(v, 4))
}

// Profiler builds the volume distribution datasets from the enriched
// open-window bars. Unlike the signal tables it keeps every DTE, since
// maturity coverage is exactly what the DTE profile measures.
type Profiler struct {
	paths  *config.Paths
	window int
}

// NewProfiler creates a volume profiler. The enrichment settings
// supply the open window length, which bounds the offset domain.
func NewProfiler(paths *config.Paths, cfg config.EnrichmentConfig) *Profiler {
	return &Profiler{paths: paths, window: cfg.WindowMinutes}
}

// Run writes the volume-by-open-minute and volume-by-DTE datasets for
// the given open types. It returns rows written keyed by dataset stem.
func (p *Profiler) Run(ctx context.Context, openTypes []domain.OpenType) (map[string]int, error) {
	var minuteRecords, dteRecords [][]string
	for _, openType := range openTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !openType.Valid() {
			return nil, fmt.Errorf("unknown open type %q", openType)
		}
		bars, err := openwindow.LoadEnrichedBars(p.paths.EnrichedCSV(openType.String()))
		if err != nil {
			return nil, err
		}

		minuteRows, err := p.minuteProfile(openType, bars)
		if err != nil {
			return nil, err
		}
		for _, row := range minuteRows {
			minuteRecords = append(minuteRecords, row.Record())
		}

		bucketRows, err := dteProfile(openType, bars)
		if err != nil {
			return nil, err
		}
		for _, row := range bucketRows {
			dteRecords = append(dteRecords, row.Record())
		}
	}

	minuteCount, err := p.writeDataset(p.paths.VolumeByMinuteCSV, minuteHeader, minuteRecords)
	if err != nil {
		return nil, err
	}
	slog.Info("Volume profile written",
		slog.String("dataset", "volume_by_open_minute"), slog.Int("rows", minuteCount))

	dteCount, err := p.writeDataset(p.paths.VolumeByDTECSV, dteHeader, dteRecords)
	if err != nil {
		return nil, err
	}
	slog.Info("Volume profile written",
		slog.String("dataset", "volume_by_dte"), slog.Int("rows", dteCount))

	return map[string]int{
		"volume_by_open_minute": minuteCount,
		"volume_by_dte":         dteCount,
	}, nil
}

func (p *Profiler) writeDataset(path string, header []string, records [][]string) (int, error) {
	writer := exporter.NewCSVWriter(p.paths)
	stream, err := writer.CreateStreamWriter(path, header)
	if err != nil {
		return 0, err
	}
	for _, record := range records {
		if err := stream.WriteRecord(record); err != nil {
			stream.Close()
			return 0, fmt.Errorf("write volume profile row: %w", err)
		}
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}
	return stream.Rows(), nil
}

// minuteProfile aggregates volume per open-minute offset, emitting
// every offset of the window whether or not it traded.
func (p *Profiler) minuteProfile(openType domain.OpenType, bars []openwindow.EnrichedBar) ([]MinuteRow, error) {
	totals := make([]int64, p.window+1)
	counts := make([]int, p.window+1)
	for _, bar := range bars {
		if bar.Offset < 0 || bar.Offset > p.window {
			return nil, fmt.Errorf("%s bar at %s: offset %d outside the open window [0, %d]",
				openType, bar.DateTime.Format("2006-01-02 15:04"), bar.Offset, p.window)
		}
		totals[bar.Offset] += bar.Volume
		counts[bar.Offset]++
	}

	means := meansOf(totals, counts)
	normalized := normalizeMeans(means)

	rows := make([]MinuteRow, len(means))
	for offset := range rows {
		rows[offset] = MinuteRow{
			OpenType:   openType,
			Offset:     offset,
			Bars:       counts[offset],
			Total:      totals[offset],
			Mean:       means[offset],
			Normalized: normalized[offset],
		}
	}
	return rows, nil
}

// dteProfile aggregates volume per days-to-expiration bucket, from
// zero up to the largest DTE observed. No bars means no buckets.
func dteProfile(openType domain.OpenType, bars []openwindow.EnrichedBar) ([]BucketRow, error) {
	maxDTE := -1
	for _, bar := range bars {
		if bar.DTE < 0 {
			return nil, fmt.Errorf("%s bar at %s: negative DTE %d",
				openType, bar.DateTime.Format("2006-01-02 15:04"), bar.DTE)
		}
		if bar.DTE > maxDTE {
			maxDTE = bar.DTE
		}
	}
	if maxDTE < 0 {
		return nil, nil
	}

	buckets := maxDTE/dteBucketWidth + 1
	totals := make([]int64, buckets)
	counts := make([]int, buckets)
	for _, bar := range bars {
		bucket := bar.DTE / dteBucketWidth
		totals[bucket] += bar.Volume
		counts[bucket]++
	}

	means := meansOf(totals, counts)
	normalized := normalizeMeans(means)

	rows := make([]BucketRow, buckets)
	for bucket := range rows {
		rows[bucket] = BucketRow{
			OpenType:   openType,
			Start:      bucket * dteBucketWidth,
			End:        bucket*dteBucketWidth + dteBucketWidth - 1,
			Bars:       counts[bucket],
			Total:      totals[bucket],
			Mean:       means[bucket],
			Normalized: normalized[bucket],
		}
	}
	return rows, nil
}

func meansOf(totals []int64, counts []int) []float64 {
	means := make([]float64, len(totals))
	for i := range totals {
		if counts[i] == 0 {
			means[i] = math.NaN()
			continue
		}
		means[i] = float64(totals[i]) / float64(counts[i])
	}
	return means
}

// normalizeMeans rescales the mean volumes into [0, 1]. A degenerate
// range leaves every share blank rather than echoing raw means.
func normalizeMeans(means []float64) []float64 {
	normalized, ok := stats.Normalize(means)
	if !ok {
		blank := make([]float64, len(means))
		for i := range blank {
			blank[i] = math.NaN()
		}
		return blank
	}
	return normalized
}
