// Package temporal summarizes intraday open-window behavior by
// calendar cohort: bars struck on the same day of week, month, or
// year are pooled and reduced to the shared summary battery.
package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/internal/profile"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

// Row is one cohort's summary: the group value under the table's
// interval, the open type it was computed from, and the stat battery.
type Row struct {
	Group    int
	OpenType domain.OpenType
	Battery  profile.Battery
}

// Record renders the row in the table's column order.
func (r Row) Record() []string {
	return append([]string{strconv.Itoa(r.Group), r.OpenType.String()}, r.Battery.Cells()...)
}

// Analyzer builds the temporal analytics tables, one dataset per
// grouping interval.
type Analyzer struct {
	paths *config.Paths
	cfg   config.COTConfig
}

// NewAnalyzer creates a temporal analyzer. The COT analytics settings
// supply the DTE filter bounds and the key open minute.
func NewAnalyzer(paths *config.Paths, cfg config.COTConfig) *Analyzer {
	return &Analyzer{paths: paths, cfg: cfg}
}

// Run loads the enriched datasets, filters them to the researched DTE
// band, and writes one table per grouping interval. The percent-GTE
// reference is each open type's own key-minute median over the whole
// filtered dataset. Returns rows written keyed by interval.
func (a *Analyzer) Run(ctx context.Context, openTypes []domain.OpenType, intervals []domain.TemporalInterval) (map[string]int, error) {
	for _, interval := range intervals {
		if !interval.Valid() {
			return nil, fmt.Errorf("unknown temporal interval %q", interval)
		}
	}

	datasets := make([]openData, 0, len(openTypes))
	for _, openType := range openTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !openType.Valid() {
			return nil, fmt.Errorf("unknown open type %q", openType)
		}
		bars, err := openwindow.LoadEnrichedBars(a.paths.EnrichedCSV(openType.String()))
		if err != nil {
			return nil, err
		}
		filtered := profile.FilterDTE(bars, a.cfg.MinDTE, a.cfg.MaxDTE)
		datasets = append(datasets, openData{
			openType:  openType,
			bars:      filtered,
			reference: profile.KeyMinuteMedian(filtered, a.cfg.KeyMinute),
		})
	}

	writer := exporter.NewCSVWriter(a.paths)
	rows := make(map[string]int, len(intervals))
	for _, interval := range intervals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		written, err := a.writeTable(writer, datasets, interval)
		if err != nil {
			return nil, err
		}
		rows[interval.String()] = written
	}
	return rows, nil
}

type openData struct {
	openType  domain.OpenType
	bars      []openwindow.EnrichedBar
	reference float64
}

// writeTable emits one interval's table: for each open type in turn,
// every group value in canonical order. A group with no bars at the
// key offset cannot anchor its battery and is skipped.
func (a *Analyzer) writeTable(writer *exporter.CSVWriter, datasets []openData, interval domain.TemporalInterval) (int, error) {
	target := a.paths.TemporalCSV(interval.String())
	stream, err := writer.CreateStreamWriter(target, tableHeader(interval))
	if err != nil {
		return 0, err
	}

	keyOffset := a.cfg.KeyMinute - 1
	for _, dataset := range datasets {
		groups := groupBars(dataset.bars, interval)
		for _, group := range groupValues(dataset.bars, interval) {
			bars := groups[group]
			if !hasOffset(bars, keyOffset) {
				slog.Warn("Temporal group has no bars at the key open minute",
					slog.String("interval", interval.String()),
					slog.Int("group", group),
					slog.String("open_type", dataset.openType.String()))
				continue
			}
			row := Row{
				Group:    group,
				OpenType: dataset.openType,
				Battery:  profile.Summarize(bars, a.cfg.KeyMinute, dataset.reference),
			}
			if err := stream.WriteRecord(row.Record()); err != nil {
				stream.Close()
				return 0, fmt.Errorf("write temporal row: %w", err)
			}
		}
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}

	slog.Info("Temporal analytics written",
		slog.String("file", filepath.Base(target)),
		slog.Int("rows", stream.Rows()))
	return stream.Rows(), nil
}

func tableHeader(interval domain.TemporalInterval) []string {
	return append([]string{interval.String(), domain.ColOpenType}, domain.BatteryColumns()...)
}

// groupValues returns an interval's group values in output order: the
// full weekday and month ranges regardless of coverage, observed years
// ascending.
func groupValues(bars []openwindow.EnrichedBar, interval domain.TemporalInterval) []int {
	switch interval {
	case domain.TemporalDayOfWeek:
		return []int{0, 1, 2, 3, 4, 5, 6}
	case domain.TemporalMonth:
		return []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	default:
		seen := make(map[int]struct{})
		var years []int
		for _, bar := range bars {
			year := bar.DateTime.Year()
			if _, ok := seen[year]; ok {
				continue
			}
			seen[year] = struct{}{}
			years = append(years, year)
		}
		sort.Ints(years)
		return years
	}
}

func groupBars(bars []openwindow.EnrichedBar, interval domain.TemporalInterval) map[int][]openwindow.EnrichedBar {
	groups := make(map[int][]openwindow.EnrichedBar)
	for _, bar := range bars {
		group := groupOf(bar, interval)
		groups[group] = append(groups[group], bar)
	}
	return groups
}

func groupOf(bar openwindow.EnrichedBar, interval domain.TemporalInterval) int {
	switch interval {
	case domain.TemporalDayOfWeek:
		return weekdayIndex(bar.DateTime)
	case domain.TemporalMonth:
		return int(bar.DateTime.Month())
	default:
		return bar.DateTime.Year()
	}
}

// weekdayIndex maps Monday..Sunday to 0..6.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func hasOffset(bars []openwindow.EnrichedBar, offset int) bool {
	for _, bar := range bars {
		if bar.Offset == offset {
			return true
		}
	}
	return false
}
