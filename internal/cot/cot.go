// Package cot correlates weekly Commitment-of-Traders positioning
// with intraday open-window behavior. Every report field splits the
// trading days into weeks where the field sat above or below its
// median, and both halves get the shared intraday summary battery.
package cot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/cooper437/commodities-research/internal/calendar"
	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/files"
	"github.com/cooper437/commodities-research/internal/marketdata"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/internal/profile"
	"github.com/cooper437/commodities-research/internal/stats"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

var signalsHeader = append([]string{
	"Report Name",
	"Field Name",
	"Above/Below Median Of CoT Field",
	domain.ColOpenType,
	"Median Value Of CoT Field",
}, domain.BatteryColumns()...)

// signalOrder pins the dataset's row order: every sliding-open row
// precedes the true-open rows.
var signalOrder = []domain.OpenType{domain.OpenTypeSliding, domain.OpenTypeTrue}

// SignalRow is one half of a report field's median split for one open
// type.
type SignalRow struct {
	ReportName string
	FieldName  string
	Side       string
	OpenType   domain.OpenType
	Median     float64
	Battery    profile.Battery
}

// Record renders the row in the signals table's column order.
func (r SignalRow) Record() []string {
	median := ""
	if !math.IsNaN(r.Median) {
		median = exporter.FormatStat(r.Median)
	}
	cells := []string{r.ReportName, r.FieldName, r.Side, r.OpenType.String(), median}
	return append(cells, r.Battery.Cells()...)
}

// Analyzer builds the COT signal correlation dataset.
type Analyzer struct {
	paths *config.Paths
	cfg   config.COTConfig
}

// NewAnalyzer creates a COT signal analyzer.
func NewAnalyzer(paths *config.Paths, cfg config.COTConfig) *Analyzer {
	return &Analyzer{paths: paths, cfg: cfg}
}

// Run correlates every report field of every COT file with both
// enriched datasets and writes the signals table. Returns the number
// of rows written.
func (a *Analyzer) Run(ctx context.Context) (int, error) {
	discovery := files.NewDiscovery(a.paths.COTDir)
	reportFiles, err := discovery.FindCSVFiles(a.paths.COTDir)
	if err != nil {
		return 0, fmt.Errorf("scan COT directory: %w", err)
	}
	if len(reportFiles) == 0 {
		return 0, fmt.Errorf("no COT report files under %s", a.paths.COTDir)
	}

	writer := exporter.NewCSVWriter(a.paths)
	stream, err := writer.CreateStreamWriter(a.paths.COTSignalsCSV, signalsHeader)
	if err != nil {
		return 0, err
	}

	for _, openType := range signalOrder {
		if err := ctx.Err(); err != nil {
			stream.Close()
			return 0, err
		}
		bars, err := openwindow.LoadEnrichedBars(a.paths.EnrichedCSV(openType.String()))
		if err != nil {
			stream.Close()
			return 0, err
		}
		filtered := profile.FilterDTE(bars, a.cfg.MinDTE, a.cfg.MaxDTE)
		tuesdays := precedingTuesdays(filtered)
		reference := profile.KeyMinuteMedian(filtered, a.cfg.KeyMinute)

		for _, file := range reportFiles {
			if err := ctx.Err(); err != nil {
				stream.Close()
				return 0, err
			}
			report, err := marketdata.LoadCOTReport(file.Path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					slog.Warn("COT report disappeared during analysis", slog.String("file", file.Name))
					continue
				}
				stream.Close()
				return 0, err
			}

			for _, field := range report.ReportableFields() {
				median, ok := stats.Median(report.Values[field])
				if !ok {
					median = math.NaN()
				}
				aboveDates, belowDates := report.DatesWhere(field, median)
				aboveBars, belowBars := splitByMembership(filtered, tuesdays, aboveDates, belowDates)

				rows := []SignalRow{
					{
						ReportName: report.Name,
						FieldName:  field,
						Side:       domain.SideAbove,
						OpenType:   openType,
						Median:     median,
						Battery:    profile.Summarize(aboveBars, a.cfg.KeyMinute, reference),
					},
					{
						ReportName: report.Name,
						FieldName:  field,
						Side:       domain.SideBelow,
						OpenType:   openType,
						Median:     median,
						Battery:    profile.Summarize(belowBars, a.cfg.KeyMinute, reference),
					},
				}
				for _, row := range rows {
					if err := stream.WriteRecord(row.Record()); err != nil {
						stream.Close()
						return 0, fmt.Errorf("write COT signal row: %w", err)
					}
				}
			}
		}
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}

	slog.Info("COT signal correlation written",
		slog.String("file", filepath.Base(a.paths.COTSignalsCSV)),
		slog.Int("rows", stream.Rows()))
	return stream.Rows(), nil
}

// precedingTuesdays resolves each bar's report reference date: the
// Tuesday whose COT report was already published on the bar's trading
// day.
func precedingTuesdays(bars []openwindow.EnrichedBar) []time.Time {
	tuesdays := make([]time.Time, len(bars))
	for i, bar := range bars {
		tuesdays[i] = calendar.PrecedingTuesday(bar.DateTime)
	}
	return tuesdays
}

// splitByMembership partitions bars by which date set their preceding
// Tuesday belongs to. Bars referencing a Tuesday outside the report's
// span fall in neither side.
func splitByMembership(
	bars []openwindow.EnrichedBar,
	tuesdays []time.Time,
	aboveDates, belowDates map[time.Time]struct{},
) (above, below []openwindow.EnrichedBar) {
	for i, bar := range bars {
		if _, ok := aboveDates[tuesdays[i]]; ok {
			above = append(above, bar)
			continue
		}
		if _, ok := belowDates[tuesdays[i]]; ok {
			below = append(below, bar)
		}
	}
	return above, below
}
