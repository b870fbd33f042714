package settlement

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/internal/profile"
	"github.com/cooper437/commodities-research/internal/stats"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

var temporalHeader = []string{
	domain.ColOpenType,
	"Interval",
	"Above/Below Median Of Settlement Change",
	"Median Settlement Change",
	"Bars",
	domain.ColACFOT30,
	domain.ColACFOT60,
	domain.ColMaxACFO,
	domain.ColMinACFO,
	domain.ColMinuteOfMaxACFO,
	domain.ColMinuteOfMinACFO,
}

// TemporalRow is one side of a settlement median split: the intraday
// curve stats for bars whose change from open landed above or below
// the median settlement gap of an (open type, interval) dataset.
type TemporalRow struct {
	OpenType domain.OpenType
	Interval domain.LookbackInterval
	Side     string
	Median   float64
	Bars     int
	Battery  profile.Battery
}

// Record renders the row as a CSV record, stats rounded half-up to
// three decimals.
func (r TemporalRow) Record() []string {
	return []string{
		r.OpenType.String(),
		r.Interval.String(),
		r.Side,
		statCell(r.Median),
		strconv.Itoa(r.Bars),
		statCell(r.Battery.ACFOT30),
		statCell(r.Battery.ACFOT60),
		statCell(r.Battery.MaxACFO),
		statCell(r.Battery.MinACFO),
		minuteCell(r.Battery.MinuteOfMax),
		minuteCell(r.Battery.MinuteOfMin),
	}
}

func minuteCell(minute int) string {
	if minute < 0 {
		return ""
	}
	return strconv.Itoa(minute)
}

// TemporalBuilder splits each open type's intraday bars around the
// median settlement change of every lookback interval and summarizes
// both sides into one table.
type TemporalBuilder struct {
	paths *config.Paths
	cfg   config.COTConfig
}

// NewTemporalBuilder creates a temporal settlement builder. The COT
// analytics settings supply the DTE filter bounds and the key open
// minute.
func NewTemporalBuilder(paths *config.Paths, cfg config.COTConfig) *TemporalBuilder {
	return &TemporalBuilder{paths: paths, cfg: cfg}
}

// Run reads back the changes-from-settlement datasets for every
// (open type, interval) pair, splits the DTE-filtered enriched bars
// around each dataset's median change, and writes two rows per pair.
// Returns the number of rows written.
func (b *TemporalBuilder) Run(ctx context.Context, openTypes []domain.OpenType, intervals []domain.LookbackInterval) (int, error) {
	for _, interval := range intervals {
		if !interval.Valid() {
			return 0, fmt.Errorf("unknown lookback interval %q", interval)
		}
	}

	writer := exporter.NewCSVWriter(b.paths)
	stream, err := writer.CreateStreamWriter(b.paths.TemporalSettlementCSV, temporalHeader)
	if err != nil {
		return 0, err
	}

	for _, openType := range openTypes {
		if err := ctx.Err(); err != nil {
			stream.Close()
			return 0, err
		}
		if !openType.Valid() {
			stream.Close()
			return 0, fmt.Errorf("unknown open type %q", openType)
		}
		bars, err := openwindow.LoadEnrichedBars(b.paths.EnrichedCSV(openType.String()))
		if err != nil {
			stream.Close()
			return 0, err
		}
		filtered := profile.FilterDTE(bars, b.cfg.MinDTE, b.cfg.MaxDTE)

		for _, interval := range intervals {
			if err := ctx.Err(); err != nil {
				stream.Close()
				return 0, err
			}
			changes, err := LoadChanges(b.paths.SettlementChangesCSV(openType.String(), interval.String()))
			if err != nil {
				stream.Close()
				return 0, err
			}
			median := changesMedian(changes)
			above, below := splitByChange(filtered, median)

			rows := []TemporalRow{
				summarizeSide(openType, interval, domain.SideAbove, median, above, b.cfg.KeyMinute),
				summarizeSide(openType, interval, domain.SideBelow, median, below, b.cfg.KeyMinute),
			}
			for _, row := range rows {
				if err := stream.WriteRecord(row.Record()); err != nil {
					stream.Close()
					return 0, fmt.Errorf("write temporal settlement row: %w", err)
				}
			}
		}
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}

	slog.Info("Temporal settlement analytics written",
		slog.String("file", filepath.Base(b.paths.TemporalSettlementCSV)),
		slog.Int("rows", stream.Rows()))
	return stream.Rows(), nil
}

// summarizeSide builds one output row. The bar count reflects the full
// side; the curve stats leave out the final window minute, whose bars
// record trade just past the open window.
func summarizeSide(openType domain.OpenType, interval domain.LookbackInterval, side string, median float64, bars []openwindow.EnrichedBar, keyMinute int) TemporalRow {
	return TemporalRow{
		OpenType: openType,
		Interval: interval,
		Side:     side,
		Median:   median,
		Bars:     len(bars),
		Battery:  profile.Summarize(excludeOffset(bars, keyMinute), keyMinute, math.NaN()),
	}
}

// changesMedian returns the median of the populated settlement
// differences, NaN when every row is blank.
func changesMedian(changes []Change) float64 {
	diffs := make([]float64, len(changes))
	for i, change := range changes {
		diffs[i] = change.Diff
	}
	median, ok := stats.Median(diffs)
	if !ok {
		return math.NaN()
	}
	return median
}

// splitByChange partitions bars by change from open versus the pivot.
// Blank changes fall in neither side, as does every bar when the pivot
// itself is NaN.
func splitByChange(bars []openwindow.EnrichedBar, pivot float64) (above, below []openwindow.EnrichedBar) {
	for _, bar := range bars {
		switch {
		case bar.ChangeFromOpen >= pivot:
			above = append(above, bar)
		case bar.ChangeFromOpen < pivot:
			below = append(below, bar)
		}
	}
	return above, below
}

func excludeOffset(bars []openwindow.EnrichedBar, offset int) []openwindow.EnrichedBar {
	kept := make([]openwindow.EnrichedBar, 0, len(bars))
	for _, bar := range bars {
		if bar.Offset == offset {
			continue
		}
		kept = append(kept, bar)
	}
	return kept
}

// LoadChanges reads a changes-from-settlement dataset back from disk.
// Columns are located by header name. Blank difference cells come back
// as NaN.
func LoadChanges(path string) ([]Change, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settlement changes dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read settlement changes header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range changesHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("settlement changes dataset %s has no %s column", filepath.Base(path), name)
		}
	}

	var changes []Change
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s (line %d): %w", filepath.Base(path), line, err)
		}
		change, err := parseChangeRecord(record, col)
		if err != nil {
			return nil, fmt.Errorf("%s (line %d): %w", filepath.Base(path), line, err)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func parseChangeRecord(record []string, col map[string]int) (Change, error) {
	date, err := time.Parse(dateFormat, record[col[domain.ColDate]])
	if err != nil {
		return Change{}, fmt.Errorf("parse %s: %w", domain.ColDate, err)
	}

	diff := math.NaN()
	if cell := strings.TrimSpace(record[col[domain.ColSettlementDiff]]); cell != "" {
		diff, err = strconv.ParseFloat(cell, 64)
		if err != nil {
			return Change{}, fmt.Errorf("parse %s: %w", domain.ColSettlementDiff, err)
		}
	}

	days, err := strconv.Atoi(record[col[domain.ColDaysLookingBack]])
	if err != nil {
		return Change{}, fmt.Errorf("parse %s: %w", domain.ColDaysLookingBack, err)
	}

	return Change{
		Date:   date,
		Symbol: record[col[domain.ColSymbol]],
		Diff:   diff,
		Days:   days,
	}, nil
}
