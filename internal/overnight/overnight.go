// Package overnight compares each contract day's opening price against
// reference closes from the prior trading day: the 11:59 bar, the
// 12:04 bar, and the day's final bar.
package overnight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"time"

	"github.com/cooper437/commodities-research/internal/calendar"
	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/files"
	"github.com/cooper437/commodities-research/internal/marketdata"
)

const dateFormat = "2006-01-02"

var csvHeader = []string{"Symbol", "Date", "11:59 Change", "12:04 Change", "Last Bar Change"}

// Change is one contract-date row of the overnight changes dataset.
// NaN marks a change whose prior-day reference bar is missing.
type Change struct {
	Symbol          string
	Date            time.Time
	ElevenFiftyNine float64
	TwelveOhFour    float64
	LastBar         float64
}

// Record renders the change as a CSV row, blanking missing references.
func (c Change) Record() []string {
	return []string{
		c.Symbol,
		c.Date.Format(dateFormat),
		changeCell(c.ElevenFiftyNine),
		changeCell(c.TwelveOhFour),
		changeCell(c.LastBar),
	}
}

func changeCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return exporter.FormatPrice(v)
}

func emptyChange(symbol string, date time.Time) Change {
	return Change{
		Symbol:          symbol,
		Date:            date,
		ElevenFiftyNine: math.NaN(),
		TwelveOhFour:    math.NaN(),
		LastBar:         math.NaN(),
	}
}

// Analyzer computes the overnight changes dataset across the contract
// files matching a symbol prefix.
type Analyzer struct {
	paths  *config.Paths
	cal    *calendar.Calendar
	prefix string
}

// NewAnalyzer creates an overnight change analyzer. Prior trading days
// are resolved against cal, not the contract's own dates.
func NewAnalyzer(paths *config.Paths, cal *calendar.Calendar, prefix string) *Analyzer {
	return &Analyzer{paths: paths, cal: cal, prefix: prefix}
}

// AnalyzeContract computes one contract's per-date rows. A contract's
// first date and dates whose prior trading day saw no trading in this
// contract produce rows with every change blank.
func (a *Analyzer) AnalyzeContract(contract marketdata.ContractBars) ([]Change, error) {
	dates := contract.TradingDates()
	changes := make([]Change, 0, len(dates))

	for i, date := range dates {
		if i == 0 {
			changes = append(changes, emptyChange(contract.Symbol, date))
			continue
		}
		if !a.cal.Contains(date) {
			return nil, fmt.Errorf("date %s of contract %s is not in the trading-day calendar",
				date.Format(dateFormat), contract.Symbol)
		}
		prior, ok := a.cal.Prior(date)
		if !ok {
			changes = append(changes, emptyChange(contract.Symbol, date))
			continue
		}
		priorBars := contract.BarsOn(prior)
		if len(priorBars) == 0 {
			changes = append(changes, emptyChange(contract.Symbol, date))
			continue
		}

		openPrice := contract.BarsOn(date)[0].Open
		change := emptyChange(contract.Symbol, date)
		if refBar, ok := contract.BarAt(clockOn(prior, 11, 59)); ok {
			change.ElevenFiftyNine = openPrice - refBar.Close
		}
		if refBar, ok := contract.BarAt(clockOn(prior, 12, 4)); ok {
			change.TwelveOhFour = openPrice - refBar.Close
		}
		change.LastBar = openPrice - priorBars[len(priorBars)-1].Close
		changes = append(changes, change)
	}
	return changes, nil
}

// Run processes every matching contract in filename order and writes
// overnight_changes_by_contract.csv. It returns the rows written.
func (a *Analyzer) Run(ctx context.Context) (int, error) {
	discovery := files.NewDiscovery(a.paths.FuturesDir)
	csvFiles, err := discovery.FindCSVFilesWithPrefix(a.paths.FuturesDir, a.prefix)
	if err != nil {
		return 0, fmt.Errorf("scan futures directory: %w", err)
	}
	if len(csvFiles) == 0 {
		return 0, fmt.Errorf("no contract files under %s match prefix %q", a.paths.FuturesDir, a.prefix)
	}

	writer := exporter.NewCSVWriter(a.paths)
	stream, err := writer.CreateStreamWriter(a.paths.OvernightChangesCSV, csvHeader)
	if err != nil {
		return 0, err
	}

	for _, file := range csvFiles {
		if err := ctx.Err(); err != nil {
			stream.Close()
			return 0, err
		}
		contract, err := marketdata.LoadContractBars(file.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Contract file disappeared during analysis", slog.String("file", file.Name))
				continue
			}
			stream.Close()
			return 0, err
		}
		changes, err := a.AnalyzeContract(contract)
		if err != nil {
			stream.Close()
			return 0, err
		}
		for _, change := range changes {
			if err := stream.WriteRecord(change.Record()); err != nil {
				stream.Close()
				return 0, fmt.Errorf("write overnight change: %w", err)
			}
		}
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}

	slog.Info("Overnight changes written",
		slog.String("prefix", a.prefix),
		slog.Int("rows", stream.Rows()))
	return stream.Rows(), nil
}

func clockOn(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
}
