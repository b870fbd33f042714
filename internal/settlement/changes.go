// Package settlement derives analytics from the raw settlement series:
// opening-price gaps against prior settlements at several lookback
// horizons, trailing volatility stats, and the temporal settlement
// summary table.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/cooper437/commodities-research/internal/calendar"
	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/files"
	"github.com/cooper437/commodities-research/internal/marketdata"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/internal/stats"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

const dateFormat = "2006-01-02"

var changesHeader = []string{domain.ColDate, domain.ColSymbol, domain.ColSettlementDiff, domain.ColDaysLookingBack}

// Change is one row of a changes-from-settlement dataset: a trading
// day's opening price minus a reference settlement price. Diff is NaN
// when no settlement reference exists, and Days is then zero.
type Change struct {
	Date   time.Time
	Symbol string
	Diff   float64
	Days   int
}

// Record renders the change as a CSV row.
func (c Change) Record() []string {
	diff := ""
	if !math.IsNaN(c.Diff) {
		diff = stats.RoundHalfUpString(c.Diff, 3)
	}
	return []string{c.Date.Format(dateFormat), c.Symbol, diff, strconv.Itoa(c.Days)}
}

// ChangeBuilder computes changes-from-settlement datasets, one per
// open type and lookback interval, across every settlement contract
// file.
type ChangeBuilder struct {
	paths  *config.Paths
	cal    *calendar.Calendar
	prefix string
}

// NewChangeBuilder creates a settlement change builder. The calendar
// resolves prior trading days for the overnight interval; longer
// intervals look back within each contract's own settlement dates.
func NewChangeBuilder(paths *config.Paths, cal *calendar.Calendar, prefix string) *ChangeBuilder {
	return &ChangeBuilder{paths: paths, cal: cal, prefix: prefix}
}

// Run builds one dataset per (open type, interval) pair and returns
// the rows written keyed by "<open_type>_<interval>".
func (b *ChangeBuilder) Run(ctx context.Context, openTypes []domain.OpenType, intervals []domain.LookbackInterval) (map[string]int, error) {
	for _, interval := range intervals {
		if !interval.Valid() {
			return nil, fmt.Errorf("unknown lookback interval %q", interval)
		}
	}

	discovery := files.NewDiscovery(b.paths.SettlementDir)
	settlementFiles, err := discovery.FindCSVFiles(b.paths.SettlementDir)
	if err != nil {
		return nil, fmt.Errorf("scan settlement directory: %w", err)
	}
	if len(settlementFiles) == 0 {
		return nil, fmt.Errorf("no settlement files under %s", b.paths.SettlementDir)
	}

	writer := exporter.NewCSVWriter(b.paths)
	rows := make(map[string]int, len(openTypes)*len(intervals))
	for _, openType := range openTypes {
		if !openType.Valid() {
			return nil, fmt.Errorf("unknown open type %q", openType)
		}
		bars, err := openwindow.LoadEnrichedBars(b.paths.EnrichedCSV(openType.String()))
		if err != nil {
			return nil, err
		}
		groups := groupBySuffix(bars)

		for _, interval := range intervals {
			written, err := b.writeDataset(ctx, writer, settlementFiles, groups, openType, interval)
			if err != nil {
				return nil, err
			}
			rows[openType.String()+"_"+interval.String()] = written
		}
	}
	return rows, nil
}

func (b *ChangeBuilder) writeDataset(
	ctx context.Context,
	writer *exporter.CSVWriter,
	settlementFiles []files.FileInfo,
	groups map[string][]openwindow.EnrichedBar,
	openType domain.OpenType,
	interval domain.LookbackInterval,
) (int, error) {
	target := b.paths.SettlementChangesCSV(openType.String(), interval.String())
	stream, err := writer.CreateStreamWriter(target, changesHeader)
	if err != nil {
		return 0, err
	}

	for _, file := range settlementFiles {
		if err := ctx.Err(); err != nil {
			stream.Close()
			return 0, err
		}
		series, err := marketdata.LoadSettlementSeries(file.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Settlement file disappeared during analysis", slog.String("file", file.Name))
				continue
			}
			stream.Close()
			return 0, err
		}
		contractBars, ok := groups[series.ContractKey]
		if !ok {
			slog.Warn("No intraday bars for settlement contract",
				slog.String("file", file.Name),
				slog.String("contract_key", series.ContractKey))
			continue
		}
		changes, err := b.contractChanges(contractBars, series, interval)
		if err != nil {
			stream.Close()
			return 0, err
		}
		for _, change := range changes {
			if err := stream.WriteRecord(change.Record()); err != nil {
				stream.Close()
				return 0, fmt.Errorf("write settlement change: %w", err)
			}
		}
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}

	slog.Info("Settlement changes written",
		slog.String("open_type", openType.String()),
		slog.String("interval", interval.String()),
		slog.Int("rows", stream.Rows()))
	return stream.Rows(), nil
}

// contractChanges emits one row per trading date in the contract's
// enriched bars. Dates with no reachable settlement reference get a
// blank difference and zero lookback days.
func (b *ChangeBuilder) contractChanges(bars []openwindow.EnrichedBar, series marketdata.SettlementSeries, interval domain.LookbackInterval) ([]Change, error) {
	symbol := b.prefix + series.ContractKey
	opens := dayOpens(bars)
	changes := make([]Change, 0, len(opens))
	for _, day := range opens {
		change := Change{Date: day.date, Symbol: symbol, Diff: math.NaN()}
		ref, days, ok, err := b.referenceRow(day.date, series, interval)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", symbol, err)
		}
		if ok {
			change.Diff = day.open - ref.Settle
			change.Days = days
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// referenceRow finds the settlement row a date is compared against.
// Overnight uses the prior trading day and requires settlement data on
// exactly that date. The longer horizons start a fixed distance back
// and walk one day at a time toward the present contract's first
// settlement date until they land on one.
func (b *ChangeBuilder) referenceRow(date time.Time, series marketdata.SettlementSeries, interval domain.LookbackInterval) (marketdata.SettlementBar, int, bool, error) {
	if interval == domain.IntervalOvernight {
		if !b.cal.Contains(date) {
			return marketdata.SettlementBar{}, 0, false, fmt.Errorf("date %s is not in the trading-day calendar", date.Format(dateFormat))
		}
		prior, ok := b.cal.Prior(date)
		if !ok {
			return marketdata.SettlementBar{}, 0, false, nil
		}
		row, ok := series.RowOn(prior)
		if !ok {
			return marketdata.SettlementBar{}, 0, false, nil
		}
		return row, daysBetween(prior, date), true, nil
	}

	first, ok := series.FirstDate()
	if !ok {
		return marketdata.SettlementBar{}, 0, false, nil
	}
	lookback := date.AddDate(0, 0, -interval.BaseLookbackDays())
	for {
		if row, ok := series.RowOn(lookback); ok {
			return row, daysBetween(lookback, date), true, nil
		}
		lookback = lookback.AddDate(0, 0, -1)
		if lookback.Before(first) {
			return marketdata.SettlementBar{}, 0, false, nil
		}
	}
}

type dayOpen struct {
	date time.Time
	open float64
}

// dayOpens reduces a contract's enriched bars to one opening price per
// date, taken from the day's lowest-offset bar.
func dayOpens(bars []openwindow.EnrichedBar) []dayOpen {
	firstBar := make(map[time.Time]openwindow.EnrichedBar)
	var dates []time.Time
	for _, bar := range bars {
		date := calendar.DateOf(bar.DateTime)
		existing, seen := firstBar[date]
		if !seen {
			firstBar[date] = bar
			dates = append(dates, date)
			continue
		}
		if bar.Offset < existing.Offset {
			firstBar[date] = bar
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	opens := make([]dayOpen, len(dates))
	for i, date := range dates {
		opens[i] = dayOpen{date: date, open: firstBar[date].Open}
	}
	return opens
}

// groupBySuffix indexes enriched bars by the last three characters of
// their symbol, which match a settlement file's contract key.
func groupBySuffix(bars []openwindow.EnrichedBar) map[string][]openwindow.EnrichedBar {
	groups := make(map[string][]openwindow.EnrichedBar)
	for _, bar := range bars {
		if len(bar.Symbol) < 3 {
			continue
		}
		key := bar.Symbol[len(bar.Symbol)-3:]
		groups[key] = append(groups[key], bar)
	}
	return groups
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
