package settlement

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/cooper437/commodities-research/internal/calendar"
	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/files"
	"github.com/cooper437/commodities-research/internal/marketdata"
	"github.com/cooper437/commodities-research/internal/stats"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

var volatilityHeader = []string{
	domain.ColDate, domain.ColSymbol,
	"30D Count", "7D Count", "365D Count",
	"365D Range", "7D Range", "30D CSD", "30D Range",
}

// VolatilityRow is one row of the settlement volatility dataset.
// Window stats are NaN until the contract has traded long enough to
// fill the trailing window.
type VolatilityRow struct {
	Date     time.Time
	Symbol   string
	Count30  int
	Count7   int
	Count365 int
	Range365 float64
	Range7   float64
	CSD30    float64
	Range30  float64
}

// Record renders the row as a CSV record.
func (r VolatilityRow) Record() []string {
	return []string{
		r.Date.Format(dateFormat),
		r.Symbol,
		strconv.Itoa(r.Count30),
		strconv.Itoa(r.Count7),
		strconv.Itoa(r.Count365),
		statCell(r.Range365),
		statCell(r.Range7),
		statCell(r.CSD30),
		statCell(r.Range30),
	}
}

func statCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return stats.RoundHalfUpString(v, 3)
}

// VolatilityBuilder computes trailing settlement ranges, counts, and
// the consecutive-change deviation over every settlement series.
type VolatilityBuilder struct {
	paths  *config.Paths
	prefix string
}

// NewVolatilityBuilder creates a settlement volatility builder.
func NewVolatilityBuilder(paths *config.Paths, prefix string) *VolatilityBuilder {
	return &VolatilityBuilder{paths: paths, prefix: prefix}
}

// AnalyzeSeries computes one contract's volatility rows. Every window
// looks strictly backwards, covering [date-N, date), and the windowed
// stats stay blank until the date is at least N days past the
// contract's first settlement date.
func (b *VolatilityBuilder) AnalyzeSeries(series marketdata.SettlementSeries) []VolatilityRow {
	rows := make([]VolatilityRow, 0, len(series.Rows))
	if len(series.Rows) == 0 {
		return rows
	}
	first := calendar.DateOf(series.Rows[0].Date)

	for i, bar := range series.Rows {
		date := calendar.DateOf(bar.Date)
		start365 := windowStart(series.Rows, i, date.AddDate(0, 0, -365))
		start30 := windowStart(series.Rows, i, date.AddDate(0, 0, -30))
		start7 := windowStart(series.Rows, i, date.AddDate(0, 0, -7))

		row := VolatilityRow{
			Date:     date,
			Symbol:   b.prefix + series.ContractKey,
			Count30:  i - start30,
			Count7:   i - start7,
			Count365: i - start365,
			Range365: math.NaN(),
			Range7:   math.NaN(),
			CSD30:    math.NaN(),
			Range30:  math.NaN(),
		}

		age := daysBetween(first, date)
		if age >= 365 {
			row.Range365 = settleRange(series.Rows[start365:i])
		}
		if age >= 7 {
			row.Range7 = settleRange(series.Rows[start7:i])
		}
		if age >= 30 {
			row.Range30 = settleRange(series.Rows[start30:i])
			row.CSD30 = consecutiveStdDev(series.Rows, start30, i)
		}
		rows = append(rows, row)
	}
	return rows
}

// Run analyzes every settlement file in filename order and writes
// settlement_volatility.csv. It returns the rows written.
func (b *VolatilityBuilder) Run(ctx context.Context) (int, error) {
	discovery := files.NewDiscovery(b.paths.SettlementDir)
	settlementFiles, err := discovery.FindCSVFiles(b.paths.SettlementDir)
	if err != nil {
		return 0, fmt.Errorf("scan settlement directory: %w", err)
	}
	if len(settlementFiles) == 0 {
		return 0, fmt.Errorf("no settlement files under %s", b.paths.SettlementDir)
	}

	writer := exporter.NewCSVWriter(b.paths)
	stream, err := writer.CreateStreamWriter(b.paths.SettlementVolatilityCSV, volatilityHeader)
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
		for _, row := range b.AnalyzeSeries(series) {
			if err := stream.WriteRecord(row.Record()); err != nil {
				stream.Close()
				return 0, fmt.Errorf("write volatility row: %w", err)
			}
		}
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}

	slog.Info("Settlement volatility written", slog.Int("rows", stream.Rows()))
	return stream.Rows(), nil
}

// windowStart returns the index of the first row dated at or after
// lower, capped at end. Rows are sorted by date ascending.
func windowStart(rows []marketdata.SettlementBar, end int, lower time.Time) int {
	start := end
	for start > 0 && !calendar.DateOf(rows[start-1].Date).Before(lower) {
		start--
	}
	return start
}

// settleRange is max minus min settlement price over the window, NaN
// when the window is empty.
func settleRange(window []marketdata.SettlementBar) float64 {
	settles := make([]float64, len(window))
	for i, row := range window {
		settles[i] = row.Settle
	}
	min, max, ok := stats.MinMax(settles)
	if !ok {
		return math.NaN()
	}
	return max - min
}

// consecutiveStdDev is the root mean square of day-over-day settlement
// changes inside the [start, end) window. When a row exists just
// before the window its settle is prepended so the window's first day
// contributes a change too.
func consecutiveStdDev(rows []marketdata.SettlementBar, start, end int) float64 {
	if start == end {
		return math.NaN()
	}
	settles := make([]float64, 0, end-start+1)
	if start > 0 {
		settles = append(settles, rows[start-1].Settle)
	}
	for _, row := range rows[start:end] {
		settles = append(settles, row.Settle)
	}
	if len(settles) < 2 {
		return math.NaN()
	}

	var sumSquares float64
	for i := 1; i < len(settles); i++ {
		diff := settles[i] - settles[i-1]
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(settles)-1))
}
