package settlement

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cooper437/commodities-research/internal/calendar"
	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/marketdata"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

const enrichedHeader = "Symbol,DateTime,Open Minutes Offset,Open,High,Low,Close,Volume,Price Change From Intraday Open,Expiration Date,DTE\n"

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	require.NoError(t, err)
	return parsed
}

func enrichedBar(t *testing.T, symbol, datetime string, offset int, open float64) openwindow.EnrichedBar {
	t.Helper()
	return openwindow.EnrichedBar{
		Symbol:         symbol,
		DateTime:       at(t, datetime),
		Offset:         offset,
		Open:           open,
		High:           open + 0.3,
		Low:            open - 0.3,
		Close:          open + 0.1,
		Volume:         25,
		ChangeFromOpen: 0.1,
		Expiration:     day(2015, 2, 27),
		DTE:            53,
	}
}

func settleRow(date time.Time, settle float64) marketdata.SettlementBar {
	return marketdata.SettlementBar{
		Date:           date,
		Open:           settle - 0.5,
		High:           settle + 1,
		Low:            settle - 1,
		Settle:         settle,
		Volume:         1200,
		PrevDayOpenInt: 3400,
	}
}

func writeDataFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestContractChangesOvernight(t *testing.T) {
	cal := calendar.New([]time.Time{
		day(2015, 1, 5), day(2015, 1, 6), day(2015, 1, 7), day(2015, 1, 8),
	})
	builder := NewChangeBuilder(config.PathsFrom(t.TempDir()), cal, "LE")

	bars := []openwindow.EnrichedBar{
		enrichedBar(t, "LEG15", "2015-01-05 10:05:00", 0, 160.0),
		enrichedBar(t, "LEG15", "2015-01-06 10:06:00", 1, 165.0),
		enrichedBar(t, "LEG15", "2015-01-06 10:05:00", 0, 162.0),
		enrichedBar(t, "LEG15", "2015-01-08 10:05:00", 0, 163.0),
	}
	series := marketdata.SettlementSeries{ContractKey: "G15", Rows: []marketdata.SettlementBar{
		settleRow(day(2015, 1, 5), 159.5),
		settleRow(day(2015, 1, 6), 161.5),
	}}

	changes, err := builder.contractChanges(bars, series, domain.IntervalOvernight)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	// 01-05 is the calendar's first day, so there is no prior trading day
	first := changes[0]
	assert.Equal(t, "LEG15", first.Symbol)
	assert.Equal(t, day(2015, 1, 5), first.Date)
	assert.True(t, math.IsNaN(first.Diff))
	assert.Zero(t, first.Days)

	// The day's lowest-offset bar carries the open, not the first listed
	second := changes[1]
	assert.Equal(t, day(2015, 1, 6), second.Date)
	assert.InDelta(t, 2.5, second.Diff, 1e-9)
	assert.Equal(t, 1, second.Days)

	// 01-07 is a trading day but the series has no settlement row for it
	third := changes[2]
	assert.Equal(t, day(2015, 1, 8), third.Date)
	assert.True(t, math.IsNaN(third.Diff))
	assert.Zero(t, third.Days)
}

func TestContractChangesWeekly(t *testing.T) {
	builder := NewChangeBuilder(config.PathsFrom(t.TempDir()), calendar.New(nil), "LE")

	bars := []openwindow.EnrichedBar{
		enrichedBar(t, "LEG15", "2015-01-06 10:05:00", 0, 151.0),
		enrichedBar(t, "LEG15", "2015-01-08 10:05:00", 0, 158.0),
		enrichedBar(t, "LEG15", "2015-01-09 10:05:00", 0, 159.0),
		enrichedBar(t, "LEG15", "2015-01-12 10:05:00", 0, 160.0),
	}
	series := marketdata.SettlementSeries{ContractKey: "G15", Rows: []marketdata.SettlementBar{
		settleRow(day(2015, 1, 1), 150.0),
		settleRow(day(2015, 1, 5), 155.0),
	}}

	changes, err := builder.contractChanges(bars, series, domain.IntervalWeekly)
	require.NoError(t, err)
	require.Len(t, changes, 4)

	// A week before 01-06 falls before the series starts
	assert.True(t, math.IsNaN(changes[0].Diff))
	assert.Zero(t, changes[0].Days)

	// Exactly seven days back lands on a settlement date
	assert.InDelta(t, 8.0, changes[1].Diff, 1e-9)
	assert.Equal(t, 7, changes[1].Days)

	// 01-02 has no settlement, so the search walks back to 01-01
	assert.InDelta(t, 9.0, changes[2].Diff, 1e-9)
	assert.Equal(t, 8, changes[2].Days)

	assert.InDelta(t, 5.0, changes[3].Diff, 1e-9)
	assert.Equal(t, 7, changes[3].Days)
}

func TestContractChangesMonthlyAndAnnualy(t *testing.T) {
	builder := NewChangeBuilder(config.PathsFrom(t.TempDir()), calendar.New(nil), "LE")
	series := marketdata.SettlementSeries{ContractKey: "G15", Rows: []marketdata.SettlementBar{
		settleRow(day(2015, 1, 5), 155.0),
	}}

	monthly, err := builder.contractChanges([]openwindow.EnrichedBar{
		enrichedBar(t, "LEG15", "2015-02-02 10:05:00", 0, 160.0),
	}, series, domain.IntervalMonthly)
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.InDelta(t, 5.0, monthly[0].Diff, 1e-9)
	assert.Equal(t, 28, monthly[0].Days)

	annualy, err := builder.contractChanges([]openwindow.EnrichedBar{
		enrichedBar(t, "LEG15", "2016-01-05 10:05:00", 0, 170.0),
	}, series, domain.IntervalAnnualy)
	require.NoError(t, err)
	require.Len(t, annualy, 1)
	assert.InDelta(t, 15.0, annualy[0].Diff, 1e-9)
	assert.Equal(t, 365, annualy[0].Days)
}

func TestContractChangesOvernightOutsideCalendar(t *testing.T) {
	cal := calendar.New([]time.Time{day(2015, 1, 5)})
	builder := NewChangeBuilder(config.PathsFrom(t.TempDir()), cal, "LE")

	bars := []openwindow.EnrichedBar{
		enrichedBar(t, "LEG15", "2015-01-05 10:05:00", 0, 160.0),
		enrichedBar(t, "LEG15", "2015-01-09 10:05:00", 0, 163.0),
	}
	series := marketdata.SettlementSeries{ContractKey: "G15"}

	_, err := builder.contractChanges(bars, series, domain.IntervalOvernight)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the trading-day calendar")
	assert.Contains(t, err.Error(), "LEG15")
}

func TestChangeRecord(t *testing.T) {
	change := Change{Date: day(2015, 1, 6), Symbol: "LEG15", Diff: 2.5, Days: 1}
	assert.Equal(t, []string{"2015-01-06", "LEG15", "2.500", "1"}, change.Record())

	blank := Change{Date: day(2015, 1, 5), Symbol: "LEG15", Diff: math.NaN()}
	assert.Equal(t, []string{"2015-01-05", "LEG15", "", "0"}, blank.Record())
}

func TestDayOpens(t *testing.T) {
	bars := []openwindow.EnrichedBar{
		enrichedBar(t, "LEG15", "2015-01-06 10:07:00", 2, 170.0),
		enrichedBar(t, "LEG15", "2015-01-05 10:06:00", 1, 161.0),
		enrichedBar(t, "LEG15", "2015-01-05 10:05:00", 0, 160.0),
	}

	opens := dayOpens(bars)
	require.Len(t, opens, 2)
	assert.Equal(t, day(2015, 1, 5), opens[0].date)
	assert.InDelta(t, 160.0, opens[0].open, 1e-9)
	assert.Equal(t, day(2015, 1, 6), opens[1].date)
	assert.InDelta(t, 170.0, opens[1].open, 1e-9)
}

func TestChangeBuilderRun(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	enriched := enrichedHeader +
		"LEG15,2015-01-05 10:05:00,0,160,160.3,159.9,160.25,100,0.250,2015-02-27,53\n" +
		"LEG15,2015-01-06 10:05:00,0,162,162.3,161.9,162.25,90,0.250,2015-02-27,52\n"
	require.NoError(t, os.WriteFile(paths.EnrichedCSV("true_open"), []byte(enriched), 0644))
	require.NoError(t, os.WriteFile(paths.EnrichedCSV("sliding_open"), []byte(enriched), 0644))

	writeDataFile(t, paths.SettlementDir, "CME_LC_G2015.csv", `Date,Open,High,Low,Settle,Volume,Prev. Day Open Interest
2015-01-05,159.0,160.5,158.5,159.5,1200,3400
`)
	// No intraday bars trade under the J15 key, so it contributes no rows
	writeDataFile(t, paths.SettlementDir, "CME_LC_J2015.csv", `Date,Open,High,Low,Settle,Volume,Prev. Day Open Interest
2015-03-02,139.5,140.5,139.0,140.0,800,2100
`)

	cal := calendar.New([]time.Time{day(2015, 1, 5), day(2015, 1, 6)})
	builder := NewChangeBuilder(paths, cal, "LE")

	rows, err := builder.Run(context.Background(), domain.AllOpenTypes(),
		[]domain.LookbackInterval{domain.IntervalOvernight, domain.IntervalWeekly})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"true_open_overnight":    2,
		"true_open_weekly":       2,
		"sliding_open_overnight": 2,
		"sliding_open_weekly":    2,
	}, rows)

	content, err := os.ReadFile(paths.SettlementChangesCSV("true_open", "overnight"))
	require.NoError(t, err)
	expected := "Date,Symbol,Price Difference b/w Open And Prior Day Settlement,Days Looking Back\n" +
		"2015-01-05,LEG15,,0\n" +
		"2015-01-06,LEG15,2.500,1\n"
	assert.Equal(t, expected, string(content))

	// The series starts too late for any weekly lookback to resolve
	weekly, err := os.ReadFile(paths.SettlementChangesCSV("sliding_open", "weekly"))
	require.NoError(t, err)
	expectedWeekly := "Date,Symbol,Price Difference b/w Open And Prior Day Settlement,Days Looking Back\n" +
		"2015-01-05,LEG15,,0\n" +
		"2015-01-06,LEG15,,0\n"
	assert.Equal(t, expectedWeekly, string(weekly))
}

func TestChangeBuilderRunMissingEnrichedDataset(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	writeDataFile(t, paths.SettlementDir, "CME_LC_G2015.csv", `Date,Open,High,Low,Settle,Volume,Prev. Day Open Interest
2015-01-05,159.0,160.5,158.5,159.5,1200,3400
`)

	builder := NewChangeBuilder(paths, calendar.New(nil), "LE")
	_, err := builder.Run(context.Background(), domain.AllOpenTypes(), []domain.LookbackInterval{domain.IntervalOvernight})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open enriched dataset")
}

func TestChangeBuilderRunNoSettlementFiles(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	builder := NewChangeBuilder(paths, calendar.New(nil), "LE")
	_, err := builder.Run(context.Background(), domain.AllOpenTypes(), []domain.LookbackInterval{domain.IntervalOvernight})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no settlement files")
}

func TestChangeBuilderRunUnknownInterval(t *testing.T) {
	builder := NewChangeBuilder(config.PathsFrom(t.TempDir()), calendar.New(nil), "LE")
	_, err := builder.Run(context.Background(), domain.AllOpenTypes(), []domain.LookbackInterval{"fortnightly"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown lookback interval")
}

func TestChangeBuilderRunCancelled(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	enriched := enrichedHeader +
		"LEG15,2015-01-05 10:05:00,0,160,160.3,159.9,160.25,100,0.250,2015-02-27,53\n"
	require.NoError(t, os.WriteFile(paths.EnrichedCSV("true_open"), []byte(enriched), 0644))
	writeDataFile(t, paths.SettlementDir, "CME_LC_G2015.csv", `Date,Open,High,Low,Settle,Volume,Prev. Day Open Interest
2015-01-05,159.0,160.5,158.5,159.5,1200,3400
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := NewChangeBuilder(paths, calendar.New([]time.Time{day(2015, 1, 5)}), "LE")
	_, err := builder.Run(ctx, []domain.OpenType{domain.OpenTypeTrue}, []domain.LookbackInterval{domain.IntervalOvernight})
	assert.ErrorIs(t, err, context.Canceled)
}
