package overnight

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
)

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	require.NoError(t, err)
	return parsed
}

func minuteBar(t *testing.T, datetime string, open, closePrice float64) marketdata.MinuteBar {
	t.Helper()
	return marketdata.MinuteBar{
		DateTime: at(t, datetime),
		Open:     open,
		High:     closePrice + 0.1,
		Low:      open - 0.1,
		Close:    closePrice,
		Volume:   10,
	}
}

func writeBarFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestAnalyzeContract(t *testing.T) {
	cal := calendar.New([]time.Time{
		day(2015, 1, 5), day(2015, 1, 6), day(2015, 1, 7), day(2015, 1, 8),
	})
	contract := marketdata.ContractBars{
		Symbol: "LEG15",
		Bars: []marketdata.MinuteBar{
			minuteBar(t, "2015-01-05 10:05:00", 160.0, 160.2),
			minuteBar(t, "2015-01-05 11:59:00", 160.3, 160.5),
			minuteBar(t, "2015-01-05 12:04:00", 160.5, 160.6),
			minuteBar(t, "2015-01-05 13:00:00", 160.8, 161.0),
			minuteBar(t, "2015-01-06 10:05:00", 162.0, 162.1),
			minuteBar(t, "2015-01-08 09:30:00", 163.0, 163.2),
		},
	}

	analyzer := NewAnalyzer(config.PathsFrom(t.TempDir()), cal, "LE")
	changes, err := analyzer.AnalyzeContract(contract)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	// A contract's first date has no prior day to reference
	first := changes[0]
	assert.Equal(t, day(2015, 1, 5), first.Date)
	assert.True(t, math.IsNaN(first.ElevenFiftyNine))
	assert.True(t, math.IsNaN(first.TwelveOhFour))
	assert.True(t, math.IsNaN(first.LastBar))

	second := changes[1]
	assert.Equal(t, day(2015, 1, 6), second.Date)
	assert.InDelta(t, 1.5, second.ElevenFiftyNine, 1e-9)
	assert.InDelta(t, 1.4, second.TwelveOhFour, 1e-9)
	assert.InDelta(t, 1.0, second.LastBar, 1e-9)

	// The contract skipped 2015-01-07, the prior trading day for 01-08
	third := changes[2]
	assert.Equal(t, day(2015, 1, 8), third.Date)
	assert.True(t, math.IsNaN(third.ElevenFiftyNine))
	assert.True(t, math.IsNaN(third.TwelveOhFour))
	assert.True(t, math.IsNaN(third.LastBar))
}

func TestAnalyzeContractMissingReferenceBars(t *testing.T) {
	cal := calendar.New([]time.Time{day(2015, 1, 5), day(2015, 1, 6)})
	contract := marketdata.ContractBars{
		Symbol: "LEG15",
		Bars: []marketdata.MinuteBar{
			minuteBar(t, "2015-01-05 10:05:00", 160.0, 160.2),
			minuteBar(t, "2015-01-05 13:00:00", 160.8, 161.0),
			minuteBar(t, "2015-01-06 10:05:00", 162.0, 162.1),
		},
	}

	analyzer := NewAnalyzer(config.PathsFrom(t.TempDir()), cal, "LE")
	changes, err := analyzer.AnalyzeContract(contract)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	// 11:59 and 12:04 bars are absent, the last-bar reference is not
	second := changes[1]
	assert.True(t, math.IsNaN(second.ElevenFiftyNine))
	assert.True(t, math.IsNaN(second.TwelveOhFour))
	assert.InDelta(t, 1.0, second.LastBar, 1e-9)
}

func TestAnalyzeContractPriorBeforeCalendarStart(t *testing.T) {
	// The contract traded before the calendar begins, so its second date
	// is the calendar's first day and has no prior entry
	cal := calendar.New([]time.Time{day(2015, 1, 6), day(2015, 1, 7)})
	contract := marketdata.ContractBars{
		Symbol: "LEG15",
		Bars: []marketdata.MinuteBar{
			minuteBar(t, "2015-01-02 10:05:00", 159.0, 159.2),
			minuteBar(t, "2015-01-06 10:05:00", 162.0, 162.1),
		},
	}

	analyzer := NewAnalyzer(config.PathsFrom(t.TempDir()), cal, "LE")
	changes, err := analyzer.AnalyzeContract(contract)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.True(t, math.IsNaN(changes[1].ElevenFiftyNine))
	assert.True(t, math.IsNaN(changes[1].TwelveOhFour))
	assert.True(t, math.IsNaN(changes[1].LastBar))
}

func TestAnalyzeContractDateOutsideCalendar(t *testing.T) {
	cal := calendar.New([]time.Time{day(2015, 1, 5), day(2015, 1, 6)})
	contract := marketdata.ContractBars{
		Symbol: "LEG15",
		Bars: []marketdata.MinuteBar{
			minuteBar(t, "2015-01-05 10:05:00", 160.0, 160.2),
			minuteBar(t, "2015-01-09 10:05:00", 162.0, 162.1),
		},
	}

	analyzer := NewAnalyzer(config.PathsFrom(t.TempDir()), cal, "LE")
	_, err := analyzer.AnalyzeContract(contract)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the trading-day calendar")
	assert.Contains(t, err.Error(), "LEG15")
}

func TestChangeRecord(t *testing.T) {
	change := Change{
		Symbol:          "LEG15",
		Date:            day(2015, 1, 6),
		ElevenFiftyNine: 1.5,
		TwelveOhFour:    1.4,
		LastBar:         1.0,
	}
	assert.Equal(t, []string{"LEG15", "2015-01-06", "1.500", "1.400", "1.000"}, change.Record())

	blank := emptyChange("LEJ15", day(2015, 2, 2))
	assert.Equal(t, []string{"LEJ15", "2015-02-02", "", "", ""}, blank.Record())
}

func TestRun(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	writeBarFile(t, paths.FuturesDir, "LEG15.csv", `DateTime,Open,High,Low,Close,Volume
2015-01-05 10:05:00,160.0,160.3,159.9,160.2,100
2015-01-05 11:59:00,160.3,160.6,160.2,160.5,90
2015-01-05 12:04:00,160.5,160.7,160.4,160.6,80
2015-01-05 13:00:00,160.8,161.1,160.7,161.0,70
2015-01-06 10:05:00,162.0,162.3,161.9,162.5,60
`)
	writeBarFile(t, paths.FuturesDir, "LEJ15.csv", `DateTime,Open,High,Low,Close,Volume
2015-02-02 10:05:00,140.0,140.3,139.9,140.2,50
`)
	writeBarFile(t, paths.FuturesDir, "GFQ15.csv", `DateTime,Open,High,Low,Close,Volume
2015-01-06 10:05:00,215.5,215.8,215.4,215.7,30
`)

	cal := calendar.New([]time.Time{day(2015, 1, 5), day(2015, 1, 6), day(2015, 2, 2)})
	analyzer := NewAnalyzer(paths, cal, "LE")
	rows, err := analyzer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	content, err := os.ReadFile(paths.OvernightChangesCSV)
	require.NoError(t, err)
	expected := "Symbol,Date,11:59 Change,12:04 Change,Last Bar Change\n" +
		"LEG15,2015-01-05,,,\n" +
		"LEG15,2015-01-06,1.500,1.400,1.000\n" +
		"LEJ15,2015-02-02,,,\n"
	assert.Equal(t, expected, string(content), "GF contract rows must not appear")
}

func TestRunNoMatchingFiles(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	analyzer := NewAnalyzer(paths, calendar.New(nil), "LE")
	_, err := analyzer.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contract files")
}

func TestRunMissingDirectory(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())

	analyzer := NewAnalyzer(paths, calendar.New(nil), "LE")
	_, err := analyzer.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan futures directory")
}

func TestRunCancelled(t *testing.T) {
	paths := config.PathsFrom(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())

	writeBarFile(t, paths.FuturesDir, "LEG15.csv", `DateTime,Open,High,Low,Close,Volume
2015-01-05 10:05:00,160.0,160.3,159.9,160.2,100
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyzer := NewAnalyzer(paths, calendar.New([]time.Time{day(2015, 1, 5)}), "LE")
	_, err := analyzer.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
