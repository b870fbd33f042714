package marketdata

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadContractBars(t *testing.T) {
	path := writeFixture(t, "LEZ15.csv",
		"DateTime,Open,High,Low,Close,Volume\n"+
			"2015-07-02 09:31:00,148.5,148.6,148.4,148.55,42\n"+
			"2015-07-02 09:30:00,148.4,148.5,148.3,148.5,101\n")

	contract, err := LoadContractBars(path)
	require.NoError(t, err)

	assert.Equal(t, "LEZ15", contract.Symbol)
	require.Len(t, contract.Bars, 2)
	// Sorted by timestamp regardless of file order
	assert.Equal(t, time.Date(2015, 7, 2, 9, 30, 0, 0, time.UTC), contract.Bars[0].DateTime)
	assert.Equal(t, 148.4, contract.Bars[0].Open)
	assert.Equal(t, int64(101), contract.Bars[0].Volume)
}

func TestLoadContractBarsNoHeader(t *testing.T) {
	path := writeFixture(t, "LEG16.csv",
		"2016-01-04 10:05:00,132.1,132.2,132.0,132.15,12\n")

	contract, err := LoadContractBars(path)
	require.NoError(t, err)
	require.Len(t, contract.Bars, 1)
	assert.Equal(t, "LEG16", contract.Symbol)
}

func TestLoadContractBarsMalformedRow(t *testing.T) {
	path := writeFixture(t, "LEZ15.csv",
		"DateTime,Open,High,Low,Close,Volume\n"+
			"2015-07-02 09:30:00,not-a-price,148.5,148.3,148.5,101\n")

	_, err := LoadContractBars(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadContractBarsEmptyFile(t *testing.T) {
	path := writeFixture(t, "LEZ15.csv", "")
	_, err := LoadContractBars(path)
	assert.Error(t, err)
}

func TestContractBarsHelpers(t *testing.T) {
	contract := ContractBars{
		Symbol: "LEZ15",
		Bars: []MinuteBar{
			{DateTime: time.Date(2015, 7, 2, 9, 30, 0, 0, time.UTC), Close: 1},
			{DateTime: time.Date(2015, 7, 2, 9, 31, 0, 0, time.UTC), Close: 2},
			{DateTime: time.Date(2015, 7, 6, 9, 30, 0, 0, time.UTC), Close: 3},
		},
	}

	dates := contract.TradingDates()
	require.Len(t, dates, 2)
	assert.Equal(t, time.Date(2015, 7, 2, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2015, 7, 6, 0, 0, 0, 0, time.UTC), dates[1])

	dayBars := contract.BarsOn(time.Date(2015, 7, 2, 15, 0, 0, 0, time.UTC))
	assert.Len(t, dayBars, 2)

	bar, ok := contract.BarAt(time.Date(2015, 7, 6, 9, 30, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 3.0, bar.Close)

	_, ok = contract.BarAt(time.Date(2015, 7, 6, 9, 31, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestContractKeyFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
		wantErr  bool
	}{
		{name: "standard", filename: "CME_LC_F2015.csv", want: "F15"},
		{name: "full path", filename: "/data/raw/CME_LC_Z2016.csv", want: "Z16"},
		{name: "bad month letter", filename: "CME_LC_A2015.csv", wantErr: true},
		{name: "non numeric year", filename: "CME_LC_F20X5.csv", wantErr: true},
		{name: "too short", filename: "F15.csv", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ContractKeyFromFilename(tt.filename)
			if tt.wantErr || tt.want == "" {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadSettlementSeries(t *testing.T) {
	path := writeFixture(t, "CME_LC_F2015.csv",
		"Date,Open,High,Low,Settle,Volume,Prev. Day Open Interest\n"+
			"2014-12-02,165.0,165.5,164.8,165.2,1200,3400\n"+
			"2014-12-01,164.5,165.0,164.0,164.9,1100,3300\n")

	series, err := LoadSettlementSeries(path)
	require.NoError(t, err)

	assert.Equal(t, "F15", series.ContractKey)
	require.Len(t, series.Rows, 2)
	assert.Equal(t, time.Date(2014, 12, 1, 0, 0, 0, 0, time.UTC), series.Rows[0].Date)
	assert.Equal(t, 164.9, series.Rows[0].Settle)
	assert.Equal(t, 3400.0, series.Rows[1].PrevDayOpenInt)

	row, ok := series.RowOn(time.Date(2014, 12, 2, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 165.2, row.Settle)

	first, ok := series.FirstDate()
	require.True(t, ok)
	assert.Equal(t, time.Date(2014, 12, 1, 0, 0, 0, 0, time.UTC), first)
}

func TestLoadSettlementSeriesDuplicateDate(t *testing.T) {
	path := writeFixture(t, "CME_LC_F2015.csv",
		"Date,Open,High,Low,Settle,Volume,Prev. Day Open Interest\n"+
			"2014-12-01,165.0,165.5,164.8,165.2,1200,3400\n"+
			"2014-12-01,164.5,165.0,164.0,164.9,1100,3300\n")

	_, err := LoadSettlementSeries(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one settlement row")
}

func TestLoadCOTReport(t *testing.T) {
	path := writeFixture(t, "cattle_legacy.csv",
		"Date,Noncommercial Long,Noncommercial Short,% OF Open Interest (OI) All NoCIT\n"+
			"2015-06-30,1000,400,12.5\n"+
			"2015-07-07,1100,,13.0\n")

	report, err := LoadCOTReport(path)
	require.NoError(t, err)

	assert.Equal(t, "cattle_legacy", report.Name)
	require.Len(t, report.Dates, 2)
	assert.Equal(t, []string{"Noncommercial Long", "Noncommercial Short"}, report.ReportableFields())
	assert.True(t, math.IsNaN(report.Values["Noncommercial Short"][1]))
	assert.Equal(t, 1100.0, report.Values["Noncommercial Long"][1])
}

func TestCOTReportDatesWhere(t *testing.T) {
	report := COTReport{
		Dates: []time.Time{
			time.Date(2015, 6, 30, 0, 0, 0, 0, time.UTC),
			time.Date(2015, 7, 7, 0, 0, 0, 0, time.UTC),
			time.Date(2015, 7, 14, 0, 0, 0, 0, time.UTC),
		},
		Fields: []string{"Date", "Shorts"},
		Values: map[string][]float64{"Shorts": {10, 20, math.NaN()}},
	}

	above, below := report.DatesWhere("Shorts", 15)
	assert.Len(t, above, 1)
	assert.Len(t, below, 1)
	_, ok := above[time.Date(2015, 7, 7, 0, 0, 0, 0, time.UTC)]
	assert.True(t, ok)
	_, ok = below[time.Date(2015, 6, 30, 0, 0, 0, 0, time.UTC)]
	assert.True(t, ok)

	// An unresolved median strands every date
	above, below = report.DatesWhere("Shorts", math.NaN())
	assert.Empty(t, above)
	assert.Empty(t, below)
}

func TestSymbolFromFilename(t *testing.T) {
	assert.Equal(t, "LEZ15", SymbolFromFilename("/data/raw/LEZ15.csv"))
	assert.Equal(t, "LEG16", SymbolFromFilename("LEG16.csv"))
}
