// Package marketdata loads the three raw research datasets from disk:
// FirstRate intraday minute bars (one CSV per futures contract), NASDAQ
// SRF settlement series (one CSV per contract), and NASDAQ Data Link
// Commitment-of-Traders reports. Loaders are strict about schema and
// report file/line context on malformed rows.
package marketdata

import (
	"sort"
	"time"
)

// MinuteBar is a single one-minute trading bar from a contract file.
type MinuteBar struct {
	DateTime time.Time `json:"datetime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
}

// Date returns the bar's calendar date with the time zeroed out.
func (b MinuteBar) Date() time.Time {
	return time.Date(b.DateTime.Year(), b.DateTime.Month(), b.DateTime.Day(), 0, 0, 0, 0, b.DateTime.Location())
}

// ContractBars holds every minute bar for one contract, sorted by time.
type ContractBars struct {
	Symbol string      `json:"symbol"`
	Bars   []MinuteBar `json:"bars"`
}

// TradingDates returns the distinct calendar dates in the series,
// ascending.
func (c ContractBars) TradingDates() []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, bar := range c.Bars {
		d := bar.Date()
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// BarsOn returns the bars dated on the given calendar date, in time
// order.
func (c ContractBars) BarsOn(date time.Time) []MinuteBar {
	day := dateOnly(date)
	var bars []MinuteBar
	for _, bar := range c.Bars {
		if bar.Date().Equal(day) {
			bars = append(bars, bar)
		}
	}
	return bars
}

// BarAt returns the bar stamped exactly at the given time, if present.
func (c ContractBars) BarAt(at time.Time) (MinuteBar, bool) {
	for _, bar := range c.Bars {
		if bar.DateTime.Equal(at) {
			return bar, true
		}
	}
	return MinuteBar{}, false
}

// SettlementBar is one row of a contract's daily settlement series.
type SettlementBar struct {
	Date           time.Time `json:"date"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Settle         float64   `json:"settle"`
	Volume         float64   `json:"volume"`
	PrevDayOpenInt float64   `json:"prev_day_open_interest"`
}

// SettlementSeries holds a contract's settlement rows sorted by date
// ascending. ContractKey is the month letter plus two-digit year from
// the source filename (e.g. "F15").
type SettlementSeries struct {
	ContractKey string          `json:"contract_key"`
	Rows        []SettlementBar `json:"rows"`
}

// RowOn returns the settlement row for the given calendar date.
func (s SettlementSeries) RowOn(date time.Time) (SettlementBar, bool) {
	day := dateOnly(date)
	for _, row := range s.Rows {
		if dateOnly(row.Date).Equal(day) {
			return row, true
		}
	}
	return SettlementBar{}, false
}

// FirstDate returns the earliest settlement date in the series.
func (s SettlementSeries) FirstDate() (time.Time, bool) {
	if len(s.Rows) == 0 {
		return time.Time{}, false
	}
	return dateOnly(s.Rows[0].Date), true
}

// COTReport is one Commitment-of-Traders report file. Fields preserves
// the file's column order; Values maps each field to its per-row series
// aligned with Dates. Missing cells are NaN.
type COTReport struct {
	Name   string               `json:"name"`
	Dates  []time.Time          `json:"dates"`
	Fields []string             `json:"fields"`
	Values map[string][]float64 `json:"values"`
}

// nonReportableFields are COT columns excluded from signal analysis.
var nonReportableFields = map[string]struct{}{
	"Date": {},
	"% OF Open Interest (OI) All NoCIT": {},
	"Open Interest - % of OI":           {},
}

// ReportableFields returns the report's analyzable columns in file
// order.
func (r COTReport) ReportableFields() []string {
	fields := make([]string, 0, len(r.Fields))
	for _, field := range r.Fields {
		if _, excluded := nonReportableFields[field]; excluded {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
