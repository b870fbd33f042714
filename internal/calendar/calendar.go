// Package calendar maintains the unique-trading-days calendar derived
// from the intraday bar files. The calendar is the reference for
// prior-trading-day lookups in the overnight and settlement
// comparisons, and for mapping bar dates onto Commitment-of-Traders
// report Tuesdays.
package calendar

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// daysSincePrecedingTuesday maps a weekday to the distance back to the
// Tuesday whose COT report was already published on that day. A Monday
// trade references the Tuesday six days earlier; a Tuesday references
// the previous week's Tuesday, not itself.
var daysSincePrecedingTuesday = map[time.Weekday]int{
	time.Monday:    6,
	time.Tuesday:   7,
	time.Wednesday: 8,
	time.Thursday:  9,
	time.Friday:    10,
	time.Saturday:  11,
	time.Sunday:    12,
}

// Calendar is an ordered set of trading dates.
type Calendar struct {
	days  []time.Time
	index map[time.Time]int
}

// New builds a calendar from the given dates, deduplicating and
// normalizing each to midnight.
func New(dates []time.Time) *Calendar {
	seen := make(map[time.Time]struct{}, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := DateOf(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	index := make(map[time.Time]int, len(days))
	for i, d := range days {
		index[d] = i
	}
	return &Calendar{days: days, index: index}
}

// Load reads a calendar from a single-column CSV written by the
// trading-days stage (header "DateTime", rows formatted 2006-01-02).
func Load(path string) (*Calendar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trading days file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read trading days file: %w", err)
	}

	var dates []time.Time
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		cell := strings.TrimSpace(record[0])
		if i == 0 && strings.EqualFold(cell, "DateTime") {
			continue
		}
		date, err := time.Parse("2006-01-02", cell)
		if err != nil {
			return nil, fmt.Errorf("parse trading day (line %d): %w", i+1, err)
		}
		dates = append(dates, date)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("trading days file %s has no dates", path)
	}
	return New(dates), nil
}

// Days returns the calendar's dates in ascending order.
func (c *Calendar) Days() []time.Time {
	out := make([]time.Time, len(c.days))
	copy(out, c.days)
	return out
}

// Len returns the number of trading days.
func (c *Calendar) Len() int {
	return len(c.days)
}

// Contains reports whether the given date is a trading day.
func (c *Calendar) Contains(date time.Time) bool {
	_, ok := c.index[DateOf(date)]
	return ok
}

// Prior returns the trading day immediately before the given date. The
// second return is false when the date is not in the calendar or is the
// calendar's first day.
func (c *Calendar) Prior(date time.Time) (time.Time, bool) {
	i, ok := c.index[DateOf(date)]
	if !ok || i == 0 {
		return time.Time{}, false
	}
	return c.days[i-1], true
}

// PrecedingTuesday returns the date of the Tuesday whose COT report
// would have been in circulation on the given trading date.
func PrecedingTuesday(date time.Time) time.Time {
	day := DateOf(date)
	return day.AddDate(0, 0, -daysSincePrecedingTuesday[day.Weekday()])
}

// DateOf strips the time-of-day from a timestamp.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
