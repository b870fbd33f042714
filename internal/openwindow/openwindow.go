// Package openwindow builds the enriched open-window datasets: every
// bar within the first hour of a session, stamped with its minute
// offset from the open, its price change from the session open, and
// the contract's days to expiration. Two open modes are produced.
// true_open anchors a day strictly at the bar struck at the open time
// and leaves the price change blank when that bar is missing;
// sliding_open slides the anchor to the day's earliest surviving bar.
package openwindow

import (
	"fmt"
	"math"
	"time"

	"github.com/cooper437/commodities-research/internal/config"
	"github.com/cooper437/commodities-research/internal/expirations"
	"github.com/cooper437/commodities-research/internal/marketdata"
	"github.com/cooper437/commodities-research/pkg/contracts/domain"
)

const (
	barTimeFormat = "2006-01-02 15:04:05"
	dateFormat    = "2006-01-02"
)

// Schedule gives each calendar date its session open time. The open
// moved earlier when the trading pit closed.
type Schedule struct {
	pitChange   time.Time
	earlyHour   int
	earlyMinute int
	lateHour    int
	lateMinute  int
}

// NewSchedule builds a schedule from the enrichment configuration.
func NewSchedule(cfg config.EnrichmentConfig) (Schedule, error) {
	pitChange, err := time.Parse(dateFormat, cfg.PitChangeDate)
	if err != nil {
		return Schedule{}, fmt.Errorf("parse pit change date: %w", err)
	}
	early, err := time.Parse("15:04", cfg.EarlyOpen)
	if err != nil {
		return Schedule{}, fmt.Errorf("parse early open: %w", err)
	}
	late, err := time.Parse("15:04", cfg.LateOpen)
	if err != nil {
		return Schedule{}, fmt.Errorf("parse late open: %w", err)
	}
	return Schedule{
		pitChange:   pitChange,
		earlyHour:   early.Hour(),
		earlyMinute: early.Minute(),
		lateHour:    late.Hour(),
		lateMinute:  late.Minute(),
	}, nil
}

// DefaultSchedule is the Live Cattle session schedule: the open moved
// from 10:05 to 09:30 when the pit closed on 2015-07-02.
func DefaultSchedule() Schedule {
	return Schedule{
		pitChange:   time.Date(2015, time.July, 2, 0, 0, 0, 0, time.UTC),
		earlyHour:   9,
		earlyMinute: 30,
		lateHour:    10,
		lateMinute:  5,
	}
}

// OpenTime returns the session open for the given date's session.
func (s Schedule) OpenTime(date time.Time) time.Time {
	y, m, d := date.Date()
	hour, minute := s.earlyHour, s.earlyMinute
	if beforeDate(date, s.pitChange) {
		hour, minute = s.lateHour, s.lateMinute
	}
	return time.Date(y, m, d, hour, minute, 0, 0, date.Location())
}

// beforeDate reports whether a's calendar date precedes b's.
func beforeDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}

// MinutesFromOpen returns the whole minutes from the session open to
// the bar, negative for bars before the open.
func MinutesFromOpen(barTime, openTime time.Time) int {
	return int(barTime.Sub(openTime).Minutes())
}

// EnrichedBar is one open-window bar of an enriched dataset. A NaN
// ChangeFromOpen marks a true_open day with no bar at the open time
// and is persisted as a blank cell.
type EnrichedBar struct {
	Symbol         string
	DateTime       time.Time
	Offset         int
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         int64
	ChangeFromOpen float64
	Expiration     time.Time
	DTE            int
}

// ChangeValid reports whether the bar carries a price change from open.
func (b EnrichedBar) ChangeValid() bool {
	return !math.IsNaN(b.ChangeFromOpen)
}

// Window describes the open trading window bars are kept within.
type Window struct {
	schedule Schedule
	minutes  int
}

// NewWindow creates a window of the given width in minutes after the
// scheduled open.
func NewWindow(schedule Schedule, minutes int) Window {
	return Window{schedule: schedule, minutes: minutes}
}

type keptBar struct {
	bar    marketdata.MinuteBar
	offset int
}

// Enrich computes one contract's open-window bars for the given open
// mode. Bars outside [0, minutes] from the scheduled open are dropped;
// days with no surviving bars are skipped entirely.
func (w Window) Enrich(contract marketdata.ContractBars, index *expirations.Index, mode domain.OpenType) ([]EnrichedBar, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown open type %q", mode)
	}
	expiration, ok := index.Expiration(contract.Symbol)
	if !ok {
		return nil, fmt.Errorf("no expiration recorded for contract %s", contract.Symbol)
	}

	var enriched []EnrichedBar
	for _, date := range contract.TradingDates() {
		openAt := w.schedule.OpenTime(date)

		var kept []keptBar
		for _, bar := range contract.BarsOn(date) {
			offset := MinutesFromOpen(bar.DateTime, openAt)
			if offset < 0 || offset > w.minutes {
				continue
			}
			kept = append(kept, keptBar{bar: bar, offset: offset})
		}
		if len(kept) == 0 {
			continue
		}

		referenceOpen := math.NaN()
		switch mode {
		case domain.OpenTypeSliding:
			referenceOpen = kept[0].bar.Open
		case domain.OpenTypeTrue:
			for _, k := range kept {
				if k.bar.DateTime.Equal(openAt) {
					referenceOpen = k.bar.Open
					break
				}
			}
		}

		dte, _ := index.DaysToExpiration(contract.Symbol, date)
		for _, k := range kept {
			enriched = append(enriched, EnrichedBar{
				Symbol:         contract.Symbol,
				DateTime:       k.bar.DateTime,
				Offset:         k.offset,
				Open:           k.bar.Open,
				High:           k.bar.High,
				Low:            k.bar.Low,
				Close:          k.bar.Close,
				Volume:         k.bar.Volume,
				ChangeFromOpen: k.bar.Close - referenceOpen,
				Expiration:     expiration,
				DTE:            dte,
			})
		}
	}
	return enriched, nil
}
