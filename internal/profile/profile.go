// Package profile computes the intraday summary battery shared by the
// temporal, COT signal, and settlement split tables: the average
// change-from-open curve landmarks plus dispersion and median-share
// stats at the key open minute.
package profile

import (
	"math"
	"sort"
	"strconv"

	"github.com/cooper437/commodities-research/internal/exporter"
	"github.com/cooper437/commodities-research/internal/openwindow"
	"github.com/cooper437/commodities-research/internal/stats"
)

// Battery is one split's summary stats. Float fields are NaN and
// minute fields -1 when the underlying bars cannot support the stat.
type Battery struct {
	ACFOT30      float64
	ACFOT60      float64
	StdDevT60    float64
	MaxACFO      float64
	MinACFO      float64
	MinuteOfMax  int
	MinuteOfMin  int
	MedianT60    float64
	PctGTEMedian float64
}

// Cells renders the battery in domain.BatteryColumns order, blanking
// stats that could not be computed.
func (b Battery) Cells() []string {
	return []string{
		statCell(b.ACFOT30),
		statCell(b.ACFOT60),
		statCell(b.StdDevT60),
		statCell(b.MaxACFO),
		statCell(b.MinACFO),
		minuteCell(b.MinuteOfMax),
		minuteCell(b.MinuteOfMin),
		statCell(b.MedianT60),
		statCell(b.PctGTEMedian),
	}
}

func statCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return exporter.FormatStat(v)
}

func minuteCell(minute int) string {
	if minute < 0 {
		return ""
	}
	return strconv.Itoa(minute)
}

// Summarize computes the battery over a set of enriched bars.
//
// The ACFO curve groups bars by offset and averages their valid
// changes; t+30 and t+60 read the curve's 30th and 60th rows. The
// max/min scan covers minutes 0 through keyMinute-1 and a tie goes to
// the later minute. Std deviation, the percent-GTE share, and the
// echoed reference median all sit at offset keyMinute-1; the percent's
// denominator counts every bar at that offset, blank changes included.
func Summarize(bars []openwindow.EnrichedBar, keyMinute int, referenceMedian float64) Battery {
	byOffset := make(map[int][]float64)
	for _, bar := range bars {
		byOffset[bar.Offset] = append(byOffset[bar.Offset], bar.ChangeFromOpen)
	}

	curve := curveFrom(byOffset)
	battery := Battery{
		ACFOT30:      curve.at(29),
		ACFOT60:      curve.at(59),
		StdDevT60:    math.NaN(),
		MaxACFO:      math.NaN(),
		MinACFO:      math.NaN(),
		MinuteOfMax:  -1,
		MinuteOfMin:  -1,
		MedianT60:    referenceMedian,
		PctGTEMedian: math.NaN(),
	}

	keyValues := byOffset[keyMinute-1]
	if sd, ok := stats.SampleStdDev(keyValues); ok {
		battery.StdDevT60 = sd
	}
	if len(keyValues) > 0 && !math.IsNaN(referenceMedian) {
		gte := 0
		for _, v := range keyValues {
			if !math.IsNaN(v) && v >= referenceMedian {
				gte++
			}
		}
		battery.PctGTEMedian = stats.RoundHalfUp(float64(gte)/float64(len(keyValues))*100, 4)
	}

	for minute := 0; minute < keyMinute; minute++ {
		mean, ok := stats.Mean(byOffset[minute])
		if !ok {
			continue
		}
		if math.IsNaN(battery.MaxACFO) || mean >= battery.MaxACFO {
			battery.MaxACFO = mean
			battery.MinuteOfMax = minute
		}
		if math.IsNaN(battery.MinACFO) || mean <= battery.MinACFO {
			battery.MinACFO = mean
			battery.MinuteOfMin = minute
		}
	}
	return battery
}

// KeyMinuteMedian returns the median change-from-open at offset
// keyMinute-1 across the whole dataset, the reference every split's
// percent-GTE stat is measured against. NaN when no bar at that offset
// carries a valid change.
func KeyMinuteMedian(bars []openwindow.EnrichedBar, keyMinute int) float64 {
	keyOffset := keyMinute - 1
	var values []float64
	for _, bar := range bars {
		if bar.Offset == keyOffset {
			values = append(values, bar.ChangeFromOpen)
		}
	}
	median, ok := stats.Median(values)
	if !ok {
		return math.NaN()
	}
	return median
}

// FilterDTE keeps bars whose days-to-expiration fall inside the
// inclusive range, dropping the expiry-adjacent days that often miss a
// true open bar.
func FilterDTE(bars []openwindow.EnrichedBar, minDTE, maxDTE int) []openwindow.EnrichedBar {
	kept := make([]openwindow.EnrichedBar, 0, len(bars))
	for _, bar := range bars {
		if bar.DTE >= minDTE && bar.DTE <= maxDTE {
			kept = append(kept, bar)
		}
	}
	return kept
}

// curve holds the per-offset mean changes ordered by offset ascending.
// Positions index rows, not offset values, so a sparse offset range
// shifts later rows forward.
type curve struct {
	means []float64
}

func curveFrom(byOffset map[int][]float64) curve {
	offsets := make([]int, 0, len(byOffset))
	for offset := range byOffset {
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)

	means := make([]float64, len(offsets))
	for i, offset := range offsets {
		mean, ok := stats.Mean(byOffset[offset])
		if !ok {
			mean = math.NaN()
		}
		means[i] = mean
	}
	return curve{means: means}
}

func (c curve) at(position int) float64 {
	if position < 0 || position >= len(c.means) {
		return math.NaN()
	}
	return c.means[position]
}
