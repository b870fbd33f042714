package domain

// OpenType selects how a trading day's reference open bar is chosen when
// computing intraday price change from open.
type OpenType string

const (
	// OpenTypeTrue uses the bar at the exact open time; days where that
	// minute never traded keep their bars but carry a blank change.
	OpenTypeTrue OpenType = "true_open"
	// OpenTypeSliding always uses the day's earliest in-window bar.
	OpenTypeSliding OpenType = "sliding_open"
)

// AllOpenTypes returns the open types in dataset output order
func AllOpenTypes() []OpenType {
	return []OpenType{OpenTypeTrue, OpenTypeSliding}
}

// Valid reports whether the open type is a known mode
func (t OpenType) Valid() bool {
	return t == OpenTypeTrue || t == OpenTypeSliding
}

func (t OpenType) String() string {
	return string(t)
}

// LookbackInterval identifies a settlement gap lookback horizon
type LookbackInterval string

const (
	IntervalOvernight LookbackInterval = "overnight"
	IntervalWeekly    LookbackInterval = "weekly"
	IntervalMonthly   LookbackInterval = "monthly"
	// IntervalAnnualy keeps the dataset family's historical spelling so
	// downstream consumers keep resolving the same filenames.
	IntervalAnnualy LookbackInterval = "annualy"
)

// AllLookbackIntervals returns the lookback intervals in dataset output order
func AllLookbackIntervals() []LookbackInterval {
	return []LookbackInterval{IntervalOvernight, IntervalWeekly, IntervalMonthly, IntervalAnnualy}
}

// Valid reports whether the interval is a known lookback horizon
func (i LookbackInterval) Valid() bool {
	switch i {
	case IntervalOvernight, IntervalWeekly, IntervalMonthly, IntervalAnnualy:
		return true
	}
	return false
}

func (i LookbackInterval) String() string {
	return string(i)
}

// BaseLookbackDays returns the calendar-day distance where the reference
// settlement search starts. Overnight is special-cased to the prior trading
// day rather than a fixed distance.
func (i LookbackInterval) BaseLookbackDays() int {
	switch i {
	case IntervalWeekly:
		return 7
	case IntervalMonthly:
		return 28
	case IntervalAnnualy:
		return 365
	default:
		return 1
	}
}

// TemporalInterval identifies a calendar grouping for temporal analytics
type TemporalInterval string

const (
	TemporalDayOfWeek TemporalInterval = "day_of_week"
	TemporalMonth     TemporalInterval = "month"
	TemporalYear      TemporalInterval = "year"
)

// AllTemporalIntervals returns the grouping intervals in dataset output order
func AllTemporalIntervals() []TemporalInterval {
	return []TemporalInterval{TemporalDayOfWeek, TemporalMonth, TemporalYear}
}

// Valid reports whether the interval is a known calendar grouping
func (i TemporalInterval) Valid() bool {
	switch i {
	case TemporalDayOfWeek, TemporalMonth, TemporalYear:
		return true
	}
	return false
}

func (i TemporalInterval) String() string {
	return string(i)
}

// Column names of the enriched bar datasets. Later stages join and filter on
// these, so they are part of the dataset contract, not private to the writer.
const (
	ColSymbol              = "Symbol"
	ColDateTime            = "DateTime"
	ColOpenMinutesOffset   = "Open Minutes Offset"
	ColOpen                = "Open"
	ColHigh                = "High"
	ColLow                 = "Low"
	ColClose               = "Close"
	ColVolume              = "Volume"
	ColPriceChangeFromOpen = "Price Change From Intraday Open"
	ColExpirationDate      = "Expiration Date"
	ColDTE                 = "DTE"
)

// EnrichedBarColumns returns the enriched dataset header in column order
func EnrichedBarColumns() []string {
	return []string{
		ColSymbol,
		ColDateTime,
		ColOpenMinutesOffset,
		ColOpen,
		ColHigh,
		ColLow,
		ColClose,
		ColVolume,
		ColPriceChangeFromOpen,
		ColExpirationDate,
		ColDTE,
	}
}

// Settlement gap dataset columns
const (
	ColDate            = "Date"
	ColSettlementDiff  = "Price Difference b/w Open And Prior Day Settlement"
	ColDaysLookingBack = "Days Looking Back"
)

// ColOpenType labels which open mode produced a row in the analytics
// datasets that mix both.
const ColOpenType = "Open Type"

// Median split side labels shared by the COT signal and settlement
// split datasets
const (
	SideAbove = "above"
	SideBelow = "below"
)

// Intraday summary battery columns shared by the temporal, COT signal, and
// settlement split datasets
const (
	ColACFOT30         = "ACFO t+30"
	ColACFOT60         = "ACFO t+60"
	ColStdDevCFOT60    = "Std Deviation of Intraday Price Change at Open t+60"
	ColMaxACFO         = "Max ACFO"
	ColMinACFO         = "Min ACFO"
	ColMinuteOfMaxACFO = "Minute of Max ACFO"
	ColMinuteOfMinACFO = "Minute of Min ACFO"
	ColMedianCFOT60    = "Median Intraday CFO Value t+60"
	ColPctGTEMedianT60 = "Percent GTE Median CFO t+60"
)

// BatteryColumns returns the summary battery header fragment in column order
func BatteryColumns() []string {
	return []string{
		ColACFOT30,
		ColACFOT60,
		ColStdDevCFOT60,
		ColMaxACFO,
		ColMinACFO,
		ColMinuteOfMaxACFO,
		ColMinuteOfMinACFO,
		ColMedianCFOT60,
		ColPctGTEMedianT60,
	}
}
