package exporter

import (
	"fmt"
	"strconv"
)

// FormatPrice formats a price-scale value for CSV output with exactly three
// decimal places, so values like 151.4 appear as 151.400.
func FormatPrice(f float64) string {
	return fmt.Sprintf("%.3f", f)
}

// FormatStat formats a statistic for CSV output without padding or an
// exponent, keeping full precision.
func FormatStat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatInt formats an int64 value for CSV output
func FormatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}
