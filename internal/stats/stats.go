// Package stats provides the small set of descriptive statistics the
// research datasets are built from: means, sample standard deviation,
// interpolated medians, min-max normalization, and half-up decimal
// rounding for price arithmetic.
package stats

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Mean returns the arithmetic mean of values. NaN and Inf entries are
// ignored. The second return is false when no valid values remain.
func Mean(values []float64) (float64, bool) {
	sum := 0.0
	count := 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// SampleStdDev returns the sample standard deviation (n-1 denominator).
// At least two valid values are required.
func SampleStdDev(values []float64) (float64, bool) {
	mean, ok := Mean(values)
	if !ok {
		return 0, false
	}
	sumSquared := 0.0
	count := 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		d := v - mean
		sumSquared += d * d
		count++
	}
	if count < 2 {
		return 0, false
	}
	return math.Sqrt(sumSquared / float64(count-1)), true
}

// Median returns the median of values, averaging the two middle elements
// for even-length input.
func Median(values []float64) (float64, bool) {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		valid = append(valid, v)
	}
	if len(valid) == 0 {
		return 0, false
	}
	sort.Float64s(valid)
	n := len(valid)
	if n%2 == 0 {
		return (valid[n/2-1] + valid[n/2]) / 2, true
	}
	return valid[n/2], true
}

// MinMax returns the smallest and largest of values.
func MinMax(values []float64) (min, max float64, ok bool) {
	first := true
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, !first
}

// Normalize rescales values into [0, 1] with min-max normalization.
// The second return is false when the range is degenerate (fewer than
// two valid values, or all values equal), in which case the input is
// returned unchanged.
func Normalize(values []float64) ([]float64, bool) {
	min, max, ok := MinMax(values)
	if !ok || max == min {
		return values, false
	}
	span := max - min
	normalized := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			normalized[i] = math.NaN()
			continue
		}
		normalized[i] = (v - min) / span
	}
	return normalized, true
}

// RoundHalfUp rounds v to the given number of decimal places with ties
// going away from zero, the rounding the settlement comparisons use.
func RoundHalfUp(v float64, places int32) float64 {
	rounded, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return rounded
}

// RoundHalfUpString renders v rounded half-up to the given number of
// decimal places, keeping trailing zeros (e.g. 1.5 at 3 places is
// "1.500").
func RoundHalfUpString(v float64, places int32) string {
	return decimal.NewFromFloat(v).Round(places).StringFixed(places)
}
