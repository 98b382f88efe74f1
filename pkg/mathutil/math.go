// Package mathutil provides rounding and clamping helpers for monetary values.
package mathutil

import (
	"math"
	"time"
)

// RoundCents rounds v to two decimal places, half away from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ClampInt clamps an integer value to a range [min, max].
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// WholeYearsBetween returns the number of complete years from start to end,
// counting anniversaries. It is 0 when end is before start.
func WholeYearsBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	years := end.Year() - start.Year()
	if start.AddDate(years, 0, 0).After(end) {
		years--
	}
	return years
}
