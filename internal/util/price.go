// Package util provides common utility functions for price calculations.
package util

import "math"

// RoundToTick rounds a price to the venue's nearest price increment, so
// advisor-proposed trigger prices land on a level the exchange accepts.
// A zero or negative tick leaves the price unchanged.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// IsFinite reports whether x is a usable price or ratio (not NaN, not ±Inf).
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// PctDistance returns the absolute distance between price and ref as a
// percentage of |price|. Returns +Inf when either input is non-finite or
// price is zero, so threshold comparisons treat bad data as "far away".
func PctDistance(price, ref float64) float64 {
	if !IsFinite(price) || !IsFinite(ref) || price == 0 {
		return math.Inf(1)
	}
	return math.Abs(price-ref) / math.Abs(price) * 100
}

// Sign returns -1, 0 or +1 for x. Non-finite values map to 0.
func Sign(x float64) int {
	if !IsFinite(x) {
		return 0
	}
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
