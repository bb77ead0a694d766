// Package stats provides the small set of descriptive statistics the
// filter pipeline and summary aggregation rely on. Mean and standard
// deviation delegate to gonum; Percentile implements linear
// interpolation between order statistics so thresholds reproduce the
// values the analysis protocol was calibrated against.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean of xs, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// PopStdDev returns the population standard deviation of xs (divisor n,
// not n-1), or NaN for an empty slice.
func PopStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.PopStdDev(xs, nil)
}

// Percentile returns the q-th percentile (0 <= q <= 100) of xs using
// linear interpolation between the two nearest order statistics: with n
// sorted values the rank is (n-1)*q/100 and fractional ranks interpolate
// between neighbours. Returns NaN for an empty slice.
func Percentile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := float64(len(sorted)-1) * q / 100
	lo := int(math.Floor(rank))
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// IQR returns the interquartile range Q3-Q1 of xs.
func IQR(xs []float64) float64 {
	return Percentile(xs, 75) - Percentile(xs, 25)
}
