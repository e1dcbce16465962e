package anomaly

import (
	"math"
	"sort"
)

// LowerPercentile returns the q-quantile without interpolation, taking the
// data point at or below the exact rank: sorted[floor(q*(n-1))].
// An empty input gives NaN.
func LowerPercentile(values []float64, q float64) float64 {
	sorted, index := rank(values, q)
	if sorted == nil {
		return math.NaN()
	}
	return sorted[int(math.Floor(index))]
}

// HigherPercentile is LowerPercentile taking the data point at or above the rank.
func HigherPercentile(values []float64, q float64) float64 {
	sorted, index := rank(values, q)
	if sorted == nil {
		return math.NaN()
	}
	return sorted[int(math.Ceil(index))]
}

// Percentile returns the q-quantile with linear interpolation between the two nearest ranks.
func Percentile(values []float64, q float64) float64 {
	sorted, index := rank(values, q)
	if sorted == nil {
		return math.NaN()
	}

	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	// Linear interpolation
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// rank sorts a copy of values and returns the fractional index of q, clamped to [0, 1].
func rank(values []float64, q float64) ([]float64, float64) {
	if len(values) == 0 {
		return nil, 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q = math.Max(0, math.Min(1, q))
	return sorted, q * float64(len(sorted)-1)
}
