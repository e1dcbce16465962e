package compaction

import (
	"math"
	"time"
)

// Aggregate accumulates the VALID values of one hour bucket
type Aggregate struct {
	Start time.Time

	Sum   float64
	Count int

	// Needed for the sample standard deviation
	Values []float64
}

func newAggregate(start time.Time) *Aggregate {
	return &Aggregate{Start: start}
}

// Add folds one value into the bucket
func (a *Aggregate) Add(v float64) {
	a.Sum += v
	a.Count++
	a.Values = append(a.Values, v)
}

// Mean returns the arithmetic mean, NaN for an empty bucket.
func (a *Aggregate) Mean() float64 {
	if a.Count == 0 {
		return math.NaN()
	}
	return a.Sum / float64(a.Count)
}

// Std returns the sample standard deviation (n-1 denominator).
// Fewer than two values give NaN.
func (a *Aggregate) Std() float64 {
	if a.Count < 2 {
		return math.NaN()
	}
	mean := a.Mean()
	var sq float64
	for _, v := range a.Values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(a.Count-1))
}
