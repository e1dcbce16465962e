package ingest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nicktill/gasqc/pkg/sensor"
)

// Resample turns irregular raw samples into a dense series at a fixed interval.
//
// Buckets are anchored at midnight of the first sample's day, so a 15m interval
// always yields :00, :15, :30 and :45 buckets. Each bucket's value is the mean of
// the present values that fall into it; a bucket without one is absent.
// The output covers every bucket from the first to the last observed sample.
//
// Samples sharing a timestamp are not deduplicated: each one contributes to the
// bucket mean, so duplicates are effectively averaged.
//
// A span too long to express as a time.Duration returns ErrSpanTooLong.
func Resample(samples []sensor.Sample, interval time.Duration) (sensor.Series, error) {
	series := sensor.Series{Interval: interval}
	if len(samples) == 0 || interval <= 0 {
		return series, nil
	}

	sorted := make([]sensor.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	first := sorted[0].Timestamp
	origin := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())
	firstBucket := bucketStart(first, origin, interval)
	last := sorted[len(sorted)-1].Timestamp
	// Sub saturates instead of overflowing
	if span := last.Sub(origin); !origin.Add(span).Equal(last) {
		return series, fmt.Errorf("%w: %s to %s", ErrSpanTooLong, first.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	lastBucket := bucketStart(last, origin, interval)

	n := int(lastBucket.Sub(firstBucket)/interval) + 1
	sums := make([]float64, n)
	counts := make([]int, n)

	for _, s := range sorted {
		if s.Value.IsNull() {
			continue
		}
		idx := int(bucketStart(s.Timestamp, origin, interval).Sub(firstBucket) / interval)
		sums[idx] += s.Value.Float()
		counts[idx]++
	}

	series.Points = make([]sensor.TimePoint, n)
	for i := 0; i < n; i++ {
		value := sensor.Null()
		if counts[i] > 0 {
			value = sensor.NullFloat(sums[i] / float64(counts[i]))
		}
		series.Points[i] = sensor.TimePoint{
			Timestamp: firstBucket.Add(time.Duration(i) * interval),
			Value:     value,
		}
	}

	return series, nil
}

// ErrSpanTooLong is returned when the samples span more time than a time.Duration holds.
var ErrSpanTooLong = errors.New("sample span too long")

// bucketStart rounds t down to the start of its interval-wide bucket counted from origin.
func bucketStart(t, origin time.Time, interval time.Duration) time.Time {
	offset := t.Sub(origin)
	return origin.Add(offset - offset%interval)
}
