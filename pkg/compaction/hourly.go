package compaction

import (
	"time"

	"github.com/nicktill/gasqc/pkg/sensor"
)

const (
	// MinValidityRatio is the percentage of expected samples an hour needs to stay VALID
	MinValidityRatio = 75.0

	labelOffset = 30 * time.Minute
)

// HourlyAggregator builds hourly statistics from tagged points of one sensor
type HourlyAggregator struct {
	expected float64
}

// NewHourly creates an aggregator for the given sensor configuration
func NewHourly(cfg sensor.Config) *HourlyAggregator {
	return &HourlyAggregator{
		expected: cfg.ExpectedPerHour(),
	}
}

// ExpectedCount is the number of points a fully covered hour holds
func (h *HourlyAggregator) ExpectedCount() float64 {
	return h.expected
}

// Aggregate groups VALID points by clock hour and returns one row per hour,
// from the first to the last hour holding a VALID point.
func (h *HourlyAggregator) Aggregate(points []sensor.TaggedPoint) []sensor.HourlyAggregate {
	buckets := make(map[int64]*Aggregate) // keyed by Unix seconds of the hour start
	var first, last time.Time

	for _, p := range points {
		if p.Tag != sensor.TagValid || p.Value.IsNull() {
			continue
		}

		bucketTime := roundTo1Hour(p.Timestamp)

		agg, exists := buckets[bucketTime.Unix()]
		if !exists {
			agg = newAggregate(bucketTime)
			buckets[bucketTime.Unix()] = agg
		}
		agg.Add(p.Value.Float())

		if first.IsZero() || bucketTime.Before(first) {
			first = bucketTime
		}
		if bucketTime.After(last) {
			last = bucketTime
		}
	}

	if len(buckets) == 0 {
		return nil
	}

	var rows []sensor.HourlyAggregate
	for hour := first; !hour.After(last); hour = hour.Add(time.Hour) {
		agg, exists := buckets[hour.Unix()]
		if !exists {
			agg = newAggregate(hour)
		}
		rows = append(rows, h.row(agg))
	}

	return rows
}

func (h *HourlyAggregator) row(agg *Aggregate) sensor.HourlyAggregate {
	ratio := float64(agg.Count) / h.expected * 100

	tag := sensor.TagValid
	if ratio < MinValidityRatio {
		tag = sensor.TagLowSamples
	}

	return sensor.HourlyAggregate{
		Start:         agg.Start,
		Timestamp:     agg.Start.Add(labelOffset),
		HourOfDay:     agg.Start.Hour(),
		Mean:          sensor.NullFloat(agg.Mean()),
		Std:           sensor.NullFloat(agg.Std()),
		Count:         agg.Count,
		ExpectedCount: h.expected,
		ValidityRatio: ratio,
		Tag:           tag,
		Quantile01:    sensor.Null(),
		Quantile99:    sensor.Null(),
	}
}

// roundTo1Hour rounds timestamp down to the start of its clock hour.
// It works on the instant plus its zone offset, so the two copies of an
// hour repeated by a DST change stay separate buckets.
func roundTo1Hour(t time.Time) time.Time {
	_, offset := t.Zone()
	shift := time.Duration(offset) * time.Second
	return t.Add(shift).Truncate(time.Hour).Add(-shift)
}
