package sensor

import (
	"encoding/json"
	"math"
	"time"
)

// NullFloat is a float64 where NaN stands for "no value".
// JSON has no NaN, so absent values are written and read as null.
type NullFloat float64

// Null returns an absent value.
func Null() NullFloat {
	return NullFloat(math.NaN())
}

// IsNull reports whether the value is absent.
func (f NullFloat) IsNull() bool {
	return math.IsNaN(float64(f))
}

// Float returns the raw float64 (NaN when absent).
func (f NullFloat) Float() float64 {
	return float64(f)
}

// MarshalJSON writes NaN as null.
func (f NullFloat) MarshalJSON() ([]byte, error) {
	if f.IsNull() || math.IsInf(float64(f), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

// UnmarshalJSON reads null as NaN.
func (f *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Null()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = NullFloat(v)
	return nil
}

// EarliestSample is the cut-off for stored samples. Older timestamps come from
// unsynchronized logger clocks.
var EarliestSample = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Sample is one raw measurement as delivered by a sensor or a data source.
type Sample struct {
	SensorID  string    `json:"sensor_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     NullFloat `json:"value"`
	Latitude  float64   `json:"latitude,omitempty"`
	Longitude float64   `json:"longitude,omitempty"`
}

// TimePoint is a single (timestamp, value) pair of a resampled series.
type TimePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     NullFloat `json:"value"`
}

// Series is a dense, strictly increasing sequence of points at a fixed interval.
// Missing intervals are present with an absent value.
type Series struct {
	Interval time.Duration `json:"interval"`
	Points   []TimePoint   `json:"points"`
}

// Len returns the number of points in the series.
func (s Series) Len() int {
	return len(s.Points)
}

// TaggedPoint is a resampled point after quality tagging.
type TaggedPoint struct {
	TimePoint
	Tag     Tag       `json:"tag"`
	Diff    NullFloat `json:"diff"`    // Change from the previous point's value
	Derived NullFloat `json:"derived"` // Mass density converted from the raw concentration
}

// HourlyAggregate summarizes the VALID points of one clock hour.
type HourlyAggregate struct {
	Start         time.Time `json:"start"`     // Hour boundary, used for computation
	Timestamp     time.Time `json:"timestamp"` // Hour midpoint, used as display label
	HourOfDay     int       `json:"hour_of_day"`
	Mean          NullFloat `json:"mean"`
	Std           NullFloat `json:"std"`
	Count         int       `json:"count"`
	ExpectedCount float64   `json:"expected_count"`
	ValidityRatio float64   `json:"validity_ratio"`
	Tag           Tag       `json:"tag"`
	Quantile01    NullFloat `json:"quantile_01"`
	Quantile99    NullFloat `json:"quantile_99"`
}
