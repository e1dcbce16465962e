// Package anomaly flags hourly aggregates whose mean is extreme for its hour of day.
//
// Bounds are computed per hour of day (0-23) across the whole series, so a reading is
// only compared with readings taken at the same time of day.
package anomaly

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/nicktill/gasqc/pkg/sensor"
)

// ErrInvalidOptions is returned by New for out-of-range quantile levels.
var ErrInvalidOptions = errors.New("invalid quantile options")

var validate = validator.New()

// Options configures the quantile levels.
type Options struct {
	Lower      float64 `json:"lower" yaml:"lower" validate:"gte=0,lte=1"`
	Upper      float64 `json:"upper" yaml:"upper" validate:"gte=0,lte=1,gtefield=Lower"`
	MinSamples int     `json:"min_samples" yaml:"min_samples" validate:"gte=1"`
}

// DefaultOptions returns the 1st / 99th percentile setup.
func DefaultOptions() Options {
	return Options{
		Lower:      0.01,
		Upper:      0.99,
		MinSamples: 1,
	}
}

// Bounds is the quantile pair of one hour of day.
// Lower and Upper are NaN when the group had fewer than MinSamples VALID means.
type Bounds struct {
	HourOfDay int              `json:"hour_of_day"`
	Samples   int              `json:"samples"`
	Lower     sensor.NullFloat `json:"lower"`
	Upper     sensor.NullFloat `json:"upper"`
}

// Defined reports whether both bounds could be computed.
func (b Bounds) Defined() bool {
	return !b.Lower.IsNull() && !b.Upper.IsNull()
}

// QuantileTagger re-tags VALID hourly aggregates falling outside their hour-of-day quantiles.
type QuantileTagger struct {
	opts Options
}

// New creates a tagger. A zero Options value selects DefaultOptions.
func New(opts Options) (*QuantileTagger, error) {
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return &QuantileTagger{opts: opts}, nil
}

// Options returns the levels in use.
func (q *QuantileTagger) Options() Options {
	return q.opts
}

// Bounds computes the quantile pair for every hour of day present in aggs.
// Only VALID aggregates with a mean feed the quantiles.
func (q *QuantileTagger) Bounds(aggs []sensor.HourlyAggregate) map[int]Bounds {
	groups := make(map[int][]float64)
	for _, a := range aggs {
		if _, ok := groups[a.HourOfDay]; !ok {
			groups[a.HourOfDay] = nil
		}
		if a.Tag == sensor.TagValid && !a.Mean.IsNull() {
			groups[a.HourOfDay] = append(groups[a.HourOfDay], a.Mean.Float())
		}
	}

	bounds := make(map[int]Bounds, len(groups))
	for hour, means := range groups {
		b := Bounds{
			HourOfDay: hour,
			Samples:   len(means),
			Lower:     sensor.Null(),
			Upper:     sensor.Null(),
		}
		if len(means) >= q.opts.MinSamples && len(means) > 0 {
			b.Lower = sensor.NullFloat(LowerPercentile(means, q.opts.Lower))
			b.Upper = sensor.NullFloat(HigherPercentile(means, q.opts.Upper))
		}
		bounds[hour] = b
	}

	return bounds
}

// SortedBounds returns the bounds ordered by hour of day.
func SortedBounds(bounds map[int]Bounds) []Bounds {
	out := make([]Bounds, 0, len(bounds))
	for _, b := range bounds {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourOfDay < out[j].HourOfDay })
	return out
}

// Tag returns a copy of aggs where every row carries its hour-of-day bounds and
// VALID rows at or beyond a bound are re-tagged LTQTLE01 or GTQTLE99.
func (q *QuantileTagger) Tag(aggs []sensor.HourlyAggregate) []sensor.HourlyAggregate {
	bounds := q.Bounds(aggs)

	out := make([]sensor.HourlyAggregate, len(aggs))
	for i, a := range aggs {
		b := bounds[a.HourOfDay]
		a.Quantile01 = b.Lower
		a.Quantile99 = b.Upper

		if a.Tag == sensor.TagValid && b.Defined() {
			switch mean := a.Mean.Float(); {
			case mean <= b.Lower.Float():
				a.Tag = sensor.TagLTQtle01
			case mean >= b.Upper.Float():
				a.Tag = sensor.TagGTQtle99
			}
		}

		out[i] = a
	}

	return out
}
