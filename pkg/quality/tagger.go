// Package quality labels each point of a resampled series with a data-quality tag.
//
// Tagging runs in two passes. The first classifies a value against the sensor's
// physical range; the second rejects VALID points whose change from the previous
// point is faster than the sensor's step response allows. Both passes look only at
// the point's own value and its diff, never at neighbouring tags.
package quality

import (
	"math"

	"github.com/nicktill/gasqc/pkg/sensor"
)

// Tagger applies the value-bound and spike checks for one sensor.
type Tagger struct {
	cfg     sensor.Config
	maxDiff float64
}

// New creates a tagger. cfg is expected to be validated already.
func New(cfg sensor.Config) *Tagger {
	return &Tagger{
		cfg:     cfg,
		maxDiff: cfg.MaxDiff(),
	}
}

// MaxDiff returns the spike threshold in reading units per sampling interval.
func (t *Tagger) MaxDiff() float64 {
	return t.maxDiff
}

// Classify is the first pass: it checks a value against the sensor limits.
func (t *Tagger) Classify(v sensor.NullFloat) sensor.Tag {
	switch {
	case v.IsNull() || v.Float() <= sensor.MissingSentinel:
		return sensor.TagMissing
	case v.Float() < t.cfg.LowerLimit:
		return sensor.TagLTLL
	case v.Float() > t.cfg.UpperLimit:
		return sensor.TagGTUL
	default:
		return sensor.TagValid
	}
}

// FilterSpike is the second pass. Only VALID points with a known diff are examined.
func (t *Tagger) FilterSpike(tag sensor.Tag, diff sensor.NullFloat) sensor.Tag {
	if tag != sensor.TagValid || diff.IsNull() {
		return tag
	}
	if math.Abs(diff.Float()) > t.maxDiff {
		return sensor.TagBadSpike
	}
	return sensor.TagValid
}

// Tag labels every point of the series and returns a new slice.
func (t *Tagger) Tag(series sensor.Series) []sensor.TaggedPoint {
	points := make([]sensor.TaggedPoint, len(series.Points))

	for i, p := range series.Points {
		diff := sensor.Null()
		if i > 0 {
			diff = Diff(series.Points[i-1].Value, p.Value)
		}

		derived := sensor.Null()
		if !p.Value.IsNull() {
			derived = sensor.NullFloat(t.cfg.ToMass(p.Value.Float()))
		}

		points[i] = sensor.TaggedPoint{
			TimePoint: p,
			Tag:       t.FilterSpike(t.Classify(p.Value), diff),
			Diff:      diff,
			Derived:   derived,
		}
	}

	return points
}

// Diff returns cur - prev, absent when either value is absent.
// Sentinel readings are present numbers and take part in the difference.
func Diff(prev, cur sensor.NullFloat) sensor.NullFloat {
	if prev.IsNull() || cur.IsNull() {
		return sensor.Null()
	}
	return cur - prev
}

// ValidDiffs returns the diffs of the points that ended up VALID.
func ValidDiffs(points []sensor.TaggedPoint) []sensor.NullFloat {
	var diffs []sensor.NullFloat
	for _, p := range points {
		if p.Tag == sensor.TagValid {
			diffs = append(diffs, p.Diff)
		}
	}
	return diffs
}

// Valid returns the VALID points only.
func Valid(points []sensor.TaggedPoint) []sensor.TaggedPoint {
	var valid []sensor.TaggedPoint
	for _, p := range points {
		if p.Tag == sensor.TagValid {
			valid = append(valid, p)
		}
	}
	return valid
}
