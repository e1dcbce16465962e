// Package summary counts how often each quality tag occurs in a tagged series.
package summary

import (
	"errors"
	"fmt"

	"github.com/nicktill/gasqc/pkg/sensor"
)

// ErrUnknownTag is returned when a tag outside the requested set is counted.
var ErrUnknownTag = errors.New("unknown tag")

// Row is one line of a summary table
type Row struct {
	Tag     sensor.Tag       `json:"tag"`
	Count   int              `json:"count"`
	Percent sensor.NullFloat `json:"percent"` // null when the table is empty
}

// Summary is an ordered tag count table ending with a TOTAL row
type Summary struct {
	Rows []Row `json:"rows"`
}

// Summarize counts tags in the order given by set and appends a TOTAL row.
// Tags of set that never occur are listed with a zero count. With no tags at
// all every percentage is NaN.
func Summarize(tags []sensor.Tag, set []sensor.Tag) (Summary, error) {
	counts := make(map[sensor.Tag]int, len(set))
	for _, tag := range set {
		counts[tag] = 0
	}

	for _, tag := range tags {
		if _, ok := counts[tag]; !ok {
			return Summary{}, fmt.Errorf("%w %q", ErrUnknownTag, tag)
		}
		counts[tag]++
	}

	total := len(tags)
	s := Summary{Rows: make([]Row, 0, len(set)+1)}
	for _, tag := range set {
		s.Rows = append(s.Rows, Row{
			Tag:     tag,
			Count:   counts[tag],
			Percent: percent(counts[tag], total),
		})
	}
	s.Rows = append(s.Rows, Row{
		Tag:     sensor.TagTotal,
		Count:   total,
		Percent: percent(total, total),
	})

	return s, nil
}

func percent(count, total int) sensor.NullFloat {
	if total == 0 {
		return sensor.Null()
	}
	return sensor.NullFloat(float64(count) / float64(total) * 100)
}

// Row returns the row for tag, if present.
func (s Summary) Row(tag sensor.Tag) (Row, bool) {
	for _, r := range s.Rows {
		if r.Tag == tag {
			return r, true
		}
	}
	return Row{}, false
}

// Total returns the number of counted items.
func (s Summary) Total() int {
	if r, ok := s.Row(sensor.TagTotal); ok {
		return r.Count
	}
	return 0
}

// PointSummary summarizes point tags over the point-level label set.
func PointSummary(points []sensor.TaggedPoint) (Summary, error) {
	tags := make([]sensor.Tag, len(points))
	for i, p := range points {
		tags[i] = p.Tag
	}
	return Summarize(tags, sensor.PointTags())
}

// HourlySummary summarizes hourly tags over the hourly label set.
func HourlySummary(aggs []sensor.HourlyAggregate) (Summary, error) {
	tags := make([]sensor.Tag, len(aggs))
	for i, a := range aggs {
		tags[i] = a.Tag
	}
	return Summarize(tags, sensor.HourlyTags())
}
