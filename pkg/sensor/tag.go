package sensor

// Tag is the data-quality label attached to a resampled point or an hourly aggregate.
// The set is closed: every label a stage can produce is declared here.
type Tag string

const (
	// Point-level labels (quality tagger)
	TagMissing  Tag = "MISSING"  // No reading, or hardware error sentinel
	TagLTLL     Tag = "LTLL"     // Below the sensor's lower limit
	TagGTUL     Tag = "GTUL"     // Above the sensor's upper limit
	TagValid    Tag = "VALID"    // Passed every check
	TagBadSpike Tag = "BADSPIKE" // Rate of change faster than the sensor can respond

	// Hour-level labels (hourly aggregator and quantile tagger)
	TagLowSamples Tag = "LOWSAMPLES" // Fewer than 75% of the expected valid samples
	TagLTQtle01   Tag = "LTQTLE01"   // Mean at or below the hour-of-day 1st percentile
	TagGTQtle99   Tag = "GTQTLE99"   // Mean at or above the hour-of-day 99th percentile

	// TagTotal labels the synthetic summary row. No data point ever carries it.
	TagTotal Tag = "TOTAL"
)

// PointTags returns the labels the quality tagger can assign, in report order.
func PointTags() []Tag {
	return []Tag{TagValid, TagMissing, TagLTLL, TagGTUL, TagBadSpike}
}

// HourlyTags returns the labels an hourly aggregate can carry, in report order.
func HourlyTags() []Tag {
	return []Tag{TagValid, TagLowSamples, TagLTQtle01, TagGTQtle99}
}

// Valid reports whether t belongs to the closed label set.
func (t Tag) Valid() bool {
	switch t {
	case TagMissing, TagLTLL, TagGTUL, TagValid, TagBadSpike,
		TagLowSamples, TagLTQtle01, TagGTQtle99:
		return true
	}
	return false
}

func (t Tag) String() string {
	return string(t)
}
