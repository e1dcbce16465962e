package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/nicktill/gasqc/pkg/anomaly"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(id string) sensor.Config {
	return sensor.Config{
		ID:             id,
		LowerLimit:     0,
		UpperLimit:     100,
		T90:            60 * time.Minute,
		T90Value:       40,
		SamplingPeriod: 15 * time.Minute,
		MolarMass:      46.0055,
	}
}

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// threeHours covers 10:00-12:45 at 15 minute steps.
func threeHours(sensorID string) []sensor.Sample {
	values := []float64{
		10, 20, 30, 40, // 10:00 all valid
		45, 200, -9999, 50, // 11:00 one valid, GTUL, MISSING, spike after the sentinel
		52, 54, 56, 58, // 12:00 all valid
	}
	samples := make([]sensor.Sample, len(values))
	for i, v := range values {
		samples[i] = sensor.Sample{
			SensorID:  sensorID,
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Value:     sensor.NullFloat(v),
		}
	}
	return samples
}

func count(t *testing.T, s summary.Summary, tag sensor.Tag) int {
	t.Helper()
	row, ok := s.Row(tag)
	require.True(t, ok, "missing row %s", tag)
	return row.Count
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("bad")
	cfg.LowerLimit = 500

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sensor.ErrInvalidConfig))

	_, err = New(testConfig("ok"), WithQuantiles(anomaly.Options{Lower: 0.9, Upper: 0.1, MinSamples: 1}))
	assert.True(t, errors.Is(err, anomaly.ErrInvalidOptions))
}

func TestNew_AppliesDefaults(t *testing.T) {
	cfg := testConfig("no2")
	cfg.SamplingPeriod = 0

	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, p.Config().SamplingPeriod)
}

func TestRun_EndToEnd(t *testing.T) {
	completed := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	p, err := New(testConfig("no2"), WithClock(func() time.Time { return completed }))
	require.NoError(t, err)

	res, err := p.Run(threeHours("no2"))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "no2", res.SensorID)
	assert.Equal(t, completed, res.CompletedAt)
	assert.Equal(t, 12, res.Series.Len())
	require.Len(t, res.Points, 12)

	assert.Equal(t, sensor.TagGTUL, res.Points[5].Tag)
	assert.Equal(t, sensor.TagMissing, res.Points[6].Tag)
	assert.Equal(t, sensor.TagBadSpike, res.Points[7].Tag)

	assert.Equal(t, 9, count(t, res.PointSummary, sensor.TagValid))
	assert.Equal(t, 1, count(t, res.PointSummary, sensor.TagGTUL))
	assert.Equal(t, 1, count(t, res.PointSummary, sensor.TagMissing))
	assert.Equal(t, 1, count(t, res.PointSummary, sensor.TagBadSpike))
	assert.Equal(t, 0, count(t, res.PointSummary, sensor.TagLTLL))
	assert.Equal(t, 12, res.PointSummary.Total())

	require.Len(t, res.Hourly, 3)
	assert.Equal(t, 25.0, res.Hourly[0].Mean.Float())
	assert.Equal(t, 45.0, res.Hourly[1].Mean.Float())
	assert.Equal(t, 55.0, res.Hourly[2].Mean.Float())

	// A single day gives one mean per hour of day: each valid hour sits on its own lower bound
	assert.Equal(t, sensor.TagLTQtle01, res.Hourly[0].Tag)
	assert.Equal(t, sensor.TagLowSamples, res.Hourly[1].Tag)
	assert.Equal(t, sensor.TagLTQtle01, res.Hourly[2].Tag)
	assert.Equal(t, 2, count(t, res.HourlySummary, sensor.TagLTQtle01))
	assert.Equal(t, 1, count(t, res.HourlySummary, sensor.TagLowSamples))

	require.Len(t, res.Bounds, 3)
	assert.Equal(t, 10, res.Bounds[0].HourOfDay)
	assert.False(t, res.Bounds[1].Defined(), "hour 11 has no valid mean")
}

func TestRun_QuantilesAcrossDays(t *testing.T) {
	p, err := New(testConfig("no2"))
	require.NoError(t, err)

	// Five days of a flat hour-of-day profile, one day shifted up
	var samples []sensor.Sample
	for day := 0; day < 5; day++ {
		level := 40.0 + float64(day)
		for i := 0; i < 4; i++ {
			samples = append(samples, sensor.Sample{
				SensorID:  "no2",
				Timestamp: base.Add(time.Duration(day)*24*time.Hour + time.Duration(i)*15*time.Minute),
				Value:     sensor.NullFloat(level),
			})
		}
	}

	res, err := p.Run(samples)
	require.NoError(t, err)

	// The range spans the hours in between, which hold no valid points
	var tagged []sensor.HourlyAggregate
	for _, h := range res.Hourly {
		if h.HourOfDay == 10 {
			tagged = append(tagged, h)
		}
	}
	require.Len(t, tagged, 5)
	assert.Equal(t, sensor.TagLTQtle01, tagged[0].Tag)
	assert.Equal(t, sensor.TagValid, tagged[1].Tag)
	assert.Equal(t, sensor.TagValid, tagged[2].Tag)
	assert.Equal(t, sensor.TagValid, tagged[3].Tag)
	assert.Equal(t, sensor.TagGTQtle99, tagged[4].Tag)
	for _, h := range tagged {
		assert.Equal(t, 40.0, h.Quantile01.Float())
		assert.Equal(t, 44.0, h.Quantile99.Float())
	}
}

func TestRun_DoesNotMutateInput(t *testing.T) {
	p, err := New(testConfig("no2"))
	require.NoError(t, err)

	samples := threeHours("no2")
	samples[0], samples[11] = samples[11], samples[0]

	_, err = p.Run(samples)
	require.NoError(t, err)

	assert.Equal(t, 58.0, samples[0].Value.Float())
	assert.Equal(t, 10.0, samples[11].Value.Float())
}

func TestRun_Empty(t *testing.T) {
	p, err := New(testConfig("no2"))
	require.NoError(t, err)

	res, err := p.Run(nil)
	require.NoError(t, err)

	assert.Empty(t, res.Points)
	assert.Empty(t, res.Hourly)
	assert.Equal(t, 0, res.PointSummary.Total())
}

func TestTagCounts(t *testing.T) {
	s, err := summary.Summarize([]sensor.Tag{sensor.TagValid, sensor.TagValid}, sensor.PointTags())
	require.NoError(t, err)

	counts := TagCounts(s)
	assert.Equal(t, 2, counts["VALID"])
	assert.Equal(t, 0, counts["MISSING"])
	_, hasTotal := counts["TOTAL"]
	assert.False(t, hasTotal)
}
