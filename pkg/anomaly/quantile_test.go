package anomaly

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourly(day, hour int, mean float64, tag sensor.Tag) sensor.HourlyAggregate {
	start := time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
	return sensor.HourlyAggregate{
		Start:      start,
		Timestamp:  start.Add(30 * time.Minute),
		HourOfDay:  hour,
		Mean:       sensor.NullFloat(mean),
		Tag:        tag,
		Quantile01: sensor.Null(),
		Quantile99: sensor.Null(),
	}
}

func mustNew(t *testing.T, opts Options) *QuantileTagger {
	t.Helper()
	q, err := New(opts)
	require.NoError(t, err)
	return q
}

func TestNew_Options(t *testing.T) {
	q := mustNew(t, Options{})
	assert.Equal(t, DefaultOptions(), q.Options())

	tests := []struct {
		name string
		opts Options
	}{
		{"lower above upper", Options{Lower: 0.9, Upper: 0.1, MinSamples: 1}},
		{"upper above one", Options{Lower: 0.1, Upper: 1.5, MinSamples: 1}},
		{"negative lower", Options{Lower: -0.1, Upper: 0.9, MinSamples: 1}},
		{"zero min samples", Options{Lower: 0.1, Upper: 0.9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidOptions))
		})
	}
}

func TestTag_ExtremesPerHourOfDay(t *testing.T) {
	aggs := []sensor.HourlyAggregate{
		hourly(1, 10, 5, sensor.TagValid),
		hourly(2, 10, 1, sensor.TagValid),
		hourly(3, 10, 3, sensor.TagValid),
		hourly(4, 10, 2, sensor.TagValid),
		hourly(5, 10, 4, sensor.TagValid),
		hourly(1, 11, 100, sensor.TagLowSamples),
	}

	out := mustNew(t, DefaultOptions()).Tag(aggs)

	require.Len(t, out, len(aggs))
	want := []sensor.Tag{
		sensor.TagGTQtle99,
		sensor.TagLTQtle01,
		sensor.TagValid,
		sensor.TagValid,
		sensor.TagValid,
		sensor.TagLowSamples,
	}
	for i := range out {
		assert.Equal(t, want[i], out[i].Tag, "row %d", i)
	}

	for _, a := range out[:5] {
		assert.Equal(t, 1.0, a.Quantile01.Float())
		assert.Equal(t, 5.0, a.Quantile99.Float())
	}

	// Hour 11 holds no VALID mean, so it has no bounds
	assert.True(t, out[5].Quantile01.IsNull())
	assert.True(t, out[5].Quantile99.IsNull())

	// Input untouched
	assert.Equal(t, sensor.TagValid, aggs[0].Tag)
	assert.True(t, aggs[0].Quantile01.IsNull())
}

func TestTag_HoursAreIndependent(t *testing.T) {
	aggs := []sensor.HourlyAggregate{
		hourly(1, 3, 10, sensor.TagValid),
		hourly(2, 3, 20, sensor.TagValid),
		hourly(3, 3, 30, sensor.TagValid),
		hourly(1, 4, 1000, sensor.TagValid),
		hourly(2, 4, 2000, sensor.TagValid),
		hourly(3, 4, 3000, sensor.TagValid),
	}

	bounds := mustNew(t, DefaultOptions()).Bounds(aggs)

	require.Len(t, bounds, 2)
	assert.Equal(t, 10.0, bounds[3].Lower.Float())
	assert.Equal(t, 30.0, bounds[3].Upper.Float())
	assert.Equal(t, 1000.0, bounds[4].Lower.Float())
	assert.Equal(t, 3000.0, bounds[4].Upper.Float())
	assert.Equal(t, 3, bounds[4].Samples)
}

func TestTag_SingleMemberGroup(t *testing.T) {
	aggs := []sensor.HourlyAggregate{hourly(1, 7, 42, sensor.TagValid)}

	out := mustNew(t, DefaultOptions()).Tag(aggs)
	assert.Equal(t, sensor.TagLTQtle01, out[0].Tag, "both bounds equal the only mean, lower wins")

	opts := DefaultOptions()
	opts.MinSamples = 3
	out = mustNew(t, opts).Tag(aggs)
	assert.Equal(t, sensor.TagValid, out[0].Tag)
	assert.True(t, out[0].Quantile01.IsNull())
}

func TestTag_OnlyValidIsRetagged(t *testing.T) {
	aggs := []sensor.HourlyAggregate{
		hourly(1, 0, 10, sensor.TagValid),
		hourly(2, 0, 20, sensor.TagValid),
		hourly(3, 0, -50, sensor.TagLowSamples),
		hourly(4, 0, 900, sensor.TagLowSamples),
	}

	out := mustNew(t, DefaultOptions()).Tag(aggs)

	assert.Equal(t, sensor.TagLowSamples, out[2].Tag)
	assert.Equal(t, sensor.TagLowSamples, out[3].Tag)
	assert.Equal(t, 10.0, out[2].Quantile01.Float(), "non-valid rows still carry the bounds")
}

func TestBounds_LowerNeverAboveUpper(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := mustNew(t, DefaultOptions())

	for run := 0; run < 50; run++ {
		var aggs []sensor.HourlyAggregate
		n := 1 + rng.Intn(40)
		for i := 0; i < n; i++ {
			aggs = append(aggs, hourly(1+i%28, rng.Intn(24), rng.NormFloat64()*20, sensor.TagValid))
		}

		for hour, b := range q.Bounds(aggs) {
			if b.Lower.Float() > b.Upper.Float() {
				t.Fatalf("run %d hour %d: lower %v above upper %v", run, hour, b.Lower, b.Upper)
			}
		}
	}
}

func TestSortedBounds(t *testing.T) {
	bounds := map[int]Bounds{
		5:  {HourOfDay: 5},
		0:  {HourOfDay: 0},
		23: {HourOfDay: 23},
	}

	sorted := SortedBounds(bounds)

	require.Len(t, sorted, 3)
	assert.Equal(t, 0, sorted[0].HourOfDay)
	assert.Equal(t, 5, sorted[1].HourOfDay)
	assert.Equal(t, 23, sorted[2].HourOfDay)
}

func TestPercentiles(t *testing.T) {
	values := []float64{10, 1, 9, 2, 8, 3, 7, 4, 6, 5}

	tests := []struct {
		q      float64
		lower  float64
		higher float64
		linear float64
	}{
		{0.0, 1, 1, 1},
		{0.5, 5, 6, 5.5},
		{0.99, 9, 10, 9.91},
		{1.0, 10, 10, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.lower, LowerPercentile(values, tt.q), "lower q=%v", tt.q)
		assert.Equal(t, tt.higher, HigherPercentile(values, tt.q), "higher q=%v", tt.q)
		assert.InDelta(t, tt.linear, Percentile(values, tt.q), 1e-9, "linear q=%v", tt.q)
	}

	assert.Equal(t, 10.0, values[0], "input must not be sorted in place")
}

func TestPercentiles_Empty(t *testing.T) {
	assert.True(t, math.IsNaN(LowerPercentile(nil, 0.5)))
	assert.True(t, math.IsNaN(HigherPercentile(nil, 0.5)))
	assert.True(t, math.IsNaN(Percentile([]float64{}, 0.5)))
}
