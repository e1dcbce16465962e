package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAll_KeepsJobOrder(t *testing.T) {
	var jobs []Job
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("sensor-%02d", i)
		p, err := New(testConfig(id))
		require.NoError(t, err)
		jobs = append(jobs, Job{Pipeline: p, Samples: threeHours(id)})
	}

	results := RunAll(context.Background(), jobs, 4)

	require.Len(t, results, len(jobs))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("sensor-%02d", i), r.SensorID)
		assert.Equal(t, r.SensorID, r.Result.SensorID)
		assert.Equal(t, 12, r.Result.PointSummary.Total())
	}
}

func TestRunAll_MatchesSequentialRuns(t *testing.T) {
	p, err := New(testConfig("no2"))
	require.NoError(t, err)

	sequential, err := p.Run(threeHours("no2"))
	require.NoError(t, err)

	parallel := RunAll(context.Background(), []Job{{Pipeline: p, Samples: threeHours("no2")}}, 8)
	require.Len(t, parallel, 1)
	require.NoError(t, parallel[0].Err)

	assert.Equal(t, sequential.PointSummary, parallel[0].Result.PointSummary)
	assert.Equal(t, sequential.HourlySummary, parallel[0].Result.HourlySummary)
}

func TestRunAll_CancelledContext(t *testing.T) {
	p, err := New(testConfig("no2"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := RunAll(ctx, []Job{{Pipeline: p}, {Pipeline: p}}, 1)

	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.Nil(t, r.Result)
		assert.Equal(t, "no2", r.SensorID)
	}
}

func TestRunAll_NoJobs(t *testing.T) {
	assert.Empty(t, RunAll(context.Background(), nil, 4))
}
