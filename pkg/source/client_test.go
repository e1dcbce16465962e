package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/sensor"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sensors/no2":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[
				{"date": "14/05/2023 10:15:00", "measuring": 23.4, "latitude": -34.6, "longitude": -58.4},
				{"date": "14/05/2023 10:30:00", "measuring": null, "latitude": -34.6, "longitude": -58.4},
				{"date": "2023-05-14 10:45", "measuring": 1}
			]`))
		case "/api/sensors/broken":
			w.Write([]byte(`{"oops":`))
		default:
			http.Error(w, "no such sensor", http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(config.SourceConfig{BaseURL: srv.URL + "/api/sensors/", Timeout: time.Second})

	samples, err := client.Fetch(context.Background(), "no2")
	require.NoError(t, err)

	require.Len(t, samples, 2, "the record with an ISO date is skipped")
	assert.Equal(t, "no2", samples[0].SensorID)
	assert.Equal(t, time.Date(2023, 5, 14, 10, 15, 0, 0, time.UTC), samples[0].Timestamp)
	assert.Equal(t, 23.4, samples[0].Value.Float())
	assert.Equal(t, -58.4, samples[0].Longitude)
	assert.True(t, samples[1].Value.IsNull())
}

func TestFetch_Errors(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(config.SourceConfig{BaseURL: srv.URL + "/api/sensors/"})

	_, err := client.Fetch(context.Background(), "co")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "no such sensor")

	_, err = client.Fetch(context.Background(), "broken")
	assert.Error(t, err)
}

func TestToSamples_DayFirst(t *testing.T) {
	samples, skipped := ToSamples("co", []Record{
		{Date: "02/01/2024 00:00:00", Measuring: 1},
		{Date: "31/12/2024 23:59:59", Measuring: 2},
		{Date: "12/31/2024 23:59:59", Measuring: 3},
		{Date: "01/01/1900 00:00:00", Measuring: 4},
		{Date: "01/01/2999 00:00:00", Measuring: 5},
	})

	assert.Equal(t, 3, skipped, "bad layout, stray century, future")
	require.Len(t, samples, 2)
	assert.Equal(t, time.January, samples[0].Timestamp.Month())
	assert.Equal(t, 2, samples[0].Timestamp.Day())
}

type recordingIngester struct {
	batches [][]sensor.Sample
}

func (r *recordingIngester) Ingest(_ context.Context, _ string, samples []sensor.Sample) error {
	r.batches = append(r.batches, samples)
	return nil
}

func TestBackfill(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(config.SourceConfig{BaseURL: srv.URL + "/api/sensors/"})
	dst := &recordingIngester{}

	total, err := client.Backfill(context.Background(), dst, []string{"no2", "co"})

	assert.Equal(t, 2, total)
	require.Error(t, err, "co is not served")
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	require.Len(t, dst.batches, 1)
	assert.Len(t, dst.batches[0], 2)
}
