package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	svc, _ := newTestService(t)
	h := NewHandler(svc)

	router := mux.NewRouter()
	router.HandleFunc("/v1/sensors", h.HandleSensors).Methods("GET")
	router.HandleFunc("/v1/sensors/{id}/analysis", h.HandleAnalysis).Methods("GET")
	return router
}

func TestHandleSensors(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sensors", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SensorsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "no2", resp.Sensors[0].ID)
	assert.InDelta(t, 20.0, resp.Sensors[0].MaxDiff, 1e-9)
	assert.Equal(t, 4.0, resp.Sensors[0].ExpectedPerHour)
}

func TestHandleAnalysis_Summary(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/v1/sensors/no2/analysis?start=2024-03-01T00:00:00Z&end=2024-03-02T00:00:00Z", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view SummaryView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "no2", view.SensorID)
	assert.Equal(t, 12, view.Points)
	assert.Equal(t, 3, view.Hours)
	assert.Equal(t, 12, view.PointSummary.Total())
}

func TestHandleAnalysis_Full(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/v1/sensors/o3/analysis?start=2024-03-01T00:00:00Z&end=2024-03-02T00:00:00Z&view=full", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	for _, key := range []string{"run_id", "points", "hourly", "bounds", "point_summary", "hourly_summary"} {
		assert.Contains(t, body, key)
	}
}

func TestHandleAnalysis_Errors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		url  string
		code int
	}{
		{"unknown sensor", "/v1/sensors/ch4/analysis", http.StatusNotFound},
		{"bad view", "/v1/sensors/no2/analysis?view=everything", http.StatusBadRequest},
		{"bad start", "/v1/sensors/no2/analysis?start=monday", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
