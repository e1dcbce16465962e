package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RecordRun(t *testing.T) {
	r := New()

	r.RecordRun("no2-01", 150*time.Millisecond, nil)
	r.RecordRun("no2-01", 0, errors.New("boom"))
	r.RecordRun("no2-01", 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("no2-01", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("no2-01", "error")))
	assert.Greater(t, testutil.ToFloat64(r.lastRun.WithLabelValues("no2-01")), 0.0)
}

func TestRecorder_TagGauges(t *testing.T) {
	r := New()

	r.RecordPointTags("no2-01", map[string]int{"VALID": 90, "MISSING": 6})
	r.RecordPointTags("no2-01", map[string]int{"VALID": 80})
	r.RecordHourlyTags("no2-01", map[string]int{"LOWSAMPLES": 2})

	assert.Equal(t, 80.0, testutil.ToFloat64(r.pointTags.WithLabelValues("no2-01", "VALID")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.pointTags.WithLabelValues("no2-01", "MISSING")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.hourlyTags.WithLabelValues("no2-01", "LOWSAMPLES")))
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	// Two recorders in one process must not collide on registration
	a, b := New(), New()
	a.RecordIngested("s", "http", 3)
	b.RecordIngested("s", "mqtt", 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.samplesIngested.WithLabelValues("s", "http")))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.samplesIngested.WithLabelValues("s", "mqtt")))
}

func TestRecorder_HandlerAndMiddleware(t *testing.T) {
	r := New()

	router := mux.NewRouter()
	router.Use(r.Middleware)
	router.HandleFunc("/v1/sensors/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router.Handle("/metrics", r.Handler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sensors/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/v1/sensors/{id}", "GET", "418")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "gasqc_http_requests_total"))
}
