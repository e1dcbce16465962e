package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, errors.New("sensor not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Not Found","message":"sensor not found"}`, rec.Body.String())
}

func TestTimeRange(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?start=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z", nil)
	start, end, err := TimeRange(r, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), end.UTC())

	r = httptest.NewRequest(http.MethodGet, "/x?end=2024-01-02T00:00:00Z", nil)
	start, end, err = TimeRange(r, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	r = httptest.NewRequest(http.MethodGet, "/x?start=yesterday", nil)
	_, _, err = TimeRange(r, time.Hour)
	assert.Error(t, err)

	r = httptest.NewRequest(http.MethodGet, "/x?start=2024-01-03T00:00:00Z&end=2024-01-02T00:00:00Z", nil)
	_, _, err = TimeRange(r, time.Hour)
	assert.Error(t, err)
}
