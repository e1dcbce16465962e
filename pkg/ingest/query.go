package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/httpx"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/storage"
)

// SamplesResponse returns raw samples optimized for charting
type SamplesResponse struct {
	SensorID    string  `json:"sensor_id"`
	Points      []Point `json:"points"`
	Total       int     `json:"total"`
	Downsampled bool    `json:"downsampled"`
}

// Point represents a single chart point
type Point struct {
	Timestamp int64            `json:"t"` // Unix timestamp in milliseconds
	Value     sensor.NullFloat `json:"v"`
}

// HandleSamples handles GET /v1/sensors/{id}/samples?start=&end=&maxPoints=
func (h *Handler) HandleSamples(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["id"]
	if h.registry != nil && !h.registry.Known(sensorID) {
		httpx.RespondError(w, http.StatusNotFound, fmt.Errorf("%w %q", ErrUnknownSensor, sensorID))
		return
	}

	start, end, err := httpx.TimeRange(r, config.IngestDefaultQueryWindow)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if end.Sub(start) > config.IngestMaxQueryWindow {
		httpx.RespondErrorString(w, http.StatusBadRequest, "query window too large (max 90 days)")
		return
	}

	maxPoints := config.IngestDefaultMaxPoints
	if mp := r.URL.Query().Get("maxPoints"); mp != "" {
		parsed, err := strconv.Atoi(mp)
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid maxPoints: %q is not an integer", mp))
			return
		}
		if parsed <= 0 || parsed > config.IngestMaxPointsLimit {
			httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("maxPoints must be between 1 and %d", config.IngestMaxPointsLimit))
			return
		}
		maxPoints = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.IngestQueryTimeout)
	defer cancel()

	samples, err := h.storage.Query(ctx, storage.QueryRequest{
		Start:     start,
		End:       end,
		SensorIDs: []string{sensorID},
	})
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	points := make([]Point, len(samples))
	for i, s := range samples {
		points[i] = Point{Timestamp: s.Timestamp.UnixMilli(), Value: s.Value}
	}

	response := SamplesResponse{
		SensorID: sensorID,
		Points:   points,
		Total:    len(points),
	}
	if len(points) > maxPoints {
		response.Points = downsamplePoints(points, maxPoints)
		response.Downsampled = true
	}

	w.Header().Set("Cache-Control", "no-cache")
	httpx.RespondJSON(w, http.StatusOK, response)
}

// downsamplePoints reduces points using average bucketing.
// Absent values are skipped; a bucket with none present stays absent.
func downsamplePoints(points []Point, maxPoints int) []Point {
	if len(points) <= maxPoints {
		return points
	}

	// Round up so the output never exceeds maxPoints
	bucketSize := (len(points) + maxPoints - 1) / maxPoints

	downsampled := make([]Point, 0, maxPoints)

	for i := 0; i < len(points); i += bucketSize {
		end := i + bucketSize
		if end > len(points) {
			end = len(points)
		}

		var sum float64
		count := 0
		for j := i; j < end; j++ {
			if points[j].Value.IsNull() {
				continue
			}
			sum += points[j].Value.Float()
			count++
		}

		value := sensor.Null()
		if count > 0 {
			value = sensor.NullFloat(sum / float64(count))
		}
		downsampled = append(downsampled, Point{
			Timestamp: points[i].Timestamp,
			Value:     value,
		})
	}

	return downsampled
}
