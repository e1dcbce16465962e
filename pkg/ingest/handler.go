package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/httpx"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/storage"
)

// Recorder counts accepted samples per source
type Recorder interface {
	RecordIngested(sensorID, source string, n int)
}

// StorageChecker reports disk usage against the configured limit
type StorageChecker interface {
	GetUsage() (int64, error)
	GetLimit() int64
}

// Broadcaster pushes ingest events to live clients
type Broadcaster interface {
	Broadcast(event Event) error
}

// Handler handles sample ingestion
type Handler struct {
	storage  storage.Storage
	registry Registry
	hub      Broadcaster
	recorder Recorder
	checker  StorageChecker
}

// NewHandler creates a new ingest handler. hub and recorder may be nil.
func NewHandler(store storage.Storage, registry Registry, hub Broadcaster, recorder Recorder) *Handler {
	return &Handler{
		storage:  store,
		registry: registry,
		hub:      hub,
		recorder: recorder,
	}
}

// SetStorageChecker rejects ingestion once usage reaches the checker's limit.
func (h *Handler) SetStorageChecker(c StorageChecker) {
	h.checker = c
}

func (h *Handler) checkStorage() error {
	if h.checker == nil || h.checker.GetLimit() <= 0 {
		return nil
	}
	used, err := h.checker.GetUsage()
	if err != nil {
		log.Warn().Err(err).Msg("storage usage unavailable, accepting samples")
		return nil
	}
	if used >= h.checker.GetLimit() {
		return fmt.Errorf("%w: %d of %d bytes used", ErrStorageFull, used, h.checker.GetLimit())
	}
	return nil
}

// IngestRequest represents the request payload
type IngestRequest struct {
	Samples []sensor.Sample `json:"samples"`
}

// IngestResponse represents the response payload
type IngestResponse struct {
	Status   string `json:"status"`
	SensorID string `json:"sensor_id"`
	Count    int    `json:"count"`
}

// Ingest validates and stores samples from any source, then notifies the hub.
func (h *Handler) Ingest(ctx context.Context, source string, samples []sensor.Sample) error {
	if err := ValidateBatch(samples, h.registry); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	if err := h.checkStorage(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, config.IngestTimeout)
	defer cancel()

	if err := h.storage.Write(ctx, samples); err != nil {
		return fmt.Errorf("failed to store samples: %w", err)
	}

	counts := make(map[string]int)
	for _, s := range samples {
		counts[s.SensorID]++
	}
	for id, n := range counts {
		if h.recorder != nil {
			h.recorder.RecordIngested(id, source, n)
		}
		if h.hub != nil {
			event := NewEvent(EventSamplesIngested, id, map[string]interface{}{
				"count":  n,
				"source": source,
			})
			if err := h.hub.Broadcast(event); err != nil {
				log.Warn().Err(err).Str("sensor", id).Msg("failed to broadcast ingest event")
			}
		}
	}

	log.Debug().Str("source", source).Int("samples", len(samples)).Msg("samples ingested")
	return nil
}

// HandleIngest handles POST /v1/sensors/{id}/samples
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["id"]

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	// The path names the sensor
	for i := range req.Samples {
		req.Samples[i].SensorID = sensorID
	}

	if err := h.Ingest(r.Context(), "http", req.Samples); err != nil {
		switch {
		case errors.Is(err, ErrUnknownSensor):
			httpx.RespondError(w, http.StatusNotFound, err)
		case errors.Is(err, ErrStorageFull):
			httpx.RespondError(w, http.StatusInsufficientStorage, err)
		case errors.Is(err, ErrTooManySamples),
			errors.Is(err, ErrMissingTimestamp),
			errors.Is(err, ErrSensorIDEmpty),
			errors.Is(err, ErrSensorIDTooLong),
			errors.Is(err, ErrTimestampOutOfRange):
			httpx.RespondError(w, http.StatusBadRequest, err)
		default:
			log.Error().Err(err).Str("sensor", sensorID).Msg("ingest failed")
			httpx.RespondError(w, http.StatusInternalServerError, err)
		}
		return
	}

	httpx.RespondJSON(w, http.StatusOK, IngestResponse{
		Status:   "success",
		SensorID: sensorID,
		Count:    len(req.Samples),
	})
}
