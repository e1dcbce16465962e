package pipeline

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/gasqc/pkg/anomaly"
	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/httpx"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/summary"
)

// Handler exposes the analysis service over HTTP
type Handler struct {
	service *Service
}

// NewHandler creates a new analysis handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SensorsResponse lists the configured sensors
type SensorsResponse struct {
	Sensors []SensorInfo `json:"sensors"`
	Count   int          `json:"count"`
}

// SensorInfo is a configured sensor with its derived thresholds
type SensorInfo struct {
	sensor.Config
	MaxDiff         float64   `json:"max_diff"`
	ExpectedPerHour float64   `json:"expected_per_hour"`
	LastRun         time.Time `json:"last_run,omitempty"`
}

// SummaryView is the compact analysis response
type SummaryView struct {
	RunID         string           `json:"run_id"`
	SensorID      string           `json:"sensor_id"`
	CompletedAt   time.Time        `json:"completed_at"`
	Points        int              `json:"points"`
	Hours         int              `json:"hours"`
	Bounds        []anomaly.Bounds `json:"bounds"`
	PointSummary  summary.Summary  `json:"point_summary"`
	HourlySummary summary.Summary  `json:"hourly_summary"`
}

// HandleSensors handles GET /v1/sensors
func (h *Handler) HandleSensors(w http.ResponseWriter, r *http.Request) {
	configs := h.service.Sensors()
	infos := make([]SensorInfo, 0, len(configs))
	for _, cfg := range configs {
		info := SensorInfo{
			Config:          cfg,
			MaxDiff:         cfg.MaxDiff(),
			ExpectedPerHour: cfg.ExpectedPerHour(),
		}
		if res, ok := h.service.Latest(cfg.ID); ok {
			info.LastRun = res.CompletedAt
		}
		infos = append(infos, info)
	}

	httpx.RespondJSON(w, http.StatusOK, SensorsResponse{
		Sensors: infos,
		Count:   len(infos),
	})
}

// HandleAnalysis handles GET /v1/sensors/{id}/analysis?start=&end=&view=summary|full
func (h *Handler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["id"]

	start, end, err := httpx.TimeRange(r, config.AnalysisWindow)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	view := r.URL.Query().Get("view")
	if view == "" {
		view = "summary"
	}
	if view != "summary" && view != "full" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "view must be 'summary' or 'full'")
		return
	}

	res, err := h.service.Analyze(r.Context(), sensorID, start, end)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownSensor) {
			status = http.StatusNotFound
		}
		httpx.RespondError(w, status, err)
		return
	}

	if view == "full" {
		httpx.RespondJSON(w, http.StatusOK, res)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, SummaryView{
		RunID:         res.RunID,
		SensorID:      res.SensorID,
		CompletedAt:   res.CompletedAt,
		Points:        len(res.Points),
		Hours:         len(res.Hourly),
		Bounds:        res.Bounds,
		PointSummary:  res.PointSummary,
		HourlySummary: res.HourlySummary,
	})
}
