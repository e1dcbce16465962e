package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/httpx"
	"github.com/nicktill/gasqc/pkg/server/monitor"
	"github.com/nicktill/gasqc/pkg/storage"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

var startTime = time.Now()

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Uptime   string                 `json:"uptime"`
	Sensors  int                    `json:"sensors"`
	Analysis monitor.AnalysisStatus `json:"analysis"`
}

// handleHealth returns 503 while periodic analysis is failing or stale.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := a.AnalysisMonitor.Status()
	resp := HealthResponse{
		Status:   "healthy",
		Version:  Version,
		Uptime:   time.Since(startTime).Round(time.Second).String(),
		Sensors:  len(a.Config.Sensors),
		Analysis: status,
	}

	code := http.StatusOK
	if !status.Healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	httpx.RespondJSON(w, code, resp)
}

func (a *App) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := a.StorageMonitor.Usage()
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, usage)
}

// StatsResponse wraps the store statistics.
type StatsResponse struct {
	Storage *storage.Stats `json:"storage"`
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.IngestStatsTimeout)
	defer cancel()

	stats, err := a.Storage.Stats(ctx)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, StatsResponse{Storage: stats})
}

// Router builds the HTTP routes of the server.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware(a.Config.Server.Port))
	router.Use(a.Recorder.Middleware)

	api := router.PathPrefix("/v1").Subrouter()

	// Samples
	api.HandleFunc("/sensors/{id}/samples", a.IngestHandler.HandleIngest).Methods(http.MethodPost)
	api.HandleFunc("/sensors/{id}/samples", a.IngestHandler.HandleSamples).Methods(http.MethodGet)

	// Analysis
	api.HandleFunc("/sensors", a.AnalysisHandler.HandleSensors).Methods(http.MethodGet)
	api.HandleFunc("/sensors/{id}/analysis", a.AnalysisHandler.HandleAnalysis).Methods(http.MethodGet)

	// Export/import
	api.HandleFunc("/sensors/{id}/export", a.ExportHandler.HandleExport).Methods(http.MethodGet)
	api.HandleFunc("/sensors/{id}/import", a.ExportHandler.HandleImport).Methods(http.MethodPost)

	// Operations
	api.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/storage", a.handleStorageUsage).Methods(http.MethodGet)
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/ws", a.Hub.HandleWebSocket).Methods(http.MethodGet)

	router.Handle("/metrics", a.Recorder.Handler()).Methods(http.MethodGet)
	return router
}

// corsMiddleware allows browser access from localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
