package export

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/httpx"
	"github.com/nicktill/gasqc/pkg/pipeline"
	"github.com/nicktill/gasqc/pkg/storage"
)

// TableSamples selects the raw sample backup instead of an analysis table
const TableSamples = "samples"

const maxImportBodyBytes = 64 << 20

// Analyzer provides analysis results for export
type Analyzer interface {
	Known(sensorID string) bool
	Latest(sensorID string) (*pipeline.Result, bool)
	Analyze(ctx context.Context, sensorID string, start, end time.Time) (*pipeline.Result, error)
}

// Handler handles export/import HTTP endpoints
type Handler struct {
	analyzer Analyzer
	storage  storage.Storage
	exporter *Exporter
	importer *Importer
}

// NewHandler creates a new export/import handler
func NewHandler(analyzer Analyzer, store storage.Storage) *Handler {
	return &Handler{
		analyzer: analyzer,
		storage:  store,
		exporter: NewExporter(),
		importer: NewImporter(store),
	}
}

// HandleExport handles GET /v1/sensors/{id}/export
// Query params:
//   - table: points, hourly, summary or samples (default: points)
//   - format: json or csv (default: json); samples are json only
//   - start, end: RFC3339; when given, a fresh analysis runs over that range,
//     otherwise the latest run is exported
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["id"]
	if !h.analyzer.Known(sensorID) {
		httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("unknown sensor %q", sensorID))
		return
	}

	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid format, must be 'json' or 'csv'")
		return
	}

	start, end, err := httpx.TimeRange(r, config.DefaultExportWindow)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if end.Sub(start) > config.MaxExportWindow {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("time range too large, maximum is %v", config.MaxExportWindow))
		return
	}

	tableName := query.Get("table")
	if tableName == "" {
		tableName = string(TablePoints)
	}
	if tableName == TableSamples {
		if format != FormatJSON {
			httpx.RespondErrorString(w, http.StatusBadRequest, "sample backups are json only")
			return
		}
		h.exportSamples(w, r, sensorID, start, end)
		return
	}

	table, err := ParseTable(tableName)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	res, ok := h.analyzer.Latest(sensorID)
	if !ok || query.Get("start") != "" || query.Get("end") != "" {
		res, err = h.analyzer.Analyze(r.Context(), sensorID, start, end)
		if err != nil {
			log.Error().Err(err).Str("sensor", sensorID).Msg("analysis for export failed")
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
	}

	setAttachment(w, sensorID, string(table), format)
	result, err := h.exporter.Export(w, res, table, format)
	if err != nil {
		// Headers are already out; the client sees a truncated body
		log.Error().Err(err).Str("sensor", sensorID).Msg("export failed")
		return
	}

	log.Info().
		Str("sensor", sensorID).
		Str("table", string(table)).
		Str("format", format).
		Int("rows", result.RowsExported).
		Msg("exported table")
}

func (h *Handler) exportSamples(w http.ResponseWriter, r *http.Request, sensorID string, start, end time.Time) {
	samples, err := h.storage.Query(r.Context(), storage.QueryRequest{
		Start:     start,
		End:       end,
		SensorIDs: []string{sensorID},
	})
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	setAttachment(w, sensorID, TableSamples, FormatJSON)
	if err := WriteBackup(w, sensorID, start, end, samples); err != nil {
		log.Error().Err(err).Str("sensor", sensorID).Msg("sample backup failed")
		return
	}
	log.Info().Str("sensor", sensorID).Int("samples", len(samples)).Msg("exported sample backup")
}

// HandleImport handles POST /v1/sensors/{id}/import
// Accepts logger CSV files (text/csv) and JSON sample backups (application/json).
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["id"]
	if !h.analyzer.Known(sensorID) {
		httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("unknown sensor %q", sensorID))
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Content-Type must be text/csv or application/json")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxImportBodyBytes)

	var result *ImportResult
	switch mediaType {
	case "text/csv":
		result, err = h.importer.ImportCSV(r.Context(), body, sensorID)
	case "application/json":
		result, err = h.importer.ImportJSON(r.Context(), body, sensorID)
	default:
		httpx.RespondErrorString(w, http.StatusBadRequest, "Content-Type must be text/csv or application/json")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("sensor", sensorID).Msg("import failed")
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("import failed: %w", err))
		return
	}

	if len(result.Errors) > 0 {
		event := log.Warn().Str("sensor", sensorID).Int("skipped", len(result.Errors))
		if len(result.Errors) > 10 {
			event = event.Strs("first_errors", result.Errors[:10])
		} else {
			event = event.Strs("errors", result.Errors)
		}
		event.Msg("import skipped rows")
	}

	log.Info().
		Str("sensor", sensorID).
		Int("samples", result.SamplesImported).
		Int("batches", result.BatchesWritten).
		Str("range", result.TimeRange).
		Msg("import complete")

	httpx.RespondJSON(w, http.StatusOK, result)
}

func setAttachment(w http.ResponseWriter, sensorID, table, format string) {
	contentType := "application/json"
	if format == FormatCSV {
		contentType = "text/csv"
	}
	timestamp := time.Now().Format("20060102-150405")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=gasqc-%s-%s-%s.%s", sensorID, table, timestamp, format))
}
