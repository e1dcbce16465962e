package server

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/anomaly"
	"github.com/nicktill/gasqc/pkg/archive"
	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/export"
	"github.com/nicktill/gasqc/pkg/ingest"
	"github.com/nicktill/gasqc/pkg/metrics"
	"github.com/nicktill/gasqc/pkg/pipeline"
	"github.com/nicktill/gasqc/pkg/server/monitor"
	"github.com/nicktill/gasqc/pkg/source"
	"github.com/nicktill/gasqc/pkg/storage"
	"github.com/nicktill/gasqc/pkg/storage/badger"
	"github.com/nicktill/gasqc/pkg/storage/memory"
)

// App holds every component of a running server.
type App struct {
	Config *config.File

	Storage  storage.Storage
	Service  *pipeline.Service
	Hub      *ingest.Hub
	Recorder *metrics.Recorder

	IngestHandler   *ingest.Handler
	AnalysisHandler *pipeline.Handler
	ExportHandler   *export.Handler

	StorageMonitor  *monitor.StorageMonitor
	AnalysisMonitor *monitor.AnalysisMonitor

	// Optional, nil when not configured
	Subscriber *ingest.Subscriber
	Source     *source.Client
}

// New builds the application from a validated configuration file.
func New(ctx context.Context, cfg *config.File) (*App, error) {
	store, err := InitializeStorage(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	app, err := Assemble(ctx, cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

// Assemble wires the handlers and services around an already opened store.
func Assemble(ctx context.Context, cfg *config.File, store storage.Storage) (*App, error) {
	app := &App{
		Config:          cfg,
		Storage:         store,
		Hub:             ingest.NewHub(),
		Recorder:        metrics.New(),
		StorageMonitor:  monitor.NewStorageMonitor(cfg.Server.DataDir, cfg.Server.MaxStorageGB<<30),
		AnalysisMonitor: monitor.NewAnalysisMonitor(3 * cfg.Analysis.Interval),
	}

	opts := []pipeline.ServiceOption{
		pipeline.WithRecorder(app.Recorder),
		pipeline.WithNotifier(app.Hub),
		pipeline.WithWorkers(cfg.Analysis.Workers),
	}
	if cfg.Archive.Enabled {
		archiver, err := archive.FromConfig(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("initialize archive: %w", err)
		}
		opts = append(opts, pipeline.WithArchiver(archiver))
		log.Info().Str("backend", cfg.Archive.Backend).Str("codec", cfg.Archive.Codec).Msg("run archive enabled")
	}

	service, err := pipeline.NewService(store, cfg.Sensors, QuantileOptions(cfg.Analysis), opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize analysis: %w", err)
	}
	app.Service = service

	app.IngestHandler = ingest.NewHandler(store, service, app.Hub, app.Recorder)
	if cfg.Server.Storage == "badger" {
		app.IngestHandler.SetStorageChecker(app.StorageMonitor)
	}
	app.AnalysisHandler = pipeline.NewHandler(service)
	app.ExportHandler = export.NewHandler(service, store)

	if cfg.MQTT.Enabled {
		app.Subscriber = ingest.NewSubscriber(cfg.MQTT, app.IngestHandler)
	}
	if cfg.Source.BaseURL != "" {
		app.Source = source.NewClient(cfg.Source)
	}

	log.Info().
		Int("sensors", len(cfg.Sensors)).
		Str("storage", cfg.Server.Storage).
		Bool("mqtt", app.Subscriber != nil).
		Bool("source", app.Source != nil).
		Msg("server components initialized")
	return app, nil
}

// InitializeStorage opens the configured sample store.
func InitializeStorage(cfg config.ServerConfig) (storage.Storage, error) {
	switch cfg.Storage {
	case "memory":
		log.Warn().Msg("using in-memory storage, samples are lost on restart")
		return memory.New(), nil
	case "badger", "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		store, err := badger.New(badger.Config{
			Path:        cfg.DataDir,
			MaxMemoryMB: cfg.MaxMemoryMB,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.DataDir).Int64("max_memory_mb", cfg.MaxMemoryMB).Msg("badger storage opened")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// QuantileOptions maps the analysis section onto the anomaly tagger options.
func QuantileOptions(cfg config.AnalysisConfig) anomaly.Options {
	return anomaly.Options{
		Lower:      cfg.QuantileLower,
		Upper:      cfg.QuantileUpper,
		MinSamples: cfg.MinSamples,
	}
}

// Close releases the store.
func (a *App) Close() error {
	return a.Storage.Close()
}
