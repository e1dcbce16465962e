package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/anomaly"
	"github.com/nicktill/gasqc/pkg/ingest"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/storage"
)

// ErrUnknownSensor is returned for a sensor ID with no configuration.
var ErrUnknownSensor = errors.New("unknown sensor")

// Recorder receives run metrics
type Recorder interface {
	RecordRun(sensorID string, d time.Duration, err error)
	RecordPointTags(sensorID string, counts map[string]int)
	RecordHourlyTags(sensorID string, counts map[string]int)
}

// Notifier pushes events to live clients
type Notifier interface {
	Broadcast(event ingest.Event) error
}

// Archiver persists a finished run
type Archiver interface {
	Archive(ctx context.Context, res *Result) error
}

// Service runs the configured sensors' pipelines over stored samples
type Service struct {
	store     storage.Storage
	pipelines map[string]*Pipeline
	ids       []string // configuration order
	workers   int

	recorder Recorder
	notifier Notifier
	archiver Archiver

	mu     sync.RWMutex
	latest map[string]*Result
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithRecorder records run metrics.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithNotifier broadcasts an analysis_complete event after each run.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithArchiver archives every successful run.
func WithArchiver(a Archiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// WithWorkers bounds the number of sensors analysed concurrently.
func WithWorkers(n int) ServiceOption {
	return func(s *Service) { s.workers = n }
}

// NewService builds one pipeline per sensor. Any invalid sensor configuration
// or duplicate ID fails the whole service.
func NewService(store storage.Storage, sensors []sensor.Config, quantiles anomaly.Options, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		store:     store,
		pipelines: make(map[string]*Pipeline, len(sensors)),
		workers:   4,
		latest:    make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, cfg := range sensors {
		if _, exists := s.pipelines[cfg.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate sensor id %q", sensor.ErrInvalidConfig, cfg.ID)
		}
		p, err := New(cfg, WithQuantiles(quantiles))
		if err != nil {
			return nil, err
		}
		s.pipelines[cfg.ID] = p
		s.ids = append(s.ids, cfg.ID)
	}

	return s, nil
}

// Sensors returns the sensor configurations in configuration order.
func (s *Service) Sensors() []sensor.Config {
	out := make([]sensor.Config, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.pipelines[id].Config())
	}
	return out
}

// Known reports whether a sensor is configured.
func (s *Service) Known(sensorID string) bool {
	_, ok := s.pipelines[sensorID]
	return ok
}

// Latest returns the most recent successful run of a sensor.
func (s *Service) Latest(sensorID string) (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.latest[sensorID]
	return res, ok
}

// Analyze runs one sensor's pipeline over its samples in [start, end].
func (s *Service) Analyze(ctx context.Context, sensorID string, start, end time.Time) (*Result, error) {
	p, ok := s.pipelines[sensorID]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSensor, sensorID)
	}

	samples, err := s.load(ctx, sensorID, start, end)
	if err != nil {
		s.record(sensorID, nil, err)
		return nil, err
	}

	res, err := p.Run(samples)
	s.record(sensorID, res, err)
	if err != nil {
		return nil, err
	}

	s.finish(ctx, res)
	return res, nil
}

// AnalyzeAll runs every configured sensor over [start, end] in parallel.
// Per-sensor failures are reported in the results and joined into the error.
func (s *Service) AnalyzeAll(ctx context.Context, start, end time.Time) ([]JobResult, error) {
	results := make([]JobResult, len(s.ids))
	var jobs []Job
	var slots []int

	for i, id := range s.ids {
		results[i].SensorID = id
		samples, err := s.load(ctx, id, start, end)
		if err != nil {
			results[i].Err = err
			s.record(id, nil, err)
			continue
		}
		jobs = append(jobs, Job{Pipeline: s.pipelines[id], Samples: samples})
		slots = append(slots, i)
	}

	for j, jr := range RunAll(ctx, jobs, s.workers) {
		results[slots[j]] = jr
		s.record(jr.SensorID, jr.Result, jr.Err)
		if jr.Err == nil {
			s.finish(ctx, jr.Result)
		}
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("sensor %q: %w", r.SensorID, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (s *Service) load(ctx context.Context, sensorID string, start, end time.Time) ([]sensor.Sample, error) {
	samples, err := s.store.Query(ctx, storage.QueryRequest{
		Start:     start,
		End:       end,
		SensorIDs: []string{sensorID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load samples of %q: %w", sensorID, err)
	}
	return samples, nil
}

func (s *Service) record(sensorID string, res *Result, err error) {
	if s.recorder == nil {
		return
	}
	var d time.Duration
	if res != nil {
		d = res.Duration
	}
	s.recorder.RecordRun(sensorID, d, err)
	if res != nil {
		s.recorder.RecordPointTags(sensorID, TagCounts(res.PointSummary))
		s.recorder.RecordHourlyTags(sensorID, TagCounts(res.HourlySummary))
	}
}

// finish publishes a successful run. Notification and archive failures are
// logged; the run itself already succeeded.
func (s *Service) finish(ctx context.Context, res *Result) {
	s.mu.Lock()
	s.latest[res.SensorID] = res
	s.mu.Unlock()

	log.Info().
		Str("sensor", res.SensorID).
		Str("run_id", res.RunID).
		Int("points", len(res.Points)).
		Int("hours", len(res.Hourly)).
		Dur("duration", res.Duration).
		Msg("analysis complete")

	if s.notifier != nil {
		event := ingest.NewEvent(ingest.EventAnalysisComplete, res.SensorID, map[string]interface{}{
			"run_id":         res.RunID,
			"point_summary":  res.PointSummary,
			"hourly_summary": res.HourlySummary,
		})
		if err := s.notifier.Broadcast(event); err != nil {
			log.Warn().Err(err).Str("sensor", res.SensorID).Msg("failed to broadcast analysis result")
		}
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, res); err != nil {
			log.Error().Err(err).Str("sensor", res.SensorID).Str("run_id", res.RunID).Msg("failed to archive run")
		}
	}
}
