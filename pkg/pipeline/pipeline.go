// Package pipeline chains the analysis stages for one sensor: resampling,
// quality tagging, hourly aggregation, quantile tagging and tag summaries.
//
// Every stage returns a new structure. A Result therefore holds each intermediate
// table unchanged, which is what the export and archive layers write out.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nicktill/gasqc/pkg/anomaly"
	"github.com/nicktill/gasqc/pkg/compaction"
	"github.com/nicktill/gasqc/pkg/ingest"
	"github.com/nicktill/gasqc/pkg/quality"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/summary"
)

// Pipeline runs the full analysis for one sensor configuration
type Pipeline struct {
	cfg       sensor.Config
	tagger    *quality.Tagger
	hourly    *compaction.HourlyAggregator
	quantiles *anomaly.QuantileTagger
	now       func() time.Time
}

type options struct {
	quantiles anomaly.Options
	now       func() time.Time
}

// Option customizes a Pipeline
type Option func(*options)

// WithQuantiles overrides the quantile levels (default 0.01 / 0.99).
func WithQuantiles(opts anomaly.Options) Option {
	return func(o *options) {
		o.quantiles = opts
	}
}

// WithClock sets the clock used for Result.CompletedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New validates cfg and builds a pipeline. An invalid configuration is
// rejected here, before any data is processed.
func New(cfg sensor.Config, opts ...Option) (*Pipeline, error) {
	o := options{
		quantiles: anomaly.DefaultOptions(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	quantiles, err := anomaly.New(o.quantiles)
	if err != nil {
		return nil, fmt.Errorf("sensor %q: %w", cfg.ID, err)
	}

	return &Pipeline{
		cfg:       cfg,
		tagger:    quality.New(cfg),
		hourly:    compaction.NewHourly(cfg),
		quantiles: quantiles,
		now:       o.now,
	}, nil
}

// Config returns the validated configuration, defaults applied.
func (p *Pipeline) Config() sensor.Config {
	return p.cfg
}

// Result holds every table a run produces
type Result struct {
	RunID       string        `json:"run_id"`
	SensorID    string        `json:"sensor_id"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`

	Series sensor.Series            `json:"series"`
	Points []sensor.TaggedPoint     `json:"points"`
	Hourly []sensor.HourlyAggregate `json:"hourly"`
	Bounds []anomaly.Bounds         `json:"bounds"` // Quantile table per hour of day

	PointSummary  summary.Summary `json:"point_summary"`
	HourlySummary summary.Summary `json:"hourly_summary"`
}

// Run executes all stages over the raw samples. Samples are not modified.
// Bad data never fails a run: it ends up tagged.
func (p *Pipeline) Run(samples []sensor.Sample) (*Result, error) {
	start := time.Now()

	series, err := ingest.Resample(samples, p.cfg.SamplingPeriod)
	if err != nil {
		return nil, fmt.Errorf("resample %q: %w", p.cfg.ID, err)
	}
	points := p.tagger.Tag(series)
	aggregated := p.hourly.Aggregate(points)
	bounds := p.quantiles.Bounds(aggregated)
	hourly := p.quantiles.Tag(aggregated)

	pointSummary, err := summary.PointSummary(points)
	if err != nil {
		return nil, fmt.Errorf("summarize points of %q: %w", p.cfg.ID, err)
	}
	hourlySummary, err := summary.HourlySummary(hourly)
	if err != nil {
		return nil, fmt.Errorf("summarize hours of %q: %w", p.cfg.ID, err)
	}

	return &Result{
		RunID:         uuid.NewString(),
		SensorID:      p.cfg.ID,
		CompletedAt:   p.now(),
		Duration:      time.Since(start),
		Series:        series,
		Points:        points,
		Hourly:        hourly,
		Bounds:        anomaly.SortedBounds(bounds),
		PointSummary:  pointSummary,
		HourlySummary: hourlySummary,
	}, nil
}

// TagCounts flattens a summary into tag -> count, TOTAL excluded.
func TagCounts(s summary.Summary) map[string]int {
	counts := make(map[string]int, len(s.Rows))
	for _, r := range s.Rows {
		if r.Tag == sensor.TagTotal {
			continue
		}
		counts[string(r.Tag)] = r.Count
	}
	return counts
}
