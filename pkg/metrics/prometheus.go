// Package metrics exposes analysis and HTTP metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds every collector of the service.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	pointTags       *prometheus.GaugeVec
	hourlyTags      *prometheus.GaugeVec
	samplesIngested *prometheus.CounterVec
	lastRun         *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates a recorder with its own registry. Go runtime and process
// collectors are registered alongside the service metrics.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasqc_analysis_runs_total",
				Help: "Total number of pipeline runs",
			},
			[]string{"sensor", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gasqc_analysis_duration_seconds",
				Help:    "Duration of a pipeline run in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sensor"},
		),
		pointTags: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gasqc_points_by_tag",
				Help: "Points per quality tag in the latest run",
			},
			[]string{"sensor", "tag"},
		),
		hourlyTags: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gasqc_hours_by_tag",
				Help: "Hourly aggregates per tag in the latest run",
			},
			[]string{"sensor", "tag"},
		),
		samplesIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasqc_samples_ingested_total",
				Help: "Raw samples accepted into storage",
			},
			[]string{"sensor", "source"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gasqc_last_run_timestamp_seconds",
				Help: "Unix time of the latest successful run",
			},
			[]string{"sensor"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasqc_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gasqc_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordRun records one pipeline run. Failed runs only bump the counter.
func (r *Recorder) RecordRun(sensorID string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.runsTotal.WithLabelValues(sensorID, status).Inc()
	if err != nil {
		return
	}
	r.runDuration.WithLabelValues(sensorID).Observe(d.Seconds())
	r.lastRun.WithLabelValues(sensorID).SetToCurrentTime()
}

// RecordPointTags sets the per-tag point counts of the latest run.
func (r *Recorder) RecordPointTags(sensorID string, counts map[string]int) {
	for tag, n := range counts {
		r.pointTags.WithLabelValues(sensorID, tag).Set(float64(n))
	}
}

// RecordHourlyTags sets the per-tag hourly counts of the latest run.
func (r *Recorder) RecordHourlyTags(sensorID string, counts map[string]int) {
	for tag, n := range counts {
		r.hourlyTags.WithLabelValues(sensorID, tag).Set(float64(n))
	}
}

// RecordIngested counts samples accepted from a source (http, mqtt, import).
func (r *Recorder) RecordIngested(sensorID, source string, n int) {
	r.samplesIngested.WithLabelValues(sensorID, source).Add(float64(n))
}
