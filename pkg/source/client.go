// Package source pulls raw samples from the remote sensor data API.
//
// The API serves every reading of one sensor at GET {base}{sensorID}:
//
//	[{"date": "14/05/2023 10:15:00", "measuring": 23.4, "latitude": -34.6, "longitude": -58.4}]
//
// Dates are day-first and carry no zone; they are read as UTC.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/ingest"
	"github.com/nicktill/gasqc/pkg/sensor"
)

// DateLayout is the layout of the "date" field
const DateLayout = "02/01/2006 15:04:05"

// ErrUnexpectedStatus is returned for a non-2xx API response
var ErrUnexpectedStatus = errors.New("unexpected status")

// Record is one reading as served by the API
type Record struct {
	Date      string           `json:"date"`
	Measuring sensor.NullFloat `json:"measuring"`
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
}

// Client fetches samples over HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the API rooted at cfg.BaseURL.
func NewClient(cfg config.SourceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.SourceTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch returns every sample the API holds for a sensor, in API order.
// Records with an unreadable date are skipped.
func (c *Client) Fetch(ctx context.Context, sensorID string) ([]sensor.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+url.PathEscape(sensorID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %q: %w", sensorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w %d fetching %q: %s", ErrUnexpectedStatus, resp.StatusCode, sensorID, strings.TrimSpace(string(body)))
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode response for %q: %w", sensorID, err)
	}

	samples, skipped := ToSamples(sensorID, records)
	if skipped > 0 {
		log.Warn().Str("sensor", sensorID).Int("skipped", skipped).Msg("skipped records with bad dates")
	}
	return samples, nil
}

// ToSamples converts API records, returning the number of records skipped.
// Unparsable dates and dates outside (sensor.EarliestSample, now] are skipped.
func ToSamples(sensorID string, records []Record) ([]sensor.Sample, int) {
	samples := make([]sensor.Sample, 0, len(records))
	skipped := 0
	now := time.Now()
	for _, r := range records {
		ts, err := time.ParseInLocation(DateLayout, strings.TrimSpace(r.Date), time.UTC)
		if err != nil || !ts.After(sensor.EarliestSample) || ts.After(now) {
			skipped++
			continue
		}
		samples = append(samples, sensor.Sample{
			SensorID:  sensorID,
			Timestamp: ts,
			Value:     r.Measuring,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		})
	}
	return samples, skipped
}

// Ingester stores fetched samples
type Ingester interface {
	Ingest(ctx context.Context, source string, samples []sensor.Sample) error
}

// Backfill fetches each sensor and hands its samples to dst in request-sized
// chunks. It keeps going after a failing sensor and returns all failures joined.
func (c *Client) Backfill(ctx context.Context, dst Ingester, sensorIDs []string) (int, error) {
	total := 0
	var errs []error

	for _, id := range sensorIDs {
		samples, err := c.Fetch(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for i := 0; i < len(samples); i += ingest.MaxSamplesPerRequest {
			end := i + ingest.MaxSamplesPerRequest
			if end > len(samples) {
				end = len(samples)
			}
			if err := dst.Ingest(ctx, "source", samples[i:end]); err != nil {
				errs = append(errs, fmt.Errorf("ingest %q: %w", id, err))
				break
			}
			total += end - i
		}
		log.Info().Str("sensor", id).Int("samples", len(samples)).Msg("backfill fetched")
	}

	return total, errors.Join(errs...)
}
