package storage

import (
	"context"
	"time"

	"github.com/nicktill/gasqc/pkg/sensor"
)

// Storage defines the interface for raw sample storage backends.
// Implementations: memory (testing), badger (production)
//
// Samples are keyed by (sensor, timestamp). Writing a sample for a key that
// already exists replaces the stored one.
type Storage interface {
	// Write stores samples
	Write(ctx context.Context, samples []sensor.Sample) error

	// Query retrieves samples within a time range
	Query(ctx context.Context, req QueryRequest) ([]sensor.Sample, error)

	// Delete removes samples older than the cutoff
	Delete(ctx context.Context, opts DeleteOptions) error

	// Close cleanly shuts down the storage
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// QueryRequest specifies what samples to retrieve
type QueryRequest struct {
	// Time range, both ends inclusive. A zero End leaves the range open ended.
	Start time.Time
	End   time.Time

	// Filter by sensor (optional)
	SensorIDs []string

	// Limit number of results (0 = no limit)
	Limit int
}

// DeleteOptions selects samples to remove
type DeleteOptions struct {
	// Samples strictly before this time are removed
	Before time.Time

	// Restrict deletion to these sensors (nil = all sensors)
	SensorIDs []string
}

// Stats provides storage health and usage info
type Stats struct {
	// Total samples stored
	TotalSamples uint64 `json:"total_samples"`

	// Distinct sensors with at least one sample
	TotalSensors uint64 `json:"total_sensors"`

	// Storage size in bytes
	SizeBytes uint64 `json:"size_bytes"`

	OldestSample time.Time `json:"oldest_sample"`
	NewestSample time.Time `json:"newest_sample"`
}

// InRange reports whether ts lies inside the request's time range.
func (r QueryRequest) InRange(ts time.Time) bool {
	return !ts.Before(r.Start) && !r.PastEnd(ts)
}

// PastEnd reports whether ts is after the end of the range.
func (r QueryRequest) PastEnd(ts time.Time) bool {
	return !r.End.IsZero() && ts.After(r.End)
}

// Wants reports whether the request includes the given sensor.
func (r QueryRequest) Wants(sensorID string) bool {
	return matchSensor(r.SensorIDs, sensorID)
}

// Matches reports whether the sample falls under the deletion criteria.
func (o DeleteOptions) Matches(s sensor.Sample) bool {
	return s.Timestamp.Before(o.Before) && matchSensor(o.SensorIDs, s.SensorID)
}

func matchSensor(ids []string, id string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, want := range ids {
		if want == id {
			return true
		}
	}
	return false
}
