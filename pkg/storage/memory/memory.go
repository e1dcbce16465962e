package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/storage"
)

type sampleKey struct {
	sensorID string
	unixNano int64
}

// Storage stores samples in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	samples []sensor.Sample
	index   map[sampleKey]int
	mu      sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		samples: make([]sensor.Sample, 0, 10000),
		index:   make(map[sampleKey]int),
	}
}

// Write stores samples in memory, replacing any sample with the same key
func (s *Storage) Write(ctx context.Context, samples []sensor.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		key := keyOf(sample)
		if i, exists := s.index[key]; exists {
			s.samples[i] = sample
			continue
		}
		s.index[key] = len(s.samples)
		s.samples = append(s.samples, sample)
	}
	return nil
}

// Query retrieves samples matching the request, ordered by sensor then time
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]sensor.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var results []sensor.Sample
	for _, sample := range s.samples {
		if !req.InRange(sample.Timestamp) || !req.Wants(sample.SensorID) {
			continue
		}
		results = append(results, sample)
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].SensorID != results[j].SensorID {
			return results[i].SensorID < results[j].SensorID
		}
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}

	return results, nil
}

// Delete removes samples older than the cutoff
func (s *Storage) Delete(ctx context.Context, opts storage.DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]sensor.Sample, 0, len(s.samples))
	index := make(map[sampleKey]int, len(s.index))
	for _, sample := range s.samples {
		if opts.Matches(sample) {
			continue
		}
		index[keyOf(sample)] = len(filtered)
		filtered = append(filtered, sample)
	}

	s.samples = filtered
	s.index = index
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		TotalSamples: uint64(len(s.samples)),
	}

	if len(s.samples) == 0 {
		return stats, nil
	}

	// Count sensors and find min/max timestamps in single pass
	sensors := make(map[string]bool)
	oldest := s.samples[0].Timestamp
	newest := s.samples[0].Timestamp

	for _, sample := range s.samples {
		sensors[sample.SensorID] = true

		if sample.Timestamp.Before(oldest) {
			oldest = sample.Timestamp
		}
		if sample.Timestamp.After(newest) {
			newest = sample.Timestamp
		}
	}

	stats.TotalSensors = uint64(len(sensors))
	stats.OldestSample = oldest
	stats.NewestSample = newest

	// Rough size estimate (each sample ~64 bytes)
	stats.SizeBytes = uint64(len(s.samples)) * 64

	return stats, nil
}

func keyOf(s sensor.Sample) sampleKey {
	return sampleKey{sensorID: s.SensorID, unixNano: s.Timestamp.UnixNano()}
}
