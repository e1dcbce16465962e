package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/storage"
)

const (
	keySize       = 16
	slowQueryTime = 5 * time.Second
)

// Storage implements storage.Storage using BadgerDB (LSM tree)
type Storage struct {
	db *badger.DB
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = use defaults based on environment)
	// Recommended: 64-128 MB for local dev, 256-512 MB for production
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(badgerLogger{})

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Conservative memory limits: badger defaults add up to ~320 MB.
	// 16 MB memtable is the floor below which flushes get excessive.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3 // ~33% for memtable
	}

	blockCacheSize := memTableSize / 2 // Block cache: 50% of memtable
	indexCacheSize := memTableSize / 4 // Index cache: 25% of memtable

	// Samples are tiny and append-mostly
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2). // badger refuses fewer than 2
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20) // 64 MB value log files instead of the 2 GB default

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db}, nil
}

// Write stores samples in BadgerDB. A sample with an existing (sensor, timestamp)
// key replaces the stored value.
func (s *Storage) Write(ctx context.Context, samples []sensor.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()

		for i, sample := range samples {
			// Check context periodically (every 100 samples)
			if i%100 == 0 {
				if err := ctx.Err(); err != nil {
					done <- err
					return
				}
			}

			value, err := encodeSample(sample)
			if err != nil {
				done <- fmt.Errorf("failed to encode sample: %w", err)
				return
			}

			if err := wb.Set(makeKey(sample.SensorID, sample.Timestamp), value); err != nil {
				done <- fmt.Errorf("failed to write sample: %w", err)
				return
			}
		}
		done <- wb.Flush()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write operation cancelled: %w", ctx.Err())
	}
}

// Query retrieves samples matching the request.
// With SensorIDs set only those sensors' key prefixes are scanned.
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]sensor.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type queryResult struct {
		results []sensor.Sample
		err     error
	}
	done := make(chan queryResult, 1)

	go func() {
		var res queryResult
		startTime := time.Now()
		var iterCount int

		res.err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100

			it := txn.NewIterator(opts)
			defer it.Close()

			// visit returns false once the limit is reached
			visit := func(item *badger.Item) (bool, error) {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return false, err
					}
				}

				_, ts := parseKey(item.Key())
				if !req.InRange(ts) {
					return true, nil
				}

				var sample sensor.Sample
				if err := item.Value(func(val []byte) error {
					var err error
					sample, err = decodeSample(val)
					return err
				}); err != nil {
					return false, fmt.Errorf("failed to decode sample: %w", err)
				}

				// Hash collisions share a prefix, the stored ID settles it
				if !req.Wants(sample.SensorID) {
					return true, nil
				}

				res.results = append(res.results, sample)
				return req.Limit <= 0 || len(res.results) < req.Limit, nil
			}

			if len(req.SensorIDs) == 0 {
				for it.Rewind(); it.Valid(); it.Next() {
					more, err := visit(it.Item())
					if err != nil || !more {
						return err
					}
				}
				return nil
			}

			for _, id := range req.SensorIDs {
				prefix := sensorPrefix(id)
				for it.Seek(seekKey(id, req.Start)); it.ValidForPrefix(prefix); it.Next() {
					_, ts := parseKey(it.Item().Key())
					if req.PastEnd(ts) {
						break
					}
					more, err := visit(it.Item())
					if err != nil || !more {
						return err
					}
				}
			}
			return nil
		})

		if elapsed := time.Since(startTime); elapsed > slowQueryTime {
			log.Warn().
				Dur("elapsed", elapsed).
				Int("iterations", iterCount).
				Int("results", len(res.results)).
				Msg("slow sample query")
		}

		done <- res
	}()

	select {
	case res := <-done:
		return res.results, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("query operation cancelled: %w", ctx.Err())
	}
}

// Delete removes samples older than opts.Before
func (s *Storage) Delete(ctx context.Context, opts storage.DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		var keysToDelete [][]byte

		err := s.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.PrefetchValues = len(opts.SensorIDs) > 0

			it := txn.NewIterator(iterOpts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				item := it.Item()
				_, ts := parseKey(item.Key())
				if !ts.Before(opts.Before) {
					continue
				}

				if len(opts.SensorIDs) > 0 {
					var sample sensor.Sample
					if err := item.Value(func(val []byte) error {
						var err error
						sample, err = decodeSample(val)
						return err
					}); err != nil {
						return fmt.Errorf("failed to decode sample: %w", err)
					}
					if !opts.Matches(sample) {
						continue
					}
				}

				keysToDelete = append(keysToDelete, item.KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			done <- err
			return
		}

		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, key := range keysToDelete {
			if err := wb.Delete(key); err != nil {
				done <- err
				return
			}
		}
		done <- wb.Flush()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delete operation cancelled: %w", ctx.Err())
	}
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection
// This reclaims disk space from deleted/updated values
// discardRatio: run GC if this fraction of file can be discarded (0.5 = 50%)
// Returns badger.ErrNoRewrite when there was nothing to collect
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type statsResult struct {
		stats *storage.Stats
		err   error
	}
	done := make(chan statsResult, 1)

	go func() {
		var res statsResult
		stats := &storage.Stats{}

		res.err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			sensors := make(map[uint64]bool)
			var iterCount int

			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				stats.TotalSamples++

				hash, ts := parseKey(it.Item().Key())
				sensors[hash] = true

				if stats.OldestSample.IsZero() || ts.Before(stats.OldestSample) {
					stats.OldestSample = ts
				}
				if stats.NewestSample.IsZero() || ts.After(stats.NewestSample) {
					stats.NewestSample = ts
				}
			}

			stats.TotalSensors = uint64(len(sensors))
			return nil
		})

		if res.err == nil {
			lsmSize, vlogSize := s.db.Size()
			stats.SizeBytes = uint64(lsmSize + vlogSize)
		}

		res.stats = stats
		done <- res
	}()

	select {
	case res := <-done:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("stats operation cancelled: %w", ctx.Err())
	}
}

// makeKey creates a sortable key: sensor_hash + timestamp
// Format: [sensor_hash (8 bytes)][timestamp (8 bytes)]
// Timestamps must not precede the epoch: negative nanoseconds would sort after
// every later sample. Ingest rejects anything before sensor.EarliestSample.
func makeKey(sensorID string, ts time.Time) []byte {
	key := make([]byte, keySize)
	binary.BigEndian.PutUint64(key[0:8], xxhash.Sum64String(sensorID))
	binary.BigEndian.PutUint64(key[8:16], uint64(ts.UnixNano()))
	return key
}

// seekKey is the first key of sensorID at or after start. Keys carry unsigned
// nanoseconds, so anything before the epoch starts at the prefix.
func seekKey(sensorID string, start time.Time) []byte {
	if start.Before(time.Unix(0, 0)) {
		return sensorPrefix(sensorID)
	}
	return makeKey(sensorID, start)
}

func sensorPrefix(sensorID string) []byte {
	return makeKey(sensorID, time.Unix(0, 0))[:8]
}

// parseKey extracts the sensor hash and timestamp from a storage key
func parseKey(key []byte) (uint64, time.Time) {
	hash := binary.BigEndian.Uint64(key[0:8])
	tsNano := binary.BigEndian.Uint64(key[8:16])
	return hash, time.Unix(0, int64(tsNano)).UTC()
}

func encodeSample(s sensor.Sample) ([]byte, error) {
	return json.Marshal(s)
}

func decodeSample(data []byte) (sensor.Sample, error) {
	var s sensor.Sample
	err := json.Unmarshal(data, &s)
	return s, err
}

// badgerLogger routes badger's internal logging through zerolog
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	log.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	log.Trace().Str("component", "badger").Msgf(format, args...)
}
