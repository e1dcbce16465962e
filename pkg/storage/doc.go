/*
Package storage provides the pluggable storage abstraction for raw sensor samples.

# Storage Interface

Two backends implement the Storage interface:
  - memory: In-memory storage for testing and ephemeral workloads
  - badger: BadgerDB (LSM tree + Snappy compression) for persistent storage

Samples are identified by sensor ID and timestamp. Re-sending a sample for the same
sensor and instant overwrites the stored value, so replaying an import or an MQTT
backlog is safe. Duplicates that arrive inside one batch resolve to the last one.

# Usage Example

	store, err := badger.New(badger.Config{Path: "./data"})
	if err != nil {
	    log.Fatal().Err(err).Msg("open storage")
	}
	defer store.Close()

	err = store.Write(ctx, []sensor.Sample{
	    {SensorID: "no2-01", Timestamp: ts, Value: 23.4},
	})

	samples, err := store.Query(ctx, storage.QueryRequest{
	    Start:     time.Now().Add(-24 * time.Hour),
	    End:       time.Now(),
	    SensorIDs: []string{"no2-01"},
	})

Results are ordered by timestamp within each sensor. Order across sensors is backend
specific; the analysis pipeline sorts its input anyway.

# Retention

	// Drop everything older than 90 days
	store.Delete(ctx, storage.DeleteOptions{
	    Before: time.Now().Add(-90 * 24 * time.Hour),
	})

# Best Practices

1. Always call Close() when done to flush pending writes
2. Use context.WithTimeout() to prevent hung queries
3. Pass SensorIDs whenever possible: BadgerDB then scans one key prefix instead of the whole keyspace
*/
package storage
