package config

import "time"

// Analysis scheduling
const (
	AnalysisWindow   = 30 * 24 * time.Hour // default range of on-demand analyses
	AnalysisTimeout  = 2 * time.Minute
	BadgerGCInterval = 10 * time.Minute
)

// Storage defaults, mirrored by the struct tags in file.go
const (
	DefaultMaxMemoryMB = 48
)

// Ingest timeouts and limits
const (
	IngestTimeout            = 5 * time.Second
	IngestQueryTimeout       = 10 * time.Second
	IngestStatsTimeout       = 5 * time.Second
	IngestDefaultQueryWindow = 24 * time.Hour
	IngestDefaultMaxPoints   = 1000
	IngestMaxPointsLimit     = 5000
	IngestMaxQueryWindow     = 90 * 24 * time.Hour
)

// Export defaults and limits
const (
	DefaultExportWindow = 30 * 24 * time.Hour
	MaxExportWindow     = 366 * 24 * time.Hour
	MaxImportBatchSize  = 5000
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Data source
const (
	SourceTimeout = 30 * time.Second
)
