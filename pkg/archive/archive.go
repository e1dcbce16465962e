// Package archive stores completed analysis runs as compressed JSON tables.
//
// Each run is written as three objects:
//
//	{sensor}/{yyyy}/{mm}/{dd}/{run_id}/points.json.zst
//	{sensor}/{yyyy}/{mm}/{dd}/{run_id}/hourly.json.zst
//	{sensor}/{yyyy}/{mm}/{dd}/{run_id}/summary.json.zst
//
// The date is the run's completion day in UTC and the extension follows the codec.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog/log"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/export"
	"github.com/nicktill/gasqc/pkg/pipeline"
)

// Archiver compresses run tables into a sink
type Archiver struct {
	codec    Codec
	sink     Sink
	exporter *export.Exporter
}

// New creates an archiver.
func New(codec Codec, sink Sink) *Archiver {
	return &Archiver{
		codec:    codec,
		sink:     sink,
		exporter: export.NewExporter(),
	}
}

// FromConfig builds the archiver selected by cfg.
func FromConfig(ctx context.Context, cfg config.ArchiveConfig) (*Archiver, error) {
	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	var sink Sink
	switch cfg.Backend {
	case "s3":
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		sink = NewS3Sink(client, cfg.S3.Bucket, cfg.S3.Prefix)
	case "file", "":
		sink, err = NewFileSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}

	return New(codec, sink), nil
}

// Key returns the object key of one table of a run.
func (a *Archiver) Key(res *pipeline.Result, table export.Table) string {
	day := res.CompletedAt.UTC().Format("2006/01/02")
	return path.Join(res.SensorID, day, res.RunID, string(table)+".json"+a.codec.Extension())
}

// Archive writes every table of a run.
func (a *Archiver) Archive(ctx context.Context, res *pipeline.Result) error {
	var written int
	for _, table := range export.Tables {
		var buf bytes.Buffer
		if _, err := a.exporter.Export(&buf, res, table, export.FormatJSON); err != nil {
			return fmt.Errorf("encode %s: %w", table, err)
		}

		compressed, err := a.codec.Compress(buf.Bytes())
		if err != nil {
			return fmt.Errorf("compress %s: %w", table, err)
		}

		if err := a.sink.Put(ctx, a.Key(res, table), compressed); err != nil {
			return err
		}
		written += len(compressed)
	}

	log.Debug().
		Str("sensor", res.SensorID).
		Str("run_id", res.RunID).
		Str("codec", a.codec.Name()).
		Int("bytes", written).
		Msg("run archived")
	return nil
}

// Read returns one archived table, decompressed.
func (a *Archiver) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := a.sink.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return a.codec.Decompress(data)
}
