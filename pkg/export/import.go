package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nicktill/gasqc/pkg/config"
	"github.com/nicktill/gasqc/pkg/sensor"
	"github.com/nicktill/gasqc/pkg/storage"
)

// ErrMissingColumn is returned when a logger CSV lacks a required column
var ErrMissingColumn = errors.New("missing column")

var loggerColumns = []string{"Year", "Month", "Day", "Hour", "Minute", "Second", "Value"}

// Importer handles importing samples from logger files and backups
type Importer struct {
	storage storage.Storage
	now     func() time.Time
}

// NewImporter creates a new importer
func NewImporter(store storage.Storage) *Importer {
	return &Importer{storage: store, now: time.Now}
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	SensorID        string    `json:"sensor_id"`
	SamplesImported int       `json:"samples_imported"`
	BatchesWritten  int       `json:"batches_written"`
	Skipped         int       `json:"skipped"`
	TimeRange       string    `json:"time_range"`
	ImportedAt      time.Time `json:"imported_at"`
	Errors          []string  `json:"errors,omitempty"`
}

// SampleBackup is the JSON layout of a raw sample backup
type SampleBackup struct {
	Metadata struct {
		ExportedAt  time.Time `json:"exported_at"`
		SensorID    string    `json:"sensor_id"`
		StartTime   time.Time `json:"start_time"`
		EndTime     time.Time `json:"end_time"`
		SampleCount int       `json:"sample_count"`
		Version     string    `json:"version"`
	} `json:"metadata"`
	Samples []sensor.Sample `json:"samples"`
}

// WriteBackup writes samples as a JSON backup that ImportJSON reads back.
func WriteBackup(w io.Writer, sensorID string, start, end time.Time, samples []sensor.Sample) error {
	var backup SampleBackup
	backup.Metadata.ExportedAt = time.Now()
	backup.Metadata.SensorID = sensorID
	backup.Metadata.StartTime = start
	backup.Metadata.EndTime = end
	backup.Metadata.SampleCount = len(samples)
	backup.Metadata.Version = exportVersion
	backup.Samples = samples

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ImportCSV imports a sensor logger CSV file for one sensor.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader, sensorID string) (*ImportResult, error) {
	samples, skipped, err := ParseLoggerCSV(r, sensorID, im.now())
	if err != nil {
		return nil, err
	}
	return im.store(ctx, sensorID, samples, skipped)
}

// ImportJSON imports a JSON sample backup. Samples are attributed to sensorID.
func (im *Importer) ImportJSON(ctx context.Context, r io.Reader, sensorID string) (*ImportResult, error) {
	var backup SampleBackup
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	var skipped []string
	valid := make([]sensor.Sample, 0, len(backup.Samples))
	for i, s := range backup.Samples {
		if s.Timestamp.IsZero() {
			skipped = append(skipped, fmt.Sprintf("sample %d: timestamp cannot be zero", i))
			continue
		}
		s.SensorID = sensorID
		valid = append(valid, s)
	}
	return im.store(ctx, sensorID, valid, skipped)
}

// store writes samples in batches to avoid overwhelming storage
func (im *Importer) store(ctx context.Context, sensorID string, samples []sensor.Sample, skipped []string) (*ImportResult, error) {
	result := &ImportResult{
		SensorID:   sensorID,
		Skipped:    len(skipped),
		TimeRange:  "empty",
		ImportedAt: im.now(),
		Errors:     skipped,
	}
	if len(samples) == 0 {
		return result, nil
	}

	for i := 0; i < len(samples); i += config.MaxImportBatchSize {
		end := i + config.MaxImportBatchSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := im.storage.Write(ctx, samples[i:end]); err != nil {
			return nil, fmt.Errorf("failed to write batch %d: %w", result.BatchesWritten, err)
		}
		result.BatchesWritten++
	}

	minTime, maxTime := samples[0].Timestamp, samples[0].Timestamp
	for _, s := range samples {
		if s.Timestamp.Before(minTime) {
			minTime = s.Timestamp
		}
		if s.Timestamp.After(maxTime) {
			maxTime = s.Timestamp
		}
	}
	result.SamplesImported = len(samples)
	result.TimeRange = fmt.Sprintf("%s to %s", minTime.Format(time.RFC3339), maxTime.Format(time.RFC3339))
	return result, nil
}

// ParseLoggerCSV reads the sensor logger layout:
//
//	Year,Month,Day,Hour,Minute,Second,Value,Latitude,Longitude,...
//
// Extra columns are ignored. Rows with an unparsable date or value, dated on
// or before sensor.EarliestSample, or after now are skipped and reported.
func ParseLoggerCSV(r io.Reader, sensorID string, now time.Time) ([]sensor.Sample, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range loggerColumns {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
	}

	var (
		samples []sensor.Sample
		skipped []string
	)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}

		s, err := parseLoggerRecord(record, cols)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if !s.Timestamp.After(sensor.EarliestSample) || s.Timestamp.After(now) {
			skipped = append(skipped, fmt.Sprintf("line %d: timestamp %s out of range", line, s.Timestamp.Format(time.RFC3339)))
			continue
		}
		s.SensorID = sensorID
		samples = append(samples, s)
	}

	return samples, skipped, nil
}

func parseLoggerRecord(record []string, cols map[string]int) (sensor.Sample, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var parts [6]int
	for i, name := range loggerColumns[:6] {
		v, err := strconv.Atoi(field(name))
		if err != nil {
			return sensor.Sample{}, fmt.Errorf("invalid %s: %q", strings.ToLower(name), field(name))
		}
		parts[i] = v
	}
	ts := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
	// time.Date normalizes overflowing fields; reject them instead
	if ts.Month() != time.Month(parts[1]) || ts.Day() != parts[2] || ts.Hour() != parts[3] ||
		ts.Minute() != parts[4] || ts.Second() != parts[5] {
		return sensor.Sample{}, fmt.Errorf("invalid date %v", parts)
	}

	value, err := strconv.ParseFloat(field("Value"), 64)
	if err != nil {
		return sensor.Sample{}, fmt.Errorf("invalid value: %q", field("Value"))
	}

	s := sensor.Sample{Timestamp: ts, Value: sensor.NullFloat(value)}
	if lat, err := strconv.ParseFloat(field("Latitude"), 64); err == nil {
		s.Latitude = lat
	}
	if lon, err := strconv.ParseFloat(field("Longitude"), 64); err == nil {
		s.Longitude = lon
	}
	return s, nil
}
