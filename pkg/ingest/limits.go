package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/nicktill/gasqc/pkg/sensor"
)

// Validation limits
const (
	MaxSensorIDLength    = 128  // Maximum sensor ID length
	MaxSamplesPerRequest = 5000 // Maximum samples in single ingest request
	MaxClockSkew         = 5 * time.Minute
)

var (
	// ErrSensorIDEmpty is returned when a sample carries no sensor ID
	ErrSensorIDEmpty = errors.New("sensor id cannot be empty")

	// ErrSensorIDTooLong is returned when a sensor ID is too long
	ErrSensorIDTooLong = fmt.Errorf("sensor id too long (max %d chars)", MaxSensorIDLength)

	// ErrMissingTimestamp is returned for a sample without a timestamp
	ErrMissingTimestamp = errors.New("sample has no timestamp")

	// ErrTimestampOutOfRange is returned for a sample dated at or before
	// sensor.EarliestSample or ahead of the server clock
	ErrTimestampOutOfRange = errors.New("sample timestamp out of range")

	// ErrUnknownSensor is returned for samples of a sensor that is not configured
	ErrUnknownSensor = errors.New("unknown sensor")

	// ErrStorageFull is returned when the storage limit has been reached
	ErrStorageFull = errors.New("storage limit reached")

	// ErrTooManySamples is returned when an ingest request contains too many samples
	ErrTooManySamples = fmt.Errorf("too many samples in request (max %d)", MaxSamplesPerRequest)
)

// Registry tells which sensors are configured
type Registry interface {
	Known(sensorID string) bool
}

// ValidateSample checks one sample before it is stored. A missing or
// sentinel value is not an error: it is stored and tagged later.
func ValidateSample(s sensor.Sample) error {
	return validateSample(s, time.Now())
}

func validateSample(s sensor.Sample, now time.Time) error {
	if s.SensorID == "" {
		return ErrSensorIDEmpty
	}
	if len(s.SensorID) > MaxSensorIDLength {
		return fmt.Errorf("%w: %d chars", ErrSensorIDTooLong, len(s.SensorID))
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w (sensor %q)", ErrMissingTimestamp, s.SensorID)
	}
	if !s.Timestamp.After(sensor.EarliestSample) || s.Timestamp.After(now.Add(MaxClockSkew)) {
		return fmt.Errorf("%w: %s", ErrTimestampOutOfRange, s.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// ValidateBatch validates every sample and checks the sensor against the registry.
// A nil registry accepts any sensor.
func ValidateBatch(samples []sensor.Sample, registry Registry) error {
	if len(samples) > MaxSamplesPerRequest {
		return fmt.Errorf("%w: got %d", ErrTooManySamples, len(samples))
	}
	now := time.Now()
	for i, s := range samples {
		if err := validateSample(s, now); err != nil {
			return fmt.Errorf("invalid sample at index %d: %w", i, err)
		}
		if registry != nil && !registry.Known(s.SensorID) {
			return fmt.Errorf("invalid sample at index %d: %w %q", i, ErrUnknownSensor, s.SensorID)
		}
	}
	return nil
}
