package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/nicktill/gasqc/pkg/sensor"
)

// Environment overrides
const (
	EnvPort        = "GASQC_PORT"
	EnvDataDir     = "GASQC_DATA_DIR"
	EnvMaxMemoryMB = "GASQC_MAX_MEMORY_MB"
	EnvLogLevel    = "GASQC_LOG_LEVEL"
)

// ErrInvalid is wrapped by every configuration file validation failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

// File is the YAML configuration of a gasqc server.
type File struct {
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
	Analysis AnalysisConfig  `yaml:"analysis"`
	Sensors  []sensor.Config `yaml:"sensors" validate:"required,min=1,dive"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	Archive  ArchiveConfig   `yaml:"archive"`
	Source   SourceConfig    `yaml:"source"`
}

// ServerConfig controls the HTTP server and local storage.
type ServerConfig struct {
	Port         string `yaml:"port" default:"8080" validate:"required,numeric"`
	DataDir      string `yaml:"data_dir" default:"./data/gasqc"`
	Storage      string `yaml:"storage" default:"badger" validate:"oneof=badger memory"`
	MaxStorageGB int64  `yaml:"max_storage_gb" default:"1" validate:"gt=0"`
	MaxMemoryMB  int64  `yaml:"max_memory_mb" default:"48" validate:"gt=0"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

// AnalysisConfig controls the periodic analysis of every sensor.
// A quantile bound of 0 is indistinguishable from unset and falls back to the default.
type AnalysisConfig struct {
	Interval      time.Duration `yaml:"interval" default:"1h" validate:"gt=0"`
	Window        time.Duration `yaml:"window" default:"720h" validate:"gt=0"`
	Workers       int           `yaml:"workers" default:"4" validate:"gte=1"`
	QuantileLower float64       `yaml:"quantile_lower" default:"0.01" validate:"gte=0,lte=1"`
	QuantileUpper float64       `yaml:"quantile_upper" default:"0.99" validate:"gte=0,lte=1,gtefield=QuantileLower"`
	MinSamples    int           `yaml:"min_samples" default:"1" validate:"gte=1"`
}

// MQTTConfig configures the MQTT sample subscriber.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker" validate:"required_if=Enabled true"`
	ClientID string `yaml:"client_id" default:"gasqc"`
	Topic    string `yaml:"topic" default:"sensors/+/samples"`
	QoS      byte   `yaml:"qos" default:"1" validate:"lte=2"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ArchiveConfig configures where completed analysis runs are archived.
type ArchiveConfig struct {
	Enabled bool     `yaml:"enabled"`
	Backend string   `yaml:"backend" default:"file" validate:"oneof=file s3"`
	Codec   string   `yaml:"codec" default:"zstd" validate:"oneof=zstd lz4"`
	Dir     string   `yaml:"dir" default:"./data/archive"`
	S3      S3Config `yaml:"s3"`
}

// S3Config points at an S3 compatible bucket. Endpoint is only needed for
// non-AWS services such as MinIO.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix" default:"gasqc"`
	Region    string `yaml:"region" default:"us-east-1"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SourceConfig configures the remote HTTP data source used for backfills.
type SourceConfig struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
}

// Load reads a YAML configuration file, fills in defaults, applies environment
// overrides and validates the result.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&f); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	for i, s := range f.Sensors {
		withDefaults, err := s.WithDefaults()
		if err != nil {
			return nil, err
		}
		f.Sensors[i] = withDefaults
	}

	f.applyEnv()

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the whole file, including every sensor.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if f.Archive.Enabled && f.Archive.Backend == "s3" && f.Archive.S3.Bucket == "" {
		return fmt.Errorf("%w: archive.s3.bucket is required for the s3 backend", ErrInvalid)
	}

	seen := make(map[string]bool, len(f.Sensors))
	for _, s := range f.Sensors {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate sensor id %q", ErrInvalid, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// SensorIDs returns the configured sensor IDs in file order.
func (f *File) SensorIDs() []string {
	ids := make([]string, len(f.Sensors))
	for i, s := range f.Sensors {
		ids[i] = s.ID
	}
	return ids
}

func (f *File) applyEnv() {
	if v := os.Getenv(EnvPort); v != "" {
		f.Server.Port = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		f.Server.DataDir = v
	}
	if v := os.Getenv(EnvMaxMemoryMB); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.Server.MaxMemoryMB = parsed
		} else {
			log.Warn().Str("key", EnvMaxMemoryMB).Str("value", v).Msg("invalid value, keeping configured")
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		f.Log.Level = v
	}
}
