package sensor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

const (
	// MissingSentinel is the value loggers report on a hardware error.
	// Readings at or below it are treated as missing.
	MissingSentinel = -9000.0

	// ppbToMass converts a ppb reading to mg/m3 together with the molar mass (g/mol) at 25°C.
	ppbToMass = 0.0409
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid sensor config")

var validate = validator.New()

// Config describes the physical characteristics of one gas sensor.
// It is treated as an immutable value: stages copy it, never modify it.
type Config struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name string `json:"name,omitempty" yaml:"name"`

	// Valid measuring range, same unit as the readings
	LowerLimit float64 `json:"lower_limit" yaml:"lower_limit"`
	UpperLimit float64 `json:"upper_limit" yaml:"upper_limit" validate:"gtefield=LowerLimit"`

	// Step response: T90 is the time to reach 90% of a step of size T90Value
	T90      time.Duration `json:"t90" yaml:"t90" validate:"gt=0"`
	T90Value float64       `json:"t90_value" yaml:"t90_value" validate:"gte=0"`

	SamplingPeriod time.Duration `json:"sampling_period" yaml:"sampling_period" default:"15m" validate:"gt=0"`
	MolarMass      float64       `json:"molar_mass" yaml:"molar_mass" validate:"gt=0"`
}

// WithDefaults returns a copy of c with unset optional fields filled in.
func (c Config) WithDefaults() (Config, error) {
	if err := defaults.Set(&c); err != nil {
		return c, fmt.Errorf("apply sensor defaults: %w", err)
	}
	return c, nil
}

// Validate checks the configuration before any series is processed.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w %q: %s", ErrInvalidConfig, c.ID, strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be positive (got %v)", fe.Field(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
}

// MaxDiff is the largest change between two consecutive samples the sensor
// can physically produce: samplingPeriod / (t90/2) * t90Value.
func (c Config) MaxDiff() float64 {
	halfT90 := c.T90 / 2
	return float64(c.SamplingPeriod) / float64(halfT90) * c.T90Value
}

// ExpectedPerHour is the number of samples one hour holds at the sampling period.
func (c Config) ExpectedPerHour() float64 {
	return float64(time.Hour) / float64(c.SamplingPeriod)
}

// ToMass converts a concentration reading to mass density using the molar mass.
func (c Config) ToMass(v float64) float64 {
	return ppbToMass * v * c.MolarMass / 1e3
}
