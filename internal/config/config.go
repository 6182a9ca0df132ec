package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/covid-curve/internal/fit"
)

var validate = validator.New()

// Config holds all application configuration
type Config struct {
	CasesLedger       string `env:"CASES_LEDGER" envDefault:"covid_data.txt" validate:"required"`
	DeathsLedger      string `env:"DEATHS_LEDGER" envDefault:"covid_deaths.txt" validate:"required"`
	LedgerLockTimeout int    `env:"LEDGER_LOCK_TIMEOUT" envDefault:"10" validate:"min=1"` // seconds

	FeedBaseURL     string `env:"FEED_BASE_URL" envDefault:"https://koronavirus.gov.hu" validate:"required,url"`
	FeedUserAgent   string `env:"FEED_USER_AGENT" envDefault:"covid-curve/1.0"`
	MaxPages        int    `env:"MAX_PAGES" envDefault:"50" validate:"min=1"`
	RequestTimeout  int    `env:"REQUEST_TIMEOUT" envDefault:"30" validate:"min=1"` // seconds
	RequestsPerSec  int    `env:"REQUESTS_PER_SEC" envDefault:"2" validate:"min=1"`
	MaxRetries      int    `env:"MAX_RETRIES" envDefault:"3" validate:"min=0"`
	MaxRetryTimeout int    `env:"MAX_RETRY_TIMEOUT" envDefault:"30" validate:"min=1"` // seconds

	LogisticSeedScale        float64 `env:"LOGISTIC_SEED_SCALE" envDefault:"2" validate:"ne=0"`
	LogisticSeedPeak         float64 `env:"LOGISTIC_SEED_PEAK" envDefault:"60"`
	LogisticSeedMax          float64 `env:"LOGISTIC_SEED_MAX" envDefault:"100000" validate:"gt=0"`
	LogisticMaxIterations    int     `env:"LOGISTIC_MAX_ITERATIONS" envDefault:"800" validate:"min=1"`
	ExponentialMaxIterations int     `env:"EXPONENTIAL_MAX_ITERATIONS" envDefault:"5000" validate:"min=1"`
	LogisticMaxStdErr        float64 `env:"LOGISTIC_MAX_STDERR" envDefault:"1e7" validate:"gt=0"`
	RejectUncertainMaximum   bool    `env:"REJECT_UNCERTAIN_MAXIMUM" envDefault:"true"`

	MaxWindowDays int    `env:"MAX_WINDOW_DAYS" envDefault:"36500" validate:"min=1"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and reports every failing field.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(ve))
			for _, e := range ve {
				fields = append(fields, fmt.Sprintf("%s %s", e.Field(), e.ActualTag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequestTimeoutDuration returns the per-request timeout
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// LedgerLockTimeoutDuration returns how long a ledger write waits for the file lock
func (c *Config) LedgerLockTimeoutDuration() time.Duration {
	return time.Duration(c.LedgerLockTimeout) * time.Second
}

// MaxRetryTimeoutDuration returns the total retry budget of one request
func (c *Config) MaxRetryTimeoutDuration() time.Duration {
	return time.Duration(c.MaxRetryTimeout) * time.Second
}

// FitSettings converts the fitting options into fit.Settings.
func (c *Config) FitSettings() fit.Settings {
	return fit.Settings{
		Policy: fit.Policy{
			MaxStdErr:              c.LogisticMaxStdErr,
			RejectUncertainMaximum: c.RejectUncertainMaximum,
		},
		LogisticSeed:             [3]float64{c.LogisticSeedScale, c.LogisticSeedPeak, c.LogisticSeedMax},
		LogisticMaxIterations:    c.LogisticMaxIterations,
		ExponentialMaxIterations: c.ExponentialMaxIterations,
	}
}
