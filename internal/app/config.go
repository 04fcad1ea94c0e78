// Package app loads configuration and wires the ledger services for the binaries.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/lots"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/valuation"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds runtime configuration read from the environment.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppPort         string        `envconfig:"APP_PORT" default:"8080"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"25"`

	// RedisAddr enables the Redis lot checkpoint store when set.
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	CheckpointEvery int           `envconfig:"CHECKPOINT_EVERY" default:"100"`
	CheckpointTTL   time.Duration `envconfig:"CHECKPOINT_TTL" default:"168h"`

	ValuationBatchSize int           `envconfig:"VALUATION_BATCH_SIZE" default:"10"`
	LotFetchTimeout    time.Duration `envconfig:"LOT_FETCH_TIMEOUT" default:"5s"`
	ValuationMethod    string        `envconfig:"VALUATION_METHOD" default:"fifo"`

	ReconRatioThreshold float64 `envconfig:"RECON_RATIO_THRESHOLD" default:"0.10"`
	// ReconValueThreshold of 0 disables the value criterion.
	ReconValueThreshold string `envconfig:"RECON_VALUE_THRESHOLD" default:"0"`
	ReconSeverityExpr   string `envconfig:"RECON_SEVERITY_EXPR"`

	CurrencyDecimals int32 `envconfig:"CURRENCY_DECIMALS" default:"2"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules envconfig cannot express.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if _, err := valuation.ParseMethod(c.ValuationMethod); err != nil {
		return fmt.Errorf("VALUATION_METHOD: %w", err)
	}
	if c.ValuationBatchSize <= 0 {
		return errors.New("VALUATION_BATCH_SIZE must be positive")
	}
	if c.ReconRatioThreshold < 0 {
		return errors.New("RECON_RATIO_THRESHOLD must be >= 0")
	}
	if v, err := types.NewMoneyFromString(c.ReconValueThreshold); err != nil || v.IsNegative() {
		return fmt.Errorf("RECON_VALUE_THRESHOLD must be a non-negative amount, got %q", c.ReconValueThreshold)
	}
	if c.CurrencyDecimals < 0 || c.CurrencyDecimals > 8 {
		return errors.New("CURRENCY_DECIMALS must be between 0 and 8")
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = lots.DefaultCheckpointEvery
	}
	return nil
}

// IsDevelopment reports whether logs should be human-readable.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

// Thresholds returns the default reconciliation policy parameters.
func (c *Config) Thresholds() reconciliation.Thresholds {
	value, _ := types.NewMoneyFromString(c.ReconValueThreshold)
	return reconciliation.Thresholds{
		Ratio: decimal.NewFromFloat(c.ReconRatioThreshold),
		Value: value,
	}
}

// Method returns the configured default valuation method.
func (c *Config) Method() valuation.Method {
	m, _ := valuation.ParseMethod(c.ValuationMethod)
	return m
}
