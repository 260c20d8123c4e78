// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/warp/invoice-engine/logger"
)

// Config holds runtime configuration for the server.
type Config struct {
	Addr         string        `envconfig:"BILLING_ADDR" default:":8080"`
	DBPath       string        `envconfig:"BILLING_DB" default:"invoices.db"`
	ReadTimeout  time.Duration `envconfig:"BILLING_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"BILLING_WRITE_TIMEOUT" default:"15s"`

	// InvoiceDir is watched for generated faktura_* files. Empty disables
	// watching; the stored watermark is used alone.
	InvoiceDir string `envconfig:"BILLING_INVOICE_DIR"`

	// RateLimit is the per-IP request budget per minute; 0 disables it.
	RateLimit int `envconfig:"BILLING_RATE_LIMIT" default:"120"`

	// Seed seeds the description picker; 0 uses the clock.
	Seed int64 `envconfig:"BILLING_SEED" default:"0"`

	LogLevel  string `envconfig:"BILLING_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"BILLING_LOG_FORMAT" default:"console"`
	LogCaller bool   `envconfig:"BILLING_LOG_CALLER" default:"false"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return errors.New("BILLING_DB must not be empty")
	}
	if c.RateLimit < 0 {
		return errors.New("BILLING_RATE_LIMIT must not be negative")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("BILLING_READ_TIMEOUT and BILLING_WRITE_TIMEOUT must be positive")
	}
	return nil
}

// LogConfig returns the logger configuration.
func (c *Config) LogConfig() logger.LogConfig {
	lc := logger.DefaultConfig()
	lc.Level = c.LogLevel
	lc.Format = c.LogFormat
	lc.Caller = c.LogCaller
	return lc
}
