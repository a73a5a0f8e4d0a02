// Package config loads the fetchkit application configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default transport settings
	defaultTimeout = 30 * time.Second

	// Default batch settings
	defaultMaxConcurrent = 8
	defaultStrategy      = "store-status"

	// Default monitoring settings
	defaultMetricsPrefix = "fetchkit"
	defaultJobName       = "batchctl"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"
)

// Config represents the complete application configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Batch     BatchConfig     `yaml:"batch"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Operations is the path to the dispatch table YAML file.
	Operations string `yaml:"operations"`

	// Schedule is an optional cron expression for repeated runs.
	Schedule string `yaml:"schedule"`
}

// TransportConfig holds HTTP executor settings.
type TransportConfig struct {
	// BaseURL is prepended to relative work item URLs.
	BaseURL string `yaml:"base_url"`
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is the maximum request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`
	// MaxRetries bounds retries of transport-level errors.
	MaxRetries uint64 `yaml:"max_retries"`
}

// BatchConfig holds batch runner settings.
type BatchConfig struct {
	// MaxConcurrent bounds the number of items in flight per run.
	MaxConcurrent int `yaml:"max_concurrent"`
	// Strategy names the default result strategy: store-status,
	// store-always, or store-none.
	Strategy string `yaml:"strategy"`
}

// MetricsConfig holds metrics push settings. Metrics are disabled when
// PushURL is empty.
type MetricsConfig struct {
	PushURL  string `yaml:"push_url"`
	Prefix   string `yaml:"prefix"`
	JobName  string `yaml:"jobname"`
	Instance string `yaml:"instance"`
}

// LoggingConfig defines logging behavior settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	if c.Batch.MaxConcurrent <= 0 {
		return fmt.Errorf("batch max_concurrent must be positive")
	}
	switch c.Batch.Strategy {
	case "store-status", "store-always", "store-none":
	default:
		return fmt.Errorf("unknown batch strategy %q", c.Batch.Strategy)
	}
	if c.Transport.Timeout <= 0 {
		return fmt.Errorf("transport timeout must be positive")
	}
	if c.Transport.RateLimit < 0 {
		return fmt.Errorf("transport rate_limit must not be negative")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = defaultTimeout
	}
	if c.Batch.MaxConcurrent == 0 {
		c.Batch.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Batch.Strategy == "" {
		c.Batch.Strategy = defaultStrategy
	}
	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = defaultMetricsPrefix
	}
	if c.Metrics.JobName == "" {
		c.Metrics.JobName = defaultJobName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// LoadConfig reads the YAML config file at the given path and returns a
// Config with defaults applied and validation performed.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
