// Package config loads runtime settings from SECURELOG_* environment
// variables. Command-line flags override what is loaded here.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process-wide settings.
type Config struct {
	DBPath       string        `env:"SECURELOG_DB_PATH" envDefault:"securelog.db"`
	PolicyPath   string        `env:"SECURELOG_POLICY_PATH"`
	LogLevel     string        `env:"SECURELOG_LOG_LEVEL" envDefault:"info"`
	LogFormat    string        `env:"SECURELOG_LOG_FORMAT" envDefault:"text"`
	PollInterval time.Duration `env:"SECURELOG_POLL_INTERVAL" envDefault:"250ms"`
	OTelEndpoint string        `env:"SECURELOG_OTEL_ENDPOINT"`
	OTelEnabled  bool          `env:"SECURELOG_OTEL_ENABLED" envDefault:"false"`
	MetricsAddr  string        `env:"SECURELOG_METRICS_ADDR"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.LogFormat)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %s: must be positive", c.PollInterval)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}
