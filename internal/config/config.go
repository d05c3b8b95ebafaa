// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL  string
	StateDir    string
	HTTPTimeout time.Duration
	LogLevel    slog.Level
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:  getEnv("BREATHE_API_URL", "http://localhost:8000"),
		StateDir:    getEnv("BREATHE_STATE_DIR", defaultStateDir()),
		HTTPTimeout: getEnvDuration("BREATHE_HTTP_TIMEOUT", 30*time.Second),
		LogLevel:    parseLogLevel(getEnv("BREATHE_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("BREATHE_API_URL cannot be empty")
	}
	if c.StateDir == "" {
		return fmt.Errorf("BREATHE_STATE_DIR cannot be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("BREATHE_HTTP_TIMEOUT must be > 0")
	}
	return nil
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "breathe")
	}
	return ".config/breathe"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
