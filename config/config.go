// Package config loads application configuration from the environment,
// with an optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	// Path to the SQLite database file; ":memory:" for ephemeral runs.
	Path string
}

// SchedulerConfig holds the penalty sweep configuration
type SchedulerConfig struct {
	Enabled       bool
	CheckInterval time.Duration

	// AutoApply lets the sweep deduct penalties on its own. Off by
	// default: the sweep then only logs what it would apply, and the
	// deduction stays a manual admin action.
	AutoApply bool
}

func Load() (*Config, error) {
	// Missing .env is fine in production; everything comes from the
	// real environment there.
	_ = godotenv.Load()

	config := &Config{}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Database configuration
	config.Database = DatabaseConfig{
		Path: getEnv("DB_PATH", "./data/absence.db"),
	}

	// Scheduler configuration
	interval, err := time.ParseDuration(getEnv("PENALTY_SWEEP_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid PENALTY_SWEEP_INTERVAL: %w", err)
	}
	enabled, err := strconv.ParseBool(getEnv("PENALTY_SWEEP_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid PENALTY_SWEEP_ENABLED: %w", err)
	}
	autoApply, err := strconv.ParseBool(getEnv("PENALTY_SWEEP_AUTO_APPLY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid PENALTY_SWEEP_AUTO_APPLY: %w", err)
	}

	config.Scheduler = SchedulerConfig{
		Enabled:       enabled,
		CheckInterval: interval,
		AutoApply:     autoApply,
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.App.Port)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
