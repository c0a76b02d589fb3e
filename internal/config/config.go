// Package config loads gantry's runtime configuration through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. GANTRY_DB_PATH.
const EnvPrefix = "GANTRY"

// WatchConfig controls the plan-file watcher.
type WatchConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// RecomputeConfig controls the background recomputer.
type RecomputeConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// Config holds all runtime configuration for a gantry invocation.
// Values are populated from .gantry.yaml, GANTRY_* env vars, and CLI flags.
type Config struct {
	DBPath        string          `mapstructure:"db_path"`
	TelemetryPath string          `mapstructure:"telemetry_path"`
	LogLevel      string          `mapstructure:"log_level"`
	LogFormat     string          `mapstructure:"log_format"`
	Verbose       bool            `mapstructure:"verbose"`
	Watch         WatchConfig     `mapstructure:"watch"`
	Recompute     RecomputeConfig `mapstructure:"recompute"`
}

// SetupEnv makes viper read GANTRY_* variables, with nested keys joined by
// underscores (watch.debounce ← GANTRY_WATCH_DEBOUNCE).
func SetupEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("db_path", "gantry.db")
	viper.SetDefault("telemetry_path", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("verbose", false)
	viper.SetDefault("watch.dir", ".")
	viper.SetDefault("watch.debounce", 200*time.Millisecond)
	viper.SetDefault("recompute.queue_size", 64)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format %q: want text or json", c.LogFormat)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("config: watch.debounce must not be negative")
	}
	if c.Recompute.QueueSize < 1 {
		return fmt.Errorf("config: recompute.queue_size must be at least 1")
	}
	return nil
}
