// Package config provides centralized configuration for the tick collector.
// Configuration is loaded from an optional JSON file, overridden by
// environment variables, validated, and handed to components as typed
// sub-structures.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Application metadata
	AppName string `json:"app_name" env:"APP_NAME"`
	Version string `json:"version" env:"VERSION"`

	// Feed configuration
	Feed FeedConfig `json:"feed"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Collector configuration
	Collector CollectorConfig `json:"collector"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// FeedConfig configures the market-data feed session.
type FeedConfig struct {
	User           string `json:"user" env:"FEED_USER"`                       // Feed account user
	Password       string `json:"password" env:"FEED_PASSWORD"`               // Feed account password
	SystemName     string `json:"system_name" env:"FEED_SYSTEM_NAME"`         // Registered system name
	Gateway        string `json:"gateway" env:"FEED_GATEWAY"`                 // Gateway name (e.g. "Chicago")
	AppName        string `json:"app_name" env:"FEED_APP_NAME"`               // Application name sent at login
	ConnectTimeout string `json:"connect_timeout" env:"FEED_CONNECT_TIMEOUT"` // Session establishment timeout
	MaxRetries     int    `json:"max_retries" env:"FEED_MAX_RETRIES"`         // Connect retry attempts
}

// StorageConfig configures the time-series storage backend.
type StorageConfig struct {
	Type         string `json:"type" env:"STORAGE_TYPE"`                   // "duckdb" or "memory"
	DatabasePath string `json:"database_path" env:"STORAGE_DATABASE_PATH"` // DuckDB file path or ":memory:"
	BarTable     string `json:"bar_table" env:"STORAGE_BAR_TABLE"`         // Second bar table name
	FallbackDir  string `json:"fallback_dir" env:"STORAGE_FALLBACK_DIR"`   // Directory for fallback batch files
}

// CollectorConfig configures the tick collection pipeline.
type CollectorConfig struct {
	Contracts      []string `json:"contracts" env:"COLLECTOR_CONTRACTS"`             // Contract codes to subscribe
	Symbols        []string `json:"symbols" env:"COLLECTOR_SYMBOLS"`                 // Instrument roots for contract generation
	BufferCeiling  int      `json:"buffer_ceiling" env:"COLLECTOR_BUFFER_CEILING"`   // Pending-tick backpressure threshold
	FlushThreshold int      `json:"flush_threshold" env:"COLLECTOR_FLUSH_THRESHOLD"` // Bars buffered before a flush
	CycleInterval  string   `json:"cycle_interval" env:"COLLECTOR_CYCLE_INTERVAL"`   // Periodic aggregation cadence
	RawTickAudit   bool     `json:"raw_tick_audit" env:"COLLECTOR_RAW_TICK_AUDIT"`   // Persist individual ticks for audit
	Timezone       string   `json:"timezone" env:"COLLECTOR_TIMEZONE"`               // Exchange-local zone for hours labeling
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`             // Log level: debug, info, warn, error
	Format     string `json:"format" env:"LOG_FORMAT"`           // Log format: json, text
	Output     string `json:"output" env:"LOG_OUTPUT"`           // Output: stdout, stderr, file
	FilePath   string `json:"file_path" env:"LOG_FILE_PATH"`     // Log file path when output is file
	MaxSizeMB  int    `json:"max_size" env:"LOG_MAX_SIZE"`       // Maximum log file size in MB
	MaxBackups int    `json:"max_backups" env:"LOG_MAX_BACKUPS"` // Maximum rotated files kept
	MaxAgeDays int    `json:"max_age" env:"LOG_MAX_AGE"`         // Maximum rotated file age in days
	Compress   bool   `json:"compress" env:"LOG_COMPRESS"`       // Compress rotated files
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "tick-collector",
		Version: "1.0.0",
		Feed: FeedConfig{
			Gateway:        "Chicago",
			AppName:        "Second-Based Data Collector",
			ConnectTimeout: "30s",
			MaxRetries:     3,
		},
		Storage: StorageConfig{
			Type:         "duckdb",
			DatabasePath: "data/ticks.db",
			BarTable:     "second_bars",
			FallbackDir:  "data/fallback",
		},
		Collector: CollectorConfig{
			Symbols:        []string{"NQ", "ES"},
			BufferCeiling:  1000,
			FlushThreshold: 60,
			CycleInterval:  "1s",
			Timezone:       "America/Chicago",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// environment variable overrides, then validates the result. An empty path
// skips the file step.
func Load(path string) (*AppConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides configuration fields from environment variables.
func (c *AppConfig) applyEnv() {
	setString(&c.AppName, "APP_NAME")
	setString(&c.Version, "VERSION")

	setString(&c.Feed.User, "FEED_USER")
	setString(&c.Feed.Password, "FEED_PASSWORD")
	setString(&c.Feed.SystemName, "FEED_SYSTEM_NAME")
	setString(&c.Feed.Gateway, "FEED_GATEWAY")
	setString(&c.Feed.AppName, "FEED_APP_NAME")
	setString(&c.Feed.ConnectTimeout, "FEED_CONNECT_TIMEOUT")
	setInt(&c.Feed.MaxRetries, "FEED_MAX_RETRIES")

	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.Storage.DatabasePath, "STORAGE_DATABASE_PATH")
	setString(&c.Storage.BarTable, "STORAGE_BAR_TABLE")
	setString(&c.Storage.FallbackDir, "STORAGE_FALLBACK_DIR")

	setStringSlice(&c.Collector.Contracts, "COLLECTOR_CONTRACTS")
	setStringSlice(&c.Collector.Symbols, "COLLECTOR_SYMBOLS")
	setInt(&c.Collector.BufferCeiling, "COLLECTOR_BUFFER_CEILING")
	setInt(&c.Collector.FlushThreshold, "COLLECTOR_FLUSH_THRESHOLD")
	setString(&c.Collector.CycleInterval, "COLLECTOR_CYCLE_INTERVAL")
	setBool(&c.Collector.RawTickAudit, "COLLECTOR_RAW_TICK_AUDIT")
	setString(&c.Collector.Timezone, "COLLECTOR_TIMEZONE")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Logging.Output, "LOG_OUTPUT")
	setString(&c.Logging.FilePath, "LOG_FILE_PATH")
	setInt(&c.Logging.MaxSizeMB, "LOG_MAX_SIZE")
	setInt(&c.Logging.MaxBackups, "LOG_MAX_BACKUPS")
	setInt(&c.Logging.MaxAgeDays, "LOG_MAX_AGE")
	setBool(&c.Logging.Compress, "LOG_COMPRESS")
}

// Validate checks the configuration for consistency and usable values.
func (c *AppConfig) Validate() error {
	switch c.Storage.Type {
	case "duckdb", "memory":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}

	if c.Storage.Type == "duckdb" && c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database_path is required for duckdb storage")
	}
	if c.Storage.BarTable == "" {
		return fmt.Errorf("storage bar_table cannot be empty")
	}

	if c.Collector.BufferCeiling <= 0 {
		return fmt.Errorf("collector buffer_ceiling must be positive, got %d", c.Collector.BufferCeiling)
	}
	if c.Collector.FlushThreshold <= 0 {
		return fmt.Errorf("collector flush_threshold must be positive, got %d", c.Collector.FlushThreshold)
	}
	if _, err := c.CycleInterval(); err != nil {
		return fmt.Errorf("invalid collector cycle_interval: %w", err)
	}
	if _, err := c.ConnectTimeout(); err != nil {
		return fmt.Errorf("invalid feed connect_timeout: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file_path is required for file output")
	}

	return nil
}

// CycleInterval parses the collector's periodic aggregation cadence.
func (c *AppConfig) CycleInterval() (time.Duration, error) {
	return time.ParseDuration(c.Collector.CycleInterval)
}

// ConnectTimeout parses the feed session establishment timeout.
func (c *AppConfig) ConnectTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Feed.ConnectTimeout)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
