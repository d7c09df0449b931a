// Package config provides configuration management for the IT console service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultReportMaxPayloadSize is the default max body size for inventory reports (1MB).
	DefaultReportMaxPayloadSize int64 = 1 << 20

	// DefaultLivenessTimeoutSeconds is how long a device may stay silent before it is marked offline.
	DefaultLivenessTimeoutSeconds = 3

	// DefaultSweepIntervalSeconds is the liveness sweeper cadence.
	DefaultSweepIntervalSeconds = 1

	// DefaultRequestTimeoutSeconds bounds report and heartbeat handlers.
	DefaultRequestTimeoutSeconds = 10

	// DefaultRedisChannel is the pub/sub channel used to fan out realtime events.
	DefaultRedisChannel = "equipment:events"
)

// Config holds the application configuration.
type Config struct {
	// Port is the HTTP server port.
	Port string

	// LogLevel is the zerolog level name.
	LogLevel string

	// LogFormat is "json" or "pretty".
	LogFormat string

	// DatabaseURL is the Postgres connection string. Empty selects the in-memory store.
	DatabaseURL string

	// RedisURL enables the Redis realtime bridge when set.
	RedisURL string

	// RedisChannel is the pub/sub channel for realtime events.
	RedisChannel string

	// LivenessTimeout is the heartbeat timeout window.
	LivenessTimeout time.Duration

	// SweepInterval is how often the liveness sweeper runs.
	SweepInterval time.Duration

	// RequestTimeout bounds report and heartbeat handling.
	RequestTimeout time.Duration

	// ReportMaxPayloadSize is the maximum inventory report body in bytes.
	ReportMaxPayloadSize int64

	// APIToken, when set, is required as a bearer token on operator endpoints.
	APIToken string

	// AllowedOrigins lists origins allowed to open realtime connections. Empty allows any.
	AllowedOrigins []string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		RedisChannel:         getEnvOrDefault("REDIS_CHANNEL", DefaultRedisChannel),
		LivenessTimeout:      getEnvSecondsOrDefault("LIVENESS_TIMEOUT_SECONDS", DefaultLivenessTimeoutSeconds),
		SweepInterval:        getEnvSecondsOrDefault("SWEEP_INTERVAL_SECONDS", DefaultSweepIntervalSeconds),
		RequestTimeout:       getEnvSecondsOrDefault("REQUEST_TIMEOUT_SECONDS", DefaultRequestTimeoutSeconds),
		ReportMaxPayloadSize: getEnvInt64OrDefault("REPORT_MAX_PAYLOAD_SIZE", DefaultReportMaxPayloadSize),
		APIToken:             os.Getenv("API_TOKEN"),
		AllowedOrigins:       splitList(os.Getenv("ALLOWED_ORIGINS")),
	}

	return cfg
}

// Validate reports configuration values that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.LivenessTimeout <= 0 {
		errs = append(errs, errors.New("liveness timeout must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.LivenessTimeout > 0 && c.SweepInterval > c.LivenessTimeout/2 {
		errs = append(errs, fmt.Errorf("sweep interval %s must not exceed half the liveness timeout %s",
			c.SweepInterval, c.LivenessTimeout))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.ReportMaxPayloadSize <= 0 {
		errs = append(errs, errors.New("report max payload size must be positive"))
	}
	return errors.Join(errs...)
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt64OrDefault returns the environment variable value as int64 or the default if not set or invalid.
func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSecondsOrDefault reads a duration. A bare number is taken as whole
// seconds; anything else must parse with time.ParseDuration, e.g. "500ms".
func getEnvSecondsOrDefault(key string, defaultSeconds int) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return time.Duration(defaultSeconds) * time.Second
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return time.Duration(defaultSeconds) * time.Second
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
