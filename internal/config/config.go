package config

import (
	"time"
)

// Config represents the complete application configuration. Values are
// layered: built-in defaults, then the config file, then KEYGATE_* environment
// variables and bound flags.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RedisConfig configures the shared rate-limit counter store. When Addr is
// empty the gateway keeps counters in process memory, which is fine for a
// single node but does not share windows across replicas.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GatewayConfig contains request-pipeline configuration.
type GatewayConfig struct {
	// BodyCaptureLimit bounds how many bytes of a request body are kept in
	// an audit entry. The full body is still forwarded downstream.
	BodyCaptureLimit int `mapstructure:"body_capture_limit"`

	// ProbeTimeout bounds a single health probe, independent of the probed
	// service's normal request timeout.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	// HealthInterval is the period of the background prober loop. Zero
	// disables the loop; the on-demand health endpoints keep working.
	HealthInterval time.Duration `mapstructure:"health_interval"`

	// Default quotas applied when a key is created without explicit limits.
	DefaultPerMinute int `mapstructure:"default_per_minute"`
	DefaultPerHour   int `mapstructure:"default_per_hour"`
}

// LoggingConfig contains logging configuration.
// Valid levels: trace, debug, info, warn, error.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed.
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format).
	// Metrics are also proxied at /metrics on the main HTTP port.
	Port int `mapstructure:"port"`
}
