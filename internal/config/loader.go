// Package config provides centralized configuration management for keygate.
// Defaults are registered against viper, overlaid by an optional config file
// and KEYGATE_* environment variables, and decoded into the Config struct.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. KEYGATE_SERVER_PORT maps to server.port.
const EnvPrefix = "KEYGATE"

// SetDefaults registers the built-in defaults on the given viper instance.
// Flag bindings and config files override these.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "keygate.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("gateway.body_capture_limit", 1000)
	v.SetDefault("gateway.probe_timeout", "5s")
	v.SetDefault("gateway.health_interval", "60s")
	v.SetDefault("gateway.default_per_minute", 60)
	v.SetDefault("gateway.default_per_hour", 1000)

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// BindEnv wires KEYGATE_* environment variables into the viper instance.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the current viper state into a Config. Call after defaults,
// env bindings, and any config file have been applied.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Gateway.BodyCaptureLimit < 0 {
		return fmt.Errorf("gateway.body_capture_limit must not be negative")
	}
	if c.Gateway.DefaultPerMinute <= 0 {
		return fmt.Errorf("gateway.default_per_minute must be positive")
	}
	if c.Gateway.DefaultPerHour <= 0 {
		return fmt.Errorf("gateway.default_per_hour must be positive")
	}
	if c.Gateway.ProbeTimeout <= 0 {
		return fmt.Errorf("gateway.probe_timeout must be positive")
	}
	return nil
}
