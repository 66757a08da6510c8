// Package config loads and validates canvas.yml, the per-deployment
// configuration for a collaborative board.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level canvas.yml configuration.
type Config struct {
	Version string         `yaml:"version"`
	Board   string         `yaml:"board"`
	Redis   RedisConfig    `yaml:"redis,omitempty"`
	User    UserConfig     `yaml:"user,omitempty"`
	TTL     *TTLConfig     `yaml:"ttl,omitempty"`
	Gateway *GatewayConfig `yaml:"gateway,omitempty"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
}

// UserConfig identifies the local participant.
type UserConfig struct {
	Name  string `yaml:"name,omitempty"`
	Color string `yaml:"color,omitempty"`
}

// TTLConfig overrides the staleness windows. All values are milliseconds;
// zero means "use the default".
type TTLConfig struct {
	ActiveMs    int64 `yaml:"active_ms,omitempty"`    // ephemeral movement liveness (default 10000)
	GraceMs     int64 `yaml:"grace_ms,omitempty"`     // post-gesture override window (default 2000)
	PresenceMs  int64 `yaml:"presence_ms,omitempty"`  // presence staleness (default 120000)
	HeartbeatMs int64 `yaml:"heartbeat_ms,omitempty"` // presence restamp cadence (default 30000)
}

// GatewayConfig holds the websocket gateway settings.
type GatewayConfig struct {
	Listen string `yaml:"listen,omitempty"` // default ":8700"
}

// Load reads and validates a canvas.yml file. Environment variables
// CANVAS_BOARD and REDIS_URL override the file values, matching the
// daemon's container contract.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.applyEnvOverrides()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration usable without a canvas.yml, driven by
// environment variables.
func Default() *Config {
	config := &Config{
		Version: "1.0",
		Board:   "default",
		Redis:   RedisConfig{URL: "redis://localhost:6379"},
	}
	config.applyEnvOverrides()
	// Validate cannot fail on these values; it fills the optional TTL and
	// Gateway sections so the accessors work without a canvas.yml.
	_ = config.Validate()
	return config
}

func (c *Config) applyEnvOverrides() {
	if board := os.Getenv("CANVAS_BOARD"); board != "" {
		c.Board = board
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Redis.URL = url
	}
}

// Validate performs strict validation on the configuration and fills in
// defaults for optional sections.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Board == "" {
		return fmt.Errorf("board name is required")
	}

	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379"
	}

	if c.TTL == nil {
		c.TTL = &TTLConfig{}
	}
	for name, value := range map[string]int64{
		"ttl.active_ms":    c.TTL.ActiveMs,
		"ttl.grace_ms":     c.TTL.GraceMs,
		"ttl.presence_ms":  c.TTL.PresenceMs,
		"ttl.heartbeat_ms": c.TTL.HeartbeatMs,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, value)
		}
	}

	if c.Gateway == nil {
		c.Gateway = &GatewayConfig{}
	}
	if c.Gateway.Listen == "" {
		c.Gateway.Listen = ":8700"
	}

	return nil
}

// ActiveTTL returns the configured ephemeral liveness window, or zero when
// the store default should apply.
func (c *Config) ActiveTTL() time.Duration {
	return time.Duration(c.TTL.ActiveMs) * time.Millisecond
}

// GraceTTL returns the configured grace window, or zero for the default.
func (c *Config) GraceTTL() time.Duration {
	return time.Duration(c.TTL.GraceMs) * time.Millisecond
}

// PresenceTTL returns the configured presence staleness window, or zero for
// the default.
func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.TTL.PresenceMs) * time.Millisecond
}

// HeartbeatInterval returns the configured heartbeat cadence, or zero for the
// default.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.TTL.HeartbeatMs) * time.Millisecond
}
