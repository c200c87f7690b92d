// Package config provides configuration loading and management for the
// intake runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete intake runtime configuration.
type Config struct {
	Intake IntakeConfig `yaml:"intake"`
	NATS   NATSConfig   `yaml:"nats"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// IntakeConfig configures the intake this runtime instance serves.
type IntakeConfig struct {
	// ID is the intake_id this orchestrator instance is scoped to.
	ID string `yaml:"id"`
	// SchemaPath is the filesystem path to the intake's JSON-Schema
	// document. A relative path is opened as given, i.e. against the
	// process's working directory, not the config file's directory.
	SchemaPath string `yaml:"schema_path"`
	// DefaultTTL, when non-zero, starts the TTL expiration scheduler. It is
	// not applied to submissions: only a submission created with an
	// explicit ttl_ms has an expiration budget.
	DefaultTTL time.Duration `yaml:"default_ttl"`
	// WatchSchema enables hot-reloading SchemaPath on change.
	WatchSchema bool `yaml:"watch_schema"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server).
	URL string `yaml:"url"`
	// Embedded indicates whether to use an embedded NATS server.
	Embedded bool `yaml:"embedded"`
}

// HTTPConfig configures the HTTP binding exposing the orchestrator.
type HTTPConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint; empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Intake: IntakeConfig{
			SchemaPath: "intake.schema.json",
			DefaultTTL: 0,
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Intake.ID == "" {
		return fmt.Errorf("intake.id is required")
	}
	if c.Intake.SchemaPath == "" {
		return fmt.Errorf("intake.schema_path is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, starting from
// DefaultConfig so unset fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one; other takes precedence for
// non-zero values.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Intake.ID != "" {
		c.Intake.ID = other.Intake.ID
	}
	if other.Intake.SchemaPath != "" {
		c.Intake.SchemaPath = other.Intake.SchemaPath
	}
	if other.Intake.DefaultTTL != 0 {
		c.Intake.DefaultTTL = other.Intake.DefaultTTL
	}
	if other.Intake.WatchSchema {
		c.Intake.WatchSchema = true
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
	if other.HTTP.MetricsAddr != "" {
		c.HTTP.MetricsAddr = other.HTTP.MetricsAddr
	}
}
