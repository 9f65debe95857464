// Package config loads the YAML configuration. Loaded once at startup,
// immutable afterward; the pricing fallback tables and rule default tweaks
// live here rather than as package-level globals.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration.
type Config struct {
	Version       string                 `yaml:"version"`
	Provider      string                 `yaml:"provider"`
	Regions       []string               `yaml:"regions"`
	ResourceTypes []string               `yaml:"resource_types,omitempty"`
	StorageDir    string                 `yaml:"storage_dir"`
	Scan          ScanConfig             `yaml:"scan,omitempty"`
	Pricing       PricingConfig          `yaml:"pricing,omitempty"`
	RuleDefaults  map[string]RuleDefault `yaml:"rule_defaults,omitempty"`
	Daemon        DaemonConfig           `yaml:"daemon,omitempty"`
	OTEL          OTELConfig             `yaml:"otel,omitempty"`
	Log           LogConfig              `yaml:"log,omitempty"`
}

// ScanConfig bounds the orchestrator's fan-out.
type ScanConfig struct {
	Concurrency       int    `yaml:"concurrency"`
	AdapterTimeoutStr string `yaml:"adapter_timeout"`
	AdapterTimeout    time.Duration
}

// PricingConfig holds the injected fallback price tables: provider →
// service → price, plus the conservative default used when a service is
// entirely unknown.
type PricingConfig struct {
	DefaultPrice *Price                      `yaml:"default_price,omitempty"`
	Fallback     map[string]map[string]Price `yaml:"fallback,omitempty"`
}

// Price is a unit price in USD.
type Price struct {
	PricePerUnit float64 `yaml:"price_per_unit"`
	Unit         string  `yaml:"unit"`
}

// RuleDefault tweaks a seeded default detection rule at startup. Defaults
// stay immutable at runtime; this is the only hook to adjust them.
type RuleDefault struct {
	Enabled        *bool              `yaml:"enabled,omitempty"`
	Thresholds     map[string]float64 `yaml:"thresholds,omitempty"`
	RequiredLabels []string           `yaml:"required_labels,omitempty"`
	Description    string             `yaml:"description,omitempty"`
}

// DaemonConfig holds daemon settings.
type DaemonConfig struct {
	Schedule    string `yaml:"schedule"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.StorageDir == "" {
		cfg.StorageDir = "."
	}
	if cfg.Scan.Concurrency == 0 {
		cfg.Scan.Concurrency = 4
	}
	if cfg.Scan.AdapterTimeoutStr == "" {
		cfg.Scan.AdapterTimeoutStr = "30s"
	}
	if cfg.Daemon.Schedule == "" {
		cfg.Daemon.Schedule = "@hourly"
	}
	if cfg.Daemon.MetricsAddr == "" {
		cfg.Daemon.MetricsAddr = ":9090"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "scrimp"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate ensures config has required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("scan.concurrency must be positive")
	}

	d, err := time.ParseDuration(c.Scan.AdapterTimeoutStr)
	if err != nil {
		return fmt.Errorf("parse scan.adapter_timeout %q: %w", c.Scan.AdapterTimeoutStr, err)
	}
	c.Scan.AdapterTimeout = d

	for provider, services := range c.Pricing.Fallback {
		for service, price := range services {
			if price.PricePerUnit < 0 {
				return fmt.Errorf("pricing.fallback.%s.%s: price must not be negative", provider, service)
			}
		}
	}
	return nil
}
