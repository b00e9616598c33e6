// Package config loads the daemon configuration from YAML with env
// overrides for deployment-specific values.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Metrics MetricsConfig `yaml:"metrics"`
	LogLevel string       `yaml:"logLevel"`
}

type StorageConfig struct {
	// PostgresDSN is empty for the in-memory backend (dev/test only).
	PostgresDSN string `yaml:"postgresDSN"`
	// ClickhouseDSN is empty to disable NAV snapshot history.
	ClickhouseDSN string `yaml:"clickhouseDSN"`
}

type EngineConfig struct {
	HTTPURL    string        `yaml:"httpURL"`
	WSURL      string        `yaml:"wsURL"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries"`
}

type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the config applied before the YAML file is read.
func Default() AppConfig {
	return AppConfig{
		Engine: EngineConfig{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Sweep: SweepConfig{
			Interval: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		LogLevel: "info",
	}
}

// parse reads YAML config from path over the defaults, without validating.
func parse(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// Load reads YAML config from path over the defaults and applies basic
// validation.
func Load(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config, overriding connection strings and
// endpoints from env vars if present. DSNs carry credentials and stay out
// of the file in shared deployments. Validation runs after the overrides,
// so a value may come from either source.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("BABYLON_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("BABYLON_CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("BABYLON_ENGINE_HTTP_URL"); v != "" {
		cfg.Engine.HTTPURL = v
	}
	if v := os.Getenv("BABYLON_ENGINE_WS_URL"); v != "" {
		cfg.Engine.WSURL = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Engine.HTTPURL == "" {
		return errors.New("engine.httpURL is required (or BABYLON_ENGINE_HTTP_URL)")
	}
	if cfg.Engine.Timeout <= 0 {
		return errors.New("engine.timeout must be > 0")
	}
	if cfg.Engine.MaxRetries < 0 {
		return errors.New("engine.maxRetries must be >= 0")
	}
	if cfg.Sweep.Interval <= 0 {
		return errors.New("sweep.interval must be > 0")
	}
	if cfg.Metrics.Addr == "" {
		return errors.New("metrics.addr is required")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logLevel %q", cfg.LogLevel)
	}
	return nil
}
