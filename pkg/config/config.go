// Package config provides configuration file support for Haven.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haven-project/haven/pkg/logging"
)

// Config represents the Haven configuration, stored at <vault>/config.yaml.
type Config struct {
	// AppName feeds the implicit candidate tail: user-profile and temp
	// directories are derived from it.
	AppName   string          `yaml:"app_name"`
	Logging   logging.Config  `yaml:"logging"`
	Retry     RetryConfig     `yaml:"retry"`
	Retention RetentionConfig `yaml:"retention"`
	Lock      LockConfig      `yaml:"lock"`
	// Compression selects backup payload compression: none, fast, default, max.
	Compression string `yaml:"compression,omitempty"`
	// Languages are BCP 47 tags, best match first, for remedy localization.
	Languages []string        `yaml:"languages,omitempty"`
	Webhooks  []WebhookConfig `yaml:"webhooks,omitempty"`
}

// RetryConfig configures the retry executor defaults.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	JitterFraction float64       `yaml:"jitter_fraction"`
}

// RetentionConfig configures backup pruning.
type RetentionConfig struct {
	KeepLast int           `yaml:"keep_last"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// LockConfig configures advisory lock leases.
type LockConfig struct {
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// WebhookConfig configures one notification endpoint.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Events []string `yaml:"events"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		AppName: "haven",
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     60 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
		Retention: RetentionConfig{
			KeepLast: 10,
			MaxAge:   30 * 24 * time.Hour,
		},
		Lock: LockConfig{
			LeaseTTL: 30 * time.Second,
		},
		Compression: "default",
	}
}

// Load loads configuration from <vaultDir>/config.yaml.
// Returns default config if the file doesn't exist.
func Load(vaultDir string) (*Config, error) {
	cfg := Default()
	cfgPath := filepath.Join(vaultDir, "config.yaml")

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return cfg, nil // No config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to <vaultDir>/config.yaml.
func Save(vaultDir string, cfg *Config) error {
	cfgPath := filepath.Join(vaultDir, "config.yaml")

	if err := os.MkdirAll(vaultDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
