package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk client configuration.
type Config struct {
	Endpoint           string   `yaml:"endpoint"`
	IdleTimeoutSeconds int      `yaml:"idle_timeout_seconds,omitempty"`
	FlushIntervalMs    int      `yaml:"flush_interval_ms,omitempty"`
	MaxBufferedPatches int      `yaml:"max_buffered_patches,omitempty"`
	RetryBaseMs        int      `yaml:"retry_base_ms,omitempty"`
	RetryMaxMs         int      `yaml:"retry_max_ms,omitempty"`
	MaxRetryAttempts   int      `yaml:"max_retry_attempts,omitempty"`
	ProtectedTypes     []string `yaml:"protected_types,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		IdleTimeoutSeconds: int(DefaultIdleTimeout / time.Second),
		FlushIntervalMs:    int(DefaultFlushInterval / time.Millisecond),
		MaxBufferedPatches: DefaultMaxBufferedPatches,
		RetryBaseMs:        int(DefaultRetryBase / time.Millisecond),
		RetryMaxMs:         int(DefaultRetryMax / time.Millisecond),
		MaxRetryAttempts:   DefaultMaxAttempts,
	}
}

// DefaultConfigPath returns ~/.config/uistream/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "uistream", "config.yaml")
}

// LoadConfig reads the YAML config at path, filling unset fields with
// defaults. A missing file is not an error: the defaults are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

func applyConfigDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.IdleTimeoutSeconds <= 0 {
		cfg.IdleTimeoutSeconds = defaults.IdleTimeoutSeconds
	}
	if cfg.FlushIntervalMs <= 0 {
		cfg.FlushIntervalMs = defaults.FlushIntervalMs
	}
	if cfg.MaxBufferedPatches <= 0 {
		cfg.MaxBufferedPatches = defaults.MaxBufferedPatches
	}
	if cfg.RetryBaseMs <= 0 {
		cfg.RetryBaseMs = defaults.RetryBaseMs
	}
	if cfg.RetryMaxMs <= 0 {
		cfg.RetryMaxMs = defaults.RetryMaxMs
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = defaults.MaxRetryAttempts
	}
}

// SaveConfig writes the config as YAML, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// ClientConfig converts the file config into orchestrator wiring.
func (c *Config) ClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:           c.Endpoint,
		IdleTimeout:        time.Duration(c.IdleTimeoutSeconds) * time.Second,
		FlushInterval:      time.Duration(c.FlushIntervalMs) * time.Millisecond,
		MaxBufferedPatches: c.MaxBufferedPatches,
		RetryBase:          time.Duration(c.RetryBaseMs) * time.Millisecond,
		RetryMax:           time.Duration(c.RetryMaxMs) * time.Millisecond,
		MaxRetryAttempts:   c.MaxRetryAttempts,
		ProtectedTypes:     c.ProtectedTypes,
	}
}
