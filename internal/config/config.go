// Package config loads Parley configuration from an optional YAML file and
// the environment. Environment variables win over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// ReconnectConfig tunes the reconnect backoff policy.
type ReconnectConfig struct {
	// BaseDelayMs is the pre-jitter delay before the first retry.
	BaseDelayMs int `yaml:"base_delay_ms"`
	// MaxDelayMs caps the exponential growth.
	MaxDelayMs int `yaml:"max_delay_ms"`
	// MaxRetries bounds the number of reconnect attempts.
	MaxRetries int `yaml:"max_retries"`
	// JitterRatio scales the symmetric random variance.
	JitterRatio float64 `yaml:"jitter_ratio"`
}

type Config struct {
	// ServerURL is the base URL of the Parley daemon.
	ServerURL string `yaml:"server_url"`
	// Token is the access token presented to the daemon. Usually supplied
	// via PARLEY_TOKEN rather than the file.
	Token string `yaml:"token"`

	// ParleyHome is the directory where Parley stores local state.
	ParleyHome string `yaml:"-"`

	// Mock forces the mock client, never attempting a live connection.
	Mock bool `yaml:"mock"`
	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`
	// LogLevel overrides the log threshold (trace|debug|info|warn|error).
	LogLevel string `yaml:"log_level"`

	// Reconnect tunes the backoff policy.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// Load loads configuration from defaults, then the config file in the Parley
// home directory if present, then environment overrides.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	parleyHome := os.Getenv("PARLEY_HOME_DIR")
	if parleyHome == "" {
		parleyHome = filepath.Join(homeDir, ".parley")
	}
	if err := os.MkdirAll(parleyHome, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create parley home: %w", err)
	}

	cfg := &Config{
		ServerURL:  "http://127.0.0.1:8917",
		ParleyHome: parleyHome,
		Reconnect: ReconnectConfig{
			BaseDelayMs: 1000,
			MaxDelayMs:  30000,
			MaxRetries:  10,
			JitterRatio: 0.5,
		},
	}

	path := filepath.Join(parleyHome, configFileName)
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PARLEY_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("PARLEY_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("PARLEY_MOCK"); v != "" {
		cfg.Mock = isTruthy(v)
	}
	if v := os.Getenv("PARLEY_DEBUG"); v != "" {
		cfg.Debug = isTruthy(v)
	} else if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = isTruthy(v)
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v, ok := envInt("PARLEY_RECONNECT_MAX_RETRIES"); ok {
		cfg.Reconnect.MaxRetries = v
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isTruthy(v string) bool {
	return v == "true" || v == "1"
}

// BaseDelay returns the configured base delay as a duration.
func (r ReconnectConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the configured max delay as a duration.
func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}
