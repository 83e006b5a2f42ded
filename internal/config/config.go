// Package config loads the optional CLI configuration file. Library
// components are configured by explicit structs; this file only overrides
// defaults for the command-line shell.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"timelocker/internal/beacon"
	"timelocker/internal/progress"
)

// Config holds CLI-level settings.
type Config struct {
	// Endpoints are the drand API base URLs, tried in order.
	Endpoints []string `yaml:"endpoints"`

	// ChainHash selects the drand chain.
	ChainHash string `yaml:"chain_hash"`

	// ThrottleMs is the minimum interval between progress updates.
	ThrottleMs int `yaml:"throttle_ms"`
}

// Default returns the built-in quicknet configuration.
func Default() Config {
	return Config{
		Endpoints:  append([]string(nil), beacon.DefaultEndpoints...),
		ChainHash:  beacon.QuicknetChainHash,
		ThrottleMs: int(progress.DefaultThrottle / time.Millisecond),
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "timelocker", "config.yaml"), nil
}

// Load reads the config file at path, falling back to defaults for absent
// files and absent fields.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("cannot read config: %w", err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	if len(overlay.Endpoints) > 0 {
		cfg.Endpoints = overlay.Endpoints
	}
	if overlay.ChainHash != "" {
		cfg.ChainHash = overlay.ChainHash
	}
	if overlay.ThrottleMs > 0 {
		cfg.ThrottleMs = overlay.ThrottleMs
	}
	return cfg, nil
}

// Throttle returns the configured emission interval.
func (c Config) Throttle() time.Duration {
	return time.Duration(c.ThrottleMs) * time.Millisecond
}
