// Package config loads logsleuth configuration from YAML with sensible
// defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jfrid/logsleuth/pkg/models"
)

// ChannelConfig tunes the live update channel for one job kind. The poll
// intervals intentionally differ per kind: the AI sub-analysis reports
// fine-grained per-pattern progress and is polled faster.
type ChannelConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	MaxPushFailures   int           `yaml:"max_push_failures"`
}

// StorageConfig selects the run-history backend.
type StorageConfig struct {
	// Backend is one of "memory", "sqlite" or "clickhouse".
	Backend string `yaml:"backend"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
	// ClickHouseAddr is the native-protocol address for the clickhouse
	// backend.
	ClickHouseAddr string `yaml:"clickhouse_addr"`
}

// Config is the full logsleuth configuration.
type Config struct {
	// BackendURL is the base URL of the analysis engine.
	BackendURL string `yaml:"backend_url"`
	// PatternsFile optionally overrides the built-in normalization token
	// patterns.
	PatternsFile string `yaml:"patterns_file"`

	Primary       ChannelConfig `yaml:"primary"`
	AISubanalysis ChannelConfig `yaml:"ai_subanalysis"`

	Storage StorageConfig `yaml:"storage"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BackendURL: "http://localhost:8080",
		Primary: ChannelConfig{
			PollInterval:      2 * time.Second,
			ReconnectDelay:    2 * time.Second,
			MaxReconnectDelay: 30 * time.Second,
			MaxPushFailures:   5,
		},
		AISubanalysis: ChannelConfig{
			PollInterval:      500 * time.Millisecond,
			ReconnectDelay:    2 * time.Second,
			MaxReconnectDelay: 30 * time.Second,
			MaxPushFailures:   5,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    "logsleuth.db",
		},
	}
}

// Load reads a YAML config file layered over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// Channel returns the channel tuning for one job kind.
func (c Config) Channel(kind models.JobKind) ChannelConfig {
	if kind == models.KindAISubanalysis {
		return c.AISubanalysis
	}
	return c.Primary
}
