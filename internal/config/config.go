// Package config loads steward configuration from YAML with sensible
// defaults. A missing config file is not an error; a malformed one is.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/stewardhq/steward/internal/models"
)

// HistoryConfig controls the durable execution archive.
type HistoryConfig struct {
	// Enabled turns on the SQLite-backed archive of completed
	// executions.
	Enabled bool `yaml:"enabled"`

	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`

	// KeepDays is how many days of archived executions to retain.
	KeepDays int `yaml:"keep_days"`
}

// RecoveryConfig tunes the recovery machinery.
type RecoveryConfig struct {
	// MaxAttempts is how many recovery attempts a task/agent key gets
	// before manual intervention is forced.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffCapMs is the ceiling on exponential backoff delays, in
	// milliseconds.
	BackoffCapMs int64 `yaml:"backoff_cap_ms"`
}

// ApprovalConfig gates the auto-approval classifier.
type ApprovalConfig struct {
	// AllowedCategories is the allow-list of auto-approvable change
	// categories. A matched category outside this list still requires
	// approval.
	AllowedCategories []string `yaml:"allowed_categories"`

	// MaxLinesChanged is the global ceiling on auto-approved change
	// size, applied on top of each rule's own ceiling.
	MaxLinesChanged int `yaml:"max_lines_changed"`
}

// Config represents steward configuration options.
type Config struct {
	// LogLevel sets logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// StateDir is where steward keeps its on-disk state.
	StateDir string `yaml:"state_dir"`

	// ProviderSnapshot is the JSON file holding the persisted provider
	// status map. Defaults to provider-status.json under StateDir.
	ProviderSnapshot string `yaml:"provider_snapshot"`

	// Providers maps provider IDs to their static configuration.
	Providers map[string]models.ProviderConfig `yaml:"providers"`

	History  HistoryConfig  `yaml:"history"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Approval ApprovalConfig `yaml:"approval"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		StateDir:         ".steward",
		ProviderSnapshot: filepath.Join(".steward", "provider-status.json"),
		Providers: map[string]models.ProviderConfig{
			"claude-code": {Enabled: true, FallbackProvider: "codex"},
			"codex":       {Enabled: true},
		},
		History: HistoryConfig{
			Enabled:  true,
			DBPath:   filepath.Join(".steward", "history.db"),
			KeepDays: 90,
		},
		Recovery: RecoveryConfig{
			MaxAttempts:  3,
			BackoffCapMs: 300000,
		},
		Approval: ApprovalConfig{
			AllowedCategories: []string{"formatting", "typo-fix", "import-cleanup", "documentation"},
			MaxLinesChanged:   50,
		},
	}
}

// LoadConfig loads configuration from the specified file path. If the
// file doesn't exist, defaults are returned without error; if it exists
// but is malformed, an error is returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Unmarshal over the defaults so absent keys keep their default
	// values.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// LoadConfigFromDir loads .steward/config.yaml from the given directory.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".steward", "config.yaml"))
}

// Validate checks configuration values, returning an error for any
// invalid setting.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.Recovery.MaxAttempts <= 0 {
		return fmt.Errorf("recovery.max_attempts must be > 0, got %d", c.Recovery.MaxAttempts)
	}

	if c.Recovery.BackoffCapMs <= 0 {
		return fmt.Errorf("recovery.backoff_cap_ms must be > 0, got %d", c.Recovery.BackoffCapMs)
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path cannot be empty when history is enabled")
		}
		if c.History.KeepDays < 0 {
			return fmt.Errorf("history.keep_days must be >= 0, got %d", c.History.KeepDays)
		}
	}

	if c.Approval.MaxLinesChanged <= 0 {
		return fmt.Errorf("approval.max_lines_changed must be > 0, got %d", c.Approval.MaxLinesChanged)
	}

	return nil
}
