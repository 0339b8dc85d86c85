package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ".steward", cfg.StateDir)
	assert.Equal(t, filepath.Join(".steward", "provider-status.json"), cfg.ProviderSnapshot)
	assert.True(t, cfg.Providers["claude-code"].Enabled)
	assert.Equal(t, "codex", cfg.Providers["claude-code"].FallbackProvider)
	assert.Equal(t, 3, cfg.Recovery.MaxAttempts)
	assert.Equal(t, int64(300000), cfg.Recovery.BackoffCapMs)
	assert.Equal(t, 50, cfg.Approval.MaxLinesChanged)
	assert.Contains(t, cfg.Approval.AllowedCategories, "typo-fix")

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `log_level: debug
recovery:
  max_attempts: 5
providers:
  ollama:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Recovery.MaxAttempts)
	assert.True(t, cfg.Providers["ollama"].Enabled)
	// Absent keys keep their defaults.
	assert.Equal(t, 50, cfg.Approval.MaxLinesChanged)
	assert.True(t, cfg.History.Enabled)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [not a scalar"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".steward"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".steward", "config.yaml"),
		[]byte("log_level: warn\n"), 0o644))

	cfg, err := LoadConfigFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Recovery.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "zero backoff cap",
			mutate:  func(c *Config) { c.Recovery.BackoffCapMs = 0 },
			wantErr: "backoff_cap_ms",
		},
		{
			name:    "history enabled without path",
			mutate:  func(c *Config) { c.History.DBPath = "" },
			wantErr: "db_path",
		},
		{
			name:    "negative keep days",
			mutate:  func(c *Config) { c.History.KeepDays = -1 },
			wantErr: "keep_days",
		},
		{
			name:    "zero line ceiling",
			mutate:  func(c *Config) { c.Approval.MaxLinesChanged = 0 },
			wantErr: "max_lines_changed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateHistoryDisabledSkipsHistoryChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History.Enabled = false
	cfg.History.DBPath = ""
	cfg.History.KeepDays = -5

	assert.NoError(t, cfg.Validate())
}
