package cmd

import (
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/config"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// configPath is the --config persistent flag value.
var configPath string

// NewRootCommand creates and returns the root cobra command for steward
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steward",
		Short: "Task-execution orchestration for autonomous agents",
		Long: `Steward coordinates autonomous agent and tool invocations: it tracks
each execution through a validated state machine, classifies failures,
applies recovery strategies with backoff, and routes work to fallback
providers when a primary AI backend is unavailable.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default .steward/config.yaml)")

	cmd.AddCommand(NewProvidersCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewClassifyCommand())

	return cmd
}

// loadConfig loads the configured or default config file and validates it.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromDir(".")
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
