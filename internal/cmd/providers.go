package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/logger"
	"github.com/stewardhq/steward/internal/provider"
)

// NewProvidersCommand creates the providers command group.
func NewProvidersCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show provider availability",
		Long: `Show the tracked availability of every AI provider backend,
including why an unavailable provider is down and when it is expected
to recover.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log := logger.New(os.Stderr, cfg.LogLevel)
			registry := provider.NewRegistry(cfg.ProviderSnapshot, nil, log)

			statuses := registry.GetAll()
			// Known-but-unseen providers from config render as available.
			for id := range cfg.Providers {
				if _, ok := statuses[id]; !ok {
					statuses[id] = registry.GetStatus(id)
				}
			}

			if asJSON {
				data, err := json.MarshalIndent(statuses, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			ids := make([]string, 0, len(statuses))
			for id := range statuses {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tSTATUS\tREASON\tRECOVERY\tFAILURES")
			for _, id := range ids {
				status := statuses[id]
				state := color.GreenString("available")
				recoveryIn := "-"
				if !status.Available {
					state = color.RedString("unavailable")
					recoveryIn = registry.TimeUntilRecovery(id)
					if recoveryIn == "" {
						recoveryIn = "-"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", id, state, status.Reason, recoveryIn, status.FailureCount)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status snapshot as JSON")

	cmd.AddCommand(newProvidersResetCommand())
	return cmd
}

// newProvidersResetCommand creates the providers reset subcommand.
func newProvidersResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <provider-id>",
		Short: "Mark a provider available again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log := logger.New(os.Stderr, cfg.LogLevel)
			registry := provider.NewRegistry(cfg.ProviderSnapshot, nil, log)

			if err := registry.MarkAvailable(args[0]); err != nil {
				return fmt.Errorf("reset provider %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provider %s marked available\n", args[0])
			return nil
		},
	}
}
