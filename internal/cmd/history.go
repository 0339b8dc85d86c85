package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/history"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	var showStats bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived executions",
		Long: `Show recently completed tool/agent executions from the durable
archive, or aggregate statistics with --stats.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history archive is disabled in configuration")
			}

			store, err := history.NewStore(cfg.History.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()

			if showStats {
				stats, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Executions: %d (%d succeeded, %.1f%% success rate)\n",
					stats.Total, stats.Succeeded, stats.SuccessRate*100)
				if len(stats.ByCategory) > 0 {
					fmt.Fprintln(out, "Failures by category:")
					for category, count := range stats.ByCategory {
						fmt.Fprintf(out, "  %s: %d\n", category, count)
					}
				}
				if len(stats.ByStrategy) > 0 {
					fmt.Fprintln(out, "Recovery attempts by strategy:")
					for strategy, count := range stats.ByStrategy {
						fmt.Fprintf(out, "  %s: %d\n", strategy, count)
					}
				}
				return nil
			}

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EXECUTION\tTOOL\tAGENT\tSTARTED\tDURATION\tRESULT\tRECOVERIES")
			for _, entry := range entries {
				result := color.GreenString("ok")
				if !entry.Success {
					result = color.RedString("failed")
					if entry.ErrorCategory != "" {
						result += " (" + entry.ErrorCategory + ")"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
					shortID(entry.ID), entry.ToolID, entry.AgentID,
					entry.StartedAt.Format(time.RFC3339),
					time.Duration(entry.DurationMs)*time.Millisecond,
					result, entry.RecoveryAttempts)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum executions to show")
	cmd.Flags().BoolVar(&showStats, "stats", false, "show aggregate statistics instead of entries")

	return cmd
}

// shortID truncates UUIDs for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
