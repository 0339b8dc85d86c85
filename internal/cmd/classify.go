package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/approval"
)

// NewClassifyCommand creates the classify command.
func NewClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <proposal.md>",
		Short: "Classify a change proposal for auto-approval",
		Long: `Classify a Markdown change proposal document and report whether it
may be applied without human sign-off. The document's title and prose
are matched against the approval rules; changed lines are counted from
fenced diff blocks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open proposal: %w", err)
			}
			defer f.Close()

			proposal, err := approval.NewProposalParser().Parse(f)
			if err != nil {
				return err
			}

			classifier := approval.NewClassifier(cfg.Approval.AllowedCategories, cfg.Approval.MaxLinesChanged)
			task, analysis := approval.ToTask(proposal)
			decision := classifier.Classify(task, analysis)

			out := cmd.OutOrStdout()
			verdict := color.RedString("requires approval")
			if decision.AutoApprove {
				verdict = color.GreenString("auto-approve")
			}
			fmt.Fprintf(out, "%s\n", verdict)
			fmt.Fprintf(out, "  category:   %s\n", decision.Category)
			fmt.Fprintf(out, "  confidence: %s\n", decision.Confidence)
			fmt.Fprintf(out, "  reason:     %s\n", decision.Reason)
			fmt.Fprintf(out, "  lines:      %d\n", proposal.LinesChanged)
			return nil
		},
	}
}
