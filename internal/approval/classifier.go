// Package approval decides whether an autonomously produced content
// change may be applied without human sign-off. Require-approval rules
// are structurally separate from and always checked before the
// auto-approve rules; a change only auto-approves when its category is
// allow-listed and its size fits under both the rule's and the
// configured line ceiling.
package approval

import (
	"fmt"
	"regexp"

	"github.com/stewardhq/steward/internal/models"
)

// Classifier applies the approval rule sets under a caller-supplied
// allow-list and size ceiling.
type Classifier struct {
	allowed  map[string]bool
	maxLines int
}

// NewClassifier creates a classifier. allowedCategories is the
// allow-list of auto-approvable categories; maxLines is the global
// changed-line ceiling applied on top of each rule's own.
func NewClassifier(allowedCategories []string, maxLines int) *Classifier {
	allowed := make(map[string]bool, len(allowedCategories))
	for _, c := range allowedCategories {
		allowed[c] = true
	}
	return &Classifier{allowed: allowed, maxLines: maxLines}
}

// Classify produces the approval decision for one change. analysis may
// be nil; when present with a positive line count it overrides the
// task's own estimate.
func (c *Classifier) Classify(task models.ChangeTask, analysis *models.ChangeAnalysis) models.ApprovalDecision {
	lines := task.EstimatedLines
	if analysis != nil && analysis.LinesChanged > 0 {
		lines = analysis.LinesChanged
	}

	// Require-approval rules take precedence over everything.
	for _, rule := range requireApprovalRules {
		if rule.Pattern.MatchString(task.Description) {
			return models.ApprovalDecision{
				AutoApprove: false,
				Category:    rule.Category,
				Reason:      rule.Reason,
				Confidence:  models.ConfidenceHigh,
			}
		}
	}

	for _, rule := range autoApproveRules {
		if !matchAny(rule.Patterns, task.Description) {
			continue
		}
		if !c.allowed[rule.Category] {
			return models.ApprovalDecision{
				AutoApprove: false,
				Category:    rule.Category,
				Reason:      fmt.Sprintf("category %s not in allow-list", rule.Category),
				Confidence:  models.ConfidenceMedium,
			}
		}
		ceiling := rule.MaxLines
		if c.maxLines < ceiling {
			ceiling = c.maxLines
		}
		if lines > ceiling {
			return models.ApprovalDecision{
				AutoApprove: false,
				Category:    rule.Category,
				Reason:      fmt.Sprintf("%d lines changed exceeds ceiling of %d", lines, ceiling),
				Confidence:  models.ConfidenceMedium,
			}
		}
		return models.ApprovalDecision{
			AutoApprove: true,
			Category:    rule.Category,
			Reason:      fmt.Sprintf("matches %s rules within %d-line ceiling", rule.Category, ceiling),
			Confidence:  models.ConfidenceMedium,
		}
	}

	return models.ApprovalDecision{
		AutoApprove: false,
		Category:    "unknown",
		Reason:      "no rule matched",
		Confidence:  models.ConfidenceLow,
	}
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
