package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stewardhq/steward/internal/models"
)

func defaultClassifier() *Classifier {
	return NewClassifier([]string{"formatting", "typo-fix", "import-cleanup", "documentation"}, 50)
}

func TestRequireApprovalWinsOverAutoApprove(t *testing.T) {
	c := defaultClassifier()

	// "refactor" alone would auto-classify as a dry violation, but the
	// auth keyword forces the security verdict.
	decision := c.Classify(models.ChangeTask{
		Description:    "refactor auth token handling",
		EstimatedLines: 5,
	}, nil)

	assert.False(t, decision.AutoApprove)
	assert.Equal(t, "security", decision.Category)
	assert.Equal(t, models.ConfidenceHigh, decision.Confidence)
}

func TestRequireApprovalCategories(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		description string
		category    string
	}{
		{"add users table migration", "database"},
		{"expose new endpoint for billing", "api-change"},
		{"bump yaml dependency to v3", "dependency"},
		{"rewrite the scheduler", "architecture"},
		{"change default settings for workers", "config"},
		{"update deploy pipeline", "deployment"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			decision := c.Classify(models.ChangeTask{Description: tt.description, EstimatedLines: 1}, nil)
			assert.False(t, decision.AutoApprove)
			assert.Equal(t, tt.category, decision.Category)
			assert.Equal(t, models.ConfidenceHigh, decision.Confidence)
		})
	}
}

func TestAutoApproveSmallTypoFix(t *testing.T) {
	c := defaultClassifier()

	decision := c.Classify(models.ChangeTask{
		Description:    "fix typo in comment",
		EstimatedLines: 5,
	}, nil)

	assert.True(t, decision.AutoApprove)
	assert.Equal(t, "typo-fix", decision.Category)
	assert.Equal(t, models.ConfidenceMedium, decision.Confidence)
}

func TestAutoApproveImportCleanup(t *testing.T) {
	c := defaultClassifier()

	decision := c.Classify(models.ChangeTask{
		Description:    "organize imports in handler.go",
		EstimatedLines: 8,
	}, nil)

	assert.True(t, decision.AutoApprove)
	assert.Equal(t, "import-cleanup", decision.Category)
}

func TestCategoryNotInAllowList(t *testing.T) {
	c := NewClassifier([]string{"typo-fix"}, 50)

	decision := c.Classify(models.ChangeTask{
		Description:    "apply consistent formatting",
		EstimatedLines: 5,
	}, nil)

	assert.False(t, decision.AutoApprove)
	assert.Equal(t, "formatting", decision.Category)
	assert.Contains(t, decision.Reason, "allow-list")
	assert.Equal(t, models.ConfidenceMedium, decision.Confidence)
}

func TestRuleCeilingApplies(t *testing.T) {
	c := defaultClassifier()

	// typo-fix caps at 10 lines even though the global ceiling is 50.
	decision := c.Classify(models.ChangeTask{
		Description:    "fix typo across files",
		EstimatedLines: 15,
	}, nil)

	assert.False(t, decision.AutoApprove)
	assert.Equal(t, "typo-fix", decision.Category)
	assert.Contains(t, decision.Reason, "exceeds")
}

func TestGlobalCeilingTightensRuleCeiling(t *testing.T) {
	c := defaultClassifier()

	// documentation allows 100 lines, but the configured ceiling is 50.
	over := c.Classify(models.ChangeTask{Description: "expand documentation", EstimatedLines: 60}, nil)
	assert.False(t, over.AutoApprove)
	assert.Equal(t, "documentation", over.Category)

	under := c.Classify(models.ChangeTask{Description: "expand documentation", EstimatedLines: 40}, nil)
	assert.True(t, under.AutoApprove)
}

func TestAnalysisOverridesEstimate(t *testing.T) {
	c := defaultClassifier()

	decision := c.Classify(
		models.ChangeTask{Description: "fix typo", EstimatedLines: 5},
		&models.ChangeAnalysis{LinesChanged: 80},
	)

	assert.False(t, decision.AutoApprove)
	assert.Contains(t, decision.Reason, "80")
}

func TestNoRuleMatched(t *testing.T) {
	c := defaultClassifier()

	decision := c.Classify(models.ChangeTask{
		Description:    "adjust widget colors",
		EstimatedLines: 5,
	}, nil)

	assert.False(t, decision.AutoApprove)
	assert.Equal(t, "unknown", decision.Category)
	assert.Equal(t, models.ConfidenceLow, decision.Confidence)
}

func TestEmptyAllowListApprovesNothing(t *testing.T) {
	c := NewClassifier(nil, 50)

	decision := c.Classify(models.ChangeTask{
		Description:    "fix typo in comment",
		EstimatedLines: 2,
	}, nil)

	assert.False(t, decision.AutoApprove)
}
