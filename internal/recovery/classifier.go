// Package recovery implements failure classification and the recovery
// strategy machinery used by the execution state machine: a pattern
// table that buckets errors into actionable categories, a bounded
// attempt ledger, and a selector that picks the remedial action.
package recovery

import (
	"regexp"
	"unicode/utf8"

	"github.com/stewardhq/steward/internal/models"
)

// maxMessageLen bounds the error text carried in an analysis.
const maxMessageLen = 500

// categoryRule defines one taxonomy bucket: ordered patterns tested
// against the error message and code, the strategies to try in order,
// and a base cooldown for backoff.
type categoryRule struct {
	Category   models.ErrorCategory
	Patterns   []*regexp.Regexp
	Strategies []models.Strategy
	CooldownMs int64
	Severity   models.Severity
}

// categoryRules is evaluated in order; the first category with any
// matching pattern wins. Auth is deliberately listed ahead of rateLimit
// so that messages like "unauthorized (429)" route to manual
// intervention instead of a futile retry loop.
var categoryRules = []categoryRule{
	{
		Category: models.CategoryAuth,
		Patterns: compilePatterns(
			`unauthorized`,
			`authentication`,
			`invalid.?api.?key`,
			`forbidden`,
			`\b401\b`,
			`\b403\b`,
			`token.{0,20}expired`,
		),
		Strategies: []models.Strategy{models.StrategyManual, models.StrategyEscalate},
		CooldownMs: 0,
		Severity:   models.SeverityHigh,
	},
	{
		Category: models.CategoryRateLimit,
		Patterns: compilePatterns(
			`rate.?limit`,
			`too many requests`,
			`\b429\b`,
			`quota exceeded`,
			`usage limit`,
		),
		Strategies: []models.Strategy{models.StrategyRetry, models.StrategyFallback, models.StrategyDefer},
		CooldownMs: 60000,
		Severity:   models.SeverityMedium,
	},
	{
		Category: models.CategoryModelUnavailable,
		Patterns: compilePatterns(
			`model.{0,30}(unavailable|not found|not available)`,
			`\b503\b`,
			`service unavailable`,
			`overloaded`,
			`capacity`,
		),
		Strategies: []models.Strategy{models.StrategyFallback, models.StrategyRetry, models.StrategyDefer},
		CooldownMs: 30000,
		Severity:   models.SeverityMedium,
	},
	{
		Category: models.CategoryContextLength,
		Patterns: compilePatterns(
			`context.?(length|window)`,
			`maximum context`,
			`too many tokens`,
			`token limit`,
			`prompt is too long`,
		),
		Strategies: []models.Strategy{models.StrategyDecompose, models.StrategyEscalate},
		CooldownMs: 0,
		Severity:   models.SeverityMedium,
	},
	{
		Category: models.CategoryNetwork,
		Patterns: compilePatterns(
			`econnrefused`,
			`econnreset`,
			`etimedout`,
			`timeout`,
			`timed out`,
			`socket hang up`,
			`network`,
			`dns`,
			`connection refused`,
		),
		Strategies: []models.Strategy{models.StrategyRetry, models.StrategyDefer},
		CooldownMs: 5000,
		Severity:   models.SeverityLow,
	},
	{
		Category: models.CategoryContentFilter,
		Patterns: compilePatterns(
			`content.?(filter|policy)`,
			`safety`,
			`blocked by`,
			`refused to`,
		),
		Strategies: []models.Strategy{models.StrategySkip, models.StrategyInvestigate},
		CooldownMs: 0,
		Severity:   models.SeverityMedium,
	},
	{
		Category: models.CategoryResource,
		Patterns: compilePatterns(
			`out of memory`,
			`enomem`,
			`enospc`,
			`no space left`,
			`disk full`,
			`resource exhausted`,
		),
		Strategies: []models.Strategy{models.StrategyManual, models.StrategyDefer},
		CooldownMs: 300000,
		Severity:   models.SeverityHigh,
	},
	{
		Category: models.CategoryProcess,
		Patterns: compilePatterns(
			`exited with code`,
			`killed`,
			`sigkill`,
			`sigterm`,
			`command not found`,
			`spawn.{0,30}enoent`,
		),
		Strategies: []models.Strategy{models.StrategyRetry, models.StrategyInvestigate},
		CooldownMs: 10000,
		Severity:   models.SeverityMedium,
	},
}

// compilePatterns compiles patterns with case-insensitive matching.
func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return compiled
}

// ClassifyInput carries the raw error facts to classify. Code holds a
// provider error code when one is known (numeric codes included, e.g.
// "429"); both message and code are matched against the pattern table.
type ClassifyInput struct {
	Message string
	Code    string
}

// Analyze classifies an error against the category table. Pure function:
// no state, no side effects. Unmatched errors come back as the unknown
// category with a bare retry strategy and no cooldown.
func Analyze(in ClassifyInput) *models.ErrorAnalysis {
	message := truncateMessage(in.Message)

	for _, rule := range categoryRules {
		matched := matchPatterns(rule.Patterns, in.Message, in.Code)
		if len(matched) == 0 {
			continue
		}
		return &models.ErrorAnalysis{
			Category:            rule.Category,
			Message:             message,
			Code:                in.Code,
			MatchedPatterns:     matched,
			SuggestedStrategies: rule.Strategies,
			CooldownMs:          rule.CooldownMs,
			Severity:            rule.Severity,
			Recoverable:         rule.Strategies[0] != models.StrategyManual,
		}
	}

	return &models.ErrorAnalysis{
		Category:            models.CategoryUnknown,
		Message:             message,
		Code:                in.Code,
		SuggestedStrategies: []models.Strategy{models.StrategyRetry},
		CooldownMs:          0,
		Severity:            models.SeverityMedium,
		Recoverable:         true,
	}
}

// truncateMessage bounds the message at maxMessageLen bytes, backing
// up to a rune boundary so a multi-byte character is never split.
func truncateMessage(message string) string {
	if len(message) <= maxMessageLen {
		return message
	}
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

// AnalyzeError is a convenience wrapper over Analyze for plain Go errors.
func AnalyzeError(err error) *models.ErrorAnalysis {
	if err == nil {
		return nil
	}
	return Analyze(ClassifyInput{Message: err.Error()})
}

// matchPatterns returns the source text of every pattern that matches
// the message or code. An empty slice means the rule does not apply.
func matchPatterns(patterns []*regexp.Regexp, message, code string) []string {
	var matched []string
	for _, p := range patterns {
		if p.MatchString(message) || (code != "" && p.MatchString(code)) {
			matched = append(matched, p.String())
		}
	}
	return matched
}
