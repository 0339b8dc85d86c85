package models

import "time"

// ErrorCategory identifies the failure taxonomy bucket an error was
// classified into. Categories are matched in a fixed priority order;
// the first category with a matching pattern wins.
type ErrorCategory string

const (
	CategoryAuth             ErrorCategory = "auth"
	CategoryRateLimit        ErrorCategory = "rateLimit"
	CategoryModelUnavailable ErrorCategory = "modelUnavailable"
	CategoryContextLength    ErrorCategory = "contextLength"
	CategoryNetwork          ErrorCategory = "network"
	CategoryContentFilter    ErrorCategory = "contentFilter"
	CategoryResource         ErrorCategory = "resource"
	CategoryProcess          ErrorCategory = "process"
	CategoryUnknown          ErrorCategory = "unknown"
)

// Strategy is a remedial action chosen after a classified failure.
type Strategy string

const (
	StrategyRetry       Strategy = "retry"
	StrategyEscalate    Strategy = "escalate"
	StrategyFallback    Strategy = "fallback"
	StrategyDecompose   Strategy = "decompose"
	StrategyDefer       Strategy = "defer"
	StrategyInvestigate Strategy = "investigate"
	StrategySkip        Strategy = "skip"
	StrategyManual      Strategy = "manual"
)

// Severity grades how badly a classified error impacts progress.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ErrorAnalysis is the derived result of classifying one error. It is
// never persisted; the selector consumes it immediately.
type ErrorAnalysis struct {
	Category            ErrorCategory `json:"category"`
	Message             string        `json:"message"`
	Code                string        `json:"code,omitempty"`
	MatchedPatterns     []string      `json:"matched_patterns,omitempty"`
	SuggestedStrategies []Strategy    `json:"suggested_strategies"`
	CooldownMs          int64         `json:"cooldown_ms"`
	Severity            Severity      `json:"severity"`
	Recoverable         bool          `json:"recoverable"`
}

// StrategyParams carries the strategy-specific knobs the executor needs
// to act on a selection.
type StrategyParams struct {
	DelayMs               int64 `json:"delay_ms,omitempty"`
	SuggestHeavyModel     bool  `json:"suggest_heavy_model,omitempty"`
	SuggestSmallerContext bool  `json:"suggest_smaller_context,omitempty"`
	MaxChunkSize          int   `json:"max_chunk_size,omitempty"`
	UseFallbackProvider   bool  `json:"use_fallback_provider,omitempty"`
	RequiresApproval      bool  `json:"requires_approval,omitempty"`
}

// Selection is the selector's decision for one failure: which strategy
// to apply, why, and with what parameters.
type Selection struct {
	Strategy      Strategy       `json:"strategy"`
	Reason        string         `json:"reason"`
	Params        StrategyParams `json:"params"`
	AttemptNumber int            `json:"attempt_number"`
	MaxAttempts   int            `json:"max_attempts"`
}

// AttemptEvent is one recorded recovery attempt, kept in the ledger's
// bounded per-key history and the selector's global history.
type AttemptEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Strategy  Strategy  `json:"strategy"`
	Success   bool      `json:"success"`
}

// RecoveryExecuted is the event payload published after a strategy has
// been carried out (or has failed to carry out).
type RecoveryExecuted struct {
	Key       string    `json:"key"`
	Strategy  Strategy  `json:"strategy"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}
