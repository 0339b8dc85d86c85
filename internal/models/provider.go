package models

import "time"

// UnavailableReason explains why a provider was marked unavailable.
type UnavailableReason string

const (
	ReasonOK           UnavailableReason = "ok"
	ReasonUsageLimit   UnavailableReason = "usage-limit"
	ReasonRateLimit    UnavailableReason = "rate-limit"
	ReasonAuthError    UnavailableReason = "auth-error"
	ReasonNetworkError UnavailableReason = "network-error"
)

// ProviderStatus tracks the availability of one AI provider backend.
// Invariant: Available implies EstimatedRecovery and UnavailableSince
// are nil.
type ProviderStatus struct {
	Available         bool              `json:"available"`
	Reason            UnavailableReason `json:"reason"`
	Message           string            `json:"message,omitempty"`
	WaitTime          string            `json:"wait_time,omitempty"`
	UnavailableSince  *time.Time        `json:"unavailable_since,omitempty"`
	EstimatedRecovery *time.Time        `json:"estimated_recovery,omitempty"`
	FailureCount      int               `json:"failure_count"`
	LastChecked       time.Time         `json:"last_checked"`
}

// ProviderConfig is the static per-provider configuration consulted
// during fallback resolution.
type ProviderConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	FallbackProvider string `yaml:"fallback_provider" json:"fallback_provider,omitempty"`
}

// FallbackSource records which tier of the resolution order supplied a
// fallback provider.
type FallbackSource string

const (
	FallbackFromTask     FallbackSource = "task"
	FallbackFromProvider FallbackSource = "provider"
	FallbackFromSystem   FallbackSource = "system"
)

// Fallback is a resolved fallback provider plus the tier it came from.
type Fallback struct {
	ProviderID string         `json:"provider_id"`
	Source     FallbackSource `json:"source"`
}

// ProviderSnapshot is the on-disk shape of the persisted status map.
// Readers tolerate missing keys; an absent provider is treated as
// available.
type ProviderSnapshot struct {
	Providers   map[string]*ProviderStatus `json:"providers"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// ProviderStatusChange is the event payload published after every
// registry mutation.
type ProviderStatusChange struct {
	ProviderID string            `json:"provider_id"`
	Available  bool              `json:"available"`
	Reason     UnavailableReason `json:"reason"`
	Timestamp  time.Time         `json:"timestamp"`
}
