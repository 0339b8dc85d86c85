// Package provider tracks the availability of AI provider backends and
// resolves fallback routing when a primary provider is down. The status
// map is authoritative in memory and snapshotted to a single JSON file
// after every mutation; on startup any provider whose estimated
// recovery has already passed is reset to available.
package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/filelock"
	"github.com/stewardhq/steward/internal/models"
)

const (
	// defaultUsageLimitWait applies when a usage-limit wait string
	// cannot be parsed.
	defaultUsageLimitWait = 24 * time.Hour

	// rateLimitWait is the fixed recovery window for rate limiting.
	rateLimitWait = 5 * time.Minute
)

// SystemPriority is the fixed fallback order consulted when neither the
// task nor the primary provider names a usable fallback.
var SystemPriority = []string{
	"claude-code",
	"codex",
	"lmstudio",
	"local-lm-studio",
	"ollama",
	"gemini-cli",
}

// Logger is the minimal logging surface the registry needs. A nil
// logger disables logging.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Registry tracks per-provider availability. Safe for concurrent use;
// snapshot writes are serialized under the registry mutex so rapid
// mutations cannot race to persist stale state.
type Registry struct {
	mu           sync.Mutex
	statuses     map[string]*models.ProviderStatus
	snapshotPath string

	events *bus.Bus
	logger Logger
	clock  func() time.Time
}

// NewRegistry creates a registry, loading the persisted snapshot if one
// exists. A missing or corrupt snapshot yields an empty map rather than
// an error; every provider then defaults to available on first query.
func NewRegistry(snapshotPath string, events *bus.Bus, logger Logger) *Registry {
	r := &Registry{
		statuses:     make(map[string]*models.ProviderStatus),
		snapshotPath: snapshotPath,
		events:       events,
		logger:       logger,
		clock:        time.Now,
	}
	r.load()
	return r
}

// load reads the snapshot and self-heals: entries whose estimated
// recovery has passed come back available without an active check.
func (r *Registry) load() {
	if r.snapshotPath == "" {
		return
	}
	data, err := os.ReadFile(r.snapshotPath)
	if err != nil {
		return // No snapshot yet.
	}

	var snap models.ProviderSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		if r.logger != nil {
			r.logger.Warnf("ignoring corrupt provider snapshot %s: %v", r.snapshotPath, err)
		}
		return
	}

	now := r.clock()
	healed := false
	for id, status := range snap.Providers {
		if status == nil {
			continue
		}
		if !status.Available && status.EstimatedRecovery != nil && status.EstimatedRecovery.Before(now) {
			resetToAvailable(status, now)
			healed = true
			if r.logger != nil {
				r.logger.Debugf("provider %s recovery window passed, resetting to available", id)
			}
		}
		r.statuses[id] = status
	}

	if healed {
		r.persistLocked()
	}
}

// resetToAvailable clears every unavailability field in place.
func resetToAvailable(status *models.ProviderStatus, now time.Time) {
	status.Available = true
	status.Reason = models.ReasonOK
	status.Message = ""
	status.WaitTime = ""
	status.UnavailableSince = nil
	status.EstimatedRecovery = nil
	status.FailureCount = 0
	status.LastChecked = now
}

// GetStatus returns a copy of a provider's status, creating a default
// available entry on first query.
func (r *Registry) GetStatus(id string) models.ProviderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.getOrCreateLocked(id)
}

// getOrCreateLocked returns the live entry for a provider, lazily
// creating it as available. Caller must hold r.mu.
func (r *Registry) getOrCreateLocked(id string) *models.ProviderStatus {
	status, ok := r.statuses[id]
	if !ok {
		status = &models.ProviderStatus{
			Available:   true,
			Reason:      models.ReasonOK,
			LastChecked: r.clock(),
		}
		r.statuses[id] = status
	}
	return status
}

// GetAll returns a copy of the full status map.
func (r *Registry) GetAll() map[string]models.ProviderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]models.ProviderStatus, len(r.statuses))
	for id, status := range r.statuses {
		out[id] = *status
	}
	return out
}

// IsAvailable reports whether a provider is currently usable. Unknown
// providers are available.
func (r *Registry) IsAvailable(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[id]
	if !ok {
		return true
	}
	return status.Available
}

// UsageLimit describes a usage-limit failure reported by a provider.
// WaitTime is the provider's free-text wait estimate, e.g.
// "1 day 2 hours".
type UsageLimit struct {
	Message  string
	WaitTime string
}

// MarkUsageLimit records that a provider hit its usage limit. The wait
// string is parsed into the estimated recovery time; unparseable input
// falls back to 24 hours.
func (r *Registry) MarkUsageLimit(id string, limit UsageLimit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wait, ok := ParseWaitTime(limit.WaitTime)
	if !ok {
		wait = defaultUsageLimitWait
		if r.logger != nil && limit.WaitTime != "" {
			r.logger.Warnf("provider %s: unparseable wait time %q, assuming %s", id, limit.WaitTime, wait)
		}
	}

	now := r.clock()
	recovery := now.Add(wait)

	status := r.getOrCreateLocked(id)
	status.Available = false
	status.Reason = models.ReasonUsageLimit
	status.Message = limit.Message
	status.WaitTime = limit.WaitTime
	status.UnavailableSince = &now
	status.EstimatedRecovery = &recovery
	status.FailureCount++
	status.LastChecked = now

	return r.afterMutationLocked(id, status)
}

// MarkRateLimited records a rate-limit failure with a fixed five-minute
// recovery window.
func (r *Registry) MarkRateLimited(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	recovery := now.Add(rateLimitWait)

	status := r.getOrCreateLocked(id)
	status.Available = false
	status.Reason = models.ReasonRateLimit
	status.Message = "rate limited"
	status.WaitTime = ""
	status.UnavailableSince = &now
	status.EstimatedRecovery = &recovery
	status.FailureCount++
	status.LastChecked = now

	return r.afterMutationLocked(id, status)
}

// MarkAvailable resets a provider to available and clears its failure
// count.
func (r *Registry) MarkAvailable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.getOrCreateLocked(id)
	resetToAvailable(status, r.clock())

	return r.afterMutationLocked(id, status)
}

// afterMutationLocked persists the snapshot and publishes the status
// change. Caller must hold r.mu; persistence completes before the
// mutating call returns.
func (r *Registry) afterMutationLocked(id string, status *models.ProviderStatus) error {
	err := r.persistLocked()

	if r.events != nil {
		r.events.Publish(bus.TopicProviderStatus, models.ProviderStatusChange{
			ProviderID: id,
			Available:  status.Available,
			Reason:     status.Reason,
			Timestamp:  status.LastChecked,
		})
	}
	return err
}

// persistLocked writes the full status map to the snapshot file under
// the file lock. Caller must hold r.mu.
func (r *Registry) persistLocked() error {
	if r.snapshotPath == "" {
		return nil
	}

	snap := models.ProviderSnapshot{
		Providers:   r.statuses,
		LastUpdated: r.clock(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal provider snapshot: %w", err)
	}
	if err := filelock.LockAndWrite(r.snapshotPath, data); err != nil {
		return fmt.Errorf("persist provider snapshot: %w", err)
	}
	return nil
}

// GetFallbackProvider resolves a fallback for an unavailable primary.
// Resolution order: the task-level fallback, the primary's configured
// fallback, then the system priority list skipping the primary. Every
// candidate must be enabled in the supplied provider config and
// currently available. Returns nil when nothing qualifies.
func (r *Registry) GetFallbackProvider(primaryID string, providers map[string]models.ProviderConfig, taskFallbackID string) *models.Fallback {
	if taskFallbackID != "" && r.usable(taskFallbackID, providers) {
		return &models.Fallback{ProviderID: taskFallbackID, Source: models.FallbackFromTask}
	}

	if cfg, ok := providers[primaryID]; ok && cfg.FallbackProvider != "" {
		if r.usable(cfg.FallbackProvider, providers) {
			return &models.Fallback{ProviderID: cfg.FallbackProvider, Source: models.FallbackFromProvider}
		}
	}

	for _, id := range SystemPriority {
		if id == primaryID {
			continue
		}
		if r.usable(id, providers) {
			return &models.Fallback{ProviderID: id, Source: models.FallbackFromSystem}
		}
	}

	return nil
}

// usable reports whether a provider is both enabled in config and
// available in the registry.
func (r *Registry) usable(id string, providers map[string]models.ProviderConfig) bool {
	cfg, ok := providers[id]
	if !ok || !cfg.Enabled {
		return false
	}
	return r.IsAvailable(id)
}

// TimeUntilRecovery renders the remaining unavailability window as a
// compact human string ("1d 2h 3m"), "any moment" when the window has
// passed, or "" when the provider is available.
func (r *Registry) TimeUntilRecovery(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[id]
	if !ok || status.Available || status.EstimatedRecovery == nil {
		return ""
	}

	remaining := status.EstimatedRecovery.Sub(r.clock())
	if remaining <= 0 {
		return "any moment"
	}
	return formatCompact(remaining)
}

// formatCompact renders a duration as "1d 2h 3m", omitting zero units.
// Sub-minute durations render as seconds.
func formatCompact(d time.Duration) string {
	days := int64(d.Hours()) / 24
	hours := int64(d.Hours()) % 24
	minutes := int64(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
	return strings.Join(parts, " ")
}

var waitTimePatterns = []struct {
	re   *regexp.Regexp
	unit time.Duration
}{
	{regexp.MustCompile(`(?i)(\d+)\s*day`), 24 * time.Hour},
	{regexp.MustCompile(`(?i)(\d+)\s*hour`), time.Hour},
	{regexp.MustCompile(`(?i)(\d+)\s*min`), time.Minute},
	{regexp.MustCompile(`(?i)(\d+)\s*sec`), time.Second},
}

// ParseWaitTime parses free-text wait strings like "1 day 1 hour 33
// minutes" into a duration. Any subset of units in any order is
// accepted, case-insensitive. Returns false when no unit is found.
func ParseWaitTime(s string) (time.Duration, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}

	var total time.Duration
	found := false
	for _, p := range waitTimePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		total += time.Duration(n) * p.unit
		found = true
	}
	return total, found
}
