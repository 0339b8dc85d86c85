package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/models"
)

const (
	// DefaultMaxAttempts is how many recovery attempts a key gets
	// before the selector forces manual intervention.
	DefaultMaxAttempts = 3

	// backoffCapMs caps exponential backoff at five minutes.
	backoffCapMs = 300000

	// decomposeChunkSize is the suggested chunk ceiling when a task
	// must be split to fit the context window.
	decomposeChunkSize = 2000

	// maxGlobalHistory bounds the selector's cross-key attempt history.
	maxGlobalHistory = 200
)

// Logger is the minimal logging surface the selector needs. A nil
// logger disables logging.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Archiver persists recovery attempts durably. Optional; the ledger
// and the bounded global history are always maintained regardless.
type Archiver interface {
	RecordRecoveryAttempt(ctx context.Context, key string, event models.AttemptEvent) error
}

// FailureContext identifies whose failure is being recovered.
type FailureContext struct {
	TaskID  string
	AgentID string
}

// Outcome reports what executing a strategy actually did.
type Outcome struct {
	Strategy models.Strategy
	// Waited is how long the executor slept for retry/defer.
	Waited time.Duration
	// Instruction tells the caller what to do next for strategies the
	// selector cannot carry out itself (fallback, decompose, manual...).
	Instruction string
	Params      models.StrategyParams
}

// Selector picks and executes recovery strategies, consulting the
// attempt ledger for the exhaustion decision.
type Selector struct {
	ledger  *Ledger
	events  *bus.Bus
	logger  Logger
	archive Archiver

	maxAttempts int
	backoffCap  int64
	sleep       func(ctx context.Context, d time.Duration) error
	clock       func() time.Time

	mu      sync.Mutex
	history []models.AttemptEvent
}

// NewSelector creates a selector backed by the given ledger. The bus
// and logger may be nil.
func NewSelector(ledger *Ledger, events *bus.Bus, logger Logger) *Selector {
	return &Selector{
		ledger:      ledger,
		events:      events,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		backoffCap:  backoffCapMs,
		sleep:       sleepContext,
		clock:       time.Now,
	}
}

// SetMaxAttempts overrides the exhaustion threshold. Non-positive
// values are ignored.
func (s *Selector) SetMaxAttempts(n int) {
	if n > 0 {
		s.maxAttempts = n
	}
}

// SetBackoffCap overrides the backoff delay ceiling in milliseconds.
// Non-positive values are ignored.
func (s *Selector) SetBackoffCap(ms int64) {
	if ms > 0 {
		s.backoffCap = ms
	}
}

// SetArchiver attaches a durable archive for executed attempts.
func (s *Selector) SetArchiver(archive Archiver) {
	s.archive = archive
}

// sleepContext blocks for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Select picks a recovery strategy for a classified failure. When the
// ledger shows the key has exhausted its attempts, manual intervention
// overrides whatever the category recommends.
func (s *Selector) Select(analysis *models.ErrorAnalysis, fc FailureContext) models.Selection {
	key := Key(fc.TaskID, fc.AgentID)
	attempts := s.ledger.Count(key)

	if attempts >= s.maxAttempts {
		if s.logger != nil {
			s.logger.Warnf("recovery attempts exhausted for %s (%d/%d), requiring manual intervention",
				key, attempts, s.maxAttempts)
		}
		return models.Selection{
			Strategy:      models.StrategyManual,
			Reason:        fmt.Sprintf("exhausted %d recovery attempts", attempts),
			Params:        models.StrategyParams{RequiresApproval: true},
			AttemptNumber: attempts,
			MaxAttempts:   s.maxAttempts,
		}
	}

	strategy := models.StrategyRetry
	if len(analysis.SuggestedStrategies) > 0 {
		strategy = analysis.SuggestedStrategies[0]
	}

	sel := models.Selection{
		Strategy:      strategy,
		Reason:        fmt.Sprintf("category %s suggests %s", analysis.Category, strategy),
		AttemptNumber: attempts,
		MaxAttempts:   s.maxAttempts,
	}

	switch strategy {
	case models.StrategyRetry, models.StrategyDefer:
		sel.Params.DelayMs = backoffDelayMs(analysis.CooldownMs, attempts, s.backoffCap)
	case models.StrategyEscalate:
		sel.Params.SuggestHeavyModel = true
	case models.StrategyDecompose:
		sel.Params.SuggestSmallerContext = true
		sel.Params.MaxChunkSize = decomposeChunkSize
	case models.StrategyFallback:
		sel.Params.UseFallbackProvider = true
	}

	return sel
}

// backoffDelayMs computes exponential backoff: base cooldown doubled
// per prior attempt, capped at capMs.
func backoffDelayMs(cooldownMs int64, attempts int, capMs int64) int64 {
	if cooldownMs <= 0 {
		return 0
	}
	delay := cooldownMs
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= capMs {
			return capMs
		}
	}
	if delay > capMs {
		return capMs
	}
	return delay
}

// Execute carries out a selected strategy: it sleeps out retry/defer
// backoff, produces caller instructions for the rest, and always
// records the attempt in the ledger, the bounded global history, and
// the attached archive before publishing a recovery:executed event.
func (s *Selector) Execute(ctx context.Context, sel models.Selection, fc FailureContext) (*Outcome, error) {
	key := Key(fc.TaskID, fc.AgentID)
	outcome := &Outcome{Strategy: sel.Strategy, Params: sel.Params}

	var execErr error
	switch sel.Strategy {
	case models.StrategyRetry:
		delay := time.Duration(sel.Params.DelayMs) * time.Millisecond
		execErr = s.sleep(ctx, delay)
		if execErr == nil {
			outcome.Waited = delay
			outcome.Instruction = "retry in place"
		}
	case models.StrategyDefer:
		outcome.Instruction = fmt.Sprintf("reschedule after %dms", sel.Params.DelayMs)
	case models.StrategyFallback:
		outcome.Instruction = "route to fallback provider"
	case models.StrategyEscalate:
		outcome.Instruction = "rerun with heavier model"
	case models.StrategyDecompose:
		outcome.Instruction = fmt.Sprintf("split input into chunks of at most %d", sel.Params.MaxChunkSize)
	case models.StrategyInvestigate:
		outcome.Instruction = "flag for investigation"
	case models.StrategySkip:
		outcome.Instruction = "skip task"
	case models.StrategyManual:
		outcome.Instruction = "manual intervention required"
	default:
		execErr = fmt.Errorf("unknown recovery strategy %q", sel.Strategy)
	}

	s.recordAttempt(key, sel.Strategy, execErr == nil)

	if s.logger != nil {
		s.logger.Debugf("executed recovery strategy %s for %s (success=%v)", sel.Strategy, key, execErr == nil)
	}

	if execErr != nil {
		return nil, execErr
	}
	return outcome, nil
}

// recordAttempt writes the attempt to the ledger and the global
// history, then emits the recovery:executed event.
func (s *Selector) recordAttempt(key string, strategy models.Strategy, success bool) {
	now := s.clock()
	s.ledger.Record(key, strategy, success)

	event := models.AttemptEvent{
		Timestamp: now,
		Strategy:  strategy,
		Success:   success,
	}

	s.mu.Lock()
	s.history = append(s.history, event)
	if len(s.history) > maxGlobalHistory {
		s.history = s.history[len(s.history)-maxGlobalHistory:]
	}
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.RecordRecoveryAttempt(context.Background(), key, event); err != nil && s.logger != nil {
			s.logger.Warnf("archive recovery attempt for %s: %v", key, err)
		}
	}

	if s.events != nil {
		s.events.Publish(bus.TopicRecoveryExec, models.RecoveryExecuted{
			Key:       key,
			Strategy:  strategy,
			Success:   success,
			Timestamp: now,
		})
	}
}

// GlobalHistory returns a copy of the bounded cross-key attempt history.
func (s *Selector) GlobalHistory() []models.AttemptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AttemptEvent, len(s.history))
	copy(out, s.history)
	return out
}
