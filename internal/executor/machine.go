// Package executor owns the lifecycle of tool/agent invocations. Each
// invocation is tracked as an Execution driven through a validated
// state machine; Wrap adds a retry/recovery loop around arbitrary tool
// functions so simple call sites never touch the machine directly.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/models"
	"github.com/stewardhq/steward/internal/recovery"
)

const (
	// maxHistory bounds the in-memory ring of completed executions.
	maxHistory = 1000

	// maxRecoveries is the per-execution recovery cap enforced by
	// Recover.
	maxRecoveries = 3

	// defaultRetention is how long a completed execution stays in the
	// live table for late debugging reads before eviction.
	defaultRetention = 60 * time.Second
)

// ToolFunc is the collaborator contract: any function taking an opaque
// input and returning an opaque output. The executor imposes no shape
// on either.
type ToolFunc func(ctx context.Context, input interface{}) (interface{}, error)

// Logger is the minimal logging surface the machine needs. A nil
// logger disables logging.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Archiver persists completed executions durably. Optional; the
// in-memory ring is always maintained regardless.
type Archiver interface {
	RecordExecution(ctx context.Context, entry models.HistoryEntry) error
}

// Stats summarizes the machine's current and historical load.
type Stats struct {
	Live        int     `json:"live"`
	Completed   int     `json:"completed"`
	Succeeded   int     `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
}

// Machine tracks live executions, validates every transition against
// the legal-transition table, and projects completed executions into a
// bounded history ring.
type Machine struct {
	mu   sync.Mutex
	live map[string]*models.Execution
	ring []models.HistoryEntry

	events  *bus.Bus
	logger  Logger
	archive Archiver

	clock     func() time.Time
	schedule  func(d time.Duration, fn func())
	retention time.Duration

	succeeded int
	completed int
}

// NewMachine creates a machine. The bus, logger, and archiver may each
// be nil.
func NewMachine(events *bus.Bus, logger Logger, archive Archiver) *Machine {
	return &Machine{
		live:    make(map[string]*models.Execution),
		events:  events,
		logger:  logger,
		archive: archive,
		clock:   time.Now,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		retention: defaultRetention,
	}
}

// Create registers a new execution in the idle state.
func (m *Machine) Create(toolID, agentID string, metadata map[string]interface{}) *models.Execution {
	now := m.clock()
	exec := &models.Execution{
		ID:        uuid.NewString(),
		ToolID:    toolID,
		AgentID:   agentID,
		State:     models.StateIdle,
		StartedAt: now,
		Metadata:  metadata,
		StateHistory: []models.StateEvent{
			{State: models.StateIdle, Timestamp: now},
		},
	}

	m.mu.Lock()
	m.live[exec.ID] = exec
	m.mu.Unlock()

	return copyExecution(exec)
}

// Get returns a copy of a live execution, or nil if unknown or already
// evicted.
func (m *Machine) Get(id string) *models.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.live[id]
	if !ok {
		return nil
	}
	return copyExecution(exec)
}

// Transition requests a state change. Illegal transitions return nil
// without mutating the execution; callers treat that as a programming
// error, not a recoverable condition.
func (m *Machine) Transition(id string, target models.ExecState, data interface{}) *models.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, target, data)
}

// transitionLocked performs a validated transition. Caller must hold
// m.mu.
func (m *Machine) transitionLocked(id string, target models.ExecState, data interface{}) *models.Execution {
	exec, ok := m.live[id]
	if !ok {
		return nil
	}
	if !models.CanTransition(exec.State, target) {
		if m.logger != nil {
			m.logger.Debugf("rejected transition %s -> %s for execution %s", exec.State, target, id)
		}
		return nil
	}

	now := m.clock()
	from := exec.State
	exec.State = target
	exec.StateHistory = append(exec.StateHistory, models.StateEvent{
		State:     target,
		Timestamp: now,
		Data:      data,
	})

	if target == models.StateEnd {
		m.finishLocked(exec, now)
	}

	if m.events != nil {
		m.events.Publish(bus.TopicStateChange, models.StateChange{
			ExecutionID: exec.ID,
			ToolID:      exec.ToolID,
			AgentID:     exec.AgentID,
			From:        from,
			To:          target,
			Timestamp:   now,
		})
	}

	return copyExecution(exec)
}

// finishLocked stamps completion, projects the execution into the
// history ring, archives it, and schedules eviction from the live
// table. CompletedAt is set exactly once, only here.
func (m *Machine) finishLocked(exec *models.Execution, now time.Time) {
	completed := now
	exec.CompletedAt = &completed
	exec.DurationMs = now.Sub(exec.StartedAt).Milliseconds()

	success := exec.Error == nil
	entry := models.HistoryEntry{
		ID:               exec.ID,
		ToolID:           exec.ToolID,
		AgentID:          exec.AgentID,
		StartedAt:        exec.StartedAt,
		CompletedAt:      exec.CompletedAt,
		DurationMs:       exec.DurationMs,
		Success:          success,
		RecoveryAttempts: exec.RecoveryAttempts,
	}
	if exec.Error != nil {
		analysis := recovery.Analyze(recovery.ClassifyInput{
			Message: exec.Error.Message,
			Code:    exec.Error.Code,
		})
		entry.ErrorCategory = string(analysis.Category)
	}

	m.ring = append(m.ring, entry)
	if len(m.ring) > maxHistory {
		m.ring = m.ring[len(m.ring)-maxHistory:]
	}
	m.completed++
	if success {
		m.succeeded++
	}

	if m.archive != nil {
		if err := m.archive.RecordExecution(context.Background(), entry); err != nil && m.logger != nil {
			m.logger.Warnf("archive execution %s: %v", exec.ID, err)
		}
	}

	id := exec.ID
	m.schedule(m.retention, func() {
		m.mu.Lock()
		delete(m.live, id)
		m.mu.Unlock()
	})
}

// Start drives a fresh execution idle -> start -> running, attaching
// the input.
func (m *Machine) Start(id string, input interface{}) *models.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.live[id]
	if !ok {
		return nil
	}

	if m.transitionLocked(id, models.StateStart, input) == nil {
		return nil
	}
	exec.Input = input
	return m.transitionLocked(id, models.StateRunning, nil)
}

// Update records progress data. Deliberately silent when the execution
// is not in running or update: the current execution is returned
// unchanged so callers can probe speculatively.
func (m *Machine) Update(id string, data interface{}) *models.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.live[id]
	if !ok {
		return nil
	}

	switch exec.State {
	case models.StateRunning:
		return m.transitionLocked(id, models.StateUpdate, data)
	case models.StateUpdate:
		// Route back through running so the history stays legal.
		if m.transitionLocked(id, models.StateRunning, nil) == nil {
			return nil
		}
		return m.transitionLocked(id, models.StateUpdate, data)
	default:
		return copyExecution(exec)
	}
}

// Complete drives an execution to end with the given output. From the
// error state this is a "gave up" completion: it still reaches end but
// the end event carries was_error and the history entry records
// failure. From update the path is routed through running first.
func (m *Machine) Complete(id string, output interface{}) *models.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.live[id]
	if !ok {
		return nil
	}

	switch exec.State {
	case models.StateError:
		return m.transitionLocked(id, models.StateEnd, map[string]interface{}{
			"was_error": true,
		})
	case models.StateUpdate, models.StateRecovered:
		if m.transitionLocked(id, models.StateRunning, nil) == nil {
			return nil
		}
	case models.StateRunning:
		// Direct path.
	default:
		return nil
	}

	exec.Output = output
	return m.transitionLocked(id, models.StateEnd, map[string]interface{}{
		"output": output,
	})
}

// Error moves an execution into the error state with the failure
// attached. Legal from start, running, update, and recovered.
func (m *Machine) Error(id string, execErr models.ExecError) *models.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.live[id]
	if !ok {
		return nil
	}
	if execErr.Timestamp.IsZero() {
		execErr.Timestamp = m.clock()
	}

	result := m.transitionLocked(id, models.StateError, execErr)
	if result == nil {
		return nil
	}
	exec.Error = &execErr
	result.Error = &execErr
	return result
}

// Recover applies a recovery strategy to an errored execution. Refuses
// (returns nil) after three recoveries on the same execution. On
// success the error is cleared, the attempt counter incremented, and
// the execution re-enters running.
func (m *Machine) Recover(id string, strategy models.Strategy) *models.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.live[id]
	if !ok {
		return nil
	}
	if exec.State != models.StateError {
		return nil
	}
	if exec.RecoveryAttempts >= maxRecoveries {
		if m.logger != nil {
			m.logger.Debugf("execution %s exhausted %d recoveries, refusing %s", id, exec.RecoveryAttempts, strategy)
		}
		return nil
	}

	if m.transitionLocked(id, models.StateRecovered, map[string]interface{}{
		"strategy": strategy,
	}) == nil {
		return nil
	}

	exec.RecoveryAttempts++
	exec.Error = nil
	return m.transitionLocked(id, models.StateRunning, nil)
}

// Result is what a wrapped tool function returns to its caller.
type Result struct {
	Success     bool
	Output      interface{}
	Err         error
	ExecutionID string
}

// WrappedFunc is a tool function wrapped with execution tracking and
// retry.
type WrappedFunc func(ctx context.Context, agentID string, input interface{}, metadata map[string]interface{}) Result

// Wrap returns the tool function wrapped in a tracked execution with a
// local retry loop: up to three attempts, each failure driven through
// error and a retry recovery. When recovery is refused the loop breaks
// and the execution is completed as a failure. This is the primary
// integration point; every transition still reaches the event bus.
func (m *Machine) Wrap(toolID string, fn ToolFunc) WrappedFunc {
	return func(ctx context.Context, agentID string, input interface{}, metadata map[string]interface{}) Result {
		exec := m.Create(toolID, agentID, metadata)
		m.Start(exec.ID, input)

		var lastErr error
		for attempt := 0; ; attempt++ {
			output, err := fn(ctx, input)
			if err == nil {
				m.Complete(exec.ID, output)
				return Result{Success: true, Output: output, ExecutionID: exec.ID}
			}

			lastErr = err
			m.Error(exec.ID, models.ExecError{
				Message: err.Error(),
				Code:    errorCode(err),
			})
			// The final failure stays in error so the completion below
			// records a gave-up end, not a success.
			if attempt+1 >= maxRecoveries {
				break
			}
			if m.Recover(exec.ID, models.StrategyRetry) == nil {
				break
			}
		}

		m.Complete(exec.ID, nil)
		return Result{
			Success:     false,
			Err:         fmt.Errorf("tool %s failed: %w", toolID, lastErr),
			ExecutionID: exec.ID,
		}
	}
}

// errorCode extracts a code from errors that carry one.
func errorCode(err error) string {
	var c interface{ Code() string }
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// History returns a copy of the bounded completed-execution ring,
// oldest first.
func (m *Machine) History() []models.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.HistoryEntry, len(m.ring))
	copy(out, m.ring)
	return out
}

// Stats reports live and historical counts.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Live:      len(m.live),
		Completed: m.completed,
		Succeeded: m.succeeded,
	}
	if m.completed > 0 {
		s.SuccessRate = float64(m.succeeded) / float64(m.completed)
	}
	return s
}

// copyExecution returns a defensive copy: shared slices are duplicated
// so callers cannot mutate machine-owned state.
func copyExecution(exec *models.Execution) *models.Execution {
	cp := *exec
	cp.StateHistory = make([]models.StateEvent, len(exec.StateHistory))
	copy(cp.StateHistory, exec.StateHistory)
	if exec.Error != nil {
		errCopy := *exec.Error
		cp.Error = &errCopy
	}
	return &cp
}
