package models

import (
	"time"
)

// ExecState represents the lifecycle state of a tracked tool invocation.
type ExecState string

// Execution lifecycle states. End is terminal; every other state has at
// least one legal outgoing transition (see LegalTransitions).
const (
	StateIdle      ExecState = "idle"
	StateStart     ExecState = "start"
	StateRunning   ExecState = "running"
	StateUpdate    ExecState = "update"
	StateEnd       ExecState = "end"
	StateError     ExecState = "error"
	StateRecovered ExecState = "recovered"
)

// LegalTransitions is the authoritative transition table for executions.
// Any requested transition not listed here must be rejected without
// mutating the execution.
var LegalTransitions = map[ExecState][]ExecState{
	StateIdle:      {StateStart},
	StateStart:     {StateRunning, StateError},
	StateRunning:   {StateUpdate, StateEnd, StateError},
	StateUpdate:    {StateRunning, StateEnd, StateError},
	StateError:     {StateRecovered, StateEnd},
	StateRecovered: {StateRunning, StateError},
	StateEnd:       {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to ExecState) bool {
	for _, next := range LegalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateEvent is one entry in an execution's state history. The history is
// append-only and never trimmed while the execution is live.
type StateEvent struct {
	State     ExecState   `json:"state"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ExecError captures the failure attached to an execution while it is in
// the error state. Cleared when the execution recovers.
type ExecError struct {
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Execution is one tracked invocation of a tool function on behalf of an
// agent. It is owned by the execution state machine; callers receive
// copies and must not mutate shared state.
type Execution struct {
	ID      string `json:"id"`
	ToolID  string `json:"tool_id"`
	AgentID string `json:"agent_id"`

	State        ExecState    `json:"state"`
	StateHistory []StateEvent `json:"state_history"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`

	Input  interface{} `json:"input,omitempty"`
	Output interface{} `json:"output,omitempty"`
	Error  *ExecError  `json:"error,omitempty"`

	// RecoveryAttempts counts recoveries applied to this execution only.
	// The recovery ledger keeps the per-task/per-agent count that gates
	// the exhausted decision; this field is observability data.
	RecoveryAttempts int `json:"recovery_attempts"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// HistoryEntry is the immutable projection of a completed execution kept
// in the bounded history ring after the live record is evicted.
type HistoryEntry struct {
	ID               string     `json:"id"`
	ToolID           string     `json:"tool_id"`
	AgentID          string     `json:"agent_id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	DurationMs       int64      `json:"duration_ms"`
	Success          bool       `json:"success"`
	RecoveryAttempts int        `json:"recovery_attempts"`
	ErrorCategory    string     `json:"error_category,omitempty"`
}

// StateChange is the payload published on the event bus for every
// successful transition. This is the only coupling point between the
// execution core and dashboard/logging consumers.
type StateChange struct {
	ExecutionID string    `json:"execution_id"`
	ToolID      string    `json:"tool_id"`
	AgentID     string    `json:"agent_id"`
	From        ExecState `json:"from"`
	To          ExecState `json:"to"`
	Timestamp   time.Time `json:"timestamp"`
}
