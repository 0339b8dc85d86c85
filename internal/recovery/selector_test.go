package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/models"
)

// newTestSelector returns a selector whose sleeps are recorded instead
// of performed.
func newTestSelector(events *bus.Bus) (*Selector, *[]time.Duration) {
	ledger := NewLedger()
	s := NewSelector(ledger, events, nil)

	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func analysisFor(message string) *models.ErrorAnalysis {
	return Analyze(ClassifyInput{Message: message})
}

func TestSelectBackoffDoubling(t *testing.T) {
	s, _ := newTestSelector(nil)
	analysis := &models.ErrorAnalysis{
		Category:            models.CategoryNetwork,
		SuggestedStrategies: []models.Strategy{models.StrategyRetry},
		CooldownMs:          5000,
	}
	fc := FailureContext{TaskID: "task-1"}

	expected := []int64{5000, 10000, 20000}
	for _, want := range expected {
		sel := s.Select(analysis, fc)
		require.Equal(t, models.StrategyRetry, sel.Strategy)
		assert.Equal(t, want, sel.Params.DelayMs)
		assert.LessOrEqual(t, sel.Params.DelayMs, int64(300000))

		_, err := s.Execute(context.Background(), sel, fc)
		require.NoError(t, err)
	}
}

func TestSelectBackoffCap(t *testing.T) {
	assert.Equal(t, int64(300000), backoffDelayMs(300000, 5, backoffCapMs))
	assert.Equal(t, int64(300000), backoffDelayMs(60000, 10, backoffCapMs))
	assert.Equal(t, int64(0), backoffDelayMs(0, 3, backoffCapMs))
	assert.Equal(t, int64(60000), backoffDelayMs(60000, 0, backoffCapMs))
}

func TestSetBackoffCap(t *testing.T) {
	s, _ := newTestSelector(nil)
	s.SetBackoffCap(10000)
	analysis := &models.ErrorAnalysis{
		SuggestedStrategies: []models.Strategy{models.StrategyRetry},
		CooldownMs:          60000,
	}

	sel := s.Select(analysis, FailureContext{TaskID: "task-1"})
	assert.Equal(t, int64(10000), sel.Params.DelayMs)

	// Non-positive values leave the ceiling alone.
	s.SetBackoffCap(0)
	sel = s.Select(analysis, FailureContext{TaskID: "task-1"})
	assert.Equal(t, int64(10000), sel.Params.DelayMs)
}

func TestSetMaxAttempts(t *testing.T) {
	s, _ := newTestSelector(nil)
	s.SetMaxAttempts(1)
	fc := FailureContext{TaskID: "task-1"}
	analysis := analysisFor("connection refused")

	sel := s.Select(analysis, fc)
	require.Equal(t, models.StrategyRetry, sel.Strategy)
	assert.Equal(t, 1, sel.MaxAttempts)
	_, err := s.Execute(context.Background(), sel, fc)
	require.NoError(t, err)

	sel = s.Select(analysis, fc)
	assert.Equal(t, models.StrategyManual, sel.Strategy)
	assert.True(t, sel.Params.RequiresApproval)

	// Non-positive values leave the threshold alone.
	s.SetMaxAttempts(0)
	assert.Equal(t, models.StrategyManual, s.Select(analysis, fc).Strategy)
}

func TestSelectExhaustionForcesManual(t *testing.T) {
	s, _ := newTestSelector(nil)
	fc := FailureContext{TaskID: "task-1"}
	analysis := analysisFor("connection refused")

	for i := 0; i < DefaultMaxAttempts; i++ {
		sel := s.Select(analysis, fc)
		require.NotEqual(t, models.StrategyManual, sel.Strategy)
		_, err := s.Execute(context.Background(), sel, fc)
		require.NoError(t, err)
	}

	sel := s.Select(analysis, fc)
	assert.Equal(t, models.StrategyManual, sel.Strategy)
	assert.True(t, sel.Params.RequiresApproval)
	assert.Equal(t, DefaultMaxAttempts, sel.AttemptNumber)
	assert.Equal(t, DefaultMaxAttempts, sel.MaxAttempts)
}

func TestSelectExhaustionIsPerKey(t *testing.T) {
	s, _ := newTestSelector(nil)
	analysis := analysisFor("connection refused")
	busy := FailureContext{TaskID: "task-busy"}

	for i := 0; i < DefaultMaxAttempts; i++ {
		sel := s.Select(analysis, busy)
		_, err := s.Execute(context.Background(), sel, busy)
		require.NoError(t, err)
	}

	require.Equal(t, models.StrategyManual, s.Select(analysis, busy).Strategy)
	// A different task is unaffected.
	assert.Equal(t, models.StrategyRetry, s.Select(analysis, FailureContext{TaskID: "task-fresh"}).Strategy)
	// No identity at all counts against the global key.
	assert.Equal(t, models.StrategyRetry, s.Select(analysis, FailureContext{}).Strategy)
}

func TestSelectStrategyParams(t *testing.T) {
	s, _ := newTestSelector(nil)
	fc := FailureContext{AgentID: "agent-1"}

	tests := []struct {
		name     string
		analysis *models.ErrorAnalysis
		check    func(t *testing.T, sel models.Selection)
	}{
		{
			name:     "escalate suggests heavy model",
			analysis: &models.ErrorAnalysis{SuggestedStrategies: []models.Strategy{models.StrategyEscalate}},
			check: func(t *testing.T, sel models.Selection) {
				assert.True(t, sel.Params.SuggestHeavyModel)
			},
		},
		{
			name:     "decompose suggests smaller context",
			analysis: analysisFor("maximum context length exceeded"),
			check: func(t *testing.T, sel models.Selection) {
				assert.True(t, sel.Params.SuggestSmallerContext)
				assert.Equal(t, decomposeChunkSize, sel.Params.MaxChunkSize)
			},
		},
		{
			name:     "fallback flags provider switch",
			analysis: analysisFor("model claude-x is unavailable"),
			check: func(t *testing.T, sel models.Selection) {
				assert.Equal(t, models.StrategyFallback, sel.Strategy)
				assert.True(t, sel.Params.UseFallbackProvider)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, s.Select(tt.analysis, fc))
		})
	}
}

func TestExecuteRetrySleeps(t *testing.T) {
	s, slept := newTestSelector(nil)
	fc := FailureContext{TaskID: "task-1"}

	sel := models.Selection{
		Strategy: models.StrategyRetry,
		Params:   models.StrategyParams{DelayMs: 5000},
	}
	outcome, err := s.Execute(context.Background(), sel, fc)

	require.NoError(t, err)
	require.Len(t, *slept, 1)
	assert.Equal(t, 5*time.Second, (*slept)[0])
	assert.Equal(t, 5*time.Second, outcome.Waited)
	assert.Equal(t, 1, s.ledger.Count("task-1"))
}

func TestExecuteDeferDoesNotSleep(t *testing.T) {
	s, slept := newTestSelector(nil)
	fc := FailureContext{TaskID: "task-1"}

	sel := models.Selection{
		Strategy: models.StrategyDefer,
		Params:   models.StrategyParams{DelayMs: 60000},
	}
	outcome, err := s.Execute(context.Background(), sel, fc)

	require.NoError(t, err)
	assert.Empty(t, *slept)
	assert.Contains(t, outcome.Instruction, "60000")
}

func TestExecutePublishesRecoveryEvent(t *testing.T) {
	events := bus.New()
	sub := events.Subscribe(bus.TopicRecoveryExec)
	defer events.Unsubscribe(sub)

	s, _ := newTestSelector(events)
	fc := FailureContext{AgentID: "agent-1"}

	sel := models.Selection{Strategy: models.StrategyFallback}
	_, err := s.Execute(context.Background(), sel, fc)
	require.NoError(t, err)

	event := <-sub.C
	payload, ok := event.Payload.(models.RecoveryExecuted)
	require.True(t, ok)
	assert.Equal(t, "agent-1", payload.Key)
	assert.Equal(t, models.StrategyFallback, payload.Strategy)
	assert.True(t, payload.Success)
}

type recordingArchiver struct {
	keys   []string
	events []models.AttemptEvent
}

func (a *recordingArchiver) RecordRecoveryAttempt(_ context.Context, key string, event models.AttemptEvent) error {
	a.keys = append(a.keys, key)
	a.events = append(a.events, event)
	return nil
}

func TestExecuteArchivesAttempts(t *testing.T) {
	s, _ := newTestSelector(nil)
	archive := &recordingArchiver{}
	s.SetArchiver(archive)
	fc := FailureContext{TaskID: "task-1"}

	sel := models.Selection{Strategy: models.StrategySkip}
	_, err := s.Execute(context.Background(), sel, fc)
	require.NoError(t, err)

	require.Len(t, archive.events, 1)
	assert.Equal(t, "task-1", archive.keys[0])
	assert.Equal(t, models.StrategySkip, archive.events[0].Strategy)
	assert.True(t, archive.events[0].Success)
}

func TestGlobalHistoryBounded(t *testing.T) {
	s, _ := newTestSelector(nil)
	fc := FailureContext{}

	sel := models.Selection{Strategy: models.StrategySkip}
	for i := 0; i < maxGlobalHistory+25; i++ {
		_, err := s.Execute(context.Background(), sel, fc)
		require.NoError(t, err)
	}

	assert.Len(t, s.GlobalHistory(), maxGlobalHistory)
}

func TestExecuteCancelledContext(t *testing.T) {
	ledger := NewLedger()
	s := NewSelector(ledger, nil, nil)
	fc := FailureContext{TaskID: "task-1"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sel := models.Selection{
		Strategy: models.StrategyRetry,
		Params:   models.StrategyParams{DelayMs: 60000},
	}
	_, err := s.Execute(ctx, sel, fc)

	require.Error(t, err)
	// The failed attempt is still recorded against the key.
	assert.Equal(t, 1, ledger.Count("task-1"))
}
