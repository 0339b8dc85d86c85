package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func entryFor(id string, success bool, category string) models.HistoryEntry {
	started := time.Now().Add(-time.Minute)
	completed := time.Now()
	return models.HistoryEntry{
		ID:            id,
		ToolID:        "grep",
		AgentID:       "agent-1",
		StartedAt:     started,
		CompletedAt:   &completed,
		DurationMs:    60000,
		Success:       success,
		ErrorCategory: category,
	}
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-1", true, "")))
	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-2", false, "network")))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "exec-2", entries[0].ID)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "network", entries[0].ErrorCategory)
	require.NotNil(t, entries[0].CompletedAt)
}

func TestRecordSameIDReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-1", false, "network")))
	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-1", true, "")))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
}

func TestRecentLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordExecution(ctx, entryFor("exec-"+string(rune('a'+i)), true, "")))
	}

	entries, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecordNilCompletedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := entryFor("exec-1", false, "process")
	entry.CompletedAt = nil
	require.NoError(t, store.RecordExecution(ctx, entry))

	entries, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].CompletedAt)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-1", true, "")))
	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-2", true, "")))
	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-3", false, "network")))
	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-4", false, "network")))
	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-5", false, "rateLimit")))

	require.NoError(t, store.RecordRecoveryAttempt(ctx, "task-1", models.AttemptEvent{
		Timestamp: time.Now(), Strategy: models.StrategyRetry, Success: true,
	}))
	require.NoError(t, store.RecordRecoveryAttempt(ctx, "task-1", models.AttemptEvent{
		Timestamp: time.Now(), Strategy: models.StrategyRetry, Success: false,
	}))
	require.NoError(t, store.RecordRecoveryAttempt(ctx, "task-2", models.AttemptEvent{
		Timestamp: time.Now(), Strategy: models.StrategyFallback, Success: true,
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Succeeded)
	assert.InDelta(t, 0.4, stats.SuccessRate, 0.001)
	assert.Equal(t, 2, stats.ByCategory["network"])
	assert.Equal(t, 1, stats.ByCategory["rateLimit"])
	assert.Equal(t, 2, stats.ByStrategy["retry"])
	assert.Equal(t, 1, stats.ByStrategy["fallback"])
}

func TestStatsEmptyArchive(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.SuccessRate)
	assert.Empty(t, stats.ByCategory)
}

func TestPruneDisabledForZeroKeepDays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-1", true, "")))

	removed, err := store.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPruneKeepsRecentRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordExecution(ctx, entryFor("exec-1", true, "")))

	// A fresh row is inside any retention window.
	removed, err := store.Prune(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordExecution(context.Background(), entryFor("exec-1", true, "")))
}
