package recovery

import (
	"sync"
	"time"

	"github.com/stewardhq/steward/internal/models"
)

// GlobalKey is the ledger key used when a failure has neither a task
// nor an agent identity.
const GlobalKey = "global"

const (
	// staleAfter is how long an idle ledger entry survives. Entries
	// older than this are discarded on read, so a long-dormant task is
	// not permanently penalized for old failures.
	staleAfter = time.Hour

	// maxAttemptHistory bounds the per-key attempt history.
	maxAttemptHistory = 5
)

// attemptRecord is the per-key counter state.
type attemptRecord struct {
	count       int
	lastAttempt time.Time
	history     []models.AttemptEvent
}

// Ledger counts recovery attempts per task/agent key. It is the
// authoritative source for the attempt-exhaustion decision; the
// per-execution counter on Execution is observability only.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*attemptRecord
	clock   func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]*attemptRecord),
		clock:   time.Now,
	}
}

// Key derives the attempt-counting identity: taskID if set, else
// agentID, else the global fallback.
func Key(taskID, agentID string) string {
	if taskID != "" {
		return taskID
	}
	if agentID != "" {
		return agentID
	}
	return GlobalKey
}

// Count returns the current attempt count for a key. An entry whose
// last attempt is older than one hour is treated as stale: it is
// deleted and zero is returned.
func (l *Ledger) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.entries[key]
	if !ok {
		return 0
	}
	if l.clock().Sub(rec.lastAttempt) > staleAfter {
		delete(l.entries, key)
		return 0
	}
	return rec.count
}

// Record registers one recovery attempt for a key.
func (l *Ledger) Record(key string, strategy models.Strategy, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	rec, ok := l.entries[key]
	if !ok || now.Sub(rec.lastAttempt) > staleAfter {
		rec = &attemptRecord{}
		l.entries[key] = rec
	}

	rec.count++
	rec.lastAttempt = now
	rec.history = append(rec.history, models.AttemptEvent{
		Timestamp: now,
		Strategy:  strategy,
		Success:   success,
	})
	if len(rec.history) > maxAttemptHistory {
		rec.history = rec.history[len(rec.history)-maxAttemptHistory:]
	}
}

// History returns a copy of the bounded attempt history for a key.
func (l *Ledger) History(key string) []models.AttemptEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.entries[key]
	if !ok {
		return nil
	}
	out := make([]models.AttemptEvent, len(rec.history))
	copy(out, rec.history)
	return out
}

// Reset clears the entry for one key.
func (l *Ledger) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// ClearAll wipes every entry.
func (l *Ledger) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*attemptRecord)
}
