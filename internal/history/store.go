// Package history provides the durable archive of completed executions
// and recovery attempts, backed by SQLite. The in-memory ring in the
// executor remains the fast path; this store serves the stats and
// history queries that survive process restarts.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stewardhq/steward/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Stats aggregates archived executions.
type Stats struct {
	Total       int            `json:"total"`
	Succeeded   int            `json:"succeeded"`
	SuccessRate float64        `json:"success_rate"`
	ByCategory  map[string]int `json:"by_category"`
	ByStrategy  map[string]int `json:"by_strategy"`
}

// Store manages the SQLite archive.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the archive database at dbPath.
// ":memory:" is supported for tests.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	// busy_timeout first so subsequent statements wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry retries a statement with exponential backoff on
// "database is locked" errors, which can occur during concurrent
// initialization of the same file.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordExecution archives one completed execution. Re-recording the
// same execution ID replaces the previous row.
func (s *Store) RecordExecution(ctx context.Context, entry models.HistoryEntry) error {
	query := `INSERT OR REPLACE INTO executions
		(id, tool_id, agent_id, started_at, completed_at, duration_ms, success, recovery_attempts, error_category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var completedAt interface{}
	if entry.CompletedAt != nil {
		completedAt = *entry.CompletedAt
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.ToolID, entry.AgentID,
		entry.StartedAt, completedAt, entry.DurationMs,
		entry.Success, entry.RecoveryAttempts, entry.ErrorCategory)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// RecordRecoveryAttempt archives one recovery attempt for the
// by-strategy stats.
func (s *Store) RecordRecoveryAttempt(ctx context.Context, key string, event models.AttemptEvent) error {
	query := `INSERT INTO recovery_attempts (attempt_key, strategy, success, attempted_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, string(event.Strategy), event.Success, event.Timestamp)
	if err != nil {
		return fmt.Errorf("record recovery attempt: %w", err)
	}
	return nil
}

// Recent returns the most recently recorded executions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, tool_id, agent_id, started_at, completed_at, duration_ms, success, recovery_attempts, error_category
		FROM executions ORDER BY recorded_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent executions: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		var completedAt sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.ToolID, &entry.AgentID,
			&entry.StartedAt, &completedAt, &entry.DurationMs,
			&entry.Success, &entry.RecoveryAttempts, &entry.ErrorCategory); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			entry.CompletedAt = &t
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats aggregates success rate, per-category failure counts, and
// per-strategy recovery counts across the archive.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByCategory: make(map[string]int),
		ByStrategy: make(map[string]int),
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) FROM executions`)
	if err := row.Scan(&stats.Total, &stats.Succeeded); err != nil {
		return nil, fmt.Errorf("aggregate executions: %w", err)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT error_category, COUNT(*) FROM executions WHERE error_category != '' GROUP BY error_category`)
	if err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		stats.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	strategyRows, err := s.db.QueryContext(ctx,
		`SELECT strategy, COUNT(*) FROM recovery_attempts GROUP BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("aggregate strategies: %w", err)
	}
	defer strategyRows.Close()
	for strategyRows.Next() {
		var strategy string
		var count int
		if err := strategyRows.Scan(&strategy, &count); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		stats.ByStrategy[strategy] = count
	}
	return stats, strategyRows.Err()
}

// Prune removes executions recorded more than keepDays ago. keepDays
// of zero disables pruning.
func (s *Store) Prune(ctx context.Context, keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -keepDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	return res.RowsAffected()
}
