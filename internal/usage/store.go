// Package usage records tool calls made through the bridge. Records are
// append-only and indexed by timestamp and tool for aggregation queries.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is a single tool call.
type Record struct {
	ID        string
	Timestamp time.Time
	Tool      string
	Duration  time.Duration
	IsError   bool
	Error     string // error or tool-reported error text; empty on success
}

// Summary holds aggregated call totals.
type Summary struct {
	TotalCalls    int
	ErrorCalls    int
	TotalDuration time.Duration
}

// Store is an append-only SQLite store for call records. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates a call store at the given database path. The schema
// is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_calls (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		tool        TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		is_error    INTEGER NOT NULL,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_timestamp ON tool_calls(timestamp);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists a call record. If rec.ID is empty, a UUIDv7 is
// generated. The context is used for cancellation only.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate call record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, timestamp, tool, duration_ms, is_error, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		formatTime(rec.Timestamp),
		rec.Tool,
		rec.Duration.Milliseconds(),
		rec.IsError,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// Summary returns aggregated totals for records within [start, end).
func (s *Store) Summary(start, end time.Time) (*Summary, error) {
	row := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(is_error), 0), COALESCE(SUM(duration_ms), 0)
		 FROM tool_calls
		 WHERE timestamp >= ? AND timestamp < ?`,
		formatTime(start),
		formatTime(end),
	)

	var sum Summary
	var ms int64
	if err := row.Scan(&sum.TotalCalls, &sum.ErrorCalls, &ms); err != nil {
		return nil, fmt.Errorf("query call summary: %w", err)
	}
	sum.TotalDuration = time.Duration(ms) * time.Millisecond
	return &sum, nil
}

// SummaryByTool returns per-tool aggregated totals for records within [start, end).
func (s *Store) SummaryByTool(start, end time.Time) (map[string]*Summary, error) {
	rows, err := s.db.Query(
		`SELECT tool, COUNT(*), COALESCE(SUM(is_error), 0), COALESCE(SUM(duration_ms), 0)
		 FROM tool_calls
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY tool`,
		formatTime(start),
		formatTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("query calls by tool: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var tool string
		var sum Summary
		var ms int64
		if err := rows.Scan(&tool, &sum.TotalCalls, &sum.ErrorCalls, &ms); err != nil {
			return nil, fmt.Errorf("scan calls by tool: %w", err)
		}
		sum.TotalDuration = time.Duration(ms) * time.Millisecond
		result[tool] = &sum
	}
	return result, rows.Err()
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, tool, duration_ms, is_error, COALESCE(error, '')
		 FROM tool_calls
		 ORDER BY timestamp DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var ts string
		var ms int64
		if err := rows.Scan(&rec.ID, &ts, &rec.Tool, &ms, &rec.IsError, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan recent call: %w", err)
		}
		if rec.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse call timestamp %q: %w", ts, err)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
