package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	mode         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	event_type TEXT NOT NULL,
	timestamp  DATETIME NOT NULL,
	event_data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
`

// Journal records sessions and their emitted events for the history API.
type Journal struct {
	db *sql.DB
}

// NewJournal opens the journal database. An empty dsn selects the in-memory
// database; a file path may be supplied for debugging.
func NewJournal(dsn string) (*Journal, error) {
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// With :memory:, a pooled second connection would open a distinct
	// empty database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// RecordSession upserts a session row and returns its current state.
func (j *Journal) RecordSession(ctx context.Context, id, title, mode string) (*SessionRecord, error) {
	query := `
		INSERT INTO sessions (id, title, mode)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, mode = excluded.mode
		RETURNING id, title, mode, status, created_at, completed_at
	`

	var record SessionRecord
	err := j.db.QueryRowContext(ctx, query, id, title, mode).Scan(
		&record.ID, &record.Title, &record.Mode, &record.Status,
		&record.CreatedAt, &record.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record session: %w", err)
	}
	return &record, nil
}

// CompleteSession marks a session finished with the given status.
func (j *Journal) CompleteSession(ctx context.Context, id, status string) error {
	query := `
		UPDATE sessions
		SET status = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := j.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// GetSession fetches one session row.
func (j *Journal) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := `
		SELECT id, title, mode, status, created_at, completed_at
		FROM sessions
		WHERE id = ?
	`

	var record SessionRecord
	err := j.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.Title, &record.Mode, &record.Status,
		&record.CreatedAt, &record.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &record, nil
}

// ListSessions returns a page of sessions, newest first, plus the total count.
func (j *Journal) ListSessions(ctx context.Context, limit, offset int) ([]SessionRecord, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := `
		SELECT id, title, mode, status, created_at, completed_at
		FROM sessions
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := j.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var record SessionRecord
		if err := rows.Scan(
			&record.ID, &record.Title, &record.Mode, &record.Status,
			&record.CreatedAt, &record.CompletedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return records, total, nil
}

// RecordEvent journals one event envelope under its session.
func (j *Journal) RecordEvent(ctx context.Context, sessionID string, event *events.AgentEvent) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO events (session_id, event_type, timestamp, event_data)
		VALUES (?, ?, ?, ?)
	`

	_, err = j.db.ExecContext(ctx, query, sessionID, string(event.Type), event.Timestamp, string(eventData))
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// EventsBySession returns events for a session with id greater than afterID,
// oldest first. Pass afterID 0 for the full history.
func (j *Journal) EventsBySession(ctx context.Context, sessionID string, afterID int64, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT id, session_id, event_type, timestamp, event_data
		FROM events
		WHERE session_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := j.db.QueryContext(ctx, query, sessionID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var record EventRecord
		var payload string
		if err := rows.Scan(&record.ID, &record.SessionID, &record.EventType, &record.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		record.EventData = json.RawMessage(payload)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return records, nil
}

// Ping verifies the connection is alive.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close shuts the database down.
func (j *Journal) Close() error {
	return j.db.Close()
}
