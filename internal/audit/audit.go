// Package audit records destructive mailbox commands in a SQLite table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EventType represents the type of audit event
type EventType string

const (
	EventMarkRead   EventType = "imap.mark_read"
	EventMarkUnread EventType = "imap.mark_unread"
	EventDelete     EventType = "imap.delete"
	EventMove       EventType = "imap.move"
)

// Event represents an audit log entry
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`   // Account username the command ran as
	Action    EventType `json:"action"`  // Type of action
	Mailbox   string    `json:"mailbox"` // Mailbox selected when the command ran
	Details   string    `json:"details"` // JSON with message ids and targets
	Sandbox   bool      `json:"sandbox"`
}

// Logger handles audit logging. A nil *Logger discards every event.
type Logger struct {
	db *sql.DB
}

// Open opens or creates the audit database at path.
func Open(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	l, err := NewLogger(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewLogger creates the audit table on db.
func NewLogger(db *sql.DB) (*Logger, error) {
	if db == nil {
		return nil, nil
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			mailbox TEXT,
			details TEXT,
			sandbox INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	return &Logger{db: db}, nil
}

// Close closes the underlying database.
func (l *Logger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Log records an audit event
func (l *Logger) Log(ctx context.Context, actor string, action EventType, mailbox string, details map[string]any, sandbox bool) error {
	if l == nil || l.db == nil {
		return nil
	}

	var detailsJSON string
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			detailsJSON = "{}"
		} else {
			detailsJSON = string(data)
		}
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (actor, action, mailbox, details, sandbox) VALUES (?, ?, ?, ?, ?)`,
		actor, string(action), mailbox, detailsJSON, sandbox,
	)
	return err
}

// QueryFilter defines filters for querying audit logs
type QueryFilter struct {
	Actor   string
	Action  EventType
	Mailbox string
	Limit   int
}

func (f QueryFilter) where() (string, []any) {
	clause := " WHERE 1=1"
	var args []any
	if f.Actor != "" {
		clause += " AND actor = ?"
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		clause += " AND action = ?"
		args = append(args, string(f.Action))
	}
	if f.Mailbox != "" {
		clause += " AND mailbox = ?"
		args = append(args, f.Mailbox)
	}
	return clause, args
}

// Query retrieves audit events, newest first.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}

	where, args := filter.where()
	query := `SELECT id, timestamp, actor, action, mailbox, details, sandbox FROM audit_log` + where +
		" ORDER BY id DESC LIMIT ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var mailbox, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Action, &mailbox, &details, &e.Sandbox); err != nil {
			return nil, err
		}
		e.Mailbox = mailbox.String
		e.Details = details.String
		events = append(events, e)
	}

	return events, rows.Err()
}

// Count returns the number of audit events matching the filter
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}

	where, args := filter.where()
	var count int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&count)
	return count, err
}
