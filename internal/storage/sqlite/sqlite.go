package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nosleep/internal/idgen"
	"nosleep/internal/lockctl"
	"nosleep/internal/storage"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements storage.Journal using SQLite
type SQLiteStorage struct {
	db       *sql.DB
	timezone *time.Location
}

// New creates a new SQLite journal
func New(dbPath string, timezone *time.Location) (*SQLiteStorage, error) {
	if timezone == nil {
		timezone = time.UTC // Fallback to UTC
	}

	// SQLite will store times as UTC strings, we'll convert in app layer
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// the countdown goroutine and API handlers write concurrently
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &SQLiteStorage{
		db:       db,
		timezone: timezone,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS lock_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			schedule_id TEXT,
			remaining_ms INTEGER NOT NULL DEFAULT 0,
			detail TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_lock_events_created ON lock_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_lock_events_schedule ON lock_events(schedule_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent appends an event, assigning an ID and timestamp when missing
func (s *SQLiteStorage) RecordEvent(ctx context.Context, event *lockctl.Event) error {
	if event.Kind == "" {
		return errors.New("event kind is required")
	}
	if event.ID == "" {
		event.ID = idgen.NewEvent()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lock_events (id, kind, schedule_id, remaining_ms, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, string(event.Kind), nullString(event.ScheduleID), event.Remaining.Milliseconds(),
		nullString(event.Detail), event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*lockctl.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, schedule_id, remaining_ms, detail, created_at
		FROM lock_events WHERE id = ?
	`, id)

	event, err := s.scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ListEvents returns matching events, newest first
func (s *SQLiteStorage) ListEvents(ctx context.Context, filter storage.EventFilter) ([]*lockctl.Event, error) {
	var where []string
	var args []any

	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.ScheduleID != "" {
		where = append(where, "schedule_id = ?")
		args = append(args, filter.ScheduleID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	query := `SELECT id, kind, schedule_id, remaining_ms, detail, created_at FROM lock_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*lockctl.Event
	for rows.Next() {
		event, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// PruneEvents deletes events older than before and reports how many were removed
func (s *SQLiteStorage) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM lock_events WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStorage) scanEvent(row rowScanner) (*lockctl.Event, error) {
	var event lockctl.Event
	var kind string
	var scheduleID, detail sql.NullString
	var remainingMs int64

	if err := row.Scan(&event.ID, &kind, &scheduleID, &remainingMs, &detail, &event.CreatedAt); err != nil {
		return nil, err
	}

	event.Kind = lockctl.EventKind(kind)
	event.ScheduleID = scheduleID.String
	event.Detail = detail.String
	event.Remaining = time.Duration(remainingMs) * time.Millisecond
	event.CreatedAt = event.CreatedAt.In(s.timezone)
	return &event, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Ensure SQLiteStorage implements storage.Journal
var _ storage.Journal = (*SQLiteStorage)(nil)
