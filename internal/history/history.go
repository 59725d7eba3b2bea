package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists start/stop events of managed services in a local SQLite
// database (modernc.org/sqlite, CGO-free), so an operator can see what the
// supervisor did across runs.
type Store struct {
	db *sql.DB
}

// Event is one recorded lifecycle transition.
type Event struct {
	Name   string
	PID    int
	Kind   string // "start" or "stop"
	At     time.Time
	Detail string // exit error text for stops, empty otherwise
}

// Open opens (or creates) the event database at path, creating parent
// directories as needed. Use ":memory:" for an in-memory store.
func Open(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty history path")
	}
	if p != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// short concurrent locks happen when the status API reads during a run
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the event table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS service_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			kind TEXT NOT NULL,
			at TIMESTAMP NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_service_events_name ON service_events(name);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// RecordStart logs a successful service spawn.
func (s *Store) RecordStart(ctx context.Context, name string, pid int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_events(name, pid, kind, at, detail) VALUES(?, ?, 'start', ?, '');`,
		name, pid, time.Now().UTC())
	return err
}

// RecordStop logs an observed service exit. exitErr may be nil.
func (s *Store) RecordStop(ctx context.Context, name string, pid int, exitErr error) error {
	detail := ""
	if exitErr != nil {
		detail = exitErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_events(name, pid, kind, at, detail) VALUES(?, ?, 'stop', ?, ?);`,
		name, pid, time.Now().UTC(), detail)
	return err
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, pid, kind, at, detail FROM service_events ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Name, &e.PID, &e.Kind, &e.At, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
