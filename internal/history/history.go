// Package history records resolved items in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jmylchreest/deckd/internal/model"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("history store closed")

// schemaVersion is the latest schema version known to migrate.
const schemaVersion = 1

// timeFormat has fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one resolved item.
type Entry struct {
	ID         string    `json:"id" yaml:"id"`
	Owner      string    `json:"owner" yaml:"owner"`
	Kind       string    `json:"kind" yaml:"kind"`
	Summary    string    `json:"summary" yaml:"summary"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	Decision   string    `json:"decision,omitempty" yaml:"decision,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	ResolvedAt time.Time `json:"resolved_at" yaml:"resolved_at"`
}

// Store is a SQLite-backed resolution history.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
	now    func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS resolutions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			owner TEXT NOT NULL,
			kind TEXT NOT NULL,
			summary TEXT NOT NULL,
			outcome TEXT NOT NULL,
			decision TEXT NOT NULL,
			created_at TEXT NOT NULL,
			resolved_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create resolutions table: %w", err)
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_resolutions_resolved ON resolutions(resolved_at);`); err != nil {
		return fmt.Errorf("failed to create resolutions index: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?);`, schemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// Record stores the result of a resolved item.
func (s *Store) Record(ctx context.Context, info model.Info, res model.Result) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolutions (id, owner, kind, summary, outcome, decision, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID,
		info.Owner,
		info.Kind,
		info.Summary,
		res.Outcome.String(),
		describe(res),
		info.CreatedAt.UTC().Format(timeFormat),
		s.now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first. A limit of zero or
// less returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, kind, summary, outcome, decision, created_at, resolved_at
		 FROM resolutions ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created, resolved string
		if err := rows.Scan(&e.ID, &e.Owner, &e.Kind, &e.Summary, &e.Outcome, &e.Decision, &created, &resolved); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeFormat, created)
		e.ResolvedAt, _ = time.Parse(timeFormat, resolved)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries resolved more than retention ago and returns how
// many were removed. A retention of zero keeps everything.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	if retention <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-retention).UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, `DELETE FROM resolutions WHERE resolved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune resolutions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// describe renders the human decision as a short string.
func describe(res model.Result) string {
	d := res.Decision
	switch {
	case d.Choice != nil:
		return d.Choice.Label
	case d.Cancelled:
		return "cancelled"
	case d.Dismissed:
		return "dismissed"
	case d.Answers != nil:
		data, err := json.Marshal(d.Answers)
		if err != nil {
			return "answered"
		}
		return string(data)
	default:
		return ""
	}
}
