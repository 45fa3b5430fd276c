// Package state persists the console's local state: at most one session
// record per server URL, plus a small key/value settings table. Everything
// lives in a single SQLite file under the data directory; a session record
// is written and cleared in one transaction, so a crash can never leave a
// partially persisted session behind.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SessionRecord is the persisted form of an authenticated session.
type SessionRecord struct {
	ServerURL   string    `db:"server_url"`
	Username    string    `db:"username"`
	IsAdmin     bool      `db:"is_admin"`
	LastChanged time.Time `db:"last_changed"`
	Token       string    `db:"token"`
	SavedAt     time.Time `db:"saved_at"`
}

// Store manages the console state database. Pass an empty data dir to
// NewStore for an in-memory database (tests).
type Store struct {
	db *sqlx.DB
}

// NewStore opens (and if necessary creates) the state database.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "state.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate state database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession replaces the session record for rec.ServerURL atomically.
func (s *Store) SaveSession(ctx context.Context, rec *SessionRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE server_url = ?`, rec.ServerURL); err != nil {
		return fmt.Errorf("clear old session: %w", err)
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO sessions (server_url, username, is_admin, last_changed, token, saved_at)
		VALUES (:server_url, :username, :is_admin, :last_changed, :token, :saved_at)`,
		rec)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return tx.Commit()
}

// LoadSession returns the session record for serverURL, or ErrNotFound.
func (s *Store) LoadSession(ctx context.Context, serverURL string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM sessions WHERE server_url = ?`, serverURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &rec, nil
}

// ClearSession removes the session record for serverURL. Clearing a session
// that does not exist is not an error.
func (s *Store) ClearSession(ctx context.Context, serverURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE server_url = ?`, serverURL); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SetSetting stores a key/value pair, overwriting any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// GetSetting returns the value stored under key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}
