package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/acctl/acctl/internal/api"
)

// Errors reported before any request is issued.
var (
	// ErrPasswordMismatch means the password and its confirmation differ
	// (or the password is empty). The request is never sent in that case.
	ErrPasswordMismatch = errors.New("password and confirmation do not match")

	// ErrUnknownUser means the username is not present in the current
	// snapshot.
	ErrUnknownUser = errors.New("unknown user")
)

// SessionSource is what the syncer needs from the session manager: the token
// for requests, the logged-in username to detect self-updates, and the hook
// to refresh the persisted credential timestamp after one.
type SessionSource interface {
	Token() string
	CurrentUsername() string
	TouchLastChanged(ctx context.Context, t time.Time)
}

// Syncer maintains the directory snapshot and performs the mutating
// operations, re-fetching the full listing after each one. Overlapping
// refreshes are allowed; whichever response resolves last wins the snapshot,
// deterministically in completion order.
type Syncer struct {
	client   *api.Client
	sessions SessionSource
	logger   *slog.Logger

	mu   sync.Mutex
	snap Snapshot
}

// NewSyncer creates a Syncer bound to the given client and session source.
func NewSyncer(client *api.Client, sessions SessionSource, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &Syncer{client: client, sessions: sessions, logger: logger}
}

// Snapshot returns the snapshot left by the last completed refresh.
func (s *Syncer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Refresh fetches the full directory listing and replaces the snapshot.
// There is no guard against out-of-order completion of concurrent calls;
// the last response to arrive is the one that stays.
func (s *Syncer) Refresh(ctx context.Context) (Snapshot, error) {
	list, err := s.client.ListFull(ctx, s.sessions.Token())
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch user list: %w", err)
	}
	snap := snapshotFromList(list, time.Now())

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.logger.Debug("directory refreshed", "users", len(snap.Users))
	return snap, nil
}

// AddUser creates an account after checking the password confirmation
// locally; on mismatch no request is issued. Success triggers a re-sync.
// Returns the username the service echoed back.
func (s *Syncer) AddUser(ctx context.Context, name, password, confirm string, admin bool) (string, error) {
	if password == "" || password != confirm {
		return "", ErrPasswordMismatch
	}
	username, err := s.client.Add(ctx, s.sessions.Token(), name, password, admin)
	if err != nil {
		return "", err
	}
	if _, err := s.Refresh(ctx); err != nil {
		return username, err
	}
	return username, nil
}

// RemoveUser deletes an account and re-syncs. Returns the username the
// service echoed back.
func (s *Syncer) RemoveUser(ctx context.Context, name string) (string, error) {
	username, err := s.client.Remove(ctx, s.sessions.Token(), name)
	if err != nil {
		return "", err
	}
	if _, err := s.Refresh(ctx); err != nil {
		return username, err
	}
	return username, nil
}

// SetRole sets the admin flag to exactly the given state and re-syncs.
func (s *Syncer) SetRole(ctx context.Context, name string, admin bool) error {
	if err := s.client.SetAdmin(ctx, s.sessions.Token(), name, admin); err != nil {
		return err
	}
	_, err := s.Refresh(ctx)
	return err
}

// ToggleRole flips the role of an account. The new state is the negation of
// the role found in the current snapshot at call time, not of a value
// captured when the table was rendered.
func (s *Syncer) ToggleRole(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	rec, ok := s.snap.Lookup(name)
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	newState := !rec.IsAdmin
	if err := s.SetRole(ctx, name, newState); err != nil {
		return false, err
	}
	return newState, nil
}

// UpdatePassword changes an account's password after checking the
// confirmation locally. When the target is the logged-in user, the session
// manager is told to refresh its stored credential timestamp. Success
// triggers a re-sync.
func (s *Syncer) UpdatePassword(ctx context.Context, name, newPassword, confirm string) (string, error) {
	if newPassword == "" || newPassword != confirm {
		return "", ErrPasswordMismatch
	}
	username, err := s.client.UpdatePassword(ctx, s.sessions.Token(), name, newPassword)
	if err != nil {
		return "", err
	}
	if username == s.sessions.CurrentUsername() {
		s.sessions.TouchLastChanged(ctx, time.Now())
	}
	if _, err := s.Refresh(ctx); err != nil {
		return username, err
	}
	return username, nil
}
