package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/acctl/acctl/internal/api"
	"github.com/acctl/acctl/internal/state"
)

// Manager is the single owner of the session for one server. It is safe for
// concurrent use; all transitions happen under its mutex. Constructing a
// Manager registers it as the API client's auth-failure hook, so a 401 on
// any session-carrying call tears the session down no matter which caller
// issued the request.
type Manager struct {
	client *api.Client
	store  *state.Store
	logger *slog.Logger

	mu           sync.Mutex
	current      Session
	lastUsername string // preserved across teardown for login prefill
}

// NewManager creates a Manager bound to the given client and state store.
func NewManager(client *api.Client, store *state.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	m := &Manager{client: client, store: store, logger: logger}
	client.SetAuthFailureHook(m.handleAuthFailure)
	return m
}

// Current returns a copy of the session and whether it is authenticated.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current.LoggedIn()
}

// Token returns the current session token, or an empty string when logged
// out. It satisfies the directory syncer's session source.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Token
}

// CurrentUsername returns the logged-in username, or an empty string.
func (m *Manager) CurrentUsername() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Username
}

// LastUsername returns the username to prefill into the next login prompt:
// the one from the most recent teardown, falling back to the persisted hint.
func (m *Manager) LastUsername(ctx context.Context) string {
	m.mu.Lock()
	name := m.lastUsername
	m.mu.Unlock()
	if name != "" {
		return name
	}
	name, err := m.store.GetSetting(ctx, m.prefillKey())
	if err != nil {
		return ""
	}
	return name
}

// Restore loads the persisted session record. It trusts the record as read
// and performs no server round-trip; an expired token will surface as a 401
// on the first real call. A record missing either the username or the token
// counts as logged out and is cleared from the store.
func (m *Manager) Restore(ctx context.Context) (Session, bool, error) {
	rec, err := m.store.LoadSession(ctx, m.client.BaseURL())
	if errors.Is(err, state.ErrNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("restore session: %w", err)
	}

	sess := Session{
		Username:    rec.Username,
		IsAdmin:     rec.IsAdmin,
		LastChanged: rec.LastChanged,
		Token:       rec.Token,
	}
	if !sess.LoggedIn() {
		// Partial record, should not happen with atomic writes.
		m.logger.Warn("clearing partial session record", "server", m.client.BaseURL())
		if err := m.store.ClearSession(ctx, m.client.BaseURL()); err != nil {
			m.logger.Warn("clear partial session record", "error", err)
		}
		return Session{}, false, nil
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return sess, true, nil
}

// Login authenticates against the service and, on success, installs and
// persists the session. A 401 maps to ErrInvalidCredentials; every other
// failure is returned as-is. If persisting fails the in-memory session is
// kept (usable for this process) and the error is logged, not returned.
func (m *Manager) Login(ctx context.Context, username, password string) (Session, error) {
	result, err := m.client.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("login: %w", err)
	}

	sess := Session{
		Username:    result.Username,
		IsAdmin:     result.IsAdmin,
		LastChanged: result.LastChanged,
		Token:       result.Token,
	}

	m.mu.Lock()
	m.current = sess
	m.lastUsername = sess.Username
	m.mu.Unlock()

	if err := m.persist(ctx, sess); err != nil {
		m.logger.Warn("persist session", "error", err)
	}
	m.rememberUsername(ctx, sess.Username)

	m.logger.Info("logged in", "username", sess.Username, "admin", sess.IsAdmin)
	return sess, nil
}

// Logout clears the in-memory session and the persisted record. The username
// is remembered for prefilling the next login prompt.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	username := m.current.Username
	m.current = Session{}
	if username != "" {
		m.lastUsername = username
	}
	m.mu.Unlock()

	if err := m.store.ClearSession(ctx, m.client.BaseURL()); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	m.logger.Info("logged out", "username", username)
	return nil
}

// TouchLastChanged updates the session's password-change timestamp after the
// logged-in user's own password was updated, and re-persists the record.
// This is the console's stand-in for poking the browser credential manager.
func (m *Manager) TouchLastChanged(ctx context.Context, t time.Time) {
	m.mu.Lock()
	if !m.current.LoggedIn() {
		m.mu.Unlock()
		return
	}
	m.current.LastChanged = t
	sess := m.current
	m.mu.Unlock()

	if err := m.persist(ctx, sess); err != nil {
		m.logger.Warn("persist session", "error", err)
	}
}

// handleAuthFailure is the 401 interceptor. It runs for every
// session-carrying call that comes back unauthorized and performs the same
// teardown as Logout.
func (m *Manager) handleAuthFailure() {
	ctx := context.Background()

	m.mu.Lock()
	username := m.current.Username
	m.current = Session{}
	if username != "" {
		m.lastUsername = username
	}
	m.mu.Unlock()

	if err := m.store.ClearSession(ctx, m.client.BaseURL()); err != nil {
		m.logger.Warn("clear session after auth failure", "error", err)
	}
	m.rememberUsername(ctx, username)
	m.logger.Warn("session invalidated by authentication failure", "username", username)
}

func (m *Manager) persist(ctx context.Context, sess Session) error {
	return m.store.SaveSession(ctx, &state.SessionRecord{
		ServerURL:   m.client.BaseURL(),
		Username:    sess.Username,
		IsAdmin:     sess.IsAdmin,
		LastChanged: sess.LastChanged,
		Token:       sess.Token,
		SavedAt:     time.Now().UTC(),
	})
}

func (m *Manager) rememberUsername(ctx context.Context, username string) {
	if username == "" {
		return
	}
	if err := m.store.SetSetting(ctx, m.prefillKey(), username); err != nil {
		m.logger.Warn("remember username", "error", err)
	}
}

func (m *Manager) prefillKey() string {
	return "last_username." + m.client.BaseURL()
}
