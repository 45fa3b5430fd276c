package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acctl/acctl/internal/api"
	"github.com/acctl/acctl/internal/state"
)

const testToken = "tok-valid"

type testEnv struct {
	srv     *httptest.Server
	store   *state.Store
	client  *api.Client
	manager *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	r := chi.NewRouter()
	r.Post("/api/authenticate", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		if body["username"] != "admin" || body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session":     testToken,
			"username":    "admin",
			"admin":       true,
			"lastchanged": "2023-01-01T00:00:00Z",
		})
	})
	r.Post("/api/list-full", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		if body["session"] != testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"list": map[string]any{}})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	store, err := state.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := api.NewClient(srv.URL, 5*time.Second, logger)
	manager := NewManager(client, store, logger)

	return &testEnv{srv: srv, store: store, client: client, manager: manager}
}

func TestLoginPersistsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.manager.Login(ctx, "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, "admin", sess.Username)
	assert.True(t, sess.IsAdmin)
	assert.Equal(t, testToken, sess.Token)

	rec, err := env.store.LoadSession(ctx, env.client.BaseURL())
	require.NoError(t, err)
	assert.Equal(t, "admin", rec.Username)
	assert.Equal(t, testToken, rec.Token)
	assert.True(t, rec.IsAdmin)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.Login(context.Background(), "admin", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, ok := env.manager.Current()
	assert.False(t, ok)
	_, err = env.store.LoadSession(context.Background(), env.client.BaseURL())
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lastChanged := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.store.SaveSession(ctx, &state.SessionRecord{
		ServerURL:   env.client.BaseURL(),
		Username:    "admin",
		IsAdmin:     true,
		LastChanged: lastChanged,
		Token:       testToken,
		SavedAt:     time.Now(),
	}))

	sess, ok, err := env.manager.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "admin", sess.Username)
	assert.True(t, sess.IsAdmin)
	assert.Equal(t, testToken, sess.Token)
	assert.True(t, sess.LastChanged.Equal(lastChanged))
}

func TestRestoreNothingPersisted(t *testing.T) {
	env := newTestEnv(t)

	_, ok, err := env.manager.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestorePartialRecordCountsAsLoggedOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A record with a token but no username must not restore.
	require.NoError(t, env.store.SaveSession(ctx, &state.SessionRecord{
		ServerURL: env.client.BaseURL(),
		Username:  "",
		Token:     testToken,
		SavedAt:   time.Now(),
	}))

	_, ok, err := env.manager.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// And the partial record is gone afterwards.
	_, err = env.store.LoadSession(ctx, env.client.BaseURL())
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestLogoutClearsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.Login(ctx, "admin", "secret")
	require.NoError(t, err)

	require.NoError(t, env.manager.Logout(ctx))

	sess, ok := env.manager.Current()
	assert.False(t, ok)
	assert.Empty(t, sess.Username)
	assert.Empty(t, sess.Token)

	_, err = env.store.LoadSession(ctx, env.client.BaseURL())
	assert.ErrorIs(t, err, state.ErrNotFound)

	// The username survives for prefilling the next login prompt.
	assert.Equal(t, "admin", env.manager.LastUsername(ctx))
}

func TestAuthFailureTearsDownSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.Login(ctx, "admin", "secret")
	require.NoError(t, err)

	// Simulate an expired token server-side by making a call with a stale
	// one through the shared client: the hook must tear the session down.
	_, err = env.client.ListFull(ctx, "tok-stale")
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	_, ok := env.manager.Current()
	assert.False(t, ok, "401 must transition to logged out")
	assert.Empty(t, env.manager.Token())

	_, err = env.store.LoadSession(ctx, env.client.BaseURL())
	assert.ErrorIs(t, err, state.ErrNotFound)

	assert.Equal(t, "admin", env.manager.LastUsername(ctx),
		"attempted username must be preserved for re-entry")
}

func TestTouchLastChanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.Login(ctx, "admin", "secret")
	require.NoError(t, err)

	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	env.manager.TouchLastChanged(ctx, stamp)

	sess, ok := env.manager.Current()
	require.True(t, ok)
	assert.True(t, sess.LastChanged.Equal(stamp))

	rec, err := env.store.LoadSession(ctx, env.client.BaseURL())
	require.NoError(t, err)
	assert.True(t, rec.LastChanged.Equal(stamp))
}

func TestLastUsernamePersistedAcrossManagers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.Login(ctx, "admin", "secret")
	require.NoError(t, err)
	require.NoError(t, env.manager.Logout(ctx))

	// A fresh manager over the same store still knows the hint.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client2 := api.NewClient(env.srv.URL, 5*time.Second, logger)
	manager2 := NewManager(client2, env.store, logger)
	assert.Equal(t, "admin", manager2.LastUsername(ctx))
}
