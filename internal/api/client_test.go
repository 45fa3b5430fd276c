package api

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
)

const testToken = "tok-valid"

// newMockService builds a minimal account service: one admin session token,
// a fixed directory, JSON error bodies like the real thing.
func newMockService(t *testing.T) *httptest.Server {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	checkSession := func(w http.ResponseWriter, body map[string]any) bool {
		if body["session"] != testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
			return false
		}
		return true
	}

	decode := func(t *testing.T, r *http.Request) map[string]any {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		return body
	}

	r := chi.NewRouter()
	r.Post("/api/authenticate", func(w http.ResponseWriter, req *http.Request) {
		body := decode(t, req)
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
		body := decode(t, req)
		if !checkSession(w, body) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"list": map[string]any{
				"alice": map[string]any{
					"admin": true, "lastchanged": "2023-01-01T00:00:00Z",
					"valid": true, "supported": true,
					"formatid": "bcrypt", "formatparams": "",
				},
			},
		})
	})
	r.Post("/api/add", func(w http.ResponseWriter, req *http.Request) {
		body := decode(t, req)
		if !checkSession(w, body) {
			return
		}
		if body["username"] == "alice" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user 'alice' already exists"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"username": body["username"], "admin": body["admin"]})
	})
	r.Post("/api/remove", func(w http.ResponseWriter, req *http.Request) {
		body := decode(t, req)
		if !checkSession(w, body) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"username": body["username"]})
	})
	r.Post("/api/set-admin", func(w http.ResponseWriter, req *http.Request) {
		body := decode(t, req)
		if !checkSession(w, body) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	r.Post("/api/update", func(w http.ResponseWriter, req *http.Request) {
		body := decode(t, req)
		if old, ok := body["oldpassword"]; ok && old != "" {
			if old != "secret" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"username": body["username"]})
			return
		}
		if !checkSession(w, body) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"username": body["username"]})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL, 5*time.Second, logger)
}

func TestAuthenticate(t *testing.T) {
	srv := newMockService(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	result, err := c.Authenticate(ctx, "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, testToken, result.Token)
	assert.Equal(t, "admin", result.Username)
	assert.True(t, result.IsAdmin)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), result.LastChanged.UTC())
}

func TestAuthenticateRejected(t *testing.T) {
	srv := newMockService(t)
	c := newTestClient(t, srv)

	hookFired := false
	c.SetAuthFailureHook(func() { hookFired = true })

	_, err := c.Authenticate(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, hookFired, "credential rejection must not fire the auth-failure hook")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "authentication failed", apiErr.Message)
}

func TestAuthFailureHookOnSessionCalls(t *testing.T) {
	srv := newMockService(t)
	c := newTestClient(t, srv)

	fired := 0
	c.SetAuthFailureHook(func() { fired++ })

	_, err := c.ListFull(context.Background(), "tok-stale")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, fired)

	_, err = c.Remove(context.Background(), "tok-stale", "bob")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 2, fired, "every session-carrying call applies the same 401 policy")
}

func TestServerErrorString(t *testing.T) {
	srv := newMockService(t)
	c := newTestClient(t, srv)

	_, err := c.Add(context.Background(), testToken, "alice", "pw", false)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "user 'alice' already exists", apiErr.Message)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestErrorFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "", http.StatusBadGateway) // empty body, no error field
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv)
	_, err := c.ListFull(context.Background(), testToken)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Contains(t, apiErr.Message, "502")
}

func TestListFull(t *testing.T) {
	srv := newMockService(t)
	c := newTestClient(t, srv)

	list, err := c.ListFull(context.Background(), testToken)
	require.NoError(t, err)
	require.Len(t, list, 1)

	alice, ok := list["alice"]
	require.True(t, ok)
	assert.True(t, alice.IsAdmin)
	assert.True(t, alice.IsValid)
	assert.True(t, alice.IsSupported)
	assert.Equal(t, "bcrypt", alice.FormatID)
}

func TestUpdatePasswordWithOld(t *testing.T) {
	srv := newMockService(t)
	c := newTestClient(t, srv)

	fired := false
	c.SetAuthFailureHook(func() { fired = true })

	err := c.UpdatePasswordWithOld(context.Background(), "admin", "wrong-old", "newpw")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, fired, "old-password rejection is a credentials error, not a session teardown")

	require.NoError(t, c.UpdatePasswordWithOld(context.Background(), "admin", "secret", "newpw"))
}

func TestForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "only admins are allowed to list users"})
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv)
	_, err := c.ListFull(context.Background(), testToken)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
