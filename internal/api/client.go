// Package api implements the JSON HTTP client for the user-account service.
// Every operation goes through a single request wrapper that attaches a
// request ID, logs the exchange, maps non-2xx responses to typed errors, and
// applies the authentication-failure policy uniformly: a 401 on any
// session-carrying call fires the client's auth-failure hook exactly once
// before the error is returned.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	endpointAuthenticate = "/api/authenticate"
	endpointListFull     = "/api/list-full"
	endpointList         = "/api/list"
	endpointAdd          = "/api/add"
	endpointRemove       = "/api/remove"
	endpointUpdate       = "/api/update"
	endpointSetAdmin     = "/api/set-admin"
)

// maxResponseBytes bounds how much of a response body we are willing to read.
const maxResponseBytes = 1 << 20

// Client talks to one account service instance. It is safe for concurrent
// use; the zero value is not usable, construct it with NewClient.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger

	// onAuthFailure runs whenever a session-carrying call gets a 401.
	// Credential checks (authenticate, old-password update) never trigger
	// it: a rejected password is not a torn-down session.
	onAuthFailure func()
}

// NewClient creates a client for the service at baseURL. A zero timeout
// means no per-request deadline beyond the caller's context.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetAuthFailureHook registers fn to run on every 401 from a session-carrying
// call. The session manager uses this to tear itself down no matter which
// operation hit the expired token.
func (c *Client) SetAuthFailureHook(fn func()) {
	c.onAuthFailure = fn
}

// BaseURL returns the service base URL the client was constructed with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authenticate exchanges credentials for a session token. A 401 means the
// username and/or password were wrong; it does not fire the auth-failure
// hook.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	req := authenticateRequest{Username: username, Password: password}
	var resp authenticateResponse
	if err := c.post(ctx, endpointAuthenticate, req, &resp, false); err != nil {
		return nil, err
	}
	if resp.Session == "" {
		// 200 without a token still happens on some server revisions.
		return nil, &Error{Status: http.StatusUnauthorized, Message: nonEmpty(resp.Error, "no session token in response")}
	}
	return &AuthResult{
		Token:       resp.Session,
		Username:    resp.Username,
		IsAdmin:     resp.IsAdmin,
		LastChanged: resp.LastChanged,
	}, nil
}

// ListFull fetches the complete directory listing with per-account metadata.
func (c *Client) ListFull(ctx context.Context, token string) (map[string]UserInfo, error) {
	req := listFullRequest{Session: token}
	var resp listFullResponse
	if err := c.post(ctx, endpointListFull, req, &resp, true); err != nil {
		return nil, err
	}
	return resp.List, nil
}

// List fetches the reduced directory listing: username to admin flag.
func (c *Client) List(ctx context.Context, token string) (map[string]bool, error) {
	req := listRequest{Session: token}
	var resp listResponse
	if err := c.post(ctx, endpointList, req, &resp, true); err != nil {
		return nil, err
	}
	return resp.List, nil
}

// Add creates a new account and returns the username the service echoed back.
func (c *Client) Add(ctx context.Context, token, username, password string, admin bool) (string, error) {
	req := addRequest{Session: token, Username: username, Password: password, IsAdmin: admin}
	var resp addResponse
	if err := c.post(ctx, endpointAdd, req, &resp, true); err != nil {
		return "", err
	}
	return nonEmpty(resp.Username, username), nil
}

// Remove deletes an account and returns the username the service echoed back.
func (c *Client) Remove(ctx context.Context, token, username string) (string, error) {
	req := removeRequest{Session: token, Username: username}
	var resp removeResponse
	if err := c.post(ctx, endpointRemove, req, &resp, true); err != nil {
		return "", err
	}
	return nonEmpty(resp.Username, username), nil
}

// SetAdmin sets the admin role flag of an account to exactly the given state.
func (c *Client) SetAdmin(ctx context.Context, token, username string, admin bool) error {
	req := setAdminRequest{Session: token, Username: username, IsAdmin: admin}
	var resp setAdminResponse
	return c.post(ctx, endpointSetAdmin, req, &resp, true)
}

// UpdatePassword sets a new password for an account using the caller's
// session for authorization.
func (c *Client) UpdatePassword(ctx context.Context, token, username, newPassword string) (string, error) {
	req := updateRequest{Session: token, Username: username, NewPassword: newPassword}
	var resp updateResponse
	if err := c.post(ctx, endpointUpdate, req, &resp, true); err != nil {
		return "", err
	}
	return nonEmpty(resp.Username, username), nil
}

// UpdatePasswordWithOld changes an account's password by proving knowledge of
// the current one, without any session. A 401 here means the old password was
// wrong and does not fire the auth-failure hook.
func (c *Client) UpdatePasswordWithOld(ctx context.Context, username, oldPassword, newPassword string) error {
	req := updateRequest{Username: username, OldPassword: oldPassword, NewPassword: newPassword}
	var resp updateResponse
	return c.post(ctx, endpointUpdate, req, &resp, false)
}

// post is the single request wrapper every operation funnels through.
// sessionCall marks calls authorized by a session token; only those apply
// the 401 auth-failure policy.
func (c *Client) post(ctx context.Context, endpoint string, reqBody, respBody any, sessionCall bool) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.Must(uuid.NewV7()).String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	httpResp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			"endpoint", endpoint,
			"request_id", requestID,
			"error", err,
		)
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", endpoint, err)
	}

	duration := time.Since(start)
	level := slog.LevelDebug
	if httpResp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "request",
		"endpoint", endpoint,
		"status", httpResp.StatusCode,
		"duration_ms", float64(duration.Microseconds())/1000.0,
		"request_id", requestID,
	)

	if httpResp.StatusCode != http.StatusOK {
		apiErr := &Error{
			Status:    httpResp.StatusCode,
			Message:   errorMessage(body, httpResp.Status),
			RequestID: requestID,
		}
		if sessionCall && apiErr.Status == http.StatusUnauthorized && c.onAuthFailure != nil {
			c.onAuthFailure()
		}
		return apiErr
	}

	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

// errorMessage extracts the "error" field from a failure body, falling back
// to the transport-level status line when the body is empty or unparseable.
func errorMessage(body []byte, statusLine string) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return statusLine
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
