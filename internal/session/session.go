// Package session owns the console's authentication state: one session per
// server, restored from the local state store on startup, created by login,
// destroyed by logout or by any authentication failure reported from the API
// client. The lifecycle has exactly two states, logged out and logged in.
package session

import (
	"errors"
	"time"
)

// Sentinel errors callers branch on.
var (
	// ErrInvalidCredentials is returned by Login when the service rejects
	// the username/password pair.
	ErrInvalidCredentials = errors.New("username and/or password are wrong")

	// ErrNotLoggedIn is returned by operations that need an authenticated
	// session when there is none.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Session is the client-held authentication state. Token and Username are
// either both set (logged in) or both empty (logged out); the zero value is
// a logged-out session.
type Session struct {
	Username    string
	IsAdmin     bool
	LastChanged time.Time
	Token       string
}

// LoggedIn reports whether the session represents an authenticated state.
func (s Session) LoggedIn() bool {
	return s.Username != "" && s.Token != ""
}
