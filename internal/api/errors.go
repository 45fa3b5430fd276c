package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the two HTTP-level failure classes callers branch on.
// Use errors.Is against these; the concrete error is always *Error.
var (
	// ErrUnauthorized matches any 401 response: the session token was
	// rejected or the supplied credentials were wrong.
	ErrUnauthorized = errors.New("authentication failure")

	// ErrForbidden matches any 403 response: the session is valid but the
	// account lacks the admin role for the attempted operation.
	ErrForbidden = errors.New("permission denied")
)

// Error is a non-2xx response from the account service. Message carries the
// response body's "error" string, falling back to the HTTP status text when
// the body has none.
type Error struct {
	Status    int
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", http.StatusText(e.Status), e.Message)
}

// Is lets errors.Is match the sentinel for the corresponding status class.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}
