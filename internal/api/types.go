package api

import "time"

// Wire types for the account service's JSON API. All requests are POSTs with
// JSON bodies; error responses carry a bare "error" string next to the
// regular fields.

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authenticateResponse struct {
	Session     string    `json:"session,omitempty"`
	Username    string    `json:"username"`
	IsAdmin     bool      `json:"admin"`
	LastChanged time.Time `json:"lastchanged"`
	Error       string    `json:"error,omitempty"`
}

// AuthResult is what a successful authenticate call yields: the opaque
// session token plus the account attributes the service echoes back.
type AuthResult struct {
	Token       string
	Username    string
	IsAdmin     bool
	LastChanged time.Time
}

// UserInfo is one entry of the full directory listing. The service keys the
// listing by username, so the name itself is not part of this struct.
type UserInfo struct {
	IsAdmin      bool      `json:"admin"`
	LastChanged  time.Time `json:"lastchanged"`
	IsValid      bool      `json:"valid"`
	IsSupported  bool      `json:"supported"`
	FormatID     string    `json:"formatid"`
	FormatParams string    `json:"formatparams"`
}

type listFullRequest struct {
	Session string `json:"session"`
}

type listFullResponse struct {
	List  map[string]UserInfo `json:"list"`
	Error string              `json:"error,omitempty"`
}

type listRequest struct {
	Session string `json:"session"`
}

type listResponse struct {
	List  map[string]bool `json:"list"`
	Error string          `json:"error,omitempty"`
}

type addRequest struct {
	Session  string `json:"session"`
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"admin"`
}

type addResponse struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"admin"`
	Error    string `json:"error,omitempty"`
}

type removeRequest struct {
	Session  string `json:"session"`
	Username string `json:"username"`
}

type removeResponse struct {
	Username string `json:"username"`
	Error    string `json:"error,omitempty"`
}

type updateRequest struct {
	Session     string `json:"session,omitempty"`
	Username    string `json:"username"`
	OldPassword string `json:"oldpassword,omitempty"`
	NewPassword string `json:"newpassword"`
}

type updateResponse struct {
	Username string `json:"username"`
	Error    string `json:"error,omitempty"`
}

type setAdminRequest struct {
	Session  string `json:"session"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"admin"`
}

type setAdminResponse struct {
	Error string `json:"error,omitempty"`
}
