package cafe24

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNoRefreshToken means a refresh was requested but nothing is stored;
	// the authorization-code flow has never completed (or was wiped).
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrReauthenticationRequired means the stored refresh token could not be
	// used; the operator must redo the consent flow.
	ErrReauthenticationRequired = errors.New("token refresh failed: re-authentication required")
)

// AuthExchangeError carries the vendor's own error payload from a rejected
// code or refresh exchange. These rejections are non-transient (expired code,
// revoked grant) and are never retried.
type AuthExchangeError struct {
	Status      int
	Code        string
	Description string
}

func (e *AuthExchangeError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token exchange failed (%d): %s", e.Status, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("token exchange failed (%d): %s", e.Status, e.Code)
	}
	return fmt.Sprintf("token exchange failed (%d)", e.Status)
}

// APIError is a non-2xx Admin API response that survived the bounded retry.
type APIError struct {
	Status     int
	StatusText string
	Body       json.RawMessage
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed: %d %s (%s %s)", e.Status, e.StatusText, e.Method, e.Path)
}

// IsAuthError reports whether err is rooted in the token lifecycle rather
// than the call itself; handlers use it to show the "contact the admin"
// message instead of a raw vendor error.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrReauthenticationRequired) {
		return true
	}
	var ae *AuthExchangeError
	return errors.As(err, &ae)
}
