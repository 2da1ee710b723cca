// Package api provides the HTTP client for the vidqueue processing
// service: authentication, video submission, status listing, and
// result download. Failures are classified into sentinel errors so
// callers can branch with errors.Is without inspecting status codes.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for response classification.
// Use errors.Is(err, api.ErrUnauthorized) to check.
var (
	// ErrUnauthorized means the bearer token was missing or rejected.
	// Callers must treat this as session invalidation, never retry.
	ErrUnauthorized = errors.New("api: unauthorized")

	// ErrInvalidCredentials is returned by Login for a bad username/password.
	ErrInvalidCredentials = errors.New("api: invalid credentials")

	// ErrValidation means the server rejected the request payload.
	// The server message is surfaced verbatim to the user.
	ErrValidation = errors.New("api: validation failed")

	// ErrNotFound means the requested video does not exist.
	ErrNotFound = errors.New("api: not found")

	// ErrConnection wraps transport-level failures (DNS, refused, reset).
	ErrConnection = errors.New("api: connection failed")

	// ErrServerError covers 5xx responses.
	ErrServerError = errors.New("api: server error")
)

// APIError wraps a sentinel error with the HTTP status code and the
// server-supplied message body for user display and debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("api: HTTP %d", e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// UserMessage returns the server-supplied message if present, otherwise
// a generic description derived from the sentinel. Connection failures
// always get the generic connectivity message; transport details are
// not actionable for the user.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return "session expired, please log in again"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid username or password"
	case errors.Is(err, ErrConnection):
		return "connection failed, check that the server is reachable"
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return ErrValidation
	case http.StatusNotFound:
		return ErrNotFound
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
