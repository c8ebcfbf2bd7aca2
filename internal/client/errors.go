package client

import (
	"errors"
	"fmt"
)

// AuthError means the backend rejected our credentials. The gateway clears
// both token stores before returning it, forcing re-authentication.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication required (HTTP %d)", e.Status)
}

// ServiceUnavailableError is a transient 503 from the backend; existing state
// must be preserved and the condition surfaced to the user.
type ServiceUnavailableError struct{}

func (e *ServiceUnavailableError) Error() string {
	return "service temporarily unavailable (503)"
}

// BackendError carries the structured message from the backend's error body,
// or a generic status-coded message when no body was usable.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend request failed (HTTP %d)", e.Status)
}

// NetworkError is a connectivity failure before any HTTP status was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsServiceUnavailable reports whether err is a transient 503.
func IsServiceUnavailable(err error) bool {
	var se *ServiceUnavailableError
	return errors.As(err, &se)
}
