package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFetchFailed covers transport and decoding failures on reads.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrInvalidResponseShape means the collection endpoint did not return an array.
	ErrInvalidResponseShape = errors.New("invalid response shape")
	// ErrUnauthorized means an authenticated call was rejected (missing, expired or invalid token).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound means the requested session id does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrMutationFailed means a create, update or delete was not accepted.
	ErrMutationFailed = errors.New("mutation failed")
	// ErrLoginFailed means the credential exchange was refused.
	ErrLoginFailed = errors.New("login failed")
)

// APIError is a non-2xx answer from the remote API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote api returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote api returned %d", e.Status)
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// Message extracts the server-provided message from err, or returns fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
