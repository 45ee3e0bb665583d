package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel session errors.
var (
	// ErrUnauthenticated is returned by identity-scoped calls when the
	// client holds no token pair.
	ErrUnauthenticated = errors.New("client: not authenticated")

	// ErrSessionExpired is returned when the refresh token itself was
	// rejected; the stored pair has been discarded and the caller must
	// log in again.
	ErrSessionExpired = errors.New("client: session expired")
)

// APIError is a structured error response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e == nil {
		return "client: nil api error"
	}
	if e.Code != "" {
		return fmt.Sprintf("client: api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("client: api error %d: %s", e.Status, e.Message)
}

// AsAPIError unwraps err into an *APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a 404 from the server. The backend uses
// 404 uniformly for both missing and not-owned resources.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusNotFound
}

// IsValidation reports whether err is a field-level validation failure.
func IsValidation(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusBadRequest
}

// IsRateLimited reports whether err is a throttling rejection.
func IsRateLimited(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusTooManyRequests
}
