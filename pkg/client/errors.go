package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// ShouldSurface reports whether err belongs in a user-facing error toast.
// Auth failures happen routinely while a session is logging out, and
// cancelled requests were superseded on purpose; neither is shown.
func ShouldSurface(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status != http.StatusUnauthorized && apiErr.Status != http.StatusForbidden
	}
	return true
}

// HasCode reports whether err is an APIError with the given code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
