package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus converts a non-2xx response from a dependency into a classified error.
// Returns nil for 2xx codes.
func FromHTTPStatus(op string, code int, body string) error {
	if code >= 200 && code < 300 {
		return nil
	}

	msg := fmt.Sprintf("%s: status %d", op, code)
	if body = strings.TrimSpace(body); body != "" {
		msg += ": " + body
	}

	var sentinel error
	switch {
	case code == http.StatusNotFound:
		sentinel = ErrNotFound
	case code == http.StatusConflict:
		sentinel = ErrConflict
	case code >= 400 && code < 500:
		sentinel = ErrValidation
	default:
		sentinel = ErrUnavailable
	}
	return &Error{Sentinel: sentinel, Message: msg, Op: op}
}

// IsRetryable reports whether a failed call may succeed if repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
