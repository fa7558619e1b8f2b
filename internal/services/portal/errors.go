package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TransportError means no response was received: connection refused, DNS
// failure, timeout or cancellation.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is returned when the backend answered with a non-2xx status.
type HTTPError struct {
	Status  int
	Code    int
	Message string
	// RetryAfter is the raw Retry-After header, if any.
	RetryAfter string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, http.StatusText(e.Status))
}

// ApplicationError is returned for a 2xx response whose envelope code is not
// CodeOK.
type ApplicationError struct {
	Code    int
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("application error %d", e.Code)
	}
	return fmt.Sprintf("application error %d: %s", e.Code, e.Message)
}

// DecodeError is returned when a 2xx body is not a valid envelope.
type DecodeError struct {
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response (status %d): %v", e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is an HTTP 401.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsTemporary reports whether a caller may reasonably retry the request:
// transport failures other than cancellation, 429 and 5xx responses.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return !errors.Is(transportErr.Err, context.Canceled)
	}

	status := StatusCode(err)
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
