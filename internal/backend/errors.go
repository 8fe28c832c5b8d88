package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrNotFound reports a 404 from any endpoint.
	ErrNotFound = errors.New("backend: not found")
	// ErrJobNotFound reports that the backend has no record of a job id. The
	// tracker treats it as a lifecycle signal rather than a failure.
	ErrJobNotFound = fmt.Errorf("job not found: %w", ErrNotFound)
)

// APIError describes a non-2xx backend response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Path       string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("backend %s: http %d [%s] %s", e.Path, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("backend %s: http %d: %s", e.Path, e.StatusCode, msg)
}

// Unwrap lets errors.Is match ErrNotFound for 404 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// IsTransient reports whether err is worth retrying on the next tick:
// timeouts, connection failures, and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsNotFound reports whether err is a 404 signal.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
