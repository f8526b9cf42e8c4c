package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function;
// the worker and coordinator classify failures with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrConfig           = errors.New("platform not configured")
	ErrRemote           = errors.New("remote platform error")
	ErrQueueFull        = errors.New("queue is at capacity, try again later")
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// RemoteError is returned by adapters when a platform API answers with a
// non-success response. Body is kept verbatim for diagnostics.
type RemoteError struct {
	Platform   Platform
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s api returned status %d: %s", e.Platform, e.StatusCode, e.Body)
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Configf wraps ErrConfig with a formatted reason.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
