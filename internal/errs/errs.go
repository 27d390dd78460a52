package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable indicates the cache is still empty after a refresh attempt.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrNotFound indicates a missing alert, asset, user or template.
	ErrNotFound = errors.New("resource not found")
	// ErrAccessDenied indicates an ownership mismatch on an alert mutation.
	ErrAccessDenied = errors.New("access denied")
	// ErrDuplicateAlert indicates an identical condition already exists for the user.
	ErrDuplicateAlert = errors.New("duplicate alert")
	// ErrAlertLimit indicates the free-tier active alert quota is exhausted.
	ErrAlertLimit = errors.New("alert limit exceeded")
	// ErrDeliveryFailed marks a per-notification delivery failure. It is recorded
	// as an outcome and never propagated past the worker boundary.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// ExternalAPIError wraps an upstream provider failure. The refresh loop retries
// these and serves stale data once attempts are exhausted.
type ExternalAPIError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ExternalAPIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s api error (%d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s api error: %v", e.Provider, e.Err)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }

// NotFound wraps ErrNotFound with a resource description.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
