package errors

import (
	"context"
)

// CheckContext returns an error if the context is canceled or timed out.
// This provides a standardized way to check and wrap context errors.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return Wrap(err, Timeout, operation+" timed out")
		}
		return Wrap(err, Cancelled, operation+" cancelled")
	}
	return nil
}

// IsTransient reports whether the error is a transient completion failure
// that is worth retrying.
func IsTransient(err error) bool {
	switch Code(err) {
	case ProviderError, RateLimited, Timeout:
		return true
	default:
		return false
	}
}
