// Package common defines shared constants and sentinel errors used across
// client and server layers of FieldSync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Remote-call errors. ErrTransient covers timeouts, 5xx responses and
	// rate limiting; items failing with it stay retryable until the attempt
	// ceiling. ErrTokenStale maps 401/403 responses; items failing with it
	// are not retried until a fresh token is supplied.
	ErrTransient  = errors.New("transient remote error")
	ErrTokenStale = errors.New("token stale")

	// ErrConflict marks a create that lost a race (e.g. folder already
	// exists). Never surfaced to the user; callers reconcile by re-listing.
	ErrConflict = errors.New("conflict")

	// ErrValidation marks permanently invalid input (missing required field,
	// referenced case not found). Never retried.
	ErrValidation = errors.New("validation error")

	// ErrStorageFatal marks local durable-storage failures. The queue cannot
	// be trusted after one of these; it propagates immediately.
	ErrStorageFatal = errors.New("local storage failure")
)

// IsRetryable reports whether err should count against the retry ceiling and
// be attempted again. Auth, validation and storage-fatal errors are not
// retryable; everything else (including plain network errors) is treated as
// transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTokenStale),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrStorageFatal),
		errors.Is(err, ErrConflict):
		return false
	}
	return true
}
