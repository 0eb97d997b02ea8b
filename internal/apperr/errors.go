// Package apperr defines the error taxonomy shared across the sync engine.
package apperr

import "errors"

var (
	// ErrNotFound marks a remote identity that no longer exists (broken link)
	// or a missing local document. Terminal, never retried.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a remote page edited after the local watermark.
	// Not a failure: routed to the conflict resolution decision point.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyExists marks an attempt to create a document at an occupied path.
	ErrAlreadyExists = errors.New("already exists")
	// ErrThrottled marks a remote rate-quota rejection. Always retried with
	// backoff up to a ceiling before surfacing.
	ErrThrottled = errors.New("throttled")
	// ErrUnauthorized marks a credential problem. Terminal, never retried.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServer marks a transient remote 5xx-equivalent fault, retried like a throttle.
	ErrServer = errors.New("server error")
	// ErrRetriesExhausted wraps the final failure after the retry ceiling.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Retriable reports whether err belongs to a transient class that the
// scheduler and retry wrapper absorb.
func Retriable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrServer)
}
