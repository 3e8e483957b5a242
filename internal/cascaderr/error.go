// Package cascaderr defines the error types shared between the github client
// and the updater.
package cascaderr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict is returned when a branch can not be updated
	// automatically and manual conflict resolution is required.
	ErrConflict = errors.New("conflict")

	// ErrPermissionDenied is returned when the github credential was
	// rejected or lacks the required access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a referenced object does not exist,
	// e.g. a pull request that was closed or deleted concurrently.
	ErrNotFound = errors.New("not found")
)

// RetryableError wraps an error of a temporary condition, the operation that
// caused it can be retried.
type RetryableError struct {
	Err error
	// After is the earliest time at which a retry can succeed.
	// A zero value means the retry time is unknown.
	After time.Time
}

// NewRetryableError wraps err into a RetryableError with an earliest retry
// time.
func NewRetryableError(err error, retryAfter time.Time) *RetryableError {
	return &RetryableError{
		Err:   err,
		After: retryAfter,
	}
}

// NewRetryableAnytimeError wraps err into a RetryableError without an
// earliest retry time.
func NewRetryableAnytimeError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func (e *RetryableError) Error() string {
	if e.After.IsZero() {
		return fmt.Sprintf("temporary error: %s", e.Err)
	}

	return fmt.Sprintf("temporary error, retryable after %s: %s", e.After, e.Err)
}
