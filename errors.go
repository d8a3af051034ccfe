// Package strata provides a Go client for the Strata measurement-data platform.
package strata

import (
	"errors"
	"fmt"
)

// Client-side failure taxonomy. These are detected before any remote call is
// issued and are always wrapped with the identifiers (entity, signal, unit,
// index, table, or path) of the record that caused them.
var (
	// ErrInvalidRangeSpec reports a malformed query window: an unknown
	// increment, a bound whose type does not match the signal kind's index
	// domain, or start > end.
	ErrInvalidRangeSpec = errors.New("strata: invalid range spec")

	// ErrMissingUnit reports an indexed write with no unit, neither from a
	// per-call override nor from the signal's storage unit.
	ErrMissingUnit = errors.New("strata: missing unit")

	// ErrInvalidIndexValue reports an index value that is not representable
	// in the signal kind's index domain.
	ErrInvalidIndexValue = errors.New("strata: invalid index value")

	// ErrSchemaMismatch reports a reference-table write whose columns rename
	// or retype the columns of the existing table.
	ErrSchemaMismatch = errors.New("strata: reference table schema mismatch")

	// ErrDecode reports blob content that does not match the requested
	// decode mode.
	ErrDecode = errors.New("strata: decode error")

	// ErrAwaitTimeout reports that AwaitWorkflow exhausted its budget before
	// the execution reached a terminal state. The remote execution may still
	// be running; the caller may re-poll or await again.
	ErrAwaitTimeout = errors.New("strata: workflow await timed out")
)

// Error represents a failure reported by the Strata API, carrying the HTTP
// status code and the server's error message. Remote failures are never
// retried by the client; retry policy belongs to the caller.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("strata: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 403
	}
	return false
}

// IsConflict returns true if the error is a 409.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 409
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}
