// Package errors provides common domain error types for the airtime application.
//
// This package defines sentinel errors for common domain conditions like "not found"
// or "invalid state" that can be used across all packages. Using typed errors enables
// consistent error handling patterns with errors.Is() checks.
//
// Usage:
//
//	import aterrors "github.com/airtimehq/airtime/pkg/errors"
//
//	// Return a domain error
//	return nil, aterrors.ErrNotFound
//
//	// Check for domain errors
//	if aterrors.IsNotFound(err) {
//	    // handle not found case
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested record was not found in the store.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrMalformed indicates persisted or received data could not be decoded.
	ErrMalformed = errors.New("malformed data")

	// ErrTransport indicates a message could not be delivered to the peer process.
	ErrTransport = errors.New("transport failure")

	// ErrOriginMismatch indicates a message carried an unexpected origin token.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrStorageWrite indicates the local store rejected a write.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrMeetingEnded indicates the meeting is no longer active.
	ErrMeetingEnded = errors.New("meeting ended")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsMalformed reports whether any error in err's chain is ErrMalformed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// IsTransport reports whether any error in err's chain is ErrTransport.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsOriginMismatch reports whether any error in err's chain is ErrOriginMismatch.
func IsOriginMismatch(err error) bool {
	return errors.Is(err, ErrOriginMismatch)
}

// IsStorageWrite reports whether any error in err's chain is ErrStorageWrite.
func IsStorageWrite(err error) bool {
	return errors.Is(err, ErrStorageWrite)
}

// IsMeetingEnded reports whether any error in err's chain is ErrMeetingEnded.
func IsMeetingEnded(err error) bool {
	return errors.Is(err, ErrMeetingEnded)
}
