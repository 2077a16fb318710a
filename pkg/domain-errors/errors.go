// Package domainerrors provides coded domain errors. Services attach a Code
// so transports can map failures to status codes without string matching, and
// callers can branch on the kind of failure rather than its wording.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation marks input that fails domain validation rules
	// (unknown action type, empty reason, malformed typed params).
	CodeValidation Code = "validation"

	// CodeInvalidInput marks values rejected at a parse boundary
	// (malformed UUIDs, unknown enum values).
	CodeInvalidInput Code = "invalid_input"

	// CodeBadRequest marks a structurally broken request body.
	CodeBadRequest Code = "bad_request"

	// CodeNotFound marks a reference to an entity that does not exist.
	CodeNotFound Code = "not_found"

	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks an authenticated caller acting on an entity it
	// does not own (approver mismatch, foreign action).
	CodeForbidden Code = "forbidden"

	// CodeConflict marks a second write against a single-write resource
	// (an approval that already carries a decision).
	CodeConflict Code = "conflict"

	// CodeInvalidState marks an operation against an entity whose current
	// status does not permit it (execute on non-approved, decide on a
	// terminal action).
	CodeInvalidState Code = "invalid_state"

	// CodeInvariantViolation marks a state transition the domain model
	// forbids. Reaching it indicates a bug, not bad input.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeTimeout marks an operation aborted by context deadline.
	CodeTimeout Code = "timeout"

	// CodeInternal marks infrastructure failures (storage, serialization).
	CodeInternal Code = "internal"
)

// Error is a domain error with a classification code. The wrapped cause, if
// any, is preserved for errors.Is/errors.As chains.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message while preserving the cause.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		if err == nil {
			return false
		}
	}
	return false
}

// Is is a readability alias for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal when err
// carries no domain code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
