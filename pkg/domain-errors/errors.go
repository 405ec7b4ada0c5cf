// Package domainerrors defines the stable error kinds every service returns.
//
// Services construct errors with New or Wrap; transports and callers inspect
// them with HasCode/CodeOf. The Message is safe to show to an end user; the
// wrapped cause is for logs only.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, inspectable error kind.
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeNotFound           Code = "not_found"
	CodeNotAMember         Code = "not_a_member"
	CodeAlreadyMember      Code = "already_member"
	CodeAlreadyCompleted   Code = "already_completed"
	CodeAlreadyRemoved     Code = "already_removed"
	CodePermissionRevoked  Code = "permission_revoked"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal"
)

// Error carries a Code, a human-readable reason and an optional cause.
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

// New creates an Error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a Code and message to err. A nil err yields a plain New.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the Code of the outermost *Error in err's chain, or
// CodeInternal when err carries none. A nil err has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost *Error in err's chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// MessageOf returns the user-facing message of err, falling back to a generic
// message for errors that carry no Code.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
