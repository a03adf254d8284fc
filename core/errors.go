package core

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on these with errors.Is; every error produced
// by this module matches exactly one kind.
var (
	// ErrTransport marks network or backend-side failures. Retryable.
	ErrTransport = errors.New("transport failure")
	// ErrParse marks backend text that is not JSON or is structurally
	// incomplete. Never auto-retried.
	ErrParse = errors.New("parse failure")
	// ErrValidation marks schema violations in parsed backend output.
	// Never auto-retried.
	ErrValidation = errors.New("validation failure")
	// ErrNotFound marks an absent or expired session, or an unknown
	// template.
	ErrNotFound = errors.New("not found")
	// ErrState marks an operation that is invalid for the session's
	// current state.
	ErrState = errors.New("invalid state")
)

// Stable machine-readable error codes carried by Error. These are part of
// the caller-facing contract and must not change meaning.
const (
	CodeSessionNotFound        = "SESSION_NOT_FOUND"
	CodeTemplateNotFound       = "TEMPLATE_NOT_FOUND"
	CodeGuidedModeNotSupported = "GUIDED_MODE_NOT_SUPPORTED"
	CodeBackendUnavailable     = "BACKEND_UNAVAILABLE"
	CodeParseError             = "PARSE_ERROR"
	CodeValidationError        = "VALIDATION_ERROR"
	CodeNoDraft                = "NO_DRAFT"
	CodeStreamInterrupted      = "STREAM_INTERRUPTED"
)

// Error is the module's error value: a kind for programmatic branching, a
// stable code plus human-readable message for callers, and an optional
// wrapped cause that stays out of the rendered message so internal detail is
// never leaked to users.
type Error struct {
	Code    string
	Field   string
	Message string

	kind  error
	cause error
}

// Error renders the code and message only; the cause is reachable via
// errors.Unwrap for logs.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches the error's kind sentinel.
func (e *Error) Is(target error) bool { return target == e.kind }

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// NewNotFound builds a NotFound error with the given code.
func NewNotFound(code, message string) *Error {
	return &Error{kind: ErrNotFound, Code: code, Message: message}
}

// NewState builds a StateError with the given code.
func NewState(code, message string) *Error {
	return &Error{kind: ErrState, Code: code, Message: message}
}

// NewParse builds a ParseError wrapping the underlying cause.
func NewParse(message string, cause error) *Error {
	return &Error{kind: ErrParse, Code: CodeParseError, Message: message, cause: cause}
}

// NewValidation builds a ValidationError naming the offending field.
func NewValidation(field, message string) *Error {
	return &Error{kind: ErrValidation, Code: CodeValidationError, Field: field, Message: message}
}

// NewTransport builds a TransportError with the given code, wrapping the
// underlying cause.
func NewTransport(code, message string, cause error) *Error {
	return &Error{kind: ErrTransport, Code: code, Message: message, cause: cause}
}

// ErrorCode extracts the stable code from err, or "" when err carries none.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
