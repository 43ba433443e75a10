// Package errors defines the typed error taxonomy used by the tool server.
//
// Every failure that crosses the dispatch or router boundary is one of the
// types below, so callers can translate it into a structured response
// without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrValidation is returned when tool input fails its declared schema.
	ErrValidation = "validation"

	// ErrUnknownTool is returned when dispatch targets a name absent from the registry.
	ErrUnknownTool = "unknown_tool"

	// ErrSession is returned when a request references a missing or stale
	// session, or an initialization carries an already-assigned session id.
	ErrSession = "session"

	// ErrPortConflict is returned when the port allocator exhausts its retry budget.
	ErrPortConflict = "port_conflict"

	// ErrFileNotFound is returned when an executor cannot find the target file.
	ErrFileNotFound = "not_found"

	// ErrPermissionDenied is returned when an executor is denied access.
	ErrPermissionDenied = "permission_denied"

	// ErrOutOfScopePath is returned when a path escapes the workspace root.
	ErrOutOfScopePath = "out_of_scope_path"

	// ErrNonZeroExit is returned when a command exits with a non-zero status.
	ErrNonZeroExit = "non_zero_exit"

	// ErrInternal is returned when there is an internal error.
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewUnknownToolError creates a new unknown tool error
func NewUnknownToolError(message string, cause error) *Error {
	return NewError(ErrUnknownTool, message, cause)
}

// NewSessionError creates a new session error
func NewSessionError(message string, cause error) *Error {
	return NewError(ErrSession, message, cause)
}

// NewPortConflictError creates a new port conflict error
func NewPortConflictError(message string, cause error) *Error {
	return NewError(ErrPortConflict, message, cause)
}

// NewFileNotFoundError creates a new file not found error
func NewFileNotFoundError(message string, cause error) *Error {
	return NewError(ErrFileNotFound, message, cause)
}

// NewPermissionDeniedError creates a new permission denied error
func NewPermissionDeniedError(message string, cause error) *Error {
	return NewError(ErrPermissionDenied, message, cause)
}

// NewOutOfScopePathError creates a new out of scope path error
func NewOutOfScopePathError(message string, cause error) *Error {
	return NewError(ErrOutOfScopePath, message, cause)
}

// NewNonZeroExitError creates a new non-zero exit error
func NewNonZeroExitError(message string, cause error) *Error {
	return NewError(ErrNonZeroExit, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// isType checks whether err (or anything it wraps) is an *Error of the given type.
func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrValidation)
}

// IsUnknownTool checks if the error is an unknown tool error
func IsUnknownTool(err error) bool {
	return isType(err, ErrUnknownTool)
}

// IsSession checks if the error is a session error
func IsSession(err error) bool {
	return isType(err, ErrSession)
}

// IsPortConflict checks if the error is a port conflict error
func IsPortConflict(err error) bool {
	return isType(err, ErrPortConflict)
}

// IsFileNotFound checks if the error is a file not found error
func IsFileNotFound(err error) bool {
	return isType(err, ErrFileNotFound)
}

// IsPermissionDenied checks if the error is a permission denied error
func IsPermissionDenied(err error) bool {
	return isType(err, ErrPermissionDenied)
}

// IsOutOfScopePath checks if the error is an out of scope path error
func IsOutOfScopePath(err error) bool {
	return isType(err, ErrOutOfScopePath)
}

// IsNonZeroExit checks if the error is a non-zero exit error
func IsNonZeroExit(err error) bool {
	return isType(err, ErrNonZeroExit)
}
