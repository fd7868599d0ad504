// Package tierlimit defines typed errors and sentinel values.
package tierlimit

import "errors"

// ErrorCode represents a typed error code.
type ErrorCode string

const (
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeUnknownTier        ErrorCode = "UNKNOWN_TIER"
	CodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
)

// AppError is a typed application error.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error returns the error message.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap creates a new AppError.
func Wrap(code ErrorCode, msg string, err error) error {
	return &AppError{Code: code, Message: msg, Err: err}
}

// CodeOf returns the ErrorCode for an error.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ErrInvalidInput indicates validation failures.
var ErrInvalidInput = &AppError{Code: CodeInvalidInput, Message: "invalid input"}

// ErrUnknownTier indicates an unrecognized tier identifier.
var ErrUnknownTier = &AppError{Code: CodeUnknownTier, Message: "unknown tier"}

// ErrStorageUnavailable indicates the state store cannot be reached.
// The limiter fails closed on this error: it never substitutes an
// allow decision for a storage failure.
var ErrStorageUnavailable = &AppError{Code: CodeStorageUnavailable, Message: "storage unavailable"}

// ErrConflict indicates optimistic concurrency conflicts.
var ErrConflict = &AppError{Code: CodeConflict, Message: "conflict"}

// ErrNotFound indicates missing resources.
var ErrNotFound = &AppError{Code: CodeNotFound, Message: "not found"}
