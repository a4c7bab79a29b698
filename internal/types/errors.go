package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. The prefix of each code selects its category
// (validation_, not_found_, conflict_, internal_, upstream_).
const (
	// Malformed records
	ErrCodeValidationMalformed ErrorCode = "validation_malformed_record"

	// Not found
	ErrCodeNotFoundStudent    ErrorCode = "not_found_student"
	ErrCodeNotFoundObligation ErrorCode = "not_found_obligation"

	// Conflict
	ErrCodeConflictDuplicatePeriod ErrorCode = "conflict_duplicate_period"
	ErrCodeConflictSweepRunning    ErrorCode = "conflict_sweep_running"

	// Internal/Upstream
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStorage     ErrorCode = "upstream_storage_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
)

// AppError is the standard application error type used throughout the engine.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the ErrorCode of the first AppError in err's chain.
// Errors that carry no code are reported as ErrCodeInternalUnexpected.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}

// IsNotFound reports whether err references a missing student or obligation.
func IsNotFound(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "not_found_")
}

// IsConflict reports whether err is a duplicate-period write race.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflictDuplicatePeriod
}

// IsMalformed reports whether err was caused by corrupt or invalid stored data.
func IsMalformed(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "validation_")
}

// IsStorageUnavailable reports whether err is a transient storage failure that
// is safe to retry on the next scheduled tick.
func IsStorageUnavailable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeInternalDB, ErrCodeUpstreamStorage, ErrCodeUpstreamUnavailable:
		return true
	}
	return false
}
