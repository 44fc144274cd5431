package errors

import (
	"fmt"
)

// VoxError is the structured error type for voxrag.
// It carries enough context for logging and for the API layer to pick
// an HTTP status without string matching.
type VoxError struct {
	// Code is the unique error code (e.g., "ERR_302_CHUNK_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, NotFound, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *VoxError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *VoxError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with VoxError sentinels.
func (e *VoxError) Is(target error) bool {
	if t, ok := target.(*VoxError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithSuggestion adds an actionable suggestion for the operator.
// Returns the error for method chaining.
func (e *VoxError) WithSuggestion(suggestion string) *VoxError {
	e.Suggestion = suggestion
	return e
}

// New creates a new VoxError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *VoxError {
	return &VoxError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Newf creates a new VoxError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *VoxError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a VoxError from an existing error.
// The wrapped error's message becomes the VoxError message.
func Wrap(code string, err error) *VoxError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates an input validation error.
func ValidationError(message string) *VoxError {
	return New(ErrCodeInvalidInput, message, nil)
}

// StoreError creates a persistence-related error.
func StoreError(message string, cause error) *VoxError {
	return New(ErrCodeInternal, message, cause)
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the process; the operator must intervene.
func IsFatal(err error) bool {
	if ve, ok := err.(*VoxError); ok {
		return ve.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a VoxError.
// Returns empty string if not a VoxError.
func GetCode(err error) string {
	if ve, ok := err.(*VoxError); ok {
		return ve.Code
	}
	return ""
}

// GetCategory extracts the category from a VoxError.
// Returns CategoryInternal for foreign errors.
func GetCategory(err error) Category {
	if ve, ok := err.(*VoxError); ok {
		return ve.Category
	}
	return CategoryInternal
}
