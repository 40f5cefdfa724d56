package errors

import (
	"errors"
	"fmt"
)

// Error types for different failure classes
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeData       ErrorType = "data"
	ErrorTypeAnalyzer   ErrorType = "analyzer"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeNotFound   ErrorType = "not_found"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewConfigError marks an invalid configuration value. Configuration errors
// are raised before any analysis begins and are never retryable.
func NewConfigError(field, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConfig,
		Code:      "INVALID_CONFIG",
		Message:   message,
		Retryable: false,
		Details:   map[string]interface{}{"field": field},
	}
}

// NewDataError marks a single malformed event record. Data errors are
// rejected per record; the run continues.
func NewDataError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeData,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewAnalyzerError marks a failure isolated to one analysis kind. The other
// analyzers' results remain valid.
func NewAnalyzerError(kind, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeAnalyzer,
		Code:      "ANALYZER_FAILED",
		Message:   message,
		Retryable: false,
		Details:   map[string]interface{}{"analyzer": kind},
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("%s not found", resource),
		Retryable: false,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL_ERROR",
		Message:   message,
		Retryable: true,
	}
}

// Predefined common errors
var (
	ErrNoEvents        = NewDataError("NO_EVENTS", "no events available for analysis")
	ErrMissingEntityID = NewDataError("MISSING_ENTITY_ID", "event has no entity id")
	ErrBadTimestamp    = NewDataError("BAD_TIMESTAMP", "event timestamp is missing or non-positive")
	ErrRunNotFound     = NewNotFoundError("analysis run")
)

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}
