// Package errors provides structured error handling for portsweep operations.
// It defines error codes and coded error types, plus helpers for inspecting
// codes through wrapped error chains.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeParse         ErrorCode = "PARSE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeConflict      ErrorCode = "CONFLICT"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"

	// Scanning and job errors.
	CodeScanFailed     ErrorCode = "SCAN_FAILED"
	CodeTargetInvalid  ErrorCode = "TARGET_INVALID"
	CodeJobRunning     ErrorCode = "JOB_RUNNING"
	CodeJobCapacity    ErrorCode = "JOB_CAPACITY"
	CodeScheduleFailed ErrorCode = "SCHEDULE_FAILED"

	// Database errors.
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	CodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"
	CodeDatabaseTimeout    ErrorCode = "DATABASE_TIMEOUT"
)

// ScanError represents an error that occurred while preparing or running a scan.
type ScanError struct {
	Code      ErrorCode
	Message   string
	Target    string
	Operation string
	Cause     error
	Context   map[string]any
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg += fmt.Sprintf(" (target: %s)", e.Target)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error's code.
func (e *ScanError) ErrorCode() ErrorCode {
	return e.Code
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value any) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{Code: code, Message: message, Target: target}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// DatabaseError represents database-related errors.
type DatabaseError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Query     string
	Cause     error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation: %s)", e.Operation)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error's code.
func (e *DatabaseError) ErrorCode() ErrorCode {
	return e.Code
}

// WithOperation records the repository operation that failed.
func (e *DatabaseError) WithOperation(op string) *DatabaseError {
	e.Operation = op
	return e
}

// NewDatabaseError creates a new database error.
func NewDatabaseError(code ErrorCode, message string) *DatabaseError {
	return &DatabaseError{Code: code, Message: message}
}

// WrapDatabaseError wraps an existing error as a database error.
func WrapDatabaseError(code ErrorCode, message string, err error) *DatabaseError {
	return &DatabaseError{Code: code, Message: message, Cause: err}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   any
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field: %s)", e.Field)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error's code.
func (e *ConfigError) ErrorCode() ErrorCode {
	return e.Code
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value any) *ConfigError {
	return &ConfigError{Code: code, Message: message, Field: field, Value: value}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{Code: code, Message: message, Cause: err}
}

// coder is implemented by every coded error type, including ones defined
// outside this package.
type coder interface {
	ErrorCode() ErrorCode
}

// IsCode checks if an error, or any error it wraps, has the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the first error code found in the error chain.
func GetCode(err error) ErrorCode {
	var c coder
	if stderrors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeUnknown
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsRetryable determines if an error indicates a retryable condition.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeDatabaseTimeout, CodeDatabaseConnection, CodeJobCapacity:
		return true
	default:
		return false
	}
}

// IsUserError reports whether the error was caused by bad caller input.
func IsUserError(err error) bool {
	switch GetCode(err) {
	case CodeValidation, CodeParse, CodeTargetInvalid:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrNotFound creates a not-found error for the named resource.
func ErrNotFound(resource, id string) *DatabaseError {
	return NewDatabaseError(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id))
}

// ErrDatabaseConnection creates an error for database connection failures.
func ErrDatabaseConnection(err error) *DatabaseError {
	return WrapDatabaseError(CodeDatabaseConnection, "failed to connect to database", err)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value any) *ConfigError {
	return NewConfigFieldError(CodeValidation, "invalid configuration value", field, value)
}
