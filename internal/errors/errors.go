package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeNetwork represents network and remote-server errors
	ErrTypeNetwork ErrorType = "network"
	// ErrTypeFileSystem represents local storage errors
	ErrTypeFileSystem ErrorType = "filesystem"
	// ErrTypePersistence represents metadata document read/write errors
	ErrTypePersistence ErrorType = "persistence"
	// ErrTypeValidation represents caller-misuse errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeNetwork,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewFileSystemError creates a new file system error
func NewFileSystemError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeFileSystem,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewPersistenceError creates a new persistence error
func NewPersistenceError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypePersistence,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
		Cause:      nil,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Retryable:  false,
		Cause:      nil,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable
	}
	return false
}

// GetErrorType returns the error type from an error
func GetErrorType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	return GetErrorType(err) == ErrTypeNetwork
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrTypeValidation
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrTypeNotFound
}
