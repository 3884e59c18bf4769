package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Error codes shared by the chat relay
const (
	CodeInvalidInput            = "INVALID_INPUT"
	CodeCollaboratorUnavailable = "COLLABORATOR_UNAVAILABLE"
	CodeStorageFailure          = "STORAGE_FAILURE"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeNotFound                = "NOT_FOUND"
	CodeInternal                = "INTERNAL_ERROR"
)

// Sentinels for matching with Is. They carry no stack.
var (
	ErrInvalidInput            = &AppError{StatusCode: http.StatusBadRequest, Code: CodeInvalidInput}
	ErrCollaboratorUnavailable = &AppError{StatusCode: http.StatusServiceUnavailable, Code: CodeCollaboratorUnavailable}
	ErrStorageFailure          = &AppError{StatusCode: http.StatusInternalServerError, Code: CodeStorageFailure}
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Stack      string `json:"-"`
	Cause      error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError with the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Stack:      string(debug.Stack()),
	}
}

// Wrap creates an application error around cause
func Wrap(cause error, statusCode int, code string, message string) *AppError {
	appErr := NewError(statusCode, code, message)
	appErr.Cause = cause
	return appErr
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// NewTooManyRequestsError creates a 429 Too Many Requests error
func NewTooManyRequestsError(message string) *AppError {
	return NewError(http.StatusTooManyRequests, CodeRateLimitExceeded, message)
}

// InvalidInput reports a rejected request (empty message, empty audio, bad field)
func InvalidInput(message string) *AppError {
	return NewBadRequestError(CodeInvalidInput, message)
}

// StorageFailure reports a persistence read or write failure
func StorageFailure(cause error, message string) *AppError {
	return Wrap(cause, http.StatusInternalServerError, CodeStorageFailure, message)
}

// CollaboratorUnavailable reports a failed or timed out call to an external model service
func CollaboratorUnavailable(cause error, message string) *AppError {
	return Wrap(cause, http.StatusServiceUnavailable, CodeCollaboratorUnavailable, message)
}

// Is reports whether err, or anything it wraps, is an AppError with target's code
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == target.Code
}

// As returns the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}
