package apierrors

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// AppError is an expected failure with a stable code and HTTP status.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    interface{}
	cause      error
}

func NewAppError(code ErrorCode, message string, statusCode int, details interface{}) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

// Wrap attaches a cause that is logged server-side but never sent to the client.
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	appErr := NewAppError(code, message, statusCode, nil)
	appErr.cause = err
	return appErr
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

func NewValidationError(message string, details interface{}) *AppError {
	if message == "" {
		message = "Validation failed"
	}
	return NewAppError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewAuthenticationError(message string) *AppError {
	if message == "" {
		message = "Authentication required"
	}
	return NewAppError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewAuthorizationError(message string) *AppError {
	if message == "" {
		message = "Insufficient permissions"
	}
	return NewAppError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewNotFoundError(message string) *AppError {
	if message == "" {
		message = "Resource not found"
	}
	return NewAppError(CodeNotFound, message, http.StatusNotFound, nil)
}

func NewConflictError(message string) *AppError {
	if message == "" {
		message = "Resource conflict"
	}
	return NewAppError(CodeConflict, message, http.StatusConflict, nil)
}

// NewRateLimitError carries the wait in whole seconds, rounded up, under
// details.retryAfter.
func NewRateLimitError(retryAfter time.Duration) *AppError {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	return NewAppError(CodeRateLimitExceeded, "Too many requests, please try again later", http.StatusTooManyRequests,
		map[string]interface{}{"retryAfter": seconds})
}

func NewFileUploadError(message string, code ErrorCode) *AppError {
	if code == "" {
		code = CodeUploadFailed
	}
	if message == "" {
		message = "File upload failed"
	}
	return NewAppError(code, message, http.StatusBadRequest, nil)
}

func NewInternalError(err error) *AppError {
	return Wrap(err, CodeInternalError, internalErrorMessage, http.StatusInternalServerError)
}

func NewDatabaseError(err error) *AppError {
	return Wrap(err, CodeDatabaseError, "Database operation failed", http.StatusInternalServerError)
}

func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
