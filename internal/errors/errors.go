// Package errors defines the service error taxonomy shared by handlers,
// middleware and services. Every error that crosses the HTTP boundary is a
// ServiceError with a stable code and status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class in API responses.
type Code string

const (
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeInvalidToken   Code = "INVALID_TOKEN"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeRateLimited    Code = "RATE_LIMIT_EXCEEDED"
	CodeBackendError   Code = "BACKEND_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// ServiceError carries an error code, user-facing message and HTTP status.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`

	cause error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a detail key/value and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, message string, status int, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// Validation reports a rejected request payload or parameter.
func Validation(message string) *ServiceError {
	return newError(CodeInvalidRequest, message, http.StatusBadRequest, nil)
}

// Unauthorized reports a missing or unusable credential.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// InvalidToken reports a token that failed verification.
func InvalidToken(cause error) *ServiceError {
	return newError(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized, cause)
}

// Forbidden reports an authenticated caller acting outside its rights.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NotFound reports a missing resource.
func NotFound(resource string) *ServiceError {
	return newError(CodeNotFound, resource+" not found", http.StatusNotFound, nil)
}

// Conflict reports a uniqueness or state conflict.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, message, http.StatusConflict, nil)
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := newError(CodeRateLimited, "Too many requests", http.StatusTooManyRequests, nil)
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal reports an unexpected failure. The cause is never surfaced.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, message, http.StatusInternalServerError, cause)
}

// Unavailable reports a hosted backend that could not be reached.
func Unavailable(message string, cause error) *ServiceError {
	return newError(CodeBackendError, message, http.StatusBadGateway, cause)
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
