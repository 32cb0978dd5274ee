// Package errors defines the service error taxonomy shared by handlers and
// services. Every error carries a machine-readable code and the HTTP status
// it maps to, so callers can distinguish client errors from storage failures.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category.
type Code string

const (
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeTimeout        Code = "TIMEOUT"
	CodePersistence    Code = "PERSISTENCE_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeRateLimited    Code = "RATE_LIMIT_EXCEEDED"
	CodeRemoteRejected Code = "REMOTE_REJECTED"
)

// ServiceError is the canonical error shape returned by services.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// Unauthorized builds a 401 error.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// Validation builds a 400 error for missing or malformed input.
func Validation(message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil)
}

// Forbidden builds a 403 error for ownership or state check failures.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound builds a 404 error for absent referenced entities.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// Timeout builds a 504 error for remote calls that exceeded their budget.
func Timeout(message string, cause error) *ServiceError {
	return newError(CodeTimeout, http.StatusGatewayTimeout, message, cause)
}

// Persistence builds a 500 error for storage read/write failures.
func Persistence(message string, cause error) *ServiceError {
	return newError(CodePersistence, http.StatusInternalServerError, message, cause)
}

// Internal builds a 500 error for anything uncaught.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// RateLimitExceeded builds a 429 error.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window), nil)
}

// GetServiceError returns the ServiceError wrapped anywhere in err, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// HTTPStatus resolves the response status for any error.
func HTTPStatus(err error) int {
	if svcErr := GetServiceError(err); svcErr != nil {
		return svcErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
