// Package errors provides the unified error taxonomy used across the chat
// and sync runtime: one structured error type carrying a stable code, an
// HTTP status, and optional details, propagated unchanged from a validator
// or connector through to an HTTP response or log line.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// Authentication errors (1xxx)
	ErrCodeUnauthorized     ErrorCode = "AUTH_1001"
	ErrCodeInvalidToken     ErrorCode = "AUTH_1002"
	ErrCodeTokenExpired     ErrorCode = "AUTH_1003"
	ErrCodeInvalidSignature ErrorCode = "AUTH_1004"

	// Authorization errors (2xxx)
	ErrCodePermissionDenied  ErrorCode = "AUTHZ_2001"
	ErrCodeOwnershipRequired ErrorCode = "AUTHZ_2002"

	// Validation errors (3xxx)
	ErrCodeInvalidInput     ErrorCode = "VAL_3001"
	ErrCodeMissingParameter ErrorCode = "VAL_3002"
	ErrCodeInvalidFormat    ErrorCode = "VAL_3003"
	ErrCodeOutOfRange       ErrorCode = "VAL_3004"

	// Resource errors (4xxx)
	ErrCodeNotFound      ErrorCode = "RES_4001"
	ErrCodeAlreadyExists ErrorCode = "RES_4002"
	ErrCodeConflict      ErrorCode = "RES_4003"

	// Business rule errors (5xxx)
	ErrCodeBusinessRule ErrorCode = "BIZ_5001"

	// Service errors (6xxx)
	ErrCodeInternal          ErrorCode = "SVC_6001"
	ErrCodeDatabaseError     ErrorCode = "SVC_6002"
	ErrCodeExternalAPI       ErrorCode = "SVC_6003"
	ErrCodeTimeout           ErrorCode = "SVC_6004"
	ErrCodeRateLimitExceeded ErrorCode = "SVC_6005"
	ErrCodeServiceUnavailable ErrorCode = "SVC_6006"
	ErrCodeNetworkError      ErrorCode = "SVC_6007"
	ErrCodeConfiguration     ErrorCode = "SVC_6008"

	// Security errors (7xxx)
	ErrCodeEncryptionFailed   ErrorCode = "SEC_7001"
	ErrCodeDecryptionFailed   ErrorCode = "SEC_7002"
	ErrCodeSigningFailed      ErrorCode = "SEC_7003"
	ErrCodeVerificationFailed ErrorCode = "SEC_7004"
	ErrCodeSecurityViolation  ErrorCode = "SEC_7005"
)

// ServiceError is a structured error with code, message, and HTTP status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error and returns it for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the caller should retry the operation that
// produced this error. Network/timeout/service-unavailable errors are
// retryable; everything else (validation, auth, business rules) is not.
func (e *ServiceError) Retryable() bool {
	switch e.Code {
	case ErrCodeNetworkError, ErrCodeTimeout, ErrCodeServiceUnavailable:
		return true
	default:
		return false
	}
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Authentication errors

func Unauthorized(message string) *ServiceError {
	return New(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(ErrCodeInvalidToken, "invalid authentication token", http.StatusUnauthorized, err)
}

func TokenExpired() *ServiceError {
	return New(ErrCodeTokenExpired, "authentication token has expired", http.StatusUnauthorized)
}

func InvalidSignature(err error) *ServiceError {
	return Wrap(ErrCodeInvalidSignature, "invalid signature", http.StatusUnauthorized, err)
}

// Authorization errors

// PermissionDenied signals the caller's role does not grant the attempted action.
func PermissionDenied(permission string) *ServiceError {
	return New(ErrCodePermissionDenied, "permission denied", http.StatusForbidden).
		WithDetails("permission", permission)
}

func OwnershipRequired(resourceType, resourceID string) *ServiceError {
	return New(ErrCodeOwnershipRequired, "ownership verification required", http.StatusForbidden).
		WithDetails("resource_type", resourceType).
		WithDetails("resource_id", resourceID)
}

// Validation errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "invalid input", http.StatusUnprocessableEntity).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, "missing required parameter", http.StatusUnprocessableEntity).
		WithDetails("parameter", param)
}

func InvalidFormat(field, expected string) *ServiceError {
	return New(ErrCodeInvalidFormat, "invalid format", http.StatusUnprocessableEntity).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

func OutOfRange(field string, minValue, maxValue interface{}) *ServiceError {
	return New(ErrCodeOutOfRange, "value out of range", http.StatusUnprocessableEntity).
		WithDetails("field", field).
		WithDetails("min", minValue).
		WithDetails("max", maxValue)
}

// Resource errors

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, id string) *ServiceError {
	return New(ErrCodeAlreadyExists, "resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Business rule errors

// BusinessRuleViolation signals a domain invariant was about to be broken
// (e.g. demoting the last owner of a room).
func BusinessRuleViolation(code, message string) *ServiceError {
	return New(ErrCodeBusinessRule, message, http.StatusBadRequest).WithDetails("rule", code)
}

// Service errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func DatabaseError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func ExternalAPIError(service string, err error) *ServiceError {
	return Wrap(ErrCodeExternalAPI, "external API call failed", http.StatusBadGateway, err).
		WithDetails("service", service)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(ErrCodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// ServiceUnavailable signals a dependency is temporarily down; safe to retry.
func ServiceUnavailable(service string, err error) *ServiceError {
	return Wrap(ErrCodeServiceUnavailable, "service temporarily unavailable", http.StatusServiceUnavailable, err).
		WithDetails("service", service)
}

// NetworkError wraps a transient transport-level failure; safe to retry.
func NetworkError(operation string, err error) *ServiceError {
	return Wrap(ErrCodeNetworkError, "network error", http.StatusBadGateway, err).
		WithDetails("operation", operation)
}

// ConfigurationError signals invalid or missing configuration. Fatal at
// startup; at runtime the affected feature degrades instead of crashing.
func ConfigurationError(key string, err error) *ServiceError {
	return Wrap(ErrCodeConfiguration, "configuration error", http.StatusInternalServerError, err).
		WithDetails("key", key)
}

// Security errors

func EncryptionFailed(err error) *ServiceError {
	return Wrap(ErrCodeEncryptionFailed, "encryption failed", http.StatusInternalServerError, err)
}

func DecryptionFailed(err error) *ServiceError {
	return Wrap(ErrCodeDecryptionFailed, "decryption failed", http.StatusInternalServerError, err)
}

func SigningFailed(err error) *ServiceError {
	return Wrap(ErrCodeSigningFailed, "signing failed", http.StatusInternalServerError, err)
}

func VerificationFailed(err error) *ServiceError {
	return Wrap(ErrCodeVerificationFailed, "verification failed", http.StatusUnauthorized, err)
}

// SecurityViolation signals a tamper/injection attempt (e.g. a connector
// whitelist rejection or a CSRF mismatch); always audit-logged.
func SecurityViolation(message string) *ServiceError {
	return New(ErrCodeSecurityViolation, message, http.StatusForbidden)
}

// Helper functions

func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
