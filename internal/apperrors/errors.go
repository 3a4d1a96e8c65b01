// Package apperrors provides the orchestrator's unified error taxonomy:
// every component returns a typed *ServiceError upward, and the HTTP
// middleware is the only place that translates one into a response body.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is one of the closed set of user-facing error codes from spec.md
// section 6.
type Code string

const (
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeTokenTypeMismatch  Code = "TOKEN_TYPE_MISMATCH"
	CodeSessionExpired     Code = "SESSION_EXPIRED"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeDuplicateEmail     Code = "DUPLICATE_EMAIL"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeForbidden          Code = "FORBIDDEN"
	CodeCircuitOpen        Code = "CIRCUIT_OPEN"
	CodeRetryExhausted     Code = "RETRY_EXHAUSTED"
	CodeToolNotFound       Code = "TOOL_NOT_FOUND"
	CodeToolUnavailable    Code = "REMOTE_UNAVAILABLE"
	CodeToolTimeout        Code = "TIMEOUT"
	CodeToolProtocolError  Code = "PROTOCOL_ERROR"
	CodeToolExecutionError Code = "TOOL_EXECUTION_FAILED"
	CodeWorkflowCancelled  Code = "WORKFLOW_CANCELLED"
	CodeBusinessLogic      Code = "BUSINESS_LOGIC_ERROR"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// ServiceError is the structured error every component returns upward.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Retryable  bool
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches structured context to the error.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New constructs a ServiceError.
func New(code Code, message string, httpStatus int, retryable bool) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Retryable: retryable}
}

// Wrap constructs a ServiceError carrying an underlying cause.
func Wrap(code Code, message string, httpStatus int, retryable bool, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Retryable: retryable, Err: err}
}

// Authentication errors.

func InvalidCredentials() *ServiceError {
	return New(CodeInvalidCredentials, "Invalid email or password. Please try again.", http.StatusUnauthorized, false)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(CodeTokenInvalid, "Invalid or malformed token.", http.StatusUnauthorized, false, err)
}

func TokenTypeMismatch() *ServiceError {
	return New(CodeTokenTypeMismatch, "Token type mismatch.", http.StatusUnauthorized, false)
}

func SessionExpired() *ServiceError {
	return New(CodeSessionExpired, "Your session has expired. Please log in again.", http.StatusUnauthorized, false)
}

func UserNotFound() *ServiceError {
	return New(CodeUserNotFound, "No account found for this email.", http.StatusNotFound, false)
}

func DuplicateEmail() *ServiceError {
	return New(CodeDuplicateEmail, "An account with this email already exists.", http.StatusConflict, false)
}

// Validation errors.

func InvalidInput(reason string) *ServiceError {
	return New(CodeInvalidInput, reason, http.StatusBadRequest, false)
}

// Resource errors.

func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, false).
		WithDetails("resource", resource).WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict, false)
}

func Forbidden(message string) *ServiceError {
	return New(CodeForbidden, message, http.StatusForbidden, false)
}

// External-service errors (C1/C2/C3).

func CircuitOpen(dependency string) *ServiceError {
	return New(CodeCircuitOpen, "This service is temporarily unavailable. Please try again shortly.", http.StatusServiceUnavailable, true).
		WithDetails("dependency", dependency)
}

func RetryExhausted(attempts int, err error) *ServiceError {
	return Wrap(CodeRetryExhausted, "The upstream service did not respond after repeated attempts.", http.StatusBadGateway, true, err).
		WithDetails("attempts", attempts)
}

func ToolNotFound(name string) *ServiceError {
	return New(CodeToolNotFound, fmt.Sprintf("tool %q is not advertised by the server", name), http.StatusBadGateway, false)
}

func ToolUnavailable(err error) *ServiceError {
	return Wrap(CodeToolUnavailable, "The tool server is unreachable.", http.StatusBadGateway, true, err)
}

func ToolTimeout(name string) *ServiceError {
	return New(CodeToolTimeout, fmt.Sprintf("tool %q timed out", name), http.StatusGatewayTimeout, true)
}

func ToolProtocolError(err error) *ServiceError {
	return Wrap(CodeToolProtocolError, "The tool server returned a malformed response.", http.StatusBadGateway, false, err)
}

func ToolExecutionFailed(name, remoteMessage string) *ServiceError {
	return New(CodeToolExecutionError, remoteMessage, http.StatusBadGateway, false).
		WithDetails("tool", name)
}

// Business-logic errors.

func BusinessLogic(message string) *ServiceError {
	return New(CodeBusinessLogic, message, http.StatusBadRequest, false)
}

func WorkflowCancelled() *ServiceError {
	return New(CodeWorkflowCancelled, "The workflow execution was cancelled.", http.StatusConflict, false)
}

func RateLimitExceeded() *ServiceError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded. Please slow down.", http.StatusTooManyRequests, true)
}

// Internal catch-all.

func Internal(err error) *ServiceError {
	return Wrap(CodeInternal, "An unexpected error occurred. Please try again.", http.StatusInternalServerError, false, err)
}

// As extracts a *ServiceError from err, or falls back to Internal(err) for
// anything the rest of the system didn't already classify.
func As(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return Internal(err)
}
