package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed classification tag attached to every application error.
// The resilience layer (circuit breaker counting, retry eligibility) makes
// decisions on kinds, never on concrete error types.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindRateLimit      Kind = "rate_limit"
	KindInternal       Kind = "internal"
	KindExternal       Kind = "external"
	KindTimeout        Kind = "timeout"
	KindUnavailable    Kind = "unavailable"
)

// KindUnknown is reported for errors that carry no AppError in their chain.
const KindUnknown Kind = ""

// AppError represents an application error with context
type AppError struct {
	Kind      Kind              `json:"kind"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new application error with the given kind
func New(kind Kind, code, message string) *AppError {
	return &AppError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Details:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Common error constructors
func NewValidationError(message string) *AppError {
	return New(KindValidation, "VALIDATION_ERROR", message)
}

func NewAuthenticationError(message string) *AppError {
	return New(KindAuthentication, "AUTHENTICATION_ERROR", message)
}

func NewAuthorizationError(message string) *AppError {
	return New(KindAuthorization, "AUTHORIZATION_ERROR", message)
}

func NewNotFoundError(resource string) *AppError {
	return New(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

func NewConflictError(message string) *AppError {
	return New(KindConflict, "CONFLICT", message)
}

func NewRateLimitError(message string) *AppError {
	return New(KindRateLimit, "RATE_LIMIT_EXCEEDED", message)
}

func NewInternalError(message string) *AppError {
	return New(KindInternal, "INTERNAL_ERROR", message)
}

func NewTimeoutError(operation string) *AppError {
	return New(KindTimeout, "TIMEOUT", fmt.Sprintf("%s timed out", operation))
}

func NewUnavailableError(service string) *AppError {
	return New(KindUnavailable, "SERVICE_UNAVAILABLE", fmt.Sprintf("%s is unavailable", service)).
		WithDetail("service", service)
}

// Downstream-specific errors
func NewProviderError(provider, message string) *AppError {
	return New(KindExternal, "PROVIDER_ERROR", message).
		WithDetail("provider", provider)
}

func NewDocumentBackendError(backend, message string) *AppError {
	return New(KindExternal, "DOCUMENT_BACKEND_ERROR", message).
		WithDetail("backend", backend)
}

func NewDatabaseError(message string) *AppError {
	return New(KindExternal, "DATABASE_ERROR", message)
}

// KindOf returns the kind of the first AppError in the chain,
// or KindUnknown when the chain carries none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// GetCode returns the error code of the first AppError in the chain
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}
