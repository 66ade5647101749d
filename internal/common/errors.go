package common

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeConfiguration for missing credentials, keys or settings
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeValidation for request validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeAuth for login flow failures
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeAuthExpired for authorization-denied responses mid-fetch
	ErrorTypeAuthExpired ErrorType = "auth_expired"
	// ErrorTypeUpstream for non-success responses from the helpdesk API
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeNetwork for transport-level failures
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeOracle for external analyzer failures
	ErrorTypeOracle ErrorType = "oracle"
	// ErrorTypeStorage for storage/persistence errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeInternal for internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// AnalyzerError represents a structured error with context
type AnalyzerError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *AnalyzerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AnalyzerError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AnalyzerError) WithContext(key string, value interface{}) *AnalyzerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *AnalyzerError) WithCause(cause error) *AnalyzerError {
	e.Cause = cause
	return e
}

// WithDetails sets the human-readable details text
func (e *AnalyzerError) WithDetails(details string) *AnalyzerError {
	e.Details = details
	return e
}

// NewError creates a new AnalyzerError
func NewError(errorType ErrorType, code, message string) *AnalyzerError {
	return &AnalyzerError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AnalyzerError {
	return NewError(ErrorTypeConfiguration, code, message)
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AnalyzerError {
	return NewError(ErrorTypeValidation, code, message)
}

// NewAuthError creates an authentication error
func NewAuthError(code, message string) *AnalyzerError {
	return NewError(ErrorTypeAuth, code, message)
}

// NewAuthExpiredError creates an authorization-expired error
func NewAuthExpiredError(code, message string) *AnalyzerError {
	return NewError(ErrorTypeAuthExpired, code, message)
}

// NewUpstreamError creates an upstream HTTP error carrying the status code
func NewUpstreamError(code, message string, status int) *AnalyzerError {
	return NewError(ErrorTypeUpstream, code, message).WithContext("status", status)
}

// NewNetworkError creates a network error
func NewNetworkError(code, message string) *AnalyzerError {
	return NewError(ErrorTypeNetwork, code, message)
}

// NewOracleError creates an oracle error
func NewOracleError(code, message string) *AnalyzerError {
	return NewError(ErrorTypeOracle, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AnalyzerError {
	return NewError(ErrorTypeStorage, code, message)
}

// NewInternalError creates an internal system error
func NewInternalError(code, message string) *AnalyzerError {
	return NewError(ErrorTypeInternal, code, message)
}

// WrapError wraps an existing error with AnalyzerError context
func WrapError(err error, errorType ErrorType, code, message string) *AnalyzerError {
	return &AnalyzerError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
	}
}
