package models

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed caller input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents unusable startup configuration
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeProviderUnavailable represents an explicitly requested provider with no credentials
	ErrorTypeProviderUnavailable ErrorType = "provider_unavailable"
	// ErrorTypeAuth represents upstream credential rejection (401/403)
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeRateLimit represents upstream throttling (429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTransient represents timeouts and upstream 5xx responses
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeFatal represents other 4xx responses and malformed provider replies
	ErrorTypeFatal ErrorType = "fatal"
	// ErrorTypeAllProvidersFailed is the terminal gateway failure
	ErrorTypeAllProvidersFailed ErrorType = "all_providers_failed"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Provider   string    `json:"provider,omitzero"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuth:
		return http.StatusUnauthorized
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeProviderUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeTransient, ErrorTypeAllProvidersFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConfiguration,
		Message:   message,
		Retryable: false,
	}
}

// NewProviderUnavailableError creates an error for an unconfigured provider
func NewProviderUnavailableError(provider string) *AppError {
	return &AppError{
		Type:       ErrorTypeProviderUnavailable,
		Message:    fmt.Sprintf("provider %s has no configured credentials", provider),
		Provider:   provider,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  false,
	}
}

// NewAuthError creates a credential rejection error
func NewAuthError(provider string, statusCode int, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeAuth,
		Message:    fmt.Sprintf("provider %s rejected credentials", provider),
		Provider:   provider,
		StatusCode: statusCode,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewRateLimitError creates an upstream throttling error
func NewRateLimitError(provider string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    fmt.Sprintf("provider %s rate limited the request", provider),
		Provider:   provider,
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewTransientError creates a retryable upstream error
func NewTransientError(provider string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeTransient,
		Message:   fmt.Sprintf("provider %s request failed transiently", provider),
		Provider:  provider,
		Retryable: true,
		Cause:     cause,
	}
}

// NewFatalError creates a non-retryable provider error
func NewFatalError(provider, message string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeFatal,
		Message:   fmt.Sprintf("provider %s: %s", provider, message),
		Provider:  provider,
		Retryable: false,
		Cause:     cause,
	}
}

// NewAllProvidersFailedError creates the terminal gateway failure. The last
// provider tried and its classified error are kept so callers can log them.
func NewAllProvidersFailedError(lastProvider string, lastErr error) *AppError {
	return &AppError{
		Type:       ErrorTypeAllProvidersFailed,
		Message:    fmt.Sprintf("all providers failed (last: %s)", lastProvider),
		Provider:   lastProvider,
		StatusCode: http.StatusBadGateway,
		Retryable:  false,
		Cause:      lastErr,
	}
}

// Classify returns err as an *AppError, wrapping unknown errors as fatal.
// Adapters are expected to return classified errors already; anything else
// means the response was malformed in a way the adapter could not express.
func Classify(provider string, err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewFatalError(provider, "unclassified error", err)
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			Provider:   appErr.Provider,
			StatusCode: appErr.GetStatusCode(),
			Retryable:  appErr.Retryable,
			// Don't expose internal cause; it may carry upstream detail
		}
	}
	return &AppError{
		Type:      ErrorTypeFatal,
		Message:   "an unexpected error occurred",
		Retryable: false,
	}
}
