package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeRemoteFetch  ErrorType = "remote_fetch"
	ErrorTypeUpload       ErrorType = "upload"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrMemberNotFound = NewDomainError(ErrorTypeNotFound, "member not found", nil)
	ErrJobNotFound    = NewDomainError(ErrorTypeNotFound, "retrieval job not found", nil)

	ErrInvalidDateRange = NewDomainError(ErrorTypeValidation, "start date must not be after end date", nil)

	ErrTokenRevoked = NewDomainError(ErrorTypeUnauthorized, "open humans authorization revoked", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)

	ErrOpenHumansUnavailable = NewDomainError(ErrorTypeExternal, "open humans unavailable", nil)

	// ErrRemoteFetch marks a failed access-log retrieval from the remote API.
	ErrRemoteFetch = NewDomainError(ErrorTypeRemoteFetch, "access log retrieval failed", nil)
	// ErrUpload marks a failed delivery of an export file to storage.
	ErrUpload = NewDomainError(ErrorTypeUpload, "export upload failed", nil)
)

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsExternalError checks if an error came from an upstream service,
// including remote fetch and upload failures
func IsExternalError(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeExternal, ErrorTypeRemoteFetch, ErrorTypeUpload:
		return true
	}
	return false
}

// IsRemoteFetchError checks if an error is a remote log fetch error
func IsRemoteFetchError(err error) bool {
	return hasErrorType(err, ErrorTypeRemoteFetch)
}

// IsUploadError checks if an error is an upload error
func IsUploadError(err error) bool {
	return hasErrorType(err, ErrorTypeUpload)
}

// hasErrorType walks the whole error tree, including joined errors
func hasErrorType(err error, errType ErrorType) bool {
	return errors.Is(err, &DomainError{Type: errType})
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external service error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// NewRemoteFetchError reports a failed request against the access-log API
func NewRemoteFetchError(endpoint string, err error) *DomainError {
	return NewDomainError(ErrorTypeRemoteFetch, ErrRemoteFetch.Message, err).
		WithDetail("endpoint", endpoint)
}

// NewUploadError reports a failed delivery of one export file
func NewUploadError(filename string, err error) *DomainError {
	return NewDomainError(ErrorTypeUpload, ErrUpload.Message, err).
		WithDetail("filename", filename)
}
