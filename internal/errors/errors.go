package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeCSRFMismatch means the callback state did not match the pending login.
	ErrCodeCSRFMismatch ErrorCode = "csrf_mismatch"
	// ErrCodeProviderRejected means the identity provider refused the code or token.
	ErrCodeProviderRejected ErrorCode = "provider_rejected"
	// ErrCodeTransportFailure means the identity provider could not be reached.
	ErrCodeTransportFailure ErrorCode = "transport_failure"
	// ErrCodeStorageUnavailable means the session or user store could not be reached.
	ErrCodeStorageUnavailable ErrorCode = "storage_unavailable"
	// ErrCodePayloadCorrupt means a stored session payload could not be decoded.
	ErrCodePayloadCorrupt ErrorCode = "payload_corrupt"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether restarting the whole operation may succeed.
func (e *AppError) Retryable() bool {
	switch e.Code {
	case ErrCodeTransportFailure, ErrCodeStorageUnavailable, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// CSRFMismatch creates the error returned for a forged or stale callback.
// The message is deliberately generic; it is safe to show to end users.
func CSRFMismatch() *AppError {
	return &AppError{Code: ErrCodeCSRFMismatch, Message: "login state could not be verified"}
}

// ProviderRejected wraps a refusal from the identity provider.
func ProviderRejected(err error, message string) *AppError {
	return &AppError{Code: ErrCodeProviderRejected, Message: message, Cause: err}
}

// TransportFailure wraps a network or timeout failure talking to the identity provider.
func TransportFailure(err error, message string) *AppError {
	return &AppError{Code: ErrCodeTransportFailure, Message: message, Cause: err}
}

// StorageUnavailable wraps a failure of the session or user store.
func StorageUnavailable(err error, message string) *AppError {
	return &AppError{Code: ErrCodeStorageUnavailable, Message: message, Cause: err}
}

// PayloadCorrupt wraps a session payload decode failure.
func PayloadCorrupt(err error) *AppError {
	return &AppError{Code: ErrCodePayloadCorrupt, Message: "session payload is corrupt", Cause: err}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code anywhere in its chain.
func isCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// IsCSRFMismatch checks if an error is a CSRF mismatch.
func IsCSRFMismatch(err error) bool { return isCode(err, ErrCodeCSRFMismatch) }

// IsProviderRejected checks if an error is a provider rejection.
func IsProviderRejected(err error) bool { return isCode(err, ErrCodeProviderRejected) }

// IsTransportFailure checks if an error is a provider transport failure.
func IsTransportFailure(err error) bool { return isCode(err, ErrCodeTransportFailure) }

// IsStorageUnavailable checks if an error is a storage backend failure.
func IsStorageUnavailable(err error) bool { return isCode(err, ErrCodeStorageUnavailable) }

// IsPayloadCorrupt checks if an error is a payload decode failure.
func IsPayloadCorrupt(err error) bool { return isCode(err, ErrCodePayloadCorrupt) }

// IsRetryable reports whether the outermost AppError in the chain is retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Retryable()
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
