package errors

import (
	stderrors "errors"
	"fmt"
)

// AmanError is the structured error type for amanindex.
// It carries the code, classification and user-facing hints for an error.
type AmanError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Concurrency, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AmanError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AmanError.
func (e *AmanError) Is(target error) bool {
	if t, ok := target.(*AmanError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AmanError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AmanError from an existing error.
// The error's message becomes the AmanError message.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *AmanError {
	return New(ErrCodeFileNotFound, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AmanError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

// CollectorNotFound reports a scope with no registered collector.
// This is a configuration problem and is never retried.
func CollectorNotFound(scope string) *AmanError {
	return New(ErrCodeCollectorNotFound, fmt.Sprintf("no collector registered for scope %q", scope), nil).
		WithDetail("scope", scope).
		WithSuggestion("Add the scope to the scopes section of .amanindex.yaml")
}

// IndexBusy reports that another build currently holds the scope's lock.
func IndexBusy(scope string) *AmanError {
	return New(ErrCodeIndexBusy, fmt.Sprintf("index %q is busy", scope), nil).
		WithDetail("scope", scope).
		WithSuggestion("Another rebuild or update is running for this scope; try again later")
}

// StoreWriteFailed wraps a failure to apply a segment to the index store.
func StoreWriteFailed(scope string, cause error) *AmanError {
	return New(ErrCodeStoreWriteFailed, fmt.Sprintf("failed to write to index %q", scope), cause).
		WithDetail("scope", scope)
}

// StoreBusy reports an index store held open by another process, usually a
// status read or a build from another instance.
func StoreBusy(scope string, cause error) *AmanError {
	return New(ErrCodeStoreBusy, fmt.Sprintf("index %q is in use by another process", scope), cause).
		WithDetail("scope", scope).
		WithSuggestion("Retry once the other amanindex process has finished with this scope")
}

// RemoteUnavailable wraps a transient failure talking to a remote backend.
func RemoteUnavailable(message string, cause error) *AmanError {
	return New(ErrCodeRemoteUnavailable, message, cause)
}

// IsBusy reports whether err (or anything it wraps) is an index busy error.
func IsBusy(err error) bool {
	return GetCode(err) == ErrCodeIndexBusy
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an AmanError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// GetCode extracts the error code from an AmanError.
// Returns empty string if err does not wrap an AmanError.
func GetCode(err error) string {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
