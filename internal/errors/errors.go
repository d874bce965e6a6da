package errors

import (
	"fmt"
)

// ScoutError is the structured error type for docscout.
// It provides rich context for error handling, logging, and user presentation.
type ScoutError struct {
	// Code is the unique error code (e.g., "ERR_202_EXTRACTION_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *ScoutError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ScoutError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ScoutError.
func (e *ScoutError) Is(target error) bool {
	if t, ok := target.(*ScoutError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ScoutError) WithDetail(key, value string) *ScoutError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ScoutError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ScoutError {
	return &ScoutError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ScoutError from an existing error.
// The error's message becomes the ScoutError message.
func Wrap(code string, err error) *ScoutError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel errors for the query boundary. Per the search contract these are
// the only error kinds surfaced to external callers.
var (
	// ErrIndexNotReady is returned when search is called before any
	// successful index build.
	ErrIndexNotReady = New(ErrCodeIndexNotReady, "index not ready: run an index build first", nil)

	// ErrEmbeddingUnavailable is returned when the embedding provider is
	// unreachable or misconfigured. Fatal to the query, never retried silently.
	ErrEmbeddingUnavailable = New(ErrCodeEmbedderUnavailable, "embedding provider unavailable", nil)

	// ErrBuildInProgress is returned when a build cycle is requested while
	// another one is already running.
	ErrBuildInProgress = New(ErrCodeBuildInProgress, "an index build is already in progress", nil)
)

// ExtractionError creates a per-document extraction error.
// Non-fatal to a build cycle: the document is skipped and reported.
func ExtractionError(path string, cause error) *ScoutError {
	return New(ErrCodeExtractionFailed, fmt.Sprintf("failed to extract %s", path), cause).
		WithDetail("path", path)
}

// DimensionMismatchError creates a fatal configuration error for an embedding
// dimension change between the configured provider and the persisted index.
func DimensionMismatchError(indexDim, providerDim int) *ScoutError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("index has %d dimensions but provider produces %d: a full rebuild is required (docscout index --force)", indexDim, providerDim),
		nil)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a ScoutError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*ScoutError); ok {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*ScoutError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ScoutError.
// Returns empty string if not a ScoutError.
func GetCode(err error) string {
	if se, ok := err.(*ScoutError); ok {
		return se.Code
	}
	return ""
}
