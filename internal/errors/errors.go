package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the structured error type for crmrag.
// It provides rich context for error handling, logging, and user presentation.
type AppError struct {
	// Code is the unique error code (e.g., "ERR_503_RETRIEVAL_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
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
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code, so errors.Is works against the
// exported sentinels below.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AppError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AppError from an existing error.
// The error's message becomes the AppError message.
func Wrap(code string, err error) *AppError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks. They match any AppError with the same code.
var (
	ErrRetrievalUnavailable = New(ErrCodeRetrievalUnavailable, "retrieval unavailable", nil)
	ErrDimensionMismatch    = New(ErrCodeDimensionMismatch, "embedding dimension mismatch", nil)
	ErrConfigInvalid        = New(ErrCodeConfigInvalid, "invalid configuration", nil)
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AppError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ArtifactError creates an error for an unreadable or malformed artifact.
func ArtifactError(message string, cause error) *AppError {
	return New(ErrCodeCorruptArtifact, message, cause).
		WithSuggestion("rebuild the artifact with the upstream document builder")
}

// NetworkError creates a collaborator error. Network errors are retryable.
func NetworkError(message string, cause error) *AppError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AppError {
	return New(ErrCodeInvalidInput, message, cause)
}

// DimensionMismatch reports an embedder whose output size differs from the corpus.
func DimensionMismatch(expected, got int) *AppError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding dimension mismatch: corpus has %d, embedder produces %d", expected, got), nil).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got)).
		WithSuggestion("configure the embedding model the artifact was built with")
}

// RetrievalUnavailable reports that no retrieval channel produced candidates.
func RetrievalUnavailable(cause error) *AppError {
	return New(ErrCodeRetrievalUnavailable, "all retrieval channels failed", cause).
		WithSuggestion("check the embedding service and the loaded artifact")
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AppError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetrievalUnavailable reports whether err means retrieval could not run at all,
// as opposed to a successful retrieval with no results.
func IsRetrievalUnavailable(err error) bool {
	return stderrors.Is(err, ErrRetrievalUnavailable)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AppError.
// Returns empty string if not an AppError.
func GetCode(err error) string {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AppError.
func GetCategory(err error) Category {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Category
	}
	return ""
}
