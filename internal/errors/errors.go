package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Error is the structured error type for MCB.
// It carries enough context for retry decisions, logging, and the
// conversion performed at the tool boundary.
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_NOT_FOUND").
	Code string

	// Kind is the taxonomy entry used for propagation decisions.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string

	// Available lists valid names for Configuration errors raised by the registry.
	Available []string

	// RetryAfter is the provider-requested wait for RateLimited errors.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code so errors.Is works across wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error with the given code and message.
// Kind and the retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Kind:      kindFromCode(code),
		Message:   message,
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error, reusing its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound reports a missing entity.
func NotFound(what string) *Error {
	return New(ErrCodeNotFound, what+" not found", nil)
}

// CollectionNotFound reports a missing collection.
func CollectionNotFound(name string) *Error {
	return New(ErrCodeCollectionNotFound, fmt.Sprintf("collection %q not found", name), nil).
		WithDetail("collection", name)
}

// InvalidArgument reports a caller-side violation.
func InvalidArgument(message string) *Error {
	return New(ErrCodeInvalidArgument, message, nil)
}

// DimensionMismatch reports a vector whose length differs from the collection dimensionality.
func DimensionMismatch(expected, got int) *Error {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}

// Configuration reports invalid configuration.
func Configuration(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// UnknownProvider reports a provider name missing from the registry, listing the valid names.
func UnknownProvider(kind, name string, available []string) *Error {
	e := New(ErrCodeUnknownProvider,
		fmt.Sprintf("unknown %s provider %q (available: %s)", kind, name, strings.Join(available, ", ")), nil)
	e.Available = append([]string(nil), available...)
	return e.WithSuggestion("set " + kind + ".provider to one of the available names")
}

// MissingOption reports a required provider option that was not supplied.
func MissingOption(provider, option string) *Error {
	return New(ErrCodeMissingOption,
		fmt.Sprintf("provider %q requires option %q", provider, option), nil)
}

// Transport reports a retryable network or database failure.
func Transport(message string, cause error) *Error {
	return New(ErrCodeTransport, message, cause)
}

// Unauthorized reports rejected credentials.
func Unauthorized(message string, cause error) *Error {
	return New(ErrCodeUnauthorized, message, cause)
}

// RateLimited reports provider throttling; retryAfter may be zero.
func RateLimited(message string, retryAfter time.Duration, cause error) *Error {
	e := New(ErrCodeRateLimited, message, cause)
	e.RetryAfter = retryAfter
	return e
}

// Cancelled reports observed cooperative cancellation.
func Cancelled(cause error) *Error {
	return New(ErrCodeCancelled, "operation cancelled", cause)
}

// Internal reports an invariant violation.
func Internal(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// FromContext converts context errors into the taxonomy.
// A deadline surfaces as a retryable timeout, a cancellation as Cancelled.
// Other errors are returned unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.Canceled):
		return Cancelled(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return New(ErrCodeTimeout, "deadline exceeded", err)
	default:
		return err
	}
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies any error. Unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return KindCancelled
	case stderrors.Is(err, context.DeadlineExceeded):
		return KindTransport
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable checks if an error is retryable.
// Deadline errors count as retryable timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

// GetCode extracts the error code. Returns empty string if not an *Error.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// RetryAfterOf returns the provider-requested wait, if any.
func RetryAfterOf(err error) time.Duration {
	if e, ok := As(err); ok {
		return e.RetryAfter
	}
	return 0
}
