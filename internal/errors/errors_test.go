package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Error wrapping preserves original error
func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := stderrors.New("connection refused")

	// When: wrapping as a transport error
	err := Transport("qdrant unreachable", originalErr)

	// Then: unwrapping returns the original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, stderrors.Unwrap(err))
	assert.True(t, stderrors.Is(err, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "not found",
			err:      NotFound("observation o1"),
			expected: "[ERR_201_NOT_FOUND] observation o1 not found",
		},
		{
			name:     "dimension mismatch",
			err:      DimensionMismatch(384, 768),
			expected: "[ERR_402_DIMENSION_MISMATCH] dimension mismatch: expected 384, got 768",
		},
		{
			name:     "invalid argument",
			err:      InvalidArgument("k must be positive"),
			expected: "[ERR_401_INVALID_ARGUMENT] k must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with the same code
	err1 := NotFound("a")
	err2 := NotFound("b")

	// Then: they match by code, even when wrapped
	assert.True(t, stderrors.Is(err1, err2))
	assert.True(t, stderrors.Is(fmt.Errorf("lookup: %w", err1), err2))
	assert.False(t, stderrors.Is(err1, InvalidArgument("x")))
}

// TS02: Constructors assign the taxonomy kind
func TestConstructors_AssignKinds(t *testing.T) {
	tests := []struct {
		err       error
		kind      Kind
		retryable bool
	}{
		{NotFound("x"), KindNotFound, false},
		{CollectionNotFound("c"), KindNotFound, false},
		{InvalidArgument("x"), KindInvalidArgument, false},
		{DimensionMismatch(1, 2), KindDimensionMismatch, false},
		{Configuration("x", nil), KindConfiguration, false},
		{UnknownProvider("vector_store", "x", nil), KindConfiguration, false},
		{MissingOption("openai", "api_key"), KindConfiguration, false},
		{Transport("x", nil), KindTransport, true},
		{Unauthorized("x", nil), KindUnauthorized, false},
		{RateLimited("x", 0, nil), KindRateLimited, true},
		{Cancelled(nil), KindCancelled, false},
		{Internal("x", nil), KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestUnknownProvider_ListsAvailableNames(t *testing.T) {
	// When: a provider name is unknown
	err := UnknownProvider("vector_store", "nonexistent", []string{"hnsw", "in_memory"})

	// Then: the message and the Available field carry the names
	assert.Contains(t, err.Error(), "nonexistent")
	assert.Contains(t, err.Error(), "in_memory")
	assert.Equal(t, []string{"hnsw", "in_memory"}, err.Available)
	assert.NotEmpty(t, err.Suggestion)
}

func TestKindOf_ClassifiesPlainErrors(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("boom")))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindTransport, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", NotFound("x"))))
}

func TestFromContext_MapsContextErrors(t *testing.T) {
	assert.Nil(t, FromContext(nil))

	cancelled := FromContext(context.Canceled)
	assert.True(t, IsKind(cancelled, KindCancelled))

	timeout := FromContext(context.DeadlineExceeded)
	assert.True(t, IsKind(timeout, KindTransport))
	assert.True(t, IsRetryable(timeout))
	assert.Equal(t, ErrCodeTimeout, GetCode(timeout))

	plain := stderrors.New("x")
	assert.Equal(t, plain, FromContext(plain))
}

func TestWithDetail_AddsContext(t *testing.T) {
	err := NotFound("file").WithDetail("path", "a.go").WithSuggestion("re-index")

	assert.Equal(t, "a.go", err.Details["path"])
	assert.Equal(t, "re-index", err.Suggestion)
}

func TestRateLimited_CarriesRetryAfter(t *testing.T) {
	err := fmt.Errorf("embed: %w", RateLimited("slow down", 2*time.Second, nil))
	assert.Equal(t, 2*time.Second, RetryAfterOf(err))
	assert.Zero(t, RetryAfterOf(stderrors.New("x")))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
