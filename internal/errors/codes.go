// Package errors provides the structured error taxonomy shared by every
// MCB component.
//
// Every error carries a Kind from a fixed set and a machine-readable code
// following the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Lookup errors
//   - 3XX: Provider and transport errors
//   - 4XX: Caller errors
//   - 5XX: Internal errors and cancellation
package errors

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// KindNotFound means a requested entity or collection is absent.
	KindNotFound Kind = "not_found"
	// KindInvalidArgument is a caller-side violation.
	KindInvalidArgument Kind = "invalid_argument"
	// KindDimensionMismatch means an embedding length differs from the collection dimensionality.
	KindDimensionMismatch Kind = "dimension_mismatch"
	// KindConfiguration covers unknown providers and missing options.
	KindConfiguration Kind = "configuration"
	// KindTransport covers network and database I/O failures.
	KindTransport Kind = "transport"
	// KindUnauthorized means a provider rejected credentials.
	KindUnauthorized Kind = "unauthorized"
	// KindRateLimited means a provider throttled the request.
	KindRateLimited Kind = "rate_limited"
	// KindCancelled means cooperative cancellation was observed.
	KindCancelled Kind = "cancelled"
	// KindInternal means an invariant was violated.
	KindInternal Kind = "internal"
)

// Error codes organized by range.
const (
	// Configuration errors (100-199)
	ErrCodeConfigInvalid   = "ERR_101_CONFIG_INVALID"
	ErrCodeUnknownProvider = "ERR_102_UNKNOWN_PROVIDER"
	ErrCodeMissingOption   = "ERR_103_MISSING_OPTION"

	// Lookup errors (200-299)
	ErrCodeNotFound           = "ERR_201_NOT_FOUND"
	ErrCodeCollectionNotFound = "ERR_202_COLLECTION_NOT_FOUND"

	// Provider and transport errors (300-399)
	ErrCodeTransport    = "ERR_301_TRANSPORT"
	ErrCodeTimeout      = "ERR_302_TIMEOUT"
	ErrCodeUnauthorized = "ERR_303_UNAUTHORIZED"
	ErrCodeRateLimited  = "ERR_304_RATE_LIMITED"
	ErrCodeCircuitOpen  = "ERR_305_CIRCUIT_OPEN"

	// Caller errors (400-499)
	ErrCodeInvalidArgument   = "ERR_401_INVALID_ARGUMENT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeInvalidPath       = "ERR_404_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal  = "ERR_501_INTERNAL"
	ErrCodeCancelled = "ERR_502_CANCELLED"
)

var codeKinds = map[string]Kind{
	ErrCodeConfigInvalid:      KindConfiguration,
	ErrCodeUnknownProvider:    KindConfiguration,
	ErrCodeMissingOption:      KindConfiguration,
	ErrCodeNotFound:           KindNotFound,
	ErrCodeCollectionNotFound: KindNotFound,
	ErrCodeTransport:          KindTransport,
	ErrCodeTimeout:            KindTransport,
	ErrCodeCircuitOpen:        KindTransport,
	ErrCodeUnauthorized:       KindUnauthorized,
	ErrCodeRateLimited:        KindRateLimited,
	ErrCodeInvalidArgument:    KindInvalidArgument,
	ErrCodeQueryEmpty:         KindInvalidArgument,
	ErrCodeInvalidPath:        KindInvalidArgument,
	ErrCodeDimensionMismatch:  KindDimensionMismatch,
	ErrCodeInternal:           KindInternal,
	ErrCodeCancelled:          KindCancelled,
}

// kindFromCode resolves the kind for a known code, Internal otherwise.
func kindFromCode(code string) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindInternal
}

// isRetryableCode reports whether errors with this code may succeed on retry.
// An open circuit is not retryable.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTransport, ErrCodeTimeout, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}
