// Package embed provides embedding providers and the batching layer that
// sits between them and the indexer.
package embed

import (
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per provider request.
	DefaultBatchSize = 32

	// MaxBatchSize caps any configured batch size.
	MaxBatchSize = 2048

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxAttempts is the retry budget for transient failures.
	DefaultMaxAttempts = 3

	// StaticDimensions is the dimensionality of the static embedder.
	StaticDimensions = 256
)

// Provider names as registered.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
	ProviderNull   = "null"
)
