package embed

import (
	"context"

	"github.com/Aman-CERP/mcb/internal/ports"
)

// DefaultNullDimensions matches the common small sentence-embedding size.
const DefaultNullDimensions = 384

// NullEmbedder returns zero vectors. It exists for wiring tests and for
// running lexical-only search without a model.
type NullEmbedder struct {
	dims int
}

var _ ports.EmbeddingProvider = (*NullEmbedder)(nil)

// NewNullEmbedder creates a null embedder; dims <= 0 selects DefaultNullDimensions.
func NewNullEmbedder(dims int) *NullEmbedder {
	if dims <= 0 {
		dims = DefaultNullDimensions
	}
	return &NullEmbedder{dims: dims}
}

func (e *NullEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dims)
	}
	return out, nil
}

func (e *NullEmbedder) Dimensions() int              { return e.dims }
func (e *NullEmbedder) ProviderName() string         { return ProviderNull }
func (e *NullEmbedder) Model() string                { return "null" }
func (e *NullEmbedder) MaxBatchSize() int            { return 0 }
func (e *NullEmbedder) Health(context.Context) error { return nil }
func (e *NullEmbedder) Close() error                 { return nil }
