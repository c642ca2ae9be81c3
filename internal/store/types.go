// Package store holds the vector store providers and the lexical (BM25)
// backends.
package store

import (
	"math"
)

// BM25 defaults.
const (
	DefaultK1             = 1.2
	DefaultB              = 0.75
	DefaultMinTokenLength = 2
)

// BM25Config configures scoring and tokenization.
type BM25Config struct {
	// K1 is the term frequency saturation parameter.
	K1 float64

	// B is the length normalization parameter.
	B float64

	// StopWords are dropped during tokenization. Empty by default.
	StopWords []string

	// MinTokenLength is the shortest indexed term.
	MinTokenLength int

	SplitIdentifiers bool
}

// DefaultBM25Config returns k1=1.2, b=0.75.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: DefaultK1, B: DefaultB, MinTokenLength: DefaultMinTokenLength}
}

// BM25Params are the per-collection scoring parameters.
type BM25Params struct {
	K1 float64
	B  float64
}

// IDF is the non-negative BM25 inverse document frequency. A corpus of one
// document gives every term weight 1.
func IDF(n, df int) float64 {
	if n <= 1 {
		return 1
	}
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// TermScore is one term's BM25 contribution for a document.
func TermScore(p BM25Params, idf float64, tf, docLen int, avgDocLen float64) float64 {
	if tf == 0 {
		return 0
	}
	norm := 1.0
	if avgDocLen > 0 {
		norm = 1 - p.B + p.B*float64(docLen)/avgDocLen
	}
	f := float64(tf)
	return idf * f * (p.K1 + 1) / (f + p.K1*norm)
}

// Vector store provider names.
const (
	ProviderMemory = "in_memory"
	ProviderHNSW   = "hnsw"
	ProviderQdrant = "qdrant"
	ProviderNull   = "null"
)

// Metric names.
const (
	MetricCosine = "cos"
	MetricL2     = "l2"
)

// distanceToScore maps a metric distance to a similarity in [0,1].
// Cosine distance ranges 0..2; L2 ranges 0..inf.
func distanceToScore(distance float32, metric string) float64 {
	switch metric {
	case MetricL2:
		return 1 / (1 + float64(distance))
	default:
		return 1 - float64(distance)/2
	}
}
