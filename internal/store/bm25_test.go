package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizer_LowercasesSplitsAndDropsShortTerms(t *testing.T) {
	tok := NewTokenizer(DefaultBM25Config())

	got := tok.Tokenize("The quick-brown Fox, a x1 y")

	assert.Equal(t, []string{"the", "quick", "brown", "fox", "x1"}, got)
}

func TestTokenizer_SplitIdentifiersAndStopWords(t *testing.T) {
	cfg := DefaultBM25Config()
	cfg.SplitIdentifiers = true
	cfg.StopWords = []string{"By"}
	tok := NewTokenizer(cfg)

	got := tok.Tokenize("getUserById HTTPHandler")

	assert.Equal(t, []string{"get", "user", "id", "http", "handler"}, got)
}

func TestTokenizer_TermFrequencies(t *testing.T) {
	tf, n := NewTokenizer(DefaultBM25Config()).TermFrequencies("fox fox dog")

	assert.Equal(t, 3, n)
	assert.Equal(t, map[string]int{"fox": 2, "dog": 1}, tf)
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"getUserById", []string{"get", "User", "By", "Id"}},
		{"HTTPHandler", []string{"HTTP", "Handler"}},
		{"lower", []string{"lower"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitCamelCase(tt.in))
		})
	}
}

func TestIDF(t *testing.T) {
	assert.Equal(t, 1.0, IDF(0, 0))
	assert.Equal(t, 1.0, IDF(1, 1))
	assert.InDelta(t, math.Log(2), IDF(2, 1), 1e-12)
	// A term in every document still has positive weight.
	assert.Greater(t, IDF(10, 10), 0.0)
}

func TestTermScore_LengthNormalisation(t *testing.T) {
	p := BM25Params{K1: DefaultK1, B: DefaultB}

	short := TermScore(p, 1, 1, 2, 4)
	long := TermScore(p, 1, 1, 8, 4)

	assert.Greater(t, short, long)
	assert.Zero(t, TermScore(p, 1, 0, 2, 4))

	// b=0 disables length normalisation.
	flat := BM25Params{K1: DefaultK1, B: 0}
	assert.InDelta(t, TermScore(flat, 1, 1, 2, 4), TermScore(flat, 1, 1, 8, 4), 1e-12)
}

func TestMemoryLexical_ScoreMatchesFormula(t *testing.T) {
	// Given: two documents, "fox" appears in one of three tokens
	ctx := context.Background()
	idx := NewMemoryLexical(DefaultBM25Config())
	require.NoError(t, idx.Index(ctx, "c", testDocs{
		{ID: "a", Content: "quick brown fox"},
		{ID: "b", Content: "lazy dog"},
	}.docs()))

	// When: searching for fox
	hits, err := idx.Search(ctx, "c", "fox", 10)
	require.NoError(t, err)

	// Then: the score is idf * tf(k1+1) / (tf + k1(1-b+b*len/avg))
	require.Len(t, hits, 1)
	want := math.Log(2) * 2.2 / (1 + 1.2*(0.25+0.75*3/2.5))
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, want, hits[0].Score, 1e-9)
}

func TestMemoryLexical_SetParamsChangesScores(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryLexical(DefaultBM25Config())
	docs := testDocs{{ID: "a", Content: "fox fox fox"}, {ID: "b", Content: "dog"}}.docs()
	require.NoError(t, idx.Index(ctx, "c", docs))
	before, err := idx.Search(ctx, "c", "fox", 1)
	require.NoError(t, err)

	idx.SetParams("c", BM25Params{K1: 0.1, B: DefaultB})
	after, err := idx.Search(ctx, "c", "fox", 1)
	require.NoError(t, err)

	assert.Less(t, after[0].Score, before[0].Score)
}

func TestMemoryLexical_Stats(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryLexical(DefaultBM25Config())
	require.NoError(t, idx.Index(ctx, "c", testDocs{{ID: "a", Content: "one two"}, {ID: "b", Content: "two three four"}}.docs()))

	docs, terms, avg := idx.Stats("c")

	assert.Equal(t, 2, docs)
	assert.Equal(t, 4, terms)
	assert.InDelta(t, 2.5, avg, 1e-12)
}
