package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/config"
	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/search"
)

func TestIndexAndSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	backends := []struct {
		name    string
		lexical string
		fusion  string
	}{
		{"sqlite linear", "sqlite", "linear"},
		{"bleve rrf", "bleve", "rrf"},
		{"memory linear", "memory", "linear"},
	}

	for _, tt := range backends {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			a := newApp(t, func(cfg *config.Config) {
				cfg.Search.LexicalBackend = tt.lexical
				cfg.Search.Fusion = tt.fusion
			})
			root := writeCorpus(t, corpus)

			res, err := a.Index(ctx, root, "", a.IndexOptions())
			require.NoError(t, err)
			assert.Equal(t, index.StatusCompleted, res.Status)
			assert.Equal(t, len(corpus), res.FilesProcessed)
			assert.Positive(t, res.ChunksCreated)
			assert.Empty(t, res.Errors)

			results, err := a.Search(ctx, search.Request{Query: "bearer token middleware", Limit: 3})
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Contains(t, paths(results), "auth/middleware.go")
			for i := 1; i < len(results); i++ {
				assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
			}

			py, err := a.Search(ctx, search.Request{
				Query:  "retry backoff",
				Filter: domain.SearchFilter{Language: "python"},
			})
			require.NoError(t, err)
			require.NotEmpty(t, py)
			for _, r := range py {
				assert.Equal(t, "retry/backoff.py", r.FilePath)
			}
		})
	}
}

func TestIncrementalReindex(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	a := newApp(t, nil)
	root := writeCorpus(t, corpus)

	_, err := a.Index(ctx, root, "", a.IndexOptions())
	require.NoError(t, err)

	// Given: one file edited and one deleted
	writeFile(t, root, "web/cart.ts", "export function cartTax(total: number): number {\n  return total * 0.2\n}\n")
	require.NoError(t, os.Remove(filepath.Join(root, "docs", "deploy.md")))

	// When: reindexing
	res, err := a.Index(ctx, root, "", a.IndexOptions())

	// Then: only the edit is processed and the deletion leaves a tombstone
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesProcessed)
	assert.Equal(t, 1, res.FilesDeleted)
	assert.Equal(t, len(corpus)-2, res.FilesUnchanged)

	tombstones, err := a.TombstoneCount(ctx, "shop")
	require.NoError(t, err)
	assert.Positive(t, tombstones)

	results, err := a.Search(ctx, search.Request{Query: "container image deployment"})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "docs/deploy.md", r.FilePath)
	}

	check, err := a.Check(ctx, "shop")
	require.NoError(t, err)
	assert.Empty(t, check.Inconsistencies)

	stats, err := a.Stats(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, len(corpus)-1, stats.Files)
}

func TestVectorsSurviveRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	home := t.TempDir()
	root := writeCorpus(t, corpus)
	pin := func(cfg *config.Config) {
		cfg.Database.Path = filepath.Join(home, "mcb.db")
		cfg.VectorStore.Path = filepath.Join(home, "vectors")
	}

	first := newApp(t, pin)
	_, err := first.Index(ctx, root, "", first.IndexOptions())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newApp(t, pin)
	res, err := second.Index(ctx, root, "", second.IndexOptions())
	require.NoError(t, err)
	assert.Equal(t, len(corpus), res.FilesUnchanged)

	results, err := second.Search(ctx, search.Request{Query: "cart total price"})
	require.NoError(t, err)
	assert.Contains(t, paths(results), "web/cart.ts")
}

func TestMemoryRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	a := newApp(t, nil)

	decision := &domain.Observation{
		Content:  "Payments retry with exponential backoff, three attempts",
		Type:     domain.ObservationDecision,
		Tags:     []string{"payments"},
		Metadata: domain.ObservationMetadata{SessionID: "s-1", Branch: "main"},
	}
	id, created, err := a.StoreObservation(ctx, decision)
	require.NoError(t, err)
	require.True(t, created)

	_, _, err = a.StoreObservation(ctx, &domain.Observation{
		Content:  "Cart totals are computed client side",
		Type:     domain.ObservationContext,
		Metadata: domain.ObservationMetadata{SessionID: "s-1"},
	})
	require.NoError(t, err)

	found, err := a.SearchMemories(ctx, "backoff retry", domain.MemoryFilter{Type: domain.ObservationDecision}, 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id, found[0].Observation.ID)

	timeline, err := a.GetTimeline(ctx, id, 5, 5, domain.MemoryFilter{})
	require.NoError(t, err)
	assert.Len(t, timeline, 2)

	require.NoError(t, a.StoreSessionSummary(ctx, &domain.SessionSummary{
		SessionID: "s-1",
		Decisions: []string{"exponential backoff"},
	}))
	sum, err := a.GetSessionSummary(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"exponential backoff"}, sum.Decisions)

	require.NoError(t, a.DeleteObservation(ctx, id))
	left, err := a.GetObservations(ctx, []string{id})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func paths(results []domain.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.FilePath)
	}
	return out
}
