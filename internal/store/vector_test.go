package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

func vectorStores(t *testing.T) map[string]ports.VectorStore {
	t.Helper()
	hnswStore, err := NewHNSWStore(DefaultHNSWConfig(""), nil)
	require.NoError(t, err)
	out := map[string]ports.VectorStore{
		ProviderMemory: NewMemoryStore(),
		ProviderHNSW:   hnswStore,
	}
	for _, s := range out {
		t.Cleanup(func() { _ = s.Close() })
	}
	return out
}

func record(id, path string, vec ...float32) domain.VectorRecord {
	return domain.VectorRecord{ID: id, Vector: vec, Metadata: map[string]string{
		domain.MetaFilePath: path,
		domain.MetaContent:  "content of " + id,
		domain.MetaLanguage: "go",
	}}
}

func TestVectorStore_UpsertAndSearch(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Given: three vectors in a 4-dim collection
			require.NoError(t, s.EnsureCollection(ctx, "code", 4))
			require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{
				record("a", "a.go", 1, 0, 0, 0),
				record("b", "b.go", 0, 1, 0, 0),
				record("c", "c.go", 0.9, 0.1, 0, 0),
			}))

			// When: searching for [1,0,0,0] with k=2
			results, err := s.Search(ctx, "code", []float32{1, 0, 0, 0}, 2, domain.SearchFilter{})
			require.NoError(t, err)

			// Then: the exact match ranks first with score 1
			require.Len(t, results, 2)
			assert.Equal(t, "a", results[0].ChunkID)
			assert.Equal(t, "c", results[1].ChunkID)
			assert.InDelta(t, 1.0, results[0].Score, 1e-5)
			assert.Greater(t, results[0].Score, results[1].Score)
			assert.Equal(t, "a.go", results[0].FilePath)
			assert.Equal(t, "content of a", results[0].Content)
		})
	}
}

func TestVectorStore_OrthogonalScoresHalf(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.EnsureCollection(ctx, "code", 2))
			require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{record("x", "x.go", 0, 1)}))

			results, err := s.Search(ctx, "code", []float32{1, 0}, 1, domain.SearchFilter{})
			require.NoError(t, err)

			require.Len(t, results, 1)
			assert.InDelta(t, 0.5, results[0].Score, 1e-5)
		})
	}
}

func TestVectorStore_DimensionMismatchWritesNothing(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Given: a 384-dim collection
			require.NoError(t, s.EnsureCollection(ctx, "code", 384))

			// When: a batch holds one 768-dim vector
			good := record("ok", "ok.go", make([]float32, 384)...)
			good.Vector[0] = 1
			bad := record("bad", "bad.go", make([]float32, 768)...)
			err := s.Upsert(ctx, "code", []domain.VectorRecord{good, bad})

			// Then: DimensionMismatch, and neither record was stored
			require.Error(t, err)
			assert.Equal(t, mcberrors.ErrCodeDimensionMismatch, mcberrors.GetCode(err))
			n, err := s.Count(ctx, "code")
			require.NoError(t, err)
			assert.Zero(t, n)

			// And: re-creating with another size also fails
			err = s.EnsureCollection(ctx, "code", 768)
			assert.Equal(t, mcberrors.ErrCodeDimensionMismatch, mcberrors.GetCode(err))

			// And: a wrong-size query fails
			_, err = s.Search(ctx, "code", make([]float32, 3), 1, domain.SearchFilter{})
			assert.Equal(t, mcberrors.ErrCodeDimensionMismatch, mcberrors.GetCode(err))
		})
	}
}

func TestVectorStore_UnknownCollection(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Search(ctx, "nope", []float32{1}, 1, domain.SearchFilter{})
			assert.Equal(t, mcberrors.ErrCodeCollectionNotFound, mcberrors.GetCode(err))

			err = s.Upsert(ctx, "nope", nil)
			assert.Equal(t, mcberrors.ErrCodeCollectionNotFound, mcberrors.GetCode(err))

			ok, err := s.CollectionExists(ctx, "nope")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestVectorStore_InvalidArguments(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			assert.True(t, mcberrors.IsKind(s.EnsureCollection(ctx, "code", 0), mcberrors.KindInvalidArgument))
			assert.True(t, mcberrors.IsKind(s.EnsureCollection(ctx, "", 4), mcberrors.KindInvalidArgument))

			require.NoError(t, s.EnsureCollection(ctx, "code", 2))
			err := s.Upsert(ctx, "code", []domain.VectorRecord{{Vector: []float32{1, 0}}})
			assert.True(t, mcberrors.IsKind(err, mcberrors.KindInvalidArgument))
		})
	}
}

func TestVectorStore_UpsertIsIdempotentOnID(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.EnsureCollection(ctx, "code", 2))
			require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{record("a", "a.go", 1, 0)}))
			require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{record("a", "moved.go", 0, 1)}))

			n, err := s.Count(ctx, "code")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			results, err := s.Search(ctx, "code", []float32{0, 1}, 5, domain.SearchFilter{})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "moved.go", results[0].FilePath)
			assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		})
	}
}

func TestVectorStore_DeleteByFileAndListings(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.EnsureCollection(ctx, "code", 2))
			require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{
				record("a1", "a.go", 1, 0),
				record("a2", "a.go", 0.8, 0.2),
				record("b1", "b.go", 0, 1),
			}))

			paths, err := s.ListFilePaths(ctx, "code", 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.go", "b.go"}, paths)

			n, err := s.DeleteByFile(ctx, "code", "a.go")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			vecs, err := s.ListVectors(ctx, "code", 10)
			require.NoError(t, err)
			require.Len(t, vecs, 1)
			assert.Equal(t, "b1", vecs[0].ID)
			assert.Len(t, vecs[0].Vector, 2)

			results, err := s.Search(ctx, "code", []float32{1, 0}, 5, domain.SearchFilter{})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "b1", results[0].ChunkID)
		})
	}
}

func TestVectorStore_FilterNarrowsResults(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.EnsureCollection(ctx, "code", 2))
			onMain := record("m", "src/main.go", 1, 0)
			onMain.Metadata[domain.MetaBranch] = "main"
			feat := record("f", "src/feat.go", 1, 0)
			feat.Metadata[domain.MetaBranch] = "feature"
			require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{onMain, feat}))

			results, err := s.Search(ctx, "code", []float32{1, 0}, 5, domain.SearchFilter{Branch: "feature"})
			require.NoError(t, err)

			require.Len(t, results, 1)
			assert.Equal(t, "f", results[0].ChunkID)
		})
	}
}

func TestVectorStore_EmptyCollectionAndZeroK(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.EnsureCollection(ctx, "code", 2))
			require.NoError(t, s.EnsureCollection(ctx, "code", 2))

			results, err := s.Search(ctx, "code", []float32{1, 0}, 5, domain.SearchFilter{})
			require.NoError(t, err)
			assert.Empty(t, results)

			require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{record("a", "a.go", 1, 0)}))
			results, err = s.Search(ctx, "code", []float32{1, 0}, 0, domain.SearchFilter{})
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestVectorStore_DropCollection(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.EnsureCollection(ctx, "code", 2))
			require.NoError(t, s.DropCollection(ctx, "code"))

			ok, err := s.CollectionExists(ctx, "code")
			require.NoError(t, err)
			assert.False(t, ok)

			// A dropped collection can come back with a new size.
			require.NoError(t, s.EnsureCollection(ctx, "code", 3))
		})
	}
}

func TestHNSWStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Given: a collection flushed to disk
	s, err := NewHNSWStore(DefaultHNSWConfig(dir), nil)
	require.NoError(t, err)
	require.NoError(t, s.EnsureCollection(ctx, "code", 3))
	require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{
		record("a", "a.go", 1, 0, 0),
		record("b", "b.go", 0, 1, 0),
	}))
	_, err = s.DeleteByFile(ctx, "code", "b.go")
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx, "code"))
	require.NoError(t, s.Close())

	// When: reopened
	reopened, err := NewHNSWStore(DefaultHNSWConfig(dir), nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: live vectors, metadata and the dimension survive
	n, err := reopened.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := reopened.Search(ctx, "code", []float32{1, 0, 0}, 5, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go", results[0].FilePath)

	err = reopened.EnsureCollection(ctx, "code", 4)
	assert.Equal(t, mcberrors.ErrCodeDimensionMismatch, mcberrors.GetCode(err))
}

func TestHNSWStore_StatsCountsOrphans(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWStore(DefaultHNSWConfig(""), nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.EnsureCollection(ctx, "code", 2))
	require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{record("a", "a.go", 1, 0), record("b", "b.go", 0, 1)}))
	_, err = s.DeleteByFile(ctx, "code", "a.go")
	require.NoError(t, err)

	stats, err := s.Stats("code")
	require.NoError(t, err)

	assert.Equal(t, HNSWStats{ValidIDs: 1, GraphNodes: 2, Orphans: 1}, stats)
}

func TestNullStore(t *testing.T) {
	ctx := context.Background()
	var s NullStore

	require.NoError(t, s.EnsureCollection(ctx, "code", 8))
	require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{record("a", "a.go", 1)}))
	results, err := s.Search(ctx, "code", []float32{1}, 5, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, ProviderNull, s.ProviderName())
}

func TestQdrantHelpers(t *testing.T) {
	// Point ids are stable per chunk id.
	assert.Equal(t, pointID("chunk-1").GetUuid(), pointID("chunk-1").GetUuid())
	assert.NotEqual(t, pointID("chunk-1").GetUuid(), pointID("chunk-2").GetUuid())

	id, md := fromPayload(toPayload("c1", map[string]string{domain.MetaFilePath: "a.go"}))
	assert.Equal(t, "c1", id)
	assert.Equal(t, map[string]string{domain.MetaFilePath: "a.go"}, md)

	assert.Nil(t, serverFilter(domain.SearchFilter{Language: "go"}))
	assert.Len(t, serverFilter(domain.SearchFilter{Branch: "main"}).GetMust(), 1)
}

func TestDistanceToScore(t *testing.T) {
	assert.InDelta(t, 1.0, distanceToScore(0, MetricCosine), 1e-12)
	assert.InDelta(t, 0.5, distanceToScore(1, MetricCosine), 1e-12)
	assert.InDelta(t, 0.0, distanceToScore(2, MetricCosine), 1e-12)
	assert.InDelta(t, 0.5, distanceToScore(1, MetricL2), 1e-12)
}

func TestVectorStore_GetByIDsKeepsOrder(t *testing.T) {
	for name, s := range vectorStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.EnsureCollection(ctx, "code", 2))
			require.NoError(t, s.Upsert(ctx, "code", []domain.VectorRecord{record("a", "a.go", 1, 0), record("b", "b.go", 0, 1)}))

			got, err := s.GetByIDs(ctx, "code", []string{"b", "missing", "a"})
			require.NoError(t, err)

			require.Len(t, got, 2)
			assert.Equal(t, "b", got[0].ID)
			assert.Equal(t, "b.go", got[0].Metadata[domain.MetaFilePath])
			assert.Equal(t, "a", got[1].ID)
		})
	}
}
