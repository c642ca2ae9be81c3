package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

type memCollection struct {
	dim     int
	records map[string]domain.VectorRecord
}

// MemoryStore is an exact (brute force) cosine store kept in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	closed      bool
}

var _ ports.VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, name string, dim int) error {
	if err := checkCollectionArgs(name, dim); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed("vector store")
	}
	if c, ok := s.collections[name]; ok {
		if c.dim != dim {
			return mcberrors.DimensionMismatch(c.dim, dim)
		}
		return nil
	}
	s.collections[name] = &memCollection{dim: dim, records: make(map[string]domain.VectorRecord)}
	return nil
}

func (s *MemoryStore) get(name string) (*memCollection, error) {
	if s.closed {
		return nil, errClosed("vector store")
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, mcberrors.CollectionNotFound(name)
	}
	return c, nil
}

func (s *MemoryStore) Upsert(_ context.Context, collection string, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collection)
	if err != nil {
		return err
	}
	if err := checkRecords(records, c.dim); err != nil {
		return err
	}
	for _, r := range records {
		c.records[r.ID] = copyRecord(r)
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, collection string, query []float32, k int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	if len(query) != c.dim {
		return nil, mcberrors.DimensionMismatch(c.dim, len(query))
	}
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}

	results := make([]domain.SearchResult, 0, min(k, len(c.records)))
	for id, r := range c.records {
		if !filter.Match(r.Metadata) {
			continue
		}
		score := (1 + domain.CosineSimilarity(query, r.Vector)) / 2
		results = append(results, domain.ResultFromMetadata(id, score, r.Metadata))
	}
	if err := ctx.Err(); err != nil {
		return nil, mcberrors.FromContext(err)
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) DeleteByFile(_ context.Context, collection, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collection)
	if err != nil {
		return 0, err
	}
	n := 0
	for id, r := range c.records {
		if r.Metadata[domain.MetaFilePath] == path {
			delete(c.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetByIDs(_ context.Context, collection string, ids []string) ([]domain.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	out := make([]domain.VectorRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.records[id]; ok {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListVectors(_ context.Context, collection string, limit int) ([]domain.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.VectorRecord, len(ids))
	for i, id := range ids {
		out[i] = copyRecord(c.records[id])
	}
	return out, nil
}

func (s *MemoryStore) ListFilePaths(_ context.Context, collection string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	return filePaths(c.records, limit), nil
}

func (s *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *MemoryStore) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return 0, err
	}
	return len(c.records), nil
}

func (s *MemoryStore) Flush(context.Context, string) error { return nil }
func (s *MemoryStore) ProviderName() string                { return ProviderMemory }

func (s *MemoryStore) Health(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed("vector store")
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = map[string]*memCollection{}
	return nil
}

// checkCollectionArgs validates a collection name and dimensionality.
func checkCollectionArgs(name string, dim int) error {
	if err := domain.ValidateCollectionName(name); err != nil {
		return mcberrors.InvalidArgument(err.Error())
	}
	if dim <= 0 {
		return mcberrors.InvalidArgument("collection dimensionality must be positive")
	}
	return nil
}

// checkRecords fails the whole batch before any write when a record has
// the wrong length or no id.
func checkRecords(records []domain.VectorRecord, dim int) error {
	for _, r := range records {
		if r.ID == "" {
			return mcberrors.InvalidArgument("vector record id is empty")
		}
		if len(r.Vector) != dim {
			return mcberrors.DimensionMismatch(dim, len(r.Vector))
		}
	}
	return nil
}

func copyRecord(r domain.VectorRecord) domain.VectorRecord {
	v := make([]float32, len(r.Vector))
	copy(v, r.Vector)
	md := make(map[string]string, len(r.Metadata))
	for k, val := range r.Metadata {
		md[k] = val
	}
	return domain.VectorRecord{ID: r.ID, Vector: v, Metadata: md}
}

func filePaths(records map[string]domain.VectorRecord, limit int) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		if p := r.Metadata[domain.MetaFilePath]; p != "" {
			seen[p] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths
}

// sortResults orders by score descending, ties by chunk id.
func sortResults(results []domain.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}
