package store

import (
	"context"

	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// NullStore accepts writes and returns nothing. Collections always exist so
// callers never see CollectionNotFound from it.
type NullStore struct{}

var _ ports.VectorStore = NullStore{}

func (NullStore) EnsureCollection(_ context.Context, name string, dim int) error {
	return checkCollectionArgs(name, dim)
}

func (NullStore) Upsert(context.Context, string, []domain.VectorRecord) error { return nil }

func (NullStore) Search(context.Context, string, []float32, int, domain.SearchFilter) ([]domain.SearchResult, error) {
	return []domain.SearchResult{}, nil
}

func (NullStore) DeleteByFile(context.Context, string, string) (int, error) { return 0, nil }

func (NullStore) GetByIDs(context.Context, string, []string) ([]domain.VectorRecord, error) {
	return []domain.VectorRecord{}, nil
}

func (NullStore) ListVectors(context.Context, string, int) ([]domain.VectorRecord, error) {
	return []domain.VectorRecord{}, nil
}

func (NullStore) ListFilePaths(context.Context, string, int) ([]string, error) {
	return []string{}, nil
}

func (NullStore) CollectionExists(context.Context, string) (bool, error) { return true, nil }
func (NullStore) DropCollection(context.Context, string) error           { return nil }
func (NullStore) Count(context.Context, string) (int, error)             { return 0, nil }
func (NullStore) Flush(context.Context, string) error                    { return nil }
func (NullStore) ProviderName() string                                   { return ProviderNull }
func (NullStore) Health(context.Context) error                           { return nil }
func (NullStore) Close() error                                           { return nil }
