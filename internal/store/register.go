package store

import (
	"log/slog"
	"os"

	"github.com/Aman-CERP/mcb/internal/registry"
)

func init() {
	registry.Register(registry.KindVectorStore, ProviderMemory, "exact cosine search in memory",
		func(registry.Config) (any, error) {
			return NewMemoryStore(), nil
		})
	registry.Register(registry.KindVectorStore, ProviderHNSW, "approximate search with coder/hnsw, persisted to path",
		func(cfg registry.Config) (any, error) {
			def := DefaultHNSWConfig("")
			return NewHNSWStore(HNSWConfig{
				Dir:      cfg.String("path", ""),
				Metric:   cfg.String("metric", def.Metric),
				M:        cfg.Int("m", def.M),
				EfSearch: cfg.Int("ef_search", def.EfSearch),
			}, slog.Default())
		})
	registry.Register(registry.KindVectorStore, ProviderQdrant, "Qdrant server over gRPC",
		func(cfg registry.Config) (any, error) {
			return NewQdrantStore(QdrantConfig{
				Endpoint: cfg.String("endpoint", cfg.String("url", DefaultQdrantEndpoint)),
				APIKey:   cfg.String("api_key", os.Getenv("QDRANT_API_KEY")),
			}, slog.Default())
		})
	registry.Register(registry.KindVectorStore, ProviderNull, "discards writes, returns no results",
		func(registry.Config) (any, error) {
			return NullStore{}, nil
		})
}
