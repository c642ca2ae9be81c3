// Package ports declares the provider contracts. Implementations live in
// their own packages and register with the registry; this package depends
// only on domain, so no provider package can import another.
package ports

import (
	"context"
	"time"

	"github.com/Aman-CERP/mcb/internal/domain"
)

// EmbeddingProvider turns text into vectors.
type EmbeddingProvider interface {
	// EmbedBatch returns one vector per input in input order. A failure on
	// any item fails the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every returned vector.
	Dimensions() int

	ProviderName() string
	Model() string

	// MaxBatchSize is the provider's item limit per request (0 = unbounded).
	MaxBatchSize() int

	// Health returns nil when the backend is reachable.
	Health(ctx context.Context) error

	Close() error
}

// VectorStore persists vectors grouped into collections.
type VectorStore interface {
	// EnsureCollection creates the collection, or checks that an existing
	// one has the same dimensionality.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert is idempotent on record id. A record of the wrong length fails
	// the call with DimensionMismatch before anything is written.
	Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error

	// Search returns up to k results by descending similarity.
	Search(ctx context.Context, collection string, query []float32, k int, filter domain.SearchFilter) ([]domain.SearchResult, error)

	// DeleteByFile removes every record whose file_path metadata equals path
	// and returns how many were removed.
	DeleteByFile(ctx context.Context, collection, path string) (int, error)

	// GetByIDs returns the stored records among ids, in ids order. Unknown
	// ids are skipped.
	GetByIDs(ctx context.Context, collection string, ids []string) ([]domain.VectorRecord, error)

	ListVectors(ctx context.Context, collection string, limit int) ([]domain.VectorRecord, error)
	ListFilePaths(ctx context.Context, collection string, limit int) ([]string, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	DropCollection(ctx context.Context, name string) error
	Count(ctx context.Context, collection string) (int, error)
	Flush(ctx context.Context, collection string) error
	ProviderName() string
	Health(ctx context.Context) error
	Close() error
}

// TokenLimited is implemented by embedding providers whose requests carry a
// total input token budget. MaxTokens returns 0 when there is none.
type TokenLimited interface {
	MaxTokens() int
}

// Cache is a namespaced key/bytes cache with TTL.
type Cache interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	// Invalidate drops one namespace, or everything when namespace is "".
	Invalidate(ctx context.Context, namespace string) error
	ProviderName() string
	Close() error
}

// LanguageChunker splits one language into chunks.
type LanguageChunker interface {
	Language() string
	Extensions() []string
	Chunk(ctx context.Context, content []byte, filePath string) ([]domain.CodeChunk, error)
	ProviderName() string
}

// CommitInfo is the VCS state of a working tree.
type CommitInfo struct {
	Root   string
	Branch string
	Commit string
	Dirty  bool
}

// VCSProvider reads version-control state for a path.
type VCSProvider interface {
	// Info returns ok=false when path is not under version control.
	Info(ctx context.Context, path string) (info CommitInfo, ok bool, err error)
	ProviderName() string
}

// ProjectInfo describes a detected project.
type ProjectInfo struct {
	Root  string
	Name  string
	Types []string // go, rust, node, python ...
}

// ProjectDetector recognises project roots from marker files.
type ProjectDetector interface {
	Detect(ctx context.Context, path string) (ProjectInfo, error)
	ProviderName() string
}

// LexicalDocument is one BM25 corpus entry.
type LexicalDocument struct {
	ID      string
	Content string
}

// LexicalHit is a scored document id.
type LexicalHit struct {
	ID    string
	Score float64
}

// LexicalIndex is a per-collection BM25 corpus. It yields ids and raw
// scores; callers fetch documents elsewhere.
type LexicalIndex interface {
	Index(ctx context.Context, collection string, docs []LexicalDocument) error
	Search(ctx context.Context, collection, query string, limit int) ([]LexicalHit, error)
	Delete(ctx context.Context, collection string, ids []string) error
	// DeleteByFile removes the documents whose chunk id names path and
	// returns how many were removed.
	DeleteByFile(ctx context.Context, collection, path string) (int, error)
	DocumentCount(ctx context.Context, collection string) (int, error)
	DropCollection(ctx context.Context, collection string) error
	Close() error
}

// FileHashStore tracks content hashes per (collection, file path).
type FileHashStore interface {
	GetHash(ctx context.Context, collection, path string) (string, bool, error)
	HasChanged(ctx context.Context, collection, path, currentHash string) (bool, error)
	UpsertHash(ctx context.Context, collection, path, hash string) error
	MarkDeleted(ctx context.Context, collection, path string) error
	GetIndexedFiles(ctx context.Context, collection string) ([]string, error)
	CleanupTombstones(ctx context.Context, ttl time.Duration) (int64, error)
	TombstoneCount(ctx context.Context, collection string) (int64, error)
	ClearCollection(ctx context.Context, collection string) (int64, error)
}

// MemoryRepository stores observations and session summaries.
type MemoryRepository interface {
	StoreObservation(ctx context.Context, obs *domain.Observation) (id string, created bool, err error)
	GetObservation(ctx context.Context, id string) (*domain.Observation, error)
	FindByHash(ctx context.Context, projectID, hash string) (*domain.Observation, error)
	DeleteObservation(ctx context.Context, id string) error
	SearchFTS(ctx context.Context, query string, limit int) ([]string, error)
	SearchFTSRanked(ctx context.Context, query string, limit int) ([]domain.RankedID, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Observation, error)
	GetTimeline(ctx context.Context, anchorID string, before, after int, filter domain.MemoryFilter) ([]*domain.Observation, error)
	StoreSessionSummary(ctx context.Context, s *domain.SessionSummary) error
	GetSessionSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error)
}
