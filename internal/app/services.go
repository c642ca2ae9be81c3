package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/memory"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/scanner"
	"github.com/Aman-CERP/mcb/internal/search"
)

// IndexOptions returns the run options the configuration selects. The
// configured excludes extend the scanner defaults.
func (a *App) IndexOptions() index.Options {
	ic := a.cfg.Indexing
	exclude := make([]string, 0, len(scanner.DefaultExcludes)+len(ic.Exclude))
	exclude = append(exclude, scanner.DefaultExcludes...)
	exclude = append(exclude, ic.Exclude...)
	return index.Options{
		Exclude:          exclude,
		Extensions:       ic.Extensions,
		MaxFileSize:      ic.MaxFileSize,
		RespectGitignore: ic.RespectGitignore,
		Workers:          ic.Workers,
	}
}

// Index indexes the tree at path into collection, the default collection
// when empty.
func (a *App) Index(ctx context.Context, path, collection string, opts index.Options) (*index.Result, error) {
	if strings.TrimSpace(path) == "" {
		return nil, mcberrors.InvalidArgument("path is required")
	}
	return a.indexer.Index(ctx, path, a.collection(collection), opts)
}

// Search runs a hybrid search. An empty collection selects the default.
func (a *App) Search(ctx context.Context, req search.Request) ([]domain.SearchResult, error) {
	req.Collection = a.collection(req.Collection)
	return a.search.Search(ctx, req)
}

// SearchConfig returns the effective search engine configuration.
func (a *App) SearchConfig() search.Config { return a.search.Config() }

// StoreObservation stores obs and reports whether a new row was created.
// Identical content returns the id of the row already stored.
func (a *App) StoreObservation(ctx context.Context, obs *domain.Observation) (string, bool, error) {
	return a.memory.StoreObservation(ctx, obs)
}

// GetObservations returns the observations among ids, in ids order.
func (a *App) GetObservations(ctx context.Context, ids []string) ([]*domain.Observation, error) {
	return a.memory.GetByIDs(ctx, ids)
}

// DeleteObservation removes one observation.
func (a *App) DeleteObservation(ctx context.Context, id string) error {
	return a.memory.DeleteObservation(ctx, id)
}

// SearchMemories ranks observations by full-text relevance within filter.
func (a *App) SearchMemories(ctx context.Context, query string, filter domain.MemoryFilter, limit int) ([]memory.Result, error) {
	return a.memory.Search(ctx, query, filter, limit)
}

// GetTimeline returns up to before and after observations around anchorID.
func (a *App) GetTimeline(ctx context.Context, anchorID string, before, after int, filter domain.MemoryFilter) ([]*domain.Observation, error) {
	if anchorID == "" {
		return nil, mcberrors.InvalidArgument("anchor id is required")
	}
	return a.memory.GetTimeline(ctx, anchorID, before, after, filter)
}

// StoreSessionSummary stores or replaces a session summary.
func (a *App) StoreSessionSummary(ctx context.Context, sum *domain.SessionSummary) error {
	return a.memory.StoreSessionSummary(ctx, sum)
}

// GetSessionSummary returns the summary of sessionID.
func (a *App) GetSessionSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	return a.memory.GetSessionSummary(ctx, sessionID)
}

// ClearCollection drops a collection's vectors, lexical corpus and hashes.
func (a *App) ClearCollection(ctx context.Context, collection string) error {
	return a.indexer.Clear(ctx, a.collection(collection))
}

// CleanupTombstones purges tombstones older than the configured TTL.
func (a *App) CleanupTombstones(ctx context.Context) (int64, error) {
	return a.hashes.CleanupTombstones(ctx, a.cfg.Indexing.TombstoneTTLDuration())
}

// TombstoneCount counts the tombstoned files of a collection.
func (a *App) TombstoneCount(ctx context.Context, collection string) (int64, error) {
	return a.hashes.TombstoneCount(ctx, a.collection(collection))
}

// Check compares the file-hash store with the vector store.
func (a *App) Check(ctx context.Context, collection string) (*index.CheckResult, error) {
	return a.indexer.Check(ctx, a.collection(collection))
}

// Repair fixes the issues found by Check and returns how many it fixed.
func (a *App) Repair(ctx context.Context, collection string) (int, error) {
	res, err := a.Check(ctx, collection)
	if err != nil {
		return 0, err
	}
	return a.indexer.Repair(ctx, res.Collection, res.Inconsistencies), nil
}

// CollectionStats counts what a collection holds.
type CollectionStats struct {
	Collection string `json:"collection"`
	Vectors    int    `json:"vectors"`
	Documents  int    `json:"documents"`
	Files      int    `json:"files"`
	Tombstones int64  `json:"tombstones"`
	Indexing   bool   `json:"indexing"`
}

// Stats returns the counts of a collection. A collection that was never
// indexed reports zeros.
func (a *App) Stats(ctx context.Context, collection string) (CollectionStats, error) {
	name := a.collection(collection)
	st := CollectionStats{Collection: name, Indexing: a.indexer.Operations().IsIndexing(name)}

	vectors, release := a.vectors.Acquire()
	defer release()
	exists, err := vectors.CollectionExists(ctx, name)
	if err != nil {
		return st, err
	}
	if exists {
		if st.Vectors, err = vectors.Count(ctx, name); err != nil {
			return st, err
		}
	}
	if st.Documents, err = a.lexical.DocumentCount(ctx, name); err != nil {
		return st, err
	}
	files, err := a.hashes.GetIndexedFiles(ctx, name)
	if err != nil {
		return st, err
	}
	st.Files = len(files)
	if st.Tombstones, err = a.hashes.TombstoneCount(ctx, name); err != nil {
		return st, err
	}
	return st, nil
}

// Status returns the tracked indexing operations, oldest first, optionally
// restricted to one collection.
func (a *App) Status(collection string) []index.OperationStatus {
	ops := a.indexer.Operations().List()
	if collection == "" {
		return ops
	}
	out := ops[:0]
	for _, op := range ops {
		if op.Collection == collection {
			out = append(out, op)
		}
	}
	return out
}

// DetectProject describes the project containing path.
func (a *App) DetectProject(ctx context.Context, path string) (ports.ProjectInfo, error) {
	info, err := a.detector.Detect(ctx, path)
	if err != nil {
		return info, err
	}
	a.logger.Debug("project_detected",
		slog.String("root", info.Root),
		slog.String("name", info.Name),
		slog.Any("types", info.Types))
	return info, nil
}

// IndexedFiles lists the live (not tombstoned) files of a collection.
func (a *App) IndexedFiles(ctx context.Context, collection string) ([]string, error) {
	return a.hashes.GetIndexedFiles(ctx, a.collection(collection))
}
