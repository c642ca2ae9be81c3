package watcher

import (
	"context"
	"log/slog"
	"sort"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/events"
	"github.com/Aman-CERP/mcb/internal/index"
)

// Indexer runs one incremental indexing pass.
type Indexer interface {
	Index(ctx context.Context, path, collection string, opts index.Options) (*index.Result, error)
}

// Reindexer turns change batches into incremental indexing runs of one
// collection.
type Reindexer struct {
	Indexer    Indexer
	Events     events.Publisher
	Collection string
	Options    index.Options
	Logger     *slog.Logger

	// OnResult is called after every run, if set.
	OnResult func(*index.Result, error)
}

// Run consumes batches until the channel closes or ctx ends. Batches that
// arrive while a run is in progress are merged into the next run.
func (r *Reindexer) Run(ctx context.Context, root string, batches <-chan []FileEvent) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := r.Events
	if publisher == nil {
		publisher = events.Nop{}
	}

	for {
		var batch []FileEvent
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			batch = b
		}
		batch, open := drain(batch, batches)

		paths := changedPaths(batch)
		if len(paths) > 0 {
			publisher.Publish(events.FileChangesDetected{Root: root, Paths: paths})
			logger.Info("watch_changes", slog.String("path", root), slog.Int("changes", len(paths)))

			res, err := r.Indexer.Index(ctx, root, r.Collection, r.Options)
			if r.OnResult != nil {
				r.OnResult(res, err)
			}
			switch {
			case mcberrors.IsKind(err, mcberrors.KindCancelled):
				return nil
			case err != nil:
				logger.Warn("watch_reindex_failed", slog.String("path", root), slog.String("error", err.Error()))
			}
		}
		if !open {
			return nil
		}
	}
}

// drain appends every batch already waiting on ch. open is false once ch
// is closed.
func drain(batch []FileEvent, ch <-chan []FileEvent) ([]FileEvent, bool) {
	for {
		select {
		case b, ok := <-ch:
			if !ok {
				return batch, false
			}
			batch = append(batch, b...)
		default:
			return batch, true
		}
	}
}

func changedPaths(batch []FileEvent) []string {
	seen := make(map[string]bool, len(batch))
	paths := make([]string, 0, len(batch))
	for _, ev := range batch {
		if !seen[ev.Path] {
			seen[ev.Path] = true
			paths = append(paths, ev.Path)
		}
	}
	sort.Strings(paths)
	return paths
}
