package app

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/scanner"
	"github.com/Aman-CERP/mcb/internal/watcher"
)

// WatchOptions tune Watch.
type WatchOptions struct {
	// SkipInitial starts watching without indexing the tree first.
	SkipInitial bool

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// OnResult is called after every indexing run, the initial one included.
	OnResult func(*index.Result, error)
}

// Watch indexes root into collection, then re-indexes incrementally on
// every debounced batch of changes until ctx ends.
func (a *App) Watch(ctx context.Context, root, collection string, wo WatchOptions) error {
	collection = a.collection(collection)
	opts := a.IndexOptions()

	if !wo.SkipInitial {
		res, err := a.Index(ctx, root, collection, opts)
		if wo.OnResult != nil {
			wo.OnResult(res, err)
		}
		if err != nil && !mcberrors.IsKind(err, mcberrors.KindCancelled) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	w, err := watcher.New(root, watcher.Options{
		DebounceWindow: a.cfg.Indexing.WatchDebounceDuration(),
		ForcePolling:   wo.ForcePolling,
		Scan: scanner.Options{
			Exclude:          opts.Exclude,
			Extensions:       opts.Extensions,
			MaxFileSize:      opts.MaxFileSize,
			RespectGitignore: opts.RespectGitignore,
		},
		Scanner: a.scanner,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	re := &watcher.Reindexer{
		Indexer:    a.indexer,
		Events:     a.bus,
		Collection: collection,
		Options:    opts,
		Logger:     a.logger,
		OnResult:   wo.OnResult,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(gctx)
	})
	g.Go(func() error {
		// Events is closed by Stop, which ends Run.
		return re.Run(gctx, w.Root(), w.Events())
	})
	g.Go(func() error {
		// The watcher logs each error itself.
		for range w.Errors() {
		}
		return nil
	})

	err = g.Wait()
	_ = w.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
