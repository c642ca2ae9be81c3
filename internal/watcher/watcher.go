package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/scanner"
)

// Watcher watches one tree and emits debounced batches of relevant changes.
type Watcher struct {
	root     string
	opts     Options
	logger   *slog.Logger
	scanner  *scanner.Scanner
	filter   *scanner.Filter
	fsw      *fsnotify.Watcher
	debounce *Debouncer
	batches  chan []FileEvent
	errMu    sync.Mutex
	errs     chan error
	errsDone bool
	stopCh   chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

// New prepares a watcher for root. Nothing is watched until Start.
func New(root string, opts Options) (*Watcher, error) {
	opts = opts.withDefaults()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, mcberrors.InvalidArgument("bad path: " + err.Error())
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, mcberrors.NotFound("directory " + abs)
	}

	sc := opts.Scanner
	if sc == nil {
		if sc, err = scanner.New(scanner.WithLogger(opts.Logger)); err != nil {
			return nil, err
		}
	}
	w := &Watcher{
		root:     abs,
		opts:     opts,
		logger:   opts.Logger,
		scanner:  sc,
		filter:   sc.NewFilter(abs, opts.Scan),
		debounce: NewDebouncer(opts.DebounceWindow, opts.DebounceMaxWait, opts.Logger),
		batches:  make(chan []FileEvent, opts.BufferSize),
		errs:     make(chan error, 16),
		stopCh:   make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn("watch_fsnotify_unavailable", slog.String("error", err.Error()))
		} else {
			w.fsw = fsw
		}
	}
	go w.forward()
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string { return w.root }

// Events returns debounced batches. It is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent { return w.batches }

// Errors returns non-fatal watch errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error { return w.errs }

// DroppedBatches counts batches lost because Events was not drained.
func (w *Watcher) DroppedBatches() uint64 { return w.dropped.Load() }

// Start watches until ctx ends or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("watch_started", slog.String("path", w.root), slog.String("mode", w.Mode()))

	if w.fsw == nil {
		return w.stopAfter(ctx, newPoller(w, w.opts.PollInterval).run(ctx))
	}
	if err := w.addTree(w.root, false); err != nil {
		_ = w.Stop()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	for {
		select {
		case <-ctx.Done():
			return w.stopAfter(ctx, ctx.Err())
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.onFsnotify(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) stopAfter(ctx context.Context, err error) error {
	_ = w.Stop()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Stop releases the watcher. Safe to call twice.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debounce.Stop()
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		w.logger.Info("watch_stopped", slog.String("path", w.root), slog.Uint64("dropped_batches", w.dropped.Load()))
	})
	return nil
}

// addTree watches dir and its accepted subdirectories. With emit set, files
// already inside are reported as created, since they may have been written
// before the watch was in place.
func (w *Watcher) addTree(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		rel = filepath.ToSlash(rel)
		if !d.IsDir() {
			if emit {
				w.handle(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
			}
			return nil
		}
		if rel != "." && !w.filter.AcceptDir(rel) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) onFsnotify(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	var isDir bool
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir && w.filter.AcceptDir(rel) {
			if err := w.addTree(ev.Name, true); err != nil {
				w.emitError(err)
			}
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}
	w.handle(FileEvent{Path: filepath.ToSlash(rel), Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// handle filters one raw event and queues it for debouncing.
func (w *Watcher) handle(ev FileEvent) {
	if ev.Path == "" || ev.Path == "." {
		return
	}
	if ignoreFiles[filepath.Base(ev.Path)] {
		if !w.filter.AcceptDir(filepath.Dir(ev.Path)) {
			return
		}
		w.scanner.Invalidate()
		ev.Operation = OpIgnoreChange
		w.debounce.Add(ev)
		return
	}
	switch {
	case ev.IsDir:
		// Directory creation has no content of its own; files inside it
		// arrive as separate events.
		if ev.Operation == OpCreate || !w.filter.AcceptDir(ev.Path) {
			return
		}
	case ev.Operation == OpDelete || ev.Operation == OpRename:
		// A vanished path may have been a directory, so only the parent
		// rules can be checked.
		if !w.filter.AcceptDir(filepath.Dir(ev.Path)) {
			return
		}
	default:
		if !w.filter.Accept(ev.Path) {
			return
		}
	}
	w.debounce.Add(ev)
}

func (w *Watcher) forward() {
	for batch := range w.debounce.Output() {
		select {
		case <-w.stopCh:
			continue
		default:
		}
		select {
		case w.batches <- batch:
		default:
			n := w.dropped.Add(1)
			w.logger.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)), slog.Uint64("total_dropped", n))
		}
	}
	close(w.batches)
	w.errMu.Lock()
	w.errsDone = true
	close(w.errs)
	w.errMu.Unlock()
}

func (w *Watcher) emitError(err error) {
	w.logger.Warn("watch_error", slog.String("error", err.Error()))
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.errsDone {
		return
	}
	select {
	case w.errs <- err:
	default:
	}
}
