// Package watcher detects file changes under an indexed tree and feeds them
// to incremental re-indexing.
//
// fsnotify is the primary source; when it cannot be initialised (network
// mounts, exhausted inotify watches) the tree is polled instead. Events are
// debounced so that editor saves and git checkouts coalesce into one batch,
// and filtered with the same rules the scanner applies.
package watcher

import (
	"log/slog"
	"time"

	"github.com/Aman-CERP/mcb/internal/scanner"
)

// Operation is a file system operation.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
	// OpIgnoreChange is emitted when a .gitignore or .mcbignore changes; the
	// set of indexable files may have changed anywhere below it.
	OpIgnoreChange
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpIgnoreChange:
		return "IGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change, relative to the watched root.
type FileEvent struct {
	Path      string // slash-separated
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// ignoreFiles trigger OpIgnoreChange.
var ignoreFiles = map[string]bool{".gitignore": true, ".mcbignore": true}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow coalesces events per path. Default 200ms.
	DebounceWindow time.Duration

	// DebounceMaxWait releases a batch this long after its first event even
	// while changes keep arriving. Default 2s.
	DebounceMaxWait time.Duration

	// PollInterval is used by the polling fallback. Default 5s.
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// BufferSize bounds the batch channel. Default 64.
	BufferSize int

	// Scan holds the path rules (excludes, extensions, ignore files). Root
	// is ignored; the watched root is used.
	Scan scanner.Options

	// Scanner shares its ignore-file cache with the indexer. A fresh one is
	// created when nil.
	Scanner *scanner.Scanner

	Logger *slog.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		DebounceMaxWait: 2 * time.Second,
		PollInterval:    5 * time.Second,
		BufferSize:      64,
		Scan:            scanner.Options{RespectGitignore: true},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.DebounceMaxWait <= 0 {
		o.DebounceMaxWait = max(def.DebounceMaxWait, 10*o.DebounceWindow)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = def.BufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
