// Package index turns a directory tree into searchable chunks. A run
// discovers files, skips the ones whose content hash is unchanged, chunks
// and embeds the rest, writes vectors and lexical documents, and finally
// propagates deletions of files that disappeared since the last run.
package index

import (
	"time"

	"github.com/Aman-CERP/mcb/internal/scanner"
)

// Status is the outcome of an indexing run.
type Status string

const (
	// StatusCompleted means every planned file was indexed.
	StatusCompleted Status = "completed"

	// StatusPartialFailure means some files failed, or the vector store
	// became unavailable and the run stopped early.
	StatusPartialFailure Status = "partial_failure"

	// StatusCancelled means the caller cancelled the run.
	StatusCancelled Status = "cancelled"
)

// Defaults.
const (
	// DefaultProgressEvery throttles IndexingProgress events to one per
	// this many finished files.
	DefaultProgressEvery = 10

	// lockSuffix names the per-collection lock file.
	lockSuffix = ".index.lock"
)

// Options tune one run. Zero values select the scanner defaults.
type Options struct {
	// Exclude patterns in gitignore syntax; nil selects scanner.DefaultExcludes.
	Exclude []string

	// Extensions is an allow-list; empty admits every text file.
	Extensions []string

	MaxFileSize      int64
	RespectGitignore bool

	// Workers bounds per-file parallelism; 0 means runtime.NumCPU.
	Workers int

	// Force re-indexes files whose hash is unchanged.
	Force bool
}

func (o Options) scanOptions(root string) scanner.Options {
	return scanner.Options{
		Root:             root,
		Exclude:          o.Exclude,
		Extensions:       o.Extensions,
		MaxFileSize:      o.MaxFileSize,
		RespectGitignore: o.RespectGitignore,
		Workers:          o.Workers,
	}
}

// FileError is a per-file failure. The file's previous index state, if
// any, is kept and the next run retries it.
type FileError struct {
	Path    string
	Code    string
	Message string
}

func (e FileError) Error() string { return e.Path + ": " + e.Message }

// Result summarises a run.
type Result struct {
	OperationID    string
	Collection     string
	Root           string
	FilesProcessed int
	FilesUnchanged int
	FilesDeleted   int
	FilesSkipped   int
	ChunksCreated  int
	Errors         []FileError
	Status         Status
	Duration       time.Duration
}

// fileState is the plan classification of one file.
type fileState int

const (
	stateNew fileState = iota
	stateChanged
	stateUnchanged
)

func (s fileState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateChanged:
		return "changed"
	default:
		return "unchanged"
	}
}
