// Package ui renders indexing progress and search results for the CLI.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/mcb/internal/events"
)

// Stage is a phase of an indexing run as seen by the user.
type Stage int

const (
	StageScanning Stage = iota
	StageIndexing
	StageComplete
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag used by plain output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// Progress is one progress update.
type Progress struct {
	Stage       Stage
	Processed   int
	Total       int
	CurrentFile string
}

// Summary is the final report of a run.
type Summary struct {
	Collection string
	Status     string
	Files      int
	Unchanged  int
	Deleted    int
	Skipped    int
	Chunks     int
	Errors     []string
	Duration   time.Duration
	Embedder   string
}

// Renderer displays the progress of one indexing run.
type Renderer interface {
	Start(ctx context.Context) error
	Update(p Progress)
	Complete(s Summary)
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string
}

// NewRenderer returns the TUI renderer for interactive terminals and the
// plain renderer for pipes, CI and ForcePlain.
func NewRenderer(cfg Config) Renderer {
	if cfg.NoColor || DetectNoColor() {
		cfg.NoColor = true
	}
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	return NewTUIRenderer(cfg)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether a CI environment variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}

// Follow feeds the indexing events of sub into r until the run finishes,
// the subscription closes or ctx ends. An empty collection follows every
// run.
func Follow(ctx context.Context, sub *events.Subscription, collection string, r Renderer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case events.IndexingStarted:
				if collection == "" || e.Collection == collection {
					r.Update(Progress{Stage: StageIndexing, Total: e.TotalFiles})
				}
			case events.IndexingProgress:
				if collection == "" || e.Collection == collection {
					r.Update(Progress{Stage: StageIndexing, Processed: e.Processed, Total: e.Total, CurrentFile: e.CurrentFile})
				}
			case events.IndexingCompleted:
				if collection == "" || e.Collection == collection {
					return
				}
			}
		}
	}
}
