package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints one line per update, for CI and pipes.
type PlainRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	title string
	last  int
}

// NewPlainRenderer creates a plain renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, title: cfg.Title, last: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	if r.title != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", StageScanning.Icon(), r.title)
	}
	return nil
}

// Update implements Renderer. Repeated counts are printed once.
func (r *PlainRenderer) Update(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Processed == r.last {
		return
	}
	r.last = p.Processed
	if p.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", p.Stage.Icon(), p.Processed, p.Total, p.CurrentFile)
		return
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %s\n", p.Stage.Icon(), p.CurrentFile)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	writeSummary(r.out, s, NoColorStyles())
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

func writeSummary(out io.Writer, s Summary, st Styles) {
	status := st.Success
	if s.Status != "completed" {
		status = st.Warning
	}
	_, _ = fmt.Fprintf(out, "%s %s: %d files, %d chunks in %s\n",
		status.Render("["+StageComplete.Icon()+"]"), s.Collection, s.Files, s.Chunks, s.Duration.Round(100*time.Millisecond))
	_, _ = fmt.Fprintf(out, "  %s unchanged %d, deleted %d, skipped %d\n",
		st.Label.Render("status "+s.Status+":"), s.Unchanged, s.Deleted, s.Skipped)
	if s.Embedder != "" {
		_, _ = fmt.Fprintf(out, "  %s %s\n", st.Label.Render("embedder:"), s.Embedder)
	}
	for _, e := range s.Errors {
		_, _ = fmt.Fprintf(out, "  %s %s\n", st.Error.Render("error:"), e)
	}
}
