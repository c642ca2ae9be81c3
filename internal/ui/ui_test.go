package ui

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/events"
)

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(Config{Output: &buf})
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
	assert.False(t, IsTTY(&buf))
}

func TestPlainRenderer(t *testing.T) {
	// Given a plain renderer
	var buf bytes.Buffer
	r := NewPlainRenderer(Config{Output: &buf, Title: "code"})
	require.NoError(t, r.Start(context.Background()))

	// When progress repeats and the run completes
	r.Update(Progress{Stage: StageIndexing, Processed: 1, Total: 2, CurrentFile: "a.go"})
	r.Update(Progress{Stage: StageIndexing, Processed: 1, Total: 2, CurrentFile: "a.go"})
	r.Update(Progress{Stage: StageIndexing, Processed: 2, Total: 2, CurrentFile: "b.go"})
	r.Complete(Summary{
		Collection: "code",
		Status:     "partial_failure",
		Files:      2,
		Chunks:     7,
		Errors:     []string{"b.go: ERR_301_TRANSPORT"},
		Duration:   1500 * time.Millisecond,
	})
	require.NoError(t, r.Stop())

	// Then each count is printed once, followed by the summary
	out := buf.String()
	assert.Contains(t, out, "[SCAN] code\n")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("[INDEX] 1/2 a.go")))
	assert.Contains(t, out, "[INDEX] 2/2 b.go")
	assert.Contains(t, out, "code: 2 files, 7 chunks in 1.5s")
	assert.Contains(t, out, "status partial_failure:")
	assert.Contains(t, out, "error: b.go: ERR_301_TRANSPORT")
}

func TestTracker_RateAndETA(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.now = func() time.Time { return now }
	tr.lastAt = now

	tr.Update(Progress{Stage: StageIndexing, Processed: 0, Total: 100})
	now = now.Add(time.Second)
	tr.Update(Progress{Stage: StageIndexing, Processed: 10, Total: 100, CurrentFile: "x.go"})

	s := tr.Snapshot()
	assert.InDelta(t, 0.1, s.Fraction, 1e-9)
	assert.InDelta(t, 10.0, s.Rate, 1e-9)
	assert.Equal(t, 9*time.Second, s.ETA)
	assert.Equal(t, "x.go", s.CurrentFile)
}

func TestProgressModel_View(t *testing.T) {
	tr := NewTracker()
	m := newProgressModel(tr, "code", NoColorStyles())

	assert.Contains(t, m.View(), "Scanning...")

	tr.Update(Progress{Stage: StageIndexing, Processed: 5, Total: 10, CurrentFile: "pkg/a.go"})
	view := m.View()
	assert.Contains(t, view, "mcb index code")
	assert.Contains(t, view, " 50%")
	assert.Contains(t, view, "5 / 10 files")
	assert.Contains(t, view, "pkg/a.go")

	_, cmd := m.Update(completeMsg(Summary{Collection: "code", Status: "completed", Files: 10}))
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "code: 10 files")
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "a/b.go", truncatePath("a/b.go", 40))
	assert.Equal(t, "...ep/file.go", truncatePath("very/deep/file.go", 13))
}

type recordingRenderer struct {
	mu      sync.Mutex
	updates []Progress
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Complete(Summary)            {}
func (r *recordingRenderer) Stop() error                 { return nil }
func (r *recordingRenderer) Update(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

func TestFollow_StopsAtCompletion(t *testing.T) {
	// Given events of two collections
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()
	bus.Publish(events.IndexingStarted{Collection: "docs", TotalFiles: 9})
	bus.Publish(events.IndexingStarted{Collection: "code", TotalFiles: 2})
	bus.Publish(events.IndexingProgress{Collection: "code", Processed: 2, Total: 2, CurrentFile: "b.go"})
	bus.Publish(events.IndexingCompleted{Collection: "code", Status: "completed"})

	// When following one of them
	r := &recordingRenderer{}
	done := make(chan struct{})
	go func() {
		Follow(context.Background(), sub, "code", r)
		close(done)
	}()

	// Then only its updates are rendered and Follow returns
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return")
	}
	require.Len(t, r.updates, 2)
	assert.Equal(t, Progress{Stage: StageIndexing, Total: 2}, r.updates[0])
	assert.Equal(t, "b.go", r.updates[1].CurrentFile)
}

func TestWriteResults(t *testing.T) {
	var buf bytes.Buffer
	WriteResults(&buf, "retry", nil, NoColorStyles())
	assert.Equal(t, "No results for \"retry\"\n", buf.String())

	buf.Reset()
	WriteResults(&buf, "retry", []domain.SearchResult{{
		FilePath:  "errors/retry.go",
		StartLine: 10,
		EndLine:   24,
		Score:     0.875,
		Source:    domain.ProvenanceHybrid,
		Language:  "go",
		Content:   "func Retry(ctx context.Context) error {\n\treturn nil\n}\n",
		Metadata:  map[string]string{domain.MetaSymbol: "Retry", domain.MetaBranch: "main"},
	}}, NoColorStyles())

	out := buf.String()
	assert.Contains(t, out, "1 results for \"retry\"")
	assert.Contains(t, out, " 1. errors/retry.go:10-24 0.875 (hybrid, go, Retry, @main)")
	assert.Contains(t, out, "    func Retry(ctx context.Context) error {")
}
