package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/search"
)

type watchRun struct {
	res *index.Result
	err error
}

func TestWatchIndexesNewFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}

	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			a := newApp(t, nil)
			root := writeCorpus(t, corpus)

			ctx, cancel := context.WithCancel(context.Background())
			runs := make(chan watchRun, 16)
			done := make(chan error, 1)
			go func() {
				done <- a.Watch(ctx, root, "", app.WatchOptions{
					ForcePolling: polling,
					OnResult: func(res *index.Result, err error) {
						select {
						case runs <- watchRun{res, err}:
						default:
						}
					},
				})
			}()

			initial := nextRun(t, runs)
			require.NoError(t, initial.err)
			assert.Equal(t, len(corpus), initial.res.FilesProcessed)

			// When: a file appears after the initial run. The watcher
			// starts after the initial run reports, so the file is rewritten
			// until a run picks it up.
			deadline := time.After(20 * time.Second)
			for version := 1; ; version++ {
				writeFile(t, root, "billing/invoice.go", invoiceSource(version))
				if picked(t, runs, deadline, 1500*time.Millisecond) {
					break
				}
			}

			// Then: search finds it
			results, err := a.Search(context.Background(), search.Request{Query: "invoice number identifier"})
			require.NoError(t, err)
			assert.Contains(t, paths(results), "billing/invoice.go")

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("watch did not stop after cancel")
			}
		})
	}
}

// picked waits up to wait for a successful run that processed a file.
func picked(t *testing.T, runs <-chan watchRun, deadline <-chan time.Time, wait time.Duration) bool {
	t.Helper()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case r := <-runs:
			if r.err == nil && r.res.FilesProcessed >= 1 {
				return true
			}
		case <-timer.C:
			return false
		case <-deadline:
			t.Fatal("new file was never indexed")
			return false
		}
	}
}

func invoiceSource(version int) string {
	return fmt.Sprintf(`package billing

// InvoiceNumber formats a sequential invoice identifier.
func InvoiceNumber(seq int) string { return fmt.Sprintf("INV-%%06d", seq) }

// revision %s
`, strings.Repeat("x", version))
}

func nextRun(t *testing.T, runs <-chan watchRun) watchRun {
	t.Helper()
	select {
	case r := <-runs:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("no indexing run")
		return watchRun{}
	}
}
