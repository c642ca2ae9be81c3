// Package integration runs indexing, search, memory and watching end to end
// through app.App over real on-disk providers.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/config"
	"github.com/Aman-CERP/mcb/internal/logging"
)

var corpus = map[string]string{
	"auth/middleware.go": `package auth

import "net/http"

// Middleware rejects requests without a bearer token.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
`,
	"retry/backoff.py": `import time


def retry_with_backoff(fn, attempts=3, base=0.1):
    """Call fn until it succeeds, doubling the delay after each failure."""
    for attempt in range(attempts):
        try:
            return fn()
        except Exception:
            time.sleep(base * (2 ** attempt))
    raise RuntimeError("retries exhausted")
`,
	"web/cart.ts": `export interface Item { sku: string; price: number }

export function cartTotal(items: Item[]): number {
  return items.reduce((sum, item) => sum + item.price, 0)
}
`,
	"docs/deploy.md": "# Deploy\n\nBuild the container image, push it, then roll the deployment.\n",
	"go.mod":         "module example.com/shop\n\ngo 1.25\n",
}

// newApp starts an App whose state lives in temp directories. mutate may
// adjust the configuration before the App opens it.
func newApp(t *testing.T, mutate func(*config.Config)) *app.App {
	t.Helper()
	home := t.TempDir()
	t.Setenv("MCB_HOME", home)

	cfg := config.NewConfig()
	cfg.Database.Path = filepath.Join(home, "mcb.db")
	cfg.Embedding.Provider = "static"
	cfg.VectorStore.Provider = "hnsw"
	cfg.VectorStore.Path = filepath.Join(home, "vectors")
	cfg.VectorStore.Collection = "shop"
	cfg.Indexing.Workers = 2
	cfg.Indexing.WatchDebounce = "50ms"
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg, app.WithLogger(logging.Discard()), app.WithStateDir(home))
	require.NoError(t, err)
	a.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = a.Close()
	})
	return a
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		writeFile(t, root, name, content)
	}
	return root
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
