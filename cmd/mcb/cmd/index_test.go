package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexThenSearch(t *testing.T) {
	// Given: an isolated project
	isolate(t)
	root := newProject(t)

	// When: indexing it with plain output
	out, err := execute(t, "index", "-C", root, "--no-tui")

	// Then: every file is indexed into the configured collection
	require.NoError(t, err)
	assert.Contains(t, out, "[SCAN] Indexing")
	assert.Contains(t, out, "[DONE] code: 3 files")
	assert.Contains(t, out, "embedder: static/")

	t.Run("search finds the middleware", func(t *testing.T) {
		out, err := execute(t, "search", "-C", root, "bearer", "token", "middleware")

		require.NoError(t, err)
		assert.Contains(t, out, `for "bearer token middleware"`)
		assert.Contains(t, out, "auth/middleware.go")
	})

	t.Run("search as JSON", func(t *testing.T) {
		out, err := execute(t, "search", "-C", root, "--json", "--limit", "2", "bearer token")

		require.NoError(t, err)
		var results []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.NotEmpty(t, results)
		assert.LessOrEqual(t, len(results), 2)
		assert.Equal(t, "auth/middleware.go", results[0]["file_path"])
	})

	t.Run("language filter", func(t *testing.T) {
		out, err := execute(t, "search", "-C", root, "--json", "--language", "markdown", "install server")

		require.NoError(t, err)
		var results []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		for _, r := range results {
			assert.Equal(t, "markdown", r["language"])
		}
	})

	t.Run("invalid weight is rejected", func(t *testing.T) {
		_, err := execute(t, "search", "-C", root, "--bm25-weight", "1.5", "token")

		assert.Error(t, err)
	})

	t.Run("second run skips unchanged files", func(t *testing.T) {
		out, err := execute(t, "index", "-C", root, "--no-tui")

		require.NoError(t, err)
		assert.Contains(t, out, "unchanged 3")
	})

	t.Run("check reports a consistent index", func(t *testing.T) {
		out, err := execute(t, "index", "-C", root, "--check")

		require.NoError(t, err)
		assert.Contains(t, out, "code: 3 files consistent")
	})

	t.Run("status reports counts", func(t *testing.T) {
		out, err := execute(t, "status", "-C", root, "--json")

		require.NoError(t, err)
		var report statusReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, "code", report.Stats.Collection)
		assert.Equal(t, 3, report.Stats.Files)
		assert.Positive(t, report.Stats.Vectors)
		assert.Contains(t, report.Project.Types, "go")
		assert.Equal(t, "static", report.Embeddings.Provider)
	})

	t.Run("deleted file becomes a tombstone", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(root, "docs", "setup.md")))

		out, err := execute(t, "index", "-C", root, "--no-tui")
		require.NoError(t, err)
		assert.Contains(t, out, "deleted 1")

		out, err = execute(t, "tombstones", "-C", root)
		require.NoError(t, err)
		assert.Contains(t, out, "1 tombstones")
	})
}

func TestIndexCmd_ForceReindexes(t *testing.T) {
	isolate(t)
	root := newProject(t)
	_, err := execute(t, "index", "-C", root, "--no-tui")
	require.NoError(t, err)

	out, err := execute(t, "index", "-C", root, "--no-tui", "--force")

	require.NoError(t, err)
	assert.Contains(t, out, "code: 3 files")
	assert.Contains(t, out, "unchanged 0")
}

func TestIndexCmd_CollectionFlag(t *testing.T) {
	isolate(t)
	root := newProject(t)

	out, err := execute(t, "index", "-C", root, "--collection", "docs", "--no-tui", filepath.Join(root, "docs"))

	require.NoError(t, err)
	assert.Contains(t, out, "docs: 1 files")
}
