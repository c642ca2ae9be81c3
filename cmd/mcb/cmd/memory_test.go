package cmd

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storedID = regexp.MustCompile(`stored (\S+)`)

func TestMemoryCmd(t *testing.T) {
	isolate(t)
	root := newProject(t)

	// Given: one stored decision
	out, err := execute(t, "memory", "add", "-C", root, "--type", "decision", "--tag", "storage", "--session", "s-1",
		"Chose hnsw for the local vector store")
	require.NoError(t, err)
	m := storedID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	t.Run("duplicate content is not stored twice", func(t *testing.T) {
		out, err := execute(t, "memory", "add", "-C", root, "Chose hnsw for the local vector store")

		require.NoError(t, err)
		assert.Contains(t, out, "already stored as "+id)
	})

	t.Run("search by keyword and tag", func(t *testing.T) {
		out, err := execute(t, "memory", "search", "-C", root, "--tag", "storage", "hnsw")

		require.NoError(t, err)
		assert.Contains(t, out, id+" [decision]")
		assert.Contains(t, out, "tags: storage")
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		_, err := execute(t, "memory", "search", "-C", root, "--type", "gossip")

		assert.Error(t, err)
	})

	t.Run("get prints JSON", func(t *testing.T) {
		out, err := execute(t, "memory", "get", "-C", root, id)

		require.NoError(t, err)
		var obs []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &obs))
		require.Len(t, obs, 1)
		assert.Equal(t, id, obs[0]["ID"])
	})

	t.Run("timeline marks the anchor", func(t *testing.T) {
		out, err := execute(t, "memory", "timeline", "-C", root, id)

		require.NoError(t, err)
		assert.Contains(t, out, "anchor")
	})

	t.Run("session summary round trip", func(t *testing.T) {
		out, err := execute(t, "memory", "summary", "-C", root, "s-1", "--topic", "watcher", "--next", "debounce tuning")
		require.NoError(t, err)
		assert.Contains(t, out, "for session s-1")

		out, err = execute(t, "memory", "summary", "-C", root, "s-1")
		require.NoError(t, err)
		assert.Contains(t, out, "debounce tuning")

		_, err = execute(t, "memory", "summary", "-C", root, "s-unknown")
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		_, err := execute(t, "memory", "delete", "-C", root, id)
		require.NoError(t, err)

		out, err := execute(t, "memory", "search", "-C", root, "hnsw")
		require.NoError(t, err)
		assert.Contains(t, out, "no observations")
	})
}
