package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvidersCmd(t *testing.T) {
	isolate(t)
	root := newProject(t)

	t.Run("text marks the active providers", func(t *testing.T) {
		out, err := execute(t, "providers", "-C", root)

		require.NoError(t, err)
		assert.Contains(t, out, "embedding")
		assert.Regexp(t, `\* static\s`, out)
		assert.Regexp(t, `\* hnsw\s`, out)
		assert.Regexp(t, `  ollama\s`, out)
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "providers", "-C", root, "--json")

		require.NoError(t, err)
		var kinds []struct {
			Kind   string `json:"kind"`
			Active string `json:"active"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &kinds))
		active := map[string]string{}
		for _, k := range kinds {
			active[k.Kind] = k.Active
		}
		assert.Equal(t, "static", active["embedding"])
		assert.Equal(t, "hnsw", active["vector_store"])
	})

	t.Run("health", func(t *testing.T) {
		out, err := execute(t, "providers", "health", "-C", root)

		require.NoError(t, err)
		assert.Contains(t, out, "OK    embedding")
	})
}
