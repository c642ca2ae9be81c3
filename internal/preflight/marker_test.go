package preflight

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup() Marker {
	return Marker{Version: "1.4.0", Embedding: "ollama", VectorStore: "hnsw"}
}

func TestMarker_RoundTripsSetup(t *testing.T) {
	// Given: a state directory that does not exist yet
	stateDir := filepath.Join(t.TempDir(), "state")
	require.True(t, NeedsCheck(stateDir, setup()))

	// When: a passing run is recorded
	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, MarkPassed(stateDir, setup()))

	// Then: the marker holds the setup and a fresh timestamp
	m, ok := ReadMarker(stateDir)
	require.True(t, ok)
	assert.True(t, m.Covers(setup()))
	assert.True(t, m.PassedAt.After(before))
	assert.False(t, NeedsCheck(stateDir, setup()))
	assert.NoFileExists(t, filepath.Join(stateDir, MarkerFile+".tmp"))
}

func TestNeedsCheck_SetupChanged(t *testing.T) {
	stateDir := t.TempDir()
	require.NoError(t, MarkPassed(stateDir, setup()))

	tests := []struct {
		name   string
		change func(*Marker)
	}{
		{"new binary", func(m *Marker) { m.Version = "1.5.0" }},
		{"embedding switched", func(m *Marker) { m.Embedding = "openai" }},
		{"vector store switched", func(m *Marker) { m.VectorStore = "qdrant" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := setup()
			tt.change(&want)
			assert.True(t, NeedsCheck(stateDir, want))
		})
	}
}

func TestReadMarker_Corrupt(t *testing.T) {
	tests := map[string]string{
		"not json":     "2026-01-02T03:04:05Z",
		"no timestamp": `{"version":"1.4.0","embedding":"ollama","vector_store":"hnsw"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			// Given: a marker left by an older or interrupted run
			stateDir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(stateDir, MarkerFile), []byte(content), 0o644))

			// Then: it is treated as absent
			_, ok := ReadMarker(stateDir)
			assert.False(t, ok)
			assert.True(t, NeedsCheck(stateDir, setup()))
		})
	}
}

func TestClearMarker(t *testing.T) {
	stateDir := t.TempDir()
	require.NoError(t, MarkPassed(stateDir, setup()))

	require.NoError(t, ClearMarker(stateDir))
	assert.True(t, NeedsCheck(stateDir, setup()))

	// Clearing twice is fine.
	assert.NoError(t, ClearMarker(stateDir))
}
