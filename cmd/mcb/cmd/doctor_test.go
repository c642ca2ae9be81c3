package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/preflight"
	"github.com/Aman-CERP/mcb/pkg/version"
)

func TestDoctorCmd(t *testing.T) {
	isolate(t)
	root := newProject(t)

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "doctor", "-C", root)

		require.NoError(t, err)
		assert.Contains(t, out, "mcb doctor")
		assert.Contains(t, out, "[PASS] project:")
		assert.Contains(t, out, "[PASS] embedding: static")
		assert.Contains(t, out, "Status: READY")
		assert.FileExists(t, filepath.Join(os.Getenv("MCB_HOME"), preflight.MarkerFile))
		m, ok := preflight.ReadMarker(os.Getenv("MCB_HOME"))
		require.True(t, ok)
		assert.Equal(t, "static", m.Embedding)
		assert.Equal(t, version.Version, m.Version)
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "doctor", "-C", root, "--json")

		require.NoError(t, err)
		var report struct {
			Status string `json:"status"`
			Checks []struct {
				Name   string `json:"name"`
				Status string `json:"status"`
			} `json:"checks"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.NotEqual(t, "failed", report.Status)
		names := map[string]string{}
		for _, c := range report.Checks {
			names[c.Name] = c.Status
		}
		assert.Equal(t, "pass", names["vector_store"])
		assert.Equal(t, "pass", names["database"])
	})
}

func TestRootCmd_ProfileFlags(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	mem := filepath.Join(dir, "mem.prof")

	_, err := execute(t, "version", "--profile-cpu", cpu, "--profile-mem", mem)

	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, mem)
}
