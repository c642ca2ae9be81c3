package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Enabled(t *testing.T) {
	assert.False(t, Options{}.Enabled())
	assert.True(t, Options{HeapPath: "mem.prof"}.Enabled())
}

func TestSession_WritesEveryProfile(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPUPath:   filepath.Join(dir, "cpu.prof"),
		HeapPath:  filepath.Join(dir, "mem.prof"),
		TracePath: filepath.Join(dir, "trace.out"),
	}

	s, err := Start(opts)
	require.NoError(t, err)

	sum := 0
	for i := range 100000 {
		sum += i
	}
	_ = sum

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	for _, p := range []string{opts.CPUPath, opts.HeapPath, opts.TracePath} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Positive(t, info.Size(), p)
	}
}

func TestStart_BadPath(t *testing.T) {
	_, err := Start(Options{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.prof")})

	assert.Error(t, err)
}

func TestSession_NilStop(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Stop())
}

func TestWriteHeap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.prof")

	require.NoError(t, WriteHeap(path))

	assert.FileExists(t, path)
}
