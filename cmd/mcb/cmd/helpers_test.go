package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var projectFiles = map[string]string{
	"auth/middleware.go": `package auth

// Middleware rejects requests without a bearer token.
func Middleware(next Handler) Handler {
	return func(r *Request) error {
		if r.Token == "" {
			return ErrUnauthorized
		}
		return next(r)
	}
}
`,
	"docs/setup.md": "# Setup\n\nRun make install, then start the server.\n",
	"go.mod":        "module example.com/demo\n\ngo 1.25\n",
}

// isolate points every mcb state path into temp directories and selects
// providers that persist between command invocations.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("MCB_HOME", home)
	t.Setenv("MCB_DATABASE_PATH", filepath.Join(home, "mcb.db"))
	t.Setenv("MCB_EMBEDDING_PROVIDER", "static")
	t.Setenv("MCB_VECTOR_STORE_PROVIDER", "hnsw")
	t.Setenv("MCB_VECTOR_STORE_PATH", filepath.Join(home, "vectors"))
	t.Setenv("MCB_COLLECTION", "code")
	t.Setenv("MCB_WORKERS", "2")
	t.Setenv("NO_COLOR", "1")
}

// newProject writes the fixture tree with a .git marker and returns its root.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	for name, content := range projectFiles {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
