package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/config"
)

func TestConfigCmd_Path(t *testing.T) {
	isolate(t)

	out, err := execute(t, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath(), strings.TrimSpace(out))
	assert.Equal(t, os.Getenv("MCB_HOME"), filepath.Dir(strings.TrimSpace(out)))
}

func TestConfigCmd_InitBackupRestore(t *testing.T) {
	isolate(t)

	// Given: a fresh user config
	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "created "+config.GetUserConfigPath())
	require.True(t, config.UserConfigExists())

	// When: initialising again without --force
	out, err = execute(t, "config", "init")

	// Then: the file is kept
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	out, err = execute(t, "config", "backups")
	require.NoError(t, err)
	assert.Contains(t, out, "no backups")

	// When: forcing after a local edit
	require.NoError(t, os.WriteFile(config.GetUserConfigPath(), []byte("logging:\n  level: debug\n"), 0o600))
	out, err = execute(t, "config", "init", "--force")

	// Then: the edited file is backed up and can be restored
	require.NoError(t, err)
	assert.Contains(t, out, "backup: ")
	backups, err := config.ListUserConfigBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)

	_, err = execute(t, "config", "restore")
	require.NoError(t, err)
	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "logging:\n  level: debug\n", string(data))
}

func TestConfigCmd_InitProject(t *testing.T) {
	isolate(t)
	root := newProject(t)

	out, err := execute(t, "config", "init", "--project", "-C", root)

	require.NoError(t, err)
	path := filepath.Join(root, config.ProjectYAML)
	assert.Contains(t, out, "created "+path)
	assert.FileExists(t, path)

	// The template loads and matches the defaults it documents.
	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Search.BM25Weight)
	assert.Equal(t, "stdio", cfg.Server.Transport)

	out, err = execute(t, "config", "init", "--project", "-C", root)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestConfigCmd_ShowRedactsSecrets(t *testing.T) {
	isolate(t)
	root := newProject(t)
	t.Setenv("MCB_EMBEDDING_API_KEY", "sk-very-secret")

	out, err := execute(t, "config", "show", "-C", root)

	require.NoError(t, err)
	assert.Contains(t, out, "provider: static")
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "sk-very-secret")

	out, err = execute(t, "config", "show", "-C", root, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"collection": "code"`)
	assert.NotContains(t, out, "sk-very-secret")
}
