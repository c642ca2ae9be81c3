package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/pkg/version"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{
		"index", "search", "memory", "providers", "serve", "watch",
		"tombstones", "status", "config", "logs", "version",
	} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := root.Find([]string{name})

			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := execute(t, "--version")

	require.NoError(t, err)
	assert.Equal(t, "mcb version "+version.Version, strings.TrimSpace(out))
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"dir", "collection", "debug", "no-color"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "C", root.PersistentFlags().Lookup("dir").Shorthand)
}

func TestRootCmd_UnknownCommandFails(t *testing.T) {
	_, err := execute(t, "reindex-everything")

	assert.Error(t, err)
}

func TestServeCmd_RejectsUnknownTransport(t *testing.T) {
	// Given: an isolated project
	isolate(t)
	root := newProject(t)

	// When: serving on a transport that does not exist
	out, err := execute(t, "serve", "-C", root, "--transport", "carrier-pigeon")

	// Then: the command fails before writing to stdout
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
	assert.Empty(t, out)
}
