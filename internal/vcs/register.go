package vcs

import (
	"log/slog"

	"github.com/Aman-CERP/mcb/internal/registry"
)

func init() {
	registry.Register(registry.KindVCS, ProviderGit, "branch, commit and dirty state from git",
		func(registry.Config) (any, error) {
			return NewGitProvider(slog.Default()), nil
		})
	registry.Register(registry.KindVCS, ProviderNull, "treats every path as unversioned",
		func(registry.Config) (any, error) {
			return NullProvider{}, nil
		})
	registry.Register(registry.KindProjectDetector, ProviderMarker, "project root and type from marker files",
		func(registry.Config) (any, error) {
			return MarkerDetector{}, nil
		})
}
