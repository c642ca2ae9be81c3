package vcs

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// rootMarkers end the upward search for a project root.
var rootMarkers = []string{".git", ".mcb.yaml", ".mcb.yml", ".mcb.toml"}

// typeMarkers map a file in the root to a project type.
var typeMarkers = map[string]string{
	"go.mod":           "go",
	"Cargo.toml":       "rust",
	"package.json":     "node",
	"tsconfig.json":    "typescript",
	"pyproject.toml":   "python",
	"requirements.txt": "python",
	"setup.py":         "python",
	"pom.xml":          "java",
	"build.gradle":     "java",
	"Gemfile":          "ruby",
	"composer.json":    "php",
}

// MarkerDetector finds the project root by walking up to the nearest VCS
// or mcb config marker, then types the project from the files it holds.
type MarkerDetector struct{}

var _ ports.ProjectDetector = MarkerDetector{}

func (MarkerDetector) ProviderName() string { return ProviderMarker }

// Detect implements ports.ProjectDetector. Without a marker anywhere above
// path, path itself is the root.
func (MarkerDetector) Detect(ctx context.Context, path string) (ports.ProjectInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ports.ProjectInfo{}, mcberrors.InvalidArgument("bad path: " + err.Error())
	}
	st, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ports.ProjectInfo{}, mcberrors.NotFound("path " + abs)
		}
		return ports.ProjectInfo{}, mcberrors.Transport("failed to stat path", err)
	}
	if !st.IsDir() {
		abs = filepath.Dir(abs)
	}

	root := abs
	for dir := abs; ; {
		if err := ctx.Err(); err != nil {
			return ports.ProjectInfo{}, mcberrors.FromContext(err)
		}
		if hasAny(dir, rootMarkers) {
			root = dir
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	seen := map[string]bool{}
	var types []string
	for file, typ := range typeMarkers {
		if exists(filepath.Join(root, file)) && !seen[typ] {
			seen[typ] = true
			types = append(types, typ)
		}
	}
	sort.Strings(types)
	return ports.ProjectInfo{Root: root, Name: filepath.Base(root), Types: types}, nil
}

func hasAny(dir string, names []string) bool {
	for _, n := range names {
		if exists(filepath.Join(dir, n)) {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
