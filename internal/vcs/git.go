// Package vcs reads version-control state and recognises project roots.
package vcs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// Provider names.
const (
	ProviderGit    = "git"
	ProviderNull   = "null"
	ProviderMarker = "marker"
)

// runFunc runs git with args in dir and returns stdout.
type runFunc func(ctx context.Context, dir string, args ...string) ([]byte, error)

// GitProvider reads branch, commit and dirty state. It shells out to the
// git binary when one is on PATH and otherwise parses .git directly, in
// which case Dirty is always false.
type GitProvider struct {
	run      runFunc
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

var _ ports.VCSProvider = (*GitProvider)(nil)

// NewGitProvider creates a provider using the system git.
func NewGitProvider(logger *slog.Logger) *GitProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitProvider{run: runGit, lookPath: exec.LookPath, logger: logger}
}

func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (g *GitProvider) ProviderName() string { return ProviderGit }

// Info implements ports.VCSProvider.
func (g *GitProvider) Info(ctx context.Context, path string) (ports.CommitInfo, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ports.CommitInfo{}, false, mcberrors.InvalidArgument("bad path: " + err.Error())
	}
	root, gitDir, ok := findGitDir(abs)
	if !ok {
		return ports.CommitInfo{}, false, nil
	}
	if _, err := g.lookPath("git"); err == nil {
		info, err := g.fromCLI(ctx, root)
		if err == nil {
			return info, true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ports.CommitInfo{}, false, mcberrors.FromContext(ctxErr)
		}
		g.logger.Debug("git_cli_failed",
			slog.String("root", root),
			slog.String("error", err.Error()))
	}
	info, err := fromGitDir(root, gitDir)
	if err != nil {
		return ports.CommitInfo{}, false, err
	}
	return info, true, nil
}

func (g *GitProvider) fromCLI(ctx context.Context, root string) (ports.CommitInfo, error) {
	info := ports.CommitInfo{Root: root}
	out, err := g.run(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return info, err
	}
	info.Branch = strings.TrimSpace(string(out))
	if info.Branch == "HEAD" {
		info.Branch = ""
	}
	// A repository without commits has no HEAD to resolve.
	if out, err := g.run(ctx, root, "rev-parse", "HEAD"); err == nil {
		info.Commit = strings.TrimSpace(string(out))
	}
	out, err = g.run(ctx, root, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return info, err
	}
	info.Dirty = len(bytes.TrimSpace(out)) > 0
	return info, nil
}

// findGitDir walks up from dir to the nearest working tree. A .git file
// (worktree or submodule) points at the real git directory.
func findGitDir(dir string) (root, gitDir string, ok bool) {
	for {
		candidate := filepath.Join(dir, ".git")
		if st, err := os.Stat(candidate); err == nil {
			if st.IsDir() {
				return dir, candidate, true
			}
			if target, err := readGitFile(candidate); err == nil {
				if !filepath.IsAbs(target) {
					target = filepath.Join(dir, target)
				}
				return dir, target, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", false
		}
		dir = parent
	}
}

func readGitFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(b))
	target, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", fmt.Errorf("malformed .git file %s", path)
	}
	return strings.TrimSpace(target), nil
}

// fromGitDir resolves HEAD without the git binary.
func fromGitDir(root, gitDir string) (ports.CommitInfo, error) {
	info := ports.CommitInfo{Root: root}
	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return info, mcberrors.Transport("failed to read git HEAD", err)
	}
	ref, symbolic := strings.CutPrefix(strings.TrimSpace(string(head)), "ref: ")
	if !symbolic {
		info.Commit = ref
		return info, nil
	}
	info.Branch = strings.TrimPrefix(ref, "refs/heads/")
	if b, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref))); err == nil {
		info.Commit = strings.TrimSpace(string(b))
		return info, nil
	}
	info.Commit = packedRef(gitDir, ref)
	return info, nil
}

func packedRef(gitDir, ref string) string {
	f, err := os.Open(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		sha, name, ok := strings.Cut(line, " ")
		if ok && name == ref {
			return sha
		}
	}
	return ""
}

// NullProvider reports every path as unversioned.
type NullProvider struct{}

var _ ports.VCSProvider = NullProvider{}

func (NullProvider) Info(context.Context, string) (ports.CommitInfo, bool, error) {
	return ports.CommitInfo{}, false, nil
}

func (NullProvider) ProviderName() string { return ProviderNull }
