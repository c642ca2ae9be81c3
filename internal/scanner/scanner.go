package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mcb/internal/chunk"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

// ignoreCacheSize bounds the parsed per-directory ignore files kept between
// scans.
const ignoreCacheSize = 1000

const sniffBytes = 512

// Scanner discovers files. It is safe for concurrent use.
type Scanner struct {
	// ignoreCache maps an absolute directory to the rules of its ignore
	// files (an empty matcher when it has none). Entries are revalidated
	// against the files' size and mtime on every lookup.
	ignoreCache *lru.Cache[string, ignoreEntry]
	logger      *slog.Logger
}

type ignoreEntry struct {
	matcher *Matcher
	stamp   string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scanner.
func New(opts ...Option) (*Scanner, error) {
	cache, err := lru.New[string, ignoreEntry](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ignore cache: %w", err)
	}
	s := &Scanner{ignoreCache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Invalidate drops cached ignore rules. Lookups already reload a directory
// whose ignore files changed on disk; this also forgets removed directories.
func (s *Scanner) Invalidate() {
	s.ignoreCache.Purge()
}

// Filter is the path-only part of a scan's rules: excludes, ignore files,
// secrets and the extension allow-list.
type Filter struct {
	s          *Scanner
	root       string
	exclude    *Matcher
	extensions map[string]bool
	gitignore  bool
}

// NewFilter compiles the path rules of opts for root.
func (s *Scanner) NewFilter(root string, opts Options) *Filter {
	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExcludes
	}
	f := &Filter{
		s:         s,
		root:      root,
		exclude:   NewMatcher(exclude...),
		gitignore: opts.RespectGitignore,
	}
	if len(opts.Extensions) > 0 {
		f.extensions = make(map[string]bool, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			f.extensions[ext] = true
		}
	}
	return f
}

type verdict int

const (
	accept verdict = iota
	skipIgnored
	skipSensitive
	skipExtension
)

// Accept reports whether a slash-separated path relative to the root would
// be scanned, without touching the file.
func (f *Filter) Accept(rel string) bool {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if f.skipDir(strings.Join(parts[:i], "/")) {
			return false
		}
	}
	return f.file(rel) == accept
}

// AcceptDir reports whether a directory would be descended into.
func (f *Filter) AcceptDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return true
	}
	parts := strings.Split(rel, "/")
	for i := 1; i <= len(parts); i++ {
		if f.skipDir(strings.Join(parts[:i], "/")) {
			return false
		}
	}
	return true
}

func (f *Filter) skipDir(rel string) bool {
	return f.exclude.Match(rel, true) || f.ignored(rel, true)
}

func (f *Filter) file(rel string) verdict {
	base := rel[strings.LastIndexByte(rel, '/')+1:]
	if controlFiles[base] {
		return skipIgnored
	}
	for _, p := range sensitivePatterns {
		if matchGlob(p, strings.ToLower(base)) {
			return skipSensitive
		}
	}
	if f.exclude.Match(rel, false) || f.ignored(rel, false) {
		return skipIgnored
	}
	if f.extensions != nil && !f.extensions[strings.ToLower(filepath.Ext(base))] {
		return skipExtension
	}
	return accept
}

// ignored applies the ignore files of rel's ancestors, root first, so a
// deeper file can re-include what a shallower one ignored.
func (f *Filter) ignored(rel string, isDir bool) bool {
	if !f.gitignore {
		return false
	}
	ignored := false
	dir := ""
	rest := rel
	for {
		if m := f.s.matcherFor(f.root, dir); m != nil {
			if hit, neg := m.decide(rel, isDir); hit {
				ignored = !neg
			}
		}
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return ignored
		}
		if dir == "" {
			dir = rest[:i]
		} else {
			dir = dir + "/" + rest[:i]
		}
		rest = rest[i+1:]
	}
}

func (s *Scanner) matcherFor(root, dir string) *Matcher {
	abs := filepath.Join(root, filepath.FromSlash(dir))
	stamp := ignoreStamp(abs)
	if e, ok := s.ignoreCache.Get(abs); ok && e.stamp == stamp {
		return e.matcher
	}
	m := &Matcher{}
	for _, name := range IgnoreFiles {
		file := filepath.Join(abs, name)
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := m.AddFile(file, dir); err != nil {
			s.logger.Warn("ignore_file_unreadable",
				slog.String("path", file),
				slog.String("error", err.Error()))
		}
	}
	s.ignoreCache.Add(abs, ignoreEntry{matcher: m, stamp: stamp})
	return m
}

// ignoreStamp fingerprints the ignore files of dir by size and mtime. It is
// empty when dir has none.
func ignoreStamp(dir string) string {
	var b strings.Builder
	for _, name := range IgnoreFiles {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%s:%d:%d;", name, info.Size(), info.ModTime().UnixNano())
	}
	return b.String()
}

type candidate struct {
	rel  string
	abs  string
	info func() (fs.FileInfo, error)
}

type checkResult int

const (
	checkOK checkResult = iota
	checkTooLarge
	checkBinary
	checkUnreadable
)

type checked struct {
	file   File
	result checkResult
}

// Scan walks the root and returns every accepted file sorted by path. The
// walk is sequential; the per-file size and content checks run on up to
// Workers goroutines.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Result, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	st, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mcberrors.NotFound("path " + absRoot)
		}
		return nil, mcberrors.Transport("failed to stat root", err)
	}
	if !st.IsDir() {
		return nil, mcberrors.InvalidArgument("not a directory: " + absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	filter := s.NewFilter(absRoot, opts)
	res := &Result{Root: absRoot}
	var cands []candidate

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			s.logger.Debug("scan_entry_unreadable",
				slog.String("path", p),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if filter.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		switch filter.file(rel) {
		case skipSensitive:
			res.Skipped.Sensitive++
		case skipIgnored:
			res.Skipped.Ignored++
		case skipExtension:
			res.Skipped.Extension++
		default:
			cands = append(cands, candidate{rel: rel, abs: p, info: d.Info})
		}
		return nil
	})
	if err != nil {
		return nil, mcberrors.FromContext(err)
	}

	out := make([]checked, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = check(c, maxSize)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, mcberrors.FromContext(err)
	}

	res.Files = make([]File, 0, len(out))
	for _, c := range out {
		switch c.result {
		case checkOK:
			res.Files = append(res.Files, c.file)
		case checkTooLarge:
			res.Skipped.TooLarge++
		case checkBinary:
			res.Skipped.Binary++
		default:
			res.Skipped.Ignored++
		}
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })

	s.logger.Debug("scan_completed",
		slog.String("root", absRoot),
		slog.Int("files", len(res.Files)),
		slog.Int("skipped", res.Skipped.Total()))
	return res, nil
}

func check(c candidate, maxSize int64) checked {
	info, err := c.info()
	if err != nil {
		return checked{result: checkUnreadable}
	}
	if info.Size() > maxSize {
		return checked{result: checkTooLarge}
	}
	head, err := readHead(c.abs)
	if err != nil {
		return checked{result: checkUnreadable}
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return checked{result: checkBinary}
	}
	return checked{file: File{
		Path:     c.rel,
		AbsPath:  c.abs,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Language: chunk.DetectLanguage(c.rel, head),
	}}
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
