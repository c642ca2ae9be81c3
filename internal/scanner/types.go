// Package scanner discovers indexable files under a root. It honours
// .gitignore-style rules, an explicit exclude list, a size limit, and an
// extension allow-list, and it never returns secrets or binary files.
package scanner

import (
	"time"
)

// DefaultMaxFileSize is the default size limit (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultExcludes are skipped unless the caller supplies its own list.
var DefaultExcludes = []string{
	".git/",
	"node_modules/",
	"target/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"venv/",
	"dist/",
	"build/",
	".idea/",
	".vscode/",
	".mcb/",
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
	"Cargo.lock",
}

// sensitivePatterns are never indexed, whatever the options say.
var sensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// Options configures one scan.
type Options struct {
	// Root is the directory to scan.
	Root string

	// Exclude holds gitignore-syntax patterns. Nil selects DefaultExcludes;
	// an empty non-nil slice excludes nothing.
	Exclude []string

	// Extensions is the allow-list (".go" or "go"). Empty allows every
	// text file.
	Extensions []string

	// MaxFileSize in bytes; 0 selects DefaultMaxFileSize.
	MaxFileSize int64

	// RespectGitignore reads .gitignore and .mcbignore in every directory.
	RespectGitignore bool

	// Workers bounds the parallel file checks (0 = NumCPU).
	Workers int
}

// File is one discovered file.
type File struct {
	Path     string // slash-separated, relative to the root
	AbsPath  string
	Size     int64
	ModTime  time.Time
	Language string
}

// Skipped counts files the scan passed over, by reason.
type Skipped struct {
	Ignored   int
	TooLarge  int
	Binary    int
	Extension int
	Sensitive int
}

// Total is the sum of all reasons.
func (s Skipped) Total() int {
	return s.Ignored + s.TooLarge + s.Binary + s.Extension + s.Sensitive
}

// Result is the outcome of a scan. Files are sorted by Path.
type Result struct {
	Root    string
	Files   []File
	Skipped Skipped
}
