package mcp

import (
	"path/filepath"
	"strings"
)

// mimeTypes maps lower-case extensions to MIME types.
var mimeTypes = map[string]string{
	".go":    "text/x-go",
	".py":    "text/x-python",
	".pyi":   "text/x-python",
	".rs":    "text/x-rust",
	".java":  "text/x-java",
	".kt":    "text/x-kotlin",
	".swift": "text/x-swift",
	".cs":    "text/x-csharp",
	".c":     "text/x-c",
	".h":     "text/x-c",
	".cpp":   "text/x-c++",
	".hpp":   "text/x-c++",
	".rb":    "text/x-ruby",
	".php":   "text/x-php",

	".ts":   "text/typescript",
	".tsx":  "text/typescript",
	".js":   "text/javascript",
	".jsx":  "text/javascript",
	".mjs":  "text/javascript",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".scss": "text/x-scss",

	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".xml":  "text/xml",
	".toml": "text/x-toml",
	".sql":  "text/x-sql",

	".md":  "text/markdown",
	".mdx": "text/markdown",
	".txt": "text/plain",
	".rst": "text/x-rst",

	".env":  "text/plain",
	".ini":  "text/plain",
	".conf": "text/plain",
	".sh":   "text/x-sh",
	".bash": "text/x-sh",
	".zsh":  "text/x-sh",
}

var specialFilenames = map[string]string{
	"Dockerfile":     "text/x-dockerfile",
	"Makefile":       "text/x-makefile",
	"Jenkinsfile":    "text/x-groovy",
	"Gemfile":        "text/x-ruby",
	"Rakefile":       "text/x-ruby",
	"CMakeLists.txt": "text/x-cmake",
	"go.mod":         "text/x-go.mod",
	"go.sum":         "text/x-go.sum",
	".gitignore":     "text/plain",
}

// MimeTypeForPath returns the MIME type of a resource file. Well-known
// file names win over the extension; anything unknown is text/plain.
func MimeTypeForPath(path string) string {
	if mime, ok := specialFilenames[filepath.Base(path)]; ok {
		return mime
	}
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "text/plain"
}
