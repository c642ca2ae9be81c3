// Package domain holds the entities shared by every layer: chunks, search
// results, file hashes, observations and session summaries.
//
// Entities are plain values. Components exchange them by value or behind
// their own locks; nothing here is safe for concurrent mutation.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata keys carried with every vector.
const (
	MetaFilePath  = "file_path"
	MetaLanguage  = "language"
	MetaStartLine = "start_line"
	MetaEndLine   = "end_line"
	MetaSymbol    = "symbol"
	MetaKind      = "kind"
	MetaContent   = "content"
	MetaBranch    = "branch"
	MetaCommit    = "commit"
)

// ChunkKind is the syntactic role of a chunk.
type ChunkKind string

const (
	ChunkKindFunction  ChunkKind = "function"
	ChunkKindMethod    ChunkKind = "method"
	ChunkKindClass     ChunkKind = "class"
	ChunkKindInterface ChunkKind = "interface"
	ChunkKindType      ChunkKind = "type"
	ChunkKindModule    ChunkKind = "module"
	ChunkKindSection   ChunkKind = "section"
	ChunkKindWindow    ChunkKind = "window"
)

// CodeChunk is a contiguous slice of a source file that becomes one
// indexing unit.
type CodeChunk struct {
	ID        string
	FilePath  string
	Language  string
	Kind      ChunkKind
	Symbol    string
	StartLine int // 1-indexed, inclusive
	EndLine   int // inclusive
	StartByte int
	EndByte   int // exclusive
	Content   string
	Metadata  map[string]string
}

// Lines returns the number of lines the chunk spans.
func (c *CodeChunk) Lines() int {
	return c.EndLine - c.StartLine + 1
}

// Validate checks the span invariants.
func (c *CodeChunk) Validate() error {
	if c.FilePath == "" {
		return fmt.Errorf("chunk has no file path")
	}
	if c.StartLine < 1 || c.StartLine > c.EndLine {
		return fmt.Errorf("chunk %s has invalid line span %d-%d", c.FilePath, c.StartLine, c.EndLine)
	}
	if c.StartByte < 0 || c.StartByte > c.EndByte {
		return fmt.Errorf("chunk %s has invalid byte span %d-%d", c.FilePath, c.StartByte, c.EndByte)
	}
	return nil
}

// VectorMetadata is the payload stored alongside the chunk's vector.
func (c *CodeChunk) VectorMetadata() map[string]string {
	md := make(map[string]string, len(c.Metadata)+7)
	for k, v := range c.Metadata {
		md[k] = v
	}
	md[MetaFilePath] = c.FilePath
	md[MetaLanguage] = c.Language
	md[MetaStartLine] = strconv.Itoa(c.StartLine)
	md[MetaEndLine] = strconv.Itoa(c.EndLine)
	md[MetaContent] = c.Content
	if c.Kind != "" {
		md[MetaKind] = string(c.Kind)
	}
	if c.Symbol != "" {
		md[MetaSymbol] = c.Symbol
	}
	return md
}

// ChunkID builds the vector id "<collection>:<file_path>:<start>-<end>".
// Chunks of one file never share a line span, so the id is collision free
// within a collection.
func ChunkID(collection, filePath string, startLine, endLine int) string {
	var b strings.Builder
	b.Grow(len(collection) + len(filePath) + 16)
	b.WriteString(collection)
	b.WriteByte(':')
	b.WriteString(filePath)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(startLine))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(endLine))
	return b.String()
}

// ParseChunkID splits an id built by ChunkID. File paths may contain ':',
// so the collection is taken up to the first separator and the span from
// the last one.
func ParseChunkID(id string) (collection, filePath string, startLine, endLine int, err error) {
	first := strings.IndexByte(id, ':')
	last := strings.LastIndexByte(id, ':')
	if first < 0 || last <= first {
		return "", "", 0, 0, fmt.Errorf("malformed chunk id %q", id)
	}
	start, end, ok := strings.Cut(id[last+1:], "-")
	if !ok {
		return "", "", 0, 0, fmt.Errorf("malformed chunk span in %q", id)
	}
	if startLine, err = strconv.Atoi(start); err != nil {
		return "", "", 0, 0, fmt.Errorf("malformed chunk start in %q: %w", id, err)
	}
	if endLine, err = strconv.Atoi(end); err != nil {
		return "", "", 0, 0, fmt.Errorf("malformed chunk end in %q: %w", id, err)
	}
	return id[:first], id[first+1 : last], startLine, endLine, nil
}

// ValidateCollectionName rejects names the stores cannot key on.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name is empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("collection name longer than 128 characters")
	}
	for _, r := range name {
		ok := r == '_' || r == '-' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("collection name %q contains %q", name, r)
		}
	}
	return nil
}
