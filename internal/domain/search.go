package domain

import (
	"strconv"
	"strings"
)

// Provenance tags which retrieval branch produced a result.
type Provenance string

const (
	ProvenanceBM25   Provenance = "bm25"
	ProvenanceVector Provenance = "vector"
	ProvenanceHybrid Provenance = "hybrid"
)

// SearchResult is one ranked hit.
type SearchResult struct {
	ChunkID   string
	FilePath  string
	Language  string
	StartLine int
	EndLine   int
	Snippet   string
	Content   string
	Score     float64 // [0,1] after engine normalization
	Source    Provenance

	BM25Score   float64
	VectorScore float64
	Metadata    map[string]string
}

// ResultFromMetadata fills a result from stored vector metadata.
func ResultFromMetadata(id string, score float64, md map[string]string) SearchResult {
	r := SearchResult{
		ChunkID:  id,
		FilePath: md[MetaFilePath],
		Language: md[MetaLanguage],
		Content:  md[MetaContent],
		Score:    score,
		Source:   ProvenanceVector,
		Metadata: md,
	}
	r.StartLine, _ = strconv.Atoi(md[MetaStartLine])
	r.EndLine, _ = strconv.Atoi(md[MetaEndLine])
	r.Snippet = Snippet(r.Content, 6)
	return r
}

// Snippet returns the first maxLines lines of content.
func Snippet(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.SplitN(content, "\n", maxLines+1)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}

// SearchFilter narrows results by chunk metadata. Empty fields match all.
type SearchFilter struct {
	Language   string
	PathPrefix string
	Branch     string
	Commit     string
}

// IsEmpty reports whether the filter matches everything.
func (f SearchFilter) IsEmpty() bool {
	return f == SearchFilter{}
}

// Match reports whether metadata satisfies the filter.
func (f SearchFilter) Match(md map[string]string) bool {
	if f.Language != "" && !strings.EqualFold(md[MetaLanguage], f.Language) {
		return false
	}
	if f.PathPrefix != "" && !strings.HasPrefix(md[MetaFilePath], f.PathPrefix) {
		return false
	}
	if f.Branch != "" && md[MetaBranch] != f.Branch {
		return false
	}
	if f.Commit != "" && !strings.HasPrefix(md[MetaCommit], f.Commit) {
		return false
	}
	return true
}
