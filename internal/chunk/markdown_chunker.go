package chunk

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/ports"
)

var (
	headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	fencePattern  = regexp.MustCompile("^\\s*(```|~~~)")
)

// MarkdownChunker chunks Markdown at ATX headings. Each section carries its
// heading path ("Guide > Install") as symbol.
type MarkdownChunker struct {
	opts Options
}

var _ ports.LanguageChunker = (*MarkdownChunker)(nil)

// NewMarkdownChunker creates a Markdown chunker.
func NewMarkdownChunker(opts Options) *MarkdownChunker {
	return &MarkdownChunker{opts: opts.withDefaults(Options{
		MaxChars:     1500,
		MinChars:     DefaultMinChars,
		OverlapLines: DefaultOverlapLines,
	})}
}

func (m *MarkdownChunker) Language() string { return "markdown" }
func (m *MarkdownChunker) Extensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}
func (m *MarkdownChunker) ProviderName() string { return "markdown" }

// Chunk implements ports.LanguageChunker.
func (m *MarkdownChunker) Chunk(_ context.Context, content []byte, filePath string) ([]domain.CodeChunk, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}
	s := newShaper(content, m.opts)
	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")

	var sections []piece
	stack := make([]string, 6)
	start := 1
	inFence := false
	current := piece{startLine: 1, kind: domain.ChunkKindSection}

	// Frontmatter is its own section.
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "---" {
				sections = append(sections, piece{startLine: 1, endLine: i + 1, kind: domain.ChunkKindModule, symbols: []string{"frontmatter"}})
				start = i + 2
				current.startLine = start
				break
			}
		}
	}

	for i := start - 1; i < len(lines); i++ {
		line := lines[i]
		if fencePattern.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		match := headerPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		lineNo := i + 1
		if lineNo > current.startLine {
			current.endLine = lineNo - 1
			sections = append(sections, current)
		}
		level := len(match[1])
		stack[level-1] = match[2]
		for j := level; j < len(stack); j++ {
			stack[j] = ""
		}
		current = piece{startLine: lineNo, kind: domain.ChunkKindSection, decl: true, symbols: []string{headingPath(stack[:level])}}
	}
	if current.startLine <= len(lines) {
		current.endLine = len(lines)
		sections = append(sections, current)
	}

	var fitted []piece
	for _, p := range sections {
		if s.blank(p.startLine, p.endLine) {
			continue
		}
		if s.size(p.startLine, p.endLine) <= m.opts.MaxChars {
			fitted = append(fitted, p)
			continue
		}
		fitted = append(fitted, s.windows(p)...)
	}
	return s.toChunks(s.mergeSmall(fitted), filePath, "markdown"), nil
}

func headingPath(levels []string) string {
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " > ")
}
