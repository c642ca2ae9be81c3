package chunk

import (
	"bytes"
	"context"

	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// LanguageText is the language tag of files no chunker recognises.
const LanguageText = "text"

// UniversalChunker splits any text into overlapping line windows.
type UniversalChunker struct {
	opts Options
}

var _ ports.LanguageChunker = (*UniversalChunker)(nil)

// NewUniversalChunker creates the fallback chunker.
func NewUniversalChunker(opts Options) *UniversalChunker {
	return &UniversalChunker{opts: opts.withDefaults(Options{
		MaxChars:     UniversalMaxChars,
		MinChars:     1,
		OverlapLines: DefaultOverlapLines,
	})}
}

func (u *UniversalChunker) Language() string     { return LanguageText }
func (u *UniversalChunker) Extensions() []string { return nil }
func (u *UniversalChunker) ProviderName() string { return "universal" }

// Chunk implements ports.LanguageChunker. The returned chunks carry
// language "text"; Engine retags them with the detected language.
func (u *UniversalChunker) Chunk(_ context.Context, content []byte, filePath string) ([]domain.CodeChunk, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}
	s := newShaper(content, u.opts)
	whole := piece{startLine: 1, endLine: s.li.lines(), kind: domain.ChunkKindWindow}
	return s.toChunks(s.windows(whole), filePath, LanguageText), nil
}
