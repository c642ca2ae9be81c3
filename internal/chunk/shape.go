package chunk

import (
	"bytes"
	"sort"
	"strings"

	"github.com/Aman-CERP/mcb/internal/domain"
)

// lineIndex maps byte offsets to 1-indexed lines.
type lineIndex struct {
	starts []int
	size   int
}

func newLineIndex(src []byte) *lineIndex {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts, size: len(src)}
}

func (li *lineIndex) lines() int { return len(li.starts) }

// lineOf returns the line containing offset.
func (li *lineIndex) lineOf(offset int) int {
	return sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset })
}

// span returns the byte range [start, end) of lines sl..el, excluding the
// final newline.
func (li *lineIndex) span(sl, el int) (int, int) {
	start := li.starts[sl-1]
	end := li.size
	if el < len(li.starts) {
		end = li.starts[el] - 1
	}
	return start, end
}

// piece is a chunk candidate measured in whole lines.
type piece struct {
	startLine int
	endLine   int
	kind      domain.ChunkKind
	symbols   []string
	decl      bool
	window    bool
	node      *Node
}

// shaper applies the size policy shared by every chunker.
type shaper struct {
	src  []byte
	li   *lineIndex
	opts Options
}

func newShaper(src []byte, opts Options) *shaper {
	return &shaper{src: src, li: newLineIndex(src), opts: opts}
}

func (s *shaper) text(sl, el int) []byte {
	start, end := s.li.span(sl, el)
	return bytes.TrimSuffix(s.src[start:end], []byte("\n"))
}

func (s *shaper) size(sl, el int) int {
	return len(s.text(sl, el))
}

func (s *shaper) blank(sl, el int) bool {
	return len(bytes.TrimSpace(s.text(sl, el))) == 0
}

// windows splits a piece into line windows no larger than MaxChars, sharing
// OverlapLines between neighbours. A single line longer than MaxChars is
// kept whole.
func (s *shaper) windows(p piece) []piece {
	kind := p.kind
	if !p.decl || kind == "" {
		kind = domain.ChunkKindWindow
	}
	var out []piece
	start := p.startLine
	for start <= p.endLine {
		end := start
		for end < p.endLine && s.size(start, end+1) <= s.opts.MaxChars {
			end++
		}
		out = append(out, piece{startLine: start, endLine: end, kind: kind, symbols: p.symbols, window: true})
		if end >= p.endLine {
			break
		}
		next := end + 1 - s.opts.OverlapLines
		if next <= start {
			next = end + 1
		}
		start = next
	}
	return out
}

// mergeSmall joins adjacent pieces when either is below MinChars and the
// union still fits. Windows are never merged.
func (s *shaper) mergeSmall(pieces []piece) []piece {
	out := make([]piece, 0, len(pieces))
	for _, p := range pieces {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			small := s.size(prev.startLine, prev.endLine) < s.opts.MinChars ||
				s.size(p.startLine, p.endLine) < s.opts.MinChars
			if !prev.window && !p.window && small && s.size(prev.startLine, p.endLine) <= s.opts.MaxChars {
				mergeInto(prev, p)
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// resolveOverlaps merges pieces that share a line, so line spans stay
// disjoint.
func resolveOverlaps(pieces []piece) []piece {
	out := make([]piece, 0, len(pieces))
	for _, p := range pieces {
		if n := len(out); n > 0 && p.startLine <= out[n-1].endLine {
			prev := &out[n-1]
			both := prev.decl && p.decl
			mergeInto(prev, p)
			if both {
				prev.node = nil
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func mergeInto(prev *piece, p piece) {
	if p.endLine > prev.endLine {
		prev.endLine = p.endLine
	}
	if !prev.decl && p.decl {
		prev.kind = p.kind
		prev.node = p.node
		prev.decl = true
	} else if prev.decl && p.decl {
		prev.node = nil
	}
	prev.symbols = append(prev.symbols, p.symbols...)
}

// toChunks converts pieces to chunks in source order, skipping blank ones.
func (s *shaper) toChunks(pieces []piece, filePath, language string) []domain.CodeChunk {
	chunks := make([]domain.CodeChunk, 0, len(pieces))
	for _, p := range pieces {
		if s.blank(p.startLine, p.endLine) {
			continue
		}
		start, _ := s.li.span(p.startLine, p.endLine)
		text := s.text(p.startLine, p.endLine)
		c := domain.CodeChunk{
			FilePath:  filePath,
			Language:  language,
			Kind:      p.kind,
			StartLine: p.startLine,
			EndLine:   p.endLine,
			StartByte: start,
			EndByte:   start + len(text),
			Content:   string(text),
			Metadata:  map[string]string{},
		}
		if len(p.symbols) > 0 {
			c.Symbol = p.symbols[0]
			if len(p.symbols) > 1 {
				c.Metadata["symbols"] = strings.Join(p.symbols, ",")
			}
		}
		if c.Kind == "" {
			c.Kind = domain.ChunkKindModule
		}
		chunks = append(chunks, c)
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].StartByte < chunks[j].StartByte })
	return chunks
}
