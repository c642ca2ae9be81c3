package chunk

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// CodeChunker chunks one tree-sitter language at declaration boundaries.
//
// Declarations that fit within MaxChars become one chunk. Larger ones are
// split at nested declarations (class methods, impl items), and failing
// that, into overlapping line windows. Pieces under MinChars are merged
// with their neighbours, and comments, attributes or decorators directly
// above a declaration travel with it.
type CodeChunker struct {
	spec   *LanguageSpec
	parser *Parser
	opts   Options
}

var _ ports.LanguageChunker = (*CodeChunker)(nil)

// NewCodeChunker creates a chunker for spec. Zero option fields take the
// language defaults.
func NewCodeChunker(spec *LanguageSpec, opts Options) *CodeChunker {
	return &CodeChunker{
		spec:   spec,
		parser: NewParser(spec.Grammar()),
		opts:   opts.withDefaults(spec.Defaults),
	}
}

// Language implements ports.LanguageChunker.
func (c *CodeChunker) Language() string { return c.spec.Name }

// Extensions implements ports.LanguageChunker.
func (c *CodeChunker) Extensions() []string { return c.spec.Extensions }

// ProviderName implements ports.LanguageChunker.
func (c *CodeChunker) ProviderName() string { return "tree-sitter-" + c.spec.Name }

// Options returns the effective size bounds.
func (c *CodeChunker) Options() Options { return c.opts }

// Chunk implements ports.LanguageChunker.
func (c *CodeChunker) Chunk(ctx context.Context, content []byte, filePath string) ([]domain.CodeChunk, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}
	tree, err := c.parser.Parse(ctx, content, c.spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	s := newShaper(content, c.opts)
	top := resolveOverlaps(c.segments(s, tree.Root, 0))

	var fitted []piece
	for _, p := range top {
		fitted = append(fitted, c.fit(s, p, 0)...)
	}
	return s.toChunks(s.mergeSmall(fitted), filePath, c.spec.Name), nil
}

// segments turns the children of parent into declaration and glue pieces.
func (c *CodeChunker) segments(s *shaper, parent *Node, depth int) []piece {
	var out []piece
	var glue []*Node

	blankNode := func(n *Node) bool {
		return len(bytes.TrimSpace(s.src[n.StartByte:n.EndByte])) == 0
	}
	flush := func(nodes []*Node) {
		for len(nodes) > 0 && blankNode(nodes[0]) {
			nodes = nodes[1:]
		}
		for len(nodes) > 0 && blankNode(nodes[len(nodes)-1]) {
			nodes = nodes[:len(nodes)-1]
		}
		if len(nodes) == 0 {
			return
		}
		sl := int(nodes[0].StartPoint.Row) + 1
		el := endLine(nodes[len(nodes)-1])
		if el < sl || s.blank(sl, el) {
			return
		}
		out = append(out, piece{startLine: sl, endLine: el, kind: domain.ChunkKindModule})
	}

	for _, n := range parent.Children {
		kind, named, ok := c.spec.declKind(n)
		if !ok {
			glue = append(glue, n)
			continue
		}

		// Walk back over attached comments and attributes with no blank
		// line between them and the declaration.
		i := len(glue)
		row := n.StartPoint.Row
		for i > 0 && c.spec.Attached[glue[i-1].Type] && glue[i-1].EndPoint.Row+1 >= row {
			i--
			row = glue[i].StartPoint.Row
		}
		flush(glue[:i])
		glue = nil

		if depth > 0 && kind == domain.ChunkKindFunction {
			kind = domain.ChunkKindMethod
		}
		if n.Type == "type_declaration" && isInterface(n) {
			kind = domain.ChunkKindInterface
		}
		p := piece{
			startLine: int(row) + 1,
			endLine:   endLine(n),
			kind:      kind,
			decl:      true,
			node:      n,
		}
		if name := symbolName(named, s.src); name != "" {
			p.symbols = []string{name}
		}
		out = append(out, p)
	}
	flush(glue)
	return out
}

// fit applies the size policy to p.
func (c *CodeChunker) fit(s *shaper, p piece, depth int) []piece {
	if s.size(p.startLine, p.endLine) <= c.opts.MaxChars {
		return []piece{p}
	}
	if !p.decl || p.node == nil || depth > 8 {
		return s.windows(p)
	}
	container := c.container(p.node, 0)
	if container == nil {
		return s.windows(p)
	}
	subs := resolveOverlaps(c.segments(s, container, depth+1))
	if len(subs) == 0 {
		return s.windows(p)
	}
	first, last := subs[0], subs[len(subs)-1]
	if first.startLine < p.startLine || last.endLine > p.endLine {
		return s.windows(p)
	}

	var out []piece
	// Header (signature, opening brace, docs) carries the parent's name.
	if first.startLine > p.startLine {
		h := piece{startLine: p.startLine, endLine: first.startLine - 1, kind: p.kind, symbols: p.symbols}
		if !s.blank(h.startLine, h.endLine) {
			out = append(out, c.fit(s, h, depth+1)...)
		}
	}
	for _, sub := range subs {
		out = append(out, c.fit(s, sub, depth+1)...)
	}
	if last.endLine < p.endLine {
		t := piece{startLine: last.endLine + 1, endLine: p.endLine, kind: domain.ChunkKindModule}
		if !s.blank(t.startLine, t.endLine) {
			out = append(out, c.fit(s, t, depth+1)...)
		}
	}
	return out
}

// container finds the node under decl whose children hold nested
// declarations, e.g. a class body or impl block.
func (c *CodeChunker) container(n *Node, depth int) *Node {
	if depth > 3 {
		return nil
	}
	if depth > 0 {
		for _, ch := range n.Children {
			if _, _, ok := c.spec.declKind(ch); ok {
				return n
			}
		}
	}
	for _, ch := range n.Children {
		if r := c.container(ch, depth+1); r != nil {
			return r
		}
	}
	return nil
}

// endLine is the 1-indexed last line of n. Nodes that end at column 0
// finished on the previous line.
func endLine(n *Node) int {
	if n.EndPoint.Column == 0 && n.EndPoint.Row > n.StartPoint.Row {
		return int(n.EndPoint.Row)
	}
	return int(n.EndPoint.Row) + 1
}

func isInterface(n *Node) bool {
	found := false
	n.Walk(func(x *Node) bool {
		if x.Type == "interface_type" {
			found = true
		}
		return !found
	})
	return found
}
