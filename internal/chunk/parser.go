package chunk

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser parses one grammar. tree-sitter parsers are not safe for
// concurrent use, so instances are pooled.
type Parser struct {
	lang *sitter.Language
	pool sync.Pool
}

// NewParser creates a pooled parser for lang.
func NewParser(lang *sitter.Language) *Parser {
	p := &Parser{lang: lang}
	p.pool.New = func() any {
		sp := sitter.NewParser()
		sp.SetLanguage(lang)
		return sp
	}
	return p
}

// Parse returns the converted syntax tree of source.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	sp := p.pool.Get().(*sitter.Parser)
	defer p.pool.Put(sp)

	tsTree, err := sp.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}
	defer tsTree.Close()

	return &Tree{
		Root:     convertNode(tsTree.RootNode(), ""),
		Source:   source,
		Language: language,
	}, nil
}

func convertNode(ts *sitter.Node, field string) *Node {
	if ts == nil {
		return nil
	}
	n := &Node{
		Type:       ts.Type(),
		Field:      field,
		Named:      ts.IsNamed(),
		StartByte:  ts.StartByte(),
		EndByte:    ts.EndByte(),
		StartPoint: Point{Row: ts.StartPoint().Row, Column: ts.StartPoint().Column},
		EndPoint:   Point{Row: ts.EndPoint().Row, Column: ts.EndPoint().Column},
		HasError:   ts.HasError(),
		Children:   make([]*Node, 0, int(ts.ChildCount())),
	}
	for i := 0; i < int(ts.ChildCount()); i++ {
		child := ts.Child(i)
		if child == nil {
			continue
		}
		n.Children = append(n.Children, convertNode(child, ts.FieldNameForChild(i)))
	}
	return n
}
