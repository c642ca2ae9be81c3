// Package chunk splits source files into size-bounded, declaration-aligned
// chunks. Supported languages are parsed with tree-sitter; everything else
// goes through line windows.
package chunk

// Size defaults, in bytes of chunk text.
const (
	DefaultMaxChars     = 1200
	DefaultMinChars     = 120
	DefaultOverlapLines = 2

	UniversalMaxChars = 1000
)

// Options bound chunk sizes.
type Options struct {
	// MaxChars is the largest chunk emitted before splitting.
	MaxChars int
	// MinChars is the size below which adjacent siblings are merged.
	MinChars int
	// OverlapLines is shared between consecutive line windows; negative
	// disables overlap.
	OverlapLines int
}

// withDefaults fills zero fields from def.
func (o Options) withDefaults(def Options) Options {
	if o.MaxChars <= 0 {
		o.MaxChars = def.MaxChars
	}
	if o.MinChars <= 0 {
		o.MinChars = def.MinChars
	}
	if o.MinChars > o.MaxChars {
		o.MinChars = o.MaxChars
	}
	switch {
	case o.OverlapLines == 0:
		o.OverlapLines = def.OverlapLines
	case o.OverlapLines < 0:
		o.OverlapLines = 0
	}
	return o
}

// Tree is a parsed file.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a tree-sitter node copied out of the C tree so that it outlives
// the parser.
type Node struct {
	Type       string
	Field      string // field name in the parent, "" if none
	Named      bool
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a position in the source.
type Point struct {
	Row    uint32 // 0-indexed
	Column uint32
}

// Content returns the node's source text.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// ChildByField returns the first child carrying field name.
func (n *Node) ChildByField(field string) *Node {
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildByType returns the first child of the given type.
func (n *Node) ChildByType(types ...string) *Node {
	for _, c := range n.Children {
		for _, t := range types {
			if c.Type == t {
				return c
			}
		}
	}
	return nil
}

// Walk visits nodes depth-first; returning false skips the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
