package store

import "github.com/Aman-CERP/mcb/internal/ports"

// testDocs is a terse literal form for test corpora.
type testDocs []struct{ ID, Content string }

func (d testDocs) docs() []ports.LexicalDocument {
	out := make([]ports.LexicalDocument, len(d))
	for i, x := range d {
		out[i] = ports.LexicalDocument{ID: x.ID, Content: x.Content}
	}
	return out
}
