package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/mcb/internal/domain"
)

// snippetLines bounds the snippet printed per result.
const snippetLines = 6

// WriteResults prints ranked search results, best first.
func WriteResults(w io.Writer, query string, results []domain.SearchResult, st Styles) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(w, "No results for %q\n", query)
		return
	}
	_, _ = fmt.Fprintf(w, "%s\n", st.Header.Render(fmt.Sprintf("%d results for %q", len(results), query)))
	for i, r := range results {
		loc := fmt.Sprintf("%s:%d-%d", r.FilePath, r.StartLine, r.EndLine)
		_, _ = fmt.Fprintf(w, "\n%2d. %s %s %s\n", i+1,
			st.Path.Render(loc),
			st.Score.Render(fmt.Sprintf("%.3f", r.Score)),
			st.Dim.Render(describe(r)))

		snippet := r.Snippet
		if snippet == "" {
			snippet = domain.Snippet(r.Content, snippetLines)
		}
		for _, line := range strings.Split(strings.TrimRight(snippet, "\n"), "\n") {
			_, _ = fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

func describe(r domain.SearchResult) string {
	parts := []string{string(r.Source)}
	if r.Language != "" {
		parts = append(parts, r.Language)
	}
	if sym := r.Metadata[domain.MetaSymbol]; sym != "" {
		parts = append(parts, sym)
	}
	if br := r.Metadata[domain.MetaBranch]; br != "" {
		parts = append(parts, "@"+br)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
