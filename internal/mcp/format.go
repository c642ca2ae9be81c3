package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/mcb/internal/domain"
)

// snippetLines is the snippet length when full content is not requested.
const snippetLines = 6

// FormatSearchResults renders results as markdown for the tool's text
// content.
func FormatSearchResults(query string, results []domain.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for %q\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i := range results {
		formatResult(&sb, i+1, &results[i])
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r *domain.SearchResult) {
	fmt.Fprintf(sb, "### %d. %s:%d-%d (score: %.2f, %s)\n",
		num, r.FilePath, r.StartLine, r.EndLine, r.Score, r.Source)

	if sym := r.Metadata[domain.MetaSymbol]; sym != "" {
		fmt.Fprintf(sb, "**Symbol:** `%s`", sym)
		if kind := r.Metadata[domain.MetaKind]; kind != "" {
			fmt.Fprintf(sb, " (%s)", kind)
		}
		sb.WriteString("\n\n")
	}

	lang := r.Language
	if lang == "" {
		lang = "text"
	}
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, snippetOf(r))
}

func snippetOf(r *domain.SearchResult) string {
	if r.Snippet != "" {
		return r.Snippet
	}
	return domain.Snippet(r.Content, snippetLines)
}

// clampLimit returns def for a non-positive limit, otherwise limit bounded
// to [lo, hi].
func clampLimit(limit, def, lo, hi int) int {
	if limit <= 0 {
		return def
	}
	if limit < lo {
		return lo
	}
	if limit > hi {
		return hi
	}
	return limit
}

// ToSearchResultOutput converts a result. Content is the snippet unless full
// is set.
func ToSearchResultOutput(r domain.SearchResult, full bool) SearchResultOutput {
	out := SearchResultOutput{
		ChunkID:     r.ChunkID,
		FilePath:    r.FilePath,
		StartLine:   r.StartLine,
		EndLine:     r.EndLine,
		Language:    r.Language,
		Symbol:      r.Metadata[domain.MetaSymbol],
		Kind:        r.Metadata[domain.MetaKind],
		Score:       r.Score,
		Source:      string(r.Source),
		MatchReason: generateMatchReason(r),
	}
	if full {
		out.Content = r.Content
	} else {
		out.Content = snippetOf(&r)
	}
	return out
}

// generateMatchReason explains in one line why r ranked.
func generateMatchReason(r domain.SearchResult) string {
	var parts []string

	if sym := r.Metadata[domain.MetaSymbol]; sym != "" {
		kind := r.Metadata[domain.MetaKind]
		if kind == "" {
			kind = "symbol"
		}
		parts = append(parts, fmt.Sprintf("%s '%s'", kind, sym))
	}

	switch r.Source {
	case domain.ProvenanceHybrid:
		parts = append(parts, fmt.Sprintf("keyword %.2f and semantic %.2f", r.BM25Score, r.VectorScore))
	case domain.ProvenanceBM25:
		parts = append(parts, fmt.Sprintf("keyword %.2f", r.BM25Score))
	case domain.ProvenanceVector:
		parts = append(parts, fmt.Sprintf("semantic %.2f", r.VectorScore))
	}

	if len(parts) == 0 {
		return "matched content"
	}
	return strings.Join(parts, "; ")
}

func (f MemoryFilterInput) toFilter() domain.MemoryFilter {
	return domain.MemoryFilter{
		Tags:            f.Tags,
		Type:            domain.ObservationType(f.Type),
		SessionID:       f.SessionID,
		ParentSessionID: f.ParentSessionID,
		RepoID:          f.RepoID,
		Branch:          f.Branch,
		Commit:          f.Commit,
		Since:           f.Since,
		Until:           f.Until,
	}
}

func toObservationOutput(o *domain.Observation) ObservationOutput {
	tags := o.Tags
	if tags == nil {
		tags = []string{}
	}
	return ObservationOutput{
		ID:        o.ID,
		Content:   o.Content,
		Type:      string(o.Type),
		Tags:      tags,
		SessionID: o.Metadata.SessionID,
		RepoID:    o.Metadata.RepoID,
		FilePath:  o.Metadata.FilePath,
		Branch:    o.Metadata.Branch,
		Commit:    o.Metadata.Commit,
		CreatedAt: o.CreatedAt,
	}
}

func toObservationsOutput(obs []*domain.Observation) ObservationsOutput {
	out := ObservationsOutput{Observations: make([]ObservationOutput, 0, len(obs))}
	for _, o := range obs {
		out.Observations = append(out.Observations, toObservationOutput(o))
	}
	out.Count = len(out.Observations)
	return out
}

func toSessionSummaryOutput(s *domain.SessionSummary) SessionSummaryOutput {
	return SessionSummaryOutput{
		ID:            s.ID,
		SessionID:     s.SessionID,
		Topics:        nonNil(s.Topics),
		Decisions:     nonNil(s.Decisions),
		NextSteps:     nonNil(s.NextSteps),
		KeyFiles:      nonNil(s.KeyFiles),
		OriginContext: s.OriginContext,
		CreatedAt:     s.CreatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
