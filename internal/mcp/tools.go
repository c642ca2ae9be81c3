package mcp

import (
	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/index"
)

// Tool names.
const (
	ToolSearch              = "search"
	ToolIndex               = "index"
	ToolIndexStatus         = "index_status"
	ToolClearCollection     = "clear_collection"
	ToolStoreObservation    = "store_observation"
	ToolSearchMemories      = "search_memories"
	ToolGetTimeline         = "get_timeline"
	ToolGetObservations     = "get_observations"
	ToolStoreSessionSummary = "store_session_summary"
	ToolGetSessionSummary   = "get_session_summary"
)

// SearchInput is the input of the search tool.
type SearchInput struct {
	Query       string   `json:"query" jsonschema:"the search query"`
	Collection  string   `json:"collection,omitempty" jsonschema:"collection to search, default from configuration"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Language    string   `json:"language,omitempty" jsonschema:"only chunks in this language, e.g. go, python"`
	PathPrefix  string   `json:"path_prefix,omitempty" jsonschema:"only files under this path prefix"`
	Branch      string   `json:"branch,omitempty" jsonschema:"only chunks indexed on this branch"`
	Commit      string   `json:"commit,omitempty" jsonschema:"only chunks indexed at this commit (prefix match)"`
	BM25Weight  *float64 `json:"bm25_weight,omitempty" jsonschema:"lexical weight in [0,1]; vector weight is 1 minus this"`
	FullContent bool     `json:"include_content,omitempty" jsonschema:"return full chunk content instead of a snippet"`
}

// SearchOutput is the structured result of the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput is one search hit.
type SearchResultOutput struct {
	ChunkID     string  `json:"chunk_id"`
	FilePath    string  `json:"file_path" jsonschema:"path relative to the indexed root"`
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	Language    string  `json:"language,omitempty"`
	Symbol      string  `json:"symbol,omitempty" jsonschema:"primary symbol of the chunk"`
	Kind        string  `json:"kind,omitempty" jsonschema:"function, method, class, type, section or block"`
	Content     string  `json:"content"`
	Score       float64 `json:"score" jsonschema:"fused relevance in [0,1]"`
	Source      string  `json:"source" jsonschema:"bm25, vector or hybrid"`
	MatchReason string  `json:"match_reason,omitempty"`
}

// IndexInput is the input of the index tool.
type IndexInput struct {
	Path       string `json:"path" jsonschema:"directory to index"`
	Collection string `json:"collection,omitempty"`
	Force      bool   `json:"force,omitempty" jsonschema:"re-index files whose content is unchanged"`
}

// IndexOutput summarises one indexing run.
type IndexOutput struct {
	OperationID    string            `json:"operation_id"`
	Collection     string            `json:"collection"`
	Status         index.Status      `json:"status"`
	FilesProcessed int               `json:"files_processed"`
	FilesUnchanged int               `json:"files_unchanged"`
	FilesDeleted   int               `json:"files_deleted"`
	FilesSkipped   int               `json:"files_skipped"`
	ChunksCreated  int               `json:"chunks_created"`
	DurationMs     int64             `json:"duration_ms"`
	Errors         []index.FileError `json:"errors"`
}

// IndexStatusInput is the input of the index_status tool.
type IndexStatusInput struct {
	Collection string `json:"collection,omitempty"`
}

// IndexStatusOutput reports a collection and the providers serving it.
type IndexStatusOutput struct {
	Project    ProjectInfo             `json:"project"`
	Stats      app.CollectionStats     `json:"stats"`
	Operations []index.OperationStatus `json:"operations"`
	Embeddings app.EmbeddingInfo       `json:"embeddings"`
	Providers  []app.ProviderKind      `json:"providers"`
}

// ProjectInfo describes the served project.
type ProjectInfo struct {
	Name     string   `json:"name"`
	RootPath string   `json:"root_path"`
	Types    []string `json:"types,omitempty"`
}

// ClearCollectionInput is the input of the clear_collection tool.
type ClearCollectionInput struct {
	Collection string `json:"collection" jsonschema:"collection to drop"`
}

// ClearCollectionOutput confirms a clear.
type ClearCollectionOutput struct {
	Collection string `json:"collection"`
	Cleared    bool   `json:"cleared"`
}

// MemoryFilterInput narrows memory queries. Empty fields match all.
type MemoryFilterInput struct {
	Tags            []string `json:"tags,omitempty" jsonschema:"every tag must be present"`
	Type            string   `json:"type,omitempty" jsonschema:"code, decision, context, error, summary, execution or quality_gate"`
	SessionID       string   `json:"session_id,omitempty"`
	ParentSessionID string   `json:"parent_session_id,omitempty"`
	RepoID          string   `json:"repo_id,omitempty"`
	Branch          string   `json:"branch,omitempty"`
	Commit          string   `json:"commit,omitempty"`
	Since           int64    `json:"since,omitempty" jsonschema:"unix seconds, inclusive"`
	Until           int64    `json:"until,omitempty" jsonschema:"unix seconds, inclusive"`
}

// StoreObservationInput is the input of the store_observation tool.
type StoreObservationInput struct {
	Content         string   `json:"content" jsonschema:"the observation text"`
	Type            string   `json:"type,omitempty" jsonschema:"observation type, default context"`
	Tags            []string `json:"tags,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
	ParentSessionID string   `json:"parent_session_id,omitempty"`
	RepoID          string   `json:"repo_id,omitempty"`
	FilePath        string   `json:"file_path,omitempty"`
	Branch          string   `json:"branch,omitempty"`
	Commit          string   `json:"commit,omitempty"`
}

// StoreObservationOutput reports the stored id. Created is false when the
// same content was already stored.
type StoreObservationOutput struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// SearchMemoriesInput is the input of the search_memories tool.
type SearchMemoriesInput struct {
	Query string `json:"query,omitempty" jsonschema:"full-text query; empty lists the newest observations"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	MemoryFilterInput
}

// ObservationOutput is one observation.
type ObservationOutput struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	Tags      []string `json:"tags"`
	SessionID string   `json:"session_id,omitempty"`
	RepoID    string   `json:"repo_id,omitempty"`
	FilePath  string   `json:"file_path,omitempty"`
	Branch    string   `json:"branch,omitempty"`
	Commit    string   `json:"commit,omitempty"`
	CreatedAt int64    `json:"created_at"`
	Score     float64  `json:"score,omitempty"`
}

// ObservationsOutput is a list of observations.
type ObservationsOutput struct {
	Observations []ObservationOutput `json:"observations"`
	Count        int                 `json:"count"`
}

// GetTimelineInput is the input of the get_timeline tool.
type GetTimelineInput struct {
	AnchorID string `json:"anchor_id" jsonschema:"observation id to center on"`
	Before   int    `json:"before,omitempty" jsonschema:"observations before the anchor, default 5"`
	After    int    `json:"after,omitempty" jsonschema:"observations after the anchor, default 5"`
	MemoryFilterInput
}

// GetObservationsInput is the input of the get_observations tool.
type GetObservationsInput struct {
	IDs []string `json:"ids" jsonschema:"observation ids"`
}

// SessionSummaryInput is the input of the store_session_summary tool.
type SessionSummaryInput struct {
	SessionID     string            `json:"session_id"`
	Topics        []string          `json:"topics,omitempty"`
	Decisions     []string          `json:"decisions,omitempty"`
	NextSteps     []string          `json:"next_steps,omitempty"`
	KeyFiles      []string          `json:"key_files,omitempty"`
	OriginContext map[string]string `json:"origin_context,omitempty"`
}

// SessionSummaryOutput is a stored session summary.
type SessionSummaryOutput struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	Topics        []string          `json:"topics"`
	Decisions     []string          `json:"decisions"`
	NextSteps     []string          `json:"next_steps"`
	KeyFiles      []string          `json:"key_files"`
	OriginContext map[string]string `json:"origin_context,omitempty"`
	CreatedAt     int64             `json:"created_at"`
}

// GetSessionSummaryInput is the input of the get_session_summary tool.
type GetSessionSummaryInput struct {
	SessionID string `json:"session_id"`
}
