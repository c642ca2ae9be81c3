package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/events"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/memory"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/search"
	"github.com/Aman-CERP/mcb/internal/telemetry"
	"github.com/Aman-CERP/mcb/pkg/version"
)

// ServerName is reported to clients during initialization.
const ServerName = "mcb"

// Transports accepted by Serve.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Service is what the adapter needs from the application. *app.App
// satisfies it.
type Service interface {
	Search(ctx context.Context, req search.Request) ([]domain.SearchResult, error)
	SearchConfig() search.Config
	Index(ctx context.Context, path, collection string, opts index.Options) (*index.Result, error)
	IndexOptions() index.Options
	IndexedFiles(ctx context.Context, collection string) ([]string, error)
	ClearCollection(ctx context.Context, collection string) error
	Stats(ctx context.Context, collection string) (app.CollectionStats, error)
	Status(collection string) []index.OperationStatus
	DefaultCollection() string

	StoreObservation(ctx context.Context, obs *domain.Observation) (string, bool, error)
	GetObservations(ctx context.Context, ids []string) ([]*domain.Observation, error)
	SearchMemories(ctx context.Context, query string, filter domain.MemoryFilter, limit int) ([]memory.Result, error)
	GetTimeline(ctx context.Context, anchorID string, before, after int, filter domain.MemoryFilter) ([]*domain.Observation, error)
	StoreSessionSummary(ctx context.Context, sum *domain.SessionSummary) error
	GetSessionSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error)

	Providers() []app.ProviderKind
	Embedding() app.EmbeddingInfo
	DetectProject(ctx context.Context, path string) (ports.ProjectInfo, error)
	Health(ctx context.Context) events.HealthCheckCompleted
	Telemetry() telemetry.Snapshot
}

var _ Service = (*app.App)(nil)

// Option configures NewServer.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRoot sets the project root that file resources are read from.
func WithRoot(root string) Option {
	return func(s *Server) { s.rootPath = root }
}

// WithCollection sets the collection file resources are listed from.
func WithCollection(name string) Option {
	return func(s *Server) { s.collection = name }
}

// Server bridges MCP clients with the mcb services.
type Server struct {
	mcp    *mcp.Server
	svc    Service
	logger *slog.Logger

	rootPath   string
	collection string

	mu        sync.Mutex
	resources map[string]struct{}
}

// NewServer registers the tools and the status resources on a new MCP
// server.
func NewServer(svc Service, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, ErrMissingService
	}
	s := &Server{
		svc:       svc,
		logger:    slog.Default(),
		resources: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.collection == "" {
		s.collection = svc.DefaultCollection()
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	s.registerStatusResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearch,
		Description: "Hybrid code search. Combines BM25 keyword ranking with vector similarity over the indexed codebase and returns ranked chunks with file paths and line ranges.",
	}, s.handleSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndex,
		Description: "Index a directory. Only new or changed files are re-embedded; deleted files are tombstoned.",
	}, s.handleIndex)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: "Report collection counts, running indexing operations and the active providers.",
	}, s.handleIndexStatus)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolClearCollection,
		Description: "Drop every vector, lexical document and file hash of a collection.",
	}, s.handleClearCollection)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolStoreObservation,
		Description: "Store an observation in agent memory. Identical content is stored once.",
	}, s.handleStoreObservation)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearchMemories,
		Description: "Full-text search over stored observations, narrowed by tags, type, session, repository, branch or time range.",
	}, s.handleSearchMemories)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolGetTimeline,
		Description: "Observations recorded just before and after an anchor observation.",
	}, s.handleGetTimeline)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolGetObservations,
		Description: "Fetch observations by id.",
	}, s.handleGetObservations)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolStoreSessionSummary,
		Description: "Store the summary of a session: topics, decisions, next steps and key files.",
	}, s.handleStoreSessionSummary)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolGetSessionSummary,
		Description: "Fetch the stored summary of a session.",
	}, s.handleGetSessionSummary)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 10))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if in.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	cfg := s.svc.SearchConfig()
	req := search.Request{
		Collection: in.Collection,
		Query:      in.Query,
		Limit:      clampLimit(in.Limit, cfg.DefaultLimit, 1, cfg.MaxLimit),
		Filter: domain.SearchFilter{
			Language:   in.Language,
			PathPrefix: in.PathPrefix,
			Branch:     in.Branch,
			Commit:     in.Commit,
		},
	}
	if in.BM25Weight != nil {
		req.Weights = &search.Weights{BM25: *in.BM25Weight, Vector: 1 - *in.BM25Weight}
	}

	requestID := generateRequestID()
	start := time.Now()
	results, err := s.svc.Search(ctx, req)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}
	s.logger.Debug("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results)), Count: len(results)}
	for _, r := range results {
		out.Results = append(out.Results, ToSearchResultOutput(r, in.FullContent))
	}
	return textResult(FormatSearchResults(in.Query, results)), out, nil
}

func (s *Server) handleIndex(ctx context.Context, _ *mcp.CallToolRequest, in IndexInput) (*mcp.CallToolResult, IndexOutput, error) {
	if in.Path == "" {
		return nil, IndexOutput{}, NewInvalidParamsError("path is required")
	}
	opts := s.svc.IndexOptions()
	opts.Force = in.Force

	res, err := s.svc.Index(ctx, in.Path, in.Collection, opts)
	if res == nil {
		return nil, IndexOutput{}, MapError(err)
	}
	// A cancelled run still reports what it finished.
	if err != nil && res.Status != index.StatusCancelled {
		return nil, IndexOutput{}, MapError(err)
	}

	errs := res.Errors
	if errs == nil {
		errs = []index.FileError{}
	}
	return nil, IndexOutput{
		OperationID:    res.OperationID,
		Collection:     res.Collection,
		Status:         res.Status,
		FilesProcessed: res.FilesProcessed,
		FilesUnchanged: res.FilesUnchanged,
		FilesDeleted:   res.FilesDeleted,
		FilesSkipped:   res.FilesSkipped,
		ChunksCreated:  res.ChunksCreated,
		DurationMs:     res.Duration.Milliseconds(),
		Errors:         errs,
	}, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, in IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	collection := in.Collection
	if collection == "" {
		collection = s.collection
	}
	stats, err := s.svc.Stats(ctx, collection)
	if err != nil {
		return nil, IndexStatusOutput{}, MapError(err)
	}

	out := IndexStatusOutput{
		Stats:      stats,
		Operations: s.svc.Status(stats.Collection),
		Embeddings: s.svc.Embedding(),
		Providers:  s.svc.Providers(),
	}
	if out.Operations == nil {
		out.Operations = []index.OperationStatus{}
	}
	if s.rootPath != "" {
		info, err := s.svc.DetectProject(ctx, s.rootPath)
		if err != nil {
			s.logger.Debug("project_detect_failed", slog.String("error", err.Error()))
		} else {
			out.Project = ProjectInfo{Name: info.Name, RootPath: info.Root, Types: info.Types}
		}
	}
	return nil, out, nil
}

func (s *Server) handleClearCollection(ctx context.Context, _ *mcp.CallToolRequest, in ClearCollectionInput) (*mcp.CallToolResult, ClearCollectionOutput, error) {
	if in.Collection == "" {
		return nil, ClearCollectionOutput{}, NewInvalidParamsError("collection is required")
	}
	if err := s.svc.ClearCollection(ctx, in.Collection); err != nil {
		return nil, ClearCollectionOutput{}, MapError(err)
	}
	s.logger.Info("mcp_collection_cleared", slog.String("collection", in.Collection))
	return nil, ClearCollectionOutput{Collection: in.Collection, Cleared: true}, nil
}

func (s *Server) handleStoreObservation(ctx context.Context, _ *mcp.CallToolRequest, in StoreObservationInput) (*mcp.CallToolResult, StoreObservationOutput, error) {
	if in.Content == "" {
		return nil, StoreObservationOutput{}, NewInvalidParamsError("content is required")
	}
	obs := &domain.Observation{
		Content: in.Content,
		Tags:    in.Tags,
		Type:    domain.ObservationType(in.Type),
		Metadata: domain.ObservationMetadata{
			SessionID:       in.SessionID,
			ParentSessionID: in.ParentSessionID,
			RepoID:          in.RepoID,
			FilePath:        in.FilePath,
			Branch:          in.Branch,
			Commit:          in.Commit,
		},
	}
	id, created, err := s.svc.StoreObservation(ctx, obs)
	if err != nil {
		return nil, StoreObservationOutput{}, MapError(err)
	}
	return nil, StoreObservationOutput{ID: id, Created: created}, nil
}

func (s *Server) handleSearchMemories(ctx context.Context, _ *mcp.CallToolRequest, in SearchMemoriesInput) (*mcp.CallToolResult, ObservationsOutput, error) {
	results, err := s.svc.SearchMemories(ctx, in.Query, in.MemoryFilterInput.toFilter(), clampLimit(in.Limit, 10, 1, 100))
	if err != nil {
		return nil, ObservationsOutput{}, MapError(err)
	}
	out := ObservationsOutput{Observations: make([]ObservationOutput, 0, len(results))}
	for _, r := range results {
		o := toObservationOutput(r.Observation)
		o.Score = r.Score
		out.Observations = append(out.Observations, o)
	}
	out.Count = len(out.Observations)
	return nil, out, nil
}

func (s *Server) handleGetTimeline(ctx context.Context, _ *mcp.CallToolRequest, in GetTimelineInput) (*mcp.CallToolResult, ObservationsOutput, error) {
	if in.AnchorID == "" {
		return nil, ObservationsOutput{}, NewInvalidParamsError("anchor_id is required")
	}
	before, after := in.Before, in.After
	if before <= 0 {
		before = 5
	}
	if after <= 0 {
		after = 5
	}
	obs, err := s.svc.GetTimeline(ctx, in.AnchorID, before, after, in.MemoryFilterInput.toFilter())
	if err != nil {
		return nil, ObservationsOutput{}, MapError(err)
	}
	return nil, toObservationsOutput(obs), nil
}

func (s *Server) handleGetObservations(ctx context.Context, _ *mcp.CallToolRequest, in GetObservationsInput) (*mcp.CallToolResult, ObservationsOutput, error) {
	if len(in.IDs) == 0 {
		return nil, ObservationsOutput{}, NewInvalidParamsError("ids is required")
	}
	obs, err := s.svc.GetObservations(ctx, in.IDs)
	if err != nil {
		return nil, ObservationsOutput{}, MapError(err)
	}
	return nil, toObservationsOutput(obs), nil
}

func (s *Server) handleStoreSessionSummary(ctx context.Context, _ *mcp.CallToolRequest, in SessionSummaryInput) (*mcp.CallToolResult, SessionSummaryOutput, error) {
	if in.SessionID == "" {
		return nil, SessionSummaryOutput{}, NewInvalidParamsError("session_id is required")
	}
	sum := &domain.SessionSummary{
		SessionID:     in.SessionID,
		Topics:        in.Topics,
		Decisions:     in.Decisions,
		NextSteps:     in.NextSteps,
		KeyFiles:      in.KeyFiles,
		OriginContext: in.OriginContext,
	}
	if err := s.svc.StoreSessionSummary(ctx, sum); err != nil {
		return nil, SessionSummaryOutput{}, MapError(err)
	}
	return nil, toSessionSummaryOutput(sum), nil
}

func (s *Server) handleGetSessionSummary(ctx context.Context, _ *mcp.CallToolRequest, in GetSessionSummaryInput) (*mcp.CallToolResult, SessionSummaryOutput, error) {
	if in.SessionID == "" {
		return nil, SessionSummaryOutput{}, NewInvalidParamsError("session_id is required")
	}
	sum, err := s.svc.GetSessionSummary(ctx, in.SessionID)
	if err != nil {
		return nil, SessionSummaryOutput{}, MapError(err)
	}
	return nil, toSessionSummaryOutput(sum), nil
}

// Serve runs the server on transport until ctx ends. addr is used by the
// http transport only.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	var err error
	switch transport {
	case TransportStdio, "":
		err = s.mcp.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		err = s.serveHTTP(ctx, addr)
	default:
		return NewInvalidParamsError(fmt.Sprintf("unknown transport %q (supported: %s, %s)", transport, TransportStdio, TransportHTTP))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// Handler returns the streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
