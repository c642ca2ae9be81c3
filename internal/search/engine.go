package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mcb/internal/chunk"
	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/events"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine is the hybrid search engine. The vector store and embedder are
// read through handles once per request, so a provider swap never affects
// a search already in flight.
type Engine struct {
	lexical  ports.LexicalIndex
	vectors  *registry.Handle[ports.VectorStore]
	embedder *registry.Handle[ports.EmbeddingProvider]
	events   events.Publisher
	logger   *slog.Logger
	config   Config
	fuser    Fuser
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithEvents sets the publisher for SearchExecuted events.
func WithEvents(p events.Publisher) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine over the given lexical index, vector store
// and embedder.
func NewEngine(
	lexical ports.LexicalIndex,
	vectors *registry.Handle[ports.VectorStore],
	embedder *registry.Handle[ports.EmbeddingProvider],
	opts ...EngineOption,
) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	e := &Engine{
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		events:   events.Nop{},
		logger:   slog.Default(),
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if e.config.Fusion == FusionRRF {
		e.fuser = NewRRFFusion(e.config.RRFConstant)
	} else {
		e.fuser = LinearFusion{}
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Search runs both branches and returns up to Limit fused results.
//
// An empty query runs the lexical branch only. A collection with an empty
// lexical corpus runs the vector branch only. A branch whose weight is 0
// is skipped. When only one branch runs its normalized scores are used
// as-is.
func (e *Engine) Search(ctx context.Context, req Request) ([]domain.SearchResult, error) {
	start := time.Now()

	limit, w, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)

	vectors, releaseVectors := e.vectors.Acquire()
	defer releaseVectors()
	embedder, releaseEmbedder := e.embedder.Acquire()
	defer releaseEmbedder()

	runVector := query != "" && w.Vector > 0
	runBM25 := w.BM25 > 0 || !runVector
	if runBM25 {
		n, err := e.lexical.DocumentCount(ctx, req.Collection)
		if err != nil {
			e.logger.Warn("lexical_count_failed",
				slog.String("collection", req.Collection),
				slog.String("error", err.Error()))
		}
		runBM25 = n > 0
	}
	if err := ctx.Err(); err != nil {
		return nil, mcberrors.FromContext(err)
	}

	fetch := limit * e.config.CandidateMultiplier
	var (
		bm25Hits   []ports.LexicalHit
		vecResults []domain.SearchResult
		bm25Err    error
		vecErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	if runBM25 {
		g.Go(func() error {
			n := fetch
			if !req.Filter.IsEmpty() {
				n *= filterOverfetch
			}
			bm25Hits, bm25Err = e.lexical.Search(gctx, req.Collection, query, n)
			return nil
		})
	}
	if runVector {
		g.Go(func() error {
			vecs, err := embedder.EmbedBatch(gctx, []string{query})
			if err != nil {
				vecErr = err
				return nil
			}
			if len(vecs) != 1 {
				vecErr = mcberrors.Internal("embedder returned no vector for the query", nil)
				return nil
			}
			vecResults, vecErr = vectors.Search(gctx, req.Collection, vecs[0], fetch, req.Filter)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, mcberrors.FromContext(err)
	}
	if err := e.settle(req.Collection, runBM25, runVector, &bm25Err, &vecErr); err != nil {
		return nil, err
	}

	byID := make(map[string]domain.SearchResult, len(vecResults)+len(bm25Hits))
	vecList := make([]Candidate, 0, len(vecResults))
	for _, r := range vecResults {
		byID[r.ChunkID] = r
		vecList = append(vecList, Candidate{ID: r.ChunkID, Score: r.Score})
	}
	bmList, err := e.hydrateLexical(ctx, vectors, req, bm25Hits, byID, fetch)
	if err != nil {
		return nil, err
	}

	// A single branch keeps its own ranking.
	switch {
	case len(bmList) == 0 && len(vecList) > 0:
		w = Weights{Vector: 1}
	case len(vecList) == 0 && len(bmList) > 0:
		w = Weights{BM25: 1}
	}

	fused := e.fuser.Fuse(bmList, vecList, w)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	results := make([]domain.SearchResult, 0, len(fused))
	for _, f := range fused {
		r := byID[f.ChunkID]
		r.Score = f.Score
		r.Source = f.Source()
		r.BM25Score = f.BM25Score
		r.VectorScore = f.VectorScore
		results = append(results, r)
	}

	elapsed := time.Since(start)
	e.events.Publish(events.SearchExecuted{
		Query:       req.Query,
		Collection:  req.Collection,
		ResultCount: len(results),
		ElapsedMs:   elapsed.Milliseconds(),
	})
	e.logger.Debug("search_executed",
		slog.String("collection", req.Collection),
		slog.Int("bm25_candidates", len(bmList)),
		slog.Int("vector_candidates", len(vecList)),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", elapsed))
	return results, nil
}

func (e *Engine) prepare(req Request) (int, Weights, error) {
	if err := domain.ValidateCollectionName(req.Collection); err != nil {
		return 0, Weights{}, mcberrors.InvalidArgument(err.Error())
	}
	limit := req.Limit
	switch {
	case limit == 0:
		limit = e.config.DefaultLimit
	case limit < 0 || limit > e.config.MaxLimit:
		return 0, Weights{}, mcberrors.InvalidArgument(
			fmt.Sprintf("limit must be between 1 and %d, got %d", e.config.MaxLimit, limit))
	}
	w := e.config.Weights
	if req.Weights != nil {
		w = *req.Weights
	}
	if err := w.Validate(); err != nil {
		return 0, Weights{}, err
	}
	return limit, w, nil
}

// settle decides whether branch failures are fatal. A failed branch is
// dropped when the other one succeeded; the search fails only when every
// branch that ran failed.
func (e *Engine) settle(collection string, ranBM25, ranVector bool, bm25Err, vecErr *error) error {
	bmFailed := ranBM25 && *bm25Err != nil
	vecFailed := ranVector && *vecErr != nil
	switch {
	case vecFailed && (bmFailed || !ranBM25):
		return *vecErr
	case bmFailed && !ranVector:
		return *bm25Err
	case vecFailed:
		e.logger.Warn("vector_branch_failed",
			slog.String("collection", collection),
			slog.String("error", (*vecErr).Error()))
		*vecErr = nil
	case bmFailed:
		e.logger.Warn("bm25_branch_failed",
			slog.String("collection", collection),
			slog.String("error", (*bm25Err).Error()))
		*bm25Err = nil
	}
	return nil
}

// hydrateLexical attaches stored metadata to lexical hits, applies the
// filter and trims the list to n. Hits already returned by the vector
// branch reuse that result.
func (e *Engine) hydrateLexical(
	ctx context.Context,
	vectors ports.VectorStore,
	req Request,
	hits []ports.LexicalHit,
	byID map[string]domain.SearchResult,
	n int,
) ([]Candidate, error) {
	if len(hits) == 0 {
		return nil, nil
	}
	var missing []string
	for _, h := range hits {
		if _, ok := byID[h.ID]; !ok {
			missing = append(missing, h.ID)
		}
	}
	if len(missing) > 0 {
		records, err := vectors.GetByIDs(ctx, req.Collection, missing)
		if err != nil && !mcberrors.IsKind(err, mcberrors.KindNotFound) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, mcberrors.FromContext(ctxErr)
			}
			e.logger.Warn("lexical_hydrate_failed",
				slog.String("collection", req.Collection),
				slog.String("error", err.Error()))
		}
		for _, rec := range records {
			byID[rec.ID] = domain.ResultFromMetadata(rec.ID, 0, rec.Metadata)
		}
	}

	out := make([]Candidate, 0, min(len(hits), n))
	for _, h := range hits {
		r, ok := byID[h.ID]
		if !ok {
			r = resultFromID(h.ID)
		}
		if !req.Filter.IsEmpty() && !req.Filter.Match(r.Metadata) {
			continue
		}
		byID[h.ID] = r
		out = append(out, Candidate{ID: h.ID, Score: h.Score})
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// resultFromID rebuilds what the chunk id encodes when the vector store
// holds no record for it.
func resultFromID(id string) domain.SearchResult {
	_, path, start, end, err := domain.ParseChunkID(id)
	if err != nil {
		return domain.SearchResult{ChunkID: id, Metadata: map[string]string{}}
	}
	lang := chunk.DetectLanguage(path, nil)
	return domain.SearchResult{
		ChunkID:   id,
		FilePath:  path,
		StartLine: start,
		EndLine:   end,
		Language:  lang,
		Metadata: map[string]string{
			domain.MetaFilePath:  path,
			domain.MetaStartLine: strconv.Itoa(start),
			domain.MetaEndLine:   strconv.Itoa(end),
			domain.MetaLanguage:  lang,
		},
	}
}
