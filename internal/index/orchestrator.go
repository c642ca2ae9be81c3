package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mcb/internal/chunk"
	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/events"
	"github.com/Aman-CERP/mcb/internal/filehash"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
	"github.com/Aman-CERP/mcb/internal/scanner"
)

// ErrNilDependency is returned by NewOrchestrator for a missing dependency.
var ErrNilDependency = errors.New("index: nil dependency")

// Dependencies are the collaborators of an Orchestrator. Scanner and
// Chunker default to fresh instances; VCS, Events, Operations and LockDir
// are optional.
type Dependencies struct {
	Scanner  *scanner.Scanner
	Chunker  *chunk.Engine
	Embedder *registry.Handle[ports.EmbeddingProvider]
	Vectors  *registry.Handle[ports.VectorStore]
	Lexical  ports.LexicalIndex
	Hashes   ports.FileHashStore
	VCS      ports.VCSProvider
	Events   events.Publisher

	Operations *Operations

	// LockDir holds the per-collection lock files; "" disables locking.
	LockDir string

	// ProgressEvery throttles progress events; 0 selects DefaultProgressEvery.
	ProgressEvery int

	Logger *slog.Logger
}

// Orchestrator runs the indexing pipeline.
type Orchestrator struct {
	scanner       *scanner.Scanner
	chunker       *chunk.Engine
	embedder      *registry.Handle[ports.EmbeddingProvider]
	vectors       *registry.Handle[ports.VectorStore]
	lexical       ports.LexicalIndex
	hashes        ports.FileHashStore
	vcs           ports.VCSProvider
	events        events.Publisher
	ops           *Operations
	lockDir       string
	progressEvery int
	logger        *slog.Logger
	now           func() time.Time
}

// NewOrchestrator validates deps and fills the defaults.
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	case deps.Vectors == nil:
		return nil, fmt.Errorf("%w: vector store", ErrNilDependency)
	case deps.Lexical == nil:
		return nil, fmt.Errorf("%w: lexical index", ErrNilDependency)
	case deps.Hashes == nil:
		return nil, fmt.Errorf("%w: file hash store", ErrNilDependency)
	}

	o := &Orchestrator{
		scanner:       deps.Scanner,
		chunker:       deps.Chunker,
		embedder:      deps.Embedder,
		vectors:       deps.Vectors,
		lexical:       deps.Lexical,
		hashes:        deps.Hashes,
		vcs:           deps.VCS,
		events:        deps.Events,
		ops:           deps.Operations,
		lockDir:       deps.LockDir,
		progressEvery: deps.ProgressEvery,
		logger:        deps.Logger,
		now:           time.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.scanner == nil {
		s, err := scanner.New(scanner.WithLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create scanner: %w", err)
		}
		o.scanner = s
	}
	if o.chunker == nil {
		c, err := chunk.NewDefaultEngine(chunk.WithLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create chunker: %w", err)
		}
		o.chunker = c
	}
	if o.events == nil {
		o.events = events.Nop{}
	}
	if o.ops == nil {
		o.ops = NewOperations()
	}
	if o.progressEvery <= 0 {
		o.progressEvery = DefaultProgressEvery
	}
	return o, nil
}

// Operations returns the run tracker.
func (o *Orchestrator) Operations() *Operations { return o.ops }

// run is the mutable state of one Index call.
type run struct {
	id         string
	collection string
	root       string
	opts       Options
	embedder   ports.EmbeddingProvider
	vectors    ports.VectorStore
	vcsMeta    map[string]string

	mu     sync.Mutex
	result *Result
	done   int
	total  int
}

func (r *run) fileError(path string, err error) {
	code := mcberrors.GetCode(err)
	if code == "" {
		code = mcberrors.ErrCodeInternal
	}
	r.mu.Lock()
	r.result.Errors = append(r.result.Errors, FileError{Path: path, Code: code, Message: err.Error()})
	r.mu.Unlock()
}

// abortError marks a vector store failure that stops the whole run.
type abortError struct{ err error }

func (e *abortError) Error() string { return "vector store unavailable: " + e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// Index indexes the tree at path into collection.
//
// Per-file failures are collected in Result.Errors and the run goes on. A
// vector store failure stops the run with StatusPartialFailure. On
// cancellation the partial Result is returned together with a Cancelled
// error. Only configuration, scan and lock failures return a nil Result.
func (o *Orchestrator) Index(ctx context.Context, path, collection string, opts Options) (*Result, error) {
	start := o.now()
	if err := domain.ValidateCollectionName(collection); err != nil {
		return nil, mcberrors.InvalidArgument(err.Error())
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, mcberrors.InvalidArgument("bad path: " + err.Error())
	}

	if o.lockDir != "" {
		lock := NewCollectionLock(o.lockDir, collection)
		if err := lock.Lock(ctx); err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				o.logger.Warn("index_unlock_failed", slog.String("error", err.Error()))
			}
		}()
	}

	embedder, releaseEmbedder := o.embedder.Acquire()
	defer releaseEmbedder()
	vectors, releaseVectors := o.vectors.Acquire()
	defer releaseVectors()

	r := &run{
		id:         o.ops.Start(collection, root),
		collection: collection,
		root:       root,
		opts:       opts,
		embedder:   embedder,
		vectors:    vectors,
	}
	r.result = &Result{OperationID: r.id, Collection: collection, Root: root, Errors: []FileError{}}
	finish := func(status Status) *Result {
		r.result.Status = status
		r.result.Duration = o.now().Sub(start)
		o.ops.Finish(r.id, status)
		o.events.Publish(events.IndexingCompleted{
			OperationID:    r.id,
			Collection:     collection,
			FilesProcessed: r.result.FilesProcessed,
			Chunks:         r.result.ChunksCreated,
			Errors:         len(r.result.Errors),
			Status:         string(status),
			DurationMs:     r.result.Duration.Milliseconds(),
		})
		o.logger.Info("index_complete",
			slog.String("operation_id", r.id),
			slog.String("collection", collection),
			slog.String("path", root),
			slog.String("status", string(status)),
			slog.Int("files", r.result.FilesProcessed),
			slog.Int("unchanged", r.result.FilesUnchanged),
			slog.Int("deleted", r.result.FilesDeleted),
			slog.Int("skipped", r.result.FilesSkipped),
			slog.Int("chunks", r.result.ChunksCreated),
			slog.Int("errors", len(r.result.Errors)),
			slog.Int64("duration_ms", r.result.Duration.Milliseconds()))
		return r.result
	}

	if err := r.vectors.EnsureCollection(ctx, collection, r.embedder.Dimensions()); err != nil {
		o.ops.Finish(r.id, StatusPartialFailure)
		return nil, err
	}

	o.logger.Info("index_scan_started", slog.String("path", root), slog.String("collection", collection))
	scan, err := o.scanner.Scan(ctx, opts.scanOptions(root))
	if err != nil {
		if mcberrors.IsKind(err, mcberrors.KindCancelled) {
			return finish(StatusCancelled), err
		}
		o.ops.Finish(r.id, StatusPartialFailure)
		return nil, err
	}
	r.total = len(scan.Files)
	r.result.FilesSkipped = scan.Skipped.Total()
	o.ops.SetTotal(r.id, r.total)
	r.vcsMeta = o.vcsMetadata(ctx, root)

	o.events.Publish(events.IndexingStarted{OperationID: r.id, Collection: collection, TotalFiles: r.total})
	o.logger.Info("index_started",
		slog.String("operation_id", r.id),
		slog.String("collection", collection),
		slog.Int("files", r.total),
		slog.String("embedder", r.embedder.ProviderName()),
		slog.String("vector_store", r.vectors.ProviderName()))

	abortErr := o.indexFiles(ctx, r, scan.Files)

	if ctx.Err() != nil {
		return finish(StatusCancelled), mcberrors.FromContext(ctx.Err())
	}
	if abortErr == nil {
		abortErr = o.applyDeletions(ctx, r, scan.Files)
		if ctx.Err() != nil {
			return finish(StatusCancelled), mcberrors.FromContext(ctx.Err())
		}
	}
	if abortErr == nil && r.result.FilesProcessed+r.result.FilesDeleted > 0 {
		if err := r.vectors.Flush(ctx, collection); err != nil {
			abortErr = &abortError{err: err}
		}
	}
	if abortErr != nil {
		o.logger.Error("index_aborted",
			slog.String("operation_id", r.id),
			slog.String("collection", collection),
			slog.String("error", abortErr.Error()))
		r.fileError("", abortErr)
		return finish(StatusPartialFailure), nil
	}
	if len(r.result.Errors) > 0 {
		return finish(StatusPartialFailure), nil
	}
	return finish(StatusCompleted), nil
}

// indexFiles fans files out over a bounded worker group. It returns the
// first abort error; per-file errors land in the result.
func (o *Orchestrator) indexFiles(ctx context.Context, r *run, files []scanner.File) error {
	workers := r.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			chunks, state, err := o.indexFile(gctx, r, f)
			var abort *abortError
			switch {
			case err == nil:
			case errors.As(err, &abort):
				return abort
			case gctx.Err() != nil:
				return nil
			default:
				o.logger.Warn("index_file_failed",
					slog.String("path", f.Path),
					slog.String("error", err.Error()))
				r.fileError(f.Path, err)
			}
			o.fileDone(r, f.Path, chunks, state, err == nil)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) fileDone(r *run, path string, chunks int, state fileState, ok bool) {
	r.mu.Lock()
	r.done++
	done := r.done
	if ok {
		if state == stateUnchanged {
			r.result.FilesUnchanged++
		} else {
			r.result.FilesProcessed++
			r.result.ChunksCreated += chunks
		}
	}
	r.mu.Unlock()

	o.ops.Advance(r.id, path)
	if done%o.progressEvery == 0 || done == r.total {
		o.events.Publish(events.IndexingProgress{
			OperationID: r.id,
			Collection:  r.collection,
			Processed:   done,
			Total:       r.total,
			CurrentFile: path,
		})
	}
}

// indexFile runs one file through hash, chunk, embed and write. A file
// cancelled after its vectors were written is rolled back and keeps its
// old hash.
func (o *Orchestrator) indexFile(ctx context.Context, r *run, f scanner.File) (int, fileState, error) {
	if err := ctx.Err(); err != nil {
		return 0, stateNew, mcberrors.FromContext(err)
	}
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return 0, stateNew, mcberrors.Transport("failed to read file", err)
	}
	hash, err := filehash.ComputeHash(bytes.NewReader(content))
	if err != nil {
		return 0, stateNew, err
	}
	stored, known, err := o.hashes.GetHash(ctx, r.collection, f.Path)
	if err != nil {
		return 0, stateNew, err
	}
	state := stateNew
	if known {
		state = stateChanged
		if stored == hash && !r.opts.Force {
			return 0, stateUnchanged, nil
		}
	}

	res, err := o.chunker.Chunk(ctx, f.Path, content)
	if err != nil {
		return 0, state, err
	}
	if res.InvalidUTF8 {
		o.logger.Warn("index_invalid_utf8", slog.String("path", f.Path))
		r.fileError(f.Path, mcberrors.InvalidArgument("invalid UTF-8 replaced with U+FFFD"))
	}
	chunks := o.prepareChunks(r, f.Path, res.Chunks)

	var vecs [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i := range chunks {
			texts[i] = chunks[i].Content
		}
		if vecs, err = r.embedder.EmbedBatch(ctx, texts); err != nil {
			return 0, state, err
		}
	}

	if state == stateChanged {
		if _, err := r.vectors.DeleteByFile(ctx, r.collection, f.Path); err != nil {
			return 0, state, o.storeFailure(ctx, err)
		}
		if _, err := o.lexical.DeleteByFile(ctx, r.collection, f.Path); err != nil {
			return 0, state, err
		}
	}

	if len(chunks) > 0 {
		records := make([]domain.VectorRecord, len(chunks))
		docs := make([]ports.LexicalDocument, len(chunks))
		for i := range chunks {
			records[i] = domain.VectorRecord{ID: chunks[i].ID, Vector: vecs[i], Metadata: chunks[i].VectorMetadata()}
			docs[i] = ports.LexicalDocument{ID: chunks[i].ID, Content: chunks[i].Content}
		}
		if err := r.vectors.Upsert(ctx, r.collection, records); err != nil {
			if ctx.Err() == nil && mcberrors.IsKind(err, mcberrors.KindDimensionMismatch) {
				return 0, state, err
			}
			return 0, state, o.storeFailure(ctx, err)
		}
		if err := o.lexical.Index(ctx, r.collection, docs); err != nil {
			o.rollback(ctx, r, f.Path)
			return 0, state, err
		}
	}

	if err := ctx.Err(); err != nil {
		o.rollback(ctx, r, f.Path)
		return 0, state, mcberrors.FromContext(err)
	}
	if err := o.hashes.UpsertHash(ctx, r.collection, f.Path, hash); err != nil {
		return 0, state, err
	}
	o.logger.Debug("index_file",
		slog.String("path", f.Path),
		slog.String("state", state.String()),
		slog.String("language", res.Language),
		slog.Int("chunks", len(chunks)))
	return len(chunks), state, nil
}

// prepareChunks assigns ids and run metadata. Chunks sharing a span keep
// the first.
func (o *Orchestrator) prepareChunks(r *run, path string, chunks []domain.CodeChunk) []domain.CodeChunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		c.FilePath = path
		c.ID = domain.ChunkID(r.collection, path, c.StartLine, c.EndLine)
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if len(r.vcsMeta) > 0 {
			md := make(map[string]string, len(c.Metadata)+len(r.vcsMeta))
			for k, v := range c.Metadata {
				md[k] = v
			}
			for k, v := range r.vcsMeta {
				md[k] = v
			}
			c.Metadata = md
		}
		out = append(out, c)
	}
	return out
}

// storeFailure classifies a vector store error. Cancellation passes
// through; anything else aborts the run.
func (o *Orchestrator) storeFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return mcberrors.FromContext(ctx.Err())
	}
	return &abortError{err: err}
}

// rollback removes whatever one file wrote, ignoring the caller's
// cancellation so that the cleanup itself completes.
func (o *Orchestrator) rollback(ctx context.Context, r *run, path string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := r.vectors.DeleteByFile(ctx, r.collection, path); err != nil {
		o.logger.Warn("index_rollback_failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	if _, err := o.lexical.DeleteByFile(ctx, r.collection, path); err != nil {
		o.logger.Warn("index_rollback_failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// applyDeletions tombstones files that are indexed but no longer present,
// removing their vectors and lexical documents once.
func (o *Orchestrator) applyDeletions(ctx context.Context, r *run, files []scanner.File) error {
	indexed, err := o.hashes.GetIndexedFiles(ctx, r.collection)
	if err != nil {
		r.fileError("", err)
		return nil
	}
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}
	for _, path := range indexed {
		if present[path] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := r.vectors.DeleteByFile(ctx, r.collection, path)
		if err != nil {
			return o.storeFailure(ctx, err)
		}
		if _, err := o.lexical.DeleteByFile(ctx, r.collection, path); err != nil {
			r.fileError(path, err)
			continue
		}
		if err := o.hashes.MarkDeleted(ctx, r.collection, path); err != nil {
			r.fileError(path, err)
			continue
		}
		r.result.FilesDeleted++
		o.logger.Info("index_file_deleted",
			slog.String("collection", r.collection),
			slog.String("path", path),
			slog.Int("vectors", n))
	}
	return nil
}

func (o *Orchestrator) vcsMetadata(ctx context.Context, root string) map[string]string {
	if o.vcs == nil {
		return nil
	}
	info, ok, err := o.vcs.Info(ctx, root)
	if err != nil {
		o.logger.Warn("index_vcs_failed", slog.String("path", root), slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}
	md := map[string]string{}
	if info.Branch != "" {
		md[domain.MetaBranch] = info.Branch
	}
	if info.Commit != "" {
		md[domain.MetaCommit] = info.Commit
	}
	return md
}
