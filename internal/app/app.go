// Package app is the composition root. It turns a configuration record into
// resolved providers and the typed services the CLI and the MCP adapter
// call: index, search, memory, tombstone maintenance, provider switching and
// health.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	_ "github.com/Aman-CERP/mcb/internal/cache" // cache providers
	"github.com/Aman-CERP/mcb/internal/chunk"
	"github.com/Aman-CERP/mcb/internal/config"
	"github.com/Aman-CERP/mcb/internal/database"
	"github.com/Aman-CERP/mcb/internal/embed"
	"github.com/Aman-CERP/mcb/internal/events"
	"github.com/Aman-CERP/mcb/internal/filehash"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/memory"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
	"github.com/Aman-CERP/mcb/internal/scanner"
	"github.com/Aman-CERP/mcb/internal/search"
	"github.com/Aman-CERP/mcb/internal/store"
	"github.com/Aman-CERP/mcb/internal/telemetry"
	"github.com/Aman-CERP/mcb/internal/vcs"
)

// ServiceName is the name used in ServiceStateChanged events.
const ServiceName = "mcb"

// Option configures New.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	registry *registry.Registry
	stateDir string
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry resolves providers from r instead of the process registry.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithStateDir places locks and provider data under dir instead of the
// mcb home directory.
func WithStateDir(dir string) Option {
	return func(o *options) {
		o.stateDir = dir
	}
}

// App holds the wired components.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.Registry
	stateDir string

	bus      *events.Bus
	db       *database.DB
	cache    ports.Cache
	embedder *registry.Handle[ports.EmbeddingProvider]
	vectors  *registry.Handle[ports.VectorStore]
	lexical  ports.LexicalIndex
	hashes   *filehash.Store
	memory   *memory.Store
	vcs      ports.VCSProvider
	detector ports.ProjectDetector
	scanner  *scanner.Scanner
	indexer  *index.Orchestrator
	search   *search.Engine
	metrics  *telemetry.Collector

	switchMu sync.Mutex
	// retiring counts swapped-out providers not yet closed.
	retiring sync.WaitGroup

	runMu   sync.Mutex
	cancel  context.CancelFunc
	subs    []*events.Subscription
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// New resolves every provider named by cfg and wires the services. An
// unknown provider name fails with a Configuration error listing the
// registered names. Background work starts with Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (a *App, err error) {
	o := options{logger: slog.Default(), registry: registry.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o.stateDir == "" {
		o.stateDir = config.HomeDir()
	}

	a = &App{
		cfg:      cfg,
		logger:   o.logger,
		registry: o.registry,
		stateDir: o.stateDir,
		bus:      events.NewBus(events.WithCapacity(cfg.Events.Capacity), events.WithLogger(o.logger)),
	}
	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	if a.cache, err = registry.ResolveAs[ports.Cache](a.registry, registry.KindCache, cfg.Cache.Registry()); err != nil {
		return nil, err
	}
	emb, err := a.resolveEmbedding(cfg.Embedding.Registry())
	if err != nil {
		return nil, err
	}
	a.embedder = registry.NewHandle(emb)

	vs, err := a.resolveVectorStore(cfg.VectorStore.Registry())
	if err != nil {
		return nil, err
	}
	a.vectors = registry.NewHandle(vs)

	if a.vcs, err = registry.ResolveAs[ports.VCSProvider](a.registry, registry.KindVCS, registry.NewConfig(vcs.ProviderGit)); err != nil {
		return nil, err
	}
	if a.detector, err = registry.ResolveAs[ports.ProjectDetector](a.registry, registry.KindProjectDetector, registry.NewConfig(vcs.ProviderMarker)); err != nil {
		return nil, err
	}

	if a.db, err = database.Open(ctx, database.DefaultConfig(cfg.Database.Path), database.WithLogger(a.logger)); err != nil {
		return nil, err
	}

	bm25 := store.DefaultBM25Config()
	bm25.K1, bm25.B = cfg.Search.K1, cfg.Search.B
	if a.lexical, err = store.NewLexicalIndex(cfg.Search.LexicalBackend, store.LexicalOptions{
		Config: bm25,
		DB:     a.db,
		Dir:    filepath.Join(a.stateDir, "bleve"),
		Logger: a.logger,
	}); err != nil {
		return nil, err
	}

	a.hashes = filehash.New(a.db, filehash.WithLogger(a.logger))
	a.memory = memory.New(a.db, memory.WithLogger(a.logger))

	if a.scanner, err = scanner.New(scanner.WithLogger(a.logger)); err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	chunker, err := chunk.NewRegistryEngine(a.registry, registry.Config{}, chunk.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}
	if a.indexer, err = index.NewOrchestrator(index.Dependencies{
		Scanner:       a.scanner,
		Chunker:       chunker,
		Embedder:      a.embedder,
		Vectors:       a.vectors,
		Lexical:       a.lexical,
		Hashes:        a.hashes,
		VCS:           a.vcs,
		Events:        a.bus,
		LockDir:       filepath.Join(a.stateDir, "locks"),
		ProgressEvery: cfg.Indexing.ProgressEvery,
		Logger:        a.logger,
	}); err != nil {
		return nil, err
	}

	if a.search, err = search.NewEngine(a.lexical, a.vectors, a.embedder,
		search.WithConfig(search.Config{
			Weights:             search.Weights{BM25: cfg.Search.BM25Weight, Vector: cfg.Search.VectorWeight},
			CandidateMultiplier: cfg.Search.CandidateMultiplier,
			Fusion:              search.FusionMethod(cfg.Search.Fusion),
			RRFConstant:         cfg.Search.RRFConstant,
			DefaultLimit:        min(search.DefaultLimit, cfg.Search.MaxResults),
			MaxLimit:            cfg.Search.MaxResults,
		}),
		search.WithEvents(a.bus),
		search.WithLogger(a.logger)); err != nil {
		return nil, err
	}

	a.metrics = telemetry.NewCollector(telemetry.WithLogger(a.logger))

	a.logger.Info("app_initialized",
		slog.String("embedding", emb.ProviderName()),
		slog.String("vector_store", vs.ProviderName()),
		slog.String("cache", a.cache.ProviderName()),
		slog.String("lexical", cfg.Search.LexicalBackend),
		slog.String("database", a.db.Path()))
	return a, nil
}

// resolveEmbedding builds the embedding stack: provider, then retry and
// pacing, then the cache.
func (a *App) resolveEmbedding(rc registry.Config) (ports.EmbeddingProvider, error) {
	raw, err := registry.ResolveAs[ports.EmbeddingProvider](a.registry, registry.KindEmbedding, rc)
	if err != nil {
		return nil, err
	}
	remote := rc.Provider == embed.ProviderOllama || rc.Provider == embed.ProviderOpenAI
	bcfg := embed.DefaultBatcherConfig()
	bcfg.BatchSize = a.cfg.Embedding.BatchSize
	bcfg.MaxTokens = a.cfg.Embedding.MaxTokens
	bcfg.MaxAttempts = a.cfg.Embedding.MaxAttempts
	bcfg.RequestsPerSecond = a.cfg.Embedding.RequestsPerSecond
	bcfg.CircuitBreaker = remote
	batched := embed.NewBatcher(raw, bcfg, embed.WithBatcherLogger(a.logger))
	return embed.NewCachedEmbedder(batched, a.cache, a.cfg.Cache.TTLDuration(), a.logger), nil
}

// resolveVectorStore resolves rc, placing on-disk providers under the state
// directory when no path is configured.
func (a *App) resolveVectorStore(rc registry.Config) (ports.VectorStore, error) {
	if rc.Provider == store.ProviderHNSW && rc.String("path", "") == "" {
		rc = rc.With("path", filepath.Join(a.stateDir, "vectors"))
	}
	return registry.ResolveAs[ports.VectorStore](a.registry, registry.KindVectorStore, rc)
}

// Start launches the background subscribers and announces the service.
// It is a no-op on a started app.
func (a *App) Start(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true
	a.bus.Publish(events.ServiceStateChanged{Service: ServiceName, State: events.ServiceStarting})

	ctx, a.cancel = context.WithCancel(ctx)
	metricsSub := a.bus.Subscribe()
	cacheSub := a.bus.Subscribe()
	a.subs = []*events.Subscription{metricsSub, cacheSub}
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.metrics.Consume(ctx, metricsSub)
	}()
	go func() {
		defer a.wg.Done()
		a.invalidateOnEvent(ctx, cacheSub)
	}()

	a.bus.Publish(events.ServiceStateChanged{Service: ServiceName, State: events.ServiceRunning})
	a.logger.Info("app_started")
}

// invalidateOnEvent clears cache namespaces named by CacheInvalidate events.
func (a *App) invalidateOnEvent(ctx context.Context, sub *events.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			inv, isInv := ev.(events.CacheInvalidate)
			if !isInv {
				continue
			}
			if err := a.cache.Invalidate(ctx, inv.Namespace); err != nil {
				a.logger.Warn("cache_invalidate_failed",
					slog.String("namespace", inv.Namespace),
					slog.String("error", err.Error()))
				continue
			}
			a.logger.Debug("cache_invalidated", slog.String("namespace", inv.Namespace))
		}
	}
}

// Close stops background work and releases every provider. It is safe to
// call more than once.
func (a *App) Close() error {
	a.runMu.Lock()
	if a.closed {
		a.runMu.Unlock()
		return nil
	}
	a.closed = true
	started := a.started
	a.runMu.Unlock()

	if started {
		a.bus.Publish(events.ServiceStateChanged{Service: ServiceName, State: events.ServiceStopping})
		a.bus.Publish(events.ServiceStateChanged{Service: ServiceName, State: events.ServiceStopped})
		// Closing the subscriptions lets the subscribers drain what is
		// buffered before they return.
		for _, sub := range a.subs {
			sub.Close()
		}
		a.wg.Wait()
		a.cancel()
	}
	a.retiring.Wait()
	err := a.closeResources()
	a.logger.Info("app_closed")
	return err
}

func (a *App) closeResources() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if a.vectors != nil {
		keep(a.vectors.Load().Close())
	}
	if a.embedder != nil {
		keep(a.embedder.Load().Close())
	}
	if a.lexical != nil {
		keep(a.lexical.Close())
	}
	if a.cache != nil {
		keep(a.cache.Close())
	}
	if a.db != nil {
		keep(a.db.Close())
	}
	a.bus.Close()
	return first
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Events returns the domain event bus.
func (a *App) Events() *events.Bus { return a.bus }

// Logger returns the app logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Telemetry returns the aggregated statistics collected since Start.
func (a *App) Telemetry() telemetry.Snapshot { return a.metrics.Snapshot() }

// Operations returns the indexing operation tracker.
func (a *App) Operations() *index.Operations { return a.indexer.Operations() }

// DefaultCollection is the collection used when a caller names none.
func (a *App) DefaultCollection() string { return a.cfg.VectorStore.Collection }

// StateDir is the directory holding the lexical index, vectors and locks.
func (a *App) StateDir() string { return a.stateDir }

func (a *App) collection(name string) string {
	if name == "" {
		return a.cfg.VectorStore.Collection
	}
	return name
}
