package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/config"
	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/embed"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/events"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/logging"
	"github.com/Aman-CERP/mcb/internal/registry"
	"github.com/Aman-CERP/mcb/internal/scanner"
	"github.com/Aman-CERP/mcb/internal/search"
	"github.com/Aman-CERP/mcb/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("MCB_HOME", t.TempDir())
	cfg := config.NewConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "mcb.db")
	cfg.Embedding.Provider = embed.ProviderStatic
	cfg.VectorStore.Provider = store.ProviderMemory
	cfg.VectorStore.Collection = "code"
	cfg.Indexing.Workers = 2
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, WithLogger(logging.Discard()), WithStateDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

var fixture = map[string]string{
	"auth/middleware.go": `package auth

// Middleware rejects requests without a bearer token.
func Middleware(next Handler) Handler {
	return func(r *Request) error {
		if r.Token == "" {
			return ErrUnauthorized
		}
		return next(r)
	}
}
`,
	"retry/retry.py": `class Retry:
    def __init__(self, attempts):
        self.attempts = attempts

    def run(self, fn):
        for _ in range(self.attempts):
            try:
                return fn()
            except Exception:
                pass
`,
	"notes.txt": "release checklist\nbump version\ntag the commit\n",
}

func TestNew_UnknownVectorStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Provider = "nonexistent"

	_, err := New(context.Background(), cfg, WithLogger(logging.Discard()), WithStateDir(t.TempDir()))

	require.Error(t, err)
	assert.Equal(t, mcberrors.KindConfiguration, mcberrors.KindOf(err))
	e, ok := mcberrors.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Available, store.ProviderMemory)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.BM25Weight = 0.9

	_, err := New(context.Background(), cfg, WithLogger(logging.Discard()))

	assert.Equal(t, mcberrors.KindConfiguration, mcberrors.KindOf(err))
}

func TestIndexOptions_ExtendDefaultExcludes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Indexing.Exclude = []string{"generated/"}
	a := newTestApp(t, cfg)

	opts := a.IndexOptions()

	assert.Subset(t, opts.Exclude, scanner.DefaultExcludes)
	assert.Contains(t, opts.Exclude, "generated/")
	assert.Equal(t, 2, opts.Workers)
	assert.True(t, opts.RespectGitignore)
}

func TestApp_IndexAndSearch(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	root := writeTree(t, fixture)
	ctx := context.Background()

	// Given an indexed tree
	res, err := a.Index(ctx, root, "", a.IndexOptions())
	require.NoError(t, err)
	assert.Equal(t, "code", res.Collection)
	assert.Equal(t, index.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.FilesProcessed)
	assert.GreaterOrEqual(t, res.ChunksCreated, 3)
	assert.Empty(t, res.Errors)

	// When searching the default collection
	results, err := a.Search(ctx, search.Request{Query: "bearer token middleware", Limit: 5})

	// Then the middleware chunk ranks first
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "auth/middleware.go", results[0].FilePath)

	// And a second run over the unchanged tree creates nothing
	again, err := a.Index(ctx, root, "", a.IndexOptions())
	require.NoError(t, err)
	assert.Zero(t, again.ChunksCreated)
	assert.Equal(t, 3, again.FilesUnchanged)

	st, err := a.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Files)
	assert.Equal(t, res.ChunksCreated, st.Vectors)
	assert.Equal(t, res.ChunksCreated, st.Documents)
	assert.False(t, st.Indexing)

	ops := a.Status("code")
	require.Len(t, ops, 2)
	assert.Equal(t, index.StatusCompleted, ops[1].Status)
}

func TestApp_IndexRequiresPath(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	_, err := a.Index(context.Background(), " ", "", a.IndexOptions())

	assert.Equal(t, mcberrors.KindInvalidArgument, mcberrors.KindOf(err))
}

func TestApp_TombstonesAndClear(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	root := writeTree(t, fixture)
	ctx := context.Background()
	_, err := a.Index(ctx, root, "", a.IndexOptions())
	require.NoError(t, err)

	// Given a file removed from disk and a re-index
	require.NoError(t, os.Remove(filepath.Join(root, "notes.txt")))
	res, err := a.Index(ctx, root, "", a.IndexOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesDeleted)

	// Then it is tombstoned, and kept within the TTL
	n, err := a.TombstoneCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	purged, err := a.CleanupTombstones(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)

	// When the collection is cleared
	require.NoError(t, a.ClearCollection(ctx, ""))

	// Then nothing is left
	st, err := a.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, CollectionStats{Collection: "code"}, st)
}

func TestApp_CheckAndRepair(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	root := writeTree(t, fixture)
	ctx := context.Background()
	_, err := a.Index(ctx, root, "", a.IndexOptions())
	require.NoError(t, err)

	check, err := a.Check(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, check.Inconsistencies)

	// Given vectors removed behind the index's back
	_, err = a.vectors.Load().DeleteByFile(ctx, "code", "notes.txt")
	require.NoError(t, err)

	fixed, err := a.Repair(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
}

func TestApp_Memory(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	id, created, err := a.StoreObservation(ctx, &domain.Observation{Content: "The quick brown fox", Tags: []string{"animals"}})
	require.NoError(t, err)
	assert.True(t, created)

	// Identical content is stored once
	again, created, err := a.StoreObservation(ctx, &domain.Observation{Content: "The quick brown fox"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	_, _, err = a.StoreObservation(ctx, &domain.Observation{Content: "lazy dog"})
	require.NoError(t, err)

	hits, err := a.SearchMemories(ctx, "fox", domain.MemoryFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].Observation.ID)

	timeline, err := a.GetTimeline(ctx, id, 5, 5, domain.MemoryFilter{})
	require.NoError(t, err)
	assert.Len(t, timeline, 2)

	_, err = a.GetTimeline(ctx, "", 1, 1, domain.MemoryFilter{})
	assert.Equal(t, mcberrors.KindInvalidArgument, mcberrors.KindOf(err))

	require.NoError(t, a.DeleteObservation(ctx, id))
	hits, err = a.SearchMemories(ctx, "fox", domain.MemoryFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestApp_SessionSummary(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	require.NoError(t, a.StoreSessionSummary(ctx, &domain.SessionSummary{
		SessionID: "s-1",
		Topics:    []string{"indexing"},
		NextSteps: []string{"add qdrant"},
	}))

	got, err := a.GetSessionSummary(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"indexing"}, got.Topics)
}

// collect reads the subscription until it is closed.
func collect(sub *events.Subscription) []events.Event {
	var out []events.Event
	for ev := range sub.C() {
		out = append(out, ev)
	}
	return out
}

func TestApp_LifecycleEvents(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	sub := a.Events().Subscribe()

	// When the app starts and closes
	a.Start(context.Background())
	a.Start(context.Background())
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	// Then each lifecycle state is announced once, in order
	var states []events.ServiceState
	for _, ev := range collect(sub) {
		if sc, ok := ev.(events.ServiceStateChanged); ok {
			assert.Equal(t, ServiceName, sc.Service)
			states = append(states, sc.State)
		}
	}
	assert.Equal(t, []events.ServiceState{
		events.ServiceStarting, events.ServiceRunning, events.ServiceStopping, events.ServiceStopped,
	}, states)
}

func TestApp_SwitchEmbedding(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, a.cache.Set(ctx, embed.CacheNamespace, "k", []byte("v"), time.Hour))
	sub := a.Events().Subscribe()

	// When the embedding provider is switched
	err := a.SwitchEmbedding(ctx, registry.NewConfig(embed.ProviderNull, "dimensions", 16))

	// Then the new provider serves requests
	require.NoError(t, err)
	assert.Equal(t, embed.ProviderNull, a.embedder.Load().ProviderName())
	assert.Equal(t, 16, a.embedder.Load().Dimensions())

	// And the embedding cache is dropped
	_, ok, err := a.cache.Get(ctx, embed.CacheNamespace, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// And the change is announced
	sub.Close()
	evs := collect(sub)
	assert.Contains(t, evs, events.CacheInvalidate{Namespace: embed.CacheNamespace})
	assert.Contains(t, evs, events.ConfigReloaded{Section: "embedding", Provider: embed.ProviderNull})
}

func TestApp_SwitchUnknownProviderKeepsCurrent(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	err := a.SwitchEmbedding(context.Background(), registry.NewConfig("nonexistent"))

	assert.Equal(t, mcberrors.KindConfiguration, mcberrors.KindOf(err))
	assert.Equal(t, embed.ProviderStatic, a.embedder.Load().ProviderName())
}

func TestApp_SwitchVectorStore(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	sub := a.Events().Subscribe()

	require.NoError(t, a.SwitchVectorStore(context.Background(), registry.NewConfig(store.ProviderNull)))

	assert.Equal(t, store.ProviderNull, a.vectors.Load().ProviderName())
	sub.Close()
	assert.Contains(t, collect(sub), events.ConfigReloaded{Section: "vector_store", Provider: store.ProviderNull})
}

func TestApp_Health(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	sub := a.Events().Subscribe()

	report := a.Health(context.Background())

	assert.True(t, report.Healthy)
	require.Len(t, report.Statuses, 3)
	components := make([]string, 0, 3)
	for _, st := range report.Statuses {
		components = append(components, st.Component)
		assert.True(t, st.Healthy, st.Component)
		assert.Empty(t, st.Error)
	}
	assert.Equal(t, []string{"embedding", "vector_store", "database"}, components)

	sub.Close()
	var published bool
	for _, ev := range collect(sub) {
		if _, ok := ev.(events.HealthCheckCompleted); ok {
			published = true
		}
	}
	assert.True(t, published)
}

func TestApp_TelemetryFollowsEvents(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	root := writeTree(t, fixture)
	ctx := context.Background()
	a.Start(ctx)

	_, err := a.Index(ctx, root, "", a.IndexOptions())
	require.NoError(t, err)
	_, err = a.Search(ctx, search.Request{Query: "retry attempts"})
	require.NoError(t, err)

	// Close drains the subscribers before returning.
	require.NoError(t, a.Close())
	snap := a.Telemetry()
	assert.Equal(t, int64(1), snap.Indexing["code"].Runs)
	assert.Equal(t, int64(3), snap.Indexing["code"].FilesProcessed)
	assert.Equal(t, events.ServiceStopped, snap.Services[ServiceName])
}

func TestApp_Providers(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	kinds := a.Providers()

	byKind := map[registry.Kind]ProviderKind{}
	for _, k := range kinds {
		byKind[k.Kind] = k
	}
	assert.Equal(t, embed.ProviderStatic, byKind[registry.KindEmbedding].Active)
	assert.Equal(t, store.ProviderMemory, byKind[registry.KindVectorStore].Active)
	var names []string
	for _, info := range byKind[registry.KindVectorStore].Available {
		names = append(names, info.Name)
	}
	assert.Subset(t, names, []string{store.ProviderMemory, store.ProviderHNSW, store.ProviderQdrant, store.ProviderNull})
}

func TestApp_Watch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Indexing.WatchDebounce = "50ms"
	a := newTestApp(t, cfg)
	root := writeTree(t, fixture)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *index.Result, 8)
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, root, "", WatchOptions{
			OnResult: func(r *index.Result, err error) {
				if err == nil {
					results <- r
				}
			},
		})
	}()

	// Given the initial run
	select {
	case r := <-results:
		assert.Equal(t, 3, r.FilesProcessed)
	case <-time.After(10 * time.Second):
		t.Fatal("initial index did not finish")
	}

	// When a file is added, it is indexed incrementally
	deadline := time.After(10 * time.Second)
	content := "package auth\n\n// Logout clears the session token.\nfunc Logout() {}\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "auth", "logout.go"), []byte(content), 0o644))
	for found := false; !found; {
		select {
		case r := <-results:
			found = r.FilesProcessed == 1
		case <-deadline:
			t.Fatal("change was not re-indexed")
		}
	}

	results2, err := a.Search(context.Background(), search.Request{Query: "Logout session", Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results2)
	assert.True(t, strings.HasSuffix(results2[0].FilePath, "logout.go"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
