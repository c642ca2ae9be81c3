package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
)

// scriptedProvider returns queued errors before succeeding and records
// every batch it sees.
type scriptedProvider struct {
	dims     int
	maxBatch int
	errs     []error

	mu      sync.Mutex
	calls   int
	batches [][]string
}

func (p *scriptedProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	p.batches = append(p.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, p.dims)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func (p *scriptedProvider) Dimensions() int              { return p.dims }
func (p *scriptedProvider) ProviderName() string         { return "scripted" }
func (p *scriptedProvider) Model() string                { return "scripted-v1" }
func (p *scriptedProvider) MaxBatchSize() int            { return p.maxBatch }
func (p *scriptedProvider) Health(context.Context) error { return nil }
func (p *scriptedProvider) Close() error                 { return nil }

func fastBatcher(p ports.EmbeddingProvider, batch int) *Batcher {
	return NewBatcher(p, BatcherConfig{
		BatchSize:    batch,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	})
}

func TestBatcher_SplitsAndPreservesOrder(t *testing.T) {
	// Given: a provider that accepts at most 2 texts per call
	p := &scriptedProvider{dims: 4, maxBatch: 2}
	b := fastBatcher(p, 32)

	// When: five texts are embedded
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := b.EmbedBatch(context.Background(), texts)

	// Then: three calls are made and vectors come back in input order
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, 2, b.EffectiveBatchSize())
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, p.batches)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
}

// tokenLimitedProvider adds a provider-side token budget.
type tokenLimitedProvider struct {
	scriptedProvider
	maxTokens int
}

func (p *tokenLimitedProvider) MaxTokens() int { return p.maxTokens }

func TestBatcher_SplitsOnTokenBudget(t *testing.T) {
	// Given: a provider allowing 32 texts but only 100 tokens per call
	p := &tokenLimitedProvider{scriptedProvider: scriptedProvider{dims: 4, maxBatch: 32}, maxTokens: 100}
	b := fastBatcher(p, 32)
	large := strings.Repeat("x", 240) // 60 tokens
	small := "tiny"                   // 1 token

	// When: texts well under the item limit but over the token budget are
	// embedded
	texts := []string{large, small, large, large, small, small}
	vecs, err := b.EmbedBatch(context.Background(), texts)

	// Then: sub-batches respect the budget and order is preserved
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	assert.Equal(t, 100, b.MaxTokens())
	assert.Equal(t, [][]string{{large, small}, {large}, {large, small, small}}, p.batches)
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
}

func TestBatcher_OversizedTextTravelsAlone(t *testing.T) {
	// Given: a configured budget smaller than one text
	p := &scriptedProvider{dims: 4}
	b := NewBatcher(p, BatcherConfig{BatchSize: 8, MaxTokens: 10})
	huge := strings.Repeat("y", 400)

	// When: it is embedded between two small texts
	_, err := b.EmbedBatch(context.Background(), []string{"a", huge, "b"})

	// Then: the oversized text is sent on its own
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {huge}, {"b"}}, p.batches)
}

func TestBatcher_MaxTokensTakesSmallerLimit(t *testing.T) {
	p := &tokenLimitedProvider{scriptedProvider: scriptedProvider{dims: 4}, maxTokens: 500}

	assert.Equal(t, 500, NewBatcher(p, BatcherConfig{}).MaxTokens())
	assert.Equal(t, 200, NewBatcher(p, BatcherConfig{MaxTokens: 200}).MaxTokens())
	assert.Equal(t, 500, NewBatcher(p, BatcherConfig{MaxTokens: 900}).MaxTokens())
	assert.Equal(t, 0, NewBatcher(&scriptedProvider{dims: 4}, BatcherConfig{}).MaxTokens())

	c := NewCachedEmbedder(NewBatcher(p, BatcherConfig{MaxTokens: 200}), &mapCache{data: map[string][]byte{}}, 0, nil)
	assert.Equal(t, 200, c.MaxTokens())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 2, EstimateTokens("ééééé"))
}

func TestBatcher_RetriesTransientFailures(t *testing.T) {
	// Given: a provider failing twice with retryable errors
	p := &scriptedProvider{dims: 4, errs: []error{
		mcberrors.Transport("503", nil),
		mcberrors.New(mcberrors.ErrCodeTimeout, "slow", nil),
	}}
	b := fastBatcher(p, 8)

	// When: embedding
	vecs, err := b.EmbedBatch(context.Background(), []string{"x"})

	// Then: the third attempt succeeds
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, p.calls)
}

func TestBatcher_PermanentFailureIsAtomic(t *testing.T) {
	// Given: the second sub-batch hits a non-retryable error
	p := &scriptedProvider{dims: 4, maxBatch: 1}
	failing := &failOnNth{scriptedProvider: p, n: 2, err: mcberrors.Unauthorized("bad key", nil)}
	b := fastBatcher(failing, 1)

	// When: three texts are embedded
	vecs, err := b.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	// Then: no partial result, the terminal error surfaces, no retry happened
	require.Error(t, err)
	assert.Nil(t, vecs)
	assert.Equal(t, mcberrors.KindUnauthorized, mcberrors.KindOf(err))
	assert.Equal(t, int32(2), failing.seen.Load())
}

type failOnNth struct {
	*scriptedProvider
	n    int32
	err  error
	seen atomic.Int32
}

func (f *failOnNth) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.seen.Add(1) == f.n {
		return nil, f.err
	}
	return f.scriptedProvider.EmbedBatch(ctx, texts)
}

func TestBatcher_ExhaustedRetriesKeepKind(t *testing.T) {
	// Given: a provider that always times out
	p := &scriptedProvider{dims: 4, errs: []error{
		mcberrors.Transport("down", nil), mcberrors.Transport("down", nil), mcberrors.Transport("down", nil),
	}}
	b := fastBatcher(p, 8)

	// When: embedding
	_, err := b.EmbedBatch(context.Background(), []string{"x"})

	// Then: the final error is still Transport after max_attempts calls
	require.Error(t, err)
	assert.Equal(t, mcberrors.KindTransport, mcberrors.KindOf(err))
	assert.Equal(t, 3, p.calls)
}

type wrongDims struct{ scriptedProvider }

func (w *wrongDims) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 768)
	}
	return out, nil
}

func TestBatcher_DimensionValidation(t *testing.T) {
	// Given: a provider declaring 384 dims but returning 768
	b := fastBatcher(&wrongDims{scriptedProvider{dims: 384}}, 8)

	// When: embedding
	_, err := b.EmbedBatch(context.Background(), []string{"x"})

	// Then: DimensionMismatch
	require.Error(t, err)
	assert.Equal(t, mcberrors.KindDimensionMismatch, mcberrors.KindOf(err))
	assert.NoError(t, ValidateDimensions([][]float32{{1, 2}}, 2))
}

func TestBatcher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := fastBatcher(&scriptedProvider{dims: 2}, 8)

	_, err := b.EmbedBatch(ctx, []string{"x"})

	require.Error(t, err)
	assert.Equal(t, mcberrors.KindCancelled, mcberrors.KindOf(err))
}

func TestBatcher_RateLimited(t *testing.T) {
	// Given: 1000 requests per second with burst 1
	p := &scriptedProvider{dims: 2, maxBatch: 1}
	b := NewBatcher(p, BatcherConfig{BatchSize: 1, RequestsPerSecond: 1000, Burst: 1})

	// When: three single-item calls are paced
	vecs, err := b.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	// Then: all succeed
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, 3, p.calls)
}

func TestStaticEmbedder(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	t.Run("deterministic and normalized", func(t *testing.T) {
		a, err := e.EmbedBatch(ctx, []string{"func parseHTTPRequest(r *Request)"})
		require.NoError(t, err)
		b, err := e.EmbedBatch(ctx, []string{"func parseHTTPRequest(r *Request)"})
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a[0], StaticDimensions)
		assert.InDelta(t, 1.0, domain.CosineSimilarity(a[0], a[0]), 1e-5)
	})

	t.Run("similar identifiers score higher", func(t *testing.T) {
		vecs, err := e.EmbedBatch(ctx, []string{"user_account_id", "userAccountID", "render pixel shader"})
		require.NoError(t, err)
		assert.Greater(t, domain.CosineSimilarity(vecs[0], vecs[1]), domain.CosineSimilarity(vecs[0], vecs[2]))
	})

	t.Run("blank text is a zero vector", func(t *testing.T) {
		vecs, err := e.EmbedBatch(ctx, []string{"   "})
		require.NoError(t, err)
		for _, x := range vecs[0] {
			assert.Zero(t, x)
		}
	})

	t.Run("closed", func(t *testing.T) {
		closed := NewStaticEmbedder(16)
		require.NoError(t, closed.Close())
		_, err := closed.EmbedBatch(ctx, []string{"x"})
		assert.Error(t, err)
		assert.Error(t, closed.Health(ctx))
	})
}

func TestSplitCamel(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"userID", []string{"user", "ID"}},
		{"simple", []string{"simple"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitCamel(tt.in))
		})
	}
}

func TestNullEmbedder(t *testing.T) {
	e := NewNullEmbedder(768)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[1], 768)
	assert.Equal(t, DefaultNullDimensions, NewNullEmbedder(0).Dimensions())
}

func TestOllamaEmbedder(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/embed":
			if s := int(status.Load()); s != http.StatusOK {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(s)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
				return
			}
			var req ollamaEmbedRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			resp := ollamaEmbedResponse{Model: req.Model}
			for range req.Input {
				resp.Embeddings = append(resp.Embeddings, []float64{0.1, 0.2, 0.3})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL + "/", Model: "test-model"})
	ctx := context.Background()

	t.Run("embeds and detects dimensions", func(t *testing.T) {
		assert.Equal(t, 0, e.Dimensions())
		vecs, err := e.EmbedBatch(ctx, []string{"a", "b"})
		require.NoError(t, err)
		assert.Len(t, vecs, 2)
		assert.Equal(t, 3, e.Dimensions())
		assert.Equal(t, "test-model", e.Model())
		assert.NoError(t, e.Health(ctx))
	})

	t.Run("status classification", func(t *testing.T) {
		tests := []struct {
			status    int
			kind      mcberrors.Kind
			retryable bool
		}{
			{http.StatusTooManyRequests, mcberrors.KindRateLimited, true},
			{http.StatusServiceUnavailable, mcberrors.KindTransport, true},
			{http.StatusUnauthorized, mcberrors.KindUnauthorized, false},
			{http.StatusBadRequest, mcberrors.KindInvalidArgument, false},
		}
		for _, tt := range tests {
			status.Store(int32(tt.status))
			_, err := e.EmbedBatch(ctx, []string{"x"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, mcberrors.KindOf(err), "status %d", tt.status)
			assert.Equal(t, tt.retryable, mcberrors.IsRetryable(err), "status %d", tt.status)
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, 7*time.Second, mcberrors.RetryAfterOf(err))
			}
		}
		status.Store(http.StatusOK)
	})

	t.Run("unreachable host is transport", func(t *testing.T) {
		dead := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1", Timeout: time.Second})
		_, err := dead.EmbedBatch(ctx, []string{"x"})
		require.Error(t, err)
		assert.Equal(t, mcberrors.KindTransport, mcberrors.KindOf(err))
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, e.Close())
		_, err := e.EmbedBatch(ctx, []string{"x"})
		assert.Error(t, err)
	})
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		// Reverse order to check the index sort.
		for i := range req.Input {
			data[len(req.Input)-1-i] = item{Object: "embedding", Embedding: []float32{float32(i), 1}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	}))
	defer srv.Close()
	ctx := context.Background()

	t.Run("requires api key", func(t *testing.T) {
		_, err := NewOpenAIEmbedder(OpenAIConfig{})
		require.Error(t, err)
		assert.Equal(t, mcberrors.KindConfiguration, mcberrors.KindOf(err))
	})

	t.Run("embeds in input order", func(t *testing.T) {
		e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "good", BaseURL: srv.URL, Model: "custom"})
		require.NoError(t, err)
		vecs, err := e.EmbedBatch(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		assert.Equal(t, float32(0), vecs[0][0])
		assert.Equal(t, float32(2), vecs[2][0])
		assert.Equal(t, 2, e.Dimensions())
	})

	t.Run("bad key is unauthorized", func(t *testing.T) {
		e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL})
		require.NoError(t, err)
		assert.Equal(t, 1536, e.Dimensions())
		_, err = e.EmbedBatch(ctx, []string{"a"})
		require.Error(t, err)
		assert.Equal(t, mcberrors.KindUnauthorized, mcberrors.KindOf(err))
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("soon", now))
}

// mapCache is a minimal ports.Cache.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func (c *mapCache) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[ns+"/"+key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, ns, key string, v []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[ns+"/"+key] = v
	return nil
}

func (c *mapCache) Invalidate(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = map[string][]byte{}
	return nil
}

func (c *mapCache) ProviderName() string { return "map" }
func (c *mapCache) Close() error         { return nil }

func TestCachedEmbedder(t *testing.T) {
	// Given: a cached provider
	p := &scriptedProvider{dims: 3}
	c := NewCachedEmbedder(p, &mapCache{data: map[string][]byte{}}, 0, nil)
	ctx := context.Background()

	// When: the same texts are embedded twice, plus one new text
	first, err := c.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	second, err := c.EmbedBatch(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)

	// Then: only the miss reaches the provider and order is preserved
	assert.Equal(t, [][]string{{"alpha", "beta"}, {"gamma"}}, p.batches)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	// And: invalidation forces a fresh call
	require.NoError(t, c.Invalidate(ctx))
	_, err = c.EmbedBatch(ctx, []string{"alpha"})
	require.NoError(t, err)
	assert.Len(t, p.batches, 3)
}

func TestRegisteredEmbeddingProviders(t *testing.T) {
	names := registry.Default().Names(registry.KindEmbedding)
	for _, want := range []string{ProviderNull, ProviderOllama, ProviderOpenAI, ProviderStatic} {
		assert.Contains(t, names, want)
	}

	p, err := registry.ResolveAs[ports.EmbeddingProvider](registry.Default(), registry.KindEmbedding,
		registry.NewConfig("null", "dimensions", 768))
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimensions())

	_, err = registry.ResolveAs[ports.EmbeddingProvider](registry.Default(), registry.KindEmbedding,
		registry.NewConfig("openai"))
	if err != nil {
		assert.Equal(t, mcberrors.KindConfiguration, mcberrors.KindOf(err))
	}
}
