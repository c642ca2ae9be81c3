package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"time"

	"github.com/Aman-CERP/mcb/internal/ports"
)

// CacheNamespace is the cache namespace holding embeddings.
const CacheNamespace = "embeddings"

// DefaultCacheTTL bounds how long a cached embedding is reused.
const DefaultCacheTTL = 24 * time.Hour

// CachedEmbedder serves repeated texts from a cache. Cache failures are
// logged and treated as misses.
type CachedEmbedder struct {
	inner  ports.EmbeddingProvider
	cache  ports.Cache
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.EmbeddingProvider = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with cache. ttl <= 0 selects DefaultCacheTTL.
func NewCachedEmbedder(inner ports.EmbeddingProvider, cache ports.Cache, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

// EmbedBatch looks up every text, embeds the misses in one call, and
// stores the new vectors.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		key := c.key(t)
		raw, ok, err := c.cache.Get(ctx, CacheNamespace, key)
		if err != nil {
			c.logger.Debug("embedding_cache_get_failed", slog.String("error", err.Error()))
		}
		if ok {
			if v, valid := decodeVector(raw); valid {
				out[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		if j >= len(vecs) {
			break
		}
		out[i] = vecs[j]
		if err := c.cache.Set(ctx, CacheNamespace, c.key(missTexts[j]), encodeVector(vecs[j]), c.ttl); err != nil {
			c.logger.Debug("embedding_cache_set_failed", slog.String("error", err.Error()))
		}
	}
	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.ProviderName()))
	h.Write([]byte{0})
	h.Write([]byte(c.inner.Model()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, true
}

// Invalidate drops every cached embedding.
func (c *CachedEmbedder) Invalidate(ctx context.Context) error {
	return c.cache.Invalidate(ctx, CacheNamespace)
}

func (c *CachedEmbedder) Dimensions() int                  { return c.inner.Dimensions() }
func (c *CachedEmbedder) ProviderName() string             { return c.inner.ProviderName() }
func (c *CachedEmbedder) Model() string                    { return c.inner.Model() }
func (c *CachedEmbedder) MaxBatchSize() int                { return c.inner.MaxBatchSize() }
func (c *CachedEmbedder) MaxTokens() int                   { return maxTokens(c.inner) }
func (c *CachedEmbedder) Health(ctx context.Context) error { return c.inner.Health(ctx) }
func (c *CachedEmbedder) Close() error                     { return c.inner.Close() }
