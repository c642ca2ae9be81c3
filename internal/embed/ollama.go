package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

const (
	// DefaultOllamaHost is the local Ollama endpoint.
	DefaultOllamaHost = "http://localhost:11434"
	// DefaultOllamaModel is a code-capable embedding model.
	DefaultOllamaModel = "nomic-embed-text"
	// OllamaPoolSize bounds idle connections to the server.
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int // 0 = detect on first call
	BatchSize  int
	MaxTokens  int // per request; 0 = unbounded
	Timeout    time.Duration
	PoolSize   int
}

// DefaultOllamaConfig returns defaults for a local server.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:      DefaultOllamaHost,
		Model:     DefaultOllamaModel,
		BatchSize: DefaultBatchSize,
		Timeout:   DefaultTimeout,
		PoolSize:  OllamaPoolSize,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaEmbedder calls Ollama's /api/embed. It does not retry; the
// Batcher owns retry policy.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ ports.EmbeddingProvider = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates the embedder. No request is made until the
// first call.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	def := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}

	// No client-level timeout: each request gets a context deadline so the
	// caller's cancellation still applies.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}
}

// EmbedBatch implements ports.EmbeddingProvider.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, mcberrors.Internal("ollama embedder is closed", nil)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, mcberrors.FromContext(ctx.Err())
		}
		return nil, classifyTransport(ProviderOllama, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(ProviderOllama, resp.StatusCode, resp.Header, string(msg))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, mcberrors.Transport("failed to decode ollama response", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, mcberrors.Internal(
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(texts)), nil)
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		out[i] = v
	}

	e.mu.Lock()
	if e.dims == 0 && len(out[0]) > 0 {
		e.dims = len(out[0])
	}
	e.mu.Unlock()
	return out, nil
}

// Dimensions implements ports.EmbeddingProvider. It is 0 until the
// first successful call when not configured.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// DetectDimensions embeds a probe string when the dimensionality is unknown.
func (e *OllamaEmbedder) DetectDimensions(ctx context.Context) (int, error) {
	if d := e.Dimensions(); d > 0 {
		return d, nil
	}
	if _, err := e.EmbedBatch(ctx, []string{"dimension probe"}); err != nil {
		return 0, fmt.Errorf("failed to detect embedding dimensions: %w", err)
	}
	return e.Dimensions(), nil
}

func (e *OllamaEmbedder) ProviderName() string { return ProviderOllama }
func (e *OllamaEmbedder) Model() string        { return e.config.Model }
func (e *OllamaEmbedder) MaxBatchSize() int    { return e.config.BatchSize }
func (e *OllamaEmbedder) MaxTokens() int       { return e.config.MaxTokens }

// Health pings /api/tags.
func (e *OllamaEmbedder) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return classifyTransport(ProviderOllama, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(ProviderOllama, resp.StatusCode, resp.Header, "")
	}
	return nil
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.transport.CloseIdleConnections()
	}
	return nil
}
