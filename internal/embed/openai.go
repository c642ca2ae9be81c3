package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

const (
	// DefaultOpenAIModel is the default hosted model.
	DefaultOpenAIModel = "text-embedding-3-small"
	// OpenAIMaxBatch is the API's input limit per request.
	OpenAIMaxBatch = 2048
	// OpenAIMaxTokens is the API's total input token limit per request.
	OpenAIMaxTokens = 300000
)

var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // optional, for compatible servers
	Model      string
	Dimensions int // requested output size; 0 = model default
	BatchSize  int
	MaxTokens  int // per request; 0 = OpenAIMaxTokens
	Timeout    time.Duration
}

// OpenAIEmbedder calls the OpenAI embeddings API through go-openai.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig
	dims   int
}

var (
	_ ports.EmbeddingProvider = (*OpenAIEmbedder)(nil)
	_ ports.TokenLimited      = (*OpenAIEmbedder)(nil)
)

// NewOpenAIEmbedder validates the config and creates the client.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, mcberrors.MissingOption(ProviderOpenAI, "api_key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > OpenAIMaxBatch {
		cfg.BatchSize = OpenAIMaxBatch
	}
	if cfg.MaxTokens <= 0 || cfg.MaxTokens > OpenAIMaxTokens {
		cfg.MaxTokens = OpenAIMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = openAIDimensions[cfg.Model]
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		dims:   dims,
	}, nil
}

// EmbedBatch implements ports.EmbeddingProvider.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.config.Model),
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, mcberrors.FromContext(ctx.Err())
		}
		return nil, classifyOpenAI(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, mcberrors.Internal(
			fmt.Sprintf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts)), nil)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	if e.dims == 0 && len(out[0]) > 0 {
		e.dims = len(out[0])
	}
	return out, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return classifyStatus(ProviderOpenAI, apiErr.HTTPStatusCode, http.Header{}, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return classifyStatus(ProviderOpenAI, reqErr.HTTPStatusCode, http.Header{}, reqErr.Error())
	}
	return classifyTransport(ProviderOpenAI, err)
}

func (e *OpenAIEmbedder) Dimensions() int      { return e.dims }
func (e *OpenAIEmbedder) ProviderName() string { return ProviderOpenAI }
func (e *OpenAIEmbedder) Model() string        { return e.config.Model }
func (e *OpenAIEmbedder) MaxBatchSize() int    { return e.config.BatchSize }
func (e *OpenAIEmbedder) MaxTokens() int       { return e.config.MaxTokens }

// Health lists models, which checks both reachability and credentials.
func (e *OpenAIEmbedder) Health(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return classifyOpenAI(err)
	}
	return nil
}

func (e *OpenAIEmbedder) Close() error { return nil }
