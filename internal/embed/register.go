package embed

import (
	"os"

	"github.com/Aman-CERP/mcb/internal/registry"
)

func init() {
	registry.Register(registry.KindEmbedding, ProviderOllama, "Ollama /api/embed over HTTP",
		func(cfg registry.Config) (any, error) {
			return NewOllamaEmbedder(OllamaConfig{
				Host:       cfg.String("url", cfg.String("host", os.Getenv("OLLAMA_HOST"))),
				Model:      cfg.String("model", DefaultOllamaModel),
				Dimensions: cfg.Int("dimensions", 0),
				BatchSize:  cfg.Int("batch_size", DefaultBatchSize),
				MaxTokens:  cfg.Int("max_tokens", 0),
				Timeout:    cfg.Duration("timeout", DefaultTimeout),
			}), nil
		})
	registry.Register(registry.KindEmbedding, ProviderOpenAI, "OpenAI embeddings API",
		func(cfg registry.Config) (any, error) {
			return NewOpenAIEmbedder(OpenAIConfig{
				APIKey:     cfg.String("api_key", os.Getenv("OPENAI_API_KEY")),
				BaseURL:    cfg.String("url", ""),
				Model:      cfg.String("model", DefaultOpenAIModel),
				Dimensions: cfg.Int("dimensions", 0),
				BatchSize:  cfg.Int("batch_size", 0),
				MaxTokens:  cfg.Int("max_tokens", 0),
				Timeout:    cfg.Duration("timeout", DefaultTimeout),
			})
		})
	registry.Register(registry.KindEmbedding, ProviderStatic, "hashed tokens and trigrams, no model",
		func(cfg registry.Config) (any, error) {
			return NewStaticEmbedder(cfg.Int("dimensions", StaticDimensions)), nil
		})
	registry.Register(registry.KindEmbedding, ProviderNull, "zero vectors for tests",
		func(cfg registry.Config) (any, error) {
			return NewNullEmbedder(cfg.Int("dimensions", DefaultNullDimensions)), nil
		})
}
