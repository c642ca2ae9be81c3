package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// BatcherConfig controls splitting, retry and pacing.
type BatcherConfig struct {
	// BatchSize is the preferred sub-batch size. The provider's own
	// MaxBatchSize caps it.
	BatchSize int

	// MaxTokens caps the estimated input tokens per sub-batch; 0 leaves
	// only the provider's own budget.
	MaxTokens int

	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// RequestsPerSecond paces provider calls; 0 disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// CircuitBreaker guards remote providers against repeated failures.
	CircuitBreaker bool
}

// DefaultBatcherConfig returns the default policy.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		BatchSize:    DefaultBatchSize,
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithBatcherLogger sets the logger.
func WithBatcherLogger(l *slog.Logger) BatcherOption {
	return func(b *Batcher) {
		if l != nil {
			b.logger = l
		}
	}
}

// Batcher is the embedding layer in front of a provider. It splits
// oversized input, retries transient failures with linear backoff, and
// validates output shape. A caller batch either fully succeeds or fails
// with the first terminal error.
type Batcher struct {
	provider ports.EmbeddingProvider
	cfg      BatcherConfig
	limiter  *rate.Limiter
	breaker  *mcberrors.CircuitBreaker
	logger   *slog.Logger
}

var (
	_ ports.EmbeddingProvider = (*Batcher)(nil)
	_ ports.TokenLimited      = (*Batcher)(nil)
)

// NewBatcher wraps provider.
func NewBatcher(provider ports.EmbeddingProvider, cfg BatcherConfig, opts ...BatcherOption) *Batcher {
	def := DefaultBatcherConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}

	b := &Batcher{provider: provider, cfg: cfg, logger: slog.Default()}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.CircuitBreaker {
		b.breaker = mcberrors.NewCircuitBreaker(provider.ProviderName())
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Provider returns the wrapped provider.
func (b *Batcher) Provider() ports.EmbeddingProvider { return b.provider }

// EffectiveBatchSize is the sub-batch size actually sent.
func (b *Batcher) EffectiveBatchSize() int {
	size := b.cfg.BatchSize
	if max := b.provider.MaxBatchSize(); max > 0 && max < size {
		size = max
	}
	return size
}

// MaxTokens is the token budget actually applied per sub-batch, the
// smaller of the configured and provider limits. 0 means unbounded.
func (b *Batcher) MaxTokens() int {
	limit := b.cfg.MaxTokens
	if p := maxTokens(b.provider); p > 0 && (limit <= 0 || p < limit) {
		limit = p
	}
	return max(limit, 0)
}

func maxTokens(p ports.EmbeddingProvider) int {
	if tl, ok := p.(ports.TokenLimited); ok {
		return tl.MaxTokens()
	}
	return 0
}

// EstimateTokens approximates the token count of s at four runes per token.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// split cuts texts into consecutive sub-batches of at most size items and
// at most budget estimated tokens. A single text over budget travels alone.
func split(texts []string, size, budget int) [][]string {
	var parts [][]string
	start, tokens := 0, 0
	for i, t := range texts {
		n := EstimateTokens(t)
		full := i-start >= size || (budget > 0 && i > start && tokens+n > budget)
		if full {
			parts = append(parts, texts[start:i])
			start, tokens = i, 0
		}
		tokens += n
	}
	return append(parts, texts[start:])
}

// EmbedBatch embeds texts in order.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, len(texts))
	dims := b.provider.Dimensions()

	start := 0
	for _, part := range split(texts, b.EffectiveBatchSize(), b.MaxTokens()) {
		vecs, err := b.embedPart(ctx, part)
		if err != nil {
			b.logger.Warn("embedding_batch_failed",
				slog.String("provider", b.provider.ProviderName()),
				slog.Int("offset", start),
				slog.Int("size", len(part)),
				slog.String("error", err.Error()))
			return nil, err
		}
		if len(vecs) != len(part) {
			return nil, mcberrors.Internal(
				fmt.Sprintf("%s returned %d vectors for %d inputs", b.provider.ProviderName(), len(vecs), len(part)), nil)
		}
		if dims == 0 && len(vecs) > 0 {
			dims = len(vecs[0])
		}
		if err := ValidateDimensions(vecs, dims); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
		start += len(part)
	}
	return out, nil
}

func (b *Batcher) embedPart(ctx context.Context, part []string) ([][]float32, error) {
	attempt := 0
	retryCfg := mcberrors.RetryConfig{
		MaxAttempts:  b.cfg.MaxAttempts,
		InitialDelay: b.cfg.InitialDelay,
		MaxDelay:     b.cfg.MaxDelay,
		Backoff:      mcberrors.BackoffLinear,
		ShouldRetry:  mcberrors.IsRetryable,
	}
	return mcberrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		attempt++
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, mcberrors.FromContext(ctx.Err())
				}
				// Wait fails early when the deadline cannot fit the next token.
				return nil, mcberrors.New(mcberrors.ErrCodeTimeout, "rate limiter wait exceeds deadline", err)
			}
		}
		if attempt > 1 {
			b.logger.Debug("embedding_attempt",
				slog.String("provider", b.provider.ProviderName()),
				slog.Int("attempt", attempt),
				slog.Int("size", len(part)))
		}
		if b.breaker != nil {
			return mcberrors.CircuitExecute(b.breaker, func() ([][]float32, error) {
				return b.provider.EmbedBatch(ctx, part)
			})
		}
		return b.provider.EmbedBatch(ctx, part)
	})
}

// EmbedQuery embeds a single string.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// ValidateDimensions checks every vector has length dim.
func ValidateDimensions(vecs [][]float32, dim int) error {
	for _, v := range vecs {
		if len(v) != dim {
			return mcberrors.DimensionMismatch(dim, len(v))
		}
	}
	return nil
}

func (b *Batcher) Dimensions() int                  { return b.provider.Dimensions() }
func (b *Batcher) ProviderName() string             { return b.provider.ProviderName() }
func (b *Batcher) Model() string                    { return b.provider.Model() }
func (b *Batcher) MaxBatchSize() int                { return b.provider.MaxBatchSize() }
func (b *Batcher) Health(ctx context.Context) error { return b.provider.Health(ctx) }
func (b *Batcher) Close() error                     { return b.provider.Close() }
