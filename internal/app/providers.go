package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/mcb/internal/embed"
	"github.com/Aman-CERP/mcb/internal/events"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
)

// ProviderKind lists the registered providers of one port and the active
// one, if the app holds that port.
type ProviderKind struct {
	Kind      registry.Kind   `json:"kind"`
	Active    string          `json:"active,omitempty"`
	Available []registry.Info `json:"available"`
}

// Providers describes every registered provider kind.
func (a *App) Providers() []ProviderKind {
	active := map[registry.Kind]string{
		registry.KindEmbedding:       a.embedder.Load().ProviderName(),
		registry.KindVectorStore:     a.vectors.Load().ProviderName(),
		registry.KindCache:           a.cache.ProviderName(),
		registry.KindVCS:             a.vcs.ProviderName(),
		registry.KindProjectDetector: a.detector.ProviderName(),
	}
	kinds := a.registry.Kinds()
	out := make([]ProviderKind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, ProviderKind{Kind: k, Active: active[k], Available: a.registry.List(k)})
	}
	return out
}

// EmbeddingInfo describes the active embedding provider.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// Embedding reports the embedding provider currently serving requests.
func (a *App) Embedding() EmbeddingInfo {
	e := a.embedder.Load()
	return EmbeddingInfo{Provider: e.ProviderName(), Model: e.Model(), Dimensions: e.Dimensions()}
}

// VectorStoreName is the active vector store provider.
func (a *App) VectorStoreName() string { return a.vectors.Load().ProviderName() }

// SwitchEmbedding replaces the embedding provider at runtime. Requests
// already running finish on the old provider, which is closed once the
// last of them releases it. Cached embeddings of the old provider are
// dropped.
func (a *App) SwitchEmbedding(ctx context.Context, rc registry.Config) error {
	a.switchMu.Lock()
	defer a.switchMu.Unlock()

	next, err := a.resolveEmbedding(rc)
	if err != nil {
		return err
	}
	a.retiring.Add(1)
	prev := a.embedder.Swap(next, func(p ports.EmbeddingProvider) {
		defer a.retiring.Done()
		a.retire(registry.KindEmbedding, p.ProviderName(), p.Close())
	})
	if err := a.cache.Invalidate(ctx, embed.CacheNamespace); err != nil {
		a.logger.Warn("cache_invalidate_failed",
			slog.String("namespace", embed.CacheNamespace),
			slog.String("error", err.Error()))
	}

	a.bus.Publish(events.CacheInvalidate{Namespace: embed.CacheNamespace})
	a.bus.Publish(events.ConfigReloaded{Section: "embedding", Provider: next.ProviderName()})
	a.logger.Info("provider_switched",
		slog.String("kind", string(registry.KindEmbedding)),
		slog.String("from", prev.ProviderName()),
		slog.String("to", next.ProviderName()),
		slog.String("model", next.Model()))
	return nil
}

// SwitchVectorStore replaces the vector store at runtime. The new store
// starts from whatever it persists; nothing is copied across. Runs holding
// the old store finish on it before it is closed.
func (a *App) SwitchVectorStore(ctx context.Context, rc registry.Config) error {
	a.switchMu.Lock()
	defer a.switchMu.Unlock()

	next, err := a.resolveVectorStore(rc)
	if err != nil {
		return err
	}
	if err := next.Health(ctx); err != nil {
		_ = next.Close()
		return err
	}
	a.retiring.Add(1)
	prev := a.vectors.Swap(next, func(p ports.VectorStore) {
		defer a.retiring.Done()
		a.retire(registry.KindVectorStore, p.ProviderName(), p.Close())
	})

	a.bus.Publish(events.ConfigReloaded{Section: "vector_store", Provider: next.ProviderName()})
	a.logger.Info("provider_switched",
		slog.String("kind", string(registry.KindVectorStore)),
		slog.String("from", prev.ProviderName()),
		slog.String("to", next.ProviderName()))
	return nil
}

// retire logs the outcome of closing a swapped-out provider.
func (a *App) retire(kind registry.Kind, provider string, err error) {
	if err != nil {
		a.logger.Warn("provider_close_failed",
			slog.String("kind", string(kind)),
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		return
	}
	a.logger.Debug("provider_retired", slog.String("kind", string(kind)), slog.String("provider", provider))
}

// Health probes the embedding provider, the vector store and the database
// and publishes the outcome as HealthCheckCompleted.
func (a *App) Health(ctx context.Context) events.HealthCheckCompleted {
	emb, releaseEmbedder := a.embedder.Acquire()
	defer releaseEmbedder()
	vs, releaseVectors := a.vectors.Acquire()
	defer releaseVectors()
	probes := []struct {
		component string
		provider  string
		check     func(context.Context) error
	}{
		{"embedding", emb.ProviderName(), emb.Health},
		{"vector_store", vs.ProviderName(), vs.Health},
		{"database", a.cfg.Database.Provider, a.db.PingContext},
	}

	report := events.HealthCheckCompleted{Healthy: true}
	for _, p := range probes {
		start := time.Now()
		err := p.check(ctx)
		st := events.HealthStatus{
			Component: p.component,
			Provider:  p.provider,
			Healthy:   err == nil,
			Latency:   time.Since(start),
		}
		if err != nil {
			st.Error = err.Error()
			report.Healthy = false
			a.logger.Warn("health_check_failed",
				slog.String("component", p.component),
				slog.String("provider", p.provider),
				slog.String("error", st.Error))
		}
		report.Statuses = append(report.Statuses, st)
	}

	a.bus.Publish(report)
	return report
}
