package chunk

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
)

// Result is the outcome of chunking one file.
type Result struct {
	Language string
	Chunks   []domain.CodeChunk
	// InvalidUTF8 is set when invalid bytes were replaced with U+FFFD.
	InvalidUTF8 bool
	// Fallback is set when the universal chunker handled the file.
	Fallback bool
}

// Engine routes files to language chunkers by detected language. Files
// without a chunker, or whose parse fails, go through the universal one.
type Engine struct {
	mu        sync.RWMutex
	chunkers  map[string]ports.LanguageChunker
	universal ports.LanguageChunker
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithChunker registers c for its language, replacing any previous one.
func WithChunker(c ports.LanguageChunker) EngineOption {
	return func(e *Engine) { e.chunkers[c.Language()] = c }
}

// WithUniversal replaces the fallback chunker.
func WithUniversal(c ports.LanguageChunker) EngineOption {
	return func(e *Engine) { e.universal = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with no language chunkers beyond those given.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		chunkers:  make(map[string]ports.LanguageChunker),
		universal: NewUniversalChunker(Options{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UniversalProvider names the registered fallback chunker.
const UniversalProvider = "universal"

// NewRegistryEngine builds an engine from every language chunker registered
// in r, resolving each with cfg's options. The UniversalProvider entry
// becomes the fallback.
func NewRegistryEngine(r *registry.Registry, cfg registry.Config, opts ...EngineOption) (*Engine, error) {
	infos := r.List(registry.KindLanguage)
	base := make([]EngineOption, 0, len(infos)+len(opts))
	for _, info := range infos {
		c, err := registry.ResolveAs[ports.LanguageChunker](r, registry.KindLanguage,
			registry.Config{Provider: info.Name, Options: cfg.Options})
		if err != nil {
			return nil, err
		}
		if info.Name == UniversalProvider {
			base = append(base, WithUniversal(c))
			continue
		}
		base = append(base, WithChunker(c))
	}
	return NewEngine(append(base, opts...)...), nil
}

// NewDefaultEngine builds an engine from the process registry.
func NewDefaultEngine(opts ...EngineOption) (*Engine, error) {
	return NewRegistryEngine(registry.Default(), registry.Config{}, opts...)
}

// Register adds or replaces a language chunker.
func (e *Engine) Register(c ports.LanguageChunker) {
	e.mu.Lock()
	e.chunkers[c.Language()] = c
	e.mu.Unlock()
}

// Languages returns the languages with a dedicated chunker.
func (e *Engine) Languages() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.chunkers))
	for l := range e.chunkers {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether path has a dedicated chunker.
func (e *Engine) Supports(path string) bool {
	lang := ExtensionLanguage(extOf(path))
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.chunkers[lang]
	return ok
}

// Chunk splits content. Output is in source order and deterministic.
func (e *Engine) Chunk(ctx context.Context, path string, content []byte) (Result, error) {
	res := Result{}
	if !utf8.Valid(content) {
		content = []byte(toValidUTF8(content))
		res.InvalidUTF8 = true
	}
	res.Language = DetectLanguage(path, content)

	e.mu.RLock()
	c, ok := e.chunkers[res.Language]
	e.mu.RUnlock()

	if ok {
		chunks, err := c.Chunk(ctx, content, path)
		if err == nil {
			res.Chunks = chunks
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		e.logger.Debug("chunk_parse_fallback",
			slog.String("path", path),
			slog.String("language", res.Language),
			slog.String("error", err.Error()))
	}

	chunks, err := e.universal.Chunk(ctx, content, path)
	if err != nil {
		return res, err
	}
	for i := range chunks {
		chunks[i].Language = res.Language
	}
	res.Chunks = chunks
	res.Fallback = true
	return res, nil
}

func toValidUTF8(b []byte) string {
	// One U+FFFD per invalid byte.
	out := make([]rune, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		out = append(out, r)
		b = b[size:]
	}
	return string(out)
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
