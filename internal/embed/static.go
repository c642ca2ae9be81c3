package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// StaticEmbedder hashes identifier parts and character trigrams into a
// fixed-size vector. It needs no network or model download; similarity
// is lexical rather than semantic.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ ports.EmbeddingProvider = (*StaticEmbedder)(nil)

// Keywords that appear in nearly every chunk carry no signal.
var staticStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true, "fn": true,
	"return": true, "import": true, "const": true, "var": true, "pub": true,
	"let": true, "int": true, "string": true, "bool": true, "impl": true,
	"void": true, "true": true, "false": true, "nil": true, "mut": true,
	"null": true, "this": true, "self": true, "new": true, "use": true,
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// NewStaticEmbedder creates a static embedder. dims <= 0 selects
// StaticDimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// EmbedBatch implements ports.EmbeddingProvider.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, mcberrors.Internal("static embedder is closed", nil)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, mcberrors.FromContext(err)
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	text = strings.TrimSpace(text)
	if text == "" {
		return v
	}
	for _, tok := range identifierParts(text) {
		if !staticStopWords[tok] {
			v[bucket(tok, e.dims)] += tokenWeight
		}
	}
	for _, g := range trigrams(alnumLower(text)) {
		v[bucket(g, e.dims)] += ngramWeight
	}
	domain.Normalize(v)
	return v
}

// identifierParts lowercases words and splits snake_case and camelCase.
func identifierParts(text string) []string {
	var parts []string
	for _, word := range wordPattern.FindAllString(text, -1) {
		for _, seg := range strings.Split(word, "_") {
			for _, p := range splitCamel(seg) {
				parts = append(parts, strings.ToLower(p))
			}
		}
	}
	return parts
}

// splitCamel splits "parseHTTPRequest" into parse, HTTP, Request.
func splitCamel(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	runes := []rune(s)
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prevLower := unicode.IsLower(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	return append(out, string(runes[start:]))
}

func alnumLower(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func trigrams(s string) []string {
	if len(s) < ngramSize {
		return nil
	}
	out := make([]string, 0, len(s)-ngramSize+1)
	for i := 0; i+ngramSize <= len(s); i++ {
		out = append(out, s[i:i+ngramSize])
	}
	return out
}

func bucket(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func (e *StaticEmbedder) Dimensions() int      { return e.dims }
func (e *StaticEmbedder) ProviderName() string { return ProviderStatic }
func (e *StaticEmbedder) Model() string        { return "static-hash" }
func (e *StaticEmbedder) MaxBatchSize() int    { return 0 }

func (e *StaticEmbedder) Health(context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return mcberrors.Internal("static embedder is closed", nil)
	}
	return nil
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
