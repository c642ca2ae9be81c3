package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	blevereg "github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	index "github.com/blevesearch/bleve_index_api"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

const (
	// codeTokenizerType is the registered constructor; codeTokenizerName is
	// the per-mapping instance carrying the tokenizer options.
	codeTokenizerType = "mcb_code"
	codeTokenizerName = "mcb_code_tokenizer"
	codeAnalyzerName  = "mcb_code_analyzer"
)

func init() {
	_ = blevereg.RegisterTokenizer(codeTokenizerType,
		func(config map[string]interface{}, _ *blevereg.Cache) (analysis.Tokenizer, error) {
			return &bleveTokenizer{tok: NewTokenizer(tokenizerConfigFrom(config))}, nil
		})
}

// tokenizerOptions is the mapping form of the tokenizer settings. It is
// stored in the index metadata, so a reopened index keeps its analysis.
func tokenizerOptions(cfg BM25Config) map[string]interface{} {
	stop := make([]interface{}, len(cfg.StopWords))
	for i, w := range cfg.StopWords {
		stop[i] = w
	}
	return map[string]interface{}{
		"type":              codeTokenizerType,
		"min_length":        float64(cfg.MinTokenLength),
		"stop_words":        stop,
		"split_identifiers": cfg.SplitIdentifiers,
	}
}

func tokenizerConfigFrom(config map[string]interface{}) BM25Config {
	cfg := DefaultBM25Config()
	if v, ok := config["min_length"].(float64); ok && v > 0 {
		cfg.MinTokenLength = int(v)
	}
	if v, ok := config["split_identifiers"].(bool); ok {
		cfg.SplitIdentifiers = v
	}
	if words, ok := config["stop_words"].([]interface{}); ok {
		for _, w := range words {
			if s, ok := w.(string); ok {
				cfg.StopWords = append(cfg.StopWords, s)
			}
		}
	}
	return cfg
}

// checkBleveParams rejects k1 and b values Bleve cannot apply. Bleve reads
// them from process-wide settings, so only its own defaults are honoured.
func checkBleveParams(cfg BM25Config) error {
	const eps = 1e-9
	if cfg.K1 > 0 && math.Abs(cfg.K1-search.BM25_k1) > eps {
		return mcberrors.Configuration(fmt.Sprintf(
			"bleve lexical backend scores with k1=%g; got %g", search.BM25_k1, cfg.K1), nil)
	}
	if cfg.B > 0 && math.Abs(cfg.B-search.BM25_b) > eps {
		return mcberrors.Configuration(fmt.Sprintf(
			"bleve lexical backend scores with b=%g; got %g", search.BM25_b, cfg.B), nil)
	}
	return nil
}

type bleveDocument struct {
	Content  string `json:"content"`
	FilePath string `json:"file_path"`
}

// bleveDeletePage bounds each DeleteByFile lookup.
const bleveDeletePage = 500

// BleveLexical keeps one Bleve index per collection, scored with Bleve's
// BM25 model over the shared code tokenizer.
type BleveLexical struct {
	dir    string // "" = memory only
	cfg    BM25Config
	logger *slog.Logger

	mu      sync.RWMutex
	indexes map[string]bleve.Index
	closed  bool
}

var _ ports.LexicalIndex = (*BleveLexical)(nil)

// NewBleveLexical creates the backend. Collections live under dir, or in
// memory when dir is empty. A k1 or b other than Bleve's is a
// Configuration error.
func NewBleveLexical(dir string, cfg BM25Config, logger *slog.Logger) (*BleveLexical, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := checkBleveParams(cfg); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &BleveLexical{dir: dir, cfg: cfg, logger: logger, indexes: make(map[string]bleve.Index)}, nil
}

func newBleveMapping(cfg BM25Config) (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	m.ScoringModel = index.BM25Scoring
	if err := m.AddCustomTokenizer(codeTokenizerName, tokenizerOptions(cfg)); err != nil {
		return nil, fmt.Errorf("failed to add custom tokenizer: %w", err)
	}
	err := m.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     codeTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	m.DefaultAnalyzer = codeAnalyzerName
	m.DefaultMapping.AddFieldMappingsAt("file_path", bleve.NewKeywordFieldMapping())
	return m, nil
}

// open returns the collection's index, creating it when create is set.
func (b *BleveLexical) open(collection string, create bool) (bleve.Index, error) {
	if idx, ok := b.indexes[collection]; ok {
		return idx, nil
	}
	m, err := newBleveMapping(b.cfg)
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if b.dir == "" {
		if !create {
			return nil, nil
		}
		idx, err = bleve.NewMemOnly(m)
	} else {
		path := filepath.Join(b.dir, collection+".bleve")
		if verr := validateBleveIndex(path); verr != nil {
			b.logger.Warn("bm25_index_corrupted", slog.String("path", path), slog.String("error", verr.Error()))
			if rerr := os.RemoveAll(path); rerr != nil {
				return nil, fmt.Errorf("failed to clear corrupted index %s: %w", path, rerr)
			}
		}
		idx, err = bleve.Open(path)
		if stderrors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			if !create {
				return nil, nil
			}
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index for %s: %w", collection, err)
	}
	b.indexes[collection] = idx
	return idx, nil
}

// validateBleveIndex reports a half-written index directory.
func validateBleveIndex(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func (b *BleveLexical) Index(_ context.Context, collection string, docs []ports.LexicalDocument) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed("lexical index")
	}
	idx, err := b.open(collection, true)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, bleveDocument{Content: d.Content, FilePath: docFile(d.ID)}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", d.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (b *BleveLexical) Search(ctx context.Context, collection, query string, limit int) ([]ports.LexicalHit, error) {
	if strings.TrimSpace(query) == "" {
		return []ports.LexicalHit{}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed("lexical index")
	}
	idx, err := b.open(collection, false)
	if err != nil || idx == nil {
		return []ports.LexicalHit{}, err
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	if limit > 0 {
		req.Size = limit
	}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	hits := make([]ports.LexicalHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, ports.LexicalHit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

func (b *BleveLexical) Delete(_ context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed("lexical index")
	}
	idx, err := b.open(collection, false)
	if err != nil || idx == nil {
		return err
	}
	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (b *BleveLexical) DeleteByFile(ctx context.Context, collection, path string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errClosed("lexical index")
	}
	idx, err := b.open(collection, false)
	if err != nil || idx == nil {
		return 0, err
	}
	var n int
	for {
		q := bleve.NewTermQuery(path)
		q.SetField("file_path")
		req := bleve.NewSearchRequest(q)
		req.Size = bleveDeletePage
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return n, fmt.Errorf("failed to find documents for %s: %w", path, err)
		}
		if len(res.Hits) == 0 {
			return n, nil
		}
		batch := idx.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := idx.Batch(batch); err != nil {
			return n, fmt.Errorf("failed to delete documents: %w", err)
		}
		n += len(res.Hits)
	}
}

func (b *BleveLexical) DocumentCount(_ context.Context, collection string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, err := b.open(collection, false)
	if err != nil || idx == nil {
		return 0, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

func (b *BleveLexical) DropCollection(_ context.Context, collection string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx, ok := b.indexes[collection]; ok {
		_ = idx.Close()
		delete(b.indexes, collection)
	}
	if b.dir != "" {
		if err := os.RemoveAll(filepath.Join(b.dir, collection+".bleve")); err != nil {
			return fmt.Errorf("failed to remove index: %w", err)
		}
	}
	return nil
}

func (b *BleveLexical) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var firstErr error
	for name, idx := range b.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close index %s: %w", name, err)
		}
	}
	b.indexes = nil
	return firstErr
}

// bleveTokenizer feeds the shared tokenizer into Bleve's analysis chain.
type bleveTokenizer struct {
	tok *Tokenizer
}

func (t *bleveTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := t.tok.Tokenize(text)
	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(lower[offset:], token)
		if start < 0 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		if end > len(text) {
			end = len(text)
		}
		stream = append(stream, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return stream
}
