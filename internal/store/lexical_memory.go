package store

import (
	"context"
	"sort"
	"sync"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// corpus holds one collection's BM25 tables.
type corpus struct {
	params  BM25Params
	docs    map[string]map[string]int // doc -> term -> tf
	lengths map[string]int
	df      map[string]int
	total   int
}

func newCorpus(p BM25Params) *corpus {
	return &corpus{
		params:  p,
		docs:    make(map[string]map[string]int),
		lengths: make(map[string]int),
		df:      make(map[string]int),
	}
}

func (c *corpus) remove(id string) {
	terms, ok := c.docs[id]
	if !ok {
		return
	}
	for term := range terms {
		if c.df[term]--; c.df[term] <= 0 {
			delete(c.df, term)
		}
	}
	c.total -= c.lengths[id]
	delete(c.docs, id)
	delete(c.lengths, id)
}

func (c *corpus) add(id string, tf map[string]int, length int) {
	c.remove(id)
	c.docs[id] = tf
	c.lengths[id] = length
	c.total += length
	for term := range tf {
		c.df[term]++
	}
}

func (c *corpus) avgLen() float64 {
	if len(c.docs) == 0 {
		return 0
	}
	return float64(c.total) / float64(len(c.docs))
}

// MemoryLexical keeps per-collection document-frequency and
// document-length tables in memory.
type MemoryLexical struct {
	tokenizer *Tokenizer
	defaults  BM25Params

	mu      sync.RWMutex
	corpora map[string]*corpus
	closed  bool
}

var _ ports.LexicalIndex = (*MemoryLexical)(nil)

// NewMemoryLexical creates an empty in-memory BM25 index.
func NewMemoryLexical(cfg BM25Config) *MemoryLexical {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	return &MemoryLexical{
		tokenizer: NewTokenizer(cfg),
		defaults:  BM25Params{K1: cfg.K1, B: cfg.B},
		corpora:   make(map[string]*corpus),
	}
}

// SetParams overrides k1 and b for one collection.
func (m *MemoryLexical) SetParams(collection string, p BM25Params) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corpusLocked(collection).params = p
}

func (m *MemoryLexical) corpusLocked(collection string) *corpus {
	c, ok := m.corpora[collection]
	if !ok {
		c = newCorpus(m.defaults)
		m.corpora[collection] = c
	}
	return c
}

func (m *MemoryLexical) Index(_ context.Context, collection string, docs []ports.LexicalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("lexical index")
	}
	c := m.corpusLocked(collection)
	for _, d := range docs {
		tf, n := m.tokenizer.TermFrequencies(d.Content)
		c.add(d.ID, tf, n)
	}
	return nil
}

func (m *MemoryLexical) Search(ctx context.Context, collection, query string, limit int) ([]ports.LexicalHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed("lexical index")
	}
	c, ok := m.corpora[collection]
	if !ok || len(c.docs) == 0 {
		return []ports.LexicalHit{}, nil
	}
	terms := uniqueTerms(m.tokenizer.Tokenize(query))
	if len(terms) == 0 {
		return []ports.LexicalHit{}, nil
	}

	n := len(c.docs)
	avg := c.avgLen()
	scores := make(map[string]float64)
	for _, term := range terms {
		df := c.df[term]
		if df == 0 {
			continue
		}
		idf := IDF(n, df)
		for id, tfs := range c.docs {
			if tf := tfs[term]; tf > 0 {
				scores[id] += TermScore(c.params, idf, tf, c.lengths[id], avg)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, mcberrors.FromContext(err)
		}
	}
	return rankHits(scores, limit), nil
}

func (m *MemoryLexical) Delete(_ context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("lexical index")
	}
	c, ok := m.corpora[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		c.remove(id)
	}
	return nil
}

func (m *MemoryLexical) DeleteByFile(_ context.Context, collection, path string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errClosed("lexical index")
	}
	c, ok := m.corpora[collection]
	if !ok {
		return 0, nil
	}
	var n int
	for id := range c.docs {
		if docFile(id) == path {
			c.remove(id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryLexical) DocumentCount(_ context.Context, collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.corpora[collection]; ok {
		return len(c.docs), nil
	}
	return 0, nil
}

// Stats reports a collection's corpus size, vocabulary and average length.
func (m *MemoryLexical) Stats(collection string) (docs, terms int, avgLen float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corpora[collection]
	if !ok {
		return 0, 0, 0
	}
	return len(c.docs), len(c.df), c.avgLen()
}

func (m *MemoryLexical) DropCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.corpora, collection)
	return nil
}

func (m *MemoryLexical) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.corpora = map[string]*corpus{}
	return nil
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// rankHits orders by score descending, then id, and truncates to limit.
func rankHits(scores map[string]float64, limit int) []ports.LexicalHit {
	hits := make([]ports.LexicalHit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, ports.LexicalHit{ID: id, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func errClosed(what string) error {
	return mcberrors.Internal(what+" is closed", nil)
}
