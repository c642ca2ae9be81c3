package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// HNSWConfig configures the graph of every collection.
type HNSWConfig struct {
	// Dir holds one <collection>.hnsw graph plus .meta file per
	// collection. Empty keeps everything in memory.
	Dir string

	Metric   string // cos or l2
	M        int
	EfSearch int
}

// DefaultHNSWConfig returns coder/hnsw's recommended parameters.
func DefaultHNSWConfig(dir string) HNSWConfig {
	return HNSWConfig{Dir: dir, Metric: MetricCosine, M: 16, EfSearch: 20}
}

// hnswCollection is one graph. Keys are internal; deletes are lazy so the
// graph never loses its entry point, and orphaned nodes are skipped.
type hnswCollection struct {
	dim     int
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	records map[string]map[string]string
	nextKey uint64
	dirty   bool
}

// hnswMeta is the persisted side file.
type hnswMeta struct {
	Dim      int
	Metric   string
	IDMap    map[string]uint64
	NextKey  uint64
	Metadata map[string]map[string]string
}

// HNSWStore is an approximate nearest-neighbour store built on coder/hnsw.
type HNSWStore struct {
	cfg    HNSWConfig
	logger *slog.Logger

	mu          sync.RWMutex
	collections map[string]*hnswCollection
	closed      bool
}

var _ ports.VectorStore = (*HNSWStore)(nil)

// NewHNSWStore opens the store, loading any collections found in cfg.Dir.
func NewHNSWStore(cfg HNSWConfig, logger *slog.Logger) (*HNSWStore, error) {
	def := DefaultHNSWConfig(cfg.Dir)
	if cfg.Metric == "" {
		cfg.Metric = def.Metric
	}
	if cfg.M <= 0 {
		cfg.M = def.M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &HNSWStore{cfg: cfg, logger: logger, collections: make(map[string]*hnswCollection)}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		metas, err := filepath.Glob(filepath.Join(cfg.Dir, "*.hnsw.meta"))
		if err != nil {
			return nil, fmt.Errorf("failed to list collections: %w", err)
		}
		for _, meta := range metas {
			name := strings.TrimSuffix(filepath.Base(meta), ".hnsw.meta")
			c, err := s.load(name)
			if err != nil {
				logger.Warn("hnsw_collection_load_failed", slog.String("collection", name), slog.String("error", err.Error()))
				continue
			}
			s.collections[name] = c
		}
	}
	return s, nil
}

func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if s.cfg.Metric == MetricL2 {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = s.cfg.M
	g.EfSearch = s.cfg.EfSearch
	g.Ml = 0.25
	return g
}

func (s *HNSWStore) EnsureCollection(_ context.Context, name string, dim int) error {
	if err := checkCollectionArgs(name, dim); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed("vector store")
	}
	if c, ok := s.collections[name]; ok {
		if c.dim != dim {
			return mcberrors.DimensionMismatch(c.dim, dim)
		}
		return nil
	}
	s.collections[name] = &hnswCollection{
		dim:     dim,
		graph:   s.newGraph(),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		records: make(map[string]map[string]string),
		dirty:   true,
	}
	return nil
}

func (s *HNSWStore) get(name string) (*hnswCollection, error) {
	if s.closed {
		return nil, errClosed("vector store")
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, mcberrors.CollectionNotFound(name)
	}
	return c, nil
}

func (s *HNSWStore) Upsert(_ context.Context, collection string, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collection)
	if err != nil {
		return err
	}
	if err := checkRecords(records, c.dim); err != nil {
		return err
	}
	for _, r := range records {
		if old, ok := c.idMap[r.ID]; ok {
			delete(c.keyMap, old)
		}
		key := c.nextKey
		c.nextKey++

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		if s.cfg.Metric == MetricCosine {
			domain.Normalize(vec)
		}
		c.graph.Add(hnsw.MakeNode(key, vec))
		c.idMap[r.ID] = key
		c.keyMap[key] = r.ID
		c.records[r.ID] = copyRecord(r).Metadata
	}
	c.dirty = true
	return nil
}

func (s *HNSWStore) Search(ctx context.Context, collection string, query []float32, k int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	if len(query) != c.dim {
		return nil, mcberrors.DimensionMismatch(c.dim, len(query))
	}
	if k <= 0 || len(c.idMap) == 0 {
		return []domain.SearchResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.cfg.Metric == MetricCosine {
		domain.Normalize(q)
	}

	// Orphans and filtered-out nodes take slots, so widen until k live
	// matches are found or the graph is exhausted.
	total := c.graph.Len()
	fetch := min(k+(total-len(c.idMap)), total)
	for {
		if err := ctx.Err(); err != nil {
			return nil, mcberrors.FromContext(err)
		}
		results := make([]domain.SearchResult, 0, k)
		for _, node := range c.graph.Search(q, fetch) {
			id, live := c.keyMap[node.Key]
			if !live || !filter.Match(c.records[id]) {
				continue
			}
			score := distanceToScore(c.graph.Distance(q, node.Value), s.cfg.Metric)
			results = append(results, domain.ResultFromMetadata(id, score, c.records[id]))
		}
		if len(results) >= k || fetch >= total {
			sortResults(results)
			if len(results) > k {
				results = results[:k]
			}
			return results, nil
		}
		fetch = min(fetch*2, total)
	}
}

func (s *HNSWStore) DeleteByFile(_ context.Context, collection, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collection)
	if err != nil {
		return 0, err
	}
	n := 0
	for id, md := range c.records {
		if md[domain.MetaFilePath] != path {
			continue
		}
		delete(c.keyMap, c.idMap[id])
		delete(c.idMap, id)
		delete(c.records, id)
		n++
	}
	if n > 0 {
		c.dirty = true
	}
	return n, nil
}

func (c *hnswCollection) record(id string) (domain.VectorRecord, bool) {
	key, ok := c.idMap[id]
	if !ok {
		return domain.VectorRecord{}, false
	}
	rec := domain.VectorRecord{ID: id, Metadata: c.records[id]}
	if vec, ok := c.graph.Lookup(key); ok {
		rec.Vector = vec
	}
	return copyRecord(rec), true
}

// GetByIDs returns stored vectors as held by the graph, which are unit
// length under the cosine metric.
func (s *HNSWStore) GetByIDs(_ context.Context, collection string, ids []string) ([]domain.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	out := make([]domain.VectorRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := c.record(id); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *HNSWStore) ListVectors(_ context.Context, collection string, limit int) ([]domain.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(c.idMap))
	for id := range c.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.VectorRecord, 0, len(ids))
	for _, id := range ids {
		rec, _ := c.record(id)
		out = append(out, rec)
	}
	return out, nil
}

func (s *HNSWStore) ListFilePaths(_ context.Context, collection string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return nil, err
	}
	recs := make(map[string]domain.VectorRecord, len(c.records))
	for id, md := range c.records {
		recs[id] = domain.VectorRecord{ID: id, Metadata: md}
	}
	return filePaths(recs, limit), nil
}

func (s *HNSWStore) CollectionExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *HNSWStore) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	if s.cfg.Dir != "" {
		base := filepath.Join(s.cfg.Dir, name+".hnsw")
		for _, p := range []string{base, base + ".meta"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
	}
	return nil
}

func (s *HNSWStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return 0, err
	}
	return len(c.idMap), nil
}

// HNSWStats describes one graph, including lazily deleted nodes.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats reports graph occupancy for a collection.
func (s *HNSWStore) Stats(collection string) (HNSWStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(collection)
	if err != nil {
		return HNSWStats{}, err
	}
	nodes := c.graph.Len()
	return HNSWStats{ValidIDs: len(c.idMap), GraphNodes: nodes, Orphans: nodes - len(c.idMap)}, nil
}

// Flush writes a dirty collection to disk. It is a no-op in memory mode.
func (s *HNSWStore) Flush(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(collection)
	if err != nil {
		return err
	}
	if s.cfg.Dir == "" || !c.dirty {
		return nil
	}
	if err := s.save(collection, c); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// save writes the graph then the side file, each via temp file + rename.
func (s *HNSWStore) save(name string, c *hnswCollection) error {
	path := filepath.Join(s.cfg.Dir, name+".hnsw")
	if err := writeAtomic(path, func(f *os.File) error { return c.graph.Export(f) }); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}
	meta := hnswMeta{Dim: c.dim, Metric: s.cfg.Metric, IDMap: c.idMap, NextKey: c.nextKey, Metadata: c.records}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	s.logger.Debug("hnsw_collection_saved", slog.String("collection", name), slog.Int("vectors", len(c.idMap)))
	return nil
}

func (s *HNSWStore) load(name string) (*hnswCollection, error) {
	path := filepath.Join(s.cfg.Dir, name+".hnsw")
	mf, err := os.Open(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	defer func() { _ = mf.Close() }()
	var meta hnswMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	c := &hnswCollection{
		dim:     meta.Dim,
		graph:   s.newGraph(),
		idMap:   meta.IDMap,
		keyMap:  make(map[uint64]string, len(meta.IDMap)),
		records: meta.Metadata,
		nextKey: meta.NextKey,
	}
	if c.idMap == nil {
		c.idMap = make(map[string]uint64)
	}
	if c.records == nil {
		c.records = make(map[string]map[string]string)
	}
	for id, key := range c.idMap {
		c.keyMap[key] = id
	}

	gf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph: %w", err)
	}
	defer func() { _ = gf.Close() }()
	// Import needs an io.ByteReader.
	if err := c.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	return c, nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (s *HNSWStore) ProviderName() string { return ProviderHNSW }

func (s *HNSWStore) Health(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed("vector store")
	}
	return nil
}

// Close flushes dirty collections and releases the graphs.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var firstErr error
	if s.cfg.Dir != "" {
		for name, c := range s.collections {
			if c.dirty {
				if err := s.save(name, c); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	s.closed = true
	s.collections = nil
	return firstErr
}
