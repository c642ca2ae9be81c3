// Package telemetry aggregates search and indexing statistics from the
// domain event bus. Everything is kept in process; nothing is reported
// externally.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType classifies a search query.
type QueryType string

const (
	QueryTypeLexical  QueryType = "lexical"
	QueryTypeSemantic QueryType = "semantic"
	QueryTypeMixed    QueryType = "mixed"
)

// ClassifyQuery guesses whether a query targets identifiers, natural
// language or both. Code-shaped tokens (snake_case, camelCase, dotted or
// called names) count as lexical.
func ClassifyQuery(query string) QueryType {
	words := strings.Fields(query)
	if len(words) == 0 {
		return QueryTypeMixed
	}
	var code int
	for _, w := range words {
		if codeShaped(w) {
			code++
		}
	}
	switch {
	case code == len(words):
		return QueryTypeLexical
	case code == 0 && len(words) >= 3:
		return QueryTypeSemantic
	default:
		return QueryTypeMixed
	}
}

func codeShaped(w string) bool {
	if strings.ContainsAny(w, "_.():/") {
		return true
	}
	var lower, upper bool
	for i, r := range w {
		if unicode.IsUpper(r) && i > 0 {
			upper = true
		}
		if unicode.IsLower(r) {
			lower = true
		}
	}
	return lower && upper
}

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one executed search.
type QueryEvent struct {
	Query       string
	Collection  string
	ResultCount int
	Latency     time.Duration
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer; capacity <= 0 selects 100.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, b.size)
	if b.size < b.capacity {
		copy(out, b.items[:b.size])
		return out
	}
	n := copy(out, b.items[b.head:])
	copy(out[n:], b.items[:b.head])
	return out
}

// Size returns the number of buffered items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryConfig sizes the query aggregates.
type QueryConfig struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
}

// DefaultQueryConfig returns the default sizes.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
	}
}

// QuerySnapshot is a copy of the query aggregates.
type QuerySnapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	QueryTypeCounts     map[QueryType]int64     `json:"query_type_counts"`
	PerCollection       map[string]int64        `json:"per_collection"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries with no results.
func (s QuerySnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// QueryMetrics aggregates executed searches. Safe for concurrent use.
type QueryMetrics struct {
	mu              sync.Mutex
	queryTypes      map[QueryType]int64
	perCollection   map[string]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	recentQueries   *lru.Cache[string, struct{}]
	totalQueries    int64
	zeroResultCount int64
	exactRepeats    int64
	since           time.Time
}

// NewQueryMetrics creates empty aggregates.
func NewQueryMetrics(cfg QueryConfig) *QueryMetrics {
	def := DefaultQueryConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)
	return &QueryMetrics{
		queryTypes:    make(map[QueryType]int64),
		perCollection: make(map[string]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recent,
		since:         time.Now(),
	}
}

// Record adds one search.
func (m *QueryMetrics) Record(ev QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	m.queryTypes[ClassifyQuery(ev.Query)]++
	if ev.Collection != "" {
		m.perCollection[ev.Collection]++
	}
	for _, term := range ExtractTerms(ev.Query) {
		n, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, n+1)
	}
	if ev.ResultCount == 0 {
		m.zeroResults.Add(ev.Query)
		m.zeroResultCount++
	}
	m.latencies[LatencyToBucket(ev.Latency)]++

	key := hashQuery(ev.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(key, struct{}{})
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot copies the current aggregates. Top terms are ordered by count,
// then alphabetically.
func (m *QueryMetrics) Snapshot() QuerySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := QuerySnapshot{
		TotalQueries:        m.totalQueries,
		QueryTypeCounts:     make(map[QueryType]int64, len(m.queryTypes)),
		PerCollection:       make(map[string]int64, len(m.perCollection)),
		ZeroResultQueries:   m.zeroResults.Items(),
		ZeroResultCount:     m.zeroResultCount,
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		ExactRepeatCount:    m.exactRepeats,
		Since:               m.since,
	}
	for k, v := range m.queryTypes {
		s.QueryTypeCounts[k] = v
	}
	for k, v := range m.perCollection {
		s.PerCollection[k] = v
	}
	for k, v := range m.latencies {
		s.LatencyDistribution[k] = v
	}
	for _, term := range m.topTerms.Keys() {
		if n, ok := m.topTerms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	sort.Slice(s.TopTerms, func(i, j int) bool {
		if s.TopTerms[i].Count != s.TopTerms[j].Count {
			return s.TopTerms[i].Count > s.TopTerms[j].Count
		}
		return s.TopTerms[i].Term < s.TopTerms[j].Term
	})
	return s
}
