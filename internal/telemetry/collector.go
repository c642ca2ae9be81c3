package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/mcb/internal/events"
)

// IndexStats aggregates finished indexing runs of one collection.
type IndexStats struct {
	Runs           int64     `json:"runs"`
	FilesProcessed int64     `json:"files_processed"`
	Chunks         int64     `json:"chunks"`
	Errors         int64     `json:"errors"`
	LastStatus     string    `json:"last_status"`
	LastDurationMs int64     `json:"last_duration_ms"`
	LastRun        time.Time `json:"last_run"`
}

// Snapshot is everything the collector knows.
type Snapshot struct {
	Queries  QuerySnapshot                  `json:"queries"`
	Indexing map[string]IndexStats          `json:"indexing"`
	Health   []events.HealthStatus          `json:"health,omitempty"`
	Services map[string]events.ServiceState `json:"services"`
	Dropped  uint64                         `json:"dropped_events"`
}

// Collector consumes the event bus and keeps the aggregates.
type Collector struct {
	queries *QueryMetrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	indexing map[string]IndexStats
	health   []events.HealthStatus
	services map[string]events.ServiceState
	sub      *events.Subscription
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the collector logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithQueryConfig sizes the query aggregates.
func WithQueryConfig(cfg QueryConfig) Option {
	return func(c *Collector) { c.queries = NewQueryMetrics(cfg) }
}

// NewCollector creates an idle collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		queries:  NewQueryMetrics(DefaultQueryConfig()),
		logger:   slog.Default(),
		now:      time.Now,
		indexing: make(map[string]IndexStats),
		services: make(map[string]events.ServiceState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes to bus and consumes events until ctx ends or the bus is
// closed.
func (c *Collector) Run(ctx context.Context, bus *events.Bus) {
	c.Consume(ctx, bus.Subscribe())
}

// Consume handles the events of sub until ctx ends or sub is closed, then
// closes sub. Events buffered before the close are still handled.
func (c *Collector) Consume(ctx context.Context, sub *events.Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			c.Handle(ev)
		}
	}
}

// Handle folds one event into the aggregates.
func (c *Collector) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.SearchExecuted:
		c.queries.Record(QueryEvent{
			Query:       e.Query,
			Collection:  e.Collection,
			ResultCount: e.ResultCount,
			Latency:     time.Duration(e.ElapsedMs) * time.Millisecond,
		})
	case events.IndexingCompleted:
		c.mu.Lock()
		s := c.indexing[e.Collection]
		s.Runs++
		s.FilesProcessed += int64(e.FilesProcessed)
		s.Chunks += int64(e.Chunks)
		s.Errors += int64(e.Errors)
		s.LastStatus = e.Status
		s.LastDurationMs = e.DurationMs
		s.LastRun = c.now()
		c.indexing[e.Collection] = s
		c.mu.Unlock()
	case events.HealthCheckCompleted:
		c.mu.Lock()
		c.health = append([]events.HealthStatus(nil), e.Statuses...)
		c.mu.Unlock()
		if !e.Healthy {
			c.logger.Warn("telemetry_unhealthy", slog.Int("components", len(e.Statuses)))
		}
	case events.ServiceStateChanged:
		c.mu.Lock()
		c.services[e.Service] = e.State
		c.mu.Unlock()
	}
}

// Snapshot copies the current aggregates.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		Queries:  c.queries.Snapshot(),
		Indexing: make(map[string]IndexStats, len(c.indexing)),
		Health:   append([]events.HealthStatus(nil), c.health...),
		Services: make(map[string]events.ServiceState, len(c.services)),
	}
	for k, v := range c.indexing {
		s.Indexing[k] = v
	}
	for k, v := range c.services {
		s.Services[k] = v
	}
	if c.sub != nil {
		s.Dropped = c.sub.Dropped()
	}
	return s
}
