package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 256

// Publisher is the write side handed to components.
type Publisher interface {
	Publish(ev Event)
}

// Bus broadcasts events to every subscriber. Publish never blocks: a
// subscriber whose buffer is full loses the event.
type Bus struct {
	mu       sync.RWMutex
	subs     map[uint64]*Subscription
	nextID   uint64
	capacity int
	closed   bool
	logger   *slog.Logger
}

var _ Publisher = (*Bus)(nil)

// Option configures a Bus.
type Option func(*Bus)

// WithCapacity sets the per-subscriber buffer size.
func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithLogger sets the logger used for drop warnings.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:     make(map[uint64]*Subscription),
		capacity: DefaultCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is the read side of one subscriber.
type Subscription struct {
	id      uint64
	bus     *Bus
	ch      chan Event
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the event stream. It is closed by Close or Bus.Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events this subscriber lost.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes. Safe to call multiple times.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() {
		delete(s.bus.subs, s.id)
		close(s.ch)
	})
}

// Subscribe registers a new subscriber. Subscribing to a closed bus returns
// a subscription whose channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{id: b.nextID, bus: b, ch: make(chan Event, b.capacity)}
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs[s.id] = s
	return s
}

// Publish delivers ev to every subscriber with buffer space.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			if s.dropped.Add(1) == 1 {
				b.logger.Warn("event_subscriber_lagging",
					slog.Uint64("subscriber", s.id),
					slog.String("event", string(ev.EventType())))
			}
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.closeLocked()
	}
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}
