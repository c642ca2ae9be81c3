// Package cache provides the namespaced key/value cache providers.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
)

const (
	// DefaultMaxEntries bounds the in-memory cache.
	DefaultMaxEntries = 10000
	// DefaultTTL is the lifetime of entries stored without an explicit TTL.
	DefaultTTL = time.Hour

	ProviderMemory = "in_memory"
	ProviderNull   = "null"
)

const sep = "\x00"

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an LRU cache whose entries also expire. The LRU's own TTL is
// the ceiling; a shorter per-entry TTL is checked on read.
type Memory struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

var _ ports.Cache = (*Memory)(nil)

// NewMemory creates an in-memory cache.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		lru: expirable.NewLRU[string, entry](maxEntries, nil, ttl),
		now: time.Now,
	}
}

func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	if err := m.check(); err != nil {
		return nil, false, err
	}
	k := namespace + sep + key
	e, ok := m.lru.Get(k)
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.lru.Remove(k)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if err := m.check(); err != nil {
		return err
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.lru.Add(namespace+sep+key, e)
	return nil
}

// Invalidate removes one namespace, or everything for "".
func (m *Memory) Invalidate(_ context.Context, namespace string) error {
	if err := m.check(); err != nil {
		return err
	}
	if namespace == "" {
		m.lru.Purge()
		return nil
	}
	prefix := namespace + sep
	for _, k := range m.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.lru.Remove(k)
		}
	}
	return nil
}

// Len reports the live entry count.
func (m *Memory) Len() int { return m.lru.Len() }

func (m *Memory) ProviderName() string { return ProviderMemory }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.lru.Purge()
	}
	return nil
}

func (m *Memory) check() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return mcberrors.Internal("cache is closed", nil)
	}
	return nil
}

// Null never stores anything.
type Null struct{}

var _ ports.Cache = Null{}

func (Null) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }
func (Null) Set(context.Context, string, string, []byte, time.Duration) error {
	return nil
}
func (Null) Invalidate(context.Context, string) error { return nil }
func (Null) ProviderName() string                     { return ProviderNull }
func (Null) Close() error                             { return nil }

func init() {
	registry.Register(registry.KindCache, ProviderMemory, "expiring LRU in process memory",
		func(cfg registry.Config) (any, error) {
			return NewMemory(cfg.Int("max_entries", DefaultMaxEntries), cfg.Duration("ttl", DefaultTTL)), nil
		})
	registry.Register(registry.KindCache, ProviderNull, "no-op cache",
		func(registry.Config) (any, error) {
			return Null{}, nil
		})
}
