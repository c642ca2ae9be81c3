package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mcb/internal/ports"
	"github.com/Aman-CERP/mcb/internal/registry"
)

func TestMemory_GetSet(t *testing.T) {
	c := NewMemory(10, time.Hour)
	ctx := context.Background()

	// Given: a value in namespace a
	require.NoError(t, c.Set(ctx, "a", "k", []byte("v1"), 0))

	// Then: it is visible only in that namespace
	v, ok, err := c.Get(ctx, "a", "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	_, ok, err = c.Get(ctx, "b", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_EntryTTL(t *testing.T) {
	c := NewMemory(10, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ns", "short", []byte("x"), time.Minute))
	require.NoError(t, c.Set(ctx, "ns", "long", []byte("y"), 0))

	// When: two minutes pass
	now = now.Add(2 * time.Minute)

	// Then: only the short entry has expired
	_, ok, _ := c.Get(ctx, "ns", "short")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "ns", "long")
	assert.True(t, ok)
}

func TestMemory_InvalidateNamespace(t *testing.T) {
	c := NewMemory(10, time.Hour)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "embeddings", "1", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "embeddings", "2", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, "search", "1", []byte("c"), 0))

	// When: one namespace is invalidated
	require.NoError(t, c.Invalidate(ctx, "embeddings"))

	// Then: the other survives
	assert.Equal(t, 1, c.Len())
	_, ok, _ := c.Get(ctx, "search", "1")
	assert.True(t, ok)

	// When: everything is invalidated
	require.NoError(t, c.Invalidate(ctx, ""))
	assert.Equal(t, 0, c.Len())
}

func TestMemory_Eviction(t *testing.T) {
	c := NewMemory(2, time.Hour)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, "ns", k, []byte(k), 0))
	}
	_, ok, _ := c.Get(ctx, "ns", "a")
	assert.False(t, ok, "least recently used entry is evicted")
	assert.Equal(t, 2, c.Len())
}

func TestMemory_Closed(t *testing.T) {
	c := NewMemory(2, time.Hour)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, _, err := c.Get(context.Background(), "ns", "k")
	assert.Error(t, err)
}

func TestNull(t *testing.T) {
	var c ports.Cache = Null{}
	require.NoError(t, c.Set(context.Background(), "ns", "k", []byte("v"), 0))
	_, ok, err := c.Get(context.Background(), "ns", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistered(t *testing.T) {
	c, err := registry.ResolveAs[ports.Cache](registry.Default(), registry.KindCache,
		registry.NewConfig("in_memory", "max_entries", 5, "ttl", "1m"))
	require.NoError(t, err)
	assert.Equal(t, ProviderMemory, c.ProviderName())

	c, err = registry.ResolveAs[ports.Cache](registry.Default(), registry.KindCache, registry.NewConfig("null"))
	require.NoError(t, err)
	assert.Equal(t, ProviderNull, c.ProviderName())
}
