package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

type greeter interface{ Greet() string }

type hello struct{ name string }

func (h hello) Greet() string { return "hello " + h.name }

func newTestRegistry() *Registry {
	r := New()
	r.Register(KindVectorStore, "in_memory", "process-local store", func(cfg Config) (any, error) {
		return hello{name: cfg.String("who", "world")}, nil
	})
	r.Register(KindVectorStore, "hnsw", "graph index", func(Config) (any, error) {
		return hello{name: "hnsw"}, nil
	})
	r.Register(KindVectorStore, "broken", "always fails", func(Config) (any, error) {
		return nil, errors.New("cannot connect")
	})
	return r
}

func TestResolve_ReturnsProvider(t *testing.T) {
	// Given: a registry with in_memory
	r := newTestRegistry()

	// When: resolving with options
	g, err := ResolveAs[greeter](r, KindVectorStore, NewConfig("in_memory", "who", "mcb"))

	// Then: the factory received the options
	require.NoError(t, err)
	assert.Equal(t, "hello mcb", g.Greet())
}

// S6: unknown provider returns a Configuration error listing available names
func TestResolve_UnknownProviderListsNames(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Resolve(KindVectorStore, Config{Provider: "nonexistent"})

	require.Error(t, err)
	assert.True(t, mcberrors.IsKind(err, mcberrors.KindConfiguration))
	e, ok := mcberrors.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Available, "in_memory")
	assert.Equal(t, []string{"broken", "hnsw", "in_memory"}, e.Available)
}

func TestResolve_FactoryErrorIsWrapped(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Resolve(KindVectorStore, Config{Provider: "broken"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot connect")
	assert.Contains(t, err.Error(), "broken")
}

func TestResolveAs_TypeMismatchIsInternal(t *testing.T) {
	r := newTestRegistry()

	_, err := ResolveAs[error](r, KindVectorStore, Config{Provider: "hnsw"})

	assert.True(t, mcberrors.IsKind(err, mcberrors.KindInternal))
}

func TestList_SortedWithDescriptions(t *testing.T) {
	r := newTestRegistry()

	infos := r.List(KindVectorStore)

	require.Len(t, infos, 3)
	assert.Equal(t, "broken", infos[0].Name)
	assert.Equal(t, "process-local store", infos[2].Description)
	assert.Empty(t, r.List(KindCache))
	assert.Equal(t, []Kind{KindVectorStore}, r.Kinds())
}

func TestRegister_PanicsOnDuplicateAndAfterSeal(t *testing.T) {
	r := newTestRegistry()
	f := func(Config) (any, error) { return nil, nil }

	assert.Panics(t, func() { r.Register(KindVectorStore, "hnsw", "", f) })

	r.Seal()
	assert.Panics(t, func() { r.Register(KindCache, "null", "", f) })
}

func TestConfig_TypedAccessorsIgnoreUnknown(t *testing.T) {
	cfg := NewConfig("openai",
		"model", "text-embedding-3-small",
		"dimensions", 1536,
		"timeout", "2s",
		"normalize", "true",
		"weight", 0.5,
		"unexpected", []int{1})

	assert.Equal(t, "text-embedding-3-small", cfg.String("model", ""))
	assert.Equal(t, "fallback", cfg.String("missing", "fallback"))
	assert.Equal(t, 1536, cfg.Int("dimensions", 0))
	assert.Equal(t, 7, cfg.Int("model", 7))
	assert.Equal(t, 2*time.Second, cfg.Duration("timeout", 0))
	assert.True(t, cfg.Bool("normalize", false))
	assert.Equal(t, 0.5, cfg.Float("weight", 0))

	updated := cfg.With("dimensions", 384)
	assert.Equal(t, 384, updated.Int("dimensions", 0))
	assert.Equal(t, 1536, cfg.Int("dimensions", 0))
}

func TestHandle_SwapIsAtomic(t *testing.T) {
	h := NewHandle[greeter](hello{name: "a"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = h.Load().Greet()
			}
		}()
	}
	prev := h.Swap(hello{name: "b"}, nil)
	wg.Wait()

	assert.Equal(t, "hello a", prev.Greet())
	assert.Equal(t, "hello b", h.Load().Greet())
}

func TestHandle_RetireWaitsForReaders(t *testing.T) {
	h := NewHandle[greeter](hello{name: "a"})
	var retired []string
	retire := func(g greeter) { retired = append(retired, g.Greet()) }

	// Given: two requests holding the first provider
	first, releaseFirst := h.Acquire()
	_, releaseSecond := h.Acquire()
	assert.Equal(t, 2, h.Readers())

	// When: the provider is swapped out
	h.Swap(hello{name: "b"}, retire)

	// Then: it stays usable until the last reader releases it
	assert.Empty(t, retired)
	assert.Equal(t, "hello a", first.Greet())
	assert.Zero(t, h.Readers())

	releaseFirst()
	releaseFirst()
	assert.Empty(t, retired)

	releaseSecond()
	assert.Equal(t, []string{"hello a"}, retired)

	current, release := h.Acquire()
	defer release()
	assert.Equal(t, "hello b", current.Greet())
}

func TestHandle_RetireImmediatelyWithoutReaders(t *testing.T) {
	h := NewHandle[greeter](hello{name: "a"})
	var retired int

	h.Swap(hello{name: "b"}, func(greeter) { retired++ })

	assert.Equal(t, 1, retired)
}
