// Package registry is the process-wide table of named provider factories.
//
// Provider packages register their entries from init functions, next to the
// implementation. The composition root resolves one entry per port kind from
// the configuration record. After Seal the table is read-only.
package registry

import (
	"fmt"
	"sort"
	"sync"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

// Kind identifies a provider port.
type Kind string

const (
	// KindEmbedding is the embedding provider port.
	KindEmbedding Kind = "embedding"
	// KindVectorStore is the vector store provider port.
	KindVectorStore Kind = "vector_store"
	// KindCache is the cache provider port.
	KindCache Kind = "cache"
	// KindLanguage is the language chunker port.
	KindLanguage Kind = "language"
	// KindVCS is the version control provider port.
	KindVCS Kind = "vcs"
	// KindProjectDetector is the project detector port.
	KindProjectDetector Kind = "project_detector"
)

// Factory builds a provider from its configuration.
type Factory func(cfg Config) (any, error)

// Info describes a registered provider.
type Info struct {
	Name        string
	Description string
}

type entry struct {
	Info
	factory Factory
}

// Registry holds factories keyed by (kind, name).
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind][]entry
	sealed  bool
}

// New creates an empty registry. Most callers use the package-level default.
func New() *Registry {
	return &Registry{entries: make(map[Kind][]entry)}
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a factory. It panics on duplicates or after Seal, both of
// which are programming errors caught at startup.
func (r *Registry) Register(kind Kind, name, description string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic(fmt.Sprintf("registry: register %s/%s after seal", kind, name))
	}
	for _, e := range r.entries[kind] {
		if e.Name == name {
			panic(fmt.Sprintf("registry: duplicate provider %s/%s", kind, name))
		}
	}
	r.entries[kind] = append(r.entries[kind], entry{
		Info:    Info{Name: name, Description: description},
		factory: f,
	})
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// List returns the providers registered for kind, sorted by name.
func (r *Registry) List(kind Kind) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.entries[kind]))
	for _, e := range r.entries[kind] {
		out = append(out, e.Info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted provider names for kind.
func (r *Registry) Names(kind Kind) []string {
	infos := r.List(kind)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// Kinds returns every kind with at least one registered provider.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Resolve instantiates the provider named by cfg.Provider.
// An unknown name yields a Configuration error listing the available names.
func (r *Registry) Resolve(kind Kind, cfg Config) (any, error) {
	r.mu.RLock()
	var found *entry
	for i := range r.entries[kind] {
		if r.entries[kind][i].Name == cfg.Provider {
			found = &r.entries[kind][i]
			break
		}
	}
	r.mu.RUnlock()

	if found == nil {
		return nil, mcberrors.UnknownProvider(string(kind), cfg.Provider, r.Names(kind))
	}

	p, err := found.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider %q: %w", kind, cfg.Provider, err)
	}
	return p, nil
}

// Register adds a factory to the default registry.
func Register(kind Kind, name, description string, f Factory) {
	defaultRegistry.Register(kind, name, description, f)
}

// List lists providers in the default registry.
func List(kind Kind) []Info {
	return defaultRegistry.List(kind)
}

// ResolveAs resolves from r and asserts the provider implements T.
func ResolveAs[T any](r *Registry, kind Kind, cfg Config) (T, error) {
	var zero T
	p, err := r.Resolve(kind, cfg)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, mcberrors.Internal(
			fmt.Sprintf("provider %s/%s has type %T", kind, cfg.Provider, p), nil)
	}
	return typed, nil
}
