package registry

import "sync"

// Handle holds the current provider of a port and allows it to be swapped
// at runtime. A request acquires the provider once and releases it when it
// is done. A provider that was swapped out is retired only after its last
// reader has released it.
type Handle[T any] struct {
	mu  sync.Mutex
	cur *lease[T]
}

type lease[T any] struct {
	v       T
	refs    int
	retired bool
	retire  func(T)
}

// NewHandle creates a handle holding v.
func NewHandle[T any](v T) *Handle[T] {
	return &Handle[T]{cur: &lease[T]{v: v}}
}

// Load returns the current provider without holding it. It suits reads
// that do not outlive the call, such as the provider name.
func (h *Handle[T]) Load() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur.v
}

// Acquire returns the current provider and its release func. The provider
// is not retired before release is called, even when it is swapped out in
// between. Calling release more than once has no further effect.
func (h *Handle[T]) Acquire() (T, func()) {
	h.mu.Lock()
	l := h.cur
	l.refs++
	h.mu.Unlock()

	var once sync.Once
	return l.v, func() {
		once.Do(func() { h.release(l) })
	}
}

func (h *Handle[T]) release(l *lease[T]) {
	h.mu.Lock()
	l.refs--
	drained := l.retired && l.refs == 0
	retire := l.retire
	h.mu.Unlock()

	if drained && retire != nil {
		retire(l.v)
	}
}

// Swap installs v and returns the previous provider. retire is called with
// the previous provider once no reader holds it: from Swap itself when
// nobody does, otherwise from the last release.
func (h *Handle[T]) Swap(v T, retire func(T)) T {
	h.mu.Lock()
	prev := h.cur
	h.cur = &lease[T]{v: v}
	prev.retired = true
	prev.retire = retire
	drained := prev.refs == 0
	h.mu.Unlock()

	if drained && retire != nil {
		retire(prev.v)
	}
	return prev.v
}

// Readers reports how many requests hold the current provider.
func (h *Handle[T]) Readers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur.refs
}
