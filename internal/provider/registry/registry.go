// Package registry implements the process-wide name -> provider factory
// mapping described by the provider abstraction: built-ins are registered
// at startup, lookups return fresh instances, and mutation is serialized
// behind a single mutex the way the teacher guards its in-process caches.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/sonecdev/sonec/internal/errs"
	"github.com/sonecdev/sonec/internal/provider"
	"github.com/sonecdev/sonec/internal/provider/bluesky"
)

// Registry is a process-wide, concurrency-safe provider factory lookup.
type Registry struct {
	mu        sync.Mutex
	factories map[string]provider.Factory
}

// New returns an empty registry. Most callers want Default.
func New() *Registry {
	return &Registry{factories: make(map[string]provider.Factory)}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, lazily seeding it with
// built-in providers on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New()
		// Panics only if bluesky.New itself is broken (nil factory output,
		// checked by Register) or the name collides with itself, neither
		// of which happens on a freshly constructed registry.
		if err := defaultReg.Register(bluesky.Name, bluesky.New, false); err != nil {
			panic("registry: failed to seed built-in providers: " + err.Error())
		}
	})
	return defaultReg
}

// Available returns every registered name in sorted order.
func (r *Registry) Available() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.factories[normalize(name)]
	return ok
}

// Register adds factory under name. A duplicate name fails with
// AlreadyRegistered unless override is set. factory must produce a
// non-nil provider.Provider, else TypeMismatch.
func (r *Registry) Register(name string, factory provider.Factory, override bool) error {
	key := normalize(name)
	if key == "" {
		return errs.InvalidArgument("provider name is required")
	}
	if factory == nil {
		return errs.TypeMismatch("provider factory for %q is nil", name)
	}
	if p := factory(); p == nil {
		return errs.TypeMismatch("provider factory for %q does not implement the provider interface", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists && !override {
		return errs.AlreadyRegistered(key)
	}

	r.factories[key] = factory
	return nil
}

// Unregister removes name. Missing name fails with NotRegistered.
func (r *Registry) Unregister(name string) error {
	key := normalize(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; !exists {
		return errs.NotRegistered(key)
	}
	delete(r.factories, key)
	return nil
}

// Resolve returns a fresh provider instance for name, or NotRegistered.
func (r *Registry) Resolve(name string) (provider.Provider, error) {
	key := normalize(name)

	r.mu.Lock()
	factory, exists := r.factories[key]
	r.mu.Unlock()

	if !exists {
		return nil, errs.NotRegistered(key)
	}
	return factory(), nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
