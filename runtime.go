package sonec

import (
	"github.com/sonecdev/sonec/internal/collector"
	"github.com/sonecdev/sonec/internal/provider/registry"
	"github.com/sonecdev/sonec/internal/store"
)

// Store returns the runtime's underlying persistence handle, for
// collaborators that need the raw store.Store contract (internal/httpapi,
// internal/status callers outside this package).
func (r *Runtime) Store() store.Store {
	return r.store
}

// Collector returns the runtime's orchestrator, for collaborators that
// drive collection outside of Runtime.Collect (internal/scheduler).
func (r *Runtime) Collector() *collector.Collector {
	return r.collector
}

// Registry returns the runtime's provider registry, so callers can
// register additional providers after Configure.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}
