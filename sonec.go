// Package sonec is the public Go binding of the ingestion and query
// engine: configure a Runtime against a SQLite database, then collect,
// query, and inspect the status of normalized social-media posts through
// it. It holds no package-level mutable state — every call threads an
// explicit *Runtime instead of an implicit global settings object.
package sonec

import (
	"context"
	"fmt"

	"github.com/sonecdev/sonec/internal/collector"
	"github.com/sonecdev/sonec/internal/provider/registry"
	"github.com/sonecdev/sonec/internal/store"
	"github.com/sonecdev/sonec/internal/store/sqlite"
)

// Runtime is a configured sonec instance: an open store and a provider
// registry, bound together behind a collector.
type Runtime struct {
	store     store.Store
	registry  *registry.Registry
	collector *collector.Collector

	settings settings
}

// Configure opens (creating if necessary) the SQLite database at dbURL,
// running migrations, and returns a Runtime ready for Collect/Query/Status.
//
// dbURL accepts a native filesystem path, "sqlite://:memory:",
// "sqlite:///<path>", or the empty string (in-memory). Any other URL
// scheme fails with errs.InvalidArgument.
func Configure(ctx context.Context, dbURL string, opts ...Option) (*Runtime, error) {
	st, err := sqlite.Open(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	reg := s.registry
	if reg == nil {
		reg = registry.Default()
	}

	return &Runtime{
		store:     st,
		registry:  reg,
		collector: collector.New(st, reg),
		settings:  s,
	}, nil
}

// Close releases the underlying database connection.
func (r *Runtime) Close() error {
	return r.store.Close()
}
