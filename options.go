package sonec

import (
	"time"

	"github.com/sonecdev/sonec/internal/provider/registry"
)

// settings carries the values Option functions mutate during Configure.
type settings struct {
	httpTimeout      time.Duration
	defaultPageLimit int
	registry         *registry.Registry
}

func defaultSettings() settings {
	return settings{
		httpTimeout:      10 * time.Second,
		defaultPageLimit: 100,
	}
}

// Option configures a Runtime at Configure time.
type Option func(*settings)

// WithHTTPTimeout overrides the default 10s timeout applied to outbound
// provider HTTP requests that don't specify their own.
func WithHTTPTimeout(d time.Duration) Option {
	return func(s *settings) { s.httpTimeout = d }
}

// WithDefaultPageLimit overrides the page size Collect uses when a call
// leaves PageLimit unset.
func WithDefaultPageLimit(n int) Option {
	return func(s *settings) { s.defaultPageLimit = n }
}

// WithRegistry injects a pre-built provider registry instead of the
// default one seeded with the built-in Bluesky provider — tests use this
// to register fakes without touching the process-wide default registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *settings) { s.registry = reg }
}
