// Package provider defines the abstraction every social network plugs
// into: a two-step configure/fetch contract that turns paginated,
// partially-authenticated HTTP feeds into uniform batches of normalized
// posts.
package provider

import (
	"context"
	"net/http"
	"time"
)

// AuthState reports whether a session carries valid credentials.
type AuthState string

const (
	AuthAnonymous     AuthState = "anonymous"
	AuthAuthenticated AuthState = "authenticated"
)

// Options configures a provider session. Transport lets tests inject a
// fake http.RoundTripper without touching the network.
type Options struct {
	Identifier string
	Password   string

	BaseURL   string
	Timeout   time.Duration
	Headers   http.Header
	Transport http.RoundTripper
}

// RateLimitPolicy is a provider-reported hint about request pacing.
type RateLimitPolicy struct {
	RequestsPerMinute int
}

// Defaults carries operational hints a session exposes to its caller.
type Defaults struct {
	PageLimitMax int
}

// Session is the outcome of Configure: the provider's operating posture
// for the remainder of a collect call.
type Session struct {
	Provider     string
	AuthState    AuthState
	Capabilities Capabilities
	RateLimit    *RateLimitPolicy
	Defaults     Defaults
	Warnings     []string
}

// Capabilities declares which filters and features a provider honors
// server-side, so the collector knows what it must still enforce locally.
type Capabilities struct {
	SupportsCursor       bool   `json:"supports_cursor"`
	SupportsSearchQ      bool   `json:"supports_search_q"`
	SupportsAuthorFilter bool   `json:"supports_author_filter"`
	SupportsLangFilter   bool   `json:"supports_lang_filter"`
	SupportsTimeBounds   string `json:"supports_time_bounds"` // "none" | "inclusive"
	SupportsMedia        bool   `json:"supports_media"`
	MaxPageLimit         int    `json:"max_page_limit"`
	DateGranularity      string `json:"date_granularity"`
}

// Author is a normalized account reference attached to a post.
type Author struct {
	ExternalID  string
	Handle      string
	DisplayName string
	Metadata    map[string]any
}

// Metrics holds engagement counters. A nil field means "absent", not
// "zero"; a non-nil pointer to 0 is a reported zero.
type Metrics struct {
	LikeCount   *int
	ReplyCount  *int
	RepostCount *int
}

// Entities holds extracted post substructure. Providers that don't parse
// these yet return empty, non-nil slices.
type Entities struct {
	Hashtags []string
	Mentions []string
	Links    []string
	Media    []Media
}

// Media is a normalized attachment reference; no binary content travels
// through this abstraction.
type Media struct {
	Kind string
	URL  string
}

// Post is a single normalized item returned by FetchSince.
type Post struct {
	ExternalID  string
	Author      Author
	Text        string
	Lang        string
	CreatedAt   time.Time
	CollectedAt time.Time
	Metrics     Metrics
	Entities    Entities
}

// Batch is the result of one FetchSince call.
type Batch struct {
	Items          []Post
	NextCursor     *string
	ReachedUntil   bool
	IgnoredFilters []string
	Stats          map[string]int
	RateLimit      *RateLimitPolicy
	Warnings       []string
}

// Filters is a free-form map; recognized keys are provider-specific but
// at minimum include "q" (search) and "author" (handle or external id).
type Filters map[string]string

// Provider is the contract every social network implementation satisfies.
type Provider interface {
	Configure(ctx context.Context, opts Options) (Session, error)
	FetchSince(ctx context.Context, cursor *string, limit int, filters Filters) (Batch, error)
}

// Factory constructs a fresh, unconfigured Provider instance. The registry
// holds factories, not shared instances, so concurrent collect calls never
// share session state.
type Factory func() Provider
