// Package store defines the persistence contract consumed by the
// collector, query engine, and status surface, mirroring the way the
// teacher splits its storage contract into small per-concern interfaces
// combined into one Store.
package store

import (
	"context"
	"time"

	"github.com/sonecdev/sonec/internal/pagination"
	"github.com/sonecdev/sonec/internal/store/model"
)

// ProviderSourceStore upserts the identity rows a collection run is scoped
// to.
type ProviderSourceStore interface {
	UpsertProvider(ctx context.Context, name string, version string, capabilities []byte) error
	GetOrCreateSource(ctx context.Context, provider, descriptor string, label string) (model.Source, error)
}

// CursorStore reads and advances the continuity marker for a
// (provider, source) pair.
type CursorStore interface {
	GetCursor(ctx context.Context, provider string, sourceID int64) (*model.Cursor, error)
	UpsertCursor(ctx context.Context, provider string, sourceID int64, cursorToken *string, updatedAt time.Time) error
}

// AuthorStore resolves or creates canonical authors.
type AuthorStore interface {
	// UpsertAuthors inserts any authors in batch not already present,
	// keyed by (provider, external_id), and returns external_id -> id for
	// every author in batch, existing or newly created.
	UpsertAuthors(ctx context.Context, authors []model.Author) (map[string]int64, error)
}

// PostFilter narrows QueryPosts to a page of the canonical keyset order.
// Author identity filters are mutually exclusive; the query engine decides
// which one to populate based on the raw author string it was given.
type PostFilter struct {
	Provider         string
	SinceUTC         *time.Time
	UntilUTC         *time.Time
	AuthorHandle     *string
	AuthorExternalID *string
	AuthorID         *int64
	Contains         *string
	Limit            int
	After            *pagination.Key
}

// PostStore persists and queries the canonical post table.
type PostStore interface {
	// ExistingExternalIDs returns the subset of externalIDs already
	// present for provider, used by the collector to classify a batch
	// item as a fresh insert or a conflict before the insert attempt.
	ExistingExternalIDs(ctx context.Context, provider string, externalIDs []string) (map[string]bool, error)

	// InsertPosts bulk-inserts posts, ignoring rows that lose the race on
	// the (provider, external_id) unique constraint, and returns the
	// number actually inserted.
	InsertPosts(ctx context.Context, posts []model.Post) (int, error)

	// QueryPosts returns up to filter.Limit rows in canonical
	// (created_at DESC, id DESC) order. The query engine sets Limit to one
	// more than its page size so it can detect whether a further page
	// exists. An empty Provider matches every provider.
	QueryPosts(ctx context.Context, filter PostFilter) ([]model.Post, error)
}

// JobStore records the audit trail of collect invocations.
type JobStore interface {
	CreateFetchJob(ctx context.Context, provider string, sourceID int64, startedAt time.Time) (int64, error)
	FinalizeFetchJob(ctx context.Context, jobID int64, status model.JobStatus, finishedAt time.Time, stats []byte) error
}

// CursorView and JobView are the status surface's read projections; they
// carry the source descriptor alongside the row so callers don't need a
// second lookup.
type CursorView struct {
	Provider   string
	Source     string
	Cursor     *string
	UpdatedAt  time.Time
}

type JobView struct {
	ID         int64
	Provider   string
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     model.JobStatus
	Stats      []byte
}

// StatusStore answers the read-only snapshot queries behind status().
type StatusStore interface {
	ListCursors(ctx context.Context, provider, source string) ([]CursorView, error)
	ListJobs(ctx context.Context, provider, source string, limit int) ([]JobView, error)
}

// Store is the full persistence contract. The sqlite package is currently
// the only implementation: spec scope restricts collection runs to a
// single local file, so there is no multi-backend dispatch to perform.
type Store interface {
	ProviderSourceStore
	CursorStore
	AuthorStore
	PostStore
	JobStore
	StatusStore

	Close() error
}
