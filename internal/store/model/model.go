// Package model defines the canonical relational entities persisted by
// the store: Provider, Source, Author, Post, Media, Cursor, and FetchJob.
package model

import (
	"time"

	"github.com/worldline-go/types"
)

// JobStatus is the lifecycle state of a FetchJob.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Provider is the identity of a social network. Never deleted by the core.
type Provider struct {
	Name         string `db:"name" goqu:"skipupdate"`
	Version      types.Null[string]
	Capabilities []byte // JSON document
}

// Source is a scope of collection within a provider: either a handle or a
// saved search, identified by its free-text descriptor.
type Source struct {
	ID         int64 `db:"id" goqu:"skipinsert"`
	Provider   string
	Descriptor string
	Label      types.Null[string]
}

// Author is a canonical account within a provider, keyed by the network's
// own stable identifier (e.g. a Bluesky DID).
type Author struct {
	ID          int64 `db:"id" goqu:"skipinsert"`
	Provider    string
	ExternalID  string
	Handle      types.Null[string]
	DisplayName types.Null[string]
	Metadata    []byte // JSON document
}

// Post is the core ingested entity. Never updated once inserted — later
// dedup attempts are recorded as conflicts in the owning FetchJob's stats.
type Post struct {
	ID          int64 `db:"id" goqu:"skipinsert"`
	Provider    string
	ExternalID  string
	AuthorID    int64
	Text        string
	Lang        types.Null[string]
	CreatedAt   time.Time
	CollectedAt time.Time
	Metrics     []byte // JSON document
	Entities    []byte // JSON document: hashtags, mentions, links, media
}

// Media is an attachment descriptor; no binary content is stored.
type Media struct {
	ID       int64 `db:"id" goqu:"skipinsert"`
	PostID   int64
	Kind     string
	URL      string
	Metadata []byte // JSON document
}

// Cursor is the ingestion continuity marker for a (provider, source) pair.
type Cursor struct {
	ID        int64 `db:"id" goqu:"skipinsert"`
	Provider  string
	SourceID  int64
	Position  []byte // JSON document: {"cursor": <opaque string or null>}
	UpdatedAt time.Time
}

// FetchJob is the audit record of a single collect invocation.
type FetchJob struct {
	ID         int64 `db:"id" goqu:"skipinsert"`
	Provider   string
	SourceID   int64
	StartedAt  time.Time
	FinishedAt types.Null[types.Time]
	Status     JobStatus
	Stats      []byte // JSON document: inserted, conflicts, pages
}
