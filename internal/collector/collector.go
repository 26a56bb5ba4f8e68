// Package collector drives a provider through its paging loop, dedupes
// and time-bounds results at persistence time, and records an auditable
// FetchJob for every invocation.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sonecdev/sonec/internal/errs"
	"github.com/sonecdev/sonec/internal/provider"
	"github.com/sonecdev/sonec/internal/provider/registry"
	"github.com/sonecdev/sonec/internal/store"
	"github.com/sonecdev/sonec/internal/store/model"
	"github.com/sonecdev/sonec/internal/timeutil"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 100
)

// Params describes one collect invocation. Exactly one of Source or Q
// must be set.
type Params struct {
	Provider string
	Source   string
	Q        string

	SinceUTC string
	UntilUTC string
	// Window, when SinceUTC is empty, resolves since_utc to now()-Window
	// (e.g. "24h", "7d"), per timeutil.ParseWindow.
	Window string

	PageLimit int
	Limit     *int

	Auth provider.Options
}

// Report summarizes a finished collect invocation.
type Report struct {
	JobID        int64
	Provider     string
	Source       string
	Inserted     int
	Conflicts    int
	ReachedUntil bool
	LastCursor   *string
	StartedAt    time.Time
	FinishedAt   time.Time
	Warnings     []string
}

// Collector orchestrates provider fetches against the canonical store.
type Collector struct {
	Store    store.Store
	Registry *registry.Registry
}

// New builds a Collector over st, resolving providers through reg.
func New(st store.Store, reg *registry.Registry) *Collector {
	return &Collector{Store: st, Registry: reg}
}

// Collect runs one full collection, returning an auditable report or a
// typed error from the errs taxonomy.
func (c *Collector) Collect(ctx context.Context, params Params) (Report, error) {
	if params.Provider == "" {
		return Report{}, errs.InvalidArgument("provider is required")
	}
	if (params.Source == "") == (params.Q == "") {
		return Report{}, errs.InvalidArgument("exactly one of source or q must be given")
	}

	pageLimit := params.PageLimit
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	if pageLimit > maxPageLimit {
		pageLimit = maxPageLimit
	}

	var sinceUTC, untilUTC *time.Time
	if t, err := timeutil.ParseUTC(params.SinceUTC); err != nil {
		return Report{}, err
	} else if !t.IsZero() {
		sinceUTC = &t
	}
	if t, err := timeutil.ParseUTC(params.UntilUTC); err != nil {
		return Report{}, err
	} else if !t.IsZero() {
		untilUTC = &t
	}
	if sinceUTC == nil && params.Window != "" {
		d, err := timeutil.ParseWindow(params.Window)
		if err != nil {
			return Report{}, err
		}
		t := time.Now().UTC().Add(-d)
		sinceUTC = &t
	}

	p, err := c.Registry.Resolve(params.Provider)
	if err != nil {
		return Report{}, err
	}

	session, err := p.Configure(ctx, params.Auth)
	if err != nil {
		return Report{}, err
	}

	descriptor := params.Source
	if descriptor == "" {
		descriptor = "search:" + params.Q
	}

	capabilitiesJSON, err := json.Marshal(session.Capabilities)
	if err != nil {
		return Report{}, fmt.Errorf("marshal provider capabilities: %w", err)
	}
	if err := c.Store.UpsertProvider(ctx, session.Provider, "", capabilitiesJSON); err != nil {
		return Report{}, err
	}

	src, err := c.Store.GetOrCreateSource(ctx, session.Provider, descriptor, "")
	if err != nil {
		return Report{}, err
	}

	startedAt := time.Now().UTC()
	jobID, err := c.Store.CreateFetchJob(ctx, session.Provider, src.ID, startedAt)
	if err != nil {
		return Report{}, err
	}

	report, runErr := c.run(ctx, params, p, session.Provider, sinceUTC, untilUTC, pageLimit)
	report.JobID = jobID
	report.Provider = session.Provider
	report.Source = descriptor
	report.StartedAt = startedAt
	report.Warnings = append(report.Warnings, session.Warnings...)
	report.FinishedAt = time.Now().UTC()

	if runErr != nil {
		stats, _ := json.Marshal(map[string]any{
			"inserted":  report.Inserted,
			"conflicts": report.Conflicts,
			"pages":     nil,
		})
		// Finalize on a context that survives cancellation so a cancelled
		// run still records its job as failed.
		if fErr := c.Store.FinalizeFetchJob(context.WithoutCancel(ctx), jobID, model.JobFailed, report.FinishedAt, stats); fErr != nil {
			return report, fmt.Errorf("%w (and failed to finalize job: %v)", runErr, fErr)
		}
		return report, runErr
	}

	if report.LastCursor != nil {
		if err := c.Store.UpsertCursor(ctx, session.Provider, src.ID, report.LastCursor, report.FinishedAt); err != nil {
			return report, err
		}
	}

	stats, err := json.Marshal(map[string]any{
		"inserted":  report.Inserted,
		"conflicts": report.Conflicts,
		"pages":     nil,
	})
	if err != nil {
		return report, fmt.Errorf("marshal job stats: %w", err)
	}
	if err := c.Store.FinalizeFetchJob(ctx, jobID, model.JobSucceeded, report.FinishedAt, stats); err != nil {
		return report, err
	}

	return report, nil
}

// run executes the paging loop; the caller is responsible for job
// bookkeeping around it.
func (c *Collector) run(
	ctx context.Context,
	params Params,
	p provider.Provider,
	providerName string,
	sinceUTC, untilUTC *time.Time,
	pageLimit int,
) (Report, error) {
	remaining := math.MaxInt32
	hasLimit := params.Limit != nil
	if hasLimit {
		remaining = *params.Limit
	}

	var report Report
	var cursor *string

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		requestLimit := pageLimit
		if hasLimit && remaining < requestLimit {
			requestLimit = remaining
		}
		if requestLimit < 1 {
			break
		}

		filters := provider.Filters{}
		if params.Source != "" {
			filters["author"] = "handle:" + params.Source
		} else {
			filters["q"] = params.Q
		}

		batch, err := p.FetchSince(ctx, cursor, requestLimit, filters)
		if err != nil {
			return report, err
		}

		inserted, conflicts, err := c.persistBatch(ctx, providerName, batch.Items, sinceUTC, untilUTC)
		if err != nil {
			return report, err
		}
		report.Inserted += inserted
		report.Conflicts += conflicts

		if batch.NextCursor != nil {
			cursor = batch.NextCursor
			report.LastCursor = batch.NextCursor
		} else {
			cursor = nil
		}

		if sinceUTC != nil && len(batch.Items) > 0 && minCreatedAt(batch.Items).Before(*sinceUTC) {
			report.ReachedUntil = true
		}
		if batch.ReachedUntil {
			report.ReachedUntil = true
		}

		remaining -= len(batch.Items)

		if cursor == nil || len(batch.Items) == 0 || (hasLimit && remaining <= 0) || report.ReachedUntil {
			break
		}
	}

	return report, nil
}

// minCreatedAt returns the zero time when items is empty, which never
// trips the sinceUTC boundary check above.
func minCreatedAt(items []provider.Post) time.Time {
	var min time.Time
	for i, it := range items {
		if i == 0 || it.CreatedAt.Before(min) {
			min = it.CreatedAt
		}
	}
	return min
}

func (c *Collector) persistBatch(ctx context.Context, providerName string, items []provider.Post, sinceUTC, untilUTC *time.Time) (int, int, error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	authorsByExternalID := make(map[string]model.Author)
	for _, it := range items {
		if _, ok := authorsByExternalID[it.Author.ExternalID]; ok {
			continue
		}
		a := model.Author{Provider: providerName, ExternalID: it.Author.ExternalID}
		if it.Author.Handle != "" {
			a.Handle.Scan(it.Author.Handle) //nolint:errcheck
		}
		if it.Author.DisplayName != "" {
			a.DisplayName.Scan(it.Author.DisplayName) //nolint:errcheck
		}
		a.Metadata = []byte("{}")
		authorsByExternalID[it.Author.ExternalID] = a
	}

	authorRows := make([]model.Author, 0, len(authorsByExternalID))
	for _, a := range authorsByExternalID {
		authorRows = append(authorRows, a)
	}

	authorIDs, err := c.Store.UpsertAuthors(ctx, authorRows)
	if err != nil {
		return 0, 0, err
	}

	externalIDs := make([]string, len(items))
	for i, it := range items {
		externalIDs[i] = it.ExternalID
	}
	existing, err := c.Store.ExistingExternalIDs(ctx, providerName, externalIDs)
	if err != nil {
		return 0, 0, err
	}

	conflicts := 0
	seenInBatch := make(map[string]bool, len(items))
	queue := make([]model.Post, 0, len(items))

	for _, it := range items {
		if sinceUTC != nil && it.CreatedAt.Before(*sinceUTC) {
			continue
		}
		if untilUTC != nil && it.CreatedAt.After(*untilUTC) {
			continue
		}
		if existing[it.ExternalID] || seenInBatch[it.ExternalID] {
			conflicts++
			continue
		}
		seenInBatch[it.ExternalID] = true

		metrics := map[string]int{}
		if it.Metrics.LikeCount != nil {
			metrics["like_count"] = *it.Metrics.LikeCount
		}
		if it.Metrics.ReplyCount != nil {
			metrics["reply_count"] = *it.Metrics.ReplyCount
		}
		if it.Metrics.RepostCount != nil {
			metrics["repost_count"] = *it.Metrics.RepostCount
		}
		metricsJSON, _ := json.Marshal(metrics)

		entities := it.Entities
		if entities.Hashtags == nil {
			entities.Hashtags = []string{}
		}
		if entities.Mentions == nil {
			entities.Mentions = []string{}
		}
		if entities.Links == nil {
			entities.Links = []string{}
		}
		if entities.Media == nil {
			entities.Media = []provider.Media{}
		}
		entitiesJSON, _ := json.Marshal(map[string]any{
			"hashtags": entities.Hashtags,
			"mentions": entities.Mentions,
			"links":    entities.Links,
			"media":    entities.Media,
		})

		post := model.Post{
			Provider:    providerName,
			ExternalID:  it.ExternalID,
			AuthorID:    authorIDs[it.Author.ExternalID],
			Text:        it.Text,
			CreatedAt:   it.CreatedAt,
			CollectedAt: it.CollectedAt,
			Metrics:     metricsJSON,
			Entities:    entitiesJSON,
		}
		if it.Lang != "" {
			post.Lang.Scan(it.Lang) //nolint:errcheck
		}
		queue = append(queue, post)
	}

	insertedCount, err := c.Store.InsertPosts(ctx, queue)
	if err != nil {
		return 0, 0, err
	}
	// Any queued row that lost a race against a concurrent collector
	// counts as a silent conflict, not an error.
	conflicts += len(queue) - insertedCount

	return insertedCount, conflicts, nil
}
