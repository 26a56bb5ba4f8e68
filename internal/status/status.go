// Package status implements the read-only snapshot of ingestion continuity
// markers and recent collect jobs exposed to operators and the HTTP surface.
package status

import (
	"context"
	"time"

	"github.com/sonecdev/sonec/internal/store"
	"github.com/sonecdev/sonec/internal/store/model"
)

const defaultLimitJobs = 10

// Params narrows the snapshot to a provider and/or source descriptor.
// Both are optional; empty means "all".
type Params struct {
	Provider  string
	Source    string
	LimitJobs int
}

// CursorEntry is one (provider, source) continuity marker.
type CursorEntry struct {
	Provider  string
	Source    string
	Cursor    *string
	UpdatedAt time.Time
}

// JobEntry is one FetchJob audit record.
type JobEntry struct {
	ID         int64
	Provider   string
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     model.JobStatus
	Stats      []byte
}

// Snapshot is the result envelope of Run.
type Snapshot struct {
	Cursors []CursorEntry
	Jobs    []JobEntry
}

// Run answers the status() query against st.
func Run(ctx context.Context, st store.Store, params Params) (Snapshot, error) {
	limitJobs := params.LimitJobs
	if limitJobs <= 0 {
		limitJobs = defaultLimitJobs
	}

	cursorViews, err := st.ListCursors(ctx, params.Provider, params.Source)
	if err != nil {
		return Snapshot{}, err
	}
	jobViews, err := st.ListJobs(ctx, params.Provider, params.Source, limitJobs)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Cursors: make([]CursorEntry, 0, len(cursorViews)),
		Jobs:    make([]JobEntry, 0, len(jobViews)),
	}
	for _, c := range cursorViews {
		snap.Cursors = append(snap.Cursors, CursorEntry{
			Provider:  c.Provider,
			Source:    c.Source,
			Cursor:    c.Cursor,
			UpdatedAt: c.UpdatedAt,
		})
	}
	for _, j := range jobViews {
		snap.Jobs = append(snap.Jobs, JobEntry{
			ID:         j.ID,
			Provider:   j.Provider,
			Source:     j.Source,
			StartedAt:  j.StartedAt,
			FinishedAt: j.FinishedAt,
			Status:     j.Status,
			Stats:      j.Stats,
		})
	}
	return snap, nil
}
