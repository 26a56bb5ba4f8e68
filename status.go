package sonec

import (
	"context"

	"github.com/sonecdev/sonec/internal/status"
)

// StatusParams mirrors status.Params.
type StatusParams = status.Params

// StatusSnapshot mirrors status.Snapshot.
type StatusSnapshot = status.Snapshot

// Status answers a snapshot of ingestion cursors and recent jobs.
func (r *Runtime) Status(ctx context.Context, params StatusParams) (StatusSnapshot, error) {
	return status.Run(ctx, r.store, params)
}
