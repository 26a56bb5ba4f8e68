package sonec

import (
	"context"

	"github.com/sonecdev/sonec/internal/collector"
)

// CollectParams mirrors collector.Params; Auth carries optional credentials
// and transport overrides for the resolved provider.
type CollectParams = collector.Params

// CollectReport mirrors collector.Report.
type CollectReport = collector.Report

// Collect runs one collection against params.Provider, scoped to either
// params.Source (an author handle / external id) or params.Q (a search
// query) — exactly one of the two must be set.
func (r *Runtime) Collect(ctx context.Context, params CollectParams) (CollectReport, error) {
	if params.PageLimit <= 0 {
		params.PageLimit = r.settings.defaultPageLimit
	}
	if params.Auth.Timeout <= 0 {
		params.Auth.Timeout = r.settings.httpTimeout
	}
	return r.collector.Collect(ctx, params)
}
