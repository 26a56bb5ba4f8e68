package sonec

import (
	"context"

	"github.com/sonecdev/sonec/internal/query"
)

// QueryParams mirrors query.Params.
type QueryParams = query.Params

// QueryPage mirrors query.Page.
type QueryPage = query.Page

// Query runs a keyset-paginated scan over the canonical store. Only
// entity "posts" is implemented; any other value fails with
// errs.InvalidArgument.
func (r *Runtime) Query(ctx context.Context, params QueryParams) (QueryPage, error) {
	if params.Entity == "" {
		params.Entity = "posts"
	}
	return query.Run(ctx, r.store, params)
}
