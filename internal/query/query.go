// Package query implements the read-only keyset-paginated scan over posts
// described by the collection engine's query surface, translating public
// filter parameters into a store.PostFilter and projecting rows to the
// recognized field set.
package query

import (
	"context"
	"strconv"
	"strings"

	"github.com/sonecdev/sonec/internal/errs"
	"github.com/sonecdev/sonec/internal/pagination"
	"github.com/sonecdev/sonec/internal/store"
	"github.com/sonecdev/sonec/internal/store/model"
	"github.com/sonecdev/sonec/internal/timeutil"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// recognizedFields is the full projection field set; order here is the
// default projection order.
var recognizedFields = []string{"id", "provider", "external_id", "author_id", "created_at", "text", "lang"}

var defaultProjection = []string{"id", "provider", "external_id", "author_id", "created_at", "text"}

// Params mirrors the public query(entity, ...) signature. Entity is
// validated against the single supported value, "posts".
type Params struct {
	Entity   string
	Provider string
	SinceUTC string
	UntilUTC string
	Author   string
	Contains string
	Limit    int
	AfterKey string
	Project  []string
}

// Row is one projected result; keys are always a subset of recognizedFields.
type Row map[string]any

// Page is the result envelope returned by Run.
type Page struct {
	Items        []Row
	NextAfterKey *string
	Count        int
}

// Run executes one query against st. The caller is responsible for
// checking the runtime is configured before calling this.
func Run(ctx context.Context, st store.Store, params Params) (Page, error) {
	if params.Entity != "posts" {
		return Page{}, errs.InvalidArgument("unsupported entity %q; only \"posts\" is implemented", params.Entity)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	filter := store.PostFilter{
		Provider: params.Provider,
		Limit:    limit + 1,
	}

	if t, err := timeutil.ParseUTC(params.SinceUTC); err != nil {
		return Page{}, err
	} else if !t.IsZero() {
		filter.SinceUTC = &t
	}
	if t, err := timeutil.ParseUTC(params.UntilUTC); err != nil {
		return Page{}, err
	} else if !t.IsZero() {
		filter.UntilUTC = &t
	}
	if params.Contains != "" {
		c := params.Contains
		filter.Contains = &c
	}

	if params.Author != "" {
		switch {
		case strings.HasPrefix(params.Author, "@"):
			handle := params.Author
			filter.AuthorHandle = &handle
		case isAllDigits(params.Author):
			id, err := strconv.ParseInt(params.Author, 10, 64)
			if err != nil {
				return Page{}, errs.InvalidArgument("author id %q out of range", params.Author)
			}
			filter.AuthorID = &id
		default:
			externalID := params.Author
			filter.AuthorExternalID = &externalID
		}
	}

	if params.AfterKey != "" {
		key, err := pagination.DecodeAfterKey(params.AfterKey)
		if err != nil {
			return Page{}, err
		}
		filter.After = &key
	}

	rows, err := st.QueryPosts(ctx, filter)
	if err != nil {
		return Page{}, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	fields := projectionFields(params.Project)

	page := Page{Items: make([]Row, 0, len(rows)), Count: len(rows)}
	for _, p := range rows {
		page.Items = append(page.Items, project(p, fields))
	}

	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		token := pagination.EncodeAfterKey(last.CreatedAt, last.ID)
		page.NextAfterKey = &token
	}

	return page, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// projectionFields restricts requested to the recognized set, preserving
// the caller's order, falling back to defaultProjection when requested is
// empty or none of it is recognized.
func projectionFields(requested []string) []string {
	if len(requested) == 0 {
		return defaultProjection
	}

	recognized := make(map[string]bool, len(recognizedFields))
	for _, f := range recognizedFields {
		recognized[f] = true
	}

	fields := make([]string, 0, len(requested))
	for _, f := range requested {
		if recognized[f] {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return defaultProjection
	}
	return fields
}

func project(p model.Post, fields []string) Row {
	row := make(Row, len(fields))
	for _, f := range fields {
		switch f {
		case "id":
			row["id"] = p.ID
		case "provider":
			row["provider"] = p.Provider
		case "external_id":
			row["external_id"] = p.ExternalID
		case "author_id":
			row["author_id"] = p.AuthorID
		case "created_at":
			row["created_at"] = timeutil.ToRFC3339Z(p.CreatedAt)
		case "text":
			row["text"] = p.Text
		case "lang":
			if p.Lang.Valid {
				row["lang"] = p.Lang.V
			} else {
				row["lang"] = nil
			}
		}
	}
	return row
}
