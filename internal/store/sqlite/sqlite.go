// Package sqlite is the sole store backend: a single local SQLite file
// accessed through goqu, migrated with muz, matching the teacher's
// store/sqlite3 wiring (PRAGMA tuning, single-connection pool, embedded
// migrations) but built over the sonec schema.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	_ "modernc.org/sqlite"

	"github.com/sonecdev/sonec/internal/errs"
	"github.com/sonecdev/sonec/internal/store"
	"github.com/sonecdev/sonec/internal/store/model"
)

const DefaultTablePrefix = "sonec_"

type SQLite struct {
	db   *sql.DB
	goqu *goqu.Database

	tableProviders exp.IdentifierExpression
	tableSources   exp.IdentifierExpression
	tableAuthors   exp.IdentifierExpression
	tablePosts     exp.IdentifierExpression
	tableCursors   exp.IdentifierExpression
	tableJobs      exp.IdentifierExpression
}

var _ store.Store = (*SQLite)(nil)

// toDatasource translates the sqlite:// URL forms spec §6 accepts into the
// bare path modernc.org/sqlite's driver expects, rejecting any other
// scheme outright.
func toDatasource(databaseURL string) (string, error) {
	switch {
	case databaseURL == "" || databaseURL == "sqlite://:memory:":
		return ":memory:", nil
	case strings.HasPrefix(databaseURL, "sqlite:///"):
		return strings.TrimPrefix(databaseURL, "sqlite:///"), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return strings.TrimPrefix(databaseURL, "sqlite://"), nil
	case strings.Contains(databaseURL, "://"):
		return "", errs.InvalidArgument("unsupported database url scheme: %q", databaseURL)
	default:
		return databaseURL, nil
	}
}

// Open connects to the sqlite file named by databaseURL, running pending
// migrations first.
func Open(ctx context.Context, databaseURL string) (*SQLite, error) {
	datasource, err := toDatasource(databaseURL)
	if err != nil {
		return nil, err
	}

	tablePrefix := DefaultTablePrefix

	if err := MigrateDB(ctx, datasource, tablePrefix+"migrations", map[string]string{
		"TABLE_PREFIX": tablePrefix,
	}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	db, err := sql.Open("sqlite", datasource)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite is single-writer; limit connections accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	slog.Info("connected to sonec store", "datasource", datasource)

	return &SQLite{
		db:             db,
		goqu:           goqu.New("sqlite3", db),
		tableProviders: goqu.T(tablePrefix + "providers"),
		tableSources:   goqu.T(tablePrefix + "sources"),
		tableAuthors:   goqu.T(tablePrefix + "authors"),
		tablePosts:     goqu.T(tablePrefix + "posts"),
		tableCursors:   goqu.T(tablePrefix + "cursors"),
		tableJobs:      goqu.T(tablePrefix + "fetch_jobs"),
	}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// ─── Provider / Source ───

func (s *SQLite) UpsertProvider(ctx context.Context, name, version string, capabilities []byte) error {
	insert := s.goqu.Insert(s.tableProviders).Rows(goqu.Record{
		"name":         name,
		"version":      nullIfEmpty(version),
		"capabilities": string(capabilities),
	}).OnConflict(goqu.DoUpdate("name", goqu.Record{
		"version":      nullIfEmpty(version),
		"capabilities": string(capabilities),
	}))

	query, args, err := insert.ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert provider query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert provider %q: %w", name, err)
	}
	return nil
}

func (s *SQLite) GetOrCreateSource(ctx context.Context, provider, descriptor, label string) (model.Source, error) {
	selectQuery, args, err := s.goqu.From(s.tableSources).
		Select("id", "provider", "descriptor", "label").
		Where(goqu.Ex{"provider": provider, "descriptor": descriptor}).
		ToSQL()
	if err != nil {
		return model.Source{}, fmt.Errorf("build select source query: %w", err)
	}

	var row sourceRow
	err = s.db.QueryRowContext(ctx, selectQuery, args...).Scan(&row.ID, &row.Provider, &row.Descriptor, &row.Label)
	if err == nil {
		return row.toModel(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Source{}, fmt.Errorf("get source: %w", err)
	}

	insertQuery, args, err := s.goqu.Insert(s.tableSources).Rows(goqu.Record{
		"provider":   provider,
		"descriptor": descriptor,
		"label":      nullIfEmpty(label),
	}).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		return model.Source{}, fmt.Errorf("build insert source query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, insertQuery, args...); err != nil {
		return model.Source{}, fmt.Errorf("insert source: %w", err)
	}

	err = s.db.QueryRowContext(ctx, selectQuery, args...).Scan(&row.ID, &row.Provider, &row.Descriptor, &row.Label)
	if err != nil {
		return model.Source{}, fmt.Errorf("reload source after insert: %w", err)
	}
	return row.toModel(), nil
}

type sourceRow struct {
	ID         int64
	Provider   string
	Descriptor string
	Label      sql.NullString
}

func (r sourceRow) toModel() model.Source {
	s := model.Source{ID: r.ID, Provider: r.Provider, Descriptor: r.Descriptor}
	if r.Label.Valid {
		s.Label.Scan(r.Label.String) //nolint:errcheck
	}
	return s
}

// ─── Cursor ───

func (s *SQLite) GetCursor(ctx context.Context, provider string, sourceID int64) (*model.Cursor, error) {
	query, args, err := s.goqu.From(s.tableCursors).
		Select("id", "provider", "source_id", "position", "updated_at").
		Where(goqu.Ex{"provider": provider, "source_id": sourceID}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get cursor query: %w", err)
	}

	var row model.Cursor
	var updatedAt string
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&row.ID, &row.Provider, &row.SourceID, &row.Position, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}

	row.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse cursor updated_at: %w", err)
	}
	return &row, nil
}

func (s *SQLite) UpsertCursor(ctx context.Context, provider string, sourceID int64, cursorToken *string, updatedAt time.Time) error {
	position, err := json.Marshal(map[string]*string{"cursor": cursorToken})
	if err != nil {
		return fmt.Errorf("marshal cursor position: %w", err)
	}

	query, args, err := s.goqu.Insert(s.tableCursors).Rows(goqu.Record{
		"provider":   provider,
		"source_id":  sourceID,
		"position":   string(position),
		"updated_at": updatedAt.UTC().Format(time.RFC3339),
	}).OnConflict(goqu.DoUpdate("provider, source_id", goqu.Record{
		"position":   string(position),
		"updated_at": updatedAt.UTC().Format(time.RFC3339),
	})).ToSQL()
	if err != nil {
		return fmt.Errorf("build upsert cursor query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// ─── Authors ───

func (s *SQLite) UpsertAuthors(ctx context.Context, authors []model.Author) (map[string]int64, error) {
	result := make(map[string]int64, len(authors))
	if len(authors) == 0 {
		return result, nil
	}

	rows := make([]any, 0, len(authors))
	for _, a := range authors {
		handle, display := "", ""
		if a.Handle.Valid {
			handle = a.Handle.V
		}
		if a.DisplayName.Valid {
			display = a.DisplayName.V
		}
		metadata := a.Metadata
		if metadata == nil {
			metadata = []byte("{}")
		}
		rows = append(rows, goqu.Record{
			"provider":     a.Provider,
			"external_id":  a.ExternalID,
			"handle":       nullIfEmpty(handle),
			"display_name": nullIfEmpty(display),
			"metadata":     string(metadata),
		})
	}

	insertQuery, args, err := s.goqu.Insert(s.tableAuthors).Rows(rows...).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert authors query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertQuery, args...); err != nil {
		return nil, fmt.Errorf("insert authors: %w", err)
	}

	externalIDs := make([]string, len(authors))
	provider := ""
	for i, a := range authors {
		externalIDs[i] = a.ExternalID
		provider = a.Provider
	}

	selectQuery, args, err := s.goqu.From(s.tableAuthors).
		Select("id", "external_id").
		Where(goqu.Ex{"provider": provider, "external_id": externalIDs}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select authors query: %w", err)
	}

	rowsRes, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("select authors: %w", err)
	}
	defer rowsRes.Close()

	for rowsRes.Next() {
		var id int64
		var externalID string
		if err := rowsRes.Scan(&id, &externalID); err != nil {
			return nil, fmt.Errorf("scan author row: %w", err)
		}
		result[externalID] = id
	}
	return result, rowsRes.Err()
}

// ─── Posts ───

func (s *SQLite) ExistingExternalIDs(ctx context.Context, provider string, externalIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(externalIDs))
	if len(externalIDs) == 0 {
		return result, nil
	}

	query, args, err := s.goqu.From(s.tablePosts).
		Select("external_id").
		Where(goqu.Ex{"provider": provider, "external_id": externalIDs}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build existing posts query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan existing post id: %w", err)
		}
		result[id] = true
	}
	return result, rows.Err()
}

func (s *SQLite) InsertPosts(ctx context.Context, posts []model.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	rows := make([]any, 0, len(posts))
	for _, p := range posts {
		lang := ""
		if p.Lang.Valid {
			lang = p.Lang.V
		}
		metrics, entities := p.Metrics, p.Entities
		if metrics == nil {
			metrics = []byte("{}")
		}
		if entities == nil {
			entities = []byte(`{"hashtags":[],"mentions":[],"links":[],"media":[]}`)
		}
		rows = append(rows, goqu.Record{
			"provider":     p.Provider,
			"external_id":  p.ExternalID,
			"author_id":    p.AuthorID,
			"text":         p.Text,
			"lang":         nullIfEmpty(lang),
			"created_at":   p.CreatedAt.UTC().Format(time.RFC3339),
			"collected_at": p.CollectedAt.UTC().Format(time.RFC3339),
			"metrics":      string(metrics),
			"entities":     string(entities),
		})
	}

	query, args, err := s.goqu.Insert(s.tablePosts).Rows(rows...).OnConflict(goqu.DoNothing()).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build insert posts query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert posts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *SQLite) QueryPosts(ctx context.Context, filter store.PostFilter) ([]model.Post, error) {
	ds := s.goqu.From(s.tablePosts.As("p")).
		Select(
			goqu.I("p.id"), goqu.I("p.provider"), goqu.I("p.external_id"), goqu.I("p.author_id"),
			goqu.I("p.text"), goqu.I("p.lang"), goqu.I("p.created_at"), goqu.I("p.collected_at"),
			goqu.I("p.metrics"), goqu.I("p.entities"),
		)
	if filter.Provider != "" {
		ds = ds.Where(goqu.I("p.provider").Eq(filter.Provider))
	}

	needsAuthorJoin := filter.AuthorHandle != nil || filter.AuthorExternalID != nil
	if needsAuthorJoin {
		ds = ds.InnerJoin(s.tableAuthors.As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("p.author_id"))))
		if filter.AuthorHandle != nil {
			ds = ds.Where(goqu.I("a.handle").Eq(*filter.AuthorHandle))
		}
		if filter.AuthorExternalID != nil {
			ds = ds.Where(goqu.I("a.external_id").Eq(*filter.AuthorExternalID))
		}
	}
	if filter.AuthorID != nil {
		ds = ds.Where(goqu.I("p.author_id").Eq(*filter.AuthorID))
	}

	if filter.SinceUTC != nil {
		ds = ds.Where(goqu.I("p.created_at").Gte(filter.SinceUTC.UTC().Format(time.RFC3339)))
	}
	if filter.UntilUTC != nil {
		ds = ds.Where(goqu.I("p.created_at").Lte(filter.UntilUTC.UTC().Format(time.RFC3339)))
	}
	if filter.Contains != nil {
		ds = ds.Where(goqu.L("lower(p.text) LIKE ?", "%"+strings.ToLower(*filter.Contains)+"%"))
	}

	if filter.After != nil {
		ts := filter.After.CreatedAt.UTC().Format(time.RFC3339)
		ds = ds.Where(goqu.Or(
			goqu.I("p.created_at").Lt(ts),
			goqu.And(goqu.I("p.created_at").Eq(ts), goqu.I("p.id").Lt(filter.After.ID)),
		))
	}

	ds = ds.Order(goqu.I("p.created_at").Desc(), goqu.I("p.id").Desc()).Limit(uint(filter.Limit))

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query posts query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		var p model.Post
		var lang sql.NullString
		var createdAt, collectedAt string
		if err := rows.Scan(&p.ID, &p.Provider, &p.ExternalID, &p.AuthorID, &p.Text, &lang,
			&createdAt, &collectedAt, &p.Metrics, &p.Entities); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		if lang.Valid {
			p.Lang.Scan(lang.String) //nolint:errcheck
		}
		p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse post created_at: %w", err)
		}
		p.CollectedAt, err = time.Parse(time.RFC3339, collectedAt)
		if err != nil {
			return nil, fmt.Errorf("parse post collected_at: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ─── Fetch jobs ───

func (s *SQLite) CreateFetchJob(ctx context.Context, provider string, sourceID int64, startedAt time.Time) (int64, error) {
	query, args, err := s.goqu.Insert(s.tableJobs).Rows(goqu.Record{
		"provider":   provider,
		"source_id":  sourceID,
		"started_at": startedAt.UTC().Format(time.RFC3339),
		"status":     string(model.JobRunning),
		"stats":      "{}",
	}).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build create fetch job query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("create fetch job: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLite) FinalizeFetchJob(ctx context.Context, jobID int64, status model.JobStatus, finishedAt time.Time, stats []byte) error {
	query, args, err := s.goqu.Update(s.tableJobs).Set(goqu.Record{
		"status":      string(status),
		"finished_at": finishedAt.UTC().Format(time.RFC3339),
		"stats":       string(stats),
	}).Where(goqu.Ex{"id": jobID}).ToSQL()
	if err != nil {
		return fmt.Errorf("build finalize fetch job query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("finalize fetch job: %w", err)
	}
	return nil
}

// ─── Status ───

func (s *SQLite) ListCursors(ctx context.Context, provider, source string) ([]store.CursorView, error) {
	ds := s.goqu.From(s.tableCursors.As("c")).
		InnerJoin(s.tableSources.As("s"), goqu.On(goqu.I("s.id").Eq(goqu.I("c.source_id")))).
		Select(goqu.I("c.provider"), goqu.I("s.descriptor"), goqu.I("c.position"), goqu.I("c.updated_at")).
		Order(goqu.I("c.provider").Asc(), goqu.I("s.descriptor").Asc())

	if provider != "" {
		ds = ds.Where(goqu.I("c.provider").Eq(provider))
	}
	if source != "" {
		ds = ds.Where(goqu.I("s.descriptor").Eq(source))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list cursors query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var out []store.CursorView
	for rows.Next() {
		var v store.CursorView
		var position, updatedAt string
		if err := rows.Scan(&v.Provider, &v.Source, &position, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor row: %w", err)
		}
		var pos struct {
			Cursor *string `json:"cursor"`
		}
		if err := json.Unmarshal([]byte(position), &pos); err != nil {
			return nil, fmt.Errorf("unmarshal cursor position: %w", err)
		}
		v.Cursor = pos.Cursor
		v.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse cursor updated_at: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLite) ListJobs(ctx context.Context, provider, source string, limit int) ([]store.JobView, error) {
	ds := s.goqu.From(s.tableJobs.As("j")).
		InnerJoin(s.tableSources.As("s"), goqu.On(goqu.I("s.id").Eq(goqu.I("j.source_id")))).
		Select(goqu.I("j.id"), goqu.I("j.provider"), goqu.I("s.descriptor"), goqu.I("j.started_at"),
			goqu.I("j.finished_at"), goqu.I("j.status"), goqu.I("j.stats")).
		Order(goqu.I("j.started_at").Desc()).
		Limit(uint(limit))

	if provider != "" {
		ds = ds.Where(goqu.I("j.provider").Eq(provider))
	}
	if source != "" {
		ds = ds.Where(goqu.I("s.descriptor").Eq(source))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list jobs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []store.JobView
	for rows.Next() {
		var v store.JobView
		var startedAt string
		var finishedAt sql.NullString
		var status string
		if err := rows.Scan(&v.ID, &v.Provider, &v.Source, &startedAt, &finishedAt, &status, &v.Stats); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		v.Status = model.JobStatus(status)
		v.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse job started_at: %w", err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(time.RFC3339, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse job finished_at: %w", err)
			}
			v.FinishedAt = &t
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
