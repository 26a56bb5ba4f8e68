package query

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sonecdev/sonec/internal/store"
	"github.com/sonecdev/sonec/internal/store/model"
)

// fakeStore is a minimal in-memory store.Store backing only what the query
// package exercises: QueryPosts over a fixed seeded fixture.
type fakeStore struct {
	mu    sync.Mutex
	posts []model.Post

	authorHandle     map[int64]string
	authorExternalID map[int64]string
}

func (f *fakeStore) UpsertProvider(ctx context.Context, name, version string, capabilities []byte) error {
	return nil
}
func (f *fakeStore) GetOrCreateSource(ctx context.Context, providerName, descriptor, label string) (model.Source, error) {
	return model.Source{}, nil
}
func (f *fakeStore) GetCursor(ctx context.Context, providerName string, sourceID int64) (*model.Cursor, error) {
	return nil, nil
}
func (f *fakeStore) UpsertCursor(ctx context.Context, providerName string, sourceID int64, cursorToken *string, updatedAt time.Time) error {
	return nil
}
func (f *fakeStore) UpsertAuthors(ctx context.Context, authors []model.Author) (map[string]int64, error) {
	return nil, nil
}
func (f *fakeStore) ExistingExternalIDs(ctx context.Context, providerName string, externalIDs []string) (map[string]bool, error) {
	return nil, nil
}
func (f *fakeStore) InsertPosts(ctx context.Context, posts []model.Post) (int, error) {
	return 0, nil
}

func (f *fakeStore) QueryPosts(ctx context.Context, filter store.PostFilter) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]model.Post, 0, len(f.posts))
	for _, p := range f.posts {
		if filter.Provider != "" && p.Provider != filter.Provider {
			continue
		}
		if filter.SinceUTC != nil && p.CreatedAt.Before(*filter.SinceUTC) {
			continue
		}
		if filter.UntilUTC != nil && p.CreatedAt.After(*filter.UntilUTC) {
			continue
		}
		if filter.AuthorHandle != nil && f.authorHandle[p.AuthorID] != *filter.AuthorHandle {
			continue
		}
		if filter.AuthorExternalID != nil && f.authorExternalID[p.AuthorID] != *filter.AuthorExternalID {
			continue
		}
		if filter.AuthorID != nil && p.AuthorID != *filter.AuthorID {
			continue
		}
		if filter.Contains != nil && !containsFold(p.Text, *filter.Contains) {
			continue
		}
		if filter.After != nil {
			k := filter.After
			if !(p.CreatedAt.Before(k.CreatedAt) || (p.CreatedAt.Equal(k.CreatedAt) && p.ID < k.ID)) {
				continue
			}
		}
		matched = append(matched, p)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func containsFold(haystack, needle string) bool {
	hl, nl := []rune(haystack), []rune(needle)
	toLower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			out[i] = r
		}
		return out
	}
	hl, nl = toLower(hl), toLower(nl)
	for i := 0; i+len(nl) <= len(hl); i++ {
		if string(hl[i:i+len(nl)]) == string(nl) {
			return true
		}
	}
	return len(nl) == 0
}

func (f *fakeStore) CreateFetchJob(ctx context.Context, providerName string, sourceID int64, startedAt time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeStore) FinalizeFetchJob(ctx context.Context, jobID int64, status model.JobStatus, finishedAt time.Time, stats []byte) error {
	return nil
}
func (f *fakeStore) ListCursors(ctx context.Context, providerName, source string) ([]store.CursorView, error) {
	return nil, nil
}
func (f *fakeStore) ListJobs(ctx context.Context, providerName, source string, limit int) ([]store.JobView, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)

func seedStore() *fakeStore {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	mk := func(idx int, authorID int64, text string) model.Post {
		return model.Post{
			ID:          int64(idx),
			Provider:    "bluesky",
			ExternalID:  "at://example/post/" + string(rune('0'+idx)),
			AuthorID:    authorID,
			Text:        text,
			CreatedAt:   base.Add(-time.Duration(idx) * time.Minute),
			CollectedAt: base.Add(time.Duration(idx) * time.Minute),
		}
	}

	return &fakeStore{
		posts: []model.Post{
			mk(1, 1, "first hello world"),
			mk(2, 1, "second apples and oranges"),
			mk(3, 2, "third hello again"),
			mk(4, 2, "fourth bananas"),
			mk(5, 1, "fifth HELLO upper"),
		},
		authorHandle:     map[int64]string{1: "@alice", 2: "@bob"},
		authorExternalID: map[int64]string{1: "did:plc:1", 2: "did:plc:2"},
	}
}

func TestQueryPostsKeysetPagination(t *testing.T) {
	st := seedStore()

	page1, err := Run(context.Background(), st, Params{
		Entity:   "posts",
		Provider: "bluesky",
		Limit:    2,
		Project:  []string{"id", "created_at", "text"},
	})
	if err != nil {
		t.Fatalf("page1 Run returned error: %v", err)
	}
	if page1.Count != 2 {
		t.Fatalf("page1 Count = %d, want 2", page1.Count)
	}
	if page1.NextAfterKey == nil {
		t.Fatalf("page1 NextAfterKey = nil, want a token")
	}

	page2, err := Run(context.Background(), st, Params{
		Entity:   "posts",
		Provider: "bluesky",
		Limit:    2,
		AfterKey: *page1.NextAfterKey,
		Project:  []string{"id", "created_at", "text"},
	})
	if err != nil {
		t.Fatalf("page2 Run returned error: %v", err)
	}
	if page2.Count != 2 {
		t.Fatalf("page2 Count = %d, want 2", page2.Count)
	}

	page3, err := Run(context.Background(), st, Params{
		Entity:   "posts",
		Provider: "bluesky",
		Limit:    2,
		AfterKey: *page2.NextAfterKey,
		Project:  []string{"id", "created_at", "text"},
	})
	if err != nil {
		t.Fatalf("page3 Run returned error: %v", err)
	}
	if page3.Count != 1 {
		t.Fatalf("page3 Count = %d, want 1", page3.Count)
	}
	if page3.NextAfterKey != nil {
		t.Fatalf("page3 NextAfterKey = %v, want nil", *page3.NextAfterKey)
	}
}

func TestQueryPostsFiltersAndProjection(t *testing.T) {
	st := seedStore()

	since := time.Date(2025, 5, 1, 11, 56, 0, 0, time.UTC)
	page, err := Run(context.Background(), st, Params{
		Entity:   "posts",
		Provider: "bluesky",
		SinceUTC: since.Format(time.RFC3339),
		Author:   "@alice",
		Contains: "hello",
		Limit:    10,
		Project:  []string{"id", "text", "created_at"},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if page.Count < 1 {
		t.Fatalf("Count = %d, want >= 1", page.Count)
	}
	for _, item := range page.Items {
		if _, ok := item["id"]; !ok {
			t.Fatalf("item missing id: %v", item)
		}
		if _, ok := item["text"]; !ok {
			t.Fatalf("item missing text: %v", item)
		}
		if _, ok := item["created_at"]; !ok {
			t.Fatalf("item missing created_at: %v", item)
		}
	}
}

func TestQueryAuthorFilterVariants(t *testing.T) {
	st := seedStore()

	pageByExternalID, err := Run(context.Background(), st, Params{
		Entity:   "posts",
		Provider: "bluesky",
		Author:   "did:plc:1",
		Limit:    50,
		Project:  []string{"id", "author_id"},
	})
	if err != nil {
		t.Fatalf("Run (external_id) returned error: %v", err)
	}
	if pageByExternalID.Count < 1 {
		t.Fatalf("external_id filter Count = %d, want >= 1", pageByExternalID.Count)
	}

	pageByNumericID, err := Run(context.Background(), st, Params{
		Entity:   "posts",
		Provider: "bluesky",
		Author:   "1",
		Limit:    50,
		Project:  []string{"id", "author_id"},
	})
	if err != nil {
		t.Fatalf("Run (numeric id) returned error: %v", err)
	}
	if pageByNumericID.Count < 1 {
		t.Fatalf("numeric id filter Count = %d, want >= 1", pageByNumericID.Count)
	}
}

func TestQueryRejectsUnsupportedEntity(t *testing.T) {
	st := seedStore()
	if _, err := Run(context.Background(), st, Params{Entity: "authors"}); err == nil {
		t.Fatalf("expected error for unsupported entity")
	}
}

func TestQueryProjectionFallsBackWhenNoneRecognized(t *testing.T) {
	st := seedStore()
	page, err := Run(context.Background(), st, Params{
		Entity:   "posts",
		Provider: "bluesky",
		Limit:    1,
		Project:  []string{"bogus_field"},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(page.Items))
	}
	for _, f := range defaultProjection {
		if _, ok := page.Items[0][f]; !ok {
			t.Fatalf("expected default projection field %q present", f)
		}
	}
}
