package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/sonecdev/sonec/internal/errs"
	"github.com/sonecdev/sonec/internal/provider"
)

type fakeRoundTripper struct {
	handle func(*http.Request) (*http.Response, error)
}

func (f fakeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f.handle(req)
}

func jsonResponse(status int, body any) *http.Response {
	data, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func rawTestPost(idx int) map[string]any {
	return map[string]any{
		"uri": "at://alice.bsky.social/post/" + strconv.Itoa(idx),
		"cid": "cid-" + strconv.Itoa(idx),
		"author": map[string]any{
			"did":         "did:plc:alice",
			"handle":      "alice.bsky.social",
			"displayName": "Alice",
		},
		"record": map[string]any{
			"text":      "hello world",
			"createdAt": "2025-05-01T12:00:00Z",
		},
		"likeCount": 1,
	}
}

func TestConfigureAnonymousWithoutCredentials(t *testing.T) {
	p := &Provider{}
	session, err := p.Configure(context.Background(), provider.Options{
		Transport: fakeRoundTripper{handle: func(r *http.Request) (*http.Response, error) {
			t.Fatalf("unexpected request during anonymous configure: %s", r.URL)
			return nil, nil
		}},
	})
	if err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}
	if session.AuthState != provider.AuthAnonymous {
		t.Fatalf("AuthState = %v, want anonymous", session.AuthState)
	}
}

func TestFetchSinceSearchMode(t *testing.T) {
	p := &Provider{}
	_, err := p.Configure(context.Background(), provider.Options{
		Transport: fakeRoundTripper{handle: func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/xrpc/app.bsky.feed.searchPosts" {
				t.Fatalf("unexpected path: %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("q"); got != "hello" {
				t.Fatalf("q = %q, want hello", got)
			}
			return jsonResponse(200, map[string]any{
				"posts":  []any{rawTestPost(1), rawTestPost(2)},
				"cursor": "next-1",
			}), nil
		}},
	})
	if err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	batch, err := p.FetchSince(context.Background(), nil, 2, provider.Filters{"q": "hello"})
	if err != nil {
		t.Fatalf("FetchSince returned error: %v", err)
	}
	if batch.NextCursor == nil || *batch.NextCursor != "next-1" {
		t.Fatalf("NextCursor = %v, want next-1", batch.NextCursor)
	}
	if len(batch.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(batch.Items))
	}
	if batch.Items[0].Author.ExternalID != "did:plc:alice" {
		t.Fatalf("Author.ExternalID = %q, want did:plc:alice", batch.Items[0].Author.ExternalID)
	}
	if batch.Items[0].CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should not be zero")
	}
}

func TestFetchSinceAuthorFeedByHandle(t *testing.T) {
	p := &Provider{}
	_, err := p.Configure(context.Background(), provider.Options{
		Transport: fakeRoundTripper{handle: func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/xrpc/app.bsky.feed.getAuthorFeed" {
				t.Fatalf("unexpected path: %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("actor"); got != "alice.bsky.social" {
				t.Fatalf("actor = %q, want alice.bsky.social", got)
			}
			return jsonResponse(200, map[string]any{
				"feed":   []any{map[string]any{"post": rawTestPost(10)}},
				"cursor": nil,
			}), nil
		}},
	})
	if err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	batch, err := p.FetchSince(context.Background(), nil, 5, provider.Filters{"author": "handle:@alice.bsky.social"})
	if err != nil {
		t.Fatalf("FetchSince returned error: %v", err)
	}
	if len(batch.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(batch.Items))
	}
	if batch.Items[0].Author.Handle != "@alice.bsky.social" {
		t.Fatalf("Author.Handle = %q, want @alice.bsky.social", batch.Items[0].Author.Handle)
	}
}

func TestFetchSinceAuthorFeedByExternalID(t *testing.T) {
	p := &Provider{}
	_, err := p.Configure(context.Background(), provider.Options{
		Transport: fakeRoundTripper{handle: func(r *http.Request) (*http.Response, error) {
			if got := r.URL.Query().Get("actor"); got != "did:plc:alice" {
				t.Fatalf("actor = %q, want did:plc:alice", got)
			}
			return jsonResponse(200, map[string]any{
				"feed":   []any{map[string]any{"post": rawTestPost(1)}},
				"cursor": nil,
			}), nil
		}},
	})
	if err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	batch, err := p.FetchSince(context.Background(), nil, 1, provider.Filters{"author": "external_id:did:plc:alice"})
	if err != nil {
		t.Fatalf("FetchSince returned error: %v", err)
	}
	if len(batch.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(batch.Items))
	}
}

func TestFetchSinceInvalidFiltersFails(t *testing.T) {
	p := &Provider{}
	_, err := p.Configure(context.Background(), provider.Options{
		Transport: fakeRoundTripper{handle: func(r *http.Request) (*http.Response, error) {
			return jsonResponse(500, nil), nil
		}},
	})
	if err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	_, err = p.FetchSince(context.Background(), nil, 10, provider.Filters{})
	if !errs.As(err, errs.CodeInvalidQuery) {
		t.Fatalf("expected InvalidQuery, got %v", err)
	}
}

func TestFetchSinceSearchForbiddenWithoutAuthIsInvalidQuery(t *testing.T) {
	p := &Provider{}
	_, err := p.Configure(context.Background(), provider.Options{
		Transport: fakeRoundTripper{handle: func(r *http.Request) (*http.Response, error) {
			return jsonResponse(403, map[string]any{"error": "Forbidden"}), nil
		}},
	})
	if err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	_, err = p.FetchSince(context.Background(), nil, 5, provider.Filters{"q": "hello"})
	if !errs.As(err, errs.CodeInvalidQuery) {
		t.Fatalf("expected InvalidQuery, got %v", err)
	}
}

func TestConfigureAuthenticatesAndUsesBearerToken(t *testing.T) {
	p := &Provider{}
	_, err := p.Configure(context.Background(), provider.Options{
		Identifier: "user@example.com",
		Password:   "app-pass",
		Transport: fakeRoundTripper{handle: func(r *http.Request) (*http.Response, error) {
			if r.URL.Path == "/xrpc/com.atproto.server.createSession" {
				return jsonResponse(200, map[string]any{"accessJwt": "TESTTOKEN"}), nil
			}
			if r.URL.Path == "/xrpc/app.bsky.feed.searchPosts" {
				if got := r.Header.Get("Authorization"); got != "Bearer TESTTOKEN" {
					t.Fatalf("Authorization = %q, want Bearer TESTTOKEN", got)
				}
				return jsonResponse(200, map[string]any{"posts": []any{rawTestPost(1)}, "cursor": nil}), nil
			}
			t.Fatalf("unexpected path: %s", r.URL.Path)
			return nil, nil
		}},
	})
	if err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}

	batch, err := p.FetchSince(context.Background(), nil, 1, provider.Filters{"q": "hello"})
	if err != nil {
		t.Fatalf("FetchSince returned error: %v", err)
	}
	if len(batch.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(batch.Items))
	}
}

func TestConfigureLoginInvalidCredentialsFails(t *testing.T) {
	p := &Provider{}
	_, err := p.Configure(context.Background(), provider.Options{
		Identifier: "user@example.com",
		Password:   "wrong",
		Transport: fakeRoundTripper{handle: func(r *http.Request) (*http.Response, error) {
			return jsonResponse(401, map[string]any{"error": "AuthenticationRequired"}), nil
		}},
	})
	if !errs.As(err, errs.CodeInvalidQuery) {
		t.Fatalf("expected InvalidQuery, got %v", err)
	}
}
