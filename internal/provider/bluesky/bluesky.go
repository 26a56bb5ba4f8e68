// Package bluesky implements the provider abstraction against Bluesky's
// AT-Protocol XRPC endpoints: anonymous or app-password-authenticated
// search and author-feed fetches, normalized into the provider package's
// shapes.
package bluesky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/worldline-go/klient"

	"github.com/sonecdev/sonec/internal/errs"
	"github.com/sonecdev/sonec/internal/provider"
	"github.com/sonecdev/sonec/internal/timeutil"
)

const (
	Name = "bluesky"

	anonymousBaseURL     = "https://public.api.bsky.app"
	authenticatedBaseURL = "https://api.bsky.app"
	loginURL             = "https://bsky.social/xrpc/com.atproto.server.createSession"

	defaultPageLimitMax = 100
)

// New is a provider.Factory for the registry's built-ins.
func New() provider.Provider { return &Provider{} }

// Provider implements provider.Provider against Bluesky's XRPC surface.
type Provider struct {
	client    *klient.Client
	baseURL   string
	accessJwt string
}

func capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsCursor:       true,
		SupportsSearchQ:      true,
		SupportsAuthorFilter: true,
		SupportsLangFilter:   false,
		SupportsTimeBounds:   "none",
		SupportsMedia:        false,
		MaxPageLimit:         defaultPageLimitMax,
		DateGranularity:      "second",
	}
}

// Configure resolves credentials (explicit options first, then the
// BSKY_IDENTIFIER / BSKY_APP_PASSWORD|BSKY_PASSWORD environment variables),
// attempts login when credentials are present, and falls back to anonymous
// operation on any non-auth-rejecting login failure.
func (p *Provider) Configure(ctx context.Context, opts provider.Options) (provider.Session, error) {
	client, err := klient.New(
		klient.WithDisableBaseURLCheck(true),
		klient.WithDisableRetry(true),
		klient.WithDisableEnvValues(true),
	)
	if err != nil {
		return provider.Session{}, fmt.Errorf("build http client: %w", err)
	}
	if opts.Transport != nil {
		client.HTTP.Transport = opts.Transport
	}
	if opts.Timeout > 0 {
		client.HTTP.Timeout = opts.Timeout
	}

	p.client = client
	p.baseURL = anonymousBaseURL

	identifier, password := resolveCredentials(opts)

	session := provider.Session{
		Provider:     Name,
		AuthState:    provider.AuthAnonymous,
		Capabilities: capabilities(),
		Defaults:     provider.Defaults{PageLimitMax: defaultPageLimitMax},
	}

	if identifier == "" || password == "" {
		return session, nil
	}

	jwt, err := p.login(ctx, identifier, password)
	if err != nil {
		if errs.As(err, errs.CodeInvalidQuery) {
			return provider.Session{}, err
		}
		session.Warnings = append(session.Warnings, fmt.Sprintf("authentication_failed: %v", err))
		return session, nil
	}

	p.accessJwt = jwt
	p.baseURL = authenticatedBaseURL
	session.AuthState = provider.AuthAuthenticated
	return session, nil
}

func resolveCredentials(opts provider.Options) (string, string) {
	if opts.Identifier != "" && opts.Password != "" {
		return opts.Identifier, opts.Password
	}

	identifier := os.Getenv("BSKY_IDENTIFIER")
	password := os.Getenv("BSKY_APP_PASSWORD")
	if password == "" {
		password = os.Getenv("BSKY_PASSWORD")
	}
	return identifier, password
}

func (p *Provider) login(ctx context.Context, identifier, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		AccessJwt string `json:"accessJwt"`
	}

	resp, err := p.client.HTTP.Do(req)
	if err != nil {
		return "", errs.TemporaryNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.TemporaryNetworkError(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", errs.InvalidQuery("Invalid credentials; use an app password")
	case resp.StatusCode >= 500:
		return "", errs.TemporaryNetworkError(fmt.Errorf("bluesky login returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("bluesky login returned status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if result.AccessJwt == "" {
		return "", fmt.Errorf("login response missing accessJwt")
	}
	return result.AccessJwt, nil
}

// ignoredFilters are the recognized collector filter keys this endpoint
// never honors server-side; the collector enforces them locally instead.
var ignoredFilters = []string{"since_utc", "until_utc", "lang", "domain", "tags"}

// FetchSince dispatches to search or author-feed mode depending on which
// filter key is present, clamps limit to [1, 100], and normalizes the
// response into a Batch.
func (p *Provider) FetchSince(ctx context.Context, cursor *string, limit int, filters provider.Filters) (provider.Batch, error) {
	if p.client == nil {
		return provider.Batch{}, errs.NotConfigured("bluesky provider is not configured")
	}

	pageLimit := limit
	if pageLimit > defaultPageLimitMax {
		pageLimit = defaultPageLimitMax
	}
	if pageLimit < 1 {
		pageLimit = 1
	}

	q, hasQ := filters["q"]
	author, hasAuthor := filters["author"]

	var (
		rawPosts   []rawPost
		nextCursor *string
		err        error
	)

	switch {
	case hasQ && q != "":
		rawPosts, nextCursor, err = p.searchPosts(ctx, q, pageLimit, cursor)
	case hasAuthor && author != "":
		rawPosts, nextCursor, err = p.authorFeed(ctx, author, pageLimit, cursor)
	default:
		return provider.Batch{}, errs.InvalidQuery("filters must include either q or author")
	}
	if err != nil {
		return provider.Batch{}, err
	}

	items := make([]provider.Post, 0, len(rawPosts))
	now := time.Now().UTC()
	for _, rp := range rawPosts {
		post, convErr := rp.normalize(now)
		if convErr != nil {
			continue
		}
		items = append(items, post)
	}

	return provider.Batch{
		Items:          items,
		NextCursor:     nextCursor,
		ReachedUntil:   false,
		IgnoredFilters: ignoredFilters,
		Stats:          map[string]int{"count": len(items)},
	}, nil
}

// authorActor resolves the author filter value (either "handle": ... or
// "external_id": ...-shaped strings encoded by the collector as
// "handle:<h>" / "external_id:<id>") into the XRPC actor parameter.
func authorActor(author string) string {
	switch {
	case strings.HasPrefix(author, "handle:"):
		return strings.TrimPrefix(strings.TrimPrefix(author, "handle:"), "@")
	case strings.HasPrefix(author, "external_id:"):
		return strings.TrimPrefix(author, "external_id:")
	case strings.HasPrefix(author, "@"):
		return strings.TrimPrefix(author, "@")
	default:
		return author
	}
}

func (p *Provider) searchPosts(ctx context.Context, q string, limit int, cursor *string) ([]rawPost, *string, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", strconv.Itoa(limit))
	if cursor != nil {
		params.Set("cursor", *cursor)
	}

	var body struct {
		Posts  []rawPost `json:"posts"`
		Cursor *string   `json:"cursor"`
	}

	authenticated := p.accessJwt != ""
	if err := p.doGet(ctx, "/xrpc/app.bsky.feed.searchPosts", params, &body); err != nil {
		if apiErr, ok := err.(*statusError); ok && apiErr.StatusCode == http.StatusForbidden && !authenticated {
			return nil, nil, errs.InvalidQuery("search requires authentication; provide Bluesky credentials")
		}
		return nil, nil, mapStatusError(err)
	}

	return body.Posts, body.Cursor, nil
}

func (p *Provider) authorFeed(ctx context.Context, author string, limit int, cursor *string) ([]rawPost, *string, error) {
	actor := authorActor(author)
	if actor == "" {
		return nil, nil, errs.InvalidQuery("author filter did not resolve to a usable actor")
	}

	params := url.Values{}
	params.Set("actor", actor)
	params.Set("limit", strconv.Itoa(limit))
	if cursor != nil {
		params.Set("cursor", *cursor)
	}

	var body struct {
		Feed []struct {
			Post rawPost `json:"post"`
		} `json:"feed"`
		Cursor *string `json:"cursor"`
	}

	if err := p.doGet(ctx, "/xrpc/app.bsky.feed.getAuthorFeed", params, &body); err != nil {
		return nil, nil, mapStatusError(err)
	}

	posts := make([]rawPost, 0, len(body.Feed))
	for _, item := range body.Feed {
		posts = append(posts, item.Post)
	}
	return posts, body.Cursor, nil
}

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bluesky returned status %d: %s", e.StatusCode, e.Body)
}

func mapStatusError(err error) error {
	apiErr, ok := err.(*statusError)
	if !ok {
		return errs.TemporaryNetworkError(err)
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0.0
		if apiErr.RetryAfter != "" {
			if v, parseErr := strconv.ParseFloat(apiErr.RetryAfter, 64); parseErr == nil {
				retryAfter = v
			}
		}
		return errs.RateLimited(retryAfter, "bluesky rate limit exceeded")
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return errs.InvalidQuery("bluesky request was rejected: %s", apiErr.Body)
	case apiErr.StatusCode >= 500:
		return errs.TemporaryNetworkError(apiErr)
	case apiErr.StatusCode >= 400:
		return errs.InvalidQuery("bluesky request failed: %s", apiErr.Body)
	default:
		return apiErr
	}
}

func (p *Provider) doGet(ctx context.Context, path string, params url.Values, out any) error {
	u := p.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if p.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+p.accessJwt)
	}

	resp, err := p.client.HTTP.Do(req)
	if err != nil {
		return errs.TemporaryNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.TemporaryNetworkError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return &statusError{StatusCode: resp.StatusCode, Body: string(data), RetryAfter: resp.Header.Get("Retry-After")}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w (body: %s)", err, string(data))
	}
	return nil
}

// rawPost is the wire shape of a single Bluesky feed item.
type rawPost struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Author struct {
		DID         string `json:"did"`
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
	} `json:"record"`
	LikeCount   *int `json:"likeCount"`
	RepostCount *int `json:"repostCount"`
	ReplyCount  *int `json:"replyCount"`
}

// clampNonNegative zeroes out a negative engagement counter rather than
// letting a malformed upstream value reach the metrics column.
func clampNonNegative(n *int) *int {
	if n == nil || *n >= 0 {
		return n
	}
	zero := 0
	return &zero
}

func (rp rawPost) normalize(collectedAt time.Time) (provider.Post, error) {
	createdAt, err := timeutil.ParseUTC(rp.Record.CreatedAt)
	if err != nil {
		return provider.Post{}, err
	}

	handle := ""
	if rp.Author.Handle != "" {
		handle = "@" + rp.Author.Handle
	}

	return provider.Post{
		ExternalID: rp.URI,
		Author: provider.Author{
			ExternalID:  rp.Author.DID,
			Handle:      handle,
			DisplayName: rp.Author.DisplayName,
		},
		Text:        rp.Record.Text,
		CreatedAt:   createdAt,
		CollectedAt: collectedAt,
		Metrics: provider.Metrics{
			LikeCount:   clampNonNegative(rp.LikeCount),
			ReplyCount:  clampNonNegative(rp.ReplyCount),
			RepostCount: clampNonNegative(rp.RepostCount),
		},
		Entities: provider.Entities{
			Hashtags: []string{},
			Mentions: []string{},
			Links:    []string{},
			Media:    []provider.Media{},
		},
	}, nil
}
