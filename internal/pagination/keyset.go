// Package pagination implements the opaque keyset tokens used by the query
// engine to resume a (created_at DESC, id DESC) scan across calls.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sonecdev/sonec/internal/errs"
)

// Key identifies a position in the canonical (created_at DESC, id DESC)
// ordering of posts.
type Key struct {
	CreatedAt time.Time
	ID        int64
}

// EncodeAfterKey produces a URL-safe opaque token for (createdAt, id). The
// encoding is deterministic within a build but is never guaranteed stable
// across versions, so callers must treat it as a black box.
func EncodeAfterKey(createdAt time.Time, id int64) string {
	raw := fmt.Sprintf("%s|%d", createdAt.UTC().Truncate(time.Second).Format(time.RFC3339), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeAfterKey reverses EncodeAfterKey, failing with errs.InvalidToken
// when the token was not produced by this package.
func DecodeAfterKey(token string) (Key, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Key{}, errs.InvalidToken("malformed keyset token")
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Key{}, errs.InvalidToken("malformed keyset token")
	}

	ts, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return Key{}, errs.InvalidToken("malformed keyset token")
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Key{}, errs.InvalidToken("malformed keyset token")
	}

	return Key{CreatedAt: ts.UTC(), ID: id}, nil
}
