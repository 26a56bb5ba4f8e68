// Package timeutil normalizes timestamps to UTC and parses the relative
// time-window expressions accepted by the collector's window option, the
// way the teacher's gateway normalizes provider rate-limit
// windows with str2duration.
package timeutil

import (
	"strings"
	"time"

	"github.com/sonecdev/sonec/internal/errs"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// ParseUTC accepts an RFC 3339 / ISO 8601 string, including a trailing "Z",
// and returns a UTC time. A naive string without a zone offset is assumed
// to already be UTC, mirroring the original provider's parse_utc. An empty
// string returns the zero time and a nil error, so callers can treat
// "absent" (zero time) and "malformed" (error) differently.
func ParseUTC(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, nil
	}

	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		hasZone := strings.Contains(layout, "Z07:00")
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if !hasZone {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		}
		return t.UTC(), nil
	}

	return time.Time{}, errs.InvalidArgument("invalid timestamp: %q", value)
}

// ToRFC3339Z formats t as second-precision RFC 3339 with a literal "Z"
// suffix rather than "+00:00", matching the wire format used for cursors
// and keyset tokens.
func ToRFC3339Z(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// ParseWindow parses a Go-style duration string ("24h", "15m") via
// str2duration, additionally accepting day ("d") and week ("w") units the way
// operators commonly specify collection windows on the command line.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errs.InvalidArgument("empty duration")
	}

	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errs.InvalidArgument("invalid duration %q: %v", s, err)
	}
	return d, nil
}
