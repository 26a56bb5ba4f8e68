package pagination

import (
	"testing"
	"time"
)

func TestEncodeDecodeAfterKeyRoundTrip(t *testing.T) {
	dt := time.Date(2025, 5, 1, 12, 34, 56, 0, time.UTC)

	token := EncodeAfterKey(dt, 123)

	key, err := DecodeAfterKey(token)
	if err != nil {
		t.Fatalf("DecodeAfterKey returned error: %v", err)
	}

	if !key.CreatedAt.Equal(dt) {
		t.Fatalf("CreatedAt = %v, want %v", key.CreatedAt, dt)
	}
	if key.ID != 123 {
		t.Fatalf("ID = %d, want 123", key.ID)
	}
}

func TestDecodeAfterKeyInvalidTokenFails(t *testing.T) {
	if _, err := DecodeAfterKey("not-a-valid-token"); err == nil {
		t.Fatalf("expected error for invalid token")
	}
}

func TestEncodeAfterKeyIsURLSafe(t *testing.T) {
	dt := time.Date(2025, 5, 1, 12, 34, 56, 0, time.UTC)
	token := EncodeAfterKey(dt, 123)

	for _, c := range token {
		if c == '+' || c == '/' || c == '=' {
			t.Fatalf("token contains non URL-safe character %q: %s", c, token)
		}
	}
}
