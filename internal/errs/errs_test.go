package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NotRegistered("bluesky")

	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected errors.Is to match ErrNotRegistered, got %v", err)
	}

	if errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("did not expect match against ErrAlreadyRegistered")
	}
}

func TestErrorUnwrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: timeout")
	err := TemporaryNetworkError(cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable via errors.Is")
	}

	if got := errors.Unwrap(err); got != cause {
		t.Fatalf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited(30, "too many requests")

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected errors.As to succeed")
	}

	if e.RetryAfter != 30 {
		t.Fatalf("RetryAfter = %v, want 30", e.RetryAfter)
	}

	if e.Code != CodeRateLimited {
		t.Fatalf("Code = %v, want %v", e.Code, CodeRateLimited)
	}
}

func TestAsHelper(t *testing.T) {
	err := InvalidArgument("source is required")

	if !As(err, CodeInvalidArgument) {
		t.Fatalf("expected As to report CodeInvalidArgument")
	}

	if As(err, CodeAuthError) {
		t.Fatalf("did not expect As to report CodeAuthError")
	}
}
