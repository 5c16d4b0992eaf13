package context

import (
	"context"
	"testing"
)

func TestRequestAndUserIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithUserID(ctx, "42")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if got := UserIDFromContext(ctx); got != "42" {
		t.Fatalf("expected 42, got %q", got)
	}
}

func TestBlankValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	if got := UserIDFromContext(nil); got != "" { //nolint:staticcheck
		t.Fatalf("expected empty user id, got %q", got)
	}
}
