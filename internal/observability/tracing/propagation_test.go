package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeErrorRedactsSecrets(t *testing.T) {
	err := SafeError(errors.New("upstream rejected Bearer abc.def-123 for jane@example.com"))
	got := err.Error()
	if got != "upstream rejected Bearer [redacted] for [email]" {
		t.Fatalf("unexpected redaction: %q", got)
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/music/generate"),
		attribute.String("http.request.header.authorization", "Bearer x"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
}

func TestWrapHTTPClientKeepsRequestIntact(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := WrapHTTPClient(srv.Client())
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Key test")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if gotAuth != "Key test" {
		t.Fatalf("expected auth header forwarded, got %q", gotAuth)
	}
}
