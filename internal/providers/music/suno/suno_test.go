package suno

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	adapter, err := New(Config{APIKey: "sk_test", BaseURL: srv.URL + "/"}, srv.Client())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestSubmitSendsStyledPromptInSeconds(t *testing.T) {
	var got generateRequest
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "job_1", "estimated_time": 45})
	})

	sub, err := adapter.Submit(context.Background(), domain.SubmitRequest{
		Prompt:       "sunrise",
		DurationMs:   90_500,
		Genre:        "Pop",
		Mood:         "Happy",
		Instrumental: true,
		OutputFormat: domain.FormatMP3128,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Ref != "job_1" || sub.EstimatedTimeSec != 45 {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if got.Prompt != "sunrise, Pop style, Happy mood" {
		t.Fatalf("unexpected prompt %q", got.Prompt)
	}
	if got.Duration != 91 || got.Format != "mp3" || !got.MakeInstrumental {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestSubmitWithoutIDIsUnavailable(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"estimated_time": 10})
	})
	_, err := adapter.Submit(context.Background(), domain.SubmitRequest{Prompt: "x", DurationMs: 30_000})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSubmitUpstreamFailure(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"quota"}`, http.StatusTooManyRequests)
	})
	_, err := adapter.Submit(context.Background(), domain.SubmitRequest{Prompt: "x", DurationMs: 30_000})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestGetStatusMapping(t *testing.T) {
	cases := []struct {
		vendor   string
		progress float64
		want     domain.Status
		wantProg int
	}{
		{vendor: "queued", progress: 0, want: domain.StatusGenerating, wantProg: 0},
		{vendor: "streaming", progress: 140, want: domain.StatusGenerating, wantProg: 100},
		{vendor: "complete", progress: 80, want: domain.StatusCompleted, wantProg: 100},
		{vendor: "error", progress: 20, want: domain.StatusFailed, wantProg: 20},
		{vendor: "mystery", progress: 20, want: domain.StatusUnknown, wantProg: 20},
	}
	for _, tc := range cases {
		t.Run(tc.vendor, func(t *testing.T) {
			adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/generate/job_9" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status":    tc.vendor,
					"progress":  tc.progress,
					"audio_url": "https://cdn.example/a.mp3",
					"title":     "Song",
				})
			})
			report, err := adapter.GetStatus(context.Background(), "job_9")
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if report.Status != tc.want || report.Progress != tc.wantProg {
				t.Fatalf("expected %s/%d, got %s/%d", tc.want, tc.wantProg, report.Status, report.Progress)
			}
			if tc.want == domain.StatusFailed && report.ErrorMessage == "" {
				t.Fatalf("expected failure message")
			}
		})
	}
}
