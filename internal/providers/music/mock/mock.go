// Package mock provides an in-process generation vendor for local
// development, plus a gomock double of the adapter contract for tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
)

const Name = "mock"

type job struct {
	submittedAt time.Time
	title       string
}

// Adapter completes every job once latency has elapsed since submission.
type Adapter struct {
	latency time.Duration
	clock   clock.Clock

	mu   sync.Mutex
	jobs map[string]job
}

func New(latency time.Duration, clk clock.Clock) *Adapter {
	if latency <= 0 {
		latency = 20 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Adapter{latency: latency, clock: clk, jobs: map[string]job{}}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Limits() domain.DurationLimits {
	return domain.DurationLimits{MinMs: 3_000, MaxMs: 600_000}
}

func (a *Adapter) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	now := a.clock.Now()
	ref := "mock_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String())

	a.mu.Lock()
	a.jobs[ref] = job{submittedAt: now, title: titleFor(req.Genre, req.Mood)}
	a.mu.Unlock()

	return &domain.Submission{Ref: ref, EstimatedTimeSec: int(a.latency.Round(time.Second) / time.Second)}, nil
}

func (a *Adapter) GetStatus(ctx context.Context, ref string) (*domain.StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	a.mu.Lock()
	j, ok := a.jobs[ref]
	a.mu.Unlock()
	if !ok {
		// Jobs do not survive a restart of the process.
		return &domain.StatusReport{Status: domain.StatusUnknown}, nil
	}

	elapsed := a.clock.Now().Sub(j.submittedAt)
	if elapsed >= a.latency {
		return &domain.StatusReport{
			Status:   domain.StatusCompleted,
			Progress: 100,
			AudioURL: "https://example.com/mock/" + ref + ".mp3",
			CoverURL: "https://example.com/mock/" + ref + ".jpg",
			Title:    j.title,
		}, nil
	}
	progress := int(elapsed * 100 / a.latency)
	return &domain.StatusReport{Status: domain.StatusGenerating, Progress: domain.ClampProgress(progress)}, nil
}

func titleFor(genre, mood string) string {
	genre = strings.TrimSpace(genre)
	mood = strings.TrimSpace(mood)
	switch {
	case genre != "" && mood != "":
		return genre + " - " + mood
	case genre != "":
		return genre
	case mood != "":
		return mood
	default:
		return "AI Generated Song"
	}
}
