package ratelimit

import (
	"context"
	"time"

	obsmetrics "github.com/smallbiznis/pearlsonic/internal/observability/metrics"
	"go.uber.org/zap"
)

const janitorWorker = "rate_limit_janitor"

// Janitor evicts idle in-memory windows.
type Janitor struct {
	store     *MemoryStore
	interval  time.Duration
	retention time.Duration
	log       *zap.Logger
	metrics   *obsmetrics.WorkerMetrics
}

func NewJanitor(store *MemoryStore, interval, retention time.Duration, log *zap.Logger, metrics *obsmetrics.WorkerMetrics) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &Janitor{
		store:     store,
		interval:  interval,
		retention: retention,
		log:       log.Named("ratelimit.janitor"),
		metrics:   metrics,
	}
}

func (j *Janitor) RunOnce() int {
	start := time.Now()
	j.metrics.IncRun(janitorWorker)
	removed := j.store.Sweep(j.retention)
	j.metrics.AddProcessed(janitorWorker, removed)
	j.metrics.ObserveDuration(janitorWorker, time.Since(start))
	if removed > 0 {
		j.log.Debug("evicted idle rate limit windows", zap.Int("removed", removed), zap.Int("remaining", j.store.Len()))
	}
	return removed
}

func (j *Janitor) RunForever(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}
