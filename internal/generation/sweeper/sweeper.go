// Package sweeper re-polls generating jobs whose clients stopped polling.
// It never decides a job's outcome on its own.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	"github.com/smallbiznis/pearlsonic/internal/generation/domain"
	obslogger "github.com/smallbiznis/pearlsonic/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pearlsonic/internal/observability/metrics"
	"github.com/smallbiznis/pearlsonic/internal/ratelimit"
	"github.com/smallbiznis/pearlsonic/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const workerName = "job_sweeper"

type Config struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

func ProvideConfig(cfg config.Config) Config {
	c := Config{
		Enabled:    cfg.JobSweep.Enabled,
		Interval:   cfg.JobSweep.Interval,
		StaleAfter: cfg.JobSweep.StaleAfter,
		BatchSize:  cfg.JobSweep.BatchSize,
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     Config
	Repo    domain.Repository
	Service domain.Service
	Clock   clock.Clock               `optional:"true"`
	Metrics *obsmetrics.WorkerMetrics `optional:"true"`
	Leaser  *ratelimit.Leaser         `optional:"true"`
}

type Sweeper struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	repo    domain.Repository
	svc     domain.Service
	clock   clock.Clock
	metrics *obsmetrics.WorkerMetrics
	leaser  *ratelimit.Leaser
}

func New(p Params) *Sweeper {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Sweeper{
		db:      p.DB,
		log:     p.Log.Named("generation.sweeper"),
		cfg:     p.Cfg,
		repo:    p.Repo,
		svc:     p.Service,
		clock:   clk,
		metrics: p.Metrics,
		leaser:  p.Leaser,
	}
}

// RunOnce refreshes one batch of stale jobs and returns how many were visited.
// With a leaser only the replica holding the lease sweeps.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.leaser != nil {
		release, held, err := s.leaser.Acquire(ctx, workerName, s.cfg.Interval)
		if err != nil {
			s.metrics.IncError(workerName, err)
			return 0, err
		}
		if !held {
			return 0, nil
		}
		defer release(context.WithoutCancel(ctx))
	}

	start := time.Now()
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := obslogger.WithContext(ctx, s.log).With(zap.String("run_id", runID))
	s.metrics.IncRun(workerName)
	defer func() { s.metrics.ObserveDuration(workerName, time.Since(start)) }()

	cutoff := s.clock.Now().UTC().Add(-s.cfg.StaleAfter)
	jobs, err := s.repo.ListStale(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.metrics.IncError(workerName, err)
		return 0, err
	}

	var runErr error
	processed := 0
	for i := range jobs {
		if ctx.Err() != nil {
			return processed, errors.Join(runErr, ctx.Err())
		}
		job := jobs[i]
		refreshed, err := s.svc.Refresh(ctx, &job)
		if err != nil {
			s.metrics.IncError(workerName, err)
			runErr = errors.Join(runErr, err)
			continue
		}
		processed++
		if refreshed.Status.Terminal() {
			log.Info("stale job settled",
				zap.String("job_id", refreshed.ID.String()),
				zap.String("status", string(refreshed.Status)),
			)
		}
	}
	s.metrics.AddProcessed(workerName, processed)
	if len(jobs) > 0 {
		log.Debug("sweep finished", zap.Int("stale", len(jobs)), zap.Int("processed", processed))
	}
	return processed, runErr
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("job sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
