package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	obsmetrics "github.com/smallbiznis/pearlsonic/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLeaser),
	fx.Provide(Provide),
)

type Params struct {
	fx.In

	Lifecycle     fx.Lifecycle
	Cfg           config.Config
	Log           *zap.Logger
	Redis         *redis.Client             `optional:"true"`
	Clock         clock.Clock               `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
	WorkerMetrics *obsmetrics.WorkerMetrics `optional:"true"`
}

// Provide returns nil when rate limiting is disabled. The in-memory store
// gets a janitor bound to the app lifecycle.
func Provide(p Params) *Limiter {
	cfg := p.Cfg.RateLimit
	if !cfg.Enabled {
		return nil
	}
	log := p.Log.Named("ratelimit")
	policies := PoliciesFromConfig(cfg)

	if store := NewRedisStore(p.Redis); store != nil {
		log.Info("rate limiting backed by redis")
		return NewLimiter(store, policies, p.Clock, p.ObsMetrics)
	}

	store := NewMemoryStore(p.Clock)
	janitor := NewJanitor(store, cfg.SweepInterval, cfg.RetentionWindow, p.Log, p.WorkerMetrics)
	var cancel context.CancelFunc
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, c := context.WithCancel(context.Background())
			cancel = c
			go janitor.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
	return NewLimiter(store, policies, p.Clock, p.ObsMetrics)
}
