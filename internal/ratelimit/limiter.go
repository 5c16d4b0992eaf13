package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/smallbiznis/pearlsonic/internal/clock"
	obsmetrics "github.com/smallbiznis/pearlsonic/internal/observability/metrics"
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds up and never returns less than one.
func (r Result) RetryAfterSeconds() int {
	secs := int(math.Ceil(r.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// LimitExceededError is returned to HTTP handlers for denied requests.
type LimitExceededError struct {
	Class      Class
	RetryAfter int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Class, e.RetryAfter)
}

type Limiter struct {
	store    Store
	policies map[Class]Policy
	clock    clock.Clock
	metrics  *obsmetrics.Metrics
}

func NewLimiter(store Store, policies map[Class]Policy, clk clock.Clock, metrics *obsmetrics.Metrics) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	return &Limiter{store: store, policies: policies, clock: clk, metrics: metrics}
}

func (l *Limiter) Policy(class Class) Policy {
	if p, ok := l.policies[normalizeClass(class)]; ok {
		return p
	}
	return l.policies[ClassGeneral]
}

// Check counts one request for key under class. A store failure allows the
// request and returns the error for logging.
func (l *Limiter) Check(ctx context.Context, class Class, key string) (Result, error) {
	class = normalizeClass(class)
	policy := l.Policy(class)
	key = strings.TrimSpace(key)
	if key == "" {
		key = UnknownClient
	}

	count, resetAt, err := l.store.Hit(ctx, fmt.Sprintf("ratelimit:%s:%s", class, key), policy.Window)
	if err != nil {
		l.metrics.RecordRateLimitAllowed(ctx, string(class))
		return Result{
			Allowed:   true,
			Limit:     policy.Max,
			Remaining: policy.Max,
			ResetAt:   l.clock.Now().Add(policy.Window),
		}, err
	}

	result := Result{
		Allowed:   count <= policy.Max,
		Limit:     policy.Max,
		Remaining: policy.Max - count,
		ResetAt:   resetAt,
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if !result.Allowed {
		result.RetryAfter = resetAt.Sub(l.clock.Now())
		l.metrics.RecordRateLimitDenied(ctx, string(class), "window_exhausted")
		return result, nil
	}
	l.metrics.RecordRateLimitAllowed(ctx, string(class))
	return result, nil
}
