package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes the lease only while it still carries our token.
const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrLeaseUnavailable = errors.New("lease store not configured")

// Leaser hands out short redis leases so periodic work runs on one replica
// at a time.
type Leaser struct {
	client *redis.Client
	script *redis.Script
}

// NewLeaser returns nil without a redis client.
func NewLeaser(client *redis.Client) *Leaser {
	if client == nil {
		return nil
	}
	return &Leaser{client: client, script: redis.NewScript(leaseReleaseScript)}
}

// Acquire takes the lease named key for ttl. When held is false another
// replica owns it. release is always safe to call.
func (l *Leaser) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), held bool, err error) {
	noop := func(context.Context) {}
	if l == nil || l.client == nil {
		return noop, false, ErrLeaseUnavailable
	}
	if key == "" || ttl <= 0 {
		return noop, false, errors.New("lease key and ttl are required")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, "lease:"+key, token, ttl).Result()
	if err != nil || !ok {
		return noop, false, err
	}
	return func(ctx context.Context) {
		_ = l.script.Run(ctx, l.client, []string{"lease:" + key}, token).Err()
	}, true, nil
}
