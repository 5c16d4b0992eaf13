package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pearlsonic/internal/config"
)

const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

// RedisStore shares windows across replicas.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisClient returns nil when no address is configured.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RateLimit.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RateLimit.RedisPassword),
		DB:       cfg.RateLimit.RedisDB,
	})
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(fixedWindowScript),
	}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	if s == nil || s.client == nil {
		return 0, time.Time{}, errors.New("rate limit store not configured")
	}
	if window <= 0 {
		return 0, time.Time{}, errors.New("rate limit window must be positive")
	}

	res, err := s.script.Run(ctx, s.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(res) < 2 {
		return 0, time.Time{}, errors.New("invalid rate limit script response")
	}

	count := castToInt(res[0])
	ttl := time.Duration(castToInt(res[1])) * time.Millisecond
	return int(count), time.Now().Add(ttl), nil
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
