package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds fixed-window limiter parameters.
type Config struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
	Prefix      string
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// hitScript increments the window counter and starts the window on the first hit.
// It returns the new count and the remaining window in milliseconds.
const hitScript = `
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

var hitLua = redis.NewScript(hitScript)

// Limiter enforces a per-scope, per-key request budget using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// Allow records one request for key within scope and reports whether it fits the budget.
// When the limiter is disabled every request is allowed without touching Redis.
func (l *Limiter) Allow(ctx context.Context, scope, key string) (Decision, error) {
	if l == nil || !l.config.Enabled {
		return Decision{Allowed: true}, nil
	}

	res, err := hitLua.Run(ctx, l.redis, []string{l.key(scope, key)}, l.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	limit := int64(l.config.MaxRequests)

	d := Decision{Count: count, Remaining: limit - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if count > limit {
		d.RetryAfter = ttl
		return d, ErrRateLimited
	}
	d.Allowed = true
	return d, nil
}

// Reset clears the counter for key within scope.
func (l *Limiter) Reset(ctx context.Context, scope, key string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(scope, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Limit reports the configured budget per window.
func (l *Limiter) Limit() int {
	return l.config.MaxRequests
}

func (l *Limiter) key(scope, key string) string {
	return l.config.Prefix + ":" + scope + ":" + key
}
