package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// Redis is a fixed-window limiter: at most limit requests per key per window.
type Redis struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ Limiter = (*Redis)(nil)

// NewRedis connects to addr. The client is closed by Close.
func NewRedis(addr, password string, db, limit int, window time.Duration) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("ratelimit: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedis(client, limit, window), nil
}

func newRedis(client redis.Scripter, limit int, window time.Duration) *Redis {
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{
		client: client,
		prefix: "coursedesk:ratelimit:",
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	if r.limit <= 0 {
		return Decision{Allowed: true, Limit: r.limit, Remaining: r.limit}, nil
	}
	result, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, err
	}
	return decide(result, r.limit, r.now())
}

// Close releases the underlying client when it owns one.
func (r *Redis) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Ping checks the connection; used at startup.
func (r *Redis) Ping(ctx context.Context) error {
	if c, ok := r.client.(interface {
		Ping(context.Context) *redis.StatusCmd
	}); ok {
		return c.Ping(ctx).Err()
	}
	return nil
}

func decide(result any, limit int, now time.Time) (Decision, error) {
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return Decision{}, errors.New("ratelimit: unexpected redis response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return Decision{}, errors.New("ratelimit: invalid redis counter")
	}
	ttlMillis, _ := values[1].(int64)
	resetAt := now
	if ttlMillis > 0 {
		resetAt = now.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
