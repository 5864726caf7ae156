// Package ratelimit throttles requests per client key. The in-memory limiter
// is a token bucket per key; the Redis limiter is a fixed window shared by
// every API replica.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the next request will be admitted.
	ResetAt time.Time
}

// RetryAfter is the wait until ResetAt, rounded up to whole seconds, never
// less than one.
func (d Decision) RetryAfter(now time.Time) int {
	wait := d.ResetAt.Sub(now)
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
