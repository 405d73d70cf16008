package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check. Limit, Remaining and
// ResetAt are populated on every outcome so the gate can surface them as
// response headers whether the request is admitted or denied.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	Unlimited bool
}

// Store is the window-counter backend. Incr atomically increments the
// counter for key within the window that contains now and returns the
// post-increment value; the counter must expire at the window boundary.
// Atomicity of increment-and-read is the store's contract — the limiter
// never read-then-writes.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, resetAt time.Time, err error)
}
