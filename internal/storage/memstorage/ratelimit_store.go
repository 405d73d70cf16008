package memstorage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/makkenzo/apiguard/internal/domain/ratelimit"
)

// RateLimitStore is the in-memory fixed-window counter backend. The mutex
// provides the same increment-and-read atomicity Redis INCR does.
type RateLimitStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{counters: make(map[string]int64)}
}

var _ ratelimit.Store = (*RateLimitStore)(nil)

func (s *RateLimitStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	windowStart := now.UTC().Truncate(window)
	resetAt := windowStart.Add(window)
	counterKey := fmt.Sprintf("%s:%d", key, windowStart.Unix())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey]++
	return s.counters[counterKey], resetAt, nil
}
