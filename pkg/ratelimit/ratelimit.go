package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/repairhub/notify/internal/model"
)

// BucketConfig configures one channel's token bucket.
type BucketConfig struct {
	PerSecond float64
	Burst     int
}

// ChannelLimiter holds one token bucket per channel, shared by all workers
// of a process. Acquire blocks rather than drops: starvation shows up as
// rising queue depth, never as silent message loss.
type ChannelLimiter struct {
	mu       sync.RWMutex
	limiters map[model.Channel]*rate.Limiter
}

func NewChannelLimiter(buckets map[model.Channel]BucketConfig) *ChannelLimiter {
	limiters := make(map[model.Channel]*rate.Limiter, len(buckets))
	for ch, cfg := range buckets {
		// A zero or unset bucket means unlimited. A literal zero limiter
		// would reject every Acquire instead.
		if cfg.PerSecond <= 0 || cfg.Burst <= 0 {
			continue
		}
		limiters[ch] = rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)
	}
	return &ChannelLimiter{limiters: limiters}
}

// Acquire blocks until a token is available for the channel or the context
// is cancelled. Channels without a configured bucket are unlimited.
func (l *ChannelLimiter) Acquire(ctx context.Context, ch model.Channel) error {
	l.mu.RLock()
	limiter, ok := l.limiters[ch]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", ch, err)
	}
	return nil
}

// SetLimit adjusts a channel's bucket at runtime, creating it if absent. A
// zero config removes the bucket, making the channel unlimited again.
func (l *ChannelLimiter) SetLimit(ch model.Channel, cfg BucketConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg.PerSecond <= 0 || cfg.Burst <= 0 {
		delete(l.limiters, ch)
		return
	}
	if limiter, ok := l.limiters[ch]; ok {
		limiter.SetLimit(rate.Limit(cfg.PerSecond))
		limiter.SetBurst(cfg.Burst)
		return
	}
	l.limiters[ch] = rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)
}
