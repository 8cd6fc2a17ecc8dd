package ratelimit

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/saiset-co/kodespace/types"
)

type tokenBucketEntry struct {
	limiter  *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// TokenBucket refills limit tokens evenly over window with a burst of limit,
// so no boundary allows more than the configured rate.
type TokenBucket struct {
	logger  types.Logger
	metrics types.MetricsManager
	now     func() time.Time
	entries map[string]*tokenBucketEntry
	mu      sync.Mutex
}

func NewTokenBucket(logger types.Logger, opts ...Option) *TokenBucket {
	o := buildOptions(opts)

	return &TokenBucket{
		logger:  logger,
		metrics: o.metrics,
		now:     o.now,
		entries: make(map[string]*tokenBucketEntry),
	}
}

func (tb *TokenBucket) IsRateLimited(identifier string, limit int, window time.Duration) bool {
	return !tb.Check(identifier, limit, window).Allowed
}

func (tb *TokenBucket) Check(identifier string, limit int, window time.Duration) types.RateLimitResult {
	if window <= 0 {
		window = DefaultWindow
	}

	now := tb.now()
	refill := rate.Limit(float64(limit) / window.Seconds())

	tb.mu.Lock()
	entry, ok := tb.entries[identifier]
	if !ok {
		entry = &tokenBucketEntry{limiter: rate.NewLimiter(refill, limit)}
		tb.entries[identifier] = entry
	} else if entry.limit != limit || entry.window != window {
		entry.limiter.SetLimitAt(now, refill)
		entry.limiter.SetBurstAt(now, limit)
	}
	entry.limit = limit
	entry.window = window
	entry.lastSeen = now

	result := types.RateLimitResult{Limit: limit}

	if limit > 0 {
		reservation := entry.limiter.ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); delay == 0 {
			result.Allowed = true
		} else {
			reservation.CancelAt(now)
			result.RetryAfter = delay
		}
	} else {
		result.RetryAfter = window
	}

	tokens := entry.limiter.TokensAt(now)
	tb.mu.Unlock()

	result.Remaining = max(int(math.Floor(tokens)), 0)
	if refill > 0 {
		missing := float64(limit) - tokens
		result.ResetAfter = time.Duration(missing / float64(refill) * float64(time.Second))
	}

	if !result.Allowed {
		recordRejection(tb.metrics, AlgorithmTokenBucket)
		tb.logger.Security("rate_limit_exceeded",
			zap.String("identifier", identifier),
			zap.Int("limit", limit),
			zap.Duration("window", window),
		)
	}

	return result
}

// Cleanup drops identifiers idle for at least one full window, by which
// time their bucket has refilled completely.
func (tb *TokenBucket) Cleanup() int {
	now := tb.now()
	removed := 0

	tb.mu.Lock()
	for identifier, entry := range tb.entries {
		if now.Sub(entry.lastSeen) >= entry.window {
			delete(tb.entries, identifier)
			removed++
		}
	}
	tb.mu.Unlock()

	return removed
}

func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	return len(tb.entries)
}
