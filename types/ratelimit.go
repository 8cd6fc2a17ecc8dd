package types

import (
	"time"
)

type RateLimiter interface {
	IsRateLimited(identifier string, limit int, window time.Duration) bool
	Check(identifier string, limit int, window time.Duration) RateLimitResult
	Cleanup() int
	Len() int
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

const (
	RateLimitByIP   = "ip"
	RateLimitByUser = "user"
)

// RateLimitRule overrides the middleware defaults for a single route.
// Scope separates the counters of different routes; the router sets it to
// the route's method and pattern.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
	KeyBy  string
	Scope  string
}
