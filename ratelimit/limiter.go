package ratelimit

import (
	"time"

	"github.com/saiset-co/kodespace/types"
)

const (
	AlgorithmFixedWindow = "fixed_window"
	AlgorithmTokenBucket = "token_bucket"

	DefaultLimit  = 100
	DefaultWindow = time.Minute
)

type options struct {
	now     func() time.Time
	metrics types.MetricsManager
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMetrics counts rejected calls in rate_limit_rejections_total.
func WithMetrics(metrics types.MetricsManager) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

func buildOptions(opts []Option) *options {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New returns the limiter selected by config.Algorithm. An empty algorithm
// selects the fixed window.
func New(config *types.RateLimitConfig, logger types.Logger, opts ...Option) (types.RateLimiter, error) {
	algorithm := AlgorithmFixedWindow
	if config != nil && config.Algorithm != "" {
		algorithm = config.Algorithm
	}

	switch algorithm {
	case AlgorithmFixedWindow:
		return NewFixedWindow(logger, opts...), nil
	case AlgorithmTokenBucket:
		return NewTokenBucket(logger, opts...), nil
	default:
		return nil, types.Errorf(types.ErrRateLimitAlgorithmUnknown, "algorithm: %s", algorithm)
	}
}

func recordRejection(metrics types.MetricsManager, algorithm string) {
	if metrics == nil {
		return
	}
	metrics.Counter("rate_limit_rejections_total", map[string]string{"algorithm": algorithm}).Inc()
}
