package cron

import (
	"context"

	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/cache"
	"github.com/saiset-co/kodespace/types"
)

const (
	LimiterCleanupJob = "rate_limit_cleanup"
	CacheStatsJob     = "cache_stats"
)

// NewLimiterCleanupJob drops expired rate-limit buckets.
func NewLimiterCleanupJob(limiter types.RateLimiter, logger types.Logger) types.JobFunc {
	return func(ctx context.Context) error {
		removed := limiter.Cleanup()
		logger.Debug("Rate limiter cleanup", zap.Int("removed", removed), zap.Int("remaining", limiter.Len()))
		return nil
	}
}

// NewCacheStatsJob logs the statistics of every named cache and exports
// them as gauges.
func NewCacheStatsJob(registry *cache.Registry, logger types.Logger, metrics types.MetricsManager) types.JobFunc {
	return func(ctx context.Context) error {
		for name, stats := range registry.Stats() {
			if err := ctx.Err(); err != nil {
				return err
			}

			logger.Info("Cache statistics",
				zap.String("cache", name),
				zap.Uint64("hits", stats.Hits),
				zap.Uint64("misses", stats.Misses),
				zap.Uint64("evictions", stats.Evictions),
				zap.Int("size", stats.TotalSize),
				zap.Float64("hit_rate", stats.HitRate()),
				zap.Duration("avg_access_time", stats.AverageAccessTime))

			if metrics != nil {
				labels := map[string]string{"cache": name}
				metrics.Gauge("cache_entries", labels).Set(float64(stats.TotalSize))
				metrics.Gauge("cache_hit_rate", labels).Set(stats.HitRate())
			}
		}
		return nil
	}
}
