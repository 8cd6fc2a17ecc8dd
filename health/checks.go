package health

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saiset-co/kodespace/types"
)

// PingCheck reports unhealthy when ping fails.
func PingCheck(ping func(ctx context.Context) error) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if err := ping(ctx); err != nil {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	}
}

// CacheStoreCheck writes and reads back a probe key.
func CacheStoreCheck(store types.CacheStore) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if !store.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: types.ErrCacheNotRunning.Error()}
		}

		key := "health:" + uuid.NewString()
		store.Set(key, "ok", time.Minute)
		defer store.Delete(key)

		if !store.Has(key) {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "probe key not readable", Details: map[string]interface{}{"store": store.Name()}}
		}

		return types.HealthCheck{Status: types.StatusHealthy, Details: map[string]interface{}{"store": store.Name()}}
	}
}

// StatsCheck attaches details from stats without affecting health.
func StatsCheck(stats func() map[string]interface{}) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		return types.HealthCheck{Status: types.StatusHealthy, Details: stats()}
	}
}
