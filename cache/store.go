package cache

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
)

// NewStore builds the response cache backend selected by config and wraps it
// with metrics.
func NewStore(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.CacheStore, error) {
	cacheConfig := config.GetConfig().Cache

	if cacheConfig == nil || !cacheConfig.Enabled {
		return nil, types.ErrCacheIsDisabled
	}

	var store types.CacheStore

	switch cacheConfig.Type {
	case "memory", "":
		memoryConfig := &MemoryConfig{
			Name:            ResponseCache,
			MaxSize:         DefaultMaxSize,
			DefaultTTL:      DefaultTTL,
			CleanupInterval: DefaultCleanupInterval,
			EnableStats:     true,
		}

		if instance, ok := cacheConfig.Instances[ResponseCache]; ok && instance != nil {
			memoryConfig.MaxSize = instance.MaxSize
			memoryConfig.DefaultTTL = instance.DefaultTTL
			memoryConfig.CleanupInterval = instance.CleanupInterval
			memoryConfig.EnableStats = instance.EnableStats
		}

		memory, err := NewMemoryCache(ctx, logger, memoryConfig)
		if err != nil {
			return nil, err
		}
		store = memory
	case "redis":
		redisStore, err := NewRedisStore(ctx, logger, cacheConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", cacheConfig.Type)
	}

	logger.Info("Response cache store initialized", zap.String("type", cacheConfig.Type))

	return NewInstrumentedStore(store, metrics), nil
}

// CloseStore releases whatever store holds open, started or not.
func CloseStore(store types.CacheStore) error {
	if wrapped, ok := store.(interface{ Unwrap() types.CacheStore }); ok {
		store = wrapped.Unwrap()
	}

	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}

	if store.IsRunning() {
		return store.Stop()
	}
	return nil
}
