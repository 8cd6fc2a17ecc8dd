package cache

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/kodespace/types"
)

const (
	AppCache     = "app"
	SessionCache = "session"
	UserCache    = "user"

	// ResponseCache names the instances entry used by NewStore; the
	// registry leaves it alone.
	ResponseCache = "response"
)

func DefaultInstanceConfigs() map[string]*types.MemoryCacheConfig {
	return map[string]*types.MemoryCacheConfig{
		AppCache: {
			MaxSize:         1000,
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
			EnableStats:     true,
		},
		SessionCache: {
			MaxSize:         500,
			DefaultTTL:      30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			EnableStats:     true,
		},
		UserCache: {
			MaxSize:         2000,
			DefaultTTL:      10 * time.Minute,
			CleanupInterval: 2 * time.Minute,
			EnableStats:     false,
		},
	}
}

// Registry owns the named in-memory caches shared by request handlers.
type Registry struct {
	logger          types.Logger
	caches          map[string]*MemoryCache
	shutdownTimeout time.Duration
}

func NewRegistry(ctx context.Context, logger types.Logger, configs map[string]*types.MemoryCacheConfig, opts ...Option) (*Registry, error) {
	merged := DefaultInstanceConfigs()
	for name, cfg := range configs {
		if cfg == nil || name == ResponseCache {
			continue
		}

		base, ok := merged[name]
		if !ok {
			merged[name] = cfg
			continue
		}

		merged[name] = overlayInstance(*base, cfg)
	}

	registry := &Registry{
		logger:          logger,
		caches:          make(map[string]*MemoryCache, len(merged)),
		shutdownTimeout: 10 * time.Second,
	}

	for name, cfg := range merged {
		c, err := NewMemoryCache(ctx, logger, &MemoryConfig{
			Name:            name,
			MaxSize:         cfg.MaxSize,
			DefaultTTL:      cfg.DefaultTTL,
			CleanupInterval: cfg.CleanupInterval,
			EnableStats:     cfg.EnableStats,
		}, opts...)
		if err != nil {
			return nil, types.WrapError(err, "failed to create cache "+name)
		}

		registry.caches[name] = c
	}

	return registry, nil
}

// overlayInstance lays the non-zero fields of override over base. A bool
// cannot express "unset", so EnableStats can only be switched on.
func overlayInstance(base types.MemoryCacheConfig, override *types.MemoryCacheConfig) *types.MemoryCacheConfig {
	if override.MaxSize != 0 {
		base.MaxSize = override.MaxSize
	}
	if override.DefaultTTL != 0 {
		base.DefaultTTL = override.DefaultTTL
	}
	if override.CleanupInterval != 0 {
		base.CleanupInterval = override.CleanupInterval
	}
	if override.EnableStats {
		base.EnableStats = true
	}
	return &base
}

func (r *Registry) App() *MemoryCache {
	return r.caches[AppCache]
}

func (r *Registry) Session() *MemoryCache {
	return r.caches[SessionCache]
}

func (r *Registry) User() *MemoryCache {
	return r.caches[UserCache]
}

func (r *Registry) Get(name string) (*MemoryCache, bool) {
	c, ok := r.caches[name]
	return c, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Stats() map[string]CacheStats {
	stats := make(map[string]CacheStats, len(r.caches))
	for name, c := range r.caches {
		stats[name] = c.GetStats()
	}
	return stats
}

func (r *Registry) Start() error {
	for _, name := range r.Names() {
		if err := r.caches[name].Start(); err != nil {
			return types.WrapError(err, "failed to start cache "+name)
		}
	}

	r.logger.Info("Cache registry started", zap.Strings("caches", r.Names()))
	return nil
}

// Stop stops every cache in parallel and waits up to the shutdown timeout.
func (r *Registry) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	for name, c := range r.caches {
		name, c := name, c
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if !c.IsRunning() {
					return nil
				}
				if err := c.Stop(); err != nil {
					return types.WrapError(err, "failed to stop cache "+name)
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Error("Error during cache registry shutdown", zap.Error(err))
		return err
	}

	r.logger.Info("Cache registry stopped")
	return nil
}

func (r *Registry) IsRunning() bool {
	for _, c := range r.caches {
		if !c.IsRunning() {
			return false
		}
	}
	return len(r.caches) > 0
}

// Destroy releases every cache. Used on final shutdown.
func (r *Registry) Destroy() {
	for _, c := range r.caches {
		c.Destroy()
	}
}

func (r *Registry) Cleanup() int {
	removed := 0
	for _, c := range r.caches {
		removed += c.Cleanup()
	}
	return removed
}
