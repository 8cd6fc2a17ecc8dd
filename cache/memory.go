package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
)

const (
	DefaultMaxSize         = 1000
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = time.Minute

	accessSampleSize = 1000
)

type MemoryConfig struct {
	Name            string        `json:"name"`
	MaxSize         int           `json:"max_size"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	EnableStats     bool          `json:"enable_stats"`
}

// CacheItem is one stored value with its access bookkeeping.
type CacheItem struct {
	Data         interface{}
	Timestamp    time.Time
	TTL          time.Duration
	AccessCount  int64
	LastAccessed time.Time
}

func (i *CacheItem) expired(now time.Time) bool {
	return now.After(i.Timestamp.Add(i.TTL))
}

type CacheStats struct {
	Hits              uint64        `json:"hits"`
	Misses            uint64        `json:"misses"`
	Sets              uint64        `json:"sets"`
	Deletes           uint64        `json:"deletes"`
	Evictions         uint64        `json:"evictions"`
	TotalSize         int           `json:"totalSize"`
	AverageAccessTime time.Duration `json:"averageAccessTime"`
}

func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type Option func(*MemoryCache)

func WithClock(now func() time.Time) Option {
	return func(m *MemoryCache) {
		m.now = now
	}
}

// MemoryCache is a TTL cache bounded to MaxSize entries. When full, the
// least recently accessed entry is evicted. Operations never fail: internal
// errors are logged and reads degrade to a miss.
type MemoryCache struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          *MemoryConfig
	logger          types.Logger
	items           *simplelru.LRU[string, *CacheItem]
	stats           CacheStats
	accessTimes     []time.Duration
	accessNext      int
	accessSum       time.Duration
	now             func() time.Time
	mu              sync.Mutex
	state           atomic.Value
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	shutdownTimeout time.Duration
}

func NewMemoryCache(ctx context.Context, logger types.Logger, config *MemoryConfig, opts ...Option) (*MemoryCache, error) {
	memConfig := &MemoryConfig{
		Name:            "default",
		MaxSize:         DefaultMaxSize,
		DefaultTTL:      DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
		EnableStats:     true,
	}

	if config != nil {
		memConfig = config
	}

	if memConfig.MaxSize <= 0 {
		return nil, types.Errorf(types.ErrInvalidParameter, "cache %s: max size must be positive", memConfig.Name)
	}

	if memConfig.DefaultTTL <= 0 {
		memConfig.DefaultTTL = DefaultTTL
	}

	items, err := simplelru.NewLRU[string, *CacheItem](memConfig.MaxSize, nil)
	if err != nil {
		return nil, types.WrapError(err, "failed to create lru index")
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	cache := &MemoryCache{
		ctx:             cacheCtx,
		cancel:          cancel,
		config:          memConfig,
		logger:          logger,
		items:           items,
		accessTimes:     make([]time.Duration, 0, accessSampleSize),
		now:             time.Now,
		shutdownTimeout: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(cache)
	}

	cache.state.Store(types.StateStopped)

	return cache, nil
}

func (m *MemoryCache) Name() string {
	return m.config.Name
}

func (m *MemoryCache) Config() MemoryConfig {
	return *m.config
}

// Get returns the value for key if present and unexpired, marking it as the
// most recently used. An expired entry is dropped and counted as both a miss
// and an eviction.
func (m *MemoryCache) Get(key string) (value interface{}, found bool) {
	defer m.recoverOperation("get", key)

	start := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items.Get(key)
	if !ok {
		m.recordMiss(start)
		return nil, false
	}

	now := m.now()
	if item.expired(now) {
		m.items.Remove(key)
		m.recordMiss(start)
		if m.config.EnableStats {
			m.stats.Evictions++
		}
		return nil, false
	}

	item.AccessCount++
	item.LastAccessed = now

	if m.config.EnableStats {
		m.stats.Hits++
		m.recordAccessTime(time.Since(start))
	}

	return item.Data, true
}

// Set stores value under key. A ttl of zero or less uses the configured
// default. Adding a new key to a full cache evicts the least recently
// accessed entry.
func (m *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	defer m.recoverOperation("set", key)

	if key == "" {
		m.logger.Warn("Attempted to set cache entry with empty key", zap.String("cache", m.config.Name))
		return
	}

	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := m.items.Add(key, &CacheItem{
		Data:         value,
		Timestamp:    now,
		TTL:          ttl,
		LastAccessed: now,
	})

	if m.config.EnableStats {
		m.stats.Sets++
		if evicted {
			m.stats.Evictions++
		}
	}
}

func (m *MemoryCache) Delete(key string) (deleted bool) {
	defer m.recoverOperation("delete", key)

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted = m.items.Remove(key)
	if deleted && m.config.EnableStats {
		m.stats.Deletes++
	}

	return deleted
}

func (m *MemoryCache) Clear() {
	defer m.recoverOperation("clear", "")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.items.Purge()
}

// Has reports whether key holds an unexpired value without affecting its
// recency or the hit/miss counters.
func (m *MemoryCache) Has(key string) (found bool) {
	defer m.recoverOperation("has", key)

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items.Peek(key)
	if !ok {
		return false
	}

	if item.expired(m.now()) {
		m.items.Remove(key)
		if m.config.EnableStats {
			m.stats.Evictions++
		}
		return false
	}

	return true
}

// Keys lists stored keys from least to most recently used. Expired entries
// not yet cleaned up are included.
func (m *MemoryCache) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.items.Keys()
}

func (m *MemoryCache) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.items.Len()
}

// Peek returns a copy of the stored item including its bookkeeping.
func (m *MemoryCache) Peek(key string) (CacheItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items.Peek(key)
	if !ok {
		return CacheItem{}, false
	}
	return *item, true
}

// Cleanup removes every expired entry and returns how many were dropped.
func (m *MemoryCache) Cleanup() (removed int) {
	defer m.recoverOperation("cleanup", "")

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, key := range m.items.Keys() {
		item, ok := m.items.Peek(key)
		if ok && item.expired(now) {
			m.items.Remove(key)
			removed++
		}
	}

	if removed > 0 {
		if m.config.EnableStats {
			m.stats.Evictions += uint64(removed)
		}
		m.logger.Debug("Cache cleanup completed",
			zap.String("cache", m.config.Name),
			zap.Int("removed", removed),
			zap.Int("remaining", m.items.Len()),
		)
	}

	return removed
}

func (m *MemoryCache) GetStats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.TotalSize = m.items.Len()
	if len(m.accessTimes) > 0 {
		stats.AverageAccessTime = m.accessSum / time.Duration(len(m.accessTimes))
	}

	return stats
}

func (m *MemoryCache) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = CacheStats{}
	m.accessTimes = m.accessTimes[:0]
	m.accessNext = 0
	m.accessSum = 0
}

// Start launches the periodic cleanup loop.
func (m *MemoryCache) Start() error {
	if !m.transitionState(types.StateStopped, types.StateStarting) {
		return types.ErrCacheAlreadyRunning
	}

	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})

	if m.config.CleanupInterval > 0 {
		go m.cleanupLoop(m.stopCleanup, m.cleanupDone)
	} else {
		close(m.cleanupDone)
	}

	m.setState(types.StateRunning)

	m.logger.Debug("Memory cache started",
		zap.String("cache", m.config.Name),
		zap.Int("max_size", m.config.MaxSize),
		zap.Duration("default_ttl", m.config.DefaultTTL),
		zap.Duration("cleanup_interval", m.config.CleanupInterval),
	)

	return nil
}

// Stop halts the cleanup loop and drops every entry.
func (m *MemoryCache) Stop() error {
	if !m.transitionState(types.StateRunning, types.StateStopping) {
		return types.ErrCacheNotRunning
	}

	defer m.setState(types.StateStopped)

	close(m.stopCleanup)

	select {
	case <-m.cleanupDone:
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Memory cache cleanup loop did not stop in time", zap.String("cache", m.config.Name))
	}

	m.Clear()

	m.logger.Debug("Memory cache stopped", zap.String("cache", m.config.Name))
	return nil
}

// Destroy stops the cleanup loop if running, clears the cache and releases
// its context. The cache must not be restarted afterwards.
func (m *MemoryCache) Destroy() {
	if m.IsRunning() {
		if err := m.Stop(); err != nil {
			m.logger.Error("Failed to stop memory cache", zap.String("cache", m.config.Name), zap.Error(err))
		}
	}

	m.Clear()
	m.cancel()
}

func (m *MemoryCache) IsRunning() bool {
	return m.getState() == types.StateRunning
}

func (m *MemoryCache) cleanupLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-stop:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *MemoryCache) recordMiss(start time.Time) {
	if !m.config.EnableStats {
		return
	}
	m.stats.Misses++
	m.recordAccessTime(time.Since(start))
}

// recordAccessTime keeps a ring of the last accessSampleSize durations and
// their running sum.
func (m *MemoryCache) recordAccessTime(d time.Duration) {
	if len(m.accessTimes) < accessSampleSize {
		m.accessTimes = append(m.accessTimes, d)
		m.accessSum += d
		return
	}

	m.accessSum -= m.accessTimes[m.accessNext]
	m.accessTimes[m.accessNext] = d
	m.accessSum += d
	m.accessNext = (m.accessNext + 1) % accessSampleSize
}

func (m *MemoryCache) recoverOperation(operation, key string) {
	if r := recover(); r != nil {
		m.logger.Error("Cache operation failed",
			zap.String("cache", m.config.Name),
			zap.String("operation", operation),
			zap.String("key", key),
			zap.Any("panic", r),
		)
	}
}

func (m *MemoryCache) getState() types.State {
	return m.state.Load().(types.State)
}

func (m *MemoryCache) setState(newState types.State) {
	m.state.Store(newState)
}

func (m *MemoryCache) transitionState(from, to types.State) bool {
	return m.state.CompareAndSwap(from, to)
}
