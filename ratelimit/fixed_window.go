package ratelimit

import (
	"hash"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
)

const shardCount = 64

// Entry counts calls for one identifier inside one window.
type Entry struct {
	Count     int
	ResetTime time.Time
}

type shard struct {
	entries map[string]*Entry
	mu      sync.Mutex
}

// FixedWindow counts calls per identifier in windows aligned to multiples of
// the window size since the Unix epoch. A caller may pass up to twice the
// limit across a window boundary.
type FixedWindow struct {
	logger     types.Logger
	metrics    types.MetricsManager
	now        func() time.Time
	shards     [shardCount]*shard
	hasherPool sync.Pool
}

func NewFixedWindow(logger types.Logger, opts ...Option) *FixedWindow {
	o := buildOptions(opts)

	fw := &FixedWindow{
		logger:  logger,
		metrics: o.metrics,
		now:     o.now,
		hasherPool: sync.Pool{
			New: func() interface{} {
				return fnv.New32a()
			},
		},
	}

	for i := range fw.shards {
		fw.shards[i] = &shard{entries: make(map[string]*Entry, 64)}
	}

	return fw
}

// IsRateLimited counts the call and reports false, or reports true without
// counting when the identifier already used its limit in the current window.
func (fw *FixedWindow) IsRateLimited(identifier string, limit int, window time.Duration) bool {
	return !fw.Check(identifier, limit, window).Allowed
}

func (fw *FixedWindow) Check(identifier string, limit int, window time.Duration) types.RateLimitResult {
	if window <= 0 {
		window = DefaultWindow
	}

	now := fw.now()
	bucket := now.UnixNano() / int64(window)
	key := identifier + ":" + strconv.FormatInt(bucket, 10)
	resetTime := time.Unix(0, (bucket+1)*int64(window))

	s := fw.shardFor(key)

	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &Entry{ResetTime: resetTime}
		s.entries[key] = entry
	}

	allowed := entry.Count < limit
	if allowed {
		entry.Count++
	}
	count := entry.Count
	s.mu.Unlock()

	result := types.RateLimitResult{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  max(limit-count, 0),
		ResetAfter: resetTime.Sub(now),
	}

	if !allowed {
		result.RetryAfter = result.ResetAfter
		recordRejection(fw.metrics, AlgorithmFixedWindow)
		fw.logger.Security("rate_limit_exceeded",
			zap.String("identifier", identifier),
			zap.Int("limit", limit),
			zap.Duration("window", window),
		)
	}

	return result
}

// Cleanup drops entries whose window has ended and returns how many were
// removed.
func (fw *FixedWindow) Cleanup() int {
	now := fw.now()
	removed := 0

	for _, s := range fw.shards {
		s.mu.Lock()
		for key, entry := range s.entries {
			if !now.Before(entry.ResetTime) {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
	}

	if removed > 0 {
		fw.logger.Debug("Rate limiter cleanup completed", zap.Int("removed", removed))
	}

	return removed
}

func (fw *FixedWindow) Len() int {
	total := 0
	for _, s := range fw.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

func (fw *FixedWindow) shardFor(key string) *shard {
	hasher := fw.hasherPool.Get().(hash.Hash32)
	defer fw.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))

	return fw.shards[hasher.Sum32()%shardCount]
}
