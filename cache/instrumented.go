package cache

import (
	"time"

	"github.com/saiset-co/kodespace/types"
)

var operationBuckets = []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

// InstrumentedStore records per-operation counters and latency for any
// CacheStore.
type InstrumentedStore struct {
	types.CacheStore
	metrics types.MetricsManager
}

func NewInstrumentedStore(store types.CacheStore, metrics types.MetricsManager) types.CacheStore {
	if metrics == nil {
		return store
	}

	return &InstrumentedStore{
		CacheStore: store,
		metrics:    metrics,
	}
}

func (s *InstrumentedStore) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, found := s.CacheStore.Get(key)

	result := "miss"
	if found {
		result = "hit"
	}

	s.record("get", result, start)
	return value, found
}

func (s *InstrumentedStore) Set(key string, value interface{}, ttl time.Duration) {
	start := time.Now()
	s.CacheStore.Set(key, value, ttl)
	s.record("set", "ok", start)
}

func (s *InstrumentedStore) Delete(key string) bool {
	start := time.Now()
	deleted := s.CacheStore.Delete(key)

	result := "miss"
	if deleted {
		result = "hit"
	}

	s.record("delete", result, start)
	return deleted
}

func (s *InstrumentedStore) Has(key string) bool {
	start := time.Now()
	found := s.CacheStore.Has(key)

	result := "miss"
	if found {
		result = "hit"
	}

	s.record("has", result, start)
	return found
}

func (s *InstrumentedStore) Clear() {
	start := time.Now()
	s.CacheStore.Clear()
	s.record("clear", "ok", start)
}

func (s *InstrumentedStore) Unwrap() types.CacheStore {
	return s.CacheStore
}

func (s *InstrumentedStore) record(operation, result string, start time.Time) {
	name := s.CacheStore.Name()

	s.metrics.Counter("cache_operations_total", map[string]string{
		"cache":     name,
		"operation": operation,
		"result":    result,
	}).Inc()

	s.metrics.Histogram("cache_operation_duration_seconds", operationBuckets, map[string]string{
		"cache":     name,
		"operation": operation,
	}).ObserveDuration(start)
}
