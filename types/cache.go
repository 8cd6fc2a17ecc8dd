package types

import (
	"time"
)

// CacheStore is the key/value contract shared by the in-memory and redis
// backends. Set and Delete are best effort: backend failures are logged,
// never returned.
type CacheStore interface {
	LifecycleManager
	Name() string
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string) bool
	Has(key string) bool
	Clear()
}

type CacheHandlerConfig struct {
	Enabled bool          `validate:"required"`
	TTL     time.Duration `validate:"min=0"`
	Deps    []string      `validate:"dive,min=1"`
}
