package cache

import (
	"context"
	"time"

	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

// GetAs returns the value under key when it exists and holds a T.
func GetAs[T any](store types.CacheStore, key string) (T, bool) {
	var zero T

	value, ok := store.Get(key)
	if !ok {
		return zero, false
	}

	return decodeValue[T](value)
}

type LoaderFunc[A any, R any] func(ctx context.Context, args A) (R, error)

type cachedOptions[A any] struct {
	ttl   time.Duration
	keyFn func(A) (string, error)
}

type CachedOption[A any] func(*cachedOptions[A])

func WithTTL[A any](ttl time.Duration) CachedOption[A] {
	return func(o *cachedOptions[A]) {
		o.ttl = ttl
	}
}

func WithKeyFunc[A any](keyFn func(A) (string, error)) CachedOption[A] {
	return func(o *cachedOptions[A]) {
		o.keyFn = keyFn
	}
}

// Cached memoizes fn in store under "name:key(args)". The default key is the
// JSON encoding of args. Results are stored only when fn succeeds, and a key
// that cannot be built bypasses the cache.
func Cached[A any, R any](store types.CacheStore, name string, fn LoaderFunc[A, R], opts ...CachedOption[A]) LoaderFunc[A, R] {
	options := &cachedOptions[A]{
		keyFn: func(args A) (string, error) {
			return utils.StableKey(args)
		},
	}

	for _, opt := range opts {
		opt(options)
	}

	return func(ctx context.Context, args A) (R, error) {
		argsKey, err := options.keyFn(args)
		if err != nil {
			return fn(ctx, args)
		}

		key := name + ":" + argsKey

		if value, ok := store.Get(key); ok {
			if result, ok := decodeValue[R](value); ok {
				return result, nil
			}
		}

		result, err := fn(ctx, args)
		if err != nil {
			return result, err
		}

		store.Set(key, result, options.ttl)
		return result, nil
	}
}

// decodeValue accepts both live values from the memory store and the raw
// JSON bytes returned by the redis store.
func decodeValue[T any](value interface{}) (T, bool) {
	var zero T

	if typed, ok := value.(T); ok {
		return typed, true
	}

	raw, ok := value.([]byte)
	if !ok {
		return zero, false
	}

	var decoded T
	if text, ok := any(&decoded).(*string); ok {
		*text = string(raw)
		return decoded, true
	}

	if err := utils.Unmarshal(raw, &decoded); err != nil {
		return zero, false
	}

	return decoded, true
}
