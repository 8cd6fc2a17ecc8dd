package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

type RedisConfig struct {
	Addr               string        `json:"addr"`
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	OperationTimeout   time.Duration `json:"operation_timeout"`
	DefaultTTL         time.Duration `json:"default_ttl"`
	KeyPrefix          string        `json:"key_prefix"`
}

// RedisStore is a CacheStore backed by redis. Get returns the stored bytes;
// values that are not []byte or string are JSON encoded on Set.
type RedisStore struct {
	ctx     context.Context
	logger  types.Logger
	config  *RedisConfig
	client  *redis.Client
	started int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*RedisStore, error) {
	redisConfig := &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		OperationTimeout:   time.Second,
		DefaultTTL:         DefaultTTL,
		KeyPrefix:          "kodespace",
	}

	if config != nil && config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	addr := redisConfig.Addr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	return &RedisStore{
		ctx:    ctx,
		logger: logger,
		config: redisConfig,
		client: client,
	}, nil
}

func (r *RedisStore) Name() string {
	return "redis"
}

func (r *RedisStore) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	ctx, cancel := r.operationContext()
	defer cancel()

	data, err := r.client.Get(ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Error("Failed to get cache entry", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	return data, true
}

func (r *RedisStore) Set(key string, value interface{}, ttl time.Duration) {
	if key == "" {
		r.logger.Warn("Attempted to set cache entry with empty key")
		return
	}

	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}

	data, err := encodeValue(value)
	if err != nil {
		r.logger.Error("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := r.operationContext()
	defer cancel()

	if err := r.client.Set(ctx, r.buildFullKey(key), data, ttl).Err(); err != nil {
		r.logger.Error("Failed to set cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (r *RedisStore) Delete(key string) bool {
	ctx, cancel := r.operationContext()
	defer cancel()

	removed, err := r.client.Del(ctx, r.buildFullKey(key)).Result()
	if err != nil {
		r.logger.Error("Failed to delete cache entry", zap.String("key", key), zap.Error(err))
		return false
	}

	return removed > 0
}

func (r *RedisStore) Has(key string) bool {
	ctx, cancel := r.operationContext()
	defer cancel()

	count, err := r.client.Exists(ctx, r.buildFullKey(key)).Result()
	if err != nil {
		r.logger.Error("Failed to check cache entry", zap.String("key", key), zap.Error(err))
		return false
	}

	return count > 0
}

// Clear removes only the keys under this store's prefix.
func (r *RedisStore) Clear() {
	ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
	defer cancel()

	iter := r.client.Scan(ctx, 0, r.buildFullKey("*"), 500).Iterator()
	batch := make([]string, 0, 500)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			r.logger.Error("Failed to clear cache entries", zap.Error(err))
		}
		batch = batch[:0]
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			flush()
		}
	}
	flush()

	if err := iter.Err(); err != nil {
		r.logger.Error("Failed to scan cache entries", zap.Error(err))
	}
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrCacheAlreadyRunning
	}

	if err := r.Ping(r.ctx); err != nil {
		atomic.StoreInt32(&r.started, 0)
		return types.Errorf(types.ErrCacheConnectionFailed, "%v", err)
	}

	r.logger.Info("Redis cache store started", zap.String("addr", r.client.Options().Addr))
	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrCacheNotRunning
	}

	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis cache store stopped")
	return nil
}

// Close releases the client whether or not the store was started.
func (r *RedisStore) Close() error {
	atomic.StoreInt32(&r.started, 0)

	if err := r.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return types.WrapError(err, "failed to close redis client")
	}
	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.DialTimeout)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) operationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, r.config.OperationTimeout)
}

func (r *RedisStore) buildFullKey(key string) string {
	if r.config.KeyPrefix == "" {
		return key
	}
	return r.config.KeyPrefix + ":" + key
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return utils.Marshal(v)
	}
}
