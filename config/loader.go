package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/kodespace/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadFromFile reads the YAML file, expands ${VAR} references from the
// environment, overlays it on Defaults and validates the result. The raw
// document is returned alongside for path lookups.
func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.Errorf(types.ErrConfigNotFound, "file: %s", configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	return l.Parse(data)
}

func (l *Loader) Parse(data []byte) (*types.ServiceConfig, map[string]interface{}, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	config := l.Defaults()
	if err := yaml.Unmarshal(expanded, config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(expanded, &raw); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return config, raw, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "kodespace",
		Version: "0.1.0",
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "localhost",
				Port:            8080,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 10,
				MaxBodySize:     10 << 20,
			},
			TLS: &types.TLSConfig{
				Enabled:  false,
				CacheDir: "./certs",
			},
		},
		Logger: &types.LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
			Mask:   true,
		},
		Cache: &types.CacheConfig{
			Enabled: true,
			Type:    "memory",
		},
		RateLimit: &types.RateLimitConfig{
			Algorithm:       "fixed_window",
			DefaultLimit:    100,
			DefaultWindow:   time.Minute,
			CleanupSchedule: "@every 5m",
		},
		Cron: &types.CronConfig{
			Enabled:            true,
			Timezone:           "UTC",
			CacheStatsSchedule: "@every 1m",
		},
		Metrics: &types.MetricsConfig{
			Enabled:   true,
			Namespace: "kodespace",
			Path:      "/metrics",
		},
		Health: &types.HealthConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
		},
		Storage: &types.StorageConfig{
			Type: "clover",
			Clover: &types.CloverStorageConfig{
				Path: "./data",
			},
			Mongo: &types.MongoStorageConfig{
				Database:       "kodespace",
				ConnectTimeout: 10 * time.Second,
			},
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Metadata: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  10,
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  20,
				Params: map[string]interface{}{
					"log_headers": false,
				},
			},
			Errors: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  30,
			},
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  40,
			},
			CORS: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  50,
				Params: map[string]interface{}{
					"allowed_origins": []interface{}{"*"},
					"allowed_methods": []interface{}{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
					"allowed_headers": []interface{}{"Content-Type", "Authorization", "X-Request-ID", "X-User-ID", "X-User-Role", "X-Email-Verified"},
					"max_age":         86400,
				},
			},
			BodyLimit: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  60,
				Params: map[string]interface{}{
					"max_body_size": 10 << 20,
				},
			},
			RateLimit: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  70,
				Params: map[string]interface{}{
					"key_by": types.RateLimitByIP,
				},
			},
			Auth: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  80,
			},
			EmailVerified: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  81,
			},
			Role: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  82,
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  90,
				Params: map[string]interface{}{
					"min_size": 1024,
				},
			},
			Cache: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  100,
				Params: map[string]interface{}{
					"default_ttl": "5m",
				},
			},
		},
	}
}
