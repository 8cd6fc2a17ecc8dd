package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/kodespace/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
name: kodespace-test
version: 1.2.3
`)

	cm, err := NewConfigurationManager(context.Background(), path)
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, "kodespace-test", cfg.Name)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, "fixed_window", cfg.RateLimit.Algorithm)
	assert.Equal(t, time.Minute, cfg.RateLimit.DefaultWindow)
	assert.Equal(t, "clover", cfg.Storage.Type)
	assert.Equal(t, 30, cfg.Middlewares.Errors.Weight)
	assert.True(t, cfg.Middlewares.Auth.Enabled)
}

func TestLoad_OverridesKeepSiblingDefaults(t *testing.T) {
	path := writeConfig(t, `
name: kodespace
version: 1.0.0
server:
  http:
    port: 9090
cache:
  type: redis
  config:
    addr: localhost:6380
  instances:
    app:
      max_size: 50
      default_ttl: 30s
      cleanup_interval: 10s
      enable_stats: true
rate_limit:
  algorithm: token_bucket
  default_window: 30s
middlewares:
  logging:
    enabled: false
`)

	cm, err := NewConfigurationManager(context.Background(), path)
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, 9090, cfg.Server.HTTP.Port)
	assert.Equal(t, "localhost", cfg.Server.HTTP.Host)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, 50, cfg.Cache.Instances["app"].MaxSize)
	assert.Equal(t, 30*time.Second, cfg.Cache.Instances["app"].DefaultTTL)
	assert.Equal(t, "token_bucket", cfg.RateLimit.Algorithm)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.DefaultWindow)
	assert.Equal(t, 100, cfg.RateLimit.DefaultLimit)
	assert.False(t, cfg.Middlewares.Logging.Enabled)
	assert.Equal(t, 20, cfg.Middlewares.Logging.Weight)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("KODESPACE_MONGO_URI", "mongodb://db.internal:27017")

	path := writeConfig(t, `
name: kodespace
version: 1.0.0
storage:
  type: mongo
  mongo:
    uri: ${KODESPACE_MONGO_URI}
`)

	cm, err := NewConfigurationManager(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db.internal:27017", cm.GetConfig().Storage.Mongo.URI)
	assert.Equal(t, "kodespace", cm.GetConfig().Storage.Mongo.Database)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "invalid yaml", content: "name: [unclosed", wantErr: types.ErrConfigParseFailed},
		{name: "invalid log level", content: "name: a\nversion: b\nlogger:\n  level: verbose\n", wantErr: types.ErrConfigValidateFailed},
		{name: "unknown storage", content: "name: a\nversion: b\nstorage:\n  type: sqlite\n", wantErr: types.ErrConfigValidateFailed},
		{name: "unknown algorithm", content: "name: a\nversion: b\nrate_limit:\n  algorithm: leaky\n", wantErr: types.ErrConfigValidateFailed},
		{name: "port out of range", content: "name: a\nversion: b\nserver:\n  http:\n    port: 70000\n", wantErr: types.ErrConfigValidateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigurationManager(context.Background(), writeConfig(t, tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewConfigurationManager(context.Background(), filepath.Join(t.TempDir(), "absent.yml"))
	assert.ErrorIs(t, err, types.ErrConfigNotFound)

	_, err = NewConfigurationManager(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigNotFound)
}

func TestGetValueAndGetAs(t *testing.T) {
	path := writeConfig(t, `
name: kodespace
version: 1.0.0
features:
  snippets:
    page_size: 25
    languages: [go, rust]
`)

	cm, err := NewConfigurationManager(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 25, cm.GetValue("features.snippets.page_size", 10))
	assert.Equal(t, 10, cm.GetValue("features.snippets.missing", 10))
	assert.Equal(t, "kodespace", cm.GetValue("name", ""))

	var languages []string
	require.NoError(t, cm.GetAs("features.snippets.languages", &languages))
	assert.Equal(t, []string{"go", "rust"}, languages)

	var ignored []string
	assert.ErrorIs(t, cm.GetAs("features.absent", &ignored), types.ErrConfigNotFound)
}

func TestNewFromConfig(t *testing.T) {
	cfg := NewLoader().Defaults()
	cm := NewFromConfig(cfg)

	assert.Same(t, cfg, cm.GetConfig())
	assert.Equal(t, "fallback", cm.GetValue("anything", "fallback"))
}
