package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/cache"
	"github.com/saiset-co/kodespace/config"
	"github.com/saiset-co/kodespace/logger"
	"github.com/saiset-co/kodespace/ratelimit"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() types.Logger {
	return logger.NewZapWrapper(zap.NewNop())
}

type testEnv struct {
	manager *Manager
	clock   *fakeClock
	store   *cache.MemoryCache
	config  types.ConfigManager
}

func newTestEnv(t *testing.T, mutate func(*types.ServiceConfig)) *testEnv {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	if mutate != nil {
		mutate(cfg)
	}
	configManager := config.NewFromConfig(cfg)

	clock := newFakeClock()
	log := testLogger()

	store, err := cache.NewMemoryCache(context.Background(), log, &cache.MemoryConfig{
		Name:       "response",
		MaxSize:    100,
		DefaultTTL: time.Minute,
	}, cache.WithClock(clock.Now))
	require.NoError(t, err)

	limiter := ratelimit.NewFixedWindow(log, ratelimit.WithClock(clock.Now))
	responder := apierrors.NewResponder(log, apierrors.WithClock(clock.Now))

	manager := NewManager(context.Background(), configManager, log, nil, responder, limiter, store)
	require.NoError(t, manager.RegisterMiddlewares())

	return &testEnv{manager: manager, clock: clock, store: store, config: configManager}
}

func newRequest(method, uri string, headers map[string]string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	for key, value := range headers {
		ctx.Request.Header.Set(key, value)
	}
	return ctx
}

func (e *testEnv) serve(ctx *fasthttp.RequestCtx, handler types.HandlerFunc, route *types.RouteConfig) {
	_ = e.manager.Execute(ctx, handler, route)
}

func okHandler(body string) types.HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString(body)
		return nil
	}
}

func decodeError(t *testing.T, ctx *fasthttp.RequestCtx) apierrors.ErrorEnvelope {
	t.Helper()

	var envelope apierrors.ErrorEnvelope
	require.NoError(t, utils.Unmarshal(ctx.Response.Body(), &envelope))
	require.False(t, envelope.Success)
	return envelope
}
