package middleware

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/cache"
	"github.com/saiset-co/kodespace/types"
)

func TestCacheMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)
	route := &types.RouteConfig{Cache: &types.CacheHandlerConfig{Enabled: true, TTL: time.Minute, Deps: []string{"snippets"}}}

	calls := 0
	handler := func(ctx *fasthttp.RequestCtx) error {
		calls++
		return okHandler(`{"calls":` + strconv.Itoa(calls) + `}`)(ctx)
	}

	get := func(uri string, headers map[string]string) *fasthttp.RequestCtx {
		ctx := newRequest(fasthttp.MethodGet, uri, headers)
		env.serve(ctx, handler, route)
		return ctx
	}

	first := get("/snippets?page=1", nil)
	assert.Equal(t, "MISS", string(first.Response.Header.Peek(HeaderCache)))
	assert.Equal(t, `{"calls":1}`, string(first.Response.Body()))

	second := get("/snippets?page=1", nil)
	assert.Equal(t, "HIT", string(second.Response.Header.Peek(HeaderCache)))
	assert.Equal(t, `{"calls":1}`, string(second.Response.Body()))
	assert.Equal(t, "application/json", string(second.Response.Header.ContentType()))
	assert.Equal(t, 1, calls)

	get("/snippets?page=2", nil)
	assert.Equal(t, 2, calls, "query string is part of the key")

	get("/snippets?page=1", map[string]string{"X-User-ID": "u1"})
	assert.Equal(t, 3, calls, "users do not share entries")

	cache.NewRevisions(env.store).Bump("snippets")
	bumped := get("/snippets?page=1", nil)
	assert.Equal(t, "MISS", string(bumped.Response.Header.Peek(HeaderCache)))
	assert.Equal(t, 4, calls)

	env.clock.Advance(time.Minute + time.Second)
	get("/snippets?page=1", nil)
	assert.Equal(t, 5, calls, "entries expire after the route ttl")
}

func TestCacheMiddleware_SkipsUncacheable(t *testing.T) {
	env := newTestEnv(t, nil)
	cached := &types.RouteConfig{Cache: &types.CacheHandlerConfig{Enabled: true}}

	tests := []struct {
		name    string
		method  string
		route   *types.RouteConfig
		handler types.HandlerFunc
	}{
		{"route without cache", fasthttp.MethodGet, nil, okHandler(`{}`)},
		{"non-GET", fasthttp.MethodPost, cached, okHandler(`{}`)},
		{"no-store response", fasthttp.MethodGet, cached, func(ctx *fasthttp.RequestCtx) error {
			ctx.Response.Header.Set("Cache-Control", "no-store")
			return okHandler(`{}`)(ctx)
		}},
		{"error status", fasthttp.MethodGet, cached, func(ctx *fasthttp.RequestCtx) error {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{}`)
			return nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.store.Clear()

			ctx := newRequest(tt.method, "/uncached", nil)
			env.serve(ctx, tt.handler, tt.route)

			assert.Empty(t, env.store.Keys())
		})
	}
}
