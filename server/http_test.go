package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/config"
	"github.com/saiset-co/kodespace/logger"
	"github.com/saiset-co/kodespace/middleware"
	"github.com/saiset-co/kodespace/ratelimit"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

type testServer struct {
	server *FastHTTPServer
	client *fasthttp.Client
}

func startTestServer(t *testing.T, register func(r *Router)) *testServer {
	t.Helper()

	cfg := config.NewLoader().Defaults()
	cfg.Middlewares.Cache.Enabled = false
	configManager := config.NewFromConfig(cfg)
	log := logger.NewZapWrapper(zap.NewNop())

	limiter := ratelimit.NewFixedWindow(log)
	manager := middleware.NewManager(context.Background(), configManager, log, nil, apierrors.NewResponder(log), limiter, nil)
	require.NoError(t, manager.RegisterMiddlewares())

	router := NewRouter()
	register(router)

	ln := fasthttputil.NewInmemoryListener()
	srv, err := NewHTTPServer(context.Background(), configManager, log, manager, nil, router, WithListener(ln))
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	t.Cleanup(func() {
		_ = srv.Stop()
	})

	return &testServer{
		server: srv,
		client: &fasthttp.Client{
			Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
		},
	}
}

func (s *testServer) do(t *testing.T, method, path string, headers map[string]string) *fasthttp.Response {
	t.Helper()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.Header.SetMethod(method)
	req.SetRequestURI("http://kodespace.test" + path)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp := &fasthttp.Response{}
	require.NoError(t, s.client.DoTimeout(req, resp, 5*time.Second))
	return resp
}

func decodeEnvelope(t *testing.T, resp *fasthttp.Response) apierrors.ErrorEnvelope {
	t.Helper()

	var envelope apierrors.ErrorEnvelope
	require.NoError(t, utils.Unmarshal(resp.Body(), &envelope))
	return envelope
}

func TestFastHTTPServer_Routing(t *testing.T) {
	ts := startTestServer(t, func(r *Router) {
		r.GET("/items/{id}", func(ctx *fasthttp.RequestCtx) error {
			ctx.SetContentType("text/plain")
			ctx.SetBodyString("item " + utils.PathParam(ctx, "id"))
			return nil
		})
		r.GET("/admin", func(ctx *fasthttp.RequestCtx) error { return nil }).WithRoles("admin")
		r.GET("/slow", func(ctx *fasthttp.RequestCtx) error {
			time.Sleep(200 * time.Millisecond)
			return nil
		}).WithTimeout(20 * time.Millisecond)
	})

	resp := ts.do(t, "GET", "/items/42", nil)
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.Equal(t, "item 42", string(resp.Body()))
	assert.NotEmpty(t, resp.Header.Peek("X-Request-ID"))

	resp = ts.do(t, "GET", "/missing", nil)
	assert.Equal(t, fasthttp.StatusNotFound, resp.StatusCode())
	assert.Equal(t, apierrors.CodeNotFound, decodeEnvelope(t, resp).Error.Code)

	resp = ts.do(t, "DELETE", "/items/42", nil)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, resp.StatusCode())
	assert.Equal(t, "GET", string(resp.Header.Peek("Allow")))

	resp = ts.do(t, "GET", "/admin", nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, resp.StatusCode())

	resp = ts.do(t, "GET", "/admin", map[string]string{"X-User-ID": "u1", "X-User-Role": "admin"})
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())

	resp = ts.do(t, "GET", "/slow", nil)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, resp.StatusCode())
}

func TestFastHTTPServer_Lifecycle(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	log := logger.NewZapWrapper(zap.NewNop())

	srv, err := NewHTTPServer(context.Background(), config.NewFromConfig(cfg), log, nil, nil, NewRouter(),
		WithListener(fasthttputil.NewInmemoryListener()))
	require.NoError(t, err)

	assert.ErrorIs(t, srv.Stop(), types.ErrServerNotRunning)
	require.NoError(t, srv.Start())
	assert.True(t, srv.IsRunning())
	assert.ErrorIs(t, srv.Start(), types.ErrServerAlreadyRunning)
	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
}

func TestNewHTTPServer_TLSWithoutManager(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Server.TLS = &types.TLSConfig{Enabled: true}

	_, err := NewHTTPServer(context.Background(), config.NewFromConfig(cfg), logger.NewZapWrapper(zap.NewNop()), nil, nil, NewRouter())
	assert.ErrorIs(t, err, types.ErrTLSConfigInvalid)
}
