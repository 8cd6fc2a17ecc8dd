package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/kodespace/types"
)

const timeoutBody = `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"Request timed out","statusCode":503}}`

type FastHTTPServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	middlewares     types.MiddlewareManager
	router          *Router
	server          *fasthttp.Server
	listener        net.Listener
	httpConfig      *types.HTTPConfig
	tlsConfig       *types.TLSConfig
	tlsManager      types.TLSManager
	state           atomic.Value
	shutdownTimeout time.Duration
	serveDone       chan struct{}
	mu              sync.Mutex
}

type Option func(*FastHTTPServer)

// WithListener serves on ln instead of opening the configured address.
func WithListener(ln net.Listener) Option {
	return func(s *FastHTTPServer) {
		s.listener = ln
	}
}

func NewHTTPServer(
	ctx context.Context,
	config types.ConfigManager,
	logger types.Logger,
	middlewares types.MiddlewareManager,
	tlsManager types.TLSManager,
	router *Router,
	opts ...Option,
) (*FastHTTPServer, error) {
	serverConfig := config.GetConfig().Server
	if serverConfig == nil || serverConfig.HTTP == nil {
		return nil, types.Errorf(types.ErrConfigIsNil, "server.http section is missing")
	}

	tlsConfig := serverConfig.TLS
	if tlsConfig == nil {
		tlsConfig = &types.TLSConfig{}
	}

	if tlsConfig.Enabled && tlsManager == nil {
		return nil, types.Errorf(types.ErrTLSConfigInvalid, "tls enabled without certificate manager")
	}

	serverCtx, cancel := context.WithCancel(ctx)

	shutdownTimeout := 5 * time.Second
	if serverConfig.HTTP.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(serverConfig.HTTP.ShutdownTimeout) * time.Second
	}

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		middlewares:     middlewares,
		tlsManager:      tlsManager,
		router:          router,
		httpConfig:      serverConfig.HTTP,
		tlsConfig:       tlsConfig,
		shutdownTimeout: shutdownTimeout,
	}

	for _, opt := range opts {
		opt(server)
	}

	server.state.Store(types.StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(types.StateStopped, types.StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := h.router.FinalizePendingRoutes(); err != nil {
		h.setState(types.StateStopped)
		return types.WrapError(err, "failed to register routes")
	}

	h.server = &fasthttp.Server{
		Handler:                      h.mainHandler,
		Name:                         "kodespace",
		ReadTimeout:                  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:                 time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:                  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		MaxRequestBodySize:           h.httpConfig.MaxBodySize,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		CloseOnShutdown:              true,
		Logger:                       &fasthttpLogger{logger: h.logger},
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := h.listen(addr)
	if err != nil {
		h.setState(types.StateStopped)
		return types.WrapError(types.ErrServerStartFailed, err.Error())
	}

	h.mu.Lock()
	h.listener = listener
	h.serveDone = make(chan struct{})
	done := h.serveDone
	h.mu.Unlock()

	go func() {
		defer close(done)

		if err := h.server.Serve(listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	h.setState(types.StateRunning)

	h.logger.Info("HTTP server started successfully",
		zap.String("address", listener.Addr().String()),
		zap.Bool("tls", h.tlsConfig.Enabled))

	return nil
}

func (h *FastHTTPServer) listen(addr string) (net.Listener, error) {
	h.mu.Lock()
	injected := h.listener
	h.mu.Unlock()

	if injected != nil {
		return injected, nil
	}

	if h.tlsConfig.Enabled {
		return h.tlsManager.Serve(addr)
	}

	return net.Listen("tcp", addr)
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(types.StateRunning, types.StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.setState(types.StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.server.ShutdownWithContext(gCtx)
	})

	g.Go(func() error {
		h.mu.Lock()
		done := h.serveDone
		h.mu.Unlock()

		select {
		case <-done:
			return nil
		case <-gCtx.Done():
			return gCtx.Err()
		}
	})

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			h.logger.Warn("Server stop timeout, some connections may not have closed gracefully")
		default:
			h.logger.Error("Error during server shutdown", zap.Error(err))
		}
		return types.WrapError(types.ErrServerStopFailed, err.Error())
	}

	h.logger.Info("HTTP server stopped gracefully")

	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == types.StateRunning
}

func (h *FastHTTPServer) Router() *Router {
	return h.router
}

func (h *FastHTTPServer) mainHandler(ctx *fasthttp.RequestCtx) {
	h.router.Handler(ctx, h)
}

// HandleRequest runs handler behind the middleware chain. Routes with a
// timeout reply 503 when the chain does not finish in time.
func (h *FastHTTPServer) HandleRequest(ctx *fasthttp.RequestCtx, handler types.HandlerFunc, config *types.RouteConfig) {
	run := func(ctx *fasthttp.RequestCtx) {
		var err error
		if h.middlewares != nil {
			err = h.middlewares.Execute(ctx, handler, config)
		} else {
			err = handler(ctx)
		}

		if err != nil {
			h.logger.Error("Unhandled request error", zap.Error(err), zap.ByteString("path", ctx.Path()))
			ctx.Error(fasthttp.StatusMessage(fasthttp.StatusInternalServerError), fasthttp.StatusInternalServerError)
		}
	}

	if config != nil && config.Timeout > 0 {
		fasthttp.TimeoutWithCodeHandler(run, config.Timeout, timeoutBody, fasthttp.StatusServiceUnavailable)(ctx)
		return
	}

	run(ctx)
}

func (h *FastHTTPServer) getState() types.State {
	return h.state.Load().(types.State)
}

func (h *FastHTTPServer) setState(newState types.State) {
	h.state.Store(newState)
}

func (h *FastHTTPServer) transitionState(from, to types.State) bool {
	return h.state.CompareAndSwap(from, to)
}

type fasthttpLogger struct {
	logger types.Logger
}

func (l *fasthttpLogger) Printf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
