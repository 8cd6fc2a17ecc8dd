package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/cache"
	"github.com/saiset-co/kodespace/config"
	"github.com/saiset-co/kodespace/cron"
	"github.com/saiset-co/kodespace/health"
	"github.com/saiset-co/kodespace/logger"
	"github.com/saiset-co/kodespace/metrics"
	"github.com/saiset-co/kodespace/middleware"
	"github.com/saiset-co/kodespace/ratelimit"
	"github.com/saiset-co/kodespace/sai"
	"github.com/saiset-co/kodespace/server"
	"github.com/saiset-co/kodespace/snippets"
	"github.com/saiset-co/kodespace/tls"
	"github.com/saiset-co/kodespace/types"
)

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	container       *sai.Container
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	handleSignals   bool
	listener        net.Listener
	logger          types.LoggerManager
}

type Option func(*Service)

// WithListener serves HTTP on ln instead of the configured address.
func WithListener(ln net.Listener) Option {
	return func(s *Service) {
		s.listener = ln
	}
}

// WithLogger replaces the logger built from config.
func WithLogger(logger types.LoggerManager) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithoutSignalHandling leaves SIGINT and SIGTERM to the caller.
func WithoutSignalHandling() Option {
	return func(s *Service) {
		s.handleSignals = false
	}
}

func NewService(ctx context.Context, configPath string, opts ...Option) (*Service, error) {
	if configPath == "" {
		return nil, types.Errorf(types.ErrConfigNotFound, "empty config path")
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(types.ErrConfigNotFound, err.Error())
	}

	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to register config manager")
	}

	return NewFromConfig(ctx, configManager, opts...)
}

func NewFromConfig(ctx context.Context, configManager types.ConfigManager, opts ...Option) (*Service, error) {
	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		container:       sai.NewContainer(),
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
		handleSignals:   true,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.state.Store(types.StateStopped)

	if err := s.registerProviders(configManager); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	return s, nil
}

func (s *Service) Container() *sai.Container {
	return s.container
}

// Start starts every component and blocks until the service is stopped by
// Stop, a signal or the parent context.
func (s *Service) Start() (runErr error) {
	if !s.transitionState(types.StateStopped, types.StateStarting) {
		return types.ErrServiceIsRunning
	}

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			runErr = fmt.Errorf("service panic: %v", r)
			s.logger.Error("Service run panic", zap.String("stack", string(buf[:n])))
			s.setState(types.StateStopped)
		}
	}()

	return s.run()
}

func (s *Service) run() error {
	s.logger.Info("Starting service")

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(types.StateStopped)
		if stopErr := s.stopComponents(); stopErr != nil {
			s.logger.Error("Error during cleanup after failed start", zap.Error(stopErr))
		}
		return types.WrapError(err, "failed to start components")
	}

	s.setState(types.StateRunning)

	if s.handleSignals {
		s.setupSignalHandling()
	}

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger.Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger.Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(types.StateStopped)

	s.logger.Info("Service stopped gracefully")
	_ = s.logger.Sync()

	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(types.StateRunning, types.StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	s.logger.Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == types.StateRunning
}

func (s *Service) getState() types.State {
	return s.state.Load().(types.State)
}

func (s *Service) setState(newState types.State) {
	s.state.Store(newState)
}

func (s *Service) transitionState(from, to types.State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) startComponents(ctx context.Context) error {
	c := s.container

	start := func(name string, component types.LifecycleManager) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := component.Start(); err != nil {
			return types.WrapError(err, "failed to start "+name)
		}
		return nil
	}

	g, _ := errgroup.WithContext(ctx)

	if c.HasMetrics() {
		g.Go(func() error { return start("metrics manager", c.Metrics()) })
	}

	g.Go(func() error { return start("cache registry", c.Caches()) })

	if c.HasStore() {
		g.Go(func() error { return start("response cache", c.Store()) })
	}

	if c.HasTLSManager() {
		g.Go(func() error { return start("tls manager", c.TLSManager()) })
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if c.HasHealth() {
		if err := start("health manager", c.Health()); err != nil {
			return err
		}
	}

	if err := start("http server", c.HTTPServer()); err != nil {
		return err
	}

	if c.HasCron() {
		if err := start("cron manager", c.Cron()); err != nil {
			return err
		}
	}

	s.logger.Info("All components started successfully")
	return nil
}

// stopComponents stops in reverse start order: traffic first, then the
// background work, then the stores it used.
func (s *Service) stopComponents() error {
	c := s.container

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error

	stop := func(name string, component types.LifecycleManager) error {
		if !component.IsRunning() {
			return nil
		}
		if err := component.Stop(); err != nil {
			s.logger.Error("Failed to stop "+name, zap.Error(err))
			return err
		}
		return nil
	}

	s.logger.Info("Stopping service components...")

	g, gCtx := errgroup.WithContext(ctx)

	if c.HasCron() {
		g.Go(func() error { return stop("cron manager", c.Cron()) })
	}

	g.Go(func() error { return stop("http server", c.HTTPServer()) })

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	g, gCtx = errgroup.WithContext(ctx)

	if c.HasHealth() {
		g.Go(func() error { return stop("health manager", c.Health()) })
	}

	if c.HasTLSManager() {
		g.Go(func() error { return stop("tls manager", c.TLSManager()) })
	}

	if c.HasStore() {
		g.Go(func() error { return stop("response cache", c.Store()) })
	}

	g.Go(func() error { return stop("cache registry", c.Caches()) })

	if c.HasMetrics() {
		g.Go(func() error { return stop("metrics manager", c.Metrics()) })
	}

	if c.HasSnippets() {
		g.Go(func() error { return c.Snippets().Close(gCtx) })
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if ctx.Err() != nil {
		s.logger.Warn("Component shutdown timeout, some components may not have stopped gracefully")
	}

	if len(errs) > 0 {
		return types.WrapError(errors.Join(errs...), "errors during shutdown")
	}

	s.logger.Info("All components stopped successfully")
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(types.StateRunning, types.StateStopping) {
				s.cancel()
			}
		case <-s.ctx.Done():
		}
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case errors.Is(err, context.Canceled):
		s.logger.Info("Service shutdown: context cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger.Info("Service shutdown: context done")
	}
}

func (s *Service) registerProviders(configManager types.ConfigManager) error {
	ctx := s.ctx
	c := s.container
	cfg := configManager.GetConfig()

	c.SetConfig(configManager)

	if s.logger == nil {
		loggerManager, err := logger.NewLogger(cfg.Logger)
		if err != nil {
			return types.WrapError(err, "failed to register logger")
		}
		s.logger = loggerManager
	}
	c.SetLogger(s.logger)
	log := s.logger

	// Resources opened below are released if a later provider fails.
	var release []func() error
	registered := false
	defer func() {
		if registered {
			return
		}
		for i := len(release) - 1; i >= 0; i-- {
			if err := release[i](); err != nil {
				log.Warn("Failed to release provider after registration error", zap.Error(err))
			}
		}
	}()

	var metricsManager types.MetricsManager
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		prometheusMetrics, err := metrics.NewPrometheusMetrics(ctx, log, cfg.Metrics)
		if err != nil {
			return types.WrapError(err, "failed to register metrics manager")
		}
		metricsManager = prometheusMetrics
		c.SetMetrics(metricsManager)
	}

	var instances map[string]*types.MemoryCacheConfig
	if cfg.Cache != nil {
		instances = cfg.Cache.Instances
	}

	registry, err := cache.NewRegistry(ctx, log, instances)
	if err != nil {
		return types.WrapError(err, "failed to register cache registry")
	}
	c.SetCaches(registry)

	var store types.CacheStore
	if cfg.Cache != nil && cfg.Cache.Enabled {
		store, err = cache.NewStore(ctx, configManager, log, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register response cache")
		}
		c.SetStore(store)
		release = append(release, func() error { return cache.CloseStore(store) })
	}

	var limiterOpts []ratelimit.Option
	if metricsManager != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithMetrics(metricsManager))
	}

	limiter, err := ratelimit.New(cfg.RateLimit, log, limiterOpts...)
	if err != nil {
		return types.WrapError(err, "failed to register rate limiter")
	}
	c.SetLimiter(limiter)

	responder := apierrors.NewResponder(log)

	middlewareManager := middleware.NewManager(ctx, configManager, log, metricsManager, responder, limiter, store)
	if err := middlewareManager.RegisterMiddlewares(); err != nil {
		return types.WrapError(err, "failed to register middlewares")
	}
	c.SetMiddlewares(middlewareManager)

	router := server.NewRouter()
	c.SetRouter(router)

	if metricsManager != nil {
		metricsManager.RegisterRoutes(router)
	}

	repo, err := snippets.NewRepository(ctx, cfg.Storage, log)
	if err != nil {
		return types.WrapError(err, "failed to register snippet storage")
	}
	c.SetSnippets(repo)
	release = append(release, func() error { return repo.Close(context.Background()) })

	// The response cache is optional; revisions then live in the app cache
	// where nothing reads them.
	revisionStore := store
	if revisionStore == nil {
		revisionStore = registry.App()
	}

	snippets.NewHandlers(repo, responder, registry, cache.NewRevisions(revisionStore), log).RegisterRoutes(router)

	var tlsManager types.TLSManager
	if cfg.Server != nil && cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		certManager, err := tls.NewCertManager(ctx, log, configManager)
		if err != nil {
			return types.WrapError(err, "failed to register TLS manager")
		}
		tlsManager = certManager
		c.SetTLSManager(certManager)
	}

	if cfg.Health != nil && cfg.Health.Enabled {
		healthManager, err := health.NewManager(ctx, configManager, log, router)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}

		healthManager.RegisterChecker("storage", health.PingCheck(repo.Ping))
		healthManager.RegisterChecker("caches", health.StatsCheck(func() map[string]interface{} {
			stats := make(map[string]interface{})
			for name, st := range registry.Stats() {
				stats[name] = map[string]interface{}{"size": st.TotalSize, "hitRate": st.HitRate()}
			}
			return stats
		}))
		if store != nil {
			healthManager.RegisterChecker("response_cache", health.CacheStoreCheck(store))
		}
		if certManager, ok := tlsManager.(*tls.CertManager); ok {
			healthManager.RegisterChecker("tls", certManager.HealthCheck())
		}

		c.SetHealth(healthManager)
	}

	if cfg.Cron != nil && cfg.Cron.Enabled {
		cronManager, err := cron.NewManager(ctx, configManager, log, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}

		if err := s.registerJobs(cronManager, cfg, limiter, registry, metricsManager); err != nil {
			return err
		}

		c.SetCron(cronManager)
	}

	var serverOpts []server.Option
	if s.listener != nil {
		serverOpts = append(serverOpts, server.WithListener(s.listener))
	}

	httpServer, err := server.NewHTTPServer(ctx, configManager, log, middlewareManager, tlsManager, router, serverOpts...)
	if err != nil {
		return types.WrapError(err, "failed to register HTTP server")
	}
	c.SetHTTPServer(httpServer)

	registered = true
	return nil
}

func (s *Service) registerJobs(
	cronManager *cron.Manager,
	cfg *types.ServiceConfig,
	limiter types.RateLimiter,
	registry *cache.Registry,
	metricsManager types.MetricsManager,
) error {
	if cfg.RateLimit != nil && cfg.RateLimit.CleanupSchedule != "" {
		if err := cronManager.Add(cron.LimiterCleanupJob, cfg.RateLimit.CleanupSchedule,
			cron.NewLimiterCleanupJob(limiter, s.logger)); err != nil {
			return types.WrapError(err, "failed to register rate limit cleanup job")
		}
	}

	if cfg.Cron.CacheStatsSchedule != "" {
		if err := cronManager.Add(cron.CacheStatsJob, cfg.Cron.CacheStatsSchedule,
			cron.NewCacheStatsJob(registry, s.logger, metricsManager)); err != nil {
			return types.WrapError(err, "failed to register cache stats job")
		}
	}

	return nil
}
