package sai

import (
	"sync/atomic"

	"github.com/saiset-co/kodespace/cache"
	"github.com/saiset-co/kodespace/server"
	"github.com/saiset-co/kodespace/snippets"
	"github.com/saiset-co/kodespace/types"
)

// Container holds the components built by the service. Getters panic when a
// component was never registered; optional components expose a Has check.
type Container struct {
	config      atomic.Pointer[types.ConfigManager]
	logger      atomic.Pointer[types.LoggerManager]
	metrics     atomic.Pointer[types.MetricsManager]
	caches      atomic.Pointer[cache.Registry]
	store       atomic.Pointer[types.CacheStore]
	limiter     atomic.Pointer[types.RateLimiter]
	middlewares atomic.Pointer[types.MiddlewareManager]
	router      atomic.Pointer[server.Router]
	httpServer  atomic.Pointer[server.FastHTTPServer]
	health      atomic.Pointer[types.HealthManager]
	cron        atomic.Pointer[types.CronManager]
	tlsManager  atomic.Pointer[types.TLSManager]
	snippets    atomic.Pointer[snippets.Repository]
}

func NewContainer() *Container {
	return &Container{}
}

func load[T any](ptr *atomic.Pointer[T], name string) T {
	if value := ptr.Load(); value != nil {
		return *value
	}
	panic(name + " not initialized")
}

func (c *Container) SetConfig(config types.ConfigManager) { c.config.Store(&config) }
func (c *Container) Config() types.ConfigManager          { return load(&c.config, "ConfigManager") }

func (c *Container) SetLogger(logger types.LoggerManager) { c.logger.Store(&logger) }
func (c *Container) Logger() types.LoggerManager          { return load(&c.logger, "Logger") }

func (c *Container) SetMetrics(metrics types.MetricsManager) { c.metrics.Store(&metrics) }
func (c *Container) Metrics() types.MetricsManager           { return load(&c.metrics, "MetricsManager") }
func (c *Container) HasMetrics() bool                        { return c.metrics.Load() != nil }

func (c *Container) SetCaches(registry *cache.Registry) { c.caches.Store(registry) }
func (c *Container) Caches() *cache.Registry {
	if registry := c.caches.Load(); registry != nil {
		return registry
	}
	panic("cache registry not initialized")
}

func (c *Container) SetStore(store types.CacheStore) { c.store.Store(&store) }
func (c *Container) Store() types.CacheStore         { return load(&c.store, "CacheStore") }
func (c *Container) HasStore() bool                  { return c.store.Load() != nil }

func (c *Container) SetLimiter(limiter types.RateLimiter) { c.limiter.Store(&limiter) }
func (c *Container) Limiter() types.RateLimiter           { return load(&c.limiter, "RateLimiter") }

func (c *Container) SetMiddlewares(middlewares types.MiddlewareManager) {
	c.middlewares.Store(&middlewares)
}
func (c *Container) Middlewares() types.MiddlewareManager {
	return load(&c.middlewares, "MiddlewareManager")
}

func (c *Container) SetRouter(router *server.Router) { c.router.Store(router) }
func (c *Container) Router() *server.Router {
	if router := c.router.Load(); router != nil {
		return router
	}
	panic("Router not initialized")
}

func (c *Container) SetHTTPServer(httpServer *server.FastHTTPServer) { c.httpServer.Store(httpServer) }
func (c *Container) HTTPServer() *server.FastHTTPServer {
	if httpServer := c.httpServer.Load(); httpServer != nil {
		return httpServer
	}
	panic("HTTPServer not initialized")
}

func (c *Container) SetHealth(health types.HealthManager) { c.health.Store(&health) }
func (c *Container) Health() types.HealthManager          { return load(&c.health, "HealthManager") }
func (c *Container) HasHealth() bool                      { return c.health.Load() != nil }

func (c *Container) SetCron(cron types.CronManager) { c.cron.Store(&cron) }
func (c *Container) Cron() types.CronManager        { return load(&c.cron, "CronManager") }
func (c *Container) HasCron() bool                  { return c.cron.Load() != nil }

func (c *Container) SetTLSManager(tlsManager types.TLSManager) { c.tlsManager.Store(&tlsManager) }
func (c *Container) TLSManager() types.TLSManager              { return load(&c.tlsManager, "TLSManager") }
func (c *Container) HasTLSManager() bool                       { return c.tlsManager.Load() != nil }

func (c *Container) SetSnippets(repo snippets.Repository) { c.snippets.Store(&repo) }
func (c *Container) Snippets() snippets.Repository        { return load(&c.snippets, "SnippetRepository") }
func (c *Container) HasSnippets() bool                    { return c.snippets.Load() != nil }
