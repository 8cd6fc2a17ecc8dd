package middleware

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/types"
)

const MaxMiddlewares = 64

// Manager orders middlewares by weight and runs the subset enabled for a
// route. Global middlewares run everywhere unless a route disables them;
// route-scoped ones run only where a route names them.
type Manager struct {
	ctx                context.Context
	config             types.ConfigManager
	logger             types.Logger
	metrics            types.MetricsManager
	responder          *apierrors.Responder
	limiter            types.RateLimiter
	store              types.CacheStore
	pending            map[string]*types.MiddlewareEntry
	orderedMiddlewares []types.MiddlewareEntry
	nameToIndex        map[string]int
	defaultEnabledMask uint64
	compiledChains     map[uint64]*CompiledChain
	mu                 sync.Mutex
	chainsMu           sync.RWMutex
	initialized        int32
}

type CompiledChain struct {
	mask        uint64
	middlewares []types.Middleware
}

func NewManager(
	ctx context.Context,
	config types.ConfigManager,
	logger types.Logger,
	metrics types.MetricsManager,
	responder *apierrors.Responder,
	limiter types.RateLimiter,
	store types.CacheStore,
) *Manager {
	return &Manager{
		ctx:            ctx,
		config:         config,
		logger:         logger,
		metrics:        metrics,
		responder:      responder,
		limiter:        limiter,
		store:          store,
		pending:        make(map[string]*types.MiddlewareEntry),
		nameToIndex:    make(map[string]int),
		compiledChains: make(map[uint64]*CompiledChain),
	}
}

// RegisterMiddlewares builds every middleware enabled in config and
// finalizes the chain.
func (m *Manager) RegisterMiddlewares() error {
	mwConfig := m.config.GetConfig().Middlewares
	if mwConfig == nil || !mwConfig.Enabled {
		return m.Finalize()
	}

	candidates := []struct {
		item  *types.MiddlewareItemConfig
		build func() types.Middleware
	}{
		{mwConfig.Metadata, func() types.Middleware { return NewMetadataMiddleware(m.config, m.logger) }},
		{mwConfig.Logging, func() types.Middleware { return NewLoggingMiddleware(m.config, m.logger, m.metrics) }},
		{mwConfig.Errors, func() types.Middleware { return NewErrorsMiddleware(m.config, m.responder) }},
		{mwConfig.Recovery, func() types.Middleware { return NewRecoveryMiddleware(m.config, m.logger, m.metrics) }},
		{mwConfig.CORS, func() types.Middleware { return NewCORSMiddleware(m.config, m.logger) }},
		{mwConfig.BodyLimit, func() types.Middleware { return NewBodyLimitMiddleware(m.config, m.logger) }},
		{mwConfig.RateLimit, func() types.Middleware { return NewRateLimitMiddleware(m.config, m.logger, m.limiter) }},
		{mwConfig.Auth, func() types.Middleware { return NewAuthMiddleware(m.config, m.logger) }},
		{mwConfig.EmailVerified, func() types.Middleware { return NewEmailVerifiedMiddleware(m.config, m.logger) }},
		{mwConfig.Role, func() types.Middleware { return NewRoleMiddleware(m.config, m.logger) }},
		{mwConfig.Compression, func() types.Middleware { return NewCompressionMiddleware(m.config, m.logger) }},
		{mwConfig.Cache, func() types.Middleware {
			if m.store == nil {
				return nil
			}
			return NewCacheMiddleware(m.config, m.logger, m.store)
		}},
	}

	for _, candidate := range candidates {
		if candidate.item == nil || !candidate.item.Enabled {
			continue
		}

		mw := candidate.build()
		if mw == nil {
			m.logger.Warn("Middleware skipped: dependency not available")
			continue
		}

		if err := m.Register(mw); err != nil {
			return err
		}

		m.logger.Debug("Middleware registered", zap.String("middleware", mw.Name()), zap.Int("weight", mw.Weight()))
	}

	return m.Finalize()
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.ErrMiddlewareIsNil
	}

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.Errorf(types.ErrInvalidState, "cannot register middleware %s after finalization", middleware.Name())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) >= MaxMiddlewares {
		return types.Errorf(types.ErrInvalidParameter, "maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	name := middleware.Name()
	if _, exists := m.pending[name]; exists {
		return types.Errorf(types.ErrMiddlewareExists, "name: %s", name)
	}

	global := true
	if scoped, ok := middleware.(types.RouteScoped); ok && scoped.RouteScoped() {
		global = false
	}

	m.pending[name] = &types.MiddlewareEntry{
		Name:       name,
		Middleware: middleware,
		Weight:     middleware.Weight(),
		Global:     global,
	}

	return nil
}

// Finalize sorts the registered middlewares. Weights must be unique.
func (m *Manager) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if atomic.LoadInt32(&m.initialized) == 1 {
		return types.Errorf(types.ErrInvalidState, "middleware chain already finalized")
	}

	weights := make(map[int]string, len(m.pending))
	for name, entry := range m.pending {
		if existingName, exists := weights[entry.Weight]; exists {
			return types.Errorf(types.ErrInvalidParameter, "duplicate weight %d for middlewares '%s' and '%s'",
				entry.Weight, existingName, name)
		}
		weights[entry.Weight] = name
	}

	m.orderedMiddlewares = make([]types.MiddlewareEntry, 0, len(m.pending))
	for _, entry := range m.pending {
		m.orderedMiddlewares = append(m.orderedMiddlewares, *entry)
	}

	sort.Slice(m.orderedMiddlewares, func(i, j int) bool {
		return m.orderedMiddlewares[i].Weight < m.orderedMiddlewares[j].Weight
	})

	m.nameToIndex = make(map[string]int, len(m.orderedMiddlewares))
	m.defaultEnabledMask = 0
	for i, entry := range m.orderedMiddlewares {
		m.nameToIndex[entry.Name] = i
		if entry.Global {
			m.defaultEnabledMask |= 1 << uint(i)
		}
	}

	m.pending = nil
	atomic.StoreInt32(&m.initialized, 1)

	return nil
}

func (m *Manager) Execute(ctx *fasthttp.RequestCtx, handler types.HandlerFunc, config *types.RouteConfig) error {
	if atomic.LoadInt32(&m.initialized) == 0 {
		return handler(ctx)
	}

	mask := m.routeMask(config)
	if mask == 0 {
		return handler(ctx)
	}

	return m.chainFor(mask).run(ctx, handler, config)
}

// Names lists the middlewares in execution order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.orderedMiddlewares))
	for _, entry := range m.orderedMiddlewares {
		names = append(names, entry.Name)
	}
	return names
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orderedMiddlewares = nil
	m.nameToIndex = make(map[string]int)
	m.defaultEnabledMask = 0
	m.pending = make(map[string]*types.MiddlewareEntry)

	m.chainsMu.Lock()
	m.compiledChains = make(map[uint64]*CompiledChain)
	m.chainsMu.Unlock()

	atomic.StoreInt32(&m.initialized, 0)

	m.logger.Info("Middleware manager cleared")
}

func (m *Manager) routeMask(config *types.RouteConfig) uint64 {
	mask := m.defaultEnabledMask
	if config == nil {
		return mask
	}

	for _, name := range config.Middlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask |= 1 << uint(index)
		}
	}

	for _, name := range config.DisabledMiddlewares {
		if index, exists := m.nameToIndex[name]; exists {
			mask &^= 1 << uint(index)
		}
	}

	return mask
}

func (m *Manager) chainFor(mask uint64) *CompiledChain {
	m.chainsMu.RLock()
	chain := m.compiledChains[mask]
	m.chainsMu.RUnlock()

	if chain != nil {
		return chain
	}

	active := make([]types.Middleware, 0, len(m.orderedMiddlewares))
	for i, entry := range m.orderedMiddlewares {
		if mask&(1<<uint(i)) != 0 {
			active = append(active, entry.Middleware)
		}
	}

	chain = &CompiledChain{mask: mask, middlewares: active}

	m.chainsMu.Lock()
	m.compiledChains[mask] = chain
	m.chainsMu.Unlock()

	return chain
}

func (c *CompiledChain) run(ctx *fasthttp.RequestCtx, handler types.HandlerFunc, config *types.RouteConfig) error {
	var index int

	var next types.HandlerFunc
	next = func(ctx *fasthttp.RequestCtx) error {
		if index >= len(c.middlewares) {
			return handler(ctx)
		}

		mw := c.middlewares[index]
		index++
		return mw.Handle(ctx, next, config)
	}

	return next(ctx)
}

func itemConfig(config types.ConfigManager, pick func(*types.MiddlewaresConfig) *types.MiddlewareItemConfig) *types.MiddlewareItemConfig {
	if cfg := config.GetConfig(); cfg != nil && cfg.Middlewares != nil {
		if item := pick(cfg.Middlewares); item != nil {
			return item
		}
	}
	return &types.MiddlewareItemConfig{}
}
