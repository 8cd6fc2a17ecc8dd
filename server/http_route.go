package server

import (
	"slices"
	"time"

	"github.com/saiset-co/kodespace/types"
)

const maxMiddlewareSliceSize = 64

type RouteBuilder struct {
	router  *Router
	method  string
	path    string
	handler types.HandlerFunc
	config  *types.RouteConfig
}

// WithCache enables the response cache for the route. Bumping any of
// dependencies through cache.Revisions invalidates the cached responses.
func (rb *RouteBuilder) WithCache(ttl time.Duration, dependencies ...string) types.RouteBuilder {
	rb.config.Cache = &types.CacheHandlerConfig{
		Enabled: true,
		TTL:     ttl,
		Deps:    dependencies,
	}
	return rb
}

func (rb *RouteBuilder) WithMiddlewares(names ...string) types.RouteBuilder {
	rb.config.Middlewares = appendUnique(rb.config.Middlewares, names...)
	return rb
}

func (rb *RouteBuilder) WithoutMiddlewares(names ...string) types.RouteBuilder {
	rb.config.DisabledMiddlewares = appendUnique(rb.config.DisabledMiddlewares, names...)
	return rb
}

// WithRoles restricts the route to the given roles and turns on the auth
// and role gates.
func (rb *RouteBuilder) WithRoles(roles ...string) types.RouteBuilder {
	rb.config.Roles = appendUnique(rb.config.Roles, roles...)
	rb.config.Middlewares = appendUnique(rb.config.Middlewares, "auth", "role")
	return rb
}

// WithRateLimit gives the route its own counters. keyBy is "ip" or "user";
// empty keeps the middleware default.
func (rb *RouteBuilder) WithRateLimit(limit int, window time.Duration, keyBy string) types.RouteBuilder {
	rb.config.RateLimit = &types.RateLimitRule{
		Limit:  limit,
		Window: window,
		KeyBy:  keyBy,
		Scope:  rb.method + " " + rb.path,
	}
	rb.config.Middlewares = appendUnique(rb.config.Middlewares, "rate_limit")
	return rb
}

func (rb *RouteBuilder) WithTimeout(duration time.Duration) types.RouteBuilder {
	rb.config.Timeout = duration
	return rb
}

func (rb *RouteBuilder) Finalize() error {
	if rb.handler == nil {
		return types.ErrHandlerIsNil
	}

	if _, ok := methodIndex[rb.method]; !ok {
		return types.Errorf(types.ErrRouteInvalid, "unsupported method %s", rb.method)
	}

	if len(rb.config.Middlewares) > maxMiddlewareSliceSize || len(rb.config.DisabledMiddlewares) > maxMiddlewareSliceSize {
		return types.Errorf(types.ErrRouteInvalid, "too many middlewares")
	}

	if rb.config.RateLimit != nil && rb.config.RateLimit.Limit < 0 {
		return types.Errorf(types.ErrRouteInvalid, "negative rate limit")
	}

	configCopy := &types.RouteConfig{
		Cache:               rb.config.Cache,
		Middlewares:         slices.Clone(rb.config.Middlewares),
		DisabledMiddlewares: slices.Clone(rb.config.DisabledMiddlewares),
		Roles:               slices.Clone(rb.config.Roles),
		RateLimit:           rb.config.RateLimit,
		Timeout:             rb.config.Timeout,
	}

	rb.router.Add(rb.method, rb.path, rb.handler, configCopy)

	return nil
}

func appendUnique(list []string, values ...string) []string {
	for _, value := range values {
		if !slices.Contains(list, value) {
			list = append(list, value)
		}
	}
	return list
}
