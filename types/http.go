package types

import (
	"time"

	"github.com/valyala/fasthttp"
)

// HandlerFunc is a route handler. A returned error is turned into the JSON
// error envelope by the error middleware.
type HandlerFunc func(ctx *fasthttp.RequestCtx) error

type HTTPServer interface {
	LifecycleManager
	HandleRequest(ctx *fasthttp.RequestCtx, handler HandlerFunc, config *RouteConfig)
}

type HTTPRouter interface {
	Add(method, path string, handler HandlerFunc, config *RouteConfig)
	Group(prefix string) GroupBuilder
	GET(path string, handler HandlerFunc) RouteBuilder
	POST(path string, handler HandlerFunc) RouteBuilder
	PUT(path string, handler HandlerFunc) RouteBuilder
	PATCH(path string, handler HandlerFunc) RouteBuilder
	DELETE(path string, handler HandlerFunc) RouteBuilder
	Lookup(method, path string) (*RouteInfo, map[string]string)
	GetAllRoutes() map[string]*RouteInfo
}

type RouteBuilder interface {
	WithCache(ttl time.Duration, dependencies ...string) RouteBuilder
	WithMiddlewares(names ...string) RouteBuilder
	WithoutMiddlewares(names ...string) RouteBuilder
	WithRoles(roles ...string) RouteBuilder
	WithRateLimit(limit int, window time.Duration, keyBy string) RouteBuilder
	WithTimeout(duration time.Duration) RouteBuilder
}

type GroupBuilder interface {
	WithMiddlewares(names ...string) GroupBuilder
	WithoutMiddlewares(names ...string) GroupBuilder
	WithRoles(roles ...string) GroupBuilder
	WithTimeout(duration time.Duration) GroupBuilder
	Route(method, path string, handler HandlerFunc) RouteBuilder
	GET(path string, handler HandlerFunc) RouteBuilder
	POST(path string, handler HandlerFunc) RouteBuilder
	PATCH(path string, handler HandlerFunc) RouteBuilder
	PUT(path string, handler HandlerFunc) RouteBuilder
	DELETE(path string, handler HandlerFunc) RouteBuilder
	Group(prefix string) GroupBuilder
}

type RouteConfig struct {
	Cache               *CacheHandlerConfig
	Middlewares         []string
	DisabledMiddlewares []string
	Roles               []string
	RateLimit           *RateLimitRule
	Timeout             time.Duration
}

type RouteInfo struct {
	Method  string
	Path    string
	Handler HandlerFunc
	Config  *RouteConfig
}
