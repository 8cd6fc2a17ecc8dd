package types

import "github.com/valyala/fasthttp"

type MiddlewareManager interface {
	RegisterMiddlewares() error
	Register(middleware Middleware) error
	Execute(ctx *fasthttp.RequestCtx, handler HandlerFunc, config *RouteConfig) error
	Names() []string
	Clear()
}

type Middleware interface {
	Handle(ctx *fasthttp.RequestCtx, next HandlerFunc, config *RouteConfig) error
	Name() string
	Weight() int
}

// RouteScoped middlewares run only on routes that list them by name.
type RouteScoped interface {
	RouteScoped() bool
}

type MiddlewareEntry struct {
	Name       string
	Middleware Middleware
	Weight     int
	Global     bool
}
