package server

import (
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/types"
)

// GroupBuilder shares a path prefix and route settings. Settings apply to
// routes declared after them; nested groups inherit their parent's.
type GroupBuilder struct {
	router *Router
	prefix string
	config *types.RouteConfig
}

func (gb *GroupBuilder) WithMiddlewares(names ...string) types.GroupBuilder {
	gb.config.Middlewares = appendUnique(gb.config.Middlewares, names...)
	return gb
}

func (gb *GroupBuilder) WithoutMiddlewares(names ...string) types.GroupBuilder {
	gb.config.DisabledMiddlewares = appendUnique(gb.config.DisabledMiddlewares, names...)
	return gb
}

func (gb *GroupBuilder) WithRoles(roles ...string) types.GroupBuilder {
	gb.config.Roles = appendUnique(gb.config.Roles, roles...)
	gb.config.Middlewares = appendUnique(gb.config.Middlewares, "auth", "role")
	return gb
}

func (gb *GroupBuilder) WithTimeout(duration time.Duration) types.GroupBuilder {
	gb.config.Timeout = duration
	return gb
}

func (gb *GroupBuilder) Route(method, path string, handler types.HandlerFunc) types.RouteBuilder {
	return gb.router.Route(method, gb.prefix+path, handler, gb)
}

func (gb *GroupBuilder) GET(path string, handler types.HandlerFunc) types.RouteBuilder {
	return gb.Route(fasthttp.MethodGet, path, handler)
}

func (gb *GroupBuilder) POST(path string, handler types.HandlerFunc) types.RouteBuilder {
	return gb.Route(fasthttp.MethodPost, path, handler)
}

func (gb *GroupBuilder) PUT(path string, handler types.HandlerFunc) types.RouteBuilder {
	return gb.Route(fasthttp.MethodPut, path, handler)
}

func (gb *GroupBuilder) PATCH(path string, handler types.HandlerFunc) types.RouteBuilder {
	return gb.Route(fasthttp.MethodPatch, path, handler)
}

func (gb *GroupBuilder) DELETE(path string, handler types.HandlerFunc) types.RouteBuilder {
	return gb.Route(fasthttp.MethodDelete, path, handler)
}

func (gb *GroupBuilder) Group(prefix string) types.GroupBuilder {
	child := &GroupBuilder{
		router: gb.router,
		prefix: gb.prefix + prefix,
		config: &types.RouteConfig{},
	}
	gb.apply(child.config)
	return child
}

func (gb *GroupBuilder) apply(config *types.RouteConfig) {
	config.Middlewares = appendUnique(config.Middlewares, gb.config.Middlewares...)
	config.DisabledMiddlewares = appendUnique(config.DisabledMiddlewares, gb.config.DisabledMiddlewares...)
	config.Roles = appendUnique(config.Roles, gb.config.Roles...)
	if gb.config.Timeout > 0 && config.Timeout == 0 {
		config.Timeout = gb.config.Timeout
	}
}
