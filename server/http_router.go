package server

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

var methodIndex = map[string]uint8{
	"GET":     0,
	"POST":    1,
	"PUT":     2,
	"DELETE":  3,
	"PATCH":   4,
	"HEAD":    5,
	"OPTIONS": 6,
	"TRACE":   7,
}

var methodNames = [8]string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS", "TRACE"}

// Router matches static paths through a map and parameterized patterns
// ({id} or :id segments) through a segment trie. Static segments win over
// parameters at the same depth.
type Router struct {
	root          *RouteNode
	staticRoutes  map[string]*types.RouteInfo
	pendingRoutes []*RouteBuilder
	mu            sync.RWMutex
}

type RouteNode struct {
	staticChildren map[string]*RouteNode
	paramChild     *RouteNode
	paramName      string
	methodMask     uint8
	routes         [8]*types.RouteInfo
}

func NewRouter() *Router {
	return &Router{
		root:         newRouteNode(),
		staticRoutes: make(map[string]*types.RouteInfo),
	}
}

func newRouteNode() *RouteNode {
	return &RouteNode{staticChildren: make(map[string]*RouteNode)}
}

func (r *Router) Add(method, path string, handler types.HandlerFunc, config *types.RouteConfig) {
	methodIdx, exists := methodIndex[method]
	if !exists || handler == nil {
		return
	}

	if config == nil {
		config = &types.RouteConfig{}
	}

	path = normalizePath(path)
	info := &types.RouteInfo{Method: method, Path: path, Handler: handler, Config: config}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !isPattern(path) {
		r.staticRoutes[method+":"+path] = info
		return
	}

	node := r.root
	for _, segment := range splitPath(path) {
		if name, ok := paramName(segment); ok {
			if node.paramChild == nil {
				node.paramChild = newRouteNode()
				node.paramChild.paramName = name
			}
			node = node.paramChild
			continue
		}

		child, exists := node.staticChildren[segment]
		if !exists {
			child = newRouteNode()
			node.staticChildren[segment] = child
		}
		node = child
	}

	node.routes[methodIdx] = info
	node.methodMask |= 1 << methodIdx
}

// Lookup returns the route for method and path together with the captured
// path parameters, or nil when nothing matches.
func (r *Router) Lookup(method, path string) (*types.RouteInfo, map[string]string) {
	methodIdx, exists := methodIndex[method]
	if !exists {
		return nil, nil
	}

	path = normalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if info := r.staticRoutes[method+":"+path]; info != nil {
		return info, nil
	}

	params := make(map[string]string)
	node := r.findNode(r.root, splitPath(path), params)
	if node == nil || node.methodMask&(1<<methodIdx) == 0 {
		return nil, nil
	}

	return node.routes[methodIdx], params
}

// AllowedMethods lists the methods registered for path, sorted.
func (r *Router) AllowedMethods(path string) []string {
	path = normalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	node := r.findNode(r.root, splitPath(path), make(map[string]string))

	var allowed []string
	for idx, name := range methodNames {
		if r.staticRoutes[name+":"+path] != nil || (node != nil && node.methodMask&(1<<idx) != 0) {
			allowed = append(allowed, name)
		}
	}

	sort.Strings(allowed)
	return allowed
}

func (r *Router) findNode(node *RouteNode, segments []string, params map[string]string) *RouteNode {
	if len(segments) == 0 {
		if node.methodMask != 0 {
			return node
		}
		return nil
	}

	segment := segments[0]

	if child, exists := node.staticChildren[segment]; exists {
		if found := r.findNode(child, segments[1:], params); found != nil {
			return found
		}
	}

	if node.paramChild != nil {
		params[node.paramChild.paramName] = segment
		if found := r.findNode(node.paramChild, segments[1:], params); found != nil {
			return found
		}
		delete(params, node.paramChild.paramName)
	}

	return nil
}

// Handler dispatches one request. Unknown routes still run through the
// global middlewares so 404 and 405 replies use the error envelope.
func (r *Router) Handler(ctx *fasthttp.RequestCtx, server types.HTTPServer) {
	method := string(ctx.Method())
	path := string(ctx.Path())

	info, params := r.Lookup(method, path)
	if info != nil {
		if len(params) > 0 {
			ctx.SetUserValue(utils.RouteParamsKey, params)
		}
		server.HandleRequest(ctx, info.Handler, info.Config)
		return
	}

	if allowed := r.AllowedMethods(path); len(allowed) > 0 && method != fasthttp.MethodOptions {
		server.HandleRequest(ctx, methodNotAllowed(allowed), nil)
		return
	}

	server.HandleRequest(ctx, notFound, nil)
}

func notFound(ctx *fasthttp.RequestCtx) error {
	return apierrors.NewNotFoundError("Route " + string(ctx.Method()) + " " + string(ctx.Path()) + " not found")
}

func methodNotAllowed(allowed []string) types.HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		ctx.Response.Header.Set("Allow", strings.Join(allowed, ", "))
		return apierrors.NewAppError(apierrors.CodeInvalidInput, "Method not allowed", http.StatusMethodNotAllowed,
			map[string]interface{}{"allowed": allowed})
	}
}

func (r *Router) Route(method, path string, handler types.HandlerFunc, parent *GroupBuilder) *RouteBuilder {
	rb := &RouteBuilder{
		router:  r,
		method:  method,
		path:    path,
		handler: handler,
		config:  &types.RouteConfig{},
	}

	if parent != nil {
		parent.apply(rb.config)
	}

	r.mu.Lock()
	r.pendingRoutes = append(r.pendingRoutes, rb)
	r.mu.Unlock()

	return rb
}

func (r *Router) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: r,
		prefix: prefix,
		config: &types.RouteConfig{},
	}
}

func (r *Router) GET(path string, handler types.HandlerFunc) types.RouteBuilder {
	return r.Route(fasthttp.MethodGet, path, handler, nil)
}

func (r *Router) POST(path string, handler types.HandlerFunc) types.RouteBuilder {
	return r.Route(fasthttp.MethodPost, path, handler, nil)
}

func (r *Router) PUT(path string, handler types.HandlerFunc) types.RouteBuilder {
	return r.Route(fasthttp.MethodPut, path, handler, nil)
}

func (r *Router) PATCH(path string, handler types.HandlerFunc) types.RouteBuilder {
	return r.Route(fasthttp.MethodPatch, path, handler, nil)
}

func (r *Router) DELETE(path string, handler types.HandlerFunc) types.RouteBuilder {
	return r.Route(fasthttp.MethodDelete, path, handler, nil)
}

// FinalizePendingRoutes registers every route declared through the
// builders. Builders may be configured until this runs.
func (r *Router) FinalizePendingRoutes() error {
	r.mu.Lock()
	routes := r.pendingRoutes
	r.pendingRoutes = nil
	r.mu.Unlock()

	var failed []string
	for _, route := range routes {
		if err := route.Finalize(); err != nil {
			failed = append(failed, route.method+" "+route.path+": "+err.Error())
		}
	}

	if len(failed) > 0 {
		return types.Errorf(types.ErrRouteInvalid, "%s", strings.Join(failed, "; "))
	}

	return nil
}

func (r *Router) GetAllRoutes() map[string]*types.RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string]*types.RouteInfo, len(r.staticRoutes))
	for key, info := range r.staticRoutes {
		routes[key] = info
	}

	r.collectTrieRoutes(r.root, routes)

	return routes
}

func (r *Router) collectTrieRoutes(node *RouteNode, routes map[string]*types.RouteInfo) {
	for _, info := range node.routes {
		if info != nil {
			routes[info.Method+":"+info.Path] = info
		}
	}

	for _, child := range node.staticChildren {
		r.collectTrieRoutes(child, routes)
	}

	if node.paramChild != nil {
		r.collectTrieRoutes(node.paramChild, routes)
	}
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if path[0] != '/' {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func isPattern(path string) bool {
	for _, segment := range splitPath(path) {
		if _, ok := paramName(segment); ok {
			return true
		}
	}
	return false
}

func paramName(segment string) (string, bool) {
	if len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}' {
		return segment[1 : len(segment)-1], true
	}
	if len(segment) > 1 && segment[0] == ':' {
		return segment[1:], true
	}
	return "", false
}
