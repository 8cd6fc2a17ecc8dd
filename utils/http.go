package utils

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderUserID        = "X-User-ID"
	HeaderUserRole      = "X-User-Role"
	HeaderEmailVerified = "X-Email-Verified"
	HeaderRetryAfter    = "Retry-After"
)

func WriteJSON(ctx *fasthttp.RequestCtx, status int, body []byte) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

func SetNoCacheHeaders(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")
}

// RealIP prefers proxy headers over the socket address.
func RealIP(ctx *fasthttp.RequestCtx) string {
	if ip := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Real-IP"))); ip != "" {
		return ip
	}

	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if addr := ctx.RemoteAddr(); addr != nil {
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			return host
		}
		return addr.String()
	}

	return "unknown"
}

func RequestID(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue(HeaderRequestID).(string); ok {
		return id
	}
	return ""
}

const RouteParamsKey = "route_params"

// PathParam returns the value the router captured for a {name} segment.
func PathParam(ctx *fasthttp.RequestCtx, name string) string {
	if params, ok := ctx.UserValue(RouteParamsKey).(map[string]string); ok {
		return params[name]
	}
	return ""
}
