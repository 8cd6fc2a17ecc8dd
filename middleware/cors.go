package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

var (
	trueBytes        = []byte("true")
	asteriskBytes    = []byte("*")
	optionsBytes     = []byte(fasthttp.MethodOptions)
	varyOriginStr    = []byte("Origin")
	varyPreflightStr = []byte("Origin, Access-Control-Request-Method, Access-Control-Request-Headers")
)

type CORSMiddleware struct {
	logger            types.Logger
	corsConfig        *CORSConfig
	name              string
	weight            int
	allowsAll         bool
	allowedOriginsMap map[string]bool
	wildcardDomains   []string
	allowedMethodsStr []byte
	allowedHeadersStr []byte
	exposedHeadersStr []byte
	maxAgeStr         []byte
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

func NewCORSMiddleware(config types.ConfigManager, logger types.Logger) *CORSMiddleware {
	item := itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.CORS })

	corsConfig := &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", utils.HeaderRequestID},
		ExposedHeaders: []string{utils.HeaderRequestID, utils.HeaderRetryAfter, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         86400,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, corsConfig); err != nil {
			logger.Error("Failed to unmarshal CORS middleware config", zap.Error(err))
		}
	}

	c := &CORSMiddleware{
		name:       "cors",
		weight:     item.Weight,
		logger:     logger,
		corsConfig: corsConfig,
	}

	c.precompileConfiguration()

	return c
}

func (c *CORSMiddleware) Name() string { return c.name }
func (c *CORSMiddleware) Weight() int  { return c.weight }

func (c *CORSMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, _ *types.RouteConfig) error {
	origin := ctx.Request.Header.Peek("Origin")
	if len(origin) == 0 {
		return next(ctx)
	}

	if !c.isOriginAllowed(origin) {
		c.logger.Warn("CORS request blocked",
			zap.ByteString("origin", origin),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()))

		return apierrors.NewAppError(apierrors.CodeForbidden, "Origin not allowed", http.StatusForbidden, nil)
	}

	if bytes.Equal(ctx.Method(), optionsBytes) {
		c.writePreflight(ctx, origin)
		return nil
	}

	c.addCORSHeaders(ctx, origin)
	return next(ctx)
}

func (c *CORSMiddleware) isOriginAllowed(origin []byte) bool {
	if c.allowsAll {
		return true
	}

	originStr := string(origin)
	if c.allowedOriginsMap[originStr] {
		return true
	}

	host := originStr
	if _, rest, found := strings.Cut(originStr, "://"); found {
		host = rest
	}

	for _, domain := range c.wildcardDomains {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}

	return false
}

func (c *CORSMiddleware) setAllowOrigin(ctx *fasthttp.RequestCtx, origin []byte) {
	if c.allowsAll && !c.corsConfig.AllowCredentials {
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Origin", asteriskBytes)
	} else {
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Origin", origin)
	}

	if c.corsConfig.AllowCredentials {
		ctx.Response.Header.SetBytesV("Access-Control-Allow-Credentials", trueBytes)
	}
}

func (c *CORSMiddleware) addCORSHeaders(ctx *fasthttp.RequestCtx, origin []byte) {
	c.setAllowOrigin(ctx, origin)

	if len(c.exposedHeadersStr) > 0 {
		ctx.Response.Header.SetBytesV("Access-Control-Expose-Headers", c.exposedHeadersStr)
	}

	ctx.Response.Header.AddBytesV("Vary", varyOriginStr)
}

func (c *CORSMiddleware) writePreflight(ctx *fasthttp.RequestCtx, origin []byte) {
	c.setAllowOrigin(ctx, origin)

	ctx.Response.Header.SetBytesV("Access-Control-Allow-Methods", c.allowedMethodsStr)
	ctx.Response.Header.SetBytesV("Access-Control-Allow-Headers", c.allowedHeadersStr)
	ctx.Response.Header.SetBytesV("Access-Control-Max-Age", c.maxAgeStr)
	ctx.Response.Header.SetBytesV("Vary", varyPreflightStr)

	ctx.SetStatusCode(fasthttp.StatusNoContent)
	ctx.SetBody(nil)
}

func (c *CORSMiddleware) precompileConfiguration() {
	c.allowsAll = len(c.corsConfig.AllowedOrigins) == 1 && c.corsConfig.AllowedOrigins[0] == "*"

	if !c.allowsAll {
		c.allowedOriginsMap = make(map[string]bool, len(c.corsConfig.AllowedOrigins))
		for _, origin := range c.corsConfig.AllowedOrigins {
			if domain, ok := strings.CutPrefix(origin, "*."); ok {
				c.wildcardDomains = append(c.wildcardDomains, domain)
			} else {
				c.allowedOriginsMap[origin] = true
			}
		}
	}

	c.allowedMethodsStr = []byte(strings.Join(c.corsConfig.AllowedMethods, ", "))
	c.allowedHeadersStr = []byte(strings.Join(c.corsConfig.AllowedHeaders, ", "))
	c.exposedHeadersStr = []byte(strings.Join(c.corsConfig.ExposedHeaders, ", "))
	c.maxAgeStr = []byte(strconv.Itoa(c.corsConfig.MaxAge))
}
