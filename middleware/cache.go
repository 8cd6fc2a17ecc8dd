package middleware

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/cache"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

const HeaderCache = "X-Cache"

type CacheMiddleware struct {
	logger      types.Logger
	store       types.CacheStore
	revisions   *cache.Revisions
	cacheConfig *CacheConfig
	name        string
	weight      int
}

type CacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl"`
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

func NewCacheMiddleware(config types.ConfigManager, logger types.Logger, store types.CacheStore) *CacheMiddleware {
	item := itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.Cache })

	cacheConfig := &CacheConfig{
		DefaultTTL: 5 * time.Minute,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, cacheConfig); err != nil {
			logger.Error("Failed to unmarshal Cache middleware config", zap.Error(err))
		}
	}

	return &CacheMiddleware{
		name:        "cache",
		weight:      item.Weight,
		logger:      logger,
		store:       store,
		revisions:   cache.NewRevisions(store),
		cacheConfig: cacheConfig,
	}
}

func (c *CacheMiddleware) Name() string { return c.name }
func (c *CacheMiddleware) Weight() int  { return c.weight }

func (c *CacheMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, config *types.RouteConfig) error {
	if !ctx.IsGet() || config == nil || config.Cache == nil || !config.Cache.Enabled {
		return next(ctx)
	}

	key := c.buildCacheKey(ctx, config.Cache)

	if cached, ok := cache.GetAs[cachedResponse](c.store, key); ok {
		c.logger.Debug("Cache hit", zap.String("cache_key", key))

		ctx.SetStatusCode(cached.Status)
		ctx.SetContentType(cached.ContentType)
		ctx.SetBody(cached.Body)
		ctx.Response.Header.Set(HeaderCache, "HIT")
		return nil
	}

	if err := next(ctx); err != nil {
		return err
	}

	ctx.Response.Header.Set(HeaderCache, "MISS")

	if !c.shouldCacheResponse(ctx) {
		return nil
	}

	c.store.Set(key, cachedResponse{
		Status:      ctx.Response.StatusCode(),
		ContentType: string(ctx.Response.Header.ContentType()),
		Body:        append([]byte(nil), ctx.Response.Body()...),
	}, c.ttl(config.Cache))

	c.logger.Debug("Cache set", zap.String("cache_key", key))

	return nil
}

func (c *CacheMiddleware) shouldCacheResponse(ctx *fasthttp.RequestCtx) bool {
	statusCode := ctx.Response.StatusCode()
	if statusCode < 200 || statusCode >= 300 {
		return false
	}

	if len(ctx.Response.Body()) == 0 {
		return false
	}

	cacheControl := strings.ToLower(string(ctx.Response.Header.Peek("Cache-Control")))
	return !strings.Contains(cacheControl, "no-cache") && !strings.Contains(cacheControl, "no-store")
}

// buildCacheKey separates entries per user, since routes behind auth
// return user-specific bodies, and embeds the dependency revisions.
func (c *CacheMiddleware) buildCacheKey(ctx *fasthttp.RequestCtx, config *types.CacheHandlerConfig) string {
	var sb strings.Builder

	sb.WriteString("response:")
	sb.Write(ctx.Method())
	sb.WriteByte(' ')
	sb.Write(ctx.Path())

	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		sb.WriteByte('?')
		sb.Write(query)
	}

	if user, ok := CurrentUser(ctx); ok {
		sb.WriteString("|user=")
		sb.WriteString(user.ID)
	}

	if revisions := c.revisions.Current(config.Deps); revisions != "" {
		sb.WriteByte('|')
		sb.WriteString(revisions)
	}

	return sb.String()
}

func (c *CacheMiddleware) ttl(config *types.CacheHandlerConfig) time.Duration {
	if config.TTL > 0 {
		return config.TTL
	}
	return c.cacheConfig.DefaultTTL
}
