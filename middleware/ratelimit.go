package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/ratelimit"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

type RateLimitMiddleware struct {
	logger          types.Logger
	limiter         types.RateLimiter
	rateLimitConfig *RateLimitConfig
	name            string
	weight          int
}

type RateLimitConfig struct {
	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`
	KeyBy  string        `json:"key_by"`
}

func NewRateLimitMiddleware(config types.ConfigManager, logger types.Logger, limiter types.RateLimiter) *RateLimitMiddleware {
	item := itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.RateLimit })

	rateLimitConfig := &RateLimitConfig{
		Limit:  ratelimit.DefaultLimit,
		Window: ratelimit.DefaultWindow,
		KeyBy:  types.RateLimitByIP,
	}

	if global := config.GetConfig().RateLimit; global != nil {
		if global.DefaultLimit > 0 {
			rateLimitConfig.Limit = global.DefaultLimit
		}
		if global.DefaultWindow > 0 {
			rateLimitConfig.Window = global.DefaultWindow
		}
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, rateLimitConfig); err != nil {
			logger.Error("Failed to unmarshal RateLimit middleware config", zap.Error(err))
		}
	}

	return &RateLimitMiddleware{
		name:            "rate_limit",
		weight:          item.Weight,
		logger:          logger,
		limiter:         limiter,
		rateLimitConfig: rateLimitConfig,
	}
}

func (rl *RateLimitMiddleware) Name() string { return rl.name }
func (rl *RateLimitMiddleware) Weight() int  { return rl.weight }

func (rl *RateLimitMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, config *types.RouteConfig) error {
	if rl.limiter == nil || ctx.IsOptions() {
		return next(ctx)
	}

	limit, window, keyBy, scope := rl.rateLimitConfig.Limit, rl.rateLimitConfig.Window, rl.rateLimitConfig.KeyBy, "global"
	if config != nil && config.RateLimit != nil {
		rule := config.RateLimit
		if rule.Limit > 0 {
			limit = rule.Limit
		}
		if rule.Window > 0 {
			window = rule.Window
		}
		if rule.KeyBy != "" {
			keyBy = rule.KeyBy
		}
		if rule.Scope != "" {
			scope = rule.Scope
		}
	}

	result := rl.limiter.Check(scope+"|"+identifierFor(ctx, keyBy), limit, window)

	ctx.Response.Header.Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	ctx.Response.Header.Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	ctx.Response.Header.Set(HeaderRateLimitReset, strconv.Itoa(ceilSeconds(result.ResetAfter)))

	if !result.Allowed {
		return apierrors.NewRateLimitError(result.RetryAfter)
	}

	return next(ctx)
}

// identifierFor keys by user when asked to and an identity is present,
// otherwise by client IP.
func identifierFor(ctx *fasthttp.RequestCtx, keyBy string) string {
	if keyBy == types.RateLimitByUser {
		if user, ok := CurrentUser(ctx); ok {
			return "user:" + user.ID
		}
	}
	return "ip:" + utils.RealIP(ctx)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
