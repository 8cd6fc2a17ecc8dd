package middleware

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

// AuthMiddleware requires the trusted X-User-ID header. It trusts the
// upstream gateway to strip client-supplied identity headers.
type AuthMiddleware struct {
	logger types.Logger
	name   string
	weight int
}

func NewAuthMiddleware(config types.ConfigManager, logger types.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		name:   "auth",
		weight: itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.Auth }).Weight,
		logger: logger,
	}
}

func (a *AuthMiddleware) Name() string      { return a.name }
func (a *AuthMiddleware) Weight() int       { return a.weight }
func (a *AuthMiddleware) RouteScoped() bool { return true }

func (a *AuthMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, _ *types.RouteConfig) error {
	if ctx.IsOptions() {
		return next(ctx)
	}

	if _, ok := CurrentUser(ctx); !ok {
		a.logger.Debug("Missing user identity", zap.ByteString("path", ctx.Path()), zap.String("ip", utils.RealIP(ctx)))
		return apierrors.NewAuthenticationError("")
	}

	return next(ctx)
}

type EmailVerifiedMiddleware struct {
	logger types.Logger
	name   string
	weight int
}

func NewEmailVerifiedMiddleware(config types.ConfigManager, logger types.Logger) *EmailVerifiedMiddleware {
	return &EmailVerifiedMiddleware{
		name:   "email_verified",
		weight: itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.EmailVerified }).Weight,
		logger: logger,
	}
}

func (e *EmailVerifiedMiddleware) Name() string      { return e.name }
func (e *EmailVerifiedMiddleware) Weight() int       { return e.weight }
func (e *EmailVerifiedMiddleware) RouteScoped() bool { return true }

func (e *EmailVerifiedMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, _ *types.RouteConfig) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return apierrors.NewAuthenticationError("")
	}

	if !user.EmailVerified {
		return apierrors.NewAppError(apierrors.CodeEmailNotVerified, "Email verification required", http.StatusForbidden, nil)
	}

	return next(ctx)
}

// RoleMiddleware admits users whose role is in the route's Roles. Routes
// without roles pass through.
type RoleMiddleware struct {
	logger types.Logger
	name   string
	weight int
}

func NewRoleMiddleware(config types.ConfigManager, logger types.Logger) *RoleMiddleware {
	return &RoleMiddleware{
		name:   "role",
		weight: itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.Role }).Weight,
		logger: logger,
	}
}

func (r *RoleMiddleware) Name() string      { return r.name }
func (r *RoleMiddleware) Weight() int       { return r.weight }
func (r *RoleMiddleware) RouteScoped() bool { return true }

func (r *RoleMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, config *types.RouteConfig) error {
	if config == nil || len(config.Roles) == 0 {
		return next(ctx)
	}

	user, ok := CurrentUser(ctx)
	if !ok {
		return apierrors.NewAuthenticationError("")
	}

	if !user.HasRole(config.Roles...) {
		r.logger.Debug("Role not permitted",
			zap.String("user_id", user.ID),
			zap.String("role", user.Role),
			zap.Strings("allowed", config.Roles))
		return apierrors.NewAuthorizationError("")
	}

	return next(ctx)
}
