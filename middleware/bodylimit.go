package middleware

import (
	"fmt"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

type BodyLimitMiddleware struct {
	logger          types.Logger
	bodyLimitConfig *BodyLimitConfig
	name            string
	weight          int
}

type BodyLimitConfig struct {
	MaxBodySize int64 `json:"max_body_size"`
}

func NewBodyLimitMiddleware(config types.ConfigManager, logger types.Logger) *BodyLimitMiddleware {
	item := itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.BodyLimit })

	bodyLimitConfig := &BodyLimitConfig{
		MaxBodySize: 1 << 20,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, bodyLimitConfig); err != nil {
			logger.Error("Failed to unmarshal BodyLimit middleware config", zap.Error(err))
		}
	}

	return &BodyLimitMiddleware{
		name:            "body_limit",
		weight:          item.Weight,
		logger:          logger,
		bodyLimitConfig: bodyLimitConfig,
	}
}

func (bl *BodyLimitMiddleware) Name() string { return bl.name }
func (bl *BodyLimitMiddleware) Weight() int  { return bl.weight }

func (bl *BodyLimitMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, _ *types.RouteConfig) error {
	if ctx.IsGet() || ctx.IsHead() || ctx.IsOptions() {
		return next(ctx)
	}

	size := int64(ctx.Request.Header.ContentLength())
	if size <= 0 {
		size = int64(len(ctx.PostBody()))
	}

	if size > bl.bodyLimitConfig.MaxBodySize {
		bl.logger.Warn("Request body too large",
			zap.ByteString("path", ctx.Path()),
			zap.Int64("size", size),
			zap.Int64("max_size", bl.bodyLimitConfig.MaxBodySize))

		ctx.SetConnectionClose()

		return apierrors.NewFileUploadError(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", bl.bodyLimitConfig.MaxBodySize),
			apierrors.CodeFileTooLarge,
		).WithDetails(map[string]interface{}{"maxSize": bl.bodyLimitConfig.MaxBodySize})
	}

	return next(ctx)
}
