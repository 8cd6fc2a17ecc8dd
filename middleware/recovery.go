package middleware

import (
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

type RecoveryMiddleware struct {
	logger  types.Logger
	metrics types.MetricsManager
	name    string
	weight  int
}

func NewRecoveryMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		name:    "recovery",
		weight:  itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.Recovery }).Weight,
		logger:  logger,
		metrics: metrics,
	}
}

func (r *RecoveryMiddleware) Name() string { return r.name }
func (r *RecoveryMiddleware) Weight() int  { return r.weight }

// Handle converts a panic below it into an error carrying the panic site's
// stack, so the client only ever sees a generic internal error.
func (r *RecoveryMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, _ *types.RouteConfig) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}

		if recErr, ok := rec.(error); ok {
			err = errors.WithStack(recErr)
		} else {
			err = errors.Errorf("panic: %v", rec)
		}

		r.logger.Error("Recovered from panic",
			zap.Any("panic", rec),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.String("request_id", utils.RequestID(ctx)),
		)

		if r.metrics != nil {
			r.metrics.Counter("http_panics_total", nil).Inc()
		}
	}()

	return next(ctx)
}
