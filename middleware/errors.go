package middleware

import (
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/types"
)

// ErrorsMiddleware turns any error returned further down the chain into the
// JSON error envelope. It assigns a request ID when metadata has not.
type ErrorsMiddleware struct {
	responder *apierrors.Responder
	name      string
	weight    int
}

func NewErrorsMiddleware(config types.ConfigManager, responder *apierrors.Responder) *ErrorsMiddleware {
	return &ErrorsMiddleware{
		name:      "errors",
		weight:    itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.Errors }).Weight,
		responder: responder,
	}
}

func (e *ErrorsMiddleware) Name() string { return e.name }
func (e *ErrorsMiddleware) Weight() int  { return e.weight }

func (e *ErrorsMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, _ *types.RouteConfig) error {
	ensureRequestID(ctx)

	if err := next(ctx); err != nil {
		e.responder.WriteError(ctx, err)
	}

	return nil
}
