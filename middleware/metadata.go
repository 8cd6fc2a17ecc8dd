package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

type MetadataMiddleware struct {
	logger         types.Logger
	metadataConfig *MetadataConfig
	name           string
	weight         int
}

type MetadataConfig struct {
	TrustRequestID bool `json:"trust_request_id"`
}

// RequestMetadata is collected once per request for handlers and logs.
type RequestMetadata struct {
	RequestID string
	RealIP    string
	UserAgent string
	UserID    string
}

func NewMetadataMiddleware(config types.ConfigManager, logger types.Logger) *MetadataMiddleware {
	item := itemConfig(config, func(c *types.MiddlewaresConfig) *types.MiddlewareItemConfig { return c.Metadata })

	metadataConfig := &MetadataConfig{
		TrustRequestID: true,
	}

	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, metadataConfig); err != nil {
			logger.Error("Failed to unmarshal Metadata middleware config", zap.Error(err))
		}
	}

	return &MetadataMiddleware{
		name:           "metadata",
		weight:         item.Weight,
		logger:         logger,
		metadataConfig: metadataConfig,
	}
}

func (m *MetadataMiddleware) Name() string { return m.name }
func (m *MetadataMiddleware) Weight() int  { return m.weight }

func (m *MetadataMiddleware) Handle(ctx *fasthttp.RequestCtx, next types.HandlerFunc, _ *types.RouteConfig) error {
	if !m.metadataConfig.TrustRequestID {
		ctx.Request.Header.Del(utils.HeaderRequestID)
	}

	metadata := &RequestMetadata{
		RequestID: ensureRequestID(ctx),
		RealIP:    utils.RealIP(ctx),
		UserAgent: string(ctx.UserAgent()),
		UserID:    strings.TrimSpace(string(ctx.Request.Header.Peek(utils.HeaderUserID))),
	}

	ctx.SetUserValue(metadataKey, metadata)

	return next(ctx)
}

func Metadata(ctx *fasthttp.RequestCtx) (*RequestMetadata, bool) {
	metadata, ok := ctx.UserValue(metadataKey).(*RequestMetadata)
	return metadata, ok
}

// ensureRequestID keeps an incoming X-Request-ID or generates one, and
// echoes it on the response.
func ensureRequestID(ctx *fasthttp.RequestCtx) string {
	if id := utils.RequestID(ctx); id != "" {
		return id
	}

	id := strings.TrimSpace(string(ctx.Request.Header.Peek(utils.HeaderRequestID)))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}

	ctx.SetUserValue(utils.HeaderRequestID, id)
	ctx.Response.Header.Set(utils.HeaderRequestID, id)

	return id
}
