package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/types"
)

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *types.ServiceConfig) {
		cfg.Middlewares.BodyLimit.Params = map[string]interface{}{"max_body_size": 16}
	})

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"small post", fasthttp.MethodPost, `{"a":1}`, fasthttp.StatusOK},
		{"exactly at limit", fasthttp.MethodPut, strings.Repeat("x", 16), fasthttp.StatusOK},
		{"too large", fasthttp.MethodPost, strings.Repeat("x", 17), fasthttp.StatusBadRequest},
		{"get ignores body", fasthttp.MethodGet, strings.Repeat("x", 64), fasthttp.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newRequest(tt.method, "/snippets", nil)
			ctx.Request.SetBodyString(tt.body)

			env.serve(ctx, okHandler(`{}`), nil)

			assert.Equal(t, tt.status, ctx.Response.StatusCode())
			if tt.status != fasthttp.StatusOK {
				envelope := decodeError(t, ctx)
				assert.Equal(t, "FILE_TOO_LARGE", string(envelope.Error.Code))
				assert.Equal(t, map[string]interface{}{"maxSize": float64(16)}, envelope.Error.Details)
			}
		})
	}
}
