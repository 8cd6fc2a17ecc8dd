package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/apierrors"
)

type createRequest struct {
	Title string   `json:"title" validate:"required,max=10"`
	Tags  []string `json:"tags" validate:"max=2"`
}

type listQuery struct {
	Page  int      `query:"page" validate:"min=1"`
	Limit int      `query:"limit" validate:"omitempty,max=50"`
	Tags  []string `query:"tags"`
}

func TestValidateRequestBody(t *testing.T) {
	validate := apierrors.NewValidator()

	var received *createRequest
	handler := ValidateRequestBody(validate, func(ctx *fasthttp.RequestCtx, req *createRequest) error {
		received = req
		return nil
	})

	tests := []struct {
		name    string
		body    string
		message string
		field   string
	}{
		{"valid", `{"title":"hello","tags":["go"]}`, "", ""},
		{"malformed json", `{"title":`, "Invalid JSON in request body", ""},
		{"missing title", `{}`, "Validation failed", "title"},
		{"too many tags", `{"title":"x","tags":["a","b","c"]}`, "Validation failed", "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			received = nil
			ctx := newRequest(fasthttp.MethodPost, "/", nil)
			ctx.Request.SetBodyString(tt.body)

			err := handler(ctx)
			if tt.message == "" {
				require.NoError(t, err)
				require.NotNil(t, received)
				assert.Equal(t, "hello", received.Title)
				return
			}

			appErr, ok := apierrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apierrors.CodeValidationFailed, appErr.Code)
			assert.Equal(t, tt.message, appErr.Message)
			assert.Nil(t, received)

			if tt.field != "" {
				details, ok := appErr.Details.([]apierrors.FieldError)
				require.True(t, ok)
				require.Len(t, details, 1)
				assert.Equal(t, tt.field, details[0].Field)
			}
		})
	}
}

func TestValidateQueryParams(t *testing.T) {
	validate := apierrors.NewValidator()

	var received *listQuery
	handler := ValidateQueryParams(validate, func(ctx *fasthttp.RequestCtx, query *listQuery) error {
		received = query
		return nil
	})

	ctx := newRequest(fasthttp.MethodGet, "/?page=2&limit=20&tags=go,redis", nil)
	require.NoError(t, handler(ctx))
	assert.Equal(t, &listQuery{Page: 2, Limit: 20, Tags: []string{"go", "redis"}}, received)

	ctx = newRequest(fasthttp.MethodGet, "/?page=1&tags=go&tags=redis", nil)
	require.NoError(t, handler(ctx))
	assert.Equal(t, []string{"go", "redis"}, received.Tags)

	ctx = newRequest(fasthttp.MethodGet, "/?page=0", nil)
	err := handler(ctx)
	assert.True(t, apierrors.HasCode(err, apierrors.CodeValidationFailed))

	ctx = newRequest(fasthttp.MethodGet, "/?page=abc", nil)
	err = handler(ctx)
	assert.True(t, apierrors.HasCode(err, apierrors.CodeValidationFailed))
}
